package ws

import (
	"encoding/json"
	"errors"
	"time"
)

// Inbound event names.
const (
	EventAuthenticate    = "authenticate"
	EventSendMessage     = "sendMessage"
	EventFetchChats      = "fetchChats"
	EventOnlineUsers     = "onlineUsers"
	EventUnreadMessages  = "unReadMessages"
	EventMessageList     = "messageList"
	EventTyping          = "typing"
	EventGetOnlineStatus = "getOnlineStatus"
)

// Outbound event names.
const (
	EventAuthenticated    = "authenticated"
	EventAuthorization    = "authorization"
	EventMessage          = "message"
	EventNoUnreadMessages = "noUnreadMessages"
	EventTypingStatus     = "typingStatus"
	EventOnlineStatus     = "onlineStatus"
	EventUserStatus       = "userStatus"
	EventNotification     = "notification"
	EventError            = "error"
)

var ErrMalformedFrame = errors.New("malformed frame")

// InboundFrame is one decoded client frame. The set of implementations is
// closed; the gateway dispatches on the concrete type.
type InboundFrame interface {
	inbound()
}

type AuthenticateFrame struct {
	Token string `json:"token"`
}

type SendMessageFrame struct {
	ReceiverID string   `json:"receiverId"`
	Message    string   `json:"message"`
	Images     []string `json:"images"`
}

type FetchChatsFrame struct {
	ReceiverID string `json:"receiverId"`
	Page       int    `json:"page"`
	Limit      int    `json:"limit"`
}

type OnlineUsersFrame struct{}

type UnreadMessagesFrame struct {
	ReceiverID string `json:"receiverId"`
}

type MessageListFrame struct{}

type TypingFrame struct {
	ReceiverID string `json:"receiverId"`
	RoomID     string `json:"roomId"`
	IsTyping   bool   `json:"isTyping"`
}

type GetOnlineStatusFrame struct {
	UserIDs []string `json:"userIds"`
}

// UnknownFrame carries an event name the gateway does not handle.
type UnknownFrame struct {
	Event string
}

func (AuthenticateFrame) inbound()    {}
func (SendMessageFrame) inbound()     {}
func (FetchChatsFrame) inbound()      {}
func (OnlineUsersFrame) inbound()     {}
func (UnreadMessagesFrame) inbound()  {}
func (MessageListFrame) inbound()     {}
func (TypingFrame) inbound()          {}
func (GetOnlineStatusFrame) inbound() {}
func (UnknownFrame) inbound()         {}

// DecodeFrame parses a client frame. Fields sit next to the event name at
// the top level of the JSON object.
func DecodeFrame(raw []byte) (InboundFrame, error) {
	var env struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, ErrMalformedFrame
	}
	var f InboundFrame
	var err error
	switch env.Event {
	case EventAuthenticate:
		var v AuthenticateFrame
		err = json.Unmarshal(raw, &v)
		f = v
	case EventSendMessage:
		var v SendMessageFrame
		err = json.Unmarshal(raw, &v)
		f = v
	case EventFetchChats:
		var v FetchChatsFrame
		err = json.Unmarshal(raw, &v)
		f = v
	case EventOnlineUsers:
		f = OnlineUsersFrame{}
	case EventUnreadMessages:
		var v UnreadMessagesFrame
		err = json.Unmarshal(raw, &v)
		f = v
	case EventMessageList:
		f = MessageListFrame{}
	case EventTyping:
		var v TypingFrame
		err = json.Unmarshal(raw, &v)
		f = v
	case EventGetOnlineStatus:
		var v GetOnlineStatusFrame
		err = json.Unmarshal(raw, &v)
		f = v
	default:
		f = UnknownFrame{Event: env.Event}
	}
	if err != nil {
		return nil, ErrMalformedFrame
	}
	return f, nil
}

// Outbound frames.

type dataFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type authFrame struct {
	Event   string `json:"event"`
	Success bool   `json:"success"`
	UserID  string `json:"userId,omitempty"`
	Message string `json:"message,omitempty"`
}

type errorFrame struct {
	Event   string `json:"event"`
	Message string `json:"message"`
}

type OnlineUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type OnlineStatus struct {
	UserID   string `json:"userId"`
	IsOnline bool   `json:"isOnline"`
}

type UserStatus struct {
	UserID    string `json:"userId"`
	IsOnline  bool   `json:"isOnline"`
	Timestamp int64  `json:"timestamp"` // unix ms
}

type TypingStatus struct {
	UserID   string `json:"userId"`
	RoomID   string `json:"roomId"`
	IsTyping bool   `json:"isTyping"`
}

type UnreadSummary struct {
	Messages any `json:"messages"`
	Count    int `json:"count"`
}

// NotificationPush is pushed to a connected user when a notification is stored.
type NotificationPush struct {
	ID    string `json:"id"`
	Type  string `json:"type,omitempty"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

func Frame(event string, data any) any {
	return dataFrame{Event: event, Data: data}
}

func errorOut(msg string) any {
	return errorFrame{Event: EventError, Message: msg}
}

func userStatusFrame(userID string, online bool, at time.Time) any {
	return Frame(EventUserStatus, UserStatus{UserID: userID, IsOnline: online, Timestamp: at.UnixMilli()})
}
