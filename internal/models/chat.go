package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Room is the 1:1 conversation between two users. SenderID and ReceiverID
// keep the order the room was opened in; PairKey is order independent and
// unique, so two rooms can never exist for the same pair.
// Chat models use camelCase JSON because they go out on the socket as-is.
type Room struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	SenderID   string    `gorm:"size:36;not null;index" json:"senderId"`
	ReceiverID string    `gorm:"size:36;not null;index" json:"receiverId"`
	PairKey    string    `gorm:"size:80;not null;uniqueIndex" json:"-"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (Room) TableName() string {
	return "rooms"
}

func (r *Room) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.PairKey == "" {
		r.PairKey = PairKey(r.SenderID, r.ReceiverID)
	}
	return nil
}

// Peer returns the participant that is not userID.
func (r *Room) Peer(userID string) string {
	if r.SenderID == userID {
		return r.ReceiverID
	}
	return r.SenderID
}

// PairKey is the unordered identity of a user pair.
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}

type Message struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	RoomID     string    `gorm:"size:36;not null;index:idx_messages_room_created,priority:1" json:"roomId"`
	SenderID   string    `gorm:"size:36;not null" json:"senderId"`
	ReceiverID string    `gorm:"size:36;not null;index" json:"receiverId"`
	Message    string    `gorm:"type:text" json:"message"`
	Images     []string  `gorm:"serializer:json;type:text" json:"images"`
	IsRead     bool      `gorm:"not null;default:false" json:"isRead"`
	CreatedAt  time.Time `gorm:"index:idx_messages_room_created,priority:2" json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (Message) TableName() string {
	return "messages"
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Images == nil {
		m.Images = []string{}
	}
	return nil
}

// Conversation is one row of a user's message list: the other participant
// and the newest message exchanged with them.
type Conversation struct {
	RoomID      string   `json:"roomId"`
	User        *User    `json:"user"`
	LastMessage *Message `json:"lastMessage"`
}
