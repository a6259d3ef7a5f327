package ws

import (
	"context"
	"errors"
	"strings"
	"time"

	"cadence/internal/auth"
	"cadence/internal/events"
	"cadence/internal/models"
	"cadence/internal/repository"

	"go.uber.org/zap"
)

// ChatStore persists rooms and messages.
type ChatStore interface {
	FindRoom(ctx context.Context, a, b string) (*models.Room, error)
	FindOrCreateRoom(ctx context.Context, senderID, receiverID string) (*models.Room, error)
	CreateMessage(ctx context.Context, m *models.Message) error
	ListMessages(ctx context.Context, roomID string, offset, limit int) ([]models.Message, error)
	MarkRoomRead(ctx context.Context, roomID, receiverID string) error
	UnreadMessages(ctx context.Context, roomID, receiverID string) ([]models.Message, error)
	Conversations(ctx context.Context, userID string) ([]models.Conversation, error)
}

// UserDirectory resolves user ids to profiles.
type UserDirectory interface {
	GetByIDs(ctx context.Context, ids []string) ([]models.User, error)
}

// TokenVerifier checks a bearer token and returns its claims.
type TokenVerifier func(token string) (*auth.Claims, error)

type Options struct {
	HeartbeatInterval time.Duration
	TypingTimeout     time.Duration
	TypingSweep       time.Duration
	SendBuffer        int
	WriteWait         time.Duration
	Metrics           *Metrics
}

func (o *Options) defaults() {
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 30 * time.Second
	}
	if o.TypingTimeout <= 0 {
		o.TypingTimeout = 3 * time.Second
	}
	if o.TypingSweep <= 0 {
		o.TypingSweep = time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
}

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// errCloseConn asks the read loop to stop after the queued reply is flushed.
var errCloseConn = errors.New("close connection")

// Gateway owns the realtime state: the connection registry and presence.
type Gateway struct {
	registry *Registry
	presence *Presence
	store    ChatStore
	users    UserDirectory
	verify   TokenVerifier
	bus      *events.Bus
	opts     Options
	logger   *zap.Logger
}

func NewGateway(store ChatStore, users UserDirectory, verify TokenVerifier, bus *events.Bus, opts Options, logger *zap.Logger) *Gateway {
	opts.defaults()
	logger = logger.Named("gateway")
	registry := NewRegistry()
	return &Gateway{
		registry: registry,
		presence: NewPresence(registry, opts.TypingTimeout, logger),
		store:    store,
		users:    users,
		verify:   verify,
		bus:      bus,
		opts:     opts,
		logger:   logger,
	}
}

func (g *Gateway) Presence() *Presence { return g.presence }

// Run drives the heartbeat and typing sweeps until ctx is done.
func (g *Gateway) Run(ctx context.Context) {
	heartbeat := time.NewTicker(g.opts.HeartbeatInterval)
	defer heartbeat.Stop()
	sweep := time.NewTicker(g.opts.TypingSweep)
	defer sweep.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			g.Heartbeat()
		case now := <-sweep.C:
			g.presence.Sweep(now)
		}
	}
}

// Heartbeat terminates connections that did not answer the previous ping
// and pings the rest.
func (g *Gateway) Heartbeat() {
	for _, c := range g.registry.All() {
		if !c.checkAlive() {
			g.logger.Info("terminating unresponsive connection", zap.Uint64("conn", c.ID), zap.String("user_id", c.UserID()))
			c.terminate()
			continue
		}
		if err := c.ping(g.opts.WriteWait); err != nil {
			g.logger.Debug("ping failed", zap.Uint64("conn", c.ID), zap.Error(err))
			c.terminate()
		}
	}
}

// Open registers a new, unauthenticated connection.
func (g *Gateway) Open(t Transport) *Conn {
	c := NewConn(t, g.opts.SendBuffer)
	g.registry.Add(c)
	g.opts.Metrics.observe(g.registry)
	return c
}

// Close unregisters c and announces the user offline when it was their
// last connection.
func (g *Gateway) Close(c *Conn) {
	userID, last := g.registry.Remove(c)
	c.close()
	g.opts.Metrics.observe(g.registry)
	if userID == "" {
		return
	}
	g.presence.ClearUser(userID)
	if last {
		g.presence.BroadcastStatus(userID, false)
		g.logger.Info("user disconnected", zap.String("user_id", userID))
	}
}

// Shutdown terminates every connection.
func (g *Gateway) Shutdown() {
	for _, c := range g.registry.All() {
		c.terminate()
	}
}

// HandleFrame decodes and handles one client frame. A non-nil error means
// the connection should be closed once pending replies are written.
func (g *Gateway) HandleFrame(ctx context.Context, c *Conn, raw []byte) error {
	f, err := DecodeFrame(raw)
	if err != nil {
		c.SendJSON(errorOut("invalid frame"))
		return nil
	}
	switch f := f.(type) {
	case AuthenticateFrame:
		g.opts.Metrics.frame(EventAuthenticate)
		return g.authenticate(c, f)
	case GetOnlineStatusFrame:
		g.opts.Metrics.frame(EventGetOnlineStatus)
		g.onlineStatus(c, f)
		return nil
	case UnknownFrame:
		g.logger.Warn("unknown event type", zap.String("event", f.Event), zap.Uint64("conn", c.ID))
		return nil
	}

	userID := c.UserID()
	if userID == "" {
		c.SendJSON(errorOut("not authenticated"))
		return nil
	}
	switch f := f.(type) {
	case SendMessageFrame:
		g.opts.Metrics.frame(EventSendMessage)
		g.sendMessage(ctx, c, userID, f)
	case FetchChatsFrame:
		g.opts.Metrics.frame(EventFetchChats)
		g.fetchChats(ctx, c, userID, f)
	case OnlineUsersFrame:
		g.opts.Metrics.frame(EventOnlineUsers)
		g.onlineUsers(ctx, c)
	case UnreadMessagesFrame:
		g.opts.Metrics.frame(EventUnreadMessages)
		g.unreadMessages(ctx, c, userID, f)
	case MessageListFrame:
		g.opts.Metrics.frame(EventMessageList)
		g.messageList(ctx, c, userID)
	case TypingFrame:
		g.opts.Metrics.frame(EventTyping)
		g.typing(c, userID, f)
	}
	return nil
}

// Authenticate binds c to the token's user. It is also used for tokens
// passed on the upgrade request.
func (g *Gateway) authenticate(c *Conn, f AuthenticateFrame) error {
	if f.Token == "" {
		c.SendJSON(authFrame{Event: EventAuthorization, Success: false, Message: "Token is required"})
		return errCloseConn
	}
	claims, err := g.verify(f.Token)
	if err != nil {
		c.SendJSON(authFrame{Event: EventAuthorization, Success: false, Message: "Invalid token"})
		return errCloseConn
	}
	first, prev, prevGone := g.registry.Bind(c, claims.UserID, claims.Role)
	g.opts.Metrics.observe(g.registry)
	if prevGone {
		g.presence.ClearUser(prev)
		g.presence.BroadcastStatus(prev, false)
	}
	if first {
		g.presence.BroadcastStatus(claims.UserID, true)
	}
	c.SendJSON(authFrame{Event: EventAuthenticated, Success: true, UserID: claims.UserID})
	g.logger.Info("user authenticated", zap.String("user_id", claims.UserID), zap.Uint64("conn", c.ID))
	return nil
}

func (g *Gateway) sendMessage(ctx context.Context, c *Conn, userID string, f SendMessageFrame) {
	if f.ReceiverID == "" || strings.TrimSpace(f.Message) == "" {
		c.SendJSON(errorOut("receiverId and message are required"))
		return
	}
	room, err := g.store.FindOrCreateRoom(ctx, userID, f.ReceiverID)
	if err != nil {
		g.logger.Error("resolve room", zap.String("user_id", userID), zap.String("receiver_id", f.ReceiverID), zap.Error(err))
		c.SendJSON(errorOut("Failed to send message"))
		return
	}
	images := f.Images
	if images == nil {
		images = []string{}
	}
	msg := &models.Message{
		RoomID:     room.ID,
		SenderID:   userID,
		ReceiverID: f.ReceiverID,
		Message:    f.Message,
		Images:     images,
	}
	if err := g.store.CreateMessage(ctx, msg); err != nil {
		g.logger.Error("persist message", zap.String("room_id", room.ID), zap.Error(err))
		c.SendJSON(errorOut("Failed to send message"))
		return
	}

	frame := Frame(EventMessage, msg)
	g.presence.SendToUser(f.ReceiverID, frame)
	if f.ReceiverID != userID {
		g.presence.SendToUser(userID, frame)
	}

	if g.bus != nil {
		events.Emit(g.bus, ctx, events.MessageSent, events.MessageSentPayload{
			MessageID:  msg.ID,
			SenderID:   userID,
			ReceiverID: f.ReceiverID,
			RoomID:     room.ID,
			Preview:    preview(msg.Message),
		})
	}
}

func (g *Gateway) fetchChats(ctx context.Context, c *Conn, userID string, f FetchChatsFrame) {
	if f.ReceiverID == "" {
		c.SendJSON(errorOut("receiverId is required"))
		return
	}
	if f.RoomID == "" {
		c.SendJSON(errorOut("roomId is required"))
		return
	}
	room, ok := g.findRoom(ctx, c, userID, f.ReceiverID)
	if !ok {
		return
	}
	if room == nil {
		c.SendJSON(Frame(EventFetchChats, []models.Message{}))
		return
	}
	page, limit := f.Page, f.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	msgs, err := g.store.ListMessages(ctx, room.ID, (page-1)*limit, limit)
	if err != nil {
		g.logger.Error("list messages", zap.String("room_id", room.ID), zap.Error(err))
		c.SendJSON(errorOut("Failed to process message"))
		return
	}
	if err := g.store.MarkRoomRead(ctx, room.ID, userID); err != nil {
		g.logger.Error("mark room read", zap.String("room_id", room.ID), zap.Error(err))
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	c.SendJSON(Frame(EventFetchChats, msgs))
}

func (g *Gateway) onlineUsers(ctx context.Context, c *Conn) {
	users, err := g.users.GetByIDs(ctx, g.registry.OnlineUserIDs())
	if err != nil {
		g.logger.Error("load online users", zap.Error(err))
		c.SendJSON(errorOut("Failed to process message"))
		return
	}
	out := make([]OnlineUser, 0, len(users))
	for _, u := range users {
		out = append(out, OnlineUser{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role})
	}
	c.SendJSON(Frame(EventOnlineUsers, out))
}

func (g *Gateway) unreadMessages(ctx context.Context, c *Conn, userID string, f UnreadMessagesFrame) {
	if f.ReceiverID == "" {
		c.SendJSON(errorOut("receiverId is required"))
		return
	}
	if f.RoomID == "" {
		c.SendJSON(errorOut("roomId is required"))
		return
	}
	room, ok := g.findRoom(ctx, c, userID, f.ReceiverID)
	if !ok {
		return
	}
	if room == nil {
		c.SendJSON(Frame(EventNoUnreadMessages, []models.Message{}))
		return
	}
	msgs, err := g.store.UnreadMessages(ctx, room.ID, userID)
	if err != nil {
		g.logger.Error("unread messages", zap.String("room_id", room.ID), zap.Error(err))
		c.SendJSON(errorOut("Failed to process message"))
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	c.SendJSON(Frame(EventUnreadMessages, UnreadSummary{Messages: msgs, Count: len(msgs)}))
}

func (g *Gateway) messageList(ctx context.Context, c *Conn, userID string) {
	convs, err := g.store.Conversations(ctx, userID)
	if err != nil {
		g.logger.Error("message list", zap.String("user_id", userID), zap.Error(err))
		c.SendJSON(errorOut("Failed to fetch message list"))
		return
	}
	if convs == nil {
		convs = []models.Conversation{}
	}
	c.SendJSON(Frame(EventMessageList, convs))
}

func (g *Gateway) typing(c *Conn, userID string, f TypingFrame) {
	if f.ReceiverID == "" {
		c.SendJSON(errorOut("receiverId is required"))
		return
	}
	if f.RoomID == "" {
		c.SendJSON(errorOut("roomId is required"))
		return
	}
	if f.IsTyping {
		g.presence.SetTyping(userID, f.RoomID)
	} else {
		g.presence.ClearTyping(userID, f.RoomID)
	}
	g.presence.SendToUser(f.ReceiverID, Frame(EventTypingStatus, TypingStatus{
		UserID:   userID,
		RoomID:   f.RoomID,
		IsTyping: f.IsTyping,
	}))
}

func (g *Gateway) onlineStatus(c *Conn, f GetOnlineStatusFrame) {
	if f.UserIDs == nil {
		c.SendJSON(errorOut("userIds must be an array"))
		return
	}
	out := make([]OnlineStatus, 0, len(f.UserIDs))
	for _, id := range f.UserIDs {
		out = append(out, OnlineStatus{UserID: id, IsOnline: g.registry.IsOnline(id)})
	}
	c.SendJSON(Frame(EventOnlineStatus, out))
}

// findRoom returns (nil, true) when the pair has no room and (nil, false)
// after reporting a lookup error to the client.
func (g *Gateway) findRoom(ctx context.Context, c *Conn, a, b string) (*models.Room, bool) {
	room, err := g.store.FindRoom(ctx, a, b)
	if err == nil {
		return room, true
	}
	if repository.IsNotFound(err) {
		return nil, true
	}
	g.logger.Error("find room", zap.String("user_id", a), zap.String("peer_id", b), zap.Error(err))
	c.SendJSON(errorOut("Failed to process message"))
	return nil, false
}

func preview(s string) string {
	const max = 100
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}
