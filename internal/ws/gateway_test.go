package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"cadence/internal/auth"
	"cadence/internal/events"
	"cadence/internal/models"
	"cadence/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStore struct {
	mu       sync.Mutex
	rooms    map[string]*models.Room
	messages []*models.Message
	seq      int
	failSave bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{rooms: make(map[string]*models.Room)}
}

func (s *fakeStore) FindRoom(ctx context.Context, a, b string) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rooms[models.PairKey(a, b)]; ok {
		return r, nil
	}
	return nil, repository.ErrNotFound
}

func (s *fakeStore) FindOrCreateRoom(ctx context.Context, sender, receiver string) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := models.PairKey(sender, receiver)
	if r, ok := s.rooms[key]; ok {
		return r, nil
	}
	s.seq++
	r := &models.Room{ID: fmt.Sprintf("room-%d", s.seq), SenderID: sender, ReceiverID: receiver, PairKey: key}
	s.rooms[key] = r
	return r, nil
}

func (s *fakeStore) CreateMessage(ctx context.Context, m *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave {
		return errors.New("db down")
	}
	s.seq++
	m.ID = fmt.Sprintf("msg-%d", s.seq)
	m.CreatedAt = time.Now().Add(time.Duration(s.seq) * time.Millisecond)
	cp := *m
	s.messages = append(s.messages, &cp)
	return nil
}

func (s *fakeStore) ListMessages(ctx context.Context, roomID string, offset, limit int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Message
	for _, m := range s.messages {
		if m.RoomID == roomID {
			out = append(out, *m)
		}
	}
	if offset >= len(out) {
		return []models.Message{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) MarkRoomRead(ctx context.Context, roomID, receiverID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.RoomID == roomID && m.ReceiverID == receiverID {
			m.IsRead = true
		}
	}
	return nil
}

func (s *fakeStore) UnreadMessages(ctx context.Context, roomID, receiverID string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Message
	for _, m := range s.messages {
		if m.RoomID == roomID && m.ReceiverID == receiverID && !m.IsRead {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (s *fakeStore) Conversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Conversation
	for _, r := range s.rooms {
		if r.SenderID != userID && r.ReceiverID != userID {
			continue
		}
		var last *models.Message
		for _, m := range s.messages {
			if m.RoomID == r.ID {
				last = m
			}
		}
		if last == nil {
			continue
		}
		out = append(out, models.Conversation{RoomID: r.ID, User: &models.User{ID: r.Peer(userID)}, LastMessage: last})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastMessage.CreatedAt.After(out[j].LastMessage.CreatedAt) })
	return out, nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

type fakeUsers map[string]models.User

func (f fakeUsers) GetByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	var out []models.User
	for _, id := range ids {
		if u, ok := f[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

type fakeTransport struct {
	mu     sync.Mutex
	pings  int
	closed bool
	err    error
}

func (t *fakeTransport) WriteControl(int, []byte, time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pings++
	return t.err
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *fakeTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// tokenVerifier accepts tokens of the form "tok-<userID>".
func tokenVerifier(token string) (*auth.Claims, error) {
	if len(token) < 5 || token[:4] != "tok-" {
		return nil, auth.ErrInvalidToken
	}
	return &auth.Claims{UserID: token[4:], Role: "USER"}, nil
}

func newTestGateway(t *testing.T, store *fakeStore, bus *events.Bus) *Gateway {
	t.Helper()
	users := fakeUsers{
		"u1": {ID: "u1", Name: "Ann", Email: "ann@example.com", Role: "USER"},
		"u2": {ID: "u2", Name: "Ben", Email: "ben@example.com", Role: "PROVIDER"},
	}
	return NewGateway(store, users, tokenVerifier, bus, Options{}, zap.NewNop())
}

type frame map[string]any

func drain(c *Conn) []frame {
	var out []frame
	for {
		select {
		case data, ok := <-c.Send:
			if !ok {
				return out
			}
			var f frame
			if err := json.Unmarshal(data, &f); err == nil {
				out = append(out, f)
			}
		default:
			return out
		}
	}
}

func only(frames []frame, event string) []frame {
	var out []frame
	for _, f := range frames {
		if f["event"] == event {
			out = append(out, f)
		}
	}
	return out
}

func send(t *testing.T, g *Gateway, c *Conn, v any) error {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return g.HandleFrame(context.Background(), c, raw)
}

func login(t *testing.T, g *Gateway, userID string) *Conn {
	t.Helper()
	c := g.Open(&fakeTransport{})
	require.NoError(t, send(t, g, c, map[string]any{"event": "authenticate", "token": "tok-" + userID}))
	drain(c)
	return c
}

func TestAuthenticate(t *testing.T) {
	g := newTestGateway(t, newFakeStore(), nil)
	observer := g.Open(&fakeTransport{})
	c := g.Open(&fakeTransport{})

	require.NoError(t, send(t, g, c, map[string]any{"event": "authenticate", "token": "tok-u1"}))

	frames := drain(c)
	authed := only(frames, EventAuthenticated)
	require.Len(t, authed, 1)
	assert.Equal(t, true, authed[0]["success"])
	assert.Equal(t, "u1", authed[0]["userId"])
	assert.True(t, g.Presence().IsOnline("u1"))

	status := only(drain(observer), EventUserStatus)
	require.Len(t, status, 1)
	data := status[0]["data"].(map[string]any)
	assert.Equal(t, "u1", data["userId"])
	assert.Equal(t, true, data["isOnline"])
	assert.NotZero(t, data["timestamp"])
}

func TestAuthenticateRejectsBadToken(t *testing.T) {
	g := newTestGateway(t, newFakeStore(), nil)
	for _, token := range []string{"", "nope"} {
		c := g.Open(&fakeTransport{})
		err := send(t, g, c, map[string]any{"event": "authenticate", "token": token})
		assert.ErrorIs(t, err, errCloseConn)
		frames := only(drain(c), EventAuthorization)
		require.Len(t, frames, 1)
		assert.Equal(t, false, frames[0]["success"])
		assert.Empty(t, c.UserID())
	}
	assert.Zero(t, g.Presence().OnlineCount())
}

func TestSecondDeviceDoesNotRebroadcastOnline(t *testing.T) {
	g := newTestGateway(t, newFakeStore(), nil)
	watcher := login(t, g, "u2")

	first := login(t, g, "u1")
	assert.Len(t, only(drain(watcher), EventUserStatus), 1)

	second := login(t, g, "u1")
	assert.Empty(t, only(drain(watcher), EventUserStatus))

	g.Close(first)
	assert.Empty(t, only(drain(watcher), EventUserStatus))
	assert.True(t, g.Presence().IsOnline("u1"))

	g.Close(second)
	offline := only(drain(watcher), EventUserStatus)
	require.Len(t, offline, 1)
	assert.Equal(t, false, offline[0]["data"].(map[string]any)["isOnline"])
	assert.False(t, g.Presence().IsOnline("u1"))
}

func TestUnauthenticatedFramesGetErrorFrame(t *testing.T) {
	g := newTestGateway(t, newFakeStore(), nil)
	c := g.Open(&fakeTransport{})

	for _, ev := range []string{"sendMessage", "fetchChats", "onlineUsers", "unReadMessages", "messageList", "typing"} {
		require.NoError(t, send(t, g, c, map[string]any{"event": ev, "receiverId": "u2", "message": "hi"}))
		errs := only(drain(c), EventError)
		require.Len(t, errs, 1, ev)
		assert.Equal(t, "not authenticated", errs[0]["message"])
	}
}

func TestMalformedAndUnknownFrames(t *testing.T) {
	g := newTestGateway(t, newFakeStore(), nil)
	c := login(t, g, "u1")

	require.NoError(t, g.HandleFrame(context.Background(), c, []byte("{not json")))
	errs := only(drain(c), EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, "invalid frame", errs[0]["message"])

	require.NoError(t, send(t, g, c, map[string]any{"event": "dance"}))
	assert.Empty(t, drain(c))
}

func TestSendMessageDeliversAndEchoes(t *testing.T) {
	store := newFakeStore()
	bus := events.NewBus(zap.NewNop())
	var got []events.MessageSentPayload
	var mu sync.Mutex
	events.On(bus, events.MessageSent, func(ctx context.Context, p events.MessageSentPayload) error {
		mu.Lock()
		got = append(got, p)
		mu.Unlock()
		return nil
	})
	g := newTestGateway(t, store, bus)
	u1 := login(t, g, "u1")
	u2 := login(t, g, "u2")
	drain(u1)

	require.NoError(t, send(t, g, u1, map[string]any{"event": "sendMessage", "receiverId": "u2", "message": "hi"}))

	recv := only(drain(u2), EventMessage)
	require.Len(t, recv, 1)
	msg := recv[0]["data"].(map[string]any)
	assert.Equal(t, "hi", msg["message"])
	assert.Equal(t, "u1", msg["senderId"])
	assert.Equal(t, "u2", msg["receiverId"])
	assert.Equal(t, false, msg["isRead"])
	assert.Equal(t, []any{}, msg["images"])

	echo := only(drain(u1), EventMessage)
	require.Len(t, echo, 1)
	assert.Equal(t, msg["id"], echo[0]["data"].(map[string]any)["id"])

	assert.Equal(t, 1, store.count())
	bus.Wait()
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, "u2", got[0].ReceiverID)
	assert.Equal(t, "hi", got[0].Preview)
}

func TestSendMessageToOfflineUserIsStillPersisted(t *testing.T) {
	store := newFakeStore()
	g := newTestGateway(t, store, nil)
	u1 := login(t, g, "u1")

	require.NoError(t, send(t, g, u1, map[string]any{"event": "sendMessage", "receiverId": "u2", "message": "later"}))
	assert.Len(t, only(drain(u1), EventMessage), 1)
	assert.Equal(t, 1, store.count())
}

func TestRoomIsSymmetric(t *testing.T) {
	store := newFakeStore()
	g := newTestGateway(t, store, nil)
	u1 := login(t, g, "u1")
	u2 := login(t, g, "u2")

	require.NoError(t, send(t, g, u1, map[string]any{"event": "sendMessage", "receiverId": "u2", "message": "a"}))
	require.NoError(t, send(t, g, u2, map[string]any{"event": "sendMessage", "receiverId": "u1", "message": "b"}))

	assert.Len(t, store.rooms, 1)
	require.Len(t, store.messages, 2)
	assert.Equal(t, store.messages[0].RoomID, store.messages[1].RoomID)
}

func TestSendMessageValidation(t *testing.T) {
	store := newFakeStore()
	g := newTestGateway(t, store, nil)
	u1 := login(t, g, "u1")

	for _, f := range []map[string]any{
		{"event": "sendMessage", "message": "hi"},
		{"event": "sendMessage", "receiverId": "u2"},
		{"event": "sendMessage", "receiverId": "u2", "message": "   "},
	} {
		require.NoError(t, send(t, g, u1, f))
		assert.Len(t, only(drain(u1), EventError), 1)
	}
	assert.Zero(t, store.count())
}

func TestSendMessagePersistFailureSkipsFanOut(t *testing.T) {
	store := newFakeStore()
	store.failSave = true
	bus := events.NewBus(zap.NewNop())
	emitted := false
	events.On(bus, events.MessageSent, func(ctx context.Context, p events.MessageSentPayload) error {
		emitted = true
		return nil
	})
	g := newTestGateway(t, store, bus)
	u1 := login(t, g, "u1")
	u2 := login(t, g, "u2")

	require.NoError(t, send(t, g, u1, map[string]any{"event": "sendMessage", "receiverId": "u2", "message": "hi"}))

	assert.Len(t, only(drain(u1), EventError), 1)
	assert.Empty(t, only(drain(u2), EventMessage))
	bus.Wait()
	assert.False(t, emitted)
}

func TestFetchChatsPagesAndMarksRead(t *testing.T) {
	store := newFakeStore()
	g := newTestGateway(t, store, nil)
	u1 := login(t, g, "u1")
	u2 := login(t, g, "u2")

	for i := 0; i < 12; i++ {
		require.NoError(t, send(t, g, u1, map[string]any{"event": "sendMessage", "receiverId": "u2", "message": fmt.Sprintf("m%d", i)}))
	}
	drain(u2)

	require.NoError(t, send(t, g, u2, map[string]any{"event": "fetchChats", "receiverId": "u1"}))
	page := only(drain(u2), EventFetchChats)
	require.Len(t, page, 1)
	assert.Len(t, page[0]["data"], 10)

	require.NoError(t, send(t, g, u2, map[string]any{"event": "fetchChats", "receiverId": "u1", "page": 2}))
	page = only(drain(u2), EventFetchChats)
	require.Len(t, page, 1)
	assert.Len(t, page[0]["data"], 2)

	require.NoError(t, send(t, g, u2, map[string]any{"event": "unReadMessages", "receiverId": "u1"}))
	unread := only(drain(u2), EventUnreadMessages)
	require.Len(t, unread, 1)
	assert.EqualValues(t, 0, unread[0]["data"].(map[string]any)["count"])
}

func TestFetchChatsWithoutRoom(t *testing.T) {
	g := newTestGateway(t, newFakeStore(), nil)
	u1 := login(t, g, "u1")

	require.NoError(t, send(t, g, u1, map[string]any{"event": "fetchChats", "receiverId": "nobody"}))
	page := only(drain(u1), EventFetchChats)
	require.Len(t, page, 1)
	assert.Equal(t, []any{}, page[0]["data"])
}

func TestUnreadMessages(t *testing.T) {
	store := newFakeStore()
	g := newTestGateway(t, store, nil)
	u1 := login(t, g, "u1")
	u2 := login(t, g, "u2")

	require.NoError(t, send(t, g, u2, map[string]any{"event": "unReadMessages", "receiverId": "u1"}))
	assert.Len(t, only(drain(u2), EventNoUnreadMessages), 1)

	for i := 0; i < 3; i++ {
		require.NoError(t, send(t, g, u1, map[string]any{"event": "sendMessage", "receiverId": "u2", "message": "x"}))
	}
	drain(u2)

	require.NoError(t, send(t, g, u2, map[string]any{"event": "unReadMessages", "receiverId": "u1"}))
	unread := only(drain(u2), EventUnreadMessages)
	require.Len(t, unread, 1)
	data := unread[0]["data"].(map[string]any)
	assert.EqualValues(t, 3, data["count"])
	assert.Len(t, data["messages"], 3)

	// The sender has nothing unread in the same room.
	require.NoError(t, send(t, g, u1, map[string]any{"event": "unReadMessages", "receiverId": "u2"}))
	unread = only(drain(u1), EventUnreadMessages)
	require.Len(t, unread, 1)
	assert.EqualValues(t, 0, unread[0]["data"].(map[string]any)["count"])
}

func TestMessageList(t *testing.T) {
	store := newFakeStore()
	g := newTestGateway(t, store, nil)
	u1 := login(t, g, "u1")

	require.NoError(t, send(t, g, u1, map[string]any{"event": "messageList"}))
	list := only(drain(u1), EventMessageList)
	require.Len(t, list, 1)
	assert.Equal(t, []any{}, list[0]["data"])

	require.NoError(t, send(t, g, u1, map[string]any{"event": "sendMessage", "receiverId": "u2", "message": "first"}))
	require.NoError(t, send(t, g, u1, map[string]any{"event": "sendMessage", "receiverId": "u3", "message": "second"}))
	drain(u1)

	require.NoError(t, send(t, g, u1, map[string]any{"event": "messageList"}))
	list = only(drain(u1), EventMessageList)
	require.Len(t, list, 1)
	convs := list[0]["data"].([]any)
	require.Len(t, convs, 2)
	top := convs[0].(map[string]any)
	assert.Equal(t, "second", top["lastMessage"].(map[string]any)["message"])
	assert.Equal(t, "u3", top["user"].(map[string]any)["id"])
}

func TestOnlineUsersAndStatus(t *testing.T) {
	g := newTestGateway(t, newFakeStore(), nil)
	u1 := login(t, g, "u1")
	login(t, g, "u2")
	drain(u1)

	require.NoError(t, send(t, g, u1, map[string]any{"event": "onlineUsers"}))
	online := only(drain(u1), EventOnlineUsers)
	require.Len(t, online, 1)
	users := online[0]["data"].([]any)
	assert.Len(t, users, 2)

	anon := g.Open(&fakeTransport{})
	require.NoError(t, send(t, g, anon, map[string]any{"event": "getOnlineStatus", "userIds": []string{"u2", "u9"}}))
	status := only(drain(anon), EventOnlineStatus)
	require.Len(t, status, 1)
	assert.Equal(t, []any{
		map[string]any{"userId": "u2", "isOnline": true},
		map[string]any{"userId": "u9", "isOnline": false},
	}, status[0]["data"])

	require.NoError(t, send(t, g, anon, map[string]any{"event": "getOnlineStatus"}))
	assert.Len(t, only(drain(anon), EventError), 1)
}

func TestTypingRelaysAndExpires(t *testing.T) {
	g := newTestGateway(t, newFakeStore(), nil)
	u1 := login(t, g, "u1")
	u2 := login(t, g, "u2")
	drain(u1)

	require.NoError(t, send(t, g, u1, map[string]any{"event": "typing", "receiverId": "u2", "roomId": "r1", "isTyping": true}))
	typing := only(drain(u2), EventTypingStatus)
	require.Len(t, typing, 1)
	assert.Equal(t, map[string]any{"userId": "u1", "roomId": "r1", "isTyping": true}, typing[0]["data"])
	assert.Equal(t, []string{"u1"}, g.Presence().TypingUsers("r1"))

	expired := g.Presence().Sweep(time.Now().Add(4 * time.Second))
	require.Len(t, expired, 1)
	assert.Empty(t, g.Presence().TypingUsers("r1"))

	require.NoError(t, send(t, g, u1, map[string]any{"event": "typing", "roomId": "r1", "isTyping": true}))
	assert.Len(t, only(drain(u1), EventError), 1)
}

func TestTypingRequiresRoom(t *testing.T) {
	g := newTestGateway(t, newFakeStore(), nil)
	u1 := login(t, g, "u1")
	u2 := login(t, g, "u2")
	drain(u1)
	drain(u2)

	require.NoError(t, send(t, g, u1, map[string]any{"event": "typing", "receiverId": "u2", "isTyping": true}))
	errs := only(drain(u1), EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, "roomId is required", errs[0]["message"])
	assert.Empty(t, only(drain(u2), EventTypingStatus))
	assert.Empty(t, g.Presence().TypingUsers(""))
}

func TestCloseClearsTyping(t *testing.T) {
	g := newTestGateway(t, newFakeStore(), nil)
	u1 := login(t, g, "u1")
	require.NoError(t, send(t, g, u1, map[string]any{"event": "typing", "receiverId": "u2", "roomId": "r1", "isTyping": true}))

	g.Close(u1)
	assert.Empty(t, g.Presence().TypingUsers("r1"))
	_, open := <-u1.Send
	assert.False(t, open)
}

func TestHeartbeatTerminatesSilentConnections(t *testing.T) {
	g := newTestGateway(t, newFakeStore(), nil)
	tr := &fakeTransport{}
	c := g.Open(tr)

	g.Heartbeat()
	assert.Equal(t, 1, tr.pings)
	assert.False(t, tr.isClosed())

	c.markAlive()
	g.Heartbeat()
	assert.Equal(t, 2, tr.pings)
	assert.False(t, tr.isClosed())

	g.Heartbeat()
	assert.True(t, tr.isClosed())
}
