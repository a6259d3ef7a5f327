package ws

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TypingEntry records that UserID is typing in RoomID.
type TypingEntry struct {
	UserID    string
	RoomID    string
	StartedAt time.Time
}

type typingKey struct {
	userID, roomID string
}

// Presence answers who is online and who is typing, and fans frames out
// to live connections. State is process local and starts empty.
type Presence struct {
	registry *Registry
	timeout  time.Duration
	now      func() time.Time
	logger   *zap.Logger

	mu     sync.Mutex
	typing map[typingKey]time.Time
}

func NewPresence(registry *Registry, typingTimeout time.Duration, logger *zap.Logger) *Presence {
	return &Presence{
		registry: registry,
		timeout:  typingTimeout,
		now:      time.Now,
		logger:   logger,
		typing:   make(map[typingKey]time.Time),
	}
}

func (p *Presence) IsOnline(userID string) bool { return p.registry.IsOnline(userID) }

func (p *Presence) OnlineCount() int { return p.registry.OnlineCount() }

func (p *Presence) OnlineUserIDs() []string { return p.registry.OnlineUserIDs() }

// SendToUser queues frame on every connection of userID and reports whether
// at least one accepted it.
func (p *Presence) SendToUser(userID string, frame any) bool {
	data, err := json.Marshal(frame)
	if err != nil {
		p.logger.Error("encode frame", zap.Error(err))
		return false
	}
	delivered := false
	for _, c := range p.registry.UserConns(userID) {
		if c.queue(data) {
			delivered = true
		} else {
			p.logger.Warn("send buffer full, frame dropped", zap.String("user_id", userID), zap.Uint64("conn", c.ID))
		}
	}
	return delivered
}

// Broadcast queues frame on every live connection.
func (p *Presence) Broadcast(frame any) {
	data, err := json.Marshal(frame)
	if err != nil {
		p.logger.Error("encode frame", zap.Error(err))
		return
	}
	for _, c := range p.registry.All() {
		if !c.queue(data) {
			p.logger.Warn("send buffer full, broadcast dropped", zap.Uint64("conn", c.ID))
		}
	}
}

// BroadcastStatus tells every connection that userID went online or offline.
func (p *Presence) BroadcastStatus(userID string, online bool) {
	p.Broadcast(userStatusFrame(userID, online, p.now()))
}

func (p *Presence) SetTyping(userID, roomID string) {
	p.mu.Lock()
	p.typing[typingKey{userID, roomID}] = p.now()
	p.mu.Unlock()
}

func (p *Presence) ClearTyping(userID, roomID string) {
	p.mu.Lock()
	delete(p.typing, typingKey{userID, roomID})
	p.mu.Unlock()
}

// ClearUser drops every typing entry of userID.
func (p *Presence) ClearUser(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k := range p.typing {
		if k.userID == userID {
			delete(p.typing, k)
		}
	}
}

// TypingUsers lists who is typing in roomID, sorted by user id. Entries past
// the timeout are left out even before the next Sweep.
func (p *Presence) TypingUsers(roomID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	var out []string
	for k, at := range p.typing {
		if k.roomID == roomID && now.Sub(at) <= p.timeout {
			out = append(out, k.userID)
		}
	}
	sort.Strings(out)
	return out
}

// Sweep removes typing entries older than the timeout and returns them.
func (p *Presence) Sweep(now time.Time) []TypingEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	var expired []TypingEntry
	for k, at := range p.typing {
		if now.Sub(at) > p.timeout {
			delete(p.typing, k)
			expired = append(expired, TypingEntry{UserID: k.userID, RoomID: k.roomID, StartedAt: at})
		}
	}
	return expired
}
