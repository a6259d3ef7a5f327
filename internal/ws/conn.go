package ws

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is the part of a websocket connection the gateway drives
// outside the write pump. *websocket.Conn satisfies it.
type Transport interface {
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

var connSeq atomic.Uint64

// Conn is one client socket. It may be authenticated (bound to a user) or
// not; unauthenticated connections still receive global broadcasts.
type Conn struct {
	ID   uint64
	Send chan []byte

	transport Transport
	alive     atomic.Bool

	mu     sync.Mutex
	userID string
	role   string
	closed bool
}

func NewConn(transport Transport, buffer int) *Conn {
	if buffer <= 0 {
		buffer = 256
	}
	c := &Conn{
		ID:        connSeq.Add(1),
		Send:      make(chan []byte, buffer),
		transport: transport,
	}
	c.alive.Store(true)
	return c
}

func (c *Conn) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

func (c *Conn) setUser(userID, role string) {
	c.mu.Lock()
	c.userID = userID
	c.role = role
	c.mu.Unlock()
}

// queue puts data on the send buffer without blocking. It reports false
// when the buffer is full or the connection is closed.
func (c *Conn) queue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// SendJSON encodes v and queues it.
func (c *Conn) SendJSON(v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		return false
	}
	return c.queue(data)
}

// markAlive is called from the pong handler.
func (c *Conn) markAlive() {
	c.alive.Store(true)
}

// checkAlive clears the alive flag and reports its previous value.
func (c *Conn) checkAlive() bool {
	return c.alive.Swap(false)
}

func (c *Conn) ping(timeout time.Duration) error {
	if c.transport == nil {
		return nil
	}
	return c.transport.WriteControl(websocket.PingMessage, nil, time.Now().Add(timeout))
}

// terminate drops the underlying socket; the read loop then fails and runs
// the normal close path.
func (c *Conn) terminate() {
	if c.transport != nil {
		_ = c.transport.Close()
	}
}

// close stops the send buffer. It is safe to call more than once.
func (c *Conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}
