package ws

import "sync"

// Registry maps users to their live connections. A user is online while at
// least one authenticated connection is registered for them.
type Registry struct {
	mu    sync.RWMutex
	conns map[*Conn]struct{}
	// userID -> conns (one user can have multiple devices)
	byUser map[string]map[*Conn]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[*Conn]struct{}),
		byUser: make(map[string]map[*Conn]struct{}),
	}
}

// Add tracks a connection that has not authenticated yet.
func (r *Registry) Add(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c] = struct{}{}
}

// Bind attaches c to userID. first reports whether userID had no other
// connection. When c was bound to someone else, prev names them and
// prevGone reports whether that was their last connection.
func (r *Registry) Bind(c *Conn, userID, role string) (first bool, prev string, prevGone bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c] = struct{}{}
	prev = c.UserID()
	if prev == userID {
		return false, "", false
	}
	if prev != "" {
		prevGone = r.unbindLocked(c, prev)
	}
	set := r.byUser[userID]
	if set == nil {
		set = make(map[*Conn]struct{})
		r.byUser[userID] = set
	}
	first = len(set) == 0
	set[c] = struct{}{}
	c.setUser(userID, role)
	return first, prev, prevGone
}

// Remove forgets c. last reports whether c was its user's final connection.
func (r *Registry) Remove(c *Conn) (userID string, last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, c)
	userID = c.UserID()
	if userID == "" {
		return "", false
	}
	return userID, r.unbindLocked(c, userID)
}

func (r *Registry) unbindLocked(c *Conn, userID string) bool {
	set := r.byUser[userID]
	if set == nil {
		return false
	}
	if _, ok := set[c]; !ok {
		return false
	}
	delete(set, c)
	if len(set) == 0 {
		delete(r.byUser, userID)
		return true
	}
	return false
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

func (r *Registry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

func (r *Registry) OnlineUserIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.byUser))
	for id := range r.byUser {
		ids = append(ids, id)
	}
	return ids
}

func (r *Registry) UserConns(userID string) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.byUser[userID]
	out := make([]*Conn, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

func (r *Registry) All() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Conn, 0, len(r.conns))
	for c := range r.conns {
		out = append(out, c)
	}
	return out
}

func (r *Registry) ConnCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
