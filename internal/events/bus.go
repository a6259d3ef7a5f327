package events

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

const DefaultMaxListeners = 20

// Listener handles one event payload. A returned error is logged; it never
// reaches the emitter or the other listeners.
type Listener[P any] func(ctx context.Context, payload P) error

type ListenerID uint64

type entry struct {
	id   ListenerID
	once bool
	fn   func(ctx context.Context, payload any) error
}

// Bus is the in-process publish/subscribe hub for domain events.
type Bus struct {
	mu           sync.Mutex
	listeners    map[Name][]entry
	nextID       ListenerID
	maxListeners int
	logger       *zap.Logger
	inflight     sync.WaitGroup
}

func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		listeners:    make(map[Name][]entry),
		maxListeners: DefaultMaxListeners,
		logger:       logger.Named("events"),
	}
}

// SetMaxListeners changes the per-event count above which registration warns.
func (b *Bus) SetMaxListeners(n int) {
	b.mu.Lock()
	b.maxListeners = n
	b.mu.Unlock()
}

// On registers fn for every emission of ev.
func On[P any](b *Bus, ev Event[P], fn Listener[P]) ListenerID {
	return b.add(ev.name, false, wrap(fn))
}

// Once registers fn for the next emission of ev only.
func Once[P any](b *Bus, ev Event[P], fn Listener[P]) ListenerID {
	return b.add(ev.name, true, wrap(fn))
}

// Emit hands payload to the listeners of ev in registration order on a
// background goroutine and returns immediately. Cancelling ctx after Emit
// returns does not cancel the listeners.
func Emit[P any](b *Bus, ctx context.Context, ev Event[P], payload P) {
	b.dispatch(ctx, ev.name, payload)
}

func wrap[P any](fn Listener[P]) func(context.Context, any) error {
	return func(ctx context.Context, payload any) error {
		return fn(ctx, payload.(P))
	}
}

func (b *Bus) add(name Name, once bool, fn func(context.Context, any) error) ListenerID {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.listeners[name] = append(b.listeners[name], entry{id: id, once: once, fn: fn})
	if n := len(b.listeners[name]); b.maxListeners > 0 && n > b.maxListeners {
		b.logger.Warn("possible listener leak",
			zap.String("event", string(name)),
			zap.Int("listeners", n),
			zap.Int("max", b.maxListeners))
	}
	return id
}

// Off removes a listener. It reports whether the id was registered.
func (b *Bus) Off(id ListenerID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for name, list := range b.listeners {
		for i, e := range list {
			if e.id == id {
				b.listeners[name] = append(list[:i:i], list[i+1:]...)
				return true
			}
		}
	}
	return false
}

// ListenerCount returns the number of listeners registered for name.
func (b *Bus) ListenerCount(name Name) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners[name])
}

func (b *Bus) dispatch(ctx context.Context, name Name, payload any) {
	b.mu.Lock()
	list := b.listeners[name]
	if len(list) == 0 {
		b.mu.Unlock()
		return
	}
	snapshot := make([]entry, len(list))
	copy(snapshot, list)
	kept := list[:0:0]
	for _, e := range list {
		if !e.once {
			kept = append(kept, e)
		}
	}
	b.listeners[name] = kept
	b.inflight.Add(1)
	b.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	go func() {
		defer b.inflight.Done()
		for _, e := range snapshot {
			b.invoke(ctx, name, e, payload)
		}
	}()
}

func (b *Bus) invoke(ctx context.Context, name Name, e entry, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("listener panicked",
				zap.String("event", string(name)),
				zap.Uint64("listener", uint64(e.id)),
				zap.Error(fmt.Errorf("%v", r)))
		}
	}()
	if err := e.fn(ctx, payload); err != nil {
		b.logger.Error("listener failed",
			zap.String("event", string(name)),
			zap.Uint64("listener", uint64(e.id)),
			zap.Error(err))
	}
}

// Wait blocks until every emission dispatched so far has run its listeners.
func (b *Bus) Wait() {
	b.inflight.Wait()
}
