package bus

import (
	"sync"
	"time"
)

// Bus is an in-process publish/subscribe event bus. Callbacks for an event
// kind run synchronously in registration order; a panicking callback never
// prevents the remaining callbacks from running.
type Bus struct {
	mu   sync.RWMutex
	subs map[string][]*Subscription
	next int
}

// Subscription identifies a single registered callback.
type Subscription struct {
	bus  *Bus
	kind string
	id   int
	fn   func(Event)
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		subs: make(map[string][]*Subscription),
	}
}

// On registers a callback for an event kind. The same callback may be
// registered more than once; each registration is retained and invoked.
func (b *Bus) On(kind string, fn func(Event)) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &Subscription{bus: b, kind: kind, id: b.next, fn: fn}
	b.next++
	b.subs[kind] = append(b.subs[kind], sub)
	return sub
}

// Off removes this registration. Other registrations of the same callback
// are unaffected. Safe to call more than once.
func (s *Subscription) Off() {
	if s == nil || s.bus == nil {
		return
	}
	b := s.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[s.kind]
	for i, sub := range list {
		if sub.id == s.id {
			b.subs[s.kind] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
}

// Emit invokes every callback registered for evt.Kind, in registration
// order, on the caller's goroutine.
func (b *Bus) Emit(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	b.mu.RLock()
	list := make([]*Subscription, len(b.subs[evt.Kind]))
	copy(list, b.subs[evt.Kind])
	b.mu.RUnlock()

	for _, sub := range list {
		invoke(sub.fn, evt)
	}
}

// invoke isolates a single callback so one panic cannot take down the
// emitter or the callbacks registered after it.
func invoke(fn func(Event), evt Event) {
	defer func() {
		_ = recover()
	}()
	fn(evt)
}
