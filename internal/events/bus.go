package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Handler receives published events. Handlers run on the publishing
// goroutine and must not block.
type Handler func(Event)

// Bus fans published events out to registered handlers.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	byKind map[Kind]map[int]Handler
	all    map[int]Handler
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		byKind: make(map[Kind]map[int]Handler),
		all:    make(map[int]Handler),
	}
}

// Subscribe registers a handler for one event kind.
// The returned function removes the subscription.
func (b *Bus) Subscribe(kind Kind, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	if b.byKind[kind] == nil {
		b.byKind[kind] = make(map[int]Handler)
	}
	b.byKind[kind][id] = h

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.byKind[kind], id)
	}
}

// SubscribeAll registers a handler for every event kind.
func (b *Bus) SubscribeAll(h Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.all[id] = h

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.all, id)
	}
}

// Publish delivers an event to all matching handlers. A nil bus is a no-op
// so producers never need a conditional. ID and Time are filled when unset.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	if ev.ID == "" {
		ev.ID = newEventID()
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.byKind[ev.Kind])+len(b.all))
	for _, h := range b.byKind[ev.Kind] {
		handlers = append(handlers, h)
	}
	for _, h := range b.all {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}

// newEventID is a var so tests can pin IDs.
var newEventID = func() string { return uuid.NewString() }
