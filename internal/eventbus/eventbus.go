// Package eventbus implements the domain event bus: typed publish/
// subscribe with synchronous fan-out, plus a durable append-log wrapper.
//
// Handlers are registered per concrete event Go type rather than a
// string-keyed event name, so a subscriber's function signature pins down
// exactly which event fields it can see.
package eventbus

import (
	"fmt"
	"log"
	"reflect"
	"sync"

	"github.com/reelkeep/reelkeep/internal/models"
)

// Handler processes one concrete event type. Handlers are invoked
// synchronously, in subscription order, from the publisher's goroutine.
type Handler func(event models.DomainEvent) error

// registration pairs a handler with the identity key used to keep
// Subscribe idempotent.
type registration struct {
	fn  Handler
	key uintptr
}

// Bus is an in-memory, typed publish/subscribe dispatcher.
type Bus struct {
	mu       sync.RWMutex
	handlers map[reflect.Type][]registration
}

// New creates an empty in-memory event bus.
func New() *Bus {
	return &Bus{handlers: make(map[reflect.Type][]registration)}
}

// Subscribe registers handler for every event whose concrete type matches
// sample's concrete type. Subscribe is idempotent: registering the same
// function for the same event type twice keeps a single registration at
// its original position. Handler identity is the function's code pointer,
// so two closures over the same body count as one handler — a subscriber
// that needs per-instance fan-out should dispatch internally.
func (b *Bus) Subscribe(sample models.DomainEvent, handler Handler) {
	t := reflect.TypeOf(sample)
	key := reflect.ValueOf(handler).Pointer()
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, reg := range b.handlers[t] {
		if reg.key == key {
			return
		}
	}
	b.handlers[t] = append(b.handlers[t], registration{fn: handler, key: key})
}

// Publish dispatches event synchronously to every handler registered for its
// concrete type. A handler error is logged but never aborts dispatch to the
// remaining handlers.
func (b *Bus) Publish(event models.DomainEvent) error {
	t := reflect.TypeOf(event)
	b.mu.RLock()
	regs := append([]registration(nil), b.handlers[t]...)
	b.mu.RUnlock()

	for _, reg := range regs {
		if err := reg.fn(event); err != nil {
			log.Printf("eventbus: handler error for %s (correlation %s): %v",
				event.EventType(), event.CorrelationID(), err)
		}
	}
	return nil
}

// Store is the durable append-log a PersistentBus writes to before dispatch.
// Implementations assign a monotonically increasing ID on Append.
type Store interface {
	Append(event models.DomainEvent) (id int64, err error)
}

// PersistentBus wraps an in-memory Bus and appends every event to a durable
// Store before dispatching it in-memory, so the append and the dispatch are
// atomic at the caller boundary: if Append fails, Publish returns the error
// and no handler runs. In-memory dispatch failures (logged per handler inside
// Bus.Publish) never roll back the append — the event is already durable by
// the time dispatch starts.
type PersistentBus struct {
	inner *Bus
	store Store
}

// NewPersistent wraps inner with durable append-before-dispatch semantics.
func NewPersistent(inner *Bus, store Store) *PersistentBus {
	return &PersistentBus{inner: inner, store: store}
}

func (p *PersistentBus) Subscribe(sample models.DomainEvent, handler Handler) {
	p.inner.Subscribe(sample, handler)
}

func (p *PersistentBus) Publish(event models.DomainEvent) error {
	if _, err := p.store.Append(event); err != nil {
		return fmt.Errorf("append event %s: %w", event.EventType(), err)
	}
	return p.inner.Publish(event)
}
