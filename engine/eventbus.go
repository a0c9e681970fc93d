package engine

import (
	"sync"
	"time"
)

// SubscriberID identifies a registered event handler.
type SubscriberID int

type subscriber struct {
	fn    func(Event)
	types map[EventType]bool // nil = all
}

// EventBus fans engine events out to subscribers. Emit calls handlers
// synchronously on the caller's goroutine, so handlers must not block.
type EventBus struct {
	mu   sync.RWMutex
	subs map[SubscriberID]subscriber
	next SubscriberID
}

// NewEventBus creates an empty event bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[SubscriberID]subscriber)}
}

// Subscribe registers fn for every event.
func (b *EventBus) Subscribe(fn func(Event)) SubscriberID {
	return b.add(subscriber{fn: fn})
}

// SubscribeTypes registers fn for the listed event types only.
func (b *EventBus) SubscribeTypes(fn func(Event), types ...EventType) SubscriberID {
	set := make(map[EventType]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return b.add(subscriber{fn: fn, types: set})
}

func (b *EventBus) add(s subscriber) SubscriberID {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	b.subs[b.next] = s
	return b.next
}

// Unsubscribe removes a handler. Unknown ids are ignored.
func (b *EventBus) Unsubscribe(id SubscriberID) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

// Emit stamps ev when it has no timestamp and delivers it to matching subscribers.
func (b *EventBus) Emit(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.RLock()
	fns := make([]func(Event), 0, len(b.subs))
	for _, s := range b.subs {
		if s.types == nil || s.types[ev.Type] {
			fns = append(fns, s.fn)
		}
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}
