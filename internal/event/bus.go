// Package event provides a pub/sub event bus for the server using watermill.
package event

import (
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Type identifies the kind of event.
type Type string

const (
	SessionUpdated     Type = "session.updated"
	SessionRecovered   Type = "session.recovered"
	StreamUpdated      Type = "stream.updated"
	PermissionRequired Type = "permission.required"
	PermissionResolved Type = "permission.resolved"
)

// Event carries a typed payload to subscribers.
type Event struct {
	Type Type `json:"type"`
	Data any  `json:"data"`
}

// Subscriber is a function that receives events.
type Subscriber func(event Event)

type subscriberEntry struct {
	id uint64
	fn Subscriber
}

// Bus fans events out to subscribers. It rides on watermill's gochannel for
// infrastructure while keeping direct calls so payloads stay typed.
type Bus struct {
	mu sync.RWMutex

	pubsub *gochannel.GoChannel

	subscribers map[Type][]subscriberEntry
	global      []subscriberEntry

	nextID uint64
	closed bool
}

var globalBus = NewBus()

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 100},
			watermill.NopLogger{},
		),
		subscribers: make(map[Type][]subscriberEntry),
	}
}

// Subscribe registers a subscriber for one event type on the global bus.
// Returns an unsubscribe function.
func Subscribe(eventType Type, fn Subscriber) func() {
	return globalBus.Subscribe(eventType, fn)
}

func (b *Bus) Subscribe(eventType Type, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	entry := subscriberEntry{id: atomic.AddUint64(&b.nextID, 1), fn: fn}
	b.subscribers[eventType] = append(b.subscribers[eventType], entry)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subscribers[eventType]
		for i, e := range subs {
			if e.id == entry.id {
				b.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
}

// SubscribeAll registers a subscriber for every event on the global bus.
func SubscribeAll(fn Subscriber) func() {
	return globalBus.SubscribeAll(fn)
}

func (b *Bus) SubscribeAll(fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	entry := subscriberEntry{id: atomic.AddUint64(&b.nextID, 1), fn: fn}
	b.global = append(b.global, entry)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, e := range b.global {
			if e.id == entry.id {
				b.global = append(b.global[:i], b.global[i+1:]...)
				break
			}
		}
	}
}

// Publish delivers an event asynchronously; each subscriber runs in its own
// goroutine so a slow consumer cannot block a store mutation.
func Publish(event Event) {
	globalBus.Publish(event)
}

func (b *Bus) Publish(event Event) {
	for _, sub := range b.collect(event.Type) {
		go sub(event)
	}
}

// PublishSync delivers an event to all subscribers before returning.
func PublishSync(event Event) {
	globalBus.PublishSync(event)
}

func (b *Bus) PublishSync(event Event) {
	for _, sub := range b.collect(event.Type) {
		sub(event)
	}
}

func (b *Bus) collect(eventType Type) []Subscriber {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil
	}

	subs := make([]Subscriber, 0, len(b.subscribers[eventType])+len(b.global))
	for _, entry := range b.subscribers[eventType] {
		subs = append(subs, entry.fn)
	}
	for _, entry := range b.global {
		subs = append(subs, entry.fn)
	}
	return subs
}

// Close shuts the bus down and drops all subscribers.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.subscribers = make(map[Type][]subscriberEntry)
	b.global = nil
	b.mu.Unlock()

	return b.pubsub.Close()
}

// Reset replaces the global bus (for testing).
func Reset() {
	_ = globalBus.Close()
	globalBus = NewBus()
}
