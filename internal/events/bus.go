package events

import (
	"sync"
	"time"
)

// EventType identifies a class of bot lifecycle event.
type EventType string

const (
	EventStartBot       EventType = "START_BOT"
	EventStopBot        EventType = "STOP_BOT"
	EventOrderFilled    EventType = "ORDER_FILLED"
	EventOrderCancelled EventType = "ORDER_CANCELLED"
)

// Event is a single published occurrence. Reason carries the human-readable
// cause for STOP_BOT; Payload carries event-specific data (e.g. an order).
type Event struct {
	Type      EventType
	BotID     int64
	Reason    string
	Payload   interface{}
	Timestamp time.Time
}

// Handler consumes a published event.
type Handler func(Event)

// Bus is a small in-process pub/sub used to decouple the strategy from the
// notification sink and the bot supervisor. Publish never blocks the caller:
// each handler runs on its own goroutine.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Handler
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[EventType][]Handler),
	}
}

// Subscribe registers a handler for an event type.
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish delivers the event to every subscriber asynchronously.
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	handlers := make([]Handler, len(b.subscribers[event.Type]))
	copy(handlers, b.subscribers[event.Type])
	b.mu.RUnlock()

	for _, handler := range handlers {
		go handler(event)
	}
}

// PublishSync delivers the event to every subscriber on the calling
// goroutine, in subscription order, for callers (the tests) that need
// delivery to complete before proceeding.
func (b *Bus) PublishSync(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	handlers := make([]Handler, len(b.subscribers[event.Type]))
	copy(handlers, b.subscribers[event.Type])
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
}
