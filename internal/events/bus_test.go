package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPublishDeliversToSubscribers checks async delivery to every handler of
// the matching type, and only those.
func TestPublishDeliversToSubscribers(t *testing.T) {
	bus := NewBus()

	var mu sync.Mutex
	var received []Event
	bus.Subscribe(EventStopBot, func(event Event) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, event)
	})
	bus.Subscribe(EventOrderFilled, func(event Event) {
		t.Error("order-filled handler must not see stop events")
	})

	bus.Publish(Event{Type: EventStopBot, BotID: 7, Reason: "test stop"})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, int64(7), received[0].BotID)
	assert.Equal(t, "test stop", received[0].Reason)
	assert.False(t, received[0].Timestamp.IsZero())
}

// TestPublishSyncRunsInOrder checks synchronous ordered delivery.
func TestPublishSyncRunsInOrder(t *testing.T) {
	bus := NewBus()

	var order []int
	bus.Subscribe(EventStartBot, func(Event) { order = append(order, 1) })
	bus.Subscribe(EventStartBot, func(Event) { order = append(order, 2) })

	bus.PublishSync(Event{Type: EventStartBot})

	assert.Equal(t, []int{1, 2}, order)
}

// TestPublishWithoutSubscribersIsHarmless guards the zero-subscriber path.
func TestPublishWithoutSubscribersIsHarmless(t *testing.T) {
	bus := NewBus()
	assert.NotPanics(t, func() {
		bus.Publish(Event{Type: EventOrderCancelled})
		bus.PublishSync(Event{Type: EventOrderCancelled})
	})
}
