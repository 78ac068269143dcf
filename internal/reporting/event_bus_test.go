package reporting

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus_PublishToHandler(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	var mu sync.Mutex
	var received []Event
	done := make(chan struct{}, 1)

	sub := bus.Subscribe(nil, func(e Event) {
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
		done <- struct{}{}
	})
	require.NotNil(t, sub)

	bus.Publish(NewSystemEvent("scheduler", "startup", ""))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not invoked")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, EventTypeSystemStartup, received[0].Type())
}

func TestEventBus_ChannelSubscriptionDropsWhenFull(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	sub := bus.SubscribeChannel(nil, 1)
	require.NotNil(t, sub)

	// Two publishes into a buffer of one: the second is dropped, and the
	// publisher never blocks.
	bus.Publish(NewSystemEvent("scheduler", "startup", "first"))
	bus.Publish(NewSystemEvent("scheduler", "startup", "second"))

	metrics := bus.GetMetrics()
	assert.Equal(t, int64(2), metrics.EventsPublished)
	assert.Equal(t, int64(1), metrics.EventsDropped)
}

func TestEventBus_FilterByType(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	sub := bus.SubscribeChannel(FilterByType(EventTypeTestFailed), 8)
	require.NotNil(t, sub)

	bus.Publish(NewTestResultEvent("t1", "", "", "Completed", "", 0, nil))
	bus.Publish(NewTestResultEvent("t2", "", "", "Failed", "ProvisioningFailed", 0, nil))

	select {
	case e := <-sub.Channel:
		assert.Equal(t, EventTypeTestFailed, e.Type())
		assert.Equal(t, "t2", e.Source())
	case <-time.After(time.Second):
		t.Fatal("expected a filtered event")
	}
	assert.Empty(t, sub.Channel)
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	sub := bus.SubscribeChannel(nil, 8)
	bus.Unsubscribe(sub)
	assert.True(t, sub.IsClosed())

	bus.Publish(NewSystemEvent("scheduler", "startup", ""))
	assert.Equal(t, int64(0), bus.GetMetrics().EventsDelivered)
}

func TestEventBus_ClosedBusIgnoresPublish(t *testing.T) {
	bus := NewEventBus()
	sub := bus.SubscribeChannel(nil, 8)
	bus.Close()

	bus.Publish(NewSystemEvent("scheduler", "shutdown", ""))

	assert.True(t, sub.IsClosed())
	assert.Nil(t, bus.Subscribe(nil, func(Event) {}))
}

func TestFilterBySeverity(t *testing.T) {
	filter := FilterBySeverity(SeverityWarn)

	assert.False(t, filter(NewSystemEvent("scheduler", "startup", "")))
	assert.True(t, filter(NewTestResultEvent("t1", "", "", "Failed", "", 0, nil)))
	assert.True(t, filter(NewTestResultEvent("t2", "", "", "Skipped", "", 0, nil)))
}

func TestCombineFilters(t *testing.T) {
	filter := CombineFilters(
		FilterByType(EventTypeTestFailed, EventTypeTestCompleted),
		FilterBySource("t1"),
	)

	assert.True(t, filter(NewTestResultEvent("t1", "", "", "Failed", "", 0, nil)))
	assert.False(t, filter(NewTestResultEvent("t2", "", "", "Failed", "", 0, nil)))
	assert.False(t, filter(NewSystemEvent("t1", "startup", "")))
}
