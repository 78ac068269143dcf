package reporting

import (
	"sync"
	"time"
)

// EventHandler is a function that processes events
type EventHandler func(Event)

// EventFilter is a function that determines if an event should be processed
type EventFilter func(Event) bool

// EventSubscription represents a subscription to events
type EventSubscription struct {
	ID      string
	Filter  EventFilter
	Handler EventHandler
	Channel chan Event
	Closed  bool
	mu      sync.RWMutex
}

// Close closes the subscription
func (s *EventSubscription) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.Closed {
		if s.Channel != nil {
			close(s.Channel)
		}
		s.Closed = true
	}
}

// IsClosed returns whether the subscription is closed
func (s *EventSubscription) IsClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Closed
}

// EventBus provides publish/subscribe functionality for events. Publish
// never blocks the caller: handler subscriptions run in their own
// goroutines and channel subscriptions drop events when full. The scheduler
// relies on this — notifier delivery is best-effort by contract.
type EventBus interface {
	// Publish publishes an event to all subscribers
	Publish(event Event)

	// Subscribe creates a subscription with a handler function
	Subscribe(filter EventFilter, handler EventHandler) *EventSubscription

	// SubscribeChannel creates a subscription with a channel
	SubscribeChannel(filter EventFilter, bufferSize int) *EventSubscription

	// Unsubscribe removes a subscription
	Unsubscribe(subscription *EventSubscription)

	// GetMetrics returns event bus metrics
	GetMetrics() EventBusMetrics

	// Close closes the event bus and all subscriptions
	Close()
}

// EventBusMetrics tracks event bus delivery counters
type EventBusMetrics struct {
	TotalSubscriptions  int
	ActiveSubscriptions int
	EventsPublished     int64
	EventsDelivered     int64
	EventsDropped       int64
	LastEventTime       time.Time
	EventsByType        map[EventType]int64
}

// DefaultEventBus is the default implementation of EventBus
type DefaultEventBus struct {
	subscriptions map[string]*EventSubscription
	metrics       EventBusMetrics
	mu            sync.RWMutex
	closed        bool
}

// NewEventBus creates a new event bus
func NewEventBus() EventBus {
	return &DefaultEventBus{
		subscriptions: make(map[string]*EventSubscription),
		metrics: EventBusMetrics{
			EventsByType: make(map[EventType]int64),
		},
	}
}

// Publish publishes an event to all subscribers
func (eb *DefaultEventBus) Publish(event Event) {
	eb.mu.RLock()
	if eb.closed {
		eb.mu.RUnlock()
		return
	}

	// Copy subscriptions so delivery happens without holding the lock
	subscriptionsCopy := make(map[string]*EventSubscription, len(eb.subscriptions))
	for k, v := range eb.subscriptions {
		subscriptionsCopy[k] = v
	}
	eb.mu.RUnlock()

	delivered := 0
	dropped := 0

	for subID, subscription := range subscriptionsCopy {
		if subscription.IsClosed() {
			// Clean up closed subscriptions
			eb.mu.Lock()
			delete(eb.subscriptions, subID)
			eb.metrics.ActiveSubscriptions--
			eb.mu.Unlock()
			continue
		}

		if subscription.Filter != nil && !subscription.Filter(event) {
			continue
		}

		if subscription.Handler != nil {
			go func(handler EventHandler, evt Event) {
				defer func() {
					// A panicking handler must not take down the bus.
					_ = recover()
				}()
				handler(evt)
			}(subscription.Handler, event)
			delivered++
		}

		if subscription.Channel != nil {
			select {
			case subscription.Channel <- event:
				delivered++
			default:
				// Channel is full; drop rather than block the publisher.
				dropped++
			}
		}
	}

	eb.mu.Lock()
	eb.metrics.EventsPublished++
	eb.metrics.EventsByType[event.Type()]++
	eb.metrics.LastEventTime = event.Timestamp()
	eb.metrics.EventsDelivered += int64(delivered)
	eb.metrics.EventsDropped += int64(dropped)
	eb.mu.Unlock()
}

// Subscribe creates a subscription with a handler function
func (eb *DefaultEventBus) Subscribe(filter EventFilter, handler EventHandler) *EventSubscription {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return nil
	}

	subscription := &EventSubscription{
		ID:      GenerateCorrelationID() + "_sub",
		Filter:  filter,
		Handler: handler,
	}

	eb.subscriptions[subscription.ID] = subscription
	eb.metrics.TotalSubscriptions++
	eb.metrics.ActiveSubscriptions++

	return subscription
}

// SubscribeChannel creates a subscription with a channel
func (eb *DefaultEventBus) SubscribeChannel(filter EventFilter, bufferSize int) *EventSubscription {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return nil
	}

	subscription := &EventSubscription{
		ID:      GenerateCorrelationID() + "_sub",
		Filter:  filter,
		Channel: make(chan Event, bufferSize),
	}

	eb.subscriptions[subscription.ID] = subscription
	eb.metrics.TotalSubscriptions++
	eb.metrics.ActiveSubscriptions++

	return subscription
}

// Unsubscribe removes a subscription
func (eb *DefaultEventBus) Unsubscribe(subscription *EventSubscription) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if _, exists := eb.subscriptions[subscription.ID]; exists {
		subscription.Close()
		delete(eb.subscriptions, subscription.ID)
		eb.metrics.ActiveSubscriptions--
	}
}

// GetMetrics returns event bus metrics
func (eb *DefaultEventBus) GetMetrics() EventBusMetrics {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	metrics := eb.metrics
	metrics.EventsByType = make(map[EventType]int64, len(eb.metrics.EventsByType))
	for k, v := range eb.metrics.EventsByType {
		metrics.EventsByType[k] = v
	}
	return metrics
}

// Close closes the event bus and all subscriptions
func (eb *DefaultEventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.closed = true
	for _, subscription := range eb.subscriptions {
		subscription.Close()
	}
	eb.subscriptions = make(map[string]*EventSubscription)
	eb.metrics.ActiveSubscriptions = 0
}

// Common event filters

// FilterByType creates a filter that matches events of specific types
func FilterByType(eventTypes ...EventType) EventFilter {
	typeMap := make(map[EventType]bool)
	for _, t := range eventTypes {
		typeMap[t] = true
	}

	return func(event Event) bool {
		return typeMap[event.Type()]
	}
}

// FilterBySource creates a filter that matches events from specific sources
func FilterBySource(sources ...string) EventFilter {
	sourceMap := make(map[string]bool)
	for _, s := range sources {
		sourceMap[s] = true
	}

	return func(event Event) bool {
		return sourceMap[event.Source()]
	}
}

// FilterBySeverity creates a filter that matches events with minimum severity
func FilterBySeverity(minSeverity EventSeverity) EventFilter {
	severityLevels := map[EventSeverity]int{
		SeverityDebug: 0,
		SeverityInfo:  1,
		SeverityWarn:  2,
		SeverityError: 3,
	}

	minLevel := severityLevels[minSeverity]

	return func(event Event) bool {
		eventLevel, exists := severityLevels[event.Severity()]
		return exists && eventLevel >= minLevel
	}
}

// CombineFilters combines multiple filters with AND logic
func CombineFilters(filters ...EventFilter) EventFilter {
	return func(event Event) bool {
		for _, filter := range filters {
			if !filter(event) {
				return false
			}
		}
		return true
	}
}
