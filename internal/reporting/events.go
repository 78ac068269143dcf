package reporting

import (
	"fmt"
	"time"
)

// EventType defines the type of event
type EventType string

const (
	// Environment lifecycle events
	EventTypeEnvironmentState EventType = "environment.state_changed"

	// Test outcome events
	EventTypeTestCompleted EventType = "test.completed"
	EventTypeTestSkipped   EventType = "test.skipped"
	EventTypeTestFailed    EventType = "test.failed"
	EventTypeTestCancelled EventType = "test.cancelled"

	// System events
	EventTypeSystemStartup  EventType = "system.startup"
	EventTypeSystemShutdown EventType = "system.shutdown"
)

// EventSeverity indicates the importance/severity of an event
type EventSeverity string

const (
	SeverityDebug EventSeverity = "debug"
	SeverityInfo  EventSeverity = "info"
	SeverityWarn  EventSeverity = "warn"
	SeverityError EventSeverity = "error"
)

// Event is the base interface for all events in the system
type Event interface {
	// Type returns the event type
	Type() EventType

	// Source returns the component that generated this event
	Source() string

	// Timestamp returns when the event occurred
	Timestamp() time.Time

	// Severity returns the event severity
	Severity() EventSeverity

	// CorrelationID returns the correlation ID for tracing related events
	CorrelationID() string

	// String returns a human-readable description of the event
	String() string
}

// BaseEvent provides common event functionality
type BaseEvent struct {
	EventType     EventType     `json:"type"`
	SourceLabel   string        `json:"source"`
	EventTime     time.Time     `json:"timestamp"`
	EventSeverity EventSeverity `json:"severity"`
	CorrelationId string        `json:"correlation_id"`
}

// Type implements Event interface
func (e BaseEvent) Type() EventType {
	return e.EventType
}

// Source implements Event interface
func (e BaseEvent) Source() string {
	return e.SourceLabel
}

// Timestamp implements Event interface
func (e BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// Severity implements Event interface
func (e BaseEvent) Severity() EventSeverity {
	return e.EventSeverity
}

// CorrelationID implements Event interface
func (e BaseEvent) CorrelationID() string {
	return e.CorrelationId
}

// String implements Event interface
func (e BaseEvent) String() string {
	return string(e.EventType) + " from " + e.SourceLabel
}

// EnvironmentStateEvent represents an environment lifecycle state change.
// States are carried as strings so the reporting layer stays decoupled from
// the lifecycle package.
type EnvironmentStateEvent struct {
	BaseEvent
	EnvironmentID string `json:"environment_id"`
	Platform      string `json:"platform"`
	OldState      string `json:"old_state"`
	NewState      string `json:"new_state"`
	Error         error  `json:"error,omitempty"`
}

// String returns a human-readable description
func (e EnvironmentStateEvent) String() string {
	if e.Error != nil {
		return e.EnvironmentID + " (" + e.Platform + ") " + e.OldState + " -> " + e.NewState + " (error: " + e.Error.Error() + ")"
	}
	return e.EnvironmentID + " (" + e.Platform + ") " + e.OldState + " -> " + e.NewState
}

// TestResultEvent represents a test reaching a terminal outcome.
type TestResultEvent struct {
	BaseEvent
	TestID        string        `json:"test_id"`
	TestName      string        `json:"test_name"`
	EnvironmentID string        `json:"environment_id,omitempty"`
	Outcome       string        `json:"outcome"`
	Reason        string        `json:"reason,omitempty"`
	Duration      time.Duration `json:"duration,omitempty"`
	Error         error         `json:"error,omitempty"`
}

// String returns a human-readable description
func (e TestResultEvent) String() string {
	s := fmt.Sprintf("%s %s", e.TestID, e.Outcome)
	if e.EnvironmentID != "" {
		s += " on " + e.EnvironmentID
	}
	if e.Reason != "" {
		s += " (" + e.Reason + ")"
	}
	if e.Error != nil {
		s += " (error: " + e.Error.Error() + ")"
	}
	return s
}

// SystemEvent represents run-level events.
type SystemEvent struct {
	BaseEvent
	Component string `json:"component"` // "scheduler", "lifecycle", "cli"
	Action    string `json:"action"`    // "startup", "shutdown", "cancelled"
	Details   string `json:"details,omitempty"`
}

// String returns a human-readable description
func (e SystemEvent) String() string {
	if e.Details != "" {
		return e.Component + " " + e.Action + ": " + e.Details
	}
	return e.Component + " " + e.Action
}

// NewEnvironmentStateEvent creates a new environment state event
func NewEnvironmentStateEvent(environmentID, platform, oldState, newState string, err error) *EnvironmentStateEvent {
	severity := SeverityDebug
	switch newState {
	case "Connected", "Deleted":
		severity = SeverityInfo
	case "Failed":
		severity = SeverityError
	}
	if err != nil {
		severity = SeverityError
	}

	return &EnvironmentStateEvent{
		BaseEvent: BaseEvent{
			EventType:     EventTypeEnvironmentState,
			SourceLabel:   environmentID,
			EventTime:     time.Now(),
			EventSeverity: severity,
			CorrelationId: GenerateCorrelationID(),
		},
		EnvironmentID: environmentID,
		Platform:      platform,
		OldState:      oldState,
		NewState:      newState,
		Error:         err,
	}
}

// NewTestResultEvent creates a new test result event
func NewTestResultEvent(testID, testName, environmentID, outcome, reason string, duration time.Duration, err error) *TestResultEvent {
	eventType := EventTypeTestCompleted
	severity := SeverityInfo
	switch outcome {
	case "Skipped":
		eventType = EventTypeTestSkipped
		severity = SeverityWarn
	case "Failed":
		eventType = EventTypeTestFailed
		severity = SeverityError
	case "Cancelled":
		eventType = EventTypeTestCancelled
		severity = SeverityWarn
	}

	return &TestResultEvent{
		BaseEvent: BaseEvent{
			EventType:     eventType,
			SourceLabel:   testID,
			EventTime:     time.Now(),
			EventSeverity: severity,
			CorrelationId: GenerateCorrelationID(),
		},
		TestID:        testID,
		TestName:      testName,
		EnvironmentID: environmentID,
		Outcome:       outcome,
		Reason:        reason,
		Duration:      duration,
		Error:         err,
	}
}

// NewSystemEvent creates a new system event
func NewSystemEvent(component, action, details string) *SystemEvent {
	severity := SeverityInfo
	if action == "shutdown" || action == "cancelled" {
		severity = SeverityWarn
	}

	eventType := EventTypeSystemStartup
	if action != "startup" {
		eventType = EventTypeSystemShutdown
	}

	return &SystemEvent{
		BaseEvent: BaseEvent{
			EventType:     eventType,
			SourceLabel:   component,
			EventTime:     time.Now(),
			EventSeverity: severity,
			CorrelationId: GenerateCorrelationID(),
		},
		Component: component,
		Action:    action,
		Details:   details,
	}
}
