package reporting

import (
	"testrig/pkg/logging"
)

// ConsoleReporter renders events through the logging subsystem. It is a
// best-effort observer: it subscribes to the bus with a handler, so a slow
// terminal never backs up into the scheduler.
type ConsoleReporter struct {
	bus EventBus
	sub *EventSubscription
}

// NewConsoleReporter creates a console reporter attached to the bus.
func NewConsoleReporter(bus EventBus) *ConsoleReporter {
	return &ConsoleReporter{bus: bus}
}

// Start begins rendering events at or above the given severity.
func (r *ConsoleReporter) Start(minSeverity EventSeverity) {
	r.sub = r.bus.Subscribe(FilterBySeverity(minSeverity), r.render)
}

// Stop detaches the reporter from the bus.
func (r *ConsoleReporter) Stop() {
	if r.sub != nil {
		r.bus.Unsubscribe(r.sub)
		r.sub = nil
	}
}

func (r *ConsoleReporter) render(event Event) {
	switch event.Severity() {
	case SeverityError:
		var errDetail error
		switch e := event.(type) {
		case *EnvironmentStateEvent:
			errDetail = e.Error
		case *TestResultEvent:
			errDetail = e.Error
		}
		logging.Error("Reporter", errDetail, "%s", event.String())
	case SeverityWarn:
		logging.Warn("Reporter", "%s", event.String())
	case SeverityDebug:
		logging.Debug("Reporter", "%s", event.String())
	default:
		logging.Info("Reporter", "%s", event.String())
	}
}
