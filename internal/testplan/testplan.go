// Package testplan holds the test-suite side of the scheduler contract: test
// case descriptors, the registration table mapping test identity to its
// requirement and execution entry point, and the YAML plan loader.
//
// Registration is explicit and happens at process start; there is no runtime
// annotation inspection.
package testplan

import (
	"context"
	"fmt"
	"sync"

	"testrig/internal/capability"
	"testrig/internal/platform"
)

// Outcome is the terminal status of a test case. Every submitted test ends
// in exactly one of these.
type Outcome string

const (
	OutcomeCompleted Outcome = "Completed"
	OutcomeSkipped   Outcome = "Skipped"
	OutcomeFailed    Outcome = "Failed"
	OutcomeCancelled Outcome = "Cancelled"
)

// RunFunc is a test's execution entry point. It receives the control channel
// of the connected environment the scheduler assigned.
type RunFunc func(ctx context.Context, ch platform.ControlChannel) error

// TestCase describes one schedulable test.
type TestCase struct {
	// ID uniquely identifies the test in registry and reports.
	ID string
	// Name is the human-readable title.
	Name string
	// Priority orders dispatch: higher priority tests are assigned first.
	Priority int
	// Requirement constrains which environments can host the test.
	Requirement capability.Requirement
	// Run executes the test.
	Run RunFunc
}

// Source yields the ordered, finite sequence of test cases for a run.
type Source interface {
	Tests() ([]TestCase, error)
}

// Registry is the explicit registration table. Registration order is
// preserved; it is the default plan order.
type Registry struct {
	mu    sync.RWMutex
	tests []TestCase
	byID  map[string]int
}

// NewRegistry creates an empty test registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]int)}
}

// Register adds a test case. IDs must be unique and the entry point non-nil.
func (r *Registry) Register(tc TestCase) error {
	if tc.ID == "" {
		return fmt.Errorf("test case must have an ID")
	}
	if tc.Run == nil {
		return fmt.Errorf("test case %q has no execution entry point", tc.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[tc.ID]; exists {
		return fmt.Errorf("test case %q already registered", tc.ID)
	}
	r.byID[tc.ID] = len(r.tests)
	r.tests = append(r.tests, tc)
	return nil
}

// Get returns a registered test case by ID.
func (r *Registry) Get(id string) (TestCase, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx, ok := r.byID[id]
	if !ok {
		return TestCase{}, false
	}
	return r.tests[idx], true
}

// Tests implements Source, returning all registered tests in registration
// order.
func (r *Registry) Tests() ([]TestCase, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]TestCase, len(r.tests))
	copy(out, r.tests)
	return out, nil
}
