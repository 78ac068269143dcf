package reporting

import (
	"sync"
	"time"
)

// EnvironmentSnapshot is the last reported state of one environment.
type EnvironmentSnapshot struct {
	ID          string
	Platform    string
	State       string
	ErrorDetail error
	LastUpdated time.Time
}

// TestSnapshot is the last reported status of one test case.
type TestSnapshot struct {
	ID            string
	Name          string
	EnvironmentID string
	Outcome       string
	Reason        string
	Duration      time.Duration
	ErrorDetail   error
	LastUpdated   time.Time
}

// RunStore is the centralized snapshot of a run: every environment's current
// lifecycle state and every test's outcome. The scheduler writes to it as
// events happen; reports and the no-leak check read from it after the run.
type RunStore struct {
	mu        sync.RWMutex
	envs      map[string]EnvironmentSnapshot
	envOrder  []string
	tests     map[string]TestSnapshot
	testOrder []string
}

// NewRunStore creates an empty run store.
func NewRunStore() *RunStore {
	return &RunStore{
		envs:  make(map[string]EnvironmentSnapshot),
		tests: make(map[string]TestSnapshot),
	}
}

// SetEnvironmentState records an environment's current state.
func (s *RunStore) SetEnvironmentState(id, platform, state string, errDetail error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.envs[id]; !exists {
		s.envOrder = append(s.envOrder, id)
	}
	s.envs[id] = EnvironmentSnapshot{
		ID:          id,
		Platform:    platform,
		State:       state,
		ErrorDetail: errDetail,
		LastUpdated: time.Now(),
	}
}

// GetEnvironmentState returns the snapshot for one environment.
func (s *RunStore) GetEnvironmentState(id string) (EnvironmentSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.envs[id]
	return snap, ok
}

// Environments returns all environment snapshots in first-seen order.
func (s *RunStore) Environments() []EnvironmentSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]EnvironmentSnapshot, 0, len(s.envOrder))
	for _, id := range s.envOrder {
		out = append(out, s.envs[id])
	}
	return out
}

// SetTestOutcome records a test's terminal outcome.
func (s *RunStore) SetTestOutcome(snap TestSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tests[snap.ID]; !exists {
		s.testOrder = append(s.testOrder, snap.ID)
	}
	snap.LastUpdated = time.Now()
	s.tests[snap.ID] = snap
}

// GetTestOutcome returns the snapshot for one test.
func (s *RunStore) GetTestOutcome(id string) (TestSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.tests[id]
	return snap, ok
}

// Tests returns all test snapshots in first-seen order.
func (s *RunStore) Tests() []TestSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]TestSnapshot, 0, len(s.testOrder))
	for _, id := range s.testOrder {
		out = append(out, s.tests[id])
	}
	return out
}
