// Package scheduler drives a test run end to end: it matches test
// requirements against the capability pool, provisions environments through
// their lifecycle managers under a concurrency bound, dispatches test
// execution, and collects every outcome into a final report.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"testrig/internal/capability"
	"testrig/internal/config"
	"testrig/internal/environment"
	"testrig/internal/platform"
	"testrig/internal/reporting"
	"testrig/internal/testplan"
	"testrig/pkg/logging"
)

// Outcome reasons surfaced in results and events.
const (
	ReasonCapabilityMismatch = "CapabilityMismatch"
	ReasonRunCancelled       = "RunCancelled"
	ReasonExecutionFailed    = "ExecutionFailed"
)

// ErrSchedulerFatal signals an internal invariant violation (for example a
// corrupted concurrency bound). It aborts the run after best-effort teardown
// of all live environments; every other failure mode is contained to the
// tests it affects.
var ErrSchedulerFatal = errors.New("scheduler: internal invariant violation")

// TestResult is the terminal outcome of one test case.
type TestResult struct {
	TestID        string
	TestName      string
	Outcome       testplan.Outcome
	Reason        string
	EnvironmentID string
	Duration      time.Duration
	Err           error
}

// EnvironmentStatus is the final provisioning/teardown status of one
// environment created during the run.
type EnvironmentStatus struct {
	ID         string
	Platform   string
	FinalState environment.State
	LastError  error
}

// Report is the full outcome of a run. A run produces a complete report even
// when individual environments or tests fail.
type Report struct {
	Results      []TestResult
	Environments []EnvironmentStatus
}

// Counts tallies results by outcome.
func (r Report) Counts() (completed, skipped, failed, cancelled int) {
	for _, res := range r.Results {
		switch res.Outcome {
		case testplan.OutcomeCompleted:
			completed++
		case testplan.OutcomeSkipped:
			skipped++
		case testplan.OutcomeFailed:
			failed++
		case testplan.OutcomeCancelled:
			cancelled++
		}
	}
	return
}

// Scheduler owns all run state: the environments it creates, the results it
// collects, and the concurrency-limit semaphore. It is constructed, run
// once, and discarded; there is no ambient global state.
type Scheduler struct {
	cfg      config.RunConfig
	adapters *platform.Registry
	source   testplan.Source
	bus      reporting.EventBus
	store    *reporting.RunStore
	matcher  *capability.Matcher

	mu          sync.Mutex
	envs        []*envRuntime
	results     map[string]TestResult
	resultOrder []string
	fatalErr    error

	slots     chan struct{}
	stopOnce  sync.Once
	stopCh    chan struct{}
	runCancel context.CancelFunc
}

// New creates a scheduler. The configuration is validated here so the run
// can rely on its invariants.
func New(cfg config.RunConfig, adapters *platform.Registry, source testplan.Source, bus reporting.EventBus, store *reporting.RunStore) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run configuration: %w", err)
	}
	if bus == nil {
		bus = reporting.NewEventBus()
	}
	if store == nil {
		store = reporting.NewRunStore()
	}
	return &Scheduler{
		cfg:      cfg,
		adapters: adapters,
		source:   source,
		bus:      bus,
		store:    store,
		matcher:  capability.NewMatcher(),
		results:  make(map[string]TestResult),
		slots:    make(chan struct{}, cfg.MaxConcurrentEnvironments),
		stopCh:   make(chan struct{}),
	}, nil
}

// Stop requests cooperative cancellation: no new provisioning starts,
// environments finish their current test and proceed to teardown, and every
// not-yet-started test is marked Cancelled. Safe to call more than once and
// from any goroutine.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.bus.Publish(reporting.NewSystemEvent("scheduler", "cancelled", "stop requested"))
		logging.Warn("Scheduler", "Cancellation requested; draining in-flight environments")
	})
}

func (s *Scheduler) stopped() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

// Run executes the plan to completion and returns the report. Only
// ErrSchedulerFatal aborts a run early; every other failure is recorded in
// the report and the run continues.
func (s *Scheduler) Run(ctx context.Context) (Report, error) {
	if s.cfg.RunDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RunDeadline)
		defer cancel()
	}
	ctx, s.runCancel = context.WithCancel(ctx)
	defer s.runCancel()

	tests, err := s.source.Tests()
	if err != nil {
		return Report{}, fmt.Errorf("loading test plan: %w", err)
	}
	for _, tc := range tests {
		s.resultOrder = append(s.resultOrder, tc.ID)
	}

	s.bus.Publish(reporting.NewSystemEvent("scheduler", "startup",
		fmt.Sprintf("%d tests, %d adapters, concurrency %d", len(tests), len(s.adapters.All()), s.cfg.MaxConcurrentEnvironments)))
	logging.Info("Scheduler", "Run started: %d tests across %d adapters", len(tests), len(s.adapters.All()))

	s.schedule(tests)

	// Start every lifecycle; the slot semaphore enforces the concurrency
	// bound, so launching them all is safe.
	s.mu.Lock()
	envs := append([]*envRuntime(nil), s.envs...)
	s.mu.Unlock()
	for _, e := range envs {
		go e.run(ctx)
	}
	for _, e := range envs {
		<-e.done
	}

	s.bus.Publish(reporting.NewSystemEvent("scheduler", "shutdown", "run complete"))

	report := s.buildReport()
	s.mu.Lock()
	fatal := s.fatalErr
	s.mu.Unlock()
	if fatal != nil {
		return report, fatal
	}
	return report, nil
}

// schedule performs the scheduling pass: order tests by priority, partition
// by requirement equivalence, and match each partition against the candidate
// pool (environments created earlier in this pass with spare capacity, then
// adapter-declared templates). The plan is static, so a single pass commits
// every assignment.
func (s *Scheduler) schedule(tests []testplan.TestCase) {
	ordered := append([]testplan.TestCase(nil), tests...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})

	var groupKeys []string
	groups := make(map[string][]testplan.TestCase)
	for _, tc := range ordered {
		key := tc.Requirement.Key()
		if _, seen := groups[key]; !seen {
			groupKeys = append(groupKeys, key)
		}
		groups[key] = append(groups[key], tc)
	}

	for _, key := range groupKeys {
		s.assignGroup(groups[key])
	}
}

// templateRef resolves a provisionable candidate back to its adapter.
type templateRef struct {
	adapter  platform.Adapter
	template capability.Capability
}

// assignGroup places one requirement-equivalent partition of tests, spilling
// onto additional environments when the per-environment assignment cap is
// reached.
func (s *Scheduler) assignGroup(group []testplan.TestCase) {
	req := group[0].Requirement
	remaining := group

	for len(remaining) > 0 {
		pool, refs := s.candidatePool()

		selected, err := s.matcher.Select(req, pool)
		if errors.Is(err, capability.ErrNoCandidate) {
			for _, tc := range remaining {
				logging.Warn("Scheduler", "Test %s skipped: no candidate satisfies its requirement", tc.ID)
				s.recordResult(tc, testplan.OutcomeSkipped, ReasonCapabilityMismatch, "", 0, nil)
			}
			return
		}

		if selected.Live {
			e := s.envByID(selected.ID)
			if e == nil {
				s.fatal(fmt.Errorf("%w: matcher selected unknown environment %s", ErrSchedulerFatal, selected.ID))
				return
			}
			n := e.accept(remaining, s.cfg.MaxAssignmentsPerEnvironment)
			remaining = remaining[n:]
			continue
		}

		ref := refs[selected.ID]
		mgr := environment.NewManager(ref.adapter, ref.template, s.cfg, s.bus, s.store)
		e := newEnvRuntime(s, mgr)
		n := e.accept(remaining, s.cfg.MaxAssignmentsPerEnvironment)
		remaining = remaining[n:]

		s.mu.Lock()
		s.envs = append(s.envs, e)
		s.mu.Unlock()

		logging.Info("Scheduler", "Environment %s requested from %s (template %s, %d tests)",
			mgr.ID(), ref.adapter.Name(), ref.template.Name, n)
	}
}

// candidatePool builds the matcher input: environments from this pass that
// still have assignment capacity (live-reusable), then every adapter's
// templates in registration order. The stable order makes repeated runs over
// the same pool produce identical assignments.
func (s *Scheduler) candidatePool() ([]capability.Candidate, map[string]templateRef) {
	var pool []capability.Candidate
	refs := make(map[string]templateRef)

	s.mu.Lock()
	for _, e := range s.envs {
		if !e.hasCapacity(s.cfg.MaxAssignmentsPerEnvironment) {
			continue
		}
		pool = append(pool, capability.Candidate{
			ID:         e.mgr.ID(),
			Capability: e.mgr.Capability(),
			Live:       true,
		})
	}
	s.mu.Unlock()

	for _, adapter := range s.adapters.All() {
		for i, template := range adapter.DeclareTemplates() {
			id := fmt.Sprintf("%s/%s#%d", adapter.Name(), template.Name, i)
			pool = append(pool, capability.Candidate{ID: id, Capability: template})
			refs[id] = templateRef{adapter: adapter, template: template}
		}
	}
	return pool, refs
}

func (s *Scheduler) envByID(id string) *envRuntime {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.envs {
		if e.mgr.ID() == id {
			return e
		}
	}
	return nil
}

// recordResult records a test's terminal outcome exactly once and publishes
// it. Later writes for the same test are ignored, so no test can end in two
// outcomes.
func (s *Scheduler) recordResult(tc testplan.TestCase, outcome testplan.Outcome, reason, envID string, duration time.Duration, err error) {
	s.mu.Lock()
	if _, exists := s.results[tc.ID]; exists {
		s.mu.Unlock()
		return
	}
	s.results[tc.ID] = TestResult{
		TestID:        tc.ID,
		TestName:      tc.Name,
		Outcome:       outcome,
		Reason:        reason,
		EnvironmentID: envID,
		Duration:      duration,
		Err:           err,
	}
	s.mu.Unlock()

	s.store.SetTestOutcome(reporting.TestSnapshot{
		ID:            tc.ID,
		Name:          tc.Name,
		EnvironmentID: envID,
		Outcome:       string(outcome),
		Reason:        reason,
		Duration:      duration,
		ErrorDetail:   err,
	})
	s.bus.Publish(reporting.NewTestResultEvent(tc.ID, tc.Name, envID, string(outcome), reason, duration, err))
}

// fatal records an invariant violation and aborts the run. In-flight
// lifecycles observe the cancelled context and proceed straight to teardown.
func (s *Scheduler) fatal(err error) {
	s.mu.Lock()
	if s.fatalErr == nil {
		s.fatalErr = err
	}
	s.mu.Unlock()

	logging.Error("Scheduler", err, "Fatal scheduler error; aborting run")
	if s.runCancel != nil {
		s.runCancel()
	}
}

// acquireSlot blocks until a concurrency slot is free, the run is cancelled,
// or a stop is requested. Returns false when no slot was acquired.
func (s *Scheduler) acquireSlot(ctx context.Context) bool {
	select {
	case s.slots <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	case <-s.stopCh:
		return false
	}
}

// releaseSlot frees a concurrency slot. Releasing a slot that was never
// acquired means the bound is corrupt; that is the one unrecoverable error
// in the system.
func (s *Scheduler) releaseSlot() {
	select {
	case <-s.slots:
	default:
		s.fatal(fmt.Errorf("%w: concurrency slot released without acquisition", ErrSchedulerFatal))
	}
}

func (s *Scheduler) buildReport() Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := Report{}
	for _, id := range s.resultOrder {
		if res, ok := s.results[id]; ok {
			report.Results = append(report.Results, res)
		}
	}
	for _, e := range s.envs {
		report.Environments = append(report.Environments, EnvironmentStatus{
			ID:         e.mgr.ID(),
			Platform:   e.mgr.Platform(),
			FinalState: e.mgr.State(),
			LastError:  e.mgr.LastError(),
		})
	}
	return report
}
