package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"testrig/internal/environment"
	"testrig/internal/testplan"
	"testrig/pkg/logging"
)

// envRuntime binds one environment's lifecycle manager to the tests assigned
// to it and drives both on a dedicated goroutine: acquire a concurrency
// slot, provision, execute the queue in order, tear down, release the slot.
type envRuntime struct {
	sched *Scheduler
	mgr   *environment.Manager

	mu       sync.Mutex
	queue    []testplan.TestCase
	assigned int

	done chan struct{}
}

func newEnvRuntime(s *Scheduler, mgr *environment.Manager) *envRuntime {
	return &envRuntime{sched: s, mgr: mgr, done: make(chan struct{})}
}

// accept appends as many of the given tests as the per-environment cap
// allows and returns how many were taken. A cap of zero means unlimited.
func (e *envRuntime) accept(tests []testplan.TestCase, maxAssignments int) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := len(tests)
	if maxAssignments > 0 {
		if room := maxAssignments - e.assigned; room < n {
			n = room
		}
	}
	if n <= 0 {
		return 0
	}
	e.queue = append(e.queue, tests[:n]...)
	e.assigned += n
	return n
}

func (e *envRuntime) hasCapacity(maxAssignments int) bool {
	if maxAssignments <= 0 {
		return true
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.assigned < maxAssignments
}

// run is the environment's lifecycle goroutine.
func (e *envRuntime) run(ctx context.Context) {
	defer close(e.done)
	s := e.sched

	if !s.acquireSlot(ctx) {
		// Run cancelled before this environment got a slot. Nothing was
		// provisioned; the manager goes straight from New to Deleted.
		e.cancelPending()
		_ = e.mgr.Teardown(ctx)
		return
	}
	defer s.releaseSlot()

	if err := e.mgr.Provision(ctx); err != nil {
		if ctx.Err() != nil || s.stopped() {
			e.cancelPending()
			return
		}
		reason := environment.StagePrepare.Reason()
		var perr *environment.ProvisioningError
		if errors.As(err, &perr) {
			reason = perr.Stage.Reason()
		}
		e.failPending(reason, err)
		return
	}

	for _, tc := range e.queue {
		if ctx.Err() != nil || s.stopped() {
			s.recordResult(tc, testplan.OutcomeCancelled, ReasonRunCancelled, e.mgr.ID(), 0, nil)
			continue
		}
		e.execute(ctx, tc)
	}

	// Teardown survives cancellation internally; a failure here is logged
	// and reported by the manager and must not stop the run.
	_ = e.mgr.Teardown(ctx)
}

// execute runs one test inside a BeginTest/EndTest window and records its
// terminal outcome.
func (e *envRuntime) execute(ctx context.Context, tc testplan.TestCase) {
	s := e.sched

	if err := e.mgr.BeginTest(); err != nil {
		s.recordResult(tc, testplan.OutcomeFailed, ReasonExecutionFailed, e.mgr.ID(), 0, err)
		return
	}
	logging.Info("Scheduler", "Test %s (%s) running on environment %s", tc.ID, tc.Name, e.mgr.ID())

	start := time.Now()
	err := e.runBody(ctx, tc)
	duration := time.Since(start)

	if endErr := e.mgr.EndTest(); endErr != nil && err == nil {
		err = endErr
	}

	switch {
	case err == nil:
		s.recordResult(tc, testplan.OutcomeCompleted, "", e.mgr.ID(), duration, nil)
	case ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		s.recordResult(tc, testplan.OutcomeCancelled, ReasonRunCancelled, e.mgr.ID(), duration, err)
	default:
		s.recordResult(tc, testplan.OutcomeFailed, ReasonExecutionFailed, e.mgr.ID(), duration, err)
	}
}

// runBody invokes the test function, converting a panic into an error so one
// misbehaving test cannot take down the whole run.
func (e *envRuntime) runBody(ctx context.Context, tc testplan.TestCase) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("test %s panicked: %v", tc.ID, r)
		}
	}()
	if tc.Run == nil {
		return fmt.Errorf("test %s has no run function", tc.ID)
	}
	return tc.Run(ctx, e.mgr.Channel())
}

func (e *envRuntime) cancelPending() {
	for _, tc := range e.queue {
		e.sched.recordResult(tc, testplan.OutcomeCancelled, ReasonRunCancelled, e.mgr.ID(), 0, nil)
	}
}

func (e *envRuntime) failPending(reason string, err error) {
	for _, tc := range e.queue {
		logging.Warn("Scheduler", "Test %s failed: environment %s never became available", tc.ID, e.mgr.ID())
		e.sched.recordResult(tc, testplan.OutcomeFailed, reason, e.mgr.ID(), 0, err)
	}
}
