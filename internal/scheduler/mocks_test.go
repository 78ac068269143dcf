package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"testrig/internal/capability"
	"testrig/internal/config"
	"testrig/internal/platform"
	"testrig/internal/reporting"
	"testrig/internal/testplan"
)

// mockAdapter is a scriptable platform adapter. Each verb can be told to fail
// a number of times before succeeding, every call is counted, and the number
// of concurrently held handles is tracked so tests can assert the scheduler's
// concurrency bound.
type mockAdapter struct {
	mu sync.Mutex

	name      string
	templates []capability.Capability

	failPrepare int
	failDeploy  int
	failConnect int
	failDelete  int

	prepareCalls int
	deployCalls  int
	connectCalls int
	deleteCalls  int

	slow time.Duration

	active    int
	maxActive int
}

func newMockAdapter(name string, templates ...capability.Capability) *mockAdapter {
	return &mockAdapter{name: name, templates: templates}
}

func (a *mockAdapter) Name() string { return a.name }

func (a *mockAdapter) DeclareTemplates() []capability.Capability {
	return a.templates
}

func (a *mockAdapter) wait(ctx context.Context) error {
	if a.slow == 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(a.slow):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *mockAdapter) Prepare(ctx context.Context, spec capability.Capability) (platform.Handle, error) {
	if err := a.wait(ctx); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.prepareCalls++
	if a.failPrepare > 0 {
		a.failPrepare--
		return nil, errors.New("prepare: transient backend error")
	}
	a.active++
	if a.active > a.maxActive {
		a.maxActive = a.active
	}
	return &mockHandle{id: fmt.Sprintf("%s/h%d", a.name, a.prepareCalls)}, nil
}

func (a *mockAdapter) Deploy(ctx context.Context, h platform.Handle) (capability.Capability, error) {
	if err := a.wait(ctx); err != nil {
		return capability.Capability{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deployCalls++
	if a.failDeploy > 0 {
		a.failDeploy--
		return capability.Capability{}, errors.New("deploy: transient backend error")
	}
	return capability.Capability{}, nil
}

func (a *mockAdapter) Connect(ctx context.Context, h platform.Handle) (platform.ControlChannel, error) {
	if err := a.wait(ctx); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connectCalls++
	if a.failConnect > 0 {
		a.failConnect--
		return nil, errors.New("connect: transient backend error")
	}
	return &mockChannel{}, nil
}

func (a *mockAdapter) Delete(ctx context.Context, h platform.Handle) error {
	if err := a.wait(ctx); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deleteCalls++
	if a.failDelete > 0 {
		a.failDelete--
		return errors.New("delete: transient backend error")
	}
	if a.active > 0 {
		a.active--
	}
	return nil
}

func (a *mockAdapter) calls() (prepare, deploy, connect, del int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.prepareCalls, a.deployCalls, a.connectCalls, a.deleteCalls
}

func (a *mockAdapter) peakConcurrency() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.maxActive
}

type mockHandle struct {
	id string
}

func (h *mockHandle) ID() string { return h.id }

type mockChannel struct{}

func (c *mockChannel) Run(ctx context.Context, command string) (string, error) {
	return "ok: " + command, nil
}

func (c *mockChannel) Close() error { return nil }

// sliceSource is a fixed, in-order plan.
type sliceSource []testplan.TestCase

func (s sliceSource) Tests() ([]testplan.TestCase, error) {
	return s, nil
}

// fastConfig keeps retries and backoff tiny so failure paths run quickly.
func fastConfig(concurrency int) config.RunConfig {
	return config.RunConfig{
		MaxConcurrentEnvironments: concurrency,
		AdapterCallTimeout:        time.Second,
		RetryAttempts:             3,
		RetryBackoffBase:          time.Millisecond,
		RetryBackoffMax:           4 * time.Millisecond,
	}
}

func newTestScheduler(t *testing.T, cfg config.RunConfig, tests []testplan.TestCase, adapters ...platform.Adapter) *Scheduler {
	t.Helper()

	registry := platform.NewRegistry()
	for _, a := range adapters {
		if err := registry.Register(a); err != nil {
			t.Fatalf("registering adapter: %v", err)
		}
	}

	bus := reporting.NewEventBus()
	t.Cleanup(bus.Close)

	s, err := New(cfg, registry, sliceSource(tests), bus, reporting.NewRunStore())
	if err != nil {
		t.Fatalf("creating scheduler: %v", err)
	}
	return s
}

// okTest builds a test case that succeeds immediately.
func okTest(id string, req capability.Requirement) testplan.TestCase {
	return testplan.TestCase{
		ID:          id,
		Name:        id,
		Requirement: req,
		Run: func(ctx context.Context, ch platform.ControlChannel) error {
			_, err := ch.Run(ctx, "true")
			return err
		},
	}
}

// tracingTest appends its ID to order (under mu) when it runs.
func tracingTest(id string, priority int, req capability.Requirement, mu *sync.Mutex, order *[]string) testplan.TestCase {
	return testplan.TestCase{
		ID:          id,
		Name:        id,
		Priority:    priority,
		Requirement: req,
		Run: func(ctx context.Context, ch platform.ControlChannel) error {
			mu.Lock()
			*order = append(*order, id)
			mu.Unlock()
			return nil
		},
	}
}

func smallTemplate() capability.Capability {
	return capability.NewCapability("small").
		With("cores", capability.PointValue(2)).
		With("memory_mb", capability.PointValue(4096)).
		With("gpu", capability.FlagValue(false))
}

func largeTemplate() capability.Capability {
	return capability.NewCapability("large").
		With("cores", capability.PointValue(8)).
		With("memory_mb", capability.PointValue(16384)).
		With("gpu", capability.FlagValue(true))
}

func needCores(min float64) capability.Requirement {
	return capability.NewRequirement().With("cores", capability.MinRange(min))
}
