package environment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"testrig/internal/capability"
	"testrig/internal/config"
	"testrig/internal/platform"
)

// mockAdapter is a scriptable platform adapter: each verb can be told to
// fail a number of times before succeeding, and every call is counted.
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

	refined capability.Capability
	slow    time.Duration
}

func newMockAdapter(name string, templates ...capability.Capability) *mockAdapter {
	return &mockAdapter{name: name, templates: templates}
}

func (a *mockAdapter) Name() string { return a.name }

func (a *mockAdapter) DeclareTemplates() []capability.Capability {
	return a.templates
}

type mockHandle struct {
	id string
}

func (h *mockHandle) ID() string { return h.id }

type mockChannel struct {
	closed bool
	mu     sync.Mutex
}

func (c *mockChannel) Run(ctx context.Context, command string) (string, error) {
	return "ok: " + command, nil
}

func (c *mockChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
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
	return a.refined, nil
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
	return nil
}

func (a *mockAdapter) calls() (prepare, deploy, connect, del int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.prepareCalls, a.deployCalls, a.connectCalls, a.deleteCalls
}

// fastConfig keeps retries and backoff tiny so failure paths run quickly.
func fastConfig() config.RunConfig {
	return config.RunConfig{
		MaxConcurrentEnvironments: 2,
		AdapterCallTimeout:        time.Second,
		RetryAttempts:             3,
		RetryBackoffBase:          time.Millisecond,
		RetryBackoffMax:           4 * time.Millisecond,
	}
}
