package environment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"testrig/internal/capability"
	"testrig/internal/config"
	"testrig/internal/platform"
	"testrig/internal/reporting"
	"testrig/pkg/logging"
)

// StateChangeCallback is called when an environment's state changes.
type StateChangeCallback func(envID string, oldState, newState State, err error)

// Manager drives one environment through its lifecycle:
//
//	New → Preparing → Prepared → Deploying → Deployed → Connecting →
//	Connected ⇄ Executing → TearingDown → Deleted
//
// with Failed reachable from any non-terminal state. The manager owns the
// environment's state and its capability refinement; nothing else mutates
// them. Every adapter verb is bounded by the configured per-call timeout and
// retried with backoff up to the configured attempt count.
//
// The core guarantee: once an environment leaves New it ends in Deleted, or
// its teardown failure is logged and reported. It is never silently leaked.
type Manager struct {
	mu sync.Mutex

	id      string
	adapter platform.Adapter
	cfg     config.RunConfig
	bus     reporting.EventBus
	store   *reporting.RunStore

	state            State
	cap              capability.Capability
	handle           platform.Handle
	channel          platform.ControlChannel
	lastErr          error
	teardownReported bool

	stateCallback StateChangeCallback
}

// NewManager creates a lifecycle manager for one environment to be
// provisioned from the given template by the given adapter.
func NewManager(adapter platform.Adapter, template capability.Capability, cfg config.RunConfig, bus reporting.EventBus, store *reporting.RunStore) *Manager {
	m := &Manager{
		id:      "env-" + uuid.New().String()[:8],
		adapter: adapter,
		cfg:     cfg,
		bus:     bus,
		store:   store,
		state:   StateNew,
		cap:     template.Clone(),
	}
	if m.store != nil {
		m.store.SetEnvironmentState(m.id, adapter.Name(), string(StateNew), nil)
	}
	return m
}

// ID returns the environment's identity.
func (m *Manager) ID() string {
	return m.id
}

// Platform returns the owning adapter's name.
func (m *Manager) Platform() string {
	return m.adapter.Name()
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Capability returns the environment's capability: the template before
// deployment, the measured values after.
func (m *Manager) Capability() capability.Capability {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cap.Clone()
}

// Channel returns the control channel. Only valid while Connected or
// Executing.
func (m *Manager) Channel() platform.ControlChannel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.channel
}

// LastError returns the most recent error recorded on a state change.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// TeardownReported reports whether a teardown failure was logged for this
// environment. The no-leak guarantee counts such environments as accounted
// for.
func (m *Manager) TeardownReported() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.teardownReported
}

// SetStateChangeCallback installs the callback invoked on every state
// change. The callback runs on its own goroutine so a slow observer cannot
// stall the lifecycle.
func (m *Manager) SetStateChangeCallback(cb StateChangeCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stateCallback = cb
}

// setState updates the state, records it, publishes the change, and fires
// the callback. Must be called with the mutex held.
func (m *Manager) setState(newState State, err error) {
	oldState := m.state
	m.state = newState
	if err != nil {
		m.lastErr = err
	}

	if m.store != nil {
		m.store.SetEnvironmentState(m.id, m.adapter.Name(), string(newState), err)
	}
	if m.bus != nil {
		m.bus.Publish(reporting.NewEnvironmentStateEvent(m.id, m.adapter.Name(), string(oldState), string(newState), err))
	}
	if m.stateCallback != nil && oldState != newState {
		go m.stateCallback(m.id, oldState, newState, err)
	}

	logging.Debug("Lifecycle", "Environment %s state changed: %s -> %s", m.id, oldState, newState)
}

// Provision drives the environment from New to Connected. On any stage
// exhausting its retries the environment is marked Failed, partial resources
// are released best-effort, and a *ProvisioningError is returned.
func (m *Manager) Provision(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateNew {
		state := m.state
		m.mu.Unlock()
		return fmt.Errorf("environment %s: cannot provision from state %s", m.id, state)
	}
	m.setState(StatePreparing, nil)
	spec := m.cap.Clone()
	m.mu.Unlock()

	// Prepare: validate the spec and reserve resources.
	var handle platform.Handle
	if err := m.callWithRetry(ctx, StagePrepare, func(callCtx context.Context) error {
		h, err := m.adapter.Prepare(callCtx, spec)
		if err != nil {
			return err
		}
		handle = h
		return nil
	}); err != nil {
		return m.fail(StagePrepare, err)
	}
	m.mu.Lock()
	m.handle = handle
	m.setState(StatePrepared, nil)
	m.setState(StateDeploying, nil)
	m.mu.Unlock()

	// Deploy: instantiate real resources; the capability is refined from
	// the template to actual measured values here.
	var refined capability.Capability
	if err := m.callWithRetry(ctx, StageDeploy, func(callCtx context.Context) error {
		c, err := m.adapter.Deploy(callCtx, handle)
		if err != nil {
			return err
		}
		refined = c
		return nil
	}); err != nil {
		return m.fail(StageDeploy, err)
	}
	m.mu.Lock()
	if refined.Dimensions != nil {
		if refined.Name == "" {
			refined.Name = m.cap.Name
		}
		m.cap = refined.Clone()
	}
	m.setState(StateDeployed, nil)
	m.setState(StateConnecting, nil)
	m.mu.Unlock()

	// Connect: establish the control channel.
	var channel platform.ControlChannel
	if err := m.callWithRetry(ctx, StageConnect, func(callCtx context.Context) error {
		ch, err := m.adapter.Connect(callCtx, handle)
		if err != nil {
			return err
		}
		channel = ch
		return nil
	}); err != nil {
		return m.fail(StageConnect, err)
	}
	m.mu.Lock()
	m.channel = channel
	m.setState(StateConnected, nil)
	m.mu.Unlock()

	logging.Info("Lifecycle", "Environment %s connected on platform %s", m.id, m.adapter.Name())
	return nil
}

// BeginTest marks the start of a test execution window.
func (m *Manager) BeginTest() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnected {
		return fmt.Errorf("environment %s: cannot execute from state %s", m.id, m.state)
	}
	m.setState(StateExecuting, nil)
	return nil
}

// EndTest marks the end of a test execution window, returning the
// environment to Connected so further queued tests can run.
func (m *Manager) EndTest() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateExecuting {
		return fmt.Errorf("environment %s: EndTest from state %s", m.id, m.state)
	}
	m.setState(StateConnected, nil)
	return nil
}

// Teardown releases the environment's resources. It is safe to call from
// any state and is detached from run cancellation: a cancelled ctx still
// allows delete calls to proceed under their own per-call timeouts. On
// success the environment is Deleted; on exhausted retries the failure is
// logged, reported, and returned as a *TeardownError, and the run continues.
func (m *Manager) Teardown(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateDeleted:
		m.mu.Unlock()
		return nil
	case StateFailed:
		// Best-effort release already ran when the environment failed.
		m.mu.Unlock()
		return nil
	case StateNew:
		// Never held resources; terminal immediately.
		m.setState(StateDeleted, nil)
		m.mu.Unlock()
		return nil
	}
	m.setState(StateTearingDown, nil)
	handle := m.handle
	channel := m.channel
	m.channel = nil
	m.mu.Unlock()

	if channel != nil {
		if err := channel.Close(); err != nil {
			logging.Warn("Lifecycle", "Environment %s: closing control channel: %v", m.id, err)
		}
	}

	if handle == nil {
		m.mu.Lock()
		m.setState(StateDeleted, nil)
		m.mu.Unlock()
		return nil
	}

	// Teardown must survive run cancellation and the global deadline.
	base := context.WithoutCancel(ctx)
	err := m.callWithRetry(base, StageDelete, func(callCtx context.Context) error {
		return m.adapter.Delete(callCtx, handle)
	})
	if err != nil {
		terr := &TeardownError{EnvironmentID: m.id, Attempts: m.cfg.RetryAttempts, Err: err}
		logging.Error("Lifecycle", terr, "Environment %s: teardown failed, resources may need manual cleanup (handle %s)", m.id, handle.ID())
		m.mu.Lock()
		m.teardownReported = true
		m.setState(StateFailed, terr)
		m.mu.Unlock()
		return terr
	}

	m.mu.Lock()
	m.handle = nil
	m.setState(StateDeleted, nil)
	m.mu.Unlock()

	logging.Info("Lifecycle", "Environment %s deleted", m.id)
	return nil
}

// fail marks the environment Failed, releases whatever partial resources
// exist, and wraps the stage error.
func (m *Manager) fail(stage Stage, err error) error {
	perr := &ProvisioningError{
		EnvironmentID: m.id,
		Stage:         stage,
		Attempts:      m.cfg.RetryAttempts,
		Err:           err,
	}
	logging.Error("Lifecycle", perr, "Environment %s: %s failed", m.id, stage)

	m.mu.Lock()
	m.setState(StateFailed, perr)
	handle := m.handle
	channel := m.channel
	m.channel = nil
	m.mu.Unlock()

	if channel != nil {
		_ = channel.Close()
	}
	if handle != nil {
		// Best-effort release of partial resources; a failure here is
		// logged and reported, never propagated over the original error.
		callCtx, cancel := context.WithTimeout(context.Background(), m.cfg.AdapterCallTimeout)
		defer cancel()
		if derr := m.adapter.Delete(callCtx, handle); derr != nil {
			m.mu.Lock()
			m.teardownReported = true
			m.mu.Unlock()
			logging.Error("Lifecycle", derr, "Environment %s: releasing partial resources failed (handle %s)", m.id, handle.ID())
		}
	}
	return perr
}

// callWithRetry runs one adapter verb under the configured per-call timeout,
// retrying with backoff up to the configured attempt count. Cancellation of
// the parent context stops further attempts.
func (m *Manager) callWithRetry(ctx context.Context, stage Stage, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= m.cfg.RetryAttempts; attempt++ {
		if attempt > 1 {
			logging.Warn("Lifecycle", "Environment %s: retrying %s (attempt %d/%d)", m.id, stage, attempt, m.cfg.RetryAttempts)
			select {
			case <-time.After(m.cfg.Backoff(attempt)):
			case <-ctx.Done():
				return fmt.Errorf("%s aborted: %w", stage, ctx.Err())
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, m.cfg.AdapterCallTimeout)
		err := fn(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return fmt.Errorf("%s aborted: %w", stage, ctx.Err())
		}
	}
	return lastErr
}
