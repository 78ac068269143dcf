package config

import (
	"fmt"
	"time"
)

// RunConfig is the single configuration value handed to the scheduler at
// construction. It bounds every resource the run may hold.
type RunConfig struct {
	// MaxConcurrentEnvironments caps how many environments may occupy
	// resource-holding (non-terminal) states at once. Must be >= 1.
	MaxConcurrentEnvironments int `yaml:"maxConcurrentEnvironments,omitempty"`

	// AdapterCallTimeout bounds each individual platform adapter call
	// (prepare, deploy, connect, delete).
	AdapterCallTimeout time.Duration `yaml:"adapterCallTimeout,omitempty"`

	// RetryAttempts is how many times a failing adapter call is tried
	// before the environment is declared Failed.
	RetryAttempts int `yaml:"retryAttempts,omitempty"`

	// RetryBackoffBase is the delay before the second attempt; it doubles
	// per attempt up to RetryBackoffMax.
	RetryBackoffBase time.Duration `yaml:"retryBackoffBase,omitempty"`
	RetryBackoffMax  time.Duration `yaml:"retryBackoffMax,omitempty"`

	// RunDeadline hard-bounds the run; on expiry pending tests are cancelled
	// and environments go straight to teardown, which still runs under its
	// own per-call timeouts. Zero means no deadline.
	RunDeadline time.Duration `yaml:"runDeadline,omitempty"`

	// MaxAssignmentsPerEnvironment caps how many tests the scheduler may
	// queue onto one environment. Zero means unlimited.
	MaxAssignmentsPerEnvironment int `yaml:"maxAssignmentsPerEnvironment,omitempty"`
}

// Validate checks the invariants the scheduler relies on.
func (c RunConfig) Validate() error {
	if c.MaxConcurrentEnvironments < 1 {
		return fmt.Errorf("maxConcurrentEnvironments must be >= 1, got %d", c.MaxConcurrentEnvironments)
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("retryAttempts must be >= 1, got %d", c.RetryAttempts)
	}
	if c.AdapterCallTimeout <= 0 {
		return fmt.Errorf("adapterCallTimeout must be positive, got %s", c.AdapterCallTimeout)
	}
	if c.MaxAssignmentsPerEnvironment < 0 {
		return fmt.Errorf("maxAssignmentsPerEnvironment must be >= 0, got %d", c.MaxAssignmentsPerEnvironment)
	}
	return nil
}

// Backoff returns the delay to apply before the given 1-based retry attempt.
func (c RunConfig) Backoff(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	d := c.RetryBackoffBase
	for i := 2; i < attempt; i++ {
		d *= 2
		if d >= c.RetryBackoffMax {
			return c.RetryBackoffMax
		}
	}
	if c.RetryBackoffMax > 0 && d > c.RetryBackoffMax {
		d = c.RetryBackoffMax
	}
	return d
}
