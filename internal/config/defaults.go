package config

import "time"

// DefaultRunConfig returns the configuration used when no file or flag
// overrides anything. Cloud platform adapters usually raise the concurrency
// bound via config.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		MaxConcurrentEnvironments:    2,
		AdapterCallTimeout:           5 * time.Minute,
		RetryAttempts:                3,
		RetryBackoffBase:             500 * time.Millisecond,
		RetryBackoffMax:              8 * time.Second,
		RunDeadline:                  0,
		MaxAssignmentsPerEnvironment: 0,
	}
}
