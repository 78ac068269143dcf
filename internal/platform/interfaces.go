package platform

import (
	"context"

	"testrig/internal/capability"
)

// Handle is an opaque reference to backend resources for one environment.
// Adapters return it from Prepare and receive it back on every later verb,
// so partially provisioned resources stay deletable after any failure.
type Handle interface {
	// ID identifies the backend resources for logging and teardown retry.
	ID() string
}

// ControlChannel is an established control connection to a live environment
// (typically a remote shell). It is what a test's execution entry point
// receives once its environment is connected.
type ControlChannel interface {
	// Run executes a command on the target and returns its combined output.
	Run(ctx context.Context, command string) (string, error)

	// Close releases the channel. Called during teardown.
	Close() error
}

// Adapter is the provisioning backend contract. One implementation exists
// per platform (cloud API, hypervisor, bare metal, pass-through ready
// targets); the scheduler depends only on this interface.
//
// All verbs may block on network I/O and must honor ctx cancellation. Each
// verb is independently retryable: calling it again after an error must be
// safe.
type Adapter interface {
	// Name identifies the adapter in capability pools and reports.
	Name() string

	// DeclareTemplates returns the capability templates this adapter can
	// provision. Order is stable across calls; the matcher's deterministic
	// tie-break depends on it.
	DeclareTemplates() []capability.Capability

	// Prepare validates the requested capability and reserves, but does not
	// yet instantiate, backend resources.
	Prepare(ctx context.Context, spec capability.Capability) (Handle, error)

	// Deploy instantiates real resources and returns the refined capability
	// with actual measured values.
	Deploy(ctx context.Context, h Handle) (capability.Capability, error)

	// Connect establishes the control channel to the deployed environment.
	Connect(ctx context.Context, h Handle) (ControlChannel, error)

	// Delete tears down whatever resources exist for the handle, including
	// partial ones left by a failed Prepare or Deploy.
	Delete(ctx context.Context, h Handle) error
}
