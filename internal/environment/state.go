package environment

// State is the lifecycle state of an environment.
type State string

const (
	StateNew         State = "New"
	StatePreparing   State = "Preparing"
	StatePrepared    State = "Prepared"
	StateDeploying   State = "Deploying"
	StateDeployed    State = "Deployed"
	StateConnecting  State = "Connecting"
	StateConnected   State = "Connected"
	StateExecuting   State = "Executing"
	StateTearingDown State = "TearingDown"
	StateDeleted     State = "Deleted"
	StateFailed      State = "Failed"
)

// Terminal reports whether the state ends the lifecycle. No environment may
// be reused after reaching a terminal state.
func (s State) Terminal() bool {
	return s == StateDeleted || s == StateFailed
}

// HoldsResources reports whether an environment in this state may own
// backend resources. The scheduler's concurrency bound counts environments
// in these states.
func (s State) HoldsResources() bool {
	switch s {
	case StatePreparing, StatePrepared, StateDeploying, StateDeployed,
		StateConnecting, StateConnected, StateExecuting, StateTearingDown:
		return true
	default:
		return false
	}
}
