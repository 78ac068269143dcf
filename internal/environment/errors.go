package environment

import "fmt"

// Stage names the adapter verb that failed.
type Stage string

const (
	StagePrepare Stage = "prepare"
	StageDeploy  Stage = "deploy"
	StageConnect Stage = "connect"
	StageDelete  Stage = "delete"
)

// Reason maps a failed stage to the outcome reason reported for the tests
// that were assigned to the environment.
func (s Stage) Reason() string {
	switch s {
	case StagePrepare:
		return "ProvisioningFailed"
	case StageDeploy:
		return "DeploymentFailed"
	case StageConnect:
		return "ConnectionFailed"
	case StageDelete:
		return "TeardownFailed"
	default:
		return "ProvisioningFailed"
	}
}

// ProvisioningError reports that an adapter verb exhausted its retry budget
// while driving an environment toward Connected. It is non-fatal to the run:
// only the tests assigned to this environment are affected.
type ProvisioningError struct {
	EnvironmentID string
	Stage         Stage
	Attempts      int
	Err           error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("environment %s: %s failed after %d attempts: %v", e.EnvironmentID, e.Stage, e.Attempts, e.Err)
}

func (e *ProvisioningError) Unwrap() error {
	return e.Err
}

// TeardownError reports that deleting an environment's resources failed
// after retries. It is logged and surfaced in the run report but never
// blocks run completion.
type TeardownError struct {
	EnvironmentID string
	Attempts      int
	Err           error
}

func (e *TeardownError) Error() string {
	return fmt.Sprintf("environment %s: teardown failed after %d attempts: %v", e.EnvironmentID, e.Attempts, e.Err)
}

func (e *TeardownError) Unwrap() error {
	return e.Err
}
