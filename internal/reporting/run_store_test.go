package reporting

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunStore_EnvironmentLifecycle(t *testing.T) {
	store := NewRunStore()

	store.SetEnvironmentState("env-1", "ready", "Preparing", nil)
	store.SetEnvironmentState("env-2", "azure", "Preparing", nil)
	store.SetEnvironmentState("env-1", "ready", "Connected", nil)

	snap, ok := store.GetEnvironmentState("env-1")
	require.True(t, ok)
	assert.Equal(t, "Connected", snap.State)
	assert.Equal(t, "ready", snap.Platform)
	assert.False(t, snap.LastUpdated.IsZero())

	envs := store.Environments()
	require.Len(t, envs, 2)
	// First-seen order is preserved across updates.
	assert.Equal(t, "env-1", envs[0].ID)
	assert.Equal(t, "env-2", envs[1].ID)
}

func TestRunStore_TestOutcomes(t *testing.T) {
	store := NewRunStore()

	store.SetTestOutcome(TestSnapshot{ID: "t1", Outcome: "Completed", EnvironmentID: "env-1"})
	store.SetTestOutcome(TestSnapshot{ID: "t2", Outcome: "Failed", Reason: "ProvisioningFailed", ErrorDetail: errors.New("boom")})

	snap, ok := store.GetTestOutcome("t2")
	require.True(t, ok)
	assert.Equal(t, "Failed", snap.Outcome)
	assert.Equal(t, "ProvisioningFailed", snap.Reason)
	assert.Error(t, snap.ErrorDetail)

	tests := store.Tests()
	require.Len(t, tests, 2)
	assert.Equal(t, "t1", tests[0].ID)
	assert.Equal(t, "t2", tests[1].ID)

	_, ok = store.GetTestOutcome("missing")
	assert.False(t, ok)
}
