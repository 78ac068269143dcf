package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func poolOf(candidates ...Candidate) []Candidate {
	return candidates
}

func TestMatcher_PrefersLiveCandidate(t *testing.T) {
	m := NewMatcher()
	req := NewRequirement().With("cores", MinRange(2))

	// A tighter-fitting provisionable candidate exists, but the live one
	// must still win: reuse beats provisioning.
	pool := poolOf(
		Candidate{ID: "template-small", Capability: NewCapability("small").With("cores", PointValue(2))},
		Candidate{ID: "env-1", Live: true, Capability: NewCapability("live").With("cores", PointValue(16))},
	)

	selected, err := m.Select(req, pool)
	require.NoError(t, err)
	assert.Equal(t, "env-1", selected.ID)
}

func TestMatcher_LiveCandidateMustSatisfy(t *testing.T) {
	m := NewMatcher()
	req := NewRequirement().With("gpu", RequireFlag())

	pool := poolOf(
		Candidate{ID: "env-1", Live: true, Capability: NewCapability("live").With("gpu", FlagValue(false))},
		Candidate{ID: "template-gpu", Capability: NewCapability("gpu").With("gpu", FlagValue(true))},
	)

	selected, err := m.Select(req, pool)
	require.NoError(t, err)
	assert.Equal(t, "template-gpu", selected.ID)
}

func TestMatcher_PicksSmallestSlack(t *testing.T) {
	m := NewMatcher()
	req := NewRequirement().With("cores", MinRange(4))

	pool := poolOf(
		Candidate{ID: "huge", Capability: NewCapability("huge").With("cores", PointValue(64))},
		Candidate{ID: "snug", Capability: NewCapability("snug").With("cores", PointValue(4))},
		Candidate{ID: "medium", Capability: NewCapability("medium").With("cores", PointValue(8))},
	)

	selected, err := m.Select(req, pool)
	require.NoError(t, err)
	assert.Equal(t, "snug", selected.ID)
}

func TestMatcher_TieBreaksByRegistrationOrder(t *testing.T) {
	m := NewMatcher()
	req := NewRequirement().With("cores", MinRange(2))

	pool := poolOf(
		Candidate{ID: "first", Capability: NewCapability("a").With("cores", PointValue(4))},
		Candidate{ID: "second", Capability: NewCapability("b").With("cores", PointValue(4))},
	)

	// Identical pools must yield identical selections, run after run.
	for i := 0; i < 10; i++ {
		selected, err := m.Select(req, pool)
		require.NoError(t, err)
		assert.Equal(t, "first", selected.ID)
	}
}

func TestMatcher_NoCandidate(t *testing.T) {
	m := NewMatcher()
	req := NewRequirement().With("gpu", RequireFlag())

	pool := poolOf(
		Candidate{ID: "cpu-only", Capability: NewCapability("a").With("gpu", FlagValue(false))},
	)

	_, err := m.Select(req, pool)
	assert.ErrorIs(t, err, ErrNoCandidate)
}

func TestMatcher_EmptyPool(t *testing.T) {
	m := NewMatcher()

	_, err := m.Select(NewRequirement(), nil)
	assert.ErrorIs(t, err, ErrNoCandidate)
}

func TestMatcher_CustomRanker(t *testing.T) {
	// A ranker that inverts the default preference proves the policy is
	// injectable without touching selection rules 1 and 3.
	m := &Matcher{Ranker: func(cap Capability, req Requirement) float64 {
		return -Slack(cap, req)
	}}
	req := NewRequirement().With("cores", MinRange(4))

	pool := poolOf(
		Candidate{ID: "snug", Capability: NewCapability("snug").With("cores", PointValue(4))},
		Candidate{ID: "huge", Capability: NewCapability("huge").With("cores", PointValue(64))},
	)

	selected, err := m.Select(req, pool)
	require.NoError(t, err)
	assert.Equal(t, "huge", selected.ID)
}
