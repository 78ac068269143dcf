package capability

import "errors"

// ErrNoCandidate is returned by the matcher when no candidate in the pool
// satisfies a requirement. It is an expected outcome of over-specified test
// plans, not a fatal condition: the scheduler marks the affected tests
// skipped and the run continues.
var ErrNoCandidate = errors.New("no candidate satisfies the requirement")

// Candidate is one entry in the matcher's pool: either a live environment
// with spare assignment capacity, or a platform-declared template that has
// not been instantiated yet.
type Candidate struct {
	// ID identifies the candidate for the caller (environment ID, or
	// adapter/template key for provisionable entries).
	ID string
	// Capability is the candidate's declared or measured capability.
	Capability Capability
	// Live marks an existing Connected environment that can take more
	// assignments. Live candidates always win over provisionable ones.
	Live bool
}

// RankFunc scores a provisionable candidate against a requirement; lower is
// better. The default is Slack. Injectable because the exact waste metric is
// policy, not contract.
type RankFunc func(cap Capability, req Requirement) float64

// Matcher selects the best candidate for a requirement from a pool.
//
// Selection policy, each rule breaking ties from the previous one:
//  1. any live candidate that satisfies the requirement
//  2. the satisfying provisionable candidate with the lowest rank score
//  3. pool order (callers register candidates in a stable order, so
//     repeated runs over the same pool produce identical selections)
type Matcher struct {
	Ranker RankFunc
}

// NewMatcher creates a matcher with the default slack-based ranker.
func NewMatcher() *Matcher {
	return &Matcher{Ranker: Slack}
}

// Select returns the best candidate for the requirement, or ErrNoCandidate.
// The pool slice is read in order and never mutated.
func (m *Matcher) Select(req Requirement, pool []Candidate) (Candidate, error) {
	ranker := m.Ranker
	if ranker == nil {
		ranker = Slack
	}

	bestIdx := -1
	bestScore := 0.0

	for i, candidate := range pool {
		if !Satisfies(candidate.Capability, req) {
			continue
		}

		// Rule 1: the first satisfying live candidate wins outright.
		if candidate.Live {
			return candidate, nil
		}

		score := ranker(candidate.Capability, req)
		// Rules 2+3: strictly lower score wins; equal scores keep the
		// earlier candidate, preserving pool registration order.
		if bestIdx == -1 || score < bestScore {
			bestIdx = i
			bestScore = score
		}
	}

	if bestIdx == -1 {
		return Candidate{}, ErrNoCandidate
	}
	return pool[bestIdx], nil
}
