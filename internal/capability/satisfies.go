package capability

import "math"

// Satisfies reports whether the candidate capability meets every constraint
// of the requirement. It is a pure partial-order test: dimensions unknown on
// either side never cause a mismatch, which keeps the vocabulary
// forward-extensible. Monotonicity holds: any capability component-wise at
// least as capable as a satisfying one also satisfies.
func Satisfies(cap Capability, req Requirement) bool {
	for name, constraint := range req.Dimensions {
		value, ok := cap.Dimensions[name]
		if !ok {
			// The candidate does not declare this dimension; treat as
			// unconstrained rather than rejecting.
			continue
		}
		if !satisfiesDimension(value, constraint) {
			return false
		}
	}
	return true
}

func satisfiesDimension(v Value, c Constraint) bool {
	if v.Kind != c.Kind {
		// A kind conflict means the two sides disagree about what the
		// dimension even is; that is never a match.
		return false
	}

	switch c.Kind {
	case KindRange:
		return satisfiesRange(v, c)
	case KindSet:
		return satisfiesSet(v, c)
	case KindFlag:
		// Requiring false (or leaving the flag out) is always satisfied.
		return !c.Flag || v.Flag
	case KindEnum:
		return satisfiesEnum(v, c)
	default:
		return false
	}
}

// satisfiesRange checks that the candidate's whole interval lies within the
// required bounds. A zero Max on the constraint means unbounded above, so
// zero-valued YAML constraints behave as pure minimums.
func satisfiesRange(v Value, c Constraint) bool {
	max := c.Max
	if max == 0 {
		max = Unbounded
	}
	if v.Min < c.Min {
		return false
	}
	if !math.IsInf(max, 1) && v.Max > max {
		return false
	}
	return true
}

// satisfiesSet checks that the candidate offers every required member.
func satisfiesSet(v Value, c Constraint) bool {
	have := make(map[string]bool, len(v.Members))
	for _, m := range v.Members {
		have[m] = true
	}
	for _, required := range c.Required {
		if !have[required] {
			return false
		}
	}
	return true
}

// satisfiesEnum checks that the candidate's value is among the permitted ones.
// An empty permitted list is unconstrained.
func satisfiesEnum(v Value, c Constraint) bool {
	if len(c.Required) == 0 {
		return true
	}
	for _, allowed := range c.Required {
		if v.Enum == allowed {
			return true
		}
	}
	return false
}

// Slack measures how much the candidate overshoots the requirement: the sum
// over constrained range dimensions of the candidate's headroom above the
// required minimum (normalized by the minimum when positive), plus one per
// extra set member beyond the required ones. Lower slack means a closer,
// less wasteful fit. Only meaningful when Satisfies(cap, req) is true.
func Slack(cap Capability, req Requirement) float64 {
	total := 0.0
	for name, constraint := range req.Dimensions {
		value, ok := cap.Dimensions[name]
		if !ok || value.Kind != constraint.Kind {
			continue
		}
		switch constraint.Kind {
		case KindRange:
			headroom := value.Min - constraint.Min
			if constraint.Min > 0 {
				headroom /= constraint.Min
			}
			if headroom > 0 {
				total += headroom
			}
		case KindSet:
			required := make(map[string]bool, len(constraint.Required))
			for _, m := range constraint.Required {
				required[m] = true
			}
			for _, m := range value.Members {
				if !required[m] {
					total++
				}
			}
		}
	}
	return total
}
