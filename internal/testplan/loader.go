package testplan

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"testrig/internal/capability"
)

// PlanFile is the YAML runbook format: an ordered list of registered test
// IDs with optional per-test overrides.
type PlanFile struct {
	Name  string      `yaml:"name"`
	Tests []PlanEntry `yaml:"tests"`
}

// PlanEntry selects one registered test and optionally overrides its
// priority or adds requirement dimensions. Entries with a Command instead
// describe a shell test run over the environment's control channel; the CLI
// registers those before binding the plan.
type PlanEntry struct {
	ID          string                    `yaml:"id"`
	Name        string                    `yaml:"name,omitempty"`
	Command     string                    `yaml:"command,omitempty"`
	Priority    *int                      `yaml:"priority,omitempty"`
	Requirement map[string]constraintSpec `yaml:"requirement,omitempty"`
}

// constraintSpec is the YAML shape of one requirement dimension. The kind is
// usually inferred: min/max mean range, members mean set (or enum when kind
// says so), required means flag.
type constraintSpec struct {
	Kind     string   `yaml:"kind,omitempty"`
	Min      *float64 `yaml:"min,omitempty"`
	Max      *float64 `yaml:"max,omitempty"`
	Members  []string `yaml:"members,omitempty"`
	Required *bool    `yaml:"required,omitempty"`
}

func (c constraintSpec) toConstraint(dimension string) (capability.Constraint, error) {
	kind := capability.Kind(c.Kind)
	if c.Kind == "" {
		switch {
		case c.Min != nil || c.Max != nil:
			kind = capability.KindRange
		case c.Required != nil:
			kind = capability.KindFlag
		case len(c.Members) > 0:
			kind = capability.KindSet
		default:
			return capability.Constraint{}, fmt.Errorf("dimension %q: cannot infer constraint kind", dimension)
		}
	}

	switch kind {
	case capability.KindRange:
		constraint := capability.Constraint{Kind: capability.KindRange, Max: capability.Unbounded}
		if c.Min != nil {
			constraint.Min = *c.Min
		}
		if c.Max != nil {
			constraint.Max = *c.Max
		}
		return constraint, nil
	case capability.KindSet:
		return capability.Constraint{Kind: capability.KindSet, Required: c.Members}, nil
	case capability.KindFlag:
		required := true
		if c.Required != nil {
			required = *c.Required
		}
		return capability.Constraint{Kind: capability.KindFlag, Flag: required}, nil
	case capability.KindEnum:
		return capability.Constraint{Kind: capability.KindEnum, Required: c.Members}, nil
	default:
		return capability.Constraint{}, fmt.Errorf("dimension %q: unknown constraint kind %q", dimension, c.Kind)
	}
}

// PlanSource resolves a plan file against a registry, yielding the run's
// test cases in plan order.
type PlanSource struct {
	registry *Registry
	plan     PlanFile
}

// ReadPlan reads and parses a plan file without binding it to a registry.
func ReadPlan(path string) (PlanFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PlanFile{}, fmt.Errorf("reading plan %s: %w", path, err)
	}

	var plan PlanFile
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return PlanFile{}, fmt.Errorf("parsing plan %s: %w", path, err)
	}
	return plan, nil
}

// LoadPlan reads and parses a plan file and binds it to the registry.
// Referencing an unregistered test ID is a load error.
func LoadPlan(path string, registry *Registry) (*PlanSource, error) {
	plan, err := ReadPlan(path)
	if err != nil {
		return nil, err
	}
	return NewPlanSource(plan, registry)
}

// NewPlanSource binds an already-parsed plan to a registry.
func NewPlanSource(plan PlanFile, registry *Registry) (*PlanSource, error) {
	for _, entry := range plan.Tests {
		if _, ok := registry.Get(entry.ID); !ok {
			return nil, fmt.Errorf("plan references unregistered test %q", entry.ID)
		}
	}
	return &PlanSource{registry: registry, plan: plan}, nil
}

// Tests implements Source. Plan-file requirement dimensions override the
// registered ones dimension by dimension; registered dimensions the plan
// does not mention are kept.
func (s *PlanSource) Tests() ([]TestCase, error) {
	out := make([]TestCase, 0, len(s.plan.Tests))
	for _, entry := range s.plan.Tests {
		tc, ok := s.registry.Get(entry.ID)
		if !ok {
			return nil, fmt.Errorf("plan references unregistered test %q", entry.ID)
		}

		if entry.Priority != nil {
			tc.Priority = *entry.Priority
		}

		if len(entry.Requirement) > 0 {
			merged := capability.NewRequirement()
			for name, c := range tc.Requirement.Dimensions {
				merged = merged.With(name, c)
			}
			for name, spec := range entry.Requirement {
				constraint, err := spec.toConstraint(name)
				if err != nil {
					return nil, fmt.Errorf("test %q: %w", entry.ID, err)
				}
				merged = merged.With(name, constraint)
			}
			tc.Requirement = merged
		}

		out = append(out, tc)
	}
	return out, nil
}
