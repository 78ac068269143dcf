package capability

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Kind identifies how a dimension's value is interpreted.
type Kind string

const (
	// KindRange is an ordered numeric interval (core count, memory MB, ...).
	KindRange Kind = "range"
	// KindSet is a discrete collection of named choices (disk types, ...).
	KindSet Kind = "set"
	// KindFlag is a boolean feature presence (gpu, nested virtualization, ...).
	KindFlag Kind = "flag"
	// KindEnum is a single named value from a vocabulary (platform type, ...).
	KindEnum Kind = "enum"
)

// Unbounded marks a range with no upper limit.
var Unbounded = math.Inf(1)

// Value is one fully-resolved dimension of a capability. It always describes
// a concrete point or interval of a real or provisionable environment.
type Value struct {
	Kind    Kind
	Min     float64  // range: lower bound of the interval
	Max     float64  // range: upper bound of the interval (may be Unbounded)
	Members []string // set: the choices this environment supports
	Flag    bool     // flag: whether the feature is present
	Enum    string   // enum: the concrete value
}

// RangeValue builds a range dimension covering [min, max].
func RangeValue(min, max float64) Value {
	return Value{Kind: KindRange, Min: min, Max: max}
}

// PointValue builds a range dimension for a single measured value.
func PointValue(v float64) Value {
	return Value{Kind: KindRange, Min: v, Max: v}
}

// SetValue builds a set dimension with the given members.
func SetValue(members ...string) Value {
	return Value{Kind: KindSet, Members: members}
}

// FlagValue builds a flag dimension.
func FlagValue(present bool) Value {
	return Value{Kind: KindFlag, Flag: present}
}

// EnumValue builds an enum dimension.
func EnumValue(v string) Value {
	return Value{Kind: KindEnum, Enum: v}
}

// Capability describes the measurable properties of one real or
// provisionable environment, as a mapping from dimension name to value.
type Capability struct {
	// Name labels the capability for reporting (template or environment name).
	Name string
	// Dimensions maps dimension name to its concrete value.
	Dimensions map[string]Value
}

// NewCapability creates an empty named capability.
func NewCapability(name string) Capability {
	return Capability{Name: name, Dimensions: make(map[string]Value)}
}

// With sets a dimension and returns the capability, for fluent construction.
func (c Capability) With(dimension string, v Value) Capability {
	if c.Dimensions == nil {
		c.Dimensions = make(map[string]Value)
	}
	c.Dimensions[dimension] = v
	return c
}

// Clone returns a deep copy. Capabilities are owned by a single lifecycle
// manager once assigned to an environment, so refinement always works on a
// copy, never on a shared object.
func (c Capability) Clone() Capability {
	out := Capability{Name: c.Name, Dimensions: make(map[string]Value, len(c.Dimensions))}
	for name, v := range c.Dimensions {
		nv := v
		if v.Members != nil {
			nv.Members = append([]string(nil), v.Members...)
		}
		out.Dimensions[name] = nv
	}
	return out
}

// String renders the capability in a stable, human-readable form.
func (c Capability) String() string {
	names := make([]string, 0, len(c.Dimensions))
	for name := range c.Dimensions {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		v := c.Dimensions[name]
		switch v.Kind {
		case KindRange:
			if v.Min == v.Max {
				parts = append(parts, fmt.Sprintf("%s=%g", name, v.Min))
			} else if math.IsInf(v.Max, 1) {
				parts = append(parts, fmt.Sprintf("%s=[%g,∞)", name, v.Min))
			} else {
				parts = append(parts, fmt.Sprintf("%s=[%g,%g]", name, v.Min, v.Max))
			}
		case KindSet:
			parts = append(parts, fmt.Sprintf("%s={%s}", name, strings.Join(v.Members, ",")))
		case KindFlag:
			parts = append(parts, fmt.Sprintf("%s=%t", name, v.Flag))
		case KindEnum:
			parts = append(parts, fmt.Sprintf("%s=%s", name, v.Enum))
		}
	}
	return c.Name + "(" + strings.Join(parts, " ") + ")"
}

// Constraint is one dimension of a requirement. The zero value of any field
// that the requirement does not care about leaves that aspect unconstrained.
type Constraint struct {
	Kind Kind
	// Min and Max bound a range dimension: the candidate's whole interval
	// must lie within [Min, Max]. Max of 0 means unbounded above.
	Min float64
	Max float64
	// Required lists required set members (KindSet) or permitted enum
	// values (KindEnum).
	Required []string
	// Flag, when true, demands the candidate have the feature. A false
	// flag constraint is always satisfied.
	Flag bool
}

// MinRange builds a range constraint with only a lower bound.
func MinRange(min float64) Constraint {
	return Constraint{Kind: KindRange, Min: min, Max: Unbounded}
}

// BoundedRange builds a range constraint bounded on both sides.
func BoundedRange(min, max float64) Constraint {
	return Constraint{Kind: KindRange, Min: min, Max: max}
}

// RequireMembers builds a set constraint requiring all listed members.
func RequireMembers(members ...string) Constraint {
	return Constraint{Kind: KindSet, Required: members}
}

// RequireFlag builds a flag constraint.
func RequireFlag() Constraint {
	return Constraint{Kind: KindFlag, Flag: true}
}

// OneOf builds an enum constraint permitting any of the listed values.
func OneOf(values ...string) Constraint {
	return Constraint{Kind: KindEnum, Required: values}
}

// Requirement is the constraint set a test declares against candidate
// capabilities. Dimensions it does not mention are always satisfied.
type Requirement struct {
	Dimensions map[string]Constraint
}

// NewRequirement creates an empty requirement (satisfied by anything).
func NewRequirement() Requirement {
	return Requirement{Dimensions: make(map[string]Constraint)}
}

// With adds a constraint and returns the requirement, for fluent construction.
func (r Requirement) With(dimension string, c Constraint) Requirement {
	if r.Dimensions == nil {
		r.Dimensions = make(map[string]Constraint)
	}
	r.Dimensions[dimension] = c
	return r
}

// Equal reports whether two requirements express exactly the same
// constraints. The scheduler groups tests onto shared environments by
// requirement equality.
func (r Requirement) Equal(other Requirement) bool {
	if len(r.Dimensions) != len(other.Dimensions) {
		return false
	}
	for name, c := range r.Dimensions {
		oc, ok := other.Dimensions[name]
		if !ok {
			return false
		}
		if c.Kind != oc.Kind || c.Min != oc.Min || c.Max != oc.Max || c.Flag != oc.Flag {
			return false
		}
		if !equalStringSets(c.Required, oc.Required) {
			return false
		}
	}
	return true
}

// Key returns a stable string key for grouping by requirement equality.
func (r Requirement) Key() string {
	names := make([]string, 0, len(r.Dimensions))
	for name := range r.Dimensions {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		c := r.Dimensions[name]
		required := append([]string(nil), c.Required...)
		sort.Strings(required)
		fmt.Fprintf(&b, "%s:%s:%g:%g:%t:%s;", name, c.Kind, c.Min, c.Max, c.Flag, strings.Join(required, ","))
	}
	return b.String()
}

func equalStringSets(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, s := range a {
		seen[s]++
	}
	for _, s := range b {
		seen[s]--
		if seen[s] < 0 {
			return false
		}
	}
	return true
}
