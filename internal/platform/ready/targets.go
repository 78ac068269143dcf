package ready

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"testrig/internal/capability"
)

// TargetsFile is the YAML format describing the ready adapter's targets.
type TargetsFile struct {
	Targets []targetSpec `yaml:"targets"`
}

// targetSpec is one target entry. SSH, when set, is the wrapper argv used to
// reach the machine (e.g. ["ssh", "user@host"]); empty means local execution.
type targetSpec struct {
	Name       string               `yaml:"name"`
	SSH        []string             `yaml:"ssh,omitempty"`
	Capability map[string]valueSpec `yaml:"capability,omitempty"`
}

// valueSpec is the YAML shape of one capability dimension. The kind is
// usually inferred: min/max mean range, members mean set, flag means flag,
// enum means enum.
type valueSpec struct {
	Min     *float64 `yaml:"min,omitempty"`
	Max     *float64 `yaml:"max,omitempty"`
	Members []string `yaml:"members,omitempty"`
	Flag    *bool    `yaml:"flag,omitempty"`
	Enum    string   `yaml:"enum,omitempty"`
}

func (v valueSpec) toValue(dimension string) (capability.Value, error) {
	switch {
	case v.Min != nil || v.Max != nil:
		min := 0.0
		if v.Min != nil {
			min = *v.Min
		}
		max := min
		if v.Max != nil {
			max = *v.Max
		}
		return capability.RangeValue(min, max), nil
	case len(v.Members) > 0:
		return capability.SetValue(v.Members...), nil
	case v.Flag != nil:
		return capability.FlagValue(*v.Flag), nil
	case v.Enum != "":
		return capability.EnumValue(v.Enum), nil
	default:
		return capability.Value{}, fmt.Errorf("dimension %q: cannot infer value kind", dimension)
	}
}

// LoadTargets reads a targets file and builds exec-backed targets from it.
func LoadTargets(path string) ([]Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading targets %s: %w", path, err)
	}

	var file TargetsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing targets %s: %w", path, err)
	}

	targets := make([]Target, 0, len(file.Targets))
	for _, spec := range file.Targets {
		if spec.Name == "" {
			return nil, fmt.Errorf("targets %s: every target needs a name", path)
		}

		cap := capability.NewCapability(spec.Name)
		for dimension, vs := range spec.Capability {
			value, err := vs.toValue(dimension)
			if err != nil {
				return nil, fmt.Errorf("target %q: %w", spec.Name, err)
			}
			cap = cap.With(dimension, value)
		}
		targets = append(targets, NewExecTarget(spec.Name, cap, spec.SSH))
	}
	return targets, nil
}
