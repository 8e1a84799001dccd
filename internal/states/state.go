package states

import (
	"fmt"
	"math"
	"reflect"

	"gopkg.in/yaml.v3"

	"kiln/internal/arch"
)

// State is the cached record of one step of one part. Two states are equal
// when they belong to the same step and their five fields match; nothing
// else (timestamps, file identity) takes part.
//
// A State is built fresh whenever a step completes or is about to be
// compared, and is never modified afterwards.
type State struct {
	Step            Step
	Files           PathSet
	Directories     PathSet
	DependencyPaths PathSet
	Properties      map[string]any // part properties of interest
	ProjectOptions  map[string]any // target options of interest
}

// Inputs are the current facts a state is built from.
type Inputs struct {
	Files           []string
	Directories     []string
	DependencyPaths []string
	Properties      map[string]any // the part's declared properties, unfiltered
}

// New builds the state of step from the current inputs and target. It has
// no side effects. The only error is a property value that has no YAML
// representation.
func New(step Step, in Inputs, target arch.Target, opts ...Option) (State, error) {
	if !step.valid() {
		return State{}, fmt.Errorf("unknown step %d", int(step))
	}
	props, err := normalize(PropertiesOfInterest(step, in.Properties, opts...))
	if err != nil {
		return State{}, fmt.Errorf("%s properties: %w", step, err)
	}
	projectOpts, err := normalize(ProjectOptionsOfInterest(step, target))
	if err != nil {
		return State{}, fmt.Errorf("%s project options: %w", step, err)
	}
	return State{
		Step:            step,
		Files:           NewPathSet(in.Files...),
		Directories:     NewPathSet(in.Directories...),
		DependencyPaths: NewPathSet(in.DependencyPaths...),
		Properties:      props,
		ProjectOptions:  projectOpts,
	}, nil
}

// Equal reports structural equality. States of different steps are never
// equal.
func (s State) Equal(other State) bool {
	return s.Step == other.Step &&
		s.Files.Equal(other.Files) &&
		s.Directories.Equal(other.Directories) &&
		s.DependencyPaths.Equal(other.DependencyPaths) &&
		mapsEqual(s.Properties, other.Properties) &&
		mapsEqual(s.ProjectOptions, other.ProjectOptions)
}

func mapsEqual(a, b map[string]any) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}

// normalize rewrites m into the shapes yaml.v3 decodes to ([]any,
// map[string]any, int, float64, ...) so that a freshly built state and one
// read back from disk compare equal.
func normalize(m map[string]any) (out map[string]any, err error) {
	// yaml.v3 panics on kinds it cannot encode (funcs, channels).
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	data, err := yaml.Marshal(m)
	if err != nil {
		return nil, err
	}
	out = make(map[string]any)
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	for k, v := range out {
		if hasNaN(v) {
			return nil, fmt.Errorf("%s: NaN never compares equal", k)
		}
	}
	return out, nil
}

func hasNaN(v any) bool {
	switch v := v.(type) {
	case float64:
		return math.IsNaN(v)
	case []any:
		for _, e := range v {
			if hasNaN(e) {
				return true
			}
		}
	case map[string]any:
		for _, e := range v {
			if hasNaN(e) {
				return true
			}
		}
	case map[any]any:
		for k, e := range v {
			if hasNaN(k) || hasNaN(e) {
				return true
			}
		}
	}
	return false
}
