package states

import (
	"fmt"
	"strings"
)

// Step is one phase of a part's lifecycle.
type Step int

const (
	Pull Step = iota
	Build
	Stage
	Prime
)

var stepNames = [...]string{"pull", "build", "stage", "prime"}

// Steps returns every step in lifecycle order.
func Steps() []Step {
	return []Step{Pull, Build, Stage, Prime}
}

func (s Step) String() string {
	if s.valid() {
		return stepNames[s]
	}
	return fmt.Sprintf("step(%d)", int(s))
}

func (s Step) valid() bool {
	return s >= Pull && s <= Prime
}

// Later returns the steps after s, in order.
func (s Step) Later() []Step {
	var out []Step
	for _, step := range Steps() {
		if step > s {
			out = append(out, step)
		}
	}
	return out
}

// ParseStep converts a step name such as "prime" into a Step.
func ParseStep(name string) (Step, error) {
	for i, n := range stepNames {
		if strings.EqualFold(name, n) {
			return Step(i), nil
		}
	}
	return 0, fmt.Errorf("unknown step %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (s Step) MarshalText() ([]byte, error) {
	if !s.valid() {
		return nil, fmt.Errorf("unknown step %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Step) UnmarshalText(text []byte) error {
	step, err := ParseStep(string(text))
	if err != nil {
		return err
	}
	*s = step
	return nil
}
