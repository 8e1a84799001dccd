package states

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Report describes how two states of the same step differ.
type Report struct {
	StepChanged     bool
	Files           bool
	Directories     bool
	DependencyPaths bool
	Properties      []string // property keys added, removed or changed
	ProjectOptions  []string // option keys added, removed or changed
}

// Dirty reports whether any difference was found.
func (r Report) Dirty() bool {
	return r.StepChanged || r.Files || r.Directories || r.DependencyPaths ||
		len(r.Properties) > 0 || len(r.ProjectOptions) > 0
}

// String renders the report as an operator-facing sentence.
func (r Report) String() string {
	if !r.Dirty() {
		return "up to date"
	}
	var reasons []string
	if r.StepChanged {
		reasons = append(reasons, "recorded for a different step")
	}
	if r.Files {
		reasons = append(reasons, "output files changed")
	}
	if r.Directories {
		reasons = append(reasons, "output directories changed")
	}
	if r.DependencyPaths {
		reasons = append(reasons, "dependency paths changed")
	}
	for _, k := range r.Properties {
		reasons = append(reasons, fmt.Sprintf("the %q part property appears to have changed", k))
	}
	for _, k := range r.ProjectOptions {
		reasons = append(reasons, fmt.Sprintf("the %q project option appears to have changed", k))
	}
	return strings.Join(reasons, "; ")
}

// Diff compares a persisted state with a freshly built candidate.
func Diff(old, candidate State) Report {
	return Report{
		StepChanged:     old.Step != candidate.Step,
		Files:           !old.Files.Equal(candidate.Files),
		Directories:     !old.Directories.Equal(candidate.Directories),
		DependencyPaths: !old.DependencyPaths.Equal(candidate.DependencyPaths),
		Properties:      changedKeys(old.Properties, candidate.Properties),
		ProjectOptions:  changedKeys(old.ProjectOptions, candidate.ProjectOptions),
	}
}

func changedKeys(a, b map[string]any) []string {
	var keys []string
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !reflect.DeepEqual(av, bv) {
			keys = append(keys, k)
		}
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
