package states

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// CorruptStateError reports a persisted state that could not be read back.
// It must not be treated as "no prior state".
type CorruptStateError struct {
	Path string // empty when decoding from memory
	Err  error
}

func (e *CorruptStateError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("corrupt state: %v", e.Err)
	}
	return fmt.Sprintf("corrupt state %s: %v", e.Path, e.Err)
}

func (e *CorruptStateError) Unwrap() error { return e.Err }

// document is the on-disk layout of a State.
type document struct {
	Step            string         `yaml:"step"`
	Files           []string       `yaml:"files"`
	Directories     []string       `yaml:"directories"`
	DependencyPaths []string       `yaml:"dependency-paths"`
	Properties      map[string]any `yaml:"properties"`
	ProjectOptions  map[string]any `yaml:"project-options"`
}

// storedDocument is document as read back. Every key is required, so
// presence is tracked with pointers.
type storedDocument struct {
	Step            *string         `yaml:"step"`
	Files           *[]string       `yaml:"files"`
	Directories     *[]string       `yaml:"directories"`
	DependencyPaths *[]string       `yaml:"dependency-paths"`
	Properties      *map[string]any `yaml:"properties"`
	ProjectOptions  *map[string]any `yaml:"project-options"`
}

// missing names the first absent key, or "" when all are present.
func (d storedDocument) missing() string {
	switch {
	case d.Step == nil:
		return "step"
	case d.Files == nil:
		return "files"
	case d.Directories == nil:
		return "directories"
	case d.DependencyPaths == nil:
		return "dependency-paths"
	case d.Properties == nil:
		return "properties"
	case d.ProjectOptions == nil:
		return "project-options"
	}
	return ""
}

// Marshal encodes s as a YAML document. Paths are written sorted so equal
// states produce identical bytes.
func Marshal(s State) ([]byte, error) {
	if !s.Step.valid() {
		return nil, fmt.Errorf("unknown step %d", int(s.Step))
	}
	doc := document{
		Step:            s.Step.String(),
		Files:           NewPathSet(s.Files...),
		Directories:     NewPathSet(s.Directories...),
		DependencyPaths: NewPathSet(s.DependencyPaths...),
		Properties:      nonNil(s.Properties),
		ProjectOptions:  nonNil(s.ProjectOptions),
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a document written by Marshal. Anything else, including
// unknown or missing keys and trailing documents, is a *CorruptStateError.
// A document cut short is never completed with empty values.
func Unmarshal(data []byte) (State, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc storedDocument
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("empty document")
		}
		return State{}, &CorruptStateError{Err: err}
	}
	var extra any
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		if err == nil {
			err = errors.New("unexpected trailing document")
		}
		return State{}, &CorruptStateError{Err: err}
	}
	if key := doc.missing(); key != "" {
		return State{}, &CorruptStateError{Err: fmt.Errorf("missing %s", key)}
	}
	step, err := ParseStep(*doc.Step)
	if err != nil {
		return State{}, &CorruptStateError{Err: err}
	}

	return State{
		Step:            step,
		Files:           NewPathSet(*doc.Files...),
		Directories:     NewPathSet(*doc.Directories...),
		DependencyPaths: NewPathSet(*doc.DependencyPaths...),
		Properties:      nonNil(*doc.Properties),
		ProjectOptions:  nonNil(*doc.ProjectOptions),
	}, nil
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
