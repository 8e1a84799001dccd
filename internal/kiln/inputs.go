package kiln

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"kiln/internal/arch"
	"kiln/internal/states"
)

// stepInputs are the command line inputs shared by status and record.
type stepInputs struct {
	propertiesFile string
	outputDir      string
	dependencies   []string
	pullProps      []string
	buildProps     []string
}

// loadProperties reads the part properties from a YAML file. The file is
// either the part's own mapping or a project file with a top-level "parts"
// mapping, from which part is selected. An empty path means no properties.
func loadProperties(path, part string) (map[string]any, error) {
	if path == "" {
		return map[string]any{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc map[string]any
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if doc == nil {
		return map[string]any{}, nil
	}

	parts, ok := doc["parts"]
	if !ok {
		return doc, nil
	}
	byName, ok := parts.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("parse %s: parts is not a mapping", path)
	}
	props, ok := byName[part]
	if !ok {
		return nil, fmt.Errorf("%s: no part named %q", path, part)
	}
	switch p := props.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return p, nil
	}
	return nil, fmt.Errorf("%s: part %q is not a mapping", path, part)
}

// walkOutput lists the files and directories under dir relative to it.
// Symlinks are recorded as files and not followed.
func walkOutput(dir string) (files, dirs []string, err error) {
	if dir == "" {
		return nil, nil, nil
	}
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			dirs = append(dirs, rel)
		} else {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	return files, dirs, nil
}

func (in stepInputs) options() []states.Option {
	if len(in.pullProps) == 0 && len(in.buildProps) == 0 {
		return nil
	}
	return []states.Option{states.WithPluginProperties(in.pullProps, in.buildProps)}
}

// candidate builds the state step would record for part now. Files and
// directories come from the output directory when one is given; otherwise
// they are carried over from the recorded state, since they are produced
// by the step rather than chosen by the user.
func (in stepInputs) candidate(store *states.Store, part string, step states.Step, target arch.Target) (states.State, error) {
	props, err := loadProperties(in.propertiesFile, part)
	if err != nil {
		return states.State{}, err
	}

	inputs := states.Inputs{Properties: props, DependencyPaths: in.dependencies}
	if in.outputDir != "" {
		inputs.Files, inputs.Directories, err = walkOutput(in.outputDir)
		if err != nil {
			return states.State{}, err
		}
	} else {
		recorded, ok, err := store.Load(part, step)
		if err != nil {
			return states.State{}, err
		}
		if ok {
			inputs.Files = recorded.Files
			inputs.Directories = recorded.Directories
			if len(inputs.DependencyPaths) == 0 {
				inputs.DependencyPaths = recorded.DependencyPaths
			}
		}
	}
	return states.New(step, inputs, target, in.options()...)
}
