package states

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"lukechampine.com/blake3"
)

const digestSuffix = ".b3"

// Store persists one state document per (part, step) under
// <root>/<part>/state/<step>, next to a BLAKE3 digest of the document.
// Parts never share files, so no locking is needed.
type Store struct {
	Root string
}

// NewStore returns a store rooted at root.
func NewStore(root string) *Store {
	return &Store{Root: root}
}

// Digest returns the hex BLAKE3-256 digest of data.
func Digest(data []byte) string {
	h := blake3.New(32, nil)
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ValidatePart rejects names that cannot be used as a single path element.
func ValidatePart(part string) error {
	switch {
	case part == "", part == ".", part == "..":
		return fmt.Errorf("invalid part name %q", part)
	case strings.ContainsAny(part, `/\`), strings.ContainsRune(part, 0):
		return fmt.Errorf("invalid part name %q: contains a path separator", part)
	}
	return nil
}

// Dir returns the state directory of part.
func (s *Store) Dir(part string) string {
	return filepath.Join(s.Root, part, "state")
}

// Path returns the file holding the state of part's step.
func (s *Store) Path(part string, step Step) string {
	return filepath.Join(s.Dir(part), step.String())
}

// Load reads the persisted state of part's step. ok is false when no state
// was ever recorded. A file that exists but cannot be trusted yields a
// *CorruptStateError.
func (s *Store) Load(part string, step Step) (state State, ok bool, err error) {
	if err := ValidatePart(part); err != nil {
		return State{}, false, err
	}
	path := s.Path(part, step)

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, &CorruptStateError{Path: path, Err: err}
	}

	want, err := os.ReadFile(path + digestSuffix)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// Written without a digest; the document is still checked below.
	case err != nil:
		return State{}, false, &CorruptStateError{Path: path, Err: err}
	default:
		if got := Digest(data); got != string(bytes.TrimSpace(want)) {
			return State{}, false, &CorruptStateError{
				Path: path,
				Err:  fmt.Errorf("digest mismatch: recorded %s, computed %s", bytes.TrimSpace(want), got),
			}
		}
	}

	state, err = Unmarshal(data)
	if err != nil {
		var corrupt *CorruptStateError
		if errors.As(err, &corrupt) {
			corrupt.Path = path
		}
		return State{}, false, err
	}
	if state.Step != step {
		return State{}, false, &CorruptStateError{
			Path: path,
			Err:  fmt.Errorf("file records the %s step", state.Step),
		}
	}
	return state, true, nil
}

// Save persists state for part, replacing any previous state of that step.
func (s *Store) Save(part string, state State) error {
	if err := ValidatePart(part); err != nil {
		return err
	}
	data, err := Marshal(state)
	if err != nil {
		return fmt.Errorf("encode %s state of %s: %w", state.Step, part, err)
	}
	dir := s.Dir(part)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := s.Path(part, state.Step)
	// Digest first: a crash between the two renames leaves a mismatch that
	// Load reports instead of an old document passing as current.
	if err := writeFileAtomic(path+digestSuffix, []byte(Digest(data)+"\n")); err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

// Remove deletes the persisted state of part's step, if any.
func (s *Store) Remove(part string, step Step) error {
	if err := ValidatePart(part); err != nil {
		return err
	}
	path := s.Path(part, step)
	for _, p := range []string{path, path + digestSuffix} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// Parts lists the parts that have a state directory, sorted by name.
func (s *Store) Parts() ([]string, error) {
	entries, err := os.ReadDir(s.Root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var parts []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if info, err := os.Stat(s.Dir(e.Name())); err == nil && info.IsDir() {
			parts = append(parts, e.Name())
		}
	}
	sort.Strings(parts)
	return parts, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
