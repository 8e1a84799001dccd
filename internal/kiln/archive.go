package kiln

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/ulikunitz/xz"

	"kiln/internal/states"
)

const (
	// digestRecord is the PAX record carrying an entry's BLAKE3 digest.
	digestRecord = "KILN.b3sum"
	// maxStateSize bounds a single state document read from an archive.
	maxStateSize = 16 << 20
)

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// compressWriter wraps w in the compressor matching name's extension.
func compressWriter(w io.Writer, name string) (io.WriteCloser, error) {
	switch {
	case strings.HasSuffix(name, ".tar.zst"):
		return zstd.NewWriter(w)
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return pgzip.NewWriter(w), nil
	case strings.HasSuffix(name, ".tar.xz"):
		return xz.NewWriter(w)
	case strings.HasSuffix(name, ".tar"):
		return nopWriteCloser{w}, nil
	}
	return nil, fmt.Errorf("unsupported archive format: %s", name)
}

// decompressReader is the reading side of compressWriter. The returned
// close function releases decoder resources.
func decompressReader(r io.Reader, name string) (io.Reader, func(), error) {
	switch {
	case strings.HasSuffix(name, ".tar.zst"):
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create zstd reader for %s: %w", name, err)
		}
		return zr, zr.Close, nil
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		gz, err := pgzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create gzip reader for %s: %w", name, err)
		}
		return gz, func() { gz.Close() }, nil
	case strings.HasSuffix(name, ".tar.xz"):
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create xz reader for %s: %w", name, err)
		}
		return xr, func() {}, nil
	case strings.HasSuffix(name, ".tar"):
		return r, func() {}, nil
	}
	return nil, nil, fmt.Errorf("unsupported archive format: %s", name)
}

// ExportPart writes every recorded state of part to the archive dest,
// compressed according to its extension. It returns the number of states
// written. States are loaded through the store, so a corrupt one fails the
// export instead of being copied.
func ExportPart(store *states.Store, part, dest string) (int, error) {
	if err := states.ValidatePart(part); err != nil {
		return 0, err
	}

	type entry struct {
		step states.Step
		data []byte
	}
	var entries []entry
	for _, step := range states.Steps() {
		state, ok, err := store.Load(part, step)
		if err != nil {
			return 0, err
		}
		if !ok {
			continue
		}
		data, err := states.Marshal(state)
		if err != nil {
			return 0, err
		}
		entries = append(entries, entry{step, data})
	}
	if len(entries) == 0 {
		return 0, fmt.Errorf("part %s has no recorded states", part)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".export-*")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	cw, err := compressWriter(tmp, dest)
	if err != nil {
		return 0, err
	}
	tw := tar.NewWriter(cw)
	now := time.Now().Truncate(time.Second)
	for _, e := range entries {
		hdr := &tar.Header{
			Typeflag:   tar.TypeReg,
			Name:       path.Join(part, "state", e.step.String()),
			Mode:       0o644,
			Size:       int64(len(e.data)),
			ModTime:    now,
			Format:     tar.FormatPAX,
			PAXRecords: map[string]string{digestRecord: states.Digest(e.data)},
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return 0, fmt.Errorf("write %s: %w", hdr.Name, err)
		}
		if _, err := tw.Write(e.data); err != nil {
			return 0, fmt.Errorf("write %s: %w", hdr.Name, err)
		}
	}
	if err := tw.Close(); err != nil {
		return 0, err
	}
	if err := cw.Close(); err != nil {
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return 0, err
	}
	debugf("=> exported %d states of %s to %s\n", len(entries), part, dest)
	return len(entries), nil
}

// ImportPart reads an archive written by ExportPart and replaces the
// recorded states of the part it contains. Every entry is verified before
// anything is written: entries outside <part>/state/<step>, entries for
// more than one part, and digest mismatches reject the whole archive.
func ImportPart(store *states.Store, src string) (string, error) {
	f, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return importArchive(store, f, src, "")
}

// importArchive does the work of ImportPart. A non-empty expect rejects
// archives of any other part.
func importArchive(store *states.Store, r io.Reader, name, expect string) (string, error) {
	dr, closeFn, err := decompressReader(r, name)
	if err != nil {
		return "", err
	}
	defer closeFn()

	var part string
	imported := make(map[states.Step]states.State)
	tr := tar.NewReader(dr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read %s: %w", name, err)
		}
		if hdr.Typeflag == tar.TypeDir {
			continue
		}
		if hdr.Typeflag != tar.TypeReg {
			return "", fmt.Errorf("illegal entry type in archive: %s", hdr.Name)
		}

		entryPart, step, err := parseEntryName(hdr.Name)
		if err != nil {
			return "", err
		}
		if expect != "" && entryPart != expect {
			return "", fmt.Errorf("archive %s holds part %s, want %s", name, entryPart, expect)
		}
		if part == "" {
			part = entryPart
		} else if entryPart != part {
			return "", fmt.Errorf("archive %s holds more than one part (%s, %s)", name, part, entryPart)
		}

		data, err := io.ReadAll(io.LimitReader(tr, maxStateSize+1))
		if err != nil {
			return "", fmt.Errorf("read %s: %w", hdr.Name, err)
		}
		if len(data) > maxStateSize {
			return "", fmt.Errorf("%s: state document too large", hdr.Name)
		}
		want, ok := hdr.PAXRecords[digestRecord]
		if !ok {
			return "", fmt.Errorf("%s: missing digest", hdr.Name)
		}
		if got := states.Digest(data); got != want {
			return "", &states.CorruptStateError{Path: hdr.Name, Err: fmt.Errorf("digest mismatch: got %s, want %s", got, want)}
		}
		state, err := states.Unmarshal(data)
		if err != nil {
			return "", err
		}
		if state.Step != step {
			return "", &states.CorruptStateError{Path: hdr.Name, Err: fmt.Errorf("holds the %s state", state.Step)}
		}
		imported[step] = state
	}
	if part == "" {
		return "", fmt.Errorf("archive %s holds no states", name)
	}

	for _, step := range states.Steps() {
		state, ok := imported[step]
		if !ok {
			if err := store.Remove(part, step); err != nil {
				return "", err
			}
			continue
		}
		if err := store.Save(part, state); err != nil {
			return "", err
		}
	}
	debugf("=> imported %d states of %s from %s\n", len(imported), part, name)
	return part, nil
}

// parseEntryName splits "<part>/state/<step>", rejecting anything that
// could escape the store.
func parseEntryName(name string) (string, states.Step, error) {
	clean := path.Clean(name)
	if clean != name || path.IsAbs(name) {
		return "", 0, fmt.Errorf("illegal file path in archive: %s", name)
	}
	elems := strings.Split(clean, "/")
	if len(elems) != 3 || elems[1] != "state" {
		return "", 0, fmt.Errorf("illegal file path in archive: %s", name)
	}
	if err := states.ValidatePart(elems[0]); err != nil {
		return "", 0, fmt.Errorf("illegal file path in archive: %s: %w", name, err)
	}
	step, err := states.ParseStep(elems[2])
	if err != nil || step.String() != elems[2] {
		return "", 0, fmt.Errorf("illegal file path in archive: %s: not a step", name)
	}
	return elems[0], step, nil
}
