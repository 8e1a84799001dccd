package kiln

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"kiln/internal/states"
)

// objectStore is the part of R2Client used by push and pull.
type objectStore interface {
	DownloadFile(ctx context.Context, key string) ([]byte, error)
	UploadFile(ctx context.Context, key string, body []byte) error
	ListObjects(ctx context.Context, prefix string) ([]R2Object, error)
}

const remoteSuffix = ".tar.zst"

// remoteKey is where a part's archive lives for a platform. Archives of
// different platforms never overwrite each other.
func remoteKey(platform, part string) string {
	return path.Join("states", platform, part+remoteSuffix)
}

// newProgress shows a bar on terminals and stays silent otherwise.
func newProgress(w io.Writer, n int, desc string) *progressbar.ProgressBar {
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return progressbar.NewOptions(n,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription(desc),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}
	return progressbar.DefaultSilent(int64(n), desc)
}

// pushParts exports each part and uploads it. With no parts given, every
// part in the store is pushed.
func pushParts(ctx context.Context, remote objectStore, store *states.Store, platform string, parts []string, out io.Writer) (int, error) {
	if len(parts) == 0 {
		var err error
		if parts, err = store.Parts(); err != nil {
			return 0, err
		}
	}
	if len(parts) == 0 {
		return 0, nil
	}

	tmpDir, err := os.MkdirTemp("", "kiln-push-")
	if err != nil {
		return 0, err
	}
	defer os.RemoveAll(tmpDir)

	bar := newProgress(out, len(parts), "pushing")
	pushed := 0
	for _, part := range parts {
		if err := ctx.Err(); err != nil {
			return pushed, err
		}
		bar.Describe(part)
		local := filepath.Join(tmpDir, part+remoteSuffix)
		if _, err := ExportPart(store, part, local); err != nil {
			return pushed, fmt.Errorf("export %s: %w", part, err)
		}
		data, err := os.ReadFile(local)
		if err != nil {
			return pushed, err
		}
		key := remoteKey(platform, part)
		if err := remote.UploadFile(ctx, key, data); err != nil {
			return pushed, fmt.Errorf("upload %s: %w", key, err)
		}
		debugf("=> uploaded %s (%d bytes)\n", key, len(data))
		pushed++
		_ = bar.Add(1)
	}
	_ = bar.Finish()
	return pushed, nil
}

// pullParts downloads and imports archives for platform. With no parts
// given, every archive under the platform prefix is pulled.
func pullParts(ctx context.Context, remote objectStore, store *states.Store, platform string, parts []string, out io.Writer) (int, error) {
	keys := make([]string, 0, len(parts))
	for _, part := range parts {
		if err := states.ValidatePart(part); err != nil {
			return 0, err
		}
		keys = append(keys, remoteKey(platform, part))
	}
	if len(parts) == 0 {
		objects, err := remote.ListObjects(ctx, path.Join("states", platform)+"/")
		if err != nil {
			return 0, fmt.Errorf("list remote states: %w", err)
		}
		for _, obj := range objects {
			if strings.HasSuffix(obj.Key, remoteSuffix) {
				keys = append(keys, obj.Key)
			}
		}
		sort.Strings(keys)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	bar := newProgress(out, len(keys), "pulling")
	pulled := 0
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return pulled, err
		}
		bar.Describe(path.Base(key))
		data, err := remote.DownloadFile(ctx, key)
		if err != nil {
			return pulled, fmt.Errorf("download %s: %w", key, err)
		}
		want := strings.TrimSuffix(path.Base(key), remoteSuffix)
		if _, err := importArchive(store, bytes.NewReader(data), key, want); err != nil {
			return pulled, fmt.Errorf("import %s: %w", key, err)
		}
		pulled++
		_ = bar.Add(1)
	}
	_ = bar.Finish()
	return pulled, nil
}
