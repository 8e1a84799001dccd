package kiln

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// Executor runs helper processes (the compiler probe) in their own process
// group so that cancelling the context also kills anything they spawned.
type Executor struct {
	Env []string // nil inherits the environment
}

// CaptureStderr runs name with args and returns what it wrote to stderr.
// It has the signature of arch.RunFunc.
func (e *Executor) CaptureStderr(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.Command(name, args...)
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr
	if len(e.Env) > 0 {
		cmd.Env = e.Env
	} else {
		cmd.Env = os.Environ()
	}
	// LC_ALL=C keeps the "Target:" label untranslated.
	cmd.Env = append(cmd.Env, "LC_ALL=C")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	debugf("=> running %s %v\n", name, args)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", name, err)
	}

	pgid := cmd.Process.Pid
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = unix.Kill(-pgid, unix.SIGKILL)
		case <-done:
		}
	}()

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s aborted: %w", name, ctx.Err())
		}
		return nil, err
	}
	return stderr.Bytes(), nil
}
