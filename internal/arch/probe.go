package arch

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"strings"
)

// Prober reports the target triplet of the local C compiler.
type Prober interface {
	TargetTriplet(ctx context.Context) (string, error)
}

// RunFunc runs name with args and returns what the process wrote to stderr.
// A non-nil error means the binary was missing or exited non-zero.
type RunFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// GCCProbe asks a gcc-compatible frontend for its target with `<compiler> -v`.
type GCCProbe struct {
	Compiler string  // defaults to "gcc"
	Run      RunFunc // defaults to CaptureStderr
}

// TargetTriplet implements Prober. Every failure is reported as a
// *ProbeUnavailableError.
func (p GCCProbe) TargetTriplet(ctx context.Context) (string, error) {
	compiler := p.Compiler
	if compiler == "" {
		compiler = "gcc"
	}
	run := p.Run
	if run == nil {
		run = CaptureStderr
	}

	out, err := run(ctx, compiler, "-v")
	if err != nil {
		return "", &ProbeUnavailableError{Compiler: compiler, Reason: "probe failed", Err: err}
	}
	target, ok := ParseTarget(out)
	if !ok {
		return "", &ProbeUnavailableError{Compiler: compiler, Reason: "no target reported"}
	}
	return target, nil
}

// ParseTarget extracts the value of the first "Target:" line of compiler
// diagnostics. An empty value counts as no target.
func ParseTarget(diagnostics []byte) (string, bool) {
	scanner := bufio.NewScanner(bytes.NewReader(diagnostics))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		value, found := strings.CutPrefix(line, "Target:")
		if !found {
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" {
			return "", false
		}
		return value, true
	}
	return "", false
}

// CaptureStderr is the default RunFunc.
func CaptureStderr(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, err
	}
	return stderr.Bytes(), nil
}

// StaticProbe returns a fixed triplet. With Err set, or an empty Triplet,
// it reports the probe as unavailable.
type StaticProbe struct {
	Triplet string
	Err     error
}

// TargetTriplet implements Prober.
func (p StaticProbe) TargetTriplet(context.Context) (string, error) {
	if p.Err != nil {
		return "", p.Err
	}
	if p.Triplet == "" {
		return "", &ProbeUnavailableError{Compiler: "static", Reason: "no target reported"}
	}
	return p.Triplet, nil
}
