package kiln

import (
	"context"
	"strings"

	"kiln/internal/arch"
)

// newResolver builds the resolver described by the settings. A machine
// override replaces uname(2); compiler "none" turns the probe off so the
// host defaults apply.
func newResolver(s Settings) *arch.Resolver {
	r := &arch.Resolver{
		Table:  arch.DefaultTable(),
		Kernel: s.Kernel,
		Log:    debugWriter(),
	}
	if m := strings.TrimSpace(s.Machine); m != "" {
		r.Machine = func() (string, error) { return m, nil }
	}
	if strings.EqualFold(s.Compiler, "none") {
		r.Probe = arch.StaticProbe{Err: &arch.ProbeUnavailableError{Compiler: "none", Reason: "probe disabled"}}
	} else {
		exe := &Executor{}
		r.Probe = arch.GCCProbe{Compiler: s.Compiler, Run: exe.CaptureStderr}
	}
	return r
}

// resolveTarget resolves the build target, bounding the probe by the
// configured timeout.
func resolveTarget(ctx context.Context, s Settings) (arch.Target, error) {
	ctx, cancel := context.WithTimeout(ctx, s.ProbeTimeout)
	defer cancel()
	return newResolver(s).Resolve(ctx)
}
