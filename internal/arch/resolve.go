package arch

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// KernelSource selects which table entry supplies Target.KernelArch.
type KernelSource int

const (
	// KernelFromHost takes the kernel family from the host machine's entry.
	// A 64-bit kernel running a 32-bit compiler keeps its own family.
	KernelFromHost KernelSource = iota
	// KernelFromTarget takes the kernel family from the entry that supplied
	// the userspace triplet.
	KernelFromTarget
)

// ParseKernelSource accepts "host" or "target"; the empty string means host.
func ParseKernelSource(s string) (KernelSource, error) {
	switch s {
	case "", "host":
		return KernelFromHost, nil
	case "target":
		return KernelFromTarget, nil
	}
	return KernelFromHost, fmt.Errorf("invalid kernel arch source %q (want host or target)", s)
}

func (k KernelSource) String() string {
	if k == KernelFromTarget {
		return "target"
	}
	return "host"
}

// Target is the resolved build target for one invocation. It is computed
// once and passed by value to everything that needs it.
type Target struct {
	HostMachine   string `yaml:"host-machine"`
	Platform      string `yaml:"platform"`
	Triplet       string `yaml:"arch-triplet"`
	DebArch       string `yaml:"deb-arch"`
	KernelArch    string `yaml:"kernel-arch"`
	DynamicLinker string `yaml:"dynamic-linker"`

	hostTriplet string
}

// Cross reports whether the userspace triplet differs from the host's
// default one (multiarch or cross build).
func (t Target) Cross() bool {
	return t.hostTriplet != "" && t.Triplet != t.hostTriplet
}

// Resolver computes a Target from the host machine and the local compiler.
// The zero value uses the default table, uname(2) and `gcc -v`.
type Resolver struct {
	Table   *Table
	Machine func() (string, error)
	Probe   Prober
	Kernel  KernelSource
	Log     io.Writer // debug messages; nil discards them
}

// Resolve runs the resolution algorithm. It blocks on the compiler probe.
// If ctx is done by the time the probe returns, Resolve fails with ctx's
// error instead of falling back to host defaults.
func (r *Resolver) Resolve(ctx context.Context) (Target, error) {
	table := r.Table
	if table == nil {
		table = DefaultTable()
	}
	machineFn := r.Machine
	if machineFn == nil {
		machineFn = HostMachine
	}
	probe := r.Probe
	if probe == nil {
		probe = GCCProbe{}
	}
	log := r.Log
	if log == nil {
		log = io.Discard
	}

	machine, err := machineFn()
	if err != nil {
		return Target{}, &ConfigurationError{Err: err}
	}
	host, ok := table.ByMachine(machine)
	if !ok {
		return Target{}, &ConfigurationError{Machine: machine}
	}
	fmt.Fprintf(log, "host machine %s maps to platform %s\n", machine, host.Platform)

	target := Target{
		HostMachine:   machine,
		Platform:      host.Platform,
		Triplet:       host.Triplet,
		DebArch:       host.DebArch,
		KernelArch:    host.KernelArch,
		DynamicLinker: host.DynamicLinker,
		hostTriplet:   host.Triplet,
	}

	triplet, err := probe.TargetTriplet(ctx)
	if cerr := ctx.Err(); cerr != nil {
		// Cancelled or timed out, not missing.
		return Target{}, fmt.Errorf("compiler probe: %w", cerr)
	}
	if err != nil {
		var unavailable *ProbeUnavailableError
		if !errors.As(err, &unavailable) {
			err = &ProbeUnavailableError{Compiler: "compiler", Reason: "probe failed", Err: err}
		}
		fmt.Fprintf(log, "compiler probe unavailable, using host defaults: %v\n", err)
		return target, nil
	}
	if triplet == host.Triplet {
		return target, nil
	}

	userspace, ok := table.ByCompilerTriplet(triplet)
	if !ok {
		return Target{}, &ConfigurationError{Machine: machine, Triplet: triplet}
	}
	fmt.Fprintf(log, "compiler targets %s, building for platform %s\n", triplet, userspace.Platform)

	target.Platform = userspace.Platform
	target.Triplet = userspace.Triplet
	target.DebArch = userspace.DebArch
	target.DynamicLinker = userspace.DynamicLinker
	if r.Kernel == KernelFromTarget {
		target.KernelArch = userspace.KernelArch
	}
	return target, nil
}
