package arch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByMachineAliases(t *testing.T) {
	table := DefaultTable()
	tests := []struct {
		machine  string
		platform string
	}{
		{"x86_64", "x86_64"},
		{"amd64", "x86_64"},
		{"i686", "i686"},
		{"i386", "i686"},
		{"armv7l", "armv7l"},
		{"armv8l", "armv7l"},
		{"aarch64", "aarch64"},
		{"arm64", "aarch64"},
		{"ppc", "ppc"},
		{"ppc64le", "ppc64le"},
		{"s390x", "s390x"},
		{"riscv64", "riscv64"},
	}
	for _, tt := range tests {
		t.Run(tt.machine, func(t *testing.T) {
			e, ok := table.ByMachine(tt.machine)
			require.True(t, ok)
			assert.Equal(t, tt.platform, e.Platform)
		})
	}
}

func TestByMachineIsExact(t *testing.T) {
	table := DefaultTable()
	for _, name := range []string{"", "x86", "X86_64", "x86_64 ", "armv7", "aarch"} {
		_, ok := table.ByMachine(name)
		assert.False(t, ok, "machine %q should not match", name)
	}
}

func TestByCompilerTriplet(t *testing.T) {
	table := NewTable(Entry{Platform: "foo", Triplet: "bar-linux-gnu"})
	e, ok := table.ByCompilerTriplet("bar-linux-gnu")
	require.True(t, ok)
	assert.Equal(t, "foo", e.Platform)
}

func TestByCompilerTripletOverride(t *testing.T) {
	table := NewTable(Entry{Platform: "foo", Triplet: "bar-linux-gnu", GCCTriplet: "barbar-linux-gnu"})
	e, ok := table.ByCompilerTriplet("barbar-linux-gnu")
	require.True(t, ok)
	assert.Equal(t, "foo", e.Platform)
}

func TestByCompilerTripletInvalid(t *testing.T) {
	table := NewTable(Entry{Platform: "foo", Triplet: "bar-linux-gnu", GCCTriplet: "barbar-linux-gnu"})
	_, ok := table.ByCompilerTriplet("foo-linux-gnu")
	assert.False(t, ok)
	_, ok = table.ByCompilerTriplet("")
	assert.False(t, ok)
}

func TestByCompilerTripletPrefersOverride(t *testing.T) {
	// Both entries claim the default triplet; only the override tells them apart.
	table := NewTable(
		Entry{Platform: "generic", Triplet: "x-linux-gnu"},
		Entry{Platform: "specific", Triplet: "x-linux-gnu", GCCTriplet: "x2-linux-gnu"},
	)

	e, ok := table.ByCompilerTriplet("x2-linux-gnu")
	require.True(t, ok)
	assert.Equal(t, "specific", e.Platform)

	e, ok = table.ByCompilerTriplet("x-linux-gnu")
	require.True(t, ok)
	assert.Equal(t, "generic", e.Platform)
}

func TestDefaultTableReverseLookups(t *testing.T) {
	table := DefaultTable()
	tests := map[string]string{
		"x86_64-linux-gnu":      "x86_64",
		"i686-linux-gnu":        "i686",
		"i386-linux-gnu":        "i686",
		"arm-linux-gnueabihf":   "armv7l",
		"aarch64-linux-gnu":     "aarch64",
		"powerpc-linux-gnu":     "ppc",
		"powerpc64le-linux-gnu": "ppc64le",
		"s390x-linux-gnu":       "s390x",
	}
	for triplet, platform := range tests {
		e, ok := table.ByCompilerTriplet(triplet)
		require.True(t, ok, triplet)
		assert.Equal(t, platform, e.Platform, triplet)
	}
	_, ok := table.ByCompilerTriplet("x86_64-pc-linux-gnu")
	assert.False(t, ok)
}

func TestTableIsImmutable(t *testing.T) {
	table := DefaultTable()

	e, ok := table.ByMachine("x86_64")
	require.True(t, ok)
	e.Machines[0] = "mutated"

	entries := table.Entries()
	entries[0].Triplet = "mutated"

	e, ok = table.ByMachine("x86_64")
	require.True(t, ok)
	assert.Equal(t, "x86_64-linux-gnu", e.Triplet)
	assert.Equal(t, "x86_64", e.Machines[0])
}
