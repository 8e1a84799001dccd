package arch

import "slices"

// Entry describes one supported platform.
type Entry struct {
	Platform      string   // platform id, e.g. "armv7l"
	Machines      []string // machine names reported by uname(2) for this platform
	Triplet       string   // default GNU triplet for the userspace ABI
	DebArch       string   // packaging architecture for Triplet
	KernelArch    string   // kernel architecture family
	GCCTriplet    string   // triplet reported by gcc when it differs from Triplet; empty if none
	DynamicLinker string   // ELF interpreter relative to the root filesystem
}

func (e Entry) clone() Entry {
	e.Machines = slices.Clone(e.Machines)
	return e
}

// translations is the default platform table. Order matters for reverse lookups:
// the first matching entry wins.
var translations = []Entry{
	{
		Platform:      "x86_64",
		Machines:      []string{"x86_64", "amd64"},
		Triplet:       "x86_64-linux-gnu",
		DebArch:       "amd64",
		KernelArch:    "x86",
		DynamicLinker: "lib64/ld-linux-x86-64.so.2",
	},
	{
		Platform:      "i686",
		Machines:      []string{"i686", "i586", "i386"},
		Triplet:       "i386-linux-gnu",
		DebArch:       "i386",
		KernelArch:    "x86",
		GCCTriplet:    "i686-linux-gnu",
		DynamicLinker: "lib/ld-linux.so.2",
	},
	{
		Platform:      "armv7l",
		Machines:      []string{"armv7l", "armv7hl", "armv8l"},
		Triplet:       "arm-linux-gnueabihf",
		DebArch:       "armhf",
		KernelArch:    "arm",
		DynamicLinker: "lib/ld-linux-armhf.so.3",
	},
	{
		Platform:      "aarch64",
		Machines:      []string{"aarch64", "arm64"},
		Triplet:       "aarch64-linux-gnu",
		DebArch:       "arm64",
		KernelArch:    "arm64",
		DynamicLinker: "lib/ld-linux-aarch64.so.1",
	},
	{
		Platform:      "ppc",
		Machines:      []string{"ppc", "powerpc"},
		Triplet:       "powerpc-linux-gnu",
		DebArch:       "powerpc",
		KernelArch:    "powerpc",
		DynamicLinker: "lib/ld.so.1",
	},
	{
		Platform:      "ppc64le",
		Machines:      []string{"ppc64le"},
		Triplet:       "powerpc64le-linux-gnu",
		DebArch:       "ppc64el",
		KernelArch:    "powerpc",
		DynamicLinker: "lib64/ld64.so.2",
	},
	{
		Platform:      "s390x",
		Machines:      []string{"s390x"},
		Triplet:       "s390x-linux-gnu",
		DebArch:       "s390x",
		KernelArch:    "s390x",
		DynamicLinker: "lib/ld64.so.1",
	},
	{
		Platform:      "riscv64",
		Machines:      []string{"riscv64"},
		Triplet:       "riscv64-linux-gnu",
		DebArch:       "riscv64",
		KernelArch:    "riscv",
		DynamicLinker: "lib/ld-linux-riscv64-lp64d.so.1",
	},
}

// Table is an immutable platform translation table. It is safe for
// concurrent use.
type Table struct {
	entries []Entry
}

// NewTable returns a table holding copies of entries, in order.
func NewTable(entries ...Entry) *Table {
	t := &Table{entries: make([]Entry, 0, len(entries))}
	for _, e := range entries {
		t.entries = append(t.entries, e.clone())
	}
	return t
}

// DefaultTable returns the built-in platform table.
func DefaultTable() *Table {
	return NewTable(translations...)
}

// Entries returns a copy of the table's entries in lookup order.
func (t *Table) Entries() []Entry {
	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e.clone())
	}
	return out
}

// ByMachine finds the entry listing name among its machine aliases.
// Matching is exact.
func (t *Table) ByMachine(name string) (Entry, bool) {
	for _, e := range t.entries {
		if slices.Contains(e.Machines, name) {
			return e.clone(), true
		}
	}
	return Entry{}, false
}

// ByCompilerTriplet finds the entry for a triplet reported by the compiler.
// Entries whose GCCTriplet matches take precedence over entries whose
// default Triplet matches, so a platform sharing its default triplet with
// another can still be told apart by the compiler's more specific string.
func (t *Table) ByCompilerTriplet(triplet string) (Entry, bool) {
	if triplet == "" {
		return Entry{}, false
	}
	for _, e := range t.entries {
		if e.GCCTriplet != "" && e.GCCTriplet == triplet {
			return e.clone(), true
		}
	}
	for _, e := range t.entries {
		if e.Triplet == triplet {
			return e.clone(), true
		}
	}
	return Entry{}, false
}
