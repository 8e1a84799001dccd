package states

import (
	"slices"
	"sort"
)

// PathSet is a sorted set of paths. The zero value is the empty set.
type PathSet []string

// NewPathSet builds a set from paths in any order, dropping duplicates.
func NewPathSet(paths ...string) PathSet {
	if len(paths) == 0 {
		return PathSet{}
	}
	s := slices.Clone(paths)
	sort.Strings(s)
	return PathSet(slices.Compact(s))
}

// Contains reports whether p is in the set.
func (s PathSet) Contains(p string) bool {
	_, found := slices.BinarySearch(s, p)
	return found
}

// Equal reports set equality.
func (s PathSet) Equal(other PathSet) bool {
	return slices.Equal(s, other)
}

// Difference returns the members of s missing from other.
func (s PathSet) Difference(other PathSet) PathSet {
	out := PathSet{}
	for _, p := range s {
		if !other.Contains(p) {
			out = append(out, p)
		}
	}
	return out
}
