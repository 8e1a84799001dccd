//go:build !unix

package arch

import "runtime"

// HostMachine returns the Go architecture name; the table lists the Go
// names as machine aliases where they differ from uname's.
func HostMachine() (string, error) {
	return runtime.GOARCH, nil
}
