//go:build unix

package arch

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// HostMachine returns the machine field of uname(2), e.g. "x86_64".
func HostMachine() (string, error) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return "", fmt.Errorf("uname: %w", err)
	}
	return unix.ByteSliceToString(uts.Machine[:]), nil
}
