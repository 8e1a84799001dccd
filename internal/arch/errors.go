package arch

import "fmt"

// ConfigurationError reports a host or host/compiler combination that the
// translation table cannot represent. There is no safe default architecture,
// so callers should abort.
type ConfigurationError struct {
	Machine string // host machine as reported by the OS
	Triplet string // compiler triplet, empty when the host itself is unknown
	Err     error  // underlying cause, if any
}

func (e *ConfigurationError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("cannot determine host architecture: %v", e.Err)
	case e.Triplet != "":
		return fmt.Sprintf("unsupported platform: %q host with a compiler targeting %q", e.Machine, e.Triplet)
	default:
		return fmt.Sprintf("unsupported platform: %q is not a known machine", e.Machine)
	}
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ProbeUnavailableError means the compiler probe gave no target triplet.
// The resolver treats it as "use host defaults".
type ProbeUnavailableError struct {
	Compiler string
	Reason   string
	Err      error
}

func (e *ProbeUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Compiler, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Compiler, e.Reason)
}

func (e *ProbeUnavailableError) Unwrap() error { return e.Err }
