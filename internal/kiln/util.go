package kiln

import (
	"fmt"
	"io"
	"os"
)

// styler is satisfied by *color.Theme, *color.Style and color.RGBColor.
type styler interface {
	Sprintf(format string, a ...any) string
}

// cPrintf writes a styled line to w, or plain text when s is nil.
func cPrintf(w io.Writer, s styler, format string, a ...any) {
	if s == nil {
		fmt.Fprintf(w, format, a...)
		return
	}
	fmt.Fprint(w, s.Sprintf(format, a...))
}

// cPrintln is cPrintf with a trailing newline outside the styled text.
func cPrintln(w io.Writer, s styler, a ...any) {
	cPrintf(w, s, "%s", fmt.Sprint(a...))
	fmt.Fprintln(w)
}

// arrowf prints the "-> " progress arrow followed by a styled message.
func arrowf(w io.Writer, s styler, format string, a ...any) {
	cPrintf(w, colArrow, "-> ")
	cPrintf(w, s, format, a...)
	fmt.Fprintln(w)
}

// debugf prints debug messages when Debug is true
func debugf(format string, args ...any) {
	if Debug {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// debugWriter is the sink handed to library packages.
func debugWriter() io.Writer {
	if Debug {
		return os.Stderr
	}
	return io.Discard
}
