package kiln

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
)

// interactiveMu ensures only one interactive prompt reads stdin at a time.
var interactiveMu sync.Mutex

// askForConfirmation prompts on out and reads the answer from in. An empty
// answer means yes; end of input means no.
func askForConfirmation(in io.Reader, out io.Writer, s styler, format string, a ...any) bool {
	interactiveMu.Lock()
	defer interactiveMu.Unlock()

	reader := bufio.NewReader(in)
	prompt := fmt.Sprintf("%s [Y/n]: ", fmt.Sprintf(format, a...))

	for {
		cPrintf(out, s, "%s", prompt)
		response, err := reader.ReadString('\n')
		response = strings.ToLower(strings.TrimSpace(response))
		if err != nil && response == "" {
			fmt.Fprintln(out)
			return false
		}

		switch response {
		case "y", "yes", "":
			return true
		case "n", "no":
			return false
		}
		cPrintln(out, colWarn, "Invalid input.")
		if err != nil {
			return false
		}
	}
}
