package kiln

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"golang.org/x/term"
)

// terminalFd returns the descriptor of w when it is a terminal.
func terminalFd(w io.Writer) (int, bool) {
	f, ok := w.(*os.File)
	if !ok {
		return 0, false
	}
	fd := int(f.Fd())
	return fd, term.IsTerminal(fd)
}

// RunPager shows lines in a scrollable view when out is a terminal and the
// text does not fit; otherwise it prints them.
func RunPager(out io.Writer, title string, lines []string) error {
	fd, isTTY := terminalFd(out)
	if isTTY {
		if _, height, err := term.GetSize(fd); err != nil || len(lines) > height-2 {
			return runPagerView(title, lines)
		}
	}
	for _, line := range lines {
		fmt.Fprintln(out, line)
	}
	return nil
}

func runPagerView(title string, lines []string) error {
	app := tview.NewApplication()

	textView := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWrap(false)
	textView.SetBorder(true).SetTitle(" " + title + " ")
	fmt.Fprint(tview.ANSIWriter(textView), strings.Join(lines, "\n"))

	footer := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter).
		SetText("[gray]Use ↑/↓, PgUp/PgDn, Home/End to scroll. Press 'q' or 'Esc' to quit.[white]")

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(textView, 0, 1, true).
		AddItem(footer, 1, 0, false)

	app.SetInputCapture(quitKeys(app))

	if err := app.SetRoot(flex, true).SetFocus(textView).Run(); err != nil {
		return fmt.Errorf("pager execution failed: %w", err)
	}
	return nil
}

// quitKeys stops app on Esc, Ctrl-Q or 'q'.
func quitKeys(app *tview.Application) func(*tcell.EventKey) *tcell.EventKey {
	return func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEsc, tcell.KeyCtrlQ:
			app.Stop()
			return nil
		case tcell.KeyRune:
			if event.Rune() == 'q' {
				app.Stop()
				return nil
			}
		}
		return event
	}
}
