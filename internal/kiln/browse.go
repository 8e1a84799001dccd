package kiln

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"kiln/internal/states"
)

type cellStatus int

const (
	statusMissing cellStatus = iota
	statusRecorded
	statusCorrupt
)

func (c cellStatus) String() string {
	switch c {
	case statusRecorded:
		return "recorded"
	case statusCorrupt:
		return "corrupt"
	}
	return "-"
}

// partRow is one line of the state browser.
type partRow struct {
	Part   string
	Status [4]cellStatus // indexed by states.Step
	Errs   map[states.Step]error
}

// stateMatrix loads the status of every (part, step) in the store. Corrupt
// states are reported in the matrix rather than failing it.
func stateMatrix(store *states.Store) ([]partRow, error) {
	parts, err := store.Parts()
	if err != nil {
		return nil, err
	}
	rows := make([]partRow, 0, len(parts))
	for _, part := range parts {
		row := partRow{Part: part, Errs: map[states.Step]error{}}
		for _, step := range states.Steps() {
			_, ok, err := store.Load(part, step)
			var corrupt *states.CorruptStateError
			switch {
			case errors.As(err, &corrupt):
				row.Status[step] = statusCorrupt
				row.Errs[step] = err
			case err != nil:
				return nil, err
			case ok:
				row.Status[step] = statusRecorded
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// renderMatrix prints the matrix as a plain table.
func renderMatrix(w io.Writer, rows []partRow) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	header := []string{"PART"}
	for _, step := range states.Steps() {
		header = append(header, strings.ToUpper(step.String()))
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, row := range rows {
		cols := []string{row.Part}
		for _, step := range states.Steps() {
			cols = append(cols, row.Status[step].String())
		}
		fmt.Fprintln(tw, strings.Join(cols, "\t"))
	}
	return tw.Flush()
}

// runBrowser shows the matrix as a table; Enter on a cell opens the state
// document, Esc returns to the table.
func runBrowser(store *states.Store, rows []partRow) error {
	app := tview.NewApplication()
	pages := tview.NewPages()

	table := tview.NewTable().
		SetBorders(false).
		SetSelectable(true, true).
		SetFixed(1, 1)
	table.SetBorder(true).SetTitle(" kiln step states ")

	table.SetCell(0, 0, tview.NewTableCell("PART").SetTextColor(tcell.ColorYellow).SetSelectable(false))
	for _, step := range states.Steps() {
		table.SetCell(0, int(step)+1, tview.NewTableCell(strings.ToUpper(step.String())).
			SetTextColor(tcell.ColorYellow).SetSelectable(false))
	}
	for r, row := range rows {
		table.SetCell(r+1, 0, tview.NewTableCell(row.Part).SetSelectable(false))
		for _, step := range states.Steps() {
			color := tcell.ColorGray
			switch row.Status[step] {
			case statusRecorded:
				color = tcell.ColorGreen
			case statusCorrupt:
				color = tcell.ColorRed
			}
			table.SetCell(r+1, int(step)+1, tview.NewTableCell(row.Status[step].String()).SetTextColor(color))
		}
	}

	detail := tview.NewTextView().SetDynamicColors(false).SetScrollable(true).SetWrap(false)
	detail.SetBorder(true)
	detail.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyEsc {
			pages.SwitchToPage("table")
			return nil
		}
		return event
	})

	table.SetSelectedFunc(func(r, c int) {
		if r < 1 || r > len(rows) || c < 1 {
			return
		}
		row, step := rows[r-1], states.Step(c-1)
		detail.SetTitle(fmt.Sprintf(" %s / %s ", row.Part, step))
		detail.SetText(stateText(store, row.Part, step))
		detail.ScrollToBeginning()
		pages.SwitchToPage("detail")
	})
	table.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEsc {
			app.Stop()
		}
	})
	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyRune && event.Rune() == 'q' {
			app.Stop()
			return nil
		}
		return event
	})

	pages.AddPage("table", table, true, true)
	pages.AddPage("detail", detail, true, false)

	if err := app.SetRoot(pages, true).SetFocus(table).Run(); err != nil {
		return fmt.Errorf("browser execution failed: %w", err)
	}
	return nil
}

// stateText is the YAML document of a state, or why it cannot be shown.
func stateText(store *states.Store, part string, step states.Step) string {
	state, ok, err := store.Load(part, step)
	switch {
	case err != nil:
		return err.Error()
	case !ok:
		return "no recorded state"
	}
	data, err := states.Marshal(state)
	if err != nil {
		return err.Error()
	}
	return string(data)
}
