package reap

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

var (
	tuiApp       *tview.Application
	tuiHeaderBox *tview.TextView
	tuiLogView   *tview.TextView
	tuiFooterBox *tview.TextView
	tuiFlex      *tview.Flex
	tuiFilterPkg string
	tuiPrevLen   int
)

// RunLogViewer opens a full-screen viewer over the in-memory log pane,
// polling for new lines until quit. A non-empty pkg filters the view to
// one package's pipeline.
func RunLogViewer(pane *LogPane, pkg string) error {
	tuiFilterPkg = pkg
	tuiPrevLen = -1

	tuiApp = tview.NewApplication()

	tuiHeaderBox = tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false).
		SetTextAlign(tview.AlignLeft)
	tuiHeaderBox.SetBorder(true)
	tuiHeaderBox.SetTitle("reap Log Viewer")

	tuiLogView = tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false).
		SetScrollable(true).
		SetChangedFunc(func() {
			tuiApp.Draw()
		})
	tuiLogView.SetBorder(true)

	tuiFooterBox = tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(true).
		SetTextAlign(tview.AlignLeft)
	tuiFooterBox.SetBorder(true)
	tuiFooterBox.SetText("[yellow]Up/Down[-] scroll  [yellow]Home/End[-] jump  [yellow]f[-] clear filter  [yellow]q/Esc[-] quit")

	tuiFlex = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(tuiHeaderBox, 3, 0, false).
		AddItem(tuiLogView, 0, 1, true).
		AddItem(tuiFooterBox, 3, 0, false)

	tuiFlex.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyCtrlQ, tcell.KeyEsc:
			tuiApp.Stop()
			return nil
		case tcell.KeyHome:
			tuiLogView.ScrollToBeginning()
			return nil
		case tcell.KeyEnd:
			tuiLogView.ScrollToEnd()
			return nil
		}
		switch event.Rune() {
		case 'q':
			tuiApp.Stop()
			return nil
		case 'f':
			tuiFilterPkg = ""
			tuiPrevLen = -1
			return nil
		}
		return event
	})

	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				refreshLogView(pane)
			}
		}
	}()
	defer close(stop)

	return tuiApp.SetRoot(tuiFlex, true).Run()
}

// refreshLogView repaints only when the pane grew, keeping scroll
// position stable otherwise.
func refreshLogView(pane *LogPane) {
	lines := pane.Snapshot()
	if len(lines) == tuiPrevLen {
		return
	}
	tuiPrevLen = len(lines)

	var sb strings.Builder
	shown := 0
	for _, l := range lines {
		if tuiFilterPkg != "" && l.Pkg != tuiFilterPkg {
			continue
		}
		sb.WriteString(colorizeLogLine(l))
		sb.WriteByte('\n')
		shown++
	}

	tuiApp.QueueUpdateDraw(func() {
		header := fmt.Sprintf("%d line(s)", shown)
		if tuiFilterPkg != "" {
			header += "  filter: " + tuiFilterPkg
		}
		tuiHeaderBox.SetText(header)
		tuiLogView.SetText(sb.String())
		tuiLogView.ScrollToEnd()
	})
}

func colorizeLogLine(l LogLine) string {
	colorTag := "[white]"
	switch l.Level {
	case "warn":
		colorTag = "[yellow]"
	case "error":
		colorTag = "[red]"
	}
	return colorTag + tview.Escape(l.String()) + "[-]"
}
