// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/muesli/termenv"
	"github.com/schollz/progressbar/v3"
)

// ExtraMetricFn is any function that will give extra values to display along the progress bar.
// It is called at each time the progress bar is updated, and it should return a name and the current value when it is called.
type ExtraMetricFn func() (name, value string)

// ProgressbarStyle to use. Defaults to the ASCII version.
// Consider "progressbar.ThemeUnicode" for a prettier version.
// But it requires some of the graphical symbols to be supported.
var ProgressbarStyle = progressbar.ThemeASCII

// maxUpdateFrequency is the time between updates to the commandline display of stats.
var maxUpdateFrequency = time.Millisecond * 200

var (
	normalStyle       = lipgloss.NewStyle().Padding(0, 1)
	rightAlignedStyle = lipgloss.NewStyle().Align(lipgloss.Right).Padding(0, 1)
	tableBorderColor  = "#705090"
)

// ProgressBar displays the progression of a loop of calls, with a table of stats above it that is
// redrawn on each update.
//
// Updates are drawn asynchronously, so a loop faster than the terminal is not slowed down.
type ProgressBar struct {
	numSteps int
	bar      *progressbar.ProgressBar

	// output is nil if not writing to a terminal: then only the progress bar is written, no stats.
	output        *termenv.Output
	statsStyle    lipgloss.Style
	statsTable    *lgtable.Table
	isFirstOutput bool

	updates          chan int
	asyncUpdatesDone sync.WaitGroup
	startTime        time.Time
	totalAmount      int

	extraMetricFns []ExtraMetricFn
}

// NewProgressBar creates and starts displaying a progress bar for numSteps steps in w.
// If w is os.Stdout and it is a terminal, the stats returned by extraMetrics are displayed above it.
//
// Call Done when finished.
func NewProgressBar(w io.Writer, description string, numSteps int, extraMetrics ...ExtraMetricFn) *ProgressBar {
	pBar := &ProgressBar{
		numSteps:       numSteps,
		extraMetricFns: extraMetrics,
		updates:        make(chan int, 100), // Large buffer so things are not blocked.
		startTime:      time.Now(),
	}
	if f, ok := w.(*os.File); ok {
		output := termenv.NewOutput(f)
		if output.Profile != termenv.Ascii {
			pBar.output = output
		}
	}
	pBar.bar = progressbar.NewOptions(numSteps,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(w),
		progressbar.OptionUseANSICodes(pBar.output != nil),
		progressbar.OptionEnableColorCodes(pBar.output != nil),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("calls"),
		progressbar.OptionSetTheme(ProgressbarStyle),
		progressbar.OptionSetRenderBlankState(true),
	)
	if pBar.output != nil {
		pBar.isFirstOutput = true
		pBar.statsStyle = lipgloss.NewStyle().PaddingLeft(8)
		pBar.statsTable = lgtable.New().
			Border(lipgloss.RoundedBorder()).
			BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color(tableBorderColor))).
			StyleFunc(func(row, col int) lipgloss.Style {
				if col == 0 {
					return rightAlignedStyle
				}
				return normalStyle
			})
	}
	pBar.asyncUpdatesDone.Add(1)
	go pBar.drawUpdates(w)
	return pBar
}

// drawUpdates draws the updates received, until the channel is closed.
func (pBar *ProgressBar) drawUpdates(w io.Writer) {
	defer pBar.asyncUpdatesDone.Done()
	for amount := range pBar.updates {
		// Exhaust the updates in the buffer:
	exhaust:
		for {
			select {
			case newAmount, ok := <-pBar.updates:
				if !ok {
					break exhaust
				}
				amount += newAmount
			default:
				break exhaust
			}
		}
		if pBar.output == nil {
			_ = pBar.bar.Add(amount)
			continue
		}

		// Create the table to be printed.
		pBar.statsTable.Data(lgtable.NewStringData())
		pBar.totalAmount += amount
		pBar.statsTable.Row("Calls", fmt.Sprintf("%s of %s",
			humanize.Comma(int64(pBar.totalAmount)), humanize.Comma(int64(pBar.numSteps))))
		pBar.statsTable.Row("Elapsed", FormatDuration(time.Since(pBar.startTime)))
		for _, extraMetric := range pBar.extraMetricFns {
			name, value := extraMetric()
			pBar.statsTable.Row(name, value)
		}

		// For command-line, we clear the previous lines that will be overwritten.
		pBar.output.HideCursor()
		if !pBar.isFirstOutput {
			numLinesToBackup := 2 + 2 + 2 + len(pBar.extraMetricFns)
			pBar.output.CursorPrevLine(numLinesToBackup)
		}
		pBar.isFirstOutput = false

		// Print update.
		_, _ = fmt.Fprintln(w, pBar.statsStyle.Render(pBar.statsTable.String()))
		_ = pBar.bar.Add(amount) // Prints progress bar line.
		_, _ = fmt.Fprintln(w)
		pBar.output.ShowCursor()
		time.Sleep(maxUpdateFrequency)
	}
}

// Add amount steps to the progress bar. It only blocks if too many updates are pending.
func (pBar *ProgressBar) Add(amount int) {
	if amount > 0 {
		pBar.updates <- amount
	}
}

// Done waits for the pending updates to be drawn, and finishes the progress bar.
func (pBar *ProgressBar) Done() {
	close(pBar.updates)
	pBar.asyncUpdatesDone.Wait()
	_ = pBar.bar.Finish()
	if pBar.output != nil {
		pBar.output.ShowCursor()
	}
}
