// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/muesli/termenv"
	"github.com/schollz/progressbar/v3"
)

// ExtraMetricFn is any function that will give extra values to display along the progress bar.
// It is called each time the progress bar is updated, and it should return a name and the current value.
type ExtraMetricFn func() (name, value string)

// ProgressbarStyle to use. Defaults to the ASCII version.
// Consider "progressbar.ThemeUnicode" for a prettier version.
// But it requires some of the graphical symbols to be supported.
var ProgressbarStyle = progressbar.ThemeASCII

var (
	normalStyle       = lipgloss.NewStyle().Padding(0, 1)
	rightAlignedStyle = lipgloss.NewStyle().Align(lipgloss.Right).Padding(0, 1)
	tableBorderColor  = "#705090"
)

// maxUpdateFrequency is the time between updates to the commandline display of stats.
const maxUpdateFrequency = time.Millisecond * 200

// ProgressBar displays the progression of a fixed number of steps, along with a table of
// the number of steps done, the mean step duration and any extra metrics.
//
// In a terminal the table is redrawn asynchronously. In a notebook (or if the output is not
// a terminal) the metrics are appended to the progress bar line instead.
//
// It is not safe for concurrent use: Add and Done must be called from the same goroutine.
type ProgressBar struct {
	numSteps, stepsDone int
	bar                 *progressbar.ProgressBar
	suffix              string
	plain               bool
	startTime           time.Time

	// lipgloss-based rich and asynchronous display for the command-line.
	termenv          *termenv.Output
	statsStyle       lipgloss.Style
	statsTable       *lgtable.Table
	isFirstOutput    bool
	updates          chan progressBarUpdate
	asyncUpdatesDone sync.WaitGroup

	extraMetricFns []ExtraMetricFn
}

type progressBarUpdate struct {
	amount  int
	metrics []string
}

// inNotebook returns whether the program seems to be running inside a Jupyter notebook
// kernel (bash or GoNB).
func inNotebook() bool {
	for _, envVar := range []string{"NOTEBOOK_BASH_KERNEL_CAPABILITIES", "GONB_PIPE"} {
		if _, found := os.LookupEnv(envVar); found {
			return true
		}
	}
	return false
}

// NewProgressBar creates and displays a progress bar for numSteps steps, described by
// itsString (e.g.: "networks").
//
// Optionally, one can provide extraMetrics: functions that are called at every update of
// the progress bar and should return a name (title) and a value to be included in the
// updated print-out.
func NewProgressBar(numSteps int, itsString string, extraMetrics ...ExtraMetricFn) *ProgressBar {
	output := termenv.NewOutput(os.Stdout)
	pBar := &ProgressBar{
		numSteps:       numSteps,
		plain:          inNotebook() || output.Profile == termenv.Ascii,
		extraMetricFns: extraMetrics,
		startTime:      time.Now(),
	}
	pBar.bar = progressbar.NewOptions(numSteps,
		progressbar.OptionSetDescription("      [bold]"),
		progressbar.OptionUseANSICodes(!pBar.plain),
		progressbar.OptionEnableColorCodes(!pBar.plain),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString(itsString),
		progressbar.OptionSetTheme(ProgressbarStyle),
		progressbar.OptionSetWriter(pBar), // Required to work with Jupyter notebook.
	)
	if pBar.plain {
		return pBar
	}

	// Using "\033[J" to erase to the end of the line causes flickering on terminals (gnome-terminal and alacritty).
	pBar.suffix = "\033[J"
	pBar.isFirstOutput = true
	pBar.termenv = output
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
	pBar.updates = make(chan progressBarUpdate, 100) // Large buffer so things are not blocked.
	pBar.asyncUpdatesDone.Add(1)
	go pBar.drawUpdates(pBar.updates)
	return pBar
}

// Write implements io.Writer, and appends the current suffix with metrics to each
// line. It is meant to be used as the writer for the enclosed progressbar.ProgressBar,
// so the progress bar and its suffix are written in the same write operation:
// otherwise Jupyter Notebook may display things in different lines.
func (pBar *ProgressBar) Write(data []byte) (n int, err error) {
	n, err = os.Stdout.Write(data)
	if err != nil {
		return n, err
	}
	_, err = os.Stdout.Write([]byte(pBar.suffix))
	if err != nil {
		return 0, err
	}
	return
}

func (pBar *ProgressBar) meanStepDuration() time.Duration {
	if pBar.stepsDone == 0 {
		return 0
	}
	return time.Since(pBar.startTime) / time.Duration(pBar.stepsDone)
}

// Add reports amount more steps done.
func (pBar *ProgressBar) Add(amount int) {
	if amount <= 0 || pBar.bar.IsFinished() || (!pBar.plain && pBar.updates == nil) {
		return
	}
	pBar.stepsDone += amount

	// Metrics are evaluated here, in the caller's goroutine.
	metrics := make([]string, 0, len(pBar.extraMetricFns)+2)
	metrics = append(metrics,
		fmt.Sprintf("%s of %s", humanize.Comma(int64(pBar.stepsDone)), humanize.Comma(int64(pBar.numSteps))),
		FormatDuration(pBar.meanStepDuration()))
	names := make([]string, 0, len(pBar.extraMetricFns))
	for _, extraMetric := range pBar.extraMetricFns {
		name, value := extraMetric()
		names = append(names, name)
		metrics = append(metrics, value)
	}

	if pBar.plain {
		parts := make([]string, 0, len(metrics)+1)
		parts = append(parts, fmt.Sprintf(" [step=%d]", pBar.stepsDone))
		for ii, name := range names {
			parts = append(parts, fmt.Sprintf(" [%s=%s]", name, metrics[2+ii]))
		}
		// Erase to an end-of-line escape sequence ("\033[J") not supported in Jupyter notebooks:
		parts = append(parts, "        ")
		pBar.suffix = strings.Join(parts, "")
		_ = pBar.bar.Add(amount) // Triggers print, see [ProgressBar.Write] method.
		return
	}

	pBar.updates <- progressBarUpdate{amount: amount, metrics: append(metrics, names...)}
}

// drawUpdates asynchronously draws updates: this is handy if the steps are faster than the terminal,
// in particular if running on the cloud, with a relatively slow network connection.
func (pBar *ProgressBar) drawUpdates(updates <-chan progressBarUpdate) {
	defer pBar.asyncUpdatesDone.Done()
	numExtra := len(pBar.extraMetricFns)
	for update := range updates {
		// Exhaust the updates in the buffer:
		amount := update.amount
	exhaust:
		for {
			select {
			case newUpdate, ok := <-updates:
				if !ok {
					break exhaust
				}
				amount += newUpdate.amount
				update = newUpdate
			default:
				break exhaust
			}
		}

		// Values come first, followed by the names of the extra metrics.
		values, names := update.metrics[:2+numExtra], update.metrics[2+numExtra:]
		pBar.statsTable.Data(lgtable.NewStringData())
		pBar.statsTable.Row("Steps", values[0])
		pBar.statsTable.Row("Mean step duration", values[1])
		for ii, name := range names {
			pBar.statsTable.Row(name, values[2+ii])
		}

		// For command-line, we clear the previous lines that will be overwritten.
		pBar.termenv.HideCursor()
		if !pBar.isFirstOutput {
			numLinesToBackup := len(values) + 2 + 2
			pBar.termenv.CursorPrevLine(numLinesToBackup)
		}
		pBar.isFirstOutput = false

		fmt.Println(pBar.statsStyle.Render(pBar.statsTable.String()))
		_ = pBar.bar.Add(amount) // Prints progress bar line.
		fmt.Println()
		pBar.termenv.ShowCursor()
		time.Sleep(maxUpdateFrequency)
	}
}

// Done finishes the display, waiting for pending updates to be drawn.
func (pBar *ProgressBar) Done() {
	if pBar.updates != nil {
		close(pBar.updates)
		pBar.updates = nil
	}
	pBar.asyncUpdatesDone.Wait()
	if pBar.termenv != nil {
		pBar.termenv.ShowCursor()
	}
	fmt.Println()
}
