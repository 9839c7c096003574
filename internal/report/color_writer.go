// ColorWriter prints human-friendly campaign progress to a terminal.
package report

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
	"golang.org/x/term"

	"rfbench/internal/measure"
	"rfbench/internal/pipeline"
)

var (
	stylePass  = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	styleFail  = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	styleSkip  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	styleDim   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	styleTitle = lipgloss.NewStyle().Bold(true).Underline(true)
)

// ColorWriter renders step progress lines and a final summary using
// terminal styles. Width follows the terminal when stdout is one.
type ColorWriter struct {
	out   io.Writer
	width int
}

// NewColorWriter creates a ColorWriter on os.Stdout.
func NewColorWriter() *ColorWriter {
	w := &ColorWriter{out: os.Stdout, width: 100}
	if cols, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && cols > 20 {
		w.width = cols
	}
	return w
}

func outcomeStyle(o pipeline.Outcome) lipgloss.Style {
	switch o {
	case pipeline.OutcomeSuccess:
		return stylePass
	case pipeline.OutcomeSkipped:
		return styleSkip
	default:
		return styleFail
	}
}

// WriteResult prints one step attempt line.
func (w *ColorWriter) WriteResult(runID string, r pipeline.StepResult) error {
	status := outcomeStyle(r.Outcome).Render(string(r.Outcome))
	line := fmt.Sprintf("[%02d] %-28s %s", r.StepIndex, r.Name, status)
	if r.Attempt > 0 {
		line += styleDim.Render(fmt.Sprintf(" (attempt %d)", r.Attempt+1))
	}
	if r.Outcome != pipeline.OutcomeSkipped {
		line += styleDim.Render(" " + r.Elapsed.Round(time.Millisecond).String())
	}
	if r.Error != "" {
		line += "\n" + styleDim.Render(wordwrap.String("     "+r.Error, w.width))
	}
	_, err := fmt.Fprintln(w.out, line)
	return err
}

// WriteSample prints one measurement reading.
func (w *ColorWriter) WriteSample(runID string, s measure.Sample) error {
	_, err := fmt.Fprintln(w.out, styleDim.Render(
		fmt.Sprintf("     %s = %g %s", s.Metric, s.Value, s.Unit)))
	return err
}

// WriteReport prints the final verdict block.
func (w *ColorWriter) WriteReport(r RunReport) error {
	verdict := styleFail.Render("FAIL")
	if r.Pass {
		verdict = stylePass.Render("PASS")
	}
	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, styleTitle.Render("campaign "+r.Bench))
	for _, v := range r.Verdicts {
		for _, mv := range v.Metrics {
			mark := stylePass.Render("ok")
			if !mv.Pass {
				mark = styleFail.Render("out of limits")
			}
			fmt.Fprintf(w.out, "  %-12s n=%d mean=%.3f min=%.3f max=%.3f [%g, %g] %s\n",
				mv.Metric, mv.N, mv.Mean, mv.Min, mv.Max, mv.Limit.Min, mv.Limit.Max, mark)
		}
	}
	_, err := fmt.Fprintf(w.out, "overall: %s in %s (run %s)\n",
		verdict, r.Duration.Round(time.Millisecond), r.RunID)
	return err
}
