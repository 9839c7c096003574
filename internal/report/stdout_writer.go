// Writer implementation printing run events to STDOUT as JSON lines.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"rfbench/internal/measure"
	"rfbench/internal/pipeline"
)

// StdoutWriter prints step results, samples, and the final report as
// JSON lines, each wrapped in an envelope naming its kind.
type StdoutWriter struct {
	Out io.Writer
}

// NewStdoutWriter creates a StdoutWriter on os.Stdout.
func NewStdoutWriter() *StdoutWriter {
	return &StdoutWriter{Out: os.Stdout}
}

type envelope struct {
	Kind  string `json:"kind"`
	RunID string `json:"run_id,omitempty"`
	Data  any    `json:"data"`
}

func (w *StdoutWriter) emit(kind, runID string, data any) error {
	b, err := json.Marshal(envelope{Kind: kind, RunID: runID, Data: data})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w.Out, string(b))
	return err
}

// WriteResult prints a step attempt result.
func (w *StdoutWriter) WriteResult(runID string, r pipeline.StepResult) error {
	return w.emit("step_result", runID, r)
}

// WriteSample prints one measurement sample.
func (w *StdoutWriter) WriteSample(runID string, s measure.Sample) error {
	return w.emit("sample", runID, s)
}

// WriteReport prints the finalized run report.
func (w *StdoutWriter) WriteReport(r RunReport) error {
	return w.emit("run_report", r.RunID, r)
}
