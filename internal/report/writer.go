package report

import (
	"rfbench/internal/measure"
	"rfbench/internal/pipeline"
)

// StreamWriter observes a run as it progresses: one call per step
// attempt result and one per captured sample. The finalized report is
// delivered to ReportWriters at the end.
type StreamWriter interface {
	WriteResult(runID string, r pipeline.StepResult) error
	WriteSample(runID string, s measure.Sample) error
}

// Stream writers may additionally support sample batches.
type batchSampleWriter interface {
	WriteSamples(runID string, samples []measure.Sample) error
}

// ReportWriter receives the finalized run report.
type ReportWriter interface {
	WriteReport(r RunReport) error
}

// MultiWriter fans out stream rows to several writers, using batch
// mode where a writer supports it.
type MultiWriter struct {
	writers []StreamWriter
}

// NewMultiWriter creates a MultiWriter.
func NewMultiWriter(writers ...StreamWriter) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// WriteResult sends a step result to all writers.
func (mw *MultiWriter) WriteResult(runID string, r pipeline.StepResult) error {
	for _, w := range mw.writers {
		if err := w.WriteResult(runID, r); err != nil {
			return err
		}
	}
	return nil
}

// WriteSample sends a sample to all writers.
func (mw *MultiWriter) WriteSample(runID string, s measure.Sample) error {
	for _, w := range mw.writers {
		if err := w.WriteSample(runID, s); err != nil {
			return err
		}
	}
	return nil
}

// WriteSamples sends a sample batch to all writers, using batch mode
// where supported.
func (mw *MultiWriter) WriteSamples(runID string, samples []measure.Sample) error {
	for _, w := range mw.writers {
		if bw, ok := w.(batchSampleWriter); ok {
			if err := bw.WriteSamples(runID, samples); err != nil {
				return err
			}
			continue
		}
		for _, s := range samples {
			if err := w.WriteSample(runID, s); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteReport forwards the finalized report to every writer that wants
// one.
func (mw *MultiWriter) WriteReport(r RunReport) error {
	for _, w := range mw.writers {
		if rw, ok := w.(ReportWriter); ok {
			if err := rw.WriteReport(r); err != nil {
				return err
			}
		}
	}
	return nil
}
