// Run report accumulation for bench campaigns.
package report

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"rfbench/internal/measure"
	"rfbench/internal/pipeline"
)

// RunReport is the finalized record of one campaign run. It is built
// append-only by the Aggregator and never mutated after Finalize.
type RunReport struct {
	RunID    string                   `json:"run_id"`
	Bench    string                   `json:"bench"`
	Started  time.Time                `json:"started"`
	Finished time.Time                `json:"finished"`
	Duration time.Duration            `json:"duration"`
	Pass     bool                     `json:"pass"`
	Results  []pipeline.StepResult    `json:"results"`
	Samples  []measure.Sample         `json:"samples"`
	Verdicts map[int]measure.Verdict  `json:"verdicts,omitempty"`
}

// Aggregator collects step results, samples, and verdicts as the
// orchestrator emits them. It is safe for concurrent use and satisfies
// pipeline.Recorder. Optional stream writers observe rows as they
// arrive; a stream write failure never disturbs the report itself.
type Aggregator struct {
	mu        sync.Mutex
	finalized bool
	report    RunReport
	stream    []StreamWriter
	onError   func(error)
}

// NewAggregator starts an empty report for the named bench. The run ID
// is minted here so every sample sink can tag rows with it.
func NewAggregator(bench string, stream ...StreamWriter) *Aggregator {
	return &Aggregator{
		report: RunReport{
			RunID:    uuid.New().String(),
			Bench:    bench,
			Started:  time.Now().UTC(),
			Verdicts: make(map[int]measure.Verdict),
		},
		stream: stream,
	}
}

// RunID returns the identifier minted for this run.
func (a *Aggregator) RunID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.report.RunID
}

// OnStreamError installs a callback for stream writer failures.
func (a *Aggregator) OnStreamError(fn func(error)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onError = fn
}

// RecordResult appends one step attempt result.
func (a *Aggregator) RecordResult(r pipeline.StepResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finalized {
		return
	}
	a.report.Results = append(a.report.Results, r)
	for _, w := range a.stream {
		if err := w.WriteResult(a.report.RunID, r); err != nil && a.onError != nil {
			a.onError(err)
		}
	}
}

// RecordSamples appends captured measurement samples.
func (a *Aggregator) RecordSamples(samples []measure.Sample) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finalized {
		return
	}
	a.report.Samples = append(a.report.Samples, samples...)
	for _, w := range a.stream {
		if bw, ok := w.(batchSampleWriter); ok {
			if err := bw.WriteSamples(a.report.RunID, samples); err != nil && a.onError != nil {
				a.onError(err)
			}
			continue
		}
		for _, s := range samples {
			if err := w.WriteSample(a.report.RunID, s); err != nil && a.onError != nil {
				a.onError(err)
			}
		}
	}
}

// RecordVerdict stores the analysis verdict for a measurement step.
func (a *Aggregator) RecordVerdict(stepIndex int, v measure.Verdict) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finalized {
		return
	}
	a.report.Verdicts[stepIndex] = v
}

// Finalize closes the report and computes the overall outcome: pass iff
// every step reached success and every verdict passed. Further Record
// calls are ignored. Finalize is idempotent; the returned report is a
// copy the caller may hold after the aggregator is gone.
func (a *Aggregator) Finalize(specs []pipeline.StepSpec) RunReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.finalized {
		a.finalized = true
		a.report.Finished = time.Now().UTC()
		a.report.Duration = a.report.Finished.Sub(a.report.Started)
		pipeline.SortByIndex(a.report.Results)
		a.report.Pass = a.computePass(specs)
	}
	return a.snapshot()
}

func (a *Aggregator) computePass(specs []pipeline.StepSpec) bool {
	final := make(map[int]pipeline.Outcome, len(specs))
	for _, r := range a.report.Results {
		final[r.StepIndex] = r.Outcome
	}
	for _, spec := range specs {
		if final[spec.Index] != pipeline.OutcomeSuccess {
			return false
		}
	}
	for _, v := range a.report.Verdicts {
		if !v.Pass {
			return false
		}
	}
	return len(specs) > 0
}

func (a *Aggregator) snapshot() RunReport {
	out := a.report
	out.Results = append([]pipeline.StepResult(nil), a.report.Results...)
	out.Samples = append([]measure.Sample(nil), a.report.Samples...)
	out.Verdicts = make(map[int]measure.Verdict, len(a.report.Verdicts))
	for k, v := range a.report.Verdicts {
		out.Verdicts[k] = v
	}
	return out
}

// Overall returns a one-line human summary of a finalized report.
func Overall(r RunReport) string {
	verdict := "FAIL"
	if r.Pass {
		verdict = "PASS"
	}
	return fmt.Sprintf("run %s on %s: %s (%d results, %d samples, %s)",
		r.RunID, r.Bench, verdict, len(r.Results), len(r.Samples), r.Duration.Round(time.Millisecond))
}
