package pipeline

import "time"

// Outcome is the terminal state of one step attempt.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeFailed   Outcome = "failed"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeTimedOut Outcome = "timed-out"
)

// StepResult records one executed (or skipped) step attempt. Retried
// attempts produce one StepResult each, all linked to the same step
// index.
type StepResult struct {
	StepIndex int           `json:"step_index"`
	Name      string        `json:"name"`
	Attempt   int           `json:"attempt"`
	Outcome   Outcome       `json:"outcome"`
	Started   time.Time     `json:"started"`
	Elapsed   time.Duration `json:"elapsed"`
	Error     string        `json:"error,omitempty"`
	// Raw holds the raw device responses observed during the attempt,
	// settle confirmations included.
	Raw []string `json:"raw,omitempty"`
}

// Final reports whether this result ends the step: success, skip, or
// the last permitted attempt.
func (r StepResult) Final(spec StepSpec) bool {
	switch r.Outcome {
	case OutcomeSuccess, OutcomeSkipped:
		return true
	default:
		return r.Attempt >= spec.Retries
	}
}
