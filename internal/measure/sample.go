// Measurement capture and normalization for bench campaigns.
package measure

import (
	"errors"
	"time"
)

// ErrCapture marks an acquisition failure: malformed device data, a
// unit mismatch, or a reading outside the plausible range.
var ErrCapture = errors.New("measure: capture failed")

// Sample is one normalized reading. Immutable once created.
type Sample struct {
	ID        string    `json:"id"`
	StepIndex int       `json:"step_index"`
	Metric    string    `json:"metric"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
	Timestamp time.Time `json:"ts"`
	// InstrumentState snapshots the key settings active at capture
	// time, parameter name to rendered value.
	InstrumentState map[string]string `json:"instrument_state,omitempty"`
}

// Limit is the pass band for one metric, inclusive on both ends.
type Limit struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// CaptureSpec configures the read sequence of one measurement step.
type CaptureSpec struct {
	Metric   string
	Query    string
	Unit     string
	Scale    float64
	Count    int
	Interval time.Duration
	RangeMin *float64
	RangeMax *float64
}

// MetricVerdict is the analysis outcome for one metric.
type MetricVerdict struct {
	Metric string  `json:"metric"`
	Pass   bool    `json:"pass"`
	N      int     `json:"n"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Limit  Limit   `json:"limit"`
}

// Verdict is the analysis outcome over one sample set.
type Verdict struct {
	Pass    bool                     `json:"pass"`
	Metrics map[string]MetricVerdict `json:"metrics"`
	Summary string                   `json:"summary"`
}
