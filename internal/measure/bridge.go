package measure

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"rfbench/internal/instrument"
	"rfbench/internal/logging"
)

// Bridge pulls raw readings from an instrument session and converts
// them into typed samples. It performs no judgment on the values
// beyond plausibility range checks; that belongs to the analyzer.
type Bridge struct {
	now func() time.Time
}

// NewBridge returns a Bridge.
func NewBridge() *Bridge {
	return &Bridge{now: time.Now}
}

// Capture runs the configured read sequence against the session. The
// session must already be held busy by the calling step. stepIndex and
// state tag each sample with its provenance.
func (b *Bridge) Capture(ctx context.Context, spec CaptureSpec, sess *instrument.Session, stepIndex int, state map[string]string) ([]Sample, error) {
	log := logging.FromContext(ctx)
	count := spec.Count
	if count <= 0 {
		count = 1
	}
	scale := spec.Scale
	if scale == 0 {
		scale = 1
	}

	samples := make([]Sample, 0, count)
	for i := 0; i < count; i++ {
		if i > 0 && spec.Interval > 0 {
			select {
			case <-time.After(spec.Interval):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		raw, err := sess.Query(ctx, spec.Query)
		if err != nil {
			return nil, err
		}
		if err := CheckUnit(raw, spec.Unit); err != nil {
			return nil, err
		}
		value, err := parseReading(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s reading %d: %v", ErrCapture, spec.Metric, i, err)
		}
		value *= scale
		if spec.RangeMin != nil && value < *spec.RangeMin {
			return nil, fmt.Errorf("%w: %s reading %g %s below plausible range %g", ErrCapture, spec.Metric, value, spec.Unit, *spec.RangeMin)
		}
		if spec.RangeMax != nil && value > *spec.RangeMax {
			return nil, fmt.Errorf("%w: %s reading %g %s above plausible range %g", ErrCapture, spec.Metric, value, spec.Unit, *spec.RangeMax)
		}
		samples = append(samples, Sample{
			ID:              uuid.New().String(),
			StepIndex:       stepIndex,
			Metric:          spec.Metric,
			Value:           value,
			Unit:            spec.Unit,
			Timestamp:       b.now().UTC(),
			InstrumentState: state,
		})
	}
	log.Debug("captured samples", "metric", spec.Metric, "count", len(samples))
	return samples, nil
}

// parseReading converts a device reply into a float. Replies may carry
// a trailing unit token ("-12.3 dBm"); the step's declared unit
// governs, so mismatched tokens are rejected rather than converted.
func parseReading(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("empty reading")
	}
	if fields := strings.Fields(s); len(fields) > 0 {
		s = fields[0]
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable reading %q", raw)
	}
	return v, nil
}

// CheckUnit rejects replies whose unit token contradicts the declared
// unit. Bare numeric replies always pass.
func CheckUnit(raw, declared string) error {
	fields := strings.Fields(strings.TrimSpace(raw))
	if len(fields) < 2 || declared == "" {
		return nil
	}
	if !strings.EqualFold(fields[1], declared) {
		return fmt.Errorf("%w: device reports unit %q, step declares %q", ErrCapture, fields[1], declared)
	}
	return nil
}
