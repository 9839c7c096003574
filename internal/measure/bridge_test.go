package measure

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rfbench/internal/instrument"
)

func busySession(t *testing.T) (*instrument.Session, *instrument.SimTransport) {
	t.Helper()
	tr := instrument.NewSimTransport("FSW")
	s := instrument.NewSession(instrument.Descriptor{Role: "signal-analyzer", Endpoint: "sim://FSW"}, tr)
	require.NoError(t, s.Connect(context.Background()))
	require.NoError(t, s.Acquire())
	return s, tr
}

func TestCapture_SingleReading(t *testing.T) {
	sess, tr := busySession(t)
	tr.Responses["CALC:MARK:RES:EVM?"] = "3.42"

	spec := CaptureSpec{Metric: "evm", Query: "CALC:MARK:RES:EVM?", Unit: "%", Count: 1}
	state := map[string]string{"input_power": "-25 dBm"}
	samples, err := NewBridge().Capture(context.Background(), spec, sess, 7, state)
	require.NoError(t, err)
	require.Len(t, samples, 1)

	s := samples[0]
	assert.Equal(t, "evm", s.Metric)
	assert.Equal(t, 3.42, s.Value)
	assert.Equal(t, "%", s.Unit)
	assert.Equal(t, 7, s.StepIndex)
	assert.Equal(t, "-25 dBm", s.InstrumentState["input_power"])
	assert.NotEmpty(t, s.ID)
	assert.False(t, s.Timestamp.IsZero())
}

func TestCapture_MultipleReadings(t *testing.T) {
	sess, tr := busySession(t)
	tr.Responses["MEAS:POW?"] = "-12.3"

	spec := CaptureSpec{Metric: "power", Query: "MEAS:POW?", Unit: "dBm", Count: 3}
	samples, err := NewBridge().Capture(context.Background(), spec, sess, 0, nil)
	require.NoError(t, err)
	require.Len(t, samples, 3)
	for _, s := range samples {
		assert.Equal(t, -12.3, s.Value)
	}
}

func TestCapture_ScaleConversion(t *testing.T) {
	sess, tr := busySession(t)
	// Device reports watts, the step wants milliwatts.
	tr.Responses["MEAS:POW:W?"] = "0.0123"

	spec := CaptureSpec{Metric: "power", Query: "MEAS:POW:W?", Unit: "mW", Scale: 1000, Count: 1}
	samples, err := NewBridge().Capture(context.Background(), spec, sess, 0, nil)
	require.NoError(t, err)
	assert.InDelta(t, 12.3, samples[0].Value, 1e-9)
}

func TestCapture_TrailingUnitTokenAccepted(t *testing.T) {
	sess, tr := busySession(t)
	tr.Responses["MEAS:POW?"] = "-12.3 dBm"

	spec := CaptureSpec{Metric: "power", Query: "MEAS:POW?", Unit: "dBm", Count: 1}
	samples, err := NewBridge().Capture(context.Background(), spec, sess, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, -12.3, samples[0].Value)
}

func TestCapture_UnitMismatch(t *testing.T) {
	sess, tr := busySession(t)
	tr.Responses["MEAS:VOLT?"] = "5.0 V"

	spec := CaptureSpec{Metric: "current", Query: "MEAS:VOLT?", Unit: "A", Count: 1}
	_, err := NewBridge().Capture(context.Background(), spec, sess, 0, nil)
	require.ErrorIs(t, err, ErrCapture)
}

func TestCapture_MalformedReading(t *testing.T) {
	sess, tr := busySession(t)
	tr.Responses["MEAS:POW?"] = "OVERLOAD"

	spec := CaptureSpec{Metric: "power", Query: "MEAS:POW?", Unit: "dBm", Count: 1}
	_, err := NewBridge().Capture(context.Background(), spec, sess, 0, nil)
	require.ErrorIs(t, err, ErrCapture)
}

func TestCapture_OutOfPlausibleRange(t *testing.T) {
	sess, tr := busySession(t)
	tr.Responses["CALC:MARK:RES:EVM?"] = "142.5"

	low, high := 0.0, 100.0
	spec := CaptureSpec{Metric: "evm", Query: "CALC:MARK:RES:EVM?", Unit: "%", Count: 1, RangeMin: &low, RangeMax: &high}
	_, err := NewBridge().Capture(context.Background(), spec, sess, 0, nil)
	require.ErrorIs(t, err, ErrCapture)
}

func TestCapture_SessionError(t *testing.T) {
	sess, _ := busySession(t)
	// No scripted reply: the query times out at the session.
	spec := CaptureSpec{Metric: "power", Query: "MEAS:POW?", Unit: "dBm", Count: 1}
	_, err := NewBridge().Capture(context.Background(), spec, sess, 0, nil)
	require.ErrorIs(t, err, instrument.ErrTimeout)
}

func TestCapture_CancelledBetweenReadings(t *testing.T) {
	sess, tr := busySession(t)
	tr.Responses["MEAS:POW?"] = "-12.3"

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()
	spec := CaptureSpec{Metric: "power", Query: "MEAS:POW?", Unit: "dBm", Count: 5, Interval: time.Second}
	_, err := NewBridge().Capture(ctx, spec, sess, 0, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestCheckUnit(t *testing.T) {
	assert.NoError(t, CheckUnit("-12.3", "dBm"))
	assert.NoError(t, CheckUnit("-12.3 dBm", "dBm"))
	assert.NoError(t, CheckUnit("-12.3 dbm", "dBm"))
	assert.NoError(t, CheckUnit("-12.3 V", ""))
	assert.Error(t, CheckUnit("-12.3 V", "A"))
}
