package instrument

import "errors"

// Sentinel errors for session and transport failures. Callers match with
// errors.Is; wrapped errors carry endpoint and command context.
var (
	// ErrConnection indicates the transport could not be established or
	// was lost mid-operation.
	ErrConnection = errors.New("instrument: connection failed")

	// ErrIdentityMismatch indicates the responding device is not the one
	// the descriptor expects. Fatal for the run: the wrong physical
	// instrument is attached.
	ErrIdentityMismatch = errors.New("instrument: identity mismatch")

	// ErrTimeout indicates a command or query did not complete within
	// its deadline.
	ErrTimeout = errors.New("instrument: operation timed out")

	// ErrSessionUnavailable indicates a step required a session that is
	// not in the ready state.
	ErrSessionUnavailable = errors.New("instrument: session unavailable")

	// ErrCancelled indicates an in-flight operation was abandoned by
	// run-level cancellation. The device state is unknown afterwards, so
	// the session faults.
	ErrCancelled = errors.New("instrument: operation cancelled")

	// ErrFaulted indicates the session is faulted and needs an explicit
	// Recover before reuse.
	ErrFaulted = errors.New("instrument: session faulted")
)
