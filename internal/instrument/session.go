package instrument

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// State is the lifecycle state of a session.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateReady        State = "ready"
	StateBusy         State = "busy"
	StateFaulted      State = "faulted"
)

// Descriptor identifies one physical device on the bench.
type Descriptor struct {
	// Role is the logical tag steps refer to, e.g. "power-supply" or
	// "signal-generator-a".
	Role string `json:"role" yaml:"role"`
	// Endpoint is the transport URL, see Dial.
	Endpoint string `json:"endpoint" yaml:"endpoint"`
	// Models lists accepted *IDN? model strings. Empty accepts any.
	Models []string `json:"models,omitempty" yaml:"models,omitempty"`
	// Capabilities names the command categories the device supports.
	Capabilities []string `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
}

// faultThreshold is the number of consecutive command failures that
// faults a session.
const faultThreshold = 2

// defaultCommandTimeout bounds a single command round trip when the
// caller's context has no deadline.
const defaultCommandTimeout = 5 * time.Second

// Session owns the connection lifecycle to one physical instrument.
// Commands are serialized: the orchestrator holds the busy lock via
// Acquire for the duration of a step, and Send/Query additionally
// serialize at the transport.
type Session struct {
	desc Descriptor
	tr   Transport

	opMu sync.Mutex // serializes transport operations

	mu          sync.Mutex // guards state, ident, consecFails
	state       State
	ident       Identification
	consecFails int
}

// NewSession wraps a transport for the described device. The session
// starts disconnected.
func NewSession(desc Descriptor, tr Transport) *Session {
	return &Session{desc: desc, tr: tr, state: StateDisconnected}
}

// Descriptor returns the device descriptor.
func (s *Session) Descriptor() Descriptor { return s.desc }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Identification returns the identity captured at Connect.
func (s *Session) Identification() Identification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ident
}

// Connect establishes the transport and verifies the device identity
// against the descriptor. On success the session is ready.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: %s: connect from state %s", ErrConnection, s.desc.Role, st)
	}
	s.state = StateConnecting
	s.mu.Unlock()

	if err := s.tr.Connect(ctx); err != nil {
		s.setState(StateDisconnected)
		return err
	}
	if err := s.identify(ctx); err != nil {
		_ = s.tr.Close()
		s.setState(StateDisconnected)
		return err
	}
	s.setState(StateReady)
	return nil
}

// identify issues *IDN? and checks the reply against the descriptor.
func (s *Session) identify(ctx context.Context) error {
	raw, err := s.roundTrip(ctx, "*IDN?", true)
	if err != nil {
		return fmt.Errorf("identify %s: %w", s.desc.Role, err)
	}
	ident, err := ParseIdentification(raw)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrIdentityMismatch, s.desc.Role, err)
	}
	if !ident.MatchesModel(s.desc.Models) {
		return fmt.Errorf("%w: %s: device reports %s, descriptor accepts %v",
			ErrIdentityMismatch, s.desc.Role, ident, s.desc.Models)
	}
	s.mu.Lock()
	s.ident = ident
	s.mu.Unlock()
	return nil
}

// Acquire transitions ready → busy for exclusive step use. It fails
// with ErrSessionUnavailable if the session is in any other state.
func (s *Session) Acquire() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady {
		return fmt.Errorf("%w: %s is %s", ErrSessionUnavailable, s.desc.Role, s.state)
	}
	s.state = StateBusy
	return nil
}

// Release transitions busy → ready. A session that faulted while busy
// stays faulted.
func (s *Session) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateBusy {
		s.state = StateReady
	}
}

// Send executes one command with no reply expected.
func (s *Session) Send(ctx context.Context, command string) error {
	_, err := s.execute(ctx, command, false)
	return err
}

// Query executes one command and returns the device's reply.
func (s *Session) Query(ctx context.Context, command string) (string, error) {
	return s.execute(ctx, command, true)
}

func (s *Session) execute(ctx context.Context, command string, wantReply bool) (string, error) {
	s.mu.Lock()
	if s.state != StateBusy && s.state != StateConnecting {
		st := s.state
		s.mu.Unlock()
		if st == StateFaulted {
			return "", fmt.Errorf("%w: %s", ErrFaulted, s.desc.Role)
		}
		return "", fmt.Errorf("%w: %s is %s, not busy", ErrSessionUnavailable, s.desc.Role, st)
	}
	s.mu.Unlock()

	reply, err := s.roundTrip(ctx, command, wantReply)
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case err == nil:
		s.consecFails = 0
	case ctx.Err() == context.Canceled:
		// Run-level cancellation mid-command: the device state is unknown,
		// so the session faults regardless of fail count.
		s.state = StateFaulted
		return "", fmt.Errorf("%w: %s: %s", ErrCancelled, s.desc.Role, command)
	case ctx.Err() != nil:
		// An attempt deadline expiring is one command failure like any
		// other; the step's retry gets a fresh window at the session.
		s.consecFails++
		if s.consecFails >= faultThreshold {
			s.state = StateFaulted
		}
		return "", fmt.Errorf("%w: %s: %s", ErrTimeout, s.desc.Role, command)
	default:
		s.consecFails++
		if s.consecFails >= faultThreshold {
			s.state = StateFaulted
		}
	}
	return reply, err
}

// roundTrip performs the transport write (and read, for queries) in a
// worker goroutine so run-level cancellation can abandon it.
func (s *Session) roundTrip(ctx context.Context, command string, wantReply bool) (string, error) {
	timeout := defaultCommandTimeout
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < timeout {
			timeout = rem
		}
	}
	if timeout <= 0 {
		return "", fmt.Errorf("%w: %s: no time left for %s", ErrTimeout, s.desc.Role, command)
	}

	type result struct {
		reply string
		err   error
	}
	done := make(chan result, 1)
	go func() {
		s.opMu.Lock()
		defer s.opMu.Unlock()
		if err := s.tr.Write(command); err != nil {
			done <- result{err: err}
			return
		}
		if !wantReply {
			done <- result{}
			return
		}
		reply, err := s.tr.Read(timeout)
		done <- result{reply: reply, err: err}
	}()

	select {
	case r := <-done:
		return r.reply, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Recover re-validates a faulted session's identity and returns it to
// ready. A failed Recover leaves the session faulted; the instrument is
// lost for the remainder of the run.
func (s *Session) Recover(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateFaulted {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: %s: recover from state %s", ErrSessionUnavailable, s.desc.Role, st)
	}
	s.state = StateConnecting
	s.consecFails = 0
	s.mu.Unlock()

	if err := s.identify(ctx); err != nil {
		s.setState(StateFaulted)
		return fmt.Errorf("recover %s: %w", s.desc.Role, err)
	}
	s.setState(StateReady)
	return nil
}

// Disconnect releases the transport. Idempotent.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	if s.state == StateDisconnected {
		s.mu.Unlock()
		return nil
	}
	s.state = StateDisconnected
	s.consecFails = 0
	s.mu.Unlock()
	return s.tr.Close()
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}
