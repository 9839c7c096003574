package instrument

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// SimTransport is a scripted in-memory transport used by tests and by
// sim:// endpoints for dry runs without hardware. Queries are answered
// from the Responses table (or Handler when set); writes are recorded.
type SimTransport struct {
	model string

	mu        sync.Mutex
	connected bool
	pending   []string

	// Identity is the *IDN? reply. Defaults to an R&S style string built
	// from the endpoint's model name.
	Identity string
	// Responses maps a query command to its scripted reply.
	Responses map[string]string
	// Handler, when set, answers every command and overrides Responses.
	// Returning an empty string means "no reply queued".
	Handler func(command string) (string, error)
	// FailWrites makes the next N writes fail, for fault-path tests.
	FailWrites int
	// Latency is added to every Read.
	Latency time.Duration
	// Commands records every command received, in order.
	Commands []string
}

// NewSimTransport returns a simulated transport identifying as model.
func NewSimTransport(model string) *SimTransport {
	if model == "" {
		model = "SIM100"
	}
	return &SimTransport{
		model:     model,
		Identity:  fmt.Sprintf("Rohde-Schwarz,%s,100001,1.00", strings.ToUpper(model)),
		Responses: make(map[string]string),
	}
}

// Connect marks the transport connected.
func (t *SimTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = true
	return nil
}

// Write records the command and queues a reply for queries.
func (t *SimTransport) Write(command string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return fmt.Errorf("%w: sim transport not connected", ErrConnection)
	}
	t.Commands = append(t.Commands, command)
	if t.FailWrites > 0 {
		t.FailWrites--
		return fmt.Errorf("%w: sim write failure injected", ErrConnection)
	}
	if t.Handler != nil {
		reply, err := t.Handler(command)
		if err != nil {
			return err
		}
		if reply != "" {
			t.pending = append(t.pending, reply)
		}
		return nil
	}
	if command == "*IDN?" {
		t.pending = append(t.pending, t.Identity)
		return nil
	}
	if strings.HasSuffix(command, "?") {
		if reply, ok := t.Responses[command]; ok {
			t.pending = append(t.pending, reply)
		}
		// No scripted reply: the matching Read times out.
	}
	return nil
}

// Read pops the next queued reply or reports a timeout.
func (t *SimTransport) Read(timeout time.Duration) (string, error) {
	if t.Latency > 0 {
		time.Sleep(t.Latency)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return "", fmt.Errorf("%w: sim transport not connected", ErrConnection)
	}
	if len(t.pending) == 0 {
		return "", fmt.Errorf("%w: sim read after %s", ErrTimeout, timeout)
	}
	reply := t.pending[0]
	t.pending = t.pending[1:]
	return reply, nil
}

// Close marks the transport disconnected. Idempotent.
func (t *SimTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
	t.pending = nil
	return nil
}
