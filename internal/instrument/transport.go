package instrument

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Transport is the driver boundary for one physical device. The session
// layer never encodes device-specific syntax; it passes opaque command
// strings from the step definitions.
//
// Implementations must be safe for use from one goroutine at a time;
// serialization across goroutines is the session's job.
type Transport interface {
	// Connect establishes the underlying link.
	Connect(ctx context.Context) error
	// Write sends one command, terminator included by the transport.
	Write(command string) error
	// Read blocks for one response line or until timeout.
	Read(timeout time.Duration) (string, error)
	// Close releases the link. Idempotent.
	Close() error
}

// Dial builds a transport from an endpoint URL. Supported schemes:
//
//	tcp://host:port          raw SCPI over a TCP socket
//	serial:///dev/ttyUSB0?baud=115200
//	sim://model              scripted transport for tests and dry runs
func Dial(endpoint string) (Transport, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: bad endpoint %q: %v", ErrConnection, endpoint, err)
	}
	switch u.Scheme {
	case "tcp":
		return NewTCPTransport(u.Host), nil
	case "serial":
		baud := 115200
		if b := u.Query().Get("baud"); b != "" {
			baud, err = strconv.Atoi(b)
			if err != nil {
				return nil, fmt.Errorf("%w: bad baud rate %q", ErrConnection, b)
			}
		}
		return NewSerialTransport(u.Path, baud), nil
	case "sim":
		return NewSimTransport(u.Host), nil
	default:
		return nil, fmt.Errorf("%w: unsupported endpoint scheme %q", ErrConnection, u.Scheme)
	}
}
