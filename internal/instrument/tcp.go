package instrument

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"time"
)

// TCPTransport speaks newline-terminated SCPI over a raw TCP socket, the
// usual port 5025 "hislip-less" path on R&S and Keysight gear.
type TCPTransport struct {
	addr   string
	conn   net.Conn
	reader *bufio.Reader
}

// NewTCPTransport returns an unconnected transport for addr (host:port).
func NewTCPTransport(addr string) *TCPTransport {
	return &TCPTransport{addr: addr}
}

// Connect dials the instrument.
func (t *TCPTransport) Connect(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", ErrConnection, t.addr, err)
	}
	t.conn = conn
	t.reader = bufio.NewReader(conn)
	return nil
}

// Write sends one command with a newline terminator.
func (t *TCPTransport) Write(command string) error {
	if t.conn == nil {
		return fmt.Errorf("%w: %s not connected", ErrConnection, t.addr)
	}
	if _, err := t.conn.Write([]byte(command + "\n")); err != nil {
		return fmt.Errorf("%w: write to %s: %v", ErrConnection, t.addr, err)
	}
	return nil
}

// Read blocks for one response line or until timeout.
func (t *TCPTransport) Read(timeout time.Duration) (string, error) {
	if t.conn == nil {
		return "", fmt.Errorf("%w: %s not connected", ErrConnection, t.addr)
	}
	if err := t.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrConnection, t.addr, err)
	}
	line, err := t.reader.ReadString('\n')
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() || os.IsTimeout(err) {
			return "", fmt.Errorf("%w: read from %s after %s", ErrTimeout, t.addr, timeout)
		}
		return "", fmt.Errorf("%w: read from %s: %v", ErrConnection, t.addr, err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Close releases the socket. Idempotent.
func (t *TCPTransport) Close() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	t.reader = nil
	return err
}
