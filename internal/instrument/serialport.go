package instrument

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
)

// SerialTransport drives instruments attached over an RS-232/USB serial
// bridge, 8N1 framing.
type SerialTransport struct {
	device string
	baud   int
	port   serial.Port
	reader *bufio.Reader
}

// NewSerialTransport returns an unconnected transport for the named
// serial device.
func NewSerialTransport(device string, baud int) *SerialTransport {
	return &SerialTransport{device: device, baud: baud}
}

// Connect opens the serial port.
func (t *SerialTransport) Connect(ctx context.Context) error {
	mode := &serial.Mode{
		BaudRate: t.baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(t.device, mode)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrConnection, t.device, err)
	}
	t.port = port
	t.reader = bufio.NewReader(port)
	return nil
}

// Write sends one command with a newline terminator.
func (t *SerialTransport) Write(command string) error {
	if t.port == nil {
		return fmt.Errorf("%w: %s not connected", ErrConnection, t.device)
	}
	if _, err := t.port.Write([]byte(command + "\n")); err != nil {
		return fmt.Errorf("%w: write to %s: %v", ErrConnection, t.device, err)
	}
	return nil
}

// Read blocks for one response line or until timeout.
func (t *SerialTransport) Read(timeout time.Duration) (string, error) {
	if t.port == nil {
		return "", fmt.Errorf("%w: %s not connected", ErrConnection, t.device)
	}
	if err := t.port.SetReadTimeout(timeout); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrConnection, t.device, err)
	}
	line, err := t.reader.ReadString('\n')
	if err != nil {
		if line == "" {
			return "", fmt.Errorf("%w: read from %s after %s", ErrTimeout, t.device, timeout)
		}
		return "", fmt.Errorf("%w: read from %s: %v", ErrConnection, t.device, err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Close releases the port. Idempotent.
func (t *SerialTransport) Close() error {
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	t.reader = nil
	return err
}
