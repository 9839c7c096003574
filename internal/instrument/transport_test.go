package instrument

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"
)

func TestDialSchemes(t *testing.T) {
	if tr, err := Dial("tcp://10.0.0.51:5025"); err != nil {
		t.Errorf("Dial(tcp) returned error: %v", err)
	} else if _, ok := tr.(*TCPTransport); !ok {
		t.Errorf("Dial(tcp) = %T", tr)
	}
	if tr, err := Dial("serial:///dev/ttyUSB0?baud=9600"); err != nil {
		t.Errorf("Dial(serial) returned error: %v", err)
	} else if _, ok := tr.(*SerialTransport); !ok {
		t.Errorf("Dial(serial) = %T", tr)
	}
	if tr, err := Dial("sim://NGP800"); err != nil {
		t.Errorf("Dial(sim) returned error: %v", err)
	} else if _, ok := tr.(*SimTransport); !ok {
		t.Errorf("Dial(sim) = %T", tr)
	}
	if _, err := Dial("gpib://7"); !errors.Is(err, ErrConnection) {
		t.Errorf("Dial(gpib) error = %v, want ErrConnection", err)
	}
	if _, err := Dial("serial:///dev/ttyUSB0?baud=fast"); !errors.Is(err, ErrConnection) {
		t.Errorf("Dial(bad baud) error = %v, want ErrConnection", err)
	}
}

// scpiEcho answers *IDN? and echoes queries, one connection at a time.
func scpiEcho(t *testing.T, l net.Listener) {
	t.Helper()
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			cmd := strings.TrimSpace(line)
			switch {
			case cmd == "*IDN?":
				conn.Write([]byte("Rohde&Schwarz,NGP814,5601.4007K08,2.025\n"))
			case strings.HasSuffix(cmd, "?"):
				conn.Write([]byte("1.1\n"))
			}
		}
	}()
}

func TestTCPTransportRoundTrip(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	scpiEcho(t, l)

	tr := NewTCPTransport(l.Addr().String())
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() returned error: %v", err)
	}
	defer tr.Close()

	if err := tr.Write("*IDN?"); err != nil {
		t.Fatalf("Write() returned error: %v", err)
	}
	reply, err := tr.Read(2 * time.Second)
	if err != nil {
		t.Fatalf("Read() returned error: %v", err)
	}
	if !strings.Contains(reply, "NGP814") {
		t.Errorf("reply = %q", reply)
	}

	if err := tr.Write("MEAS:VOLT?"); err != nil {
		t.Fatalf("Write() returned error: %v", err)
	}
	if reply, err = tr.Read(2 * time.Second); err != nil || strings.TrimSpace(reply) != "1.1" {
		t.Errorf("Read() = %q, %v", reply, err)
	}
}

func TestTCPTransportReadTimeout(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	scpiEcho(t, l)

	tr := NewTCPTransport(l.Addr().String())
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() returned error: %v", err)
	}
	defer tr.Close()

	// A write with no reply coming: the read must time out cleanly.
	if err := tr.Write("OUTP ON"); err != nil {
		t.Fatalf("Write() returned error: %v", err)
	}
	if _, err := tr.Read(50 * time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Fatalf("Read() error = %v, want ErrTimeout", err)
	}
}

func TestTCPTransportConnectRefused(t *testing.T) {
	tr := NewTCPTransport("127.0.0.1:1")
	if err := tr.Connect(context.Background()); !errors.Is(err, ErrConnection) {
		t.Fatalf("Connect() error = %v, want ErrConnection", err)
	}
}

func TestSessionOverTCP(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	scpiEcho(t, l)

	s := NewSession(Descriptor{
		Role:     "power-supply",
		Endpoint: "tcp://" + l.Addr().String(),
		Models:   []string{"NGP814"},
	}, NewTCPTransport(l.Addr().String()))
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() returned error: %v", err)
	}
	defer s.Disconnect()

	if got := s.Identification().Model; got != "NGP814" {
		t.Errorf("model = %q, want NGP814", got)
	}
}
