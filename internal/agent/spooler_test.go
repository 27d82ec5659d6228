package agent

import (
	"context"
	"io"
	"net"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakePrinter accepts raw socket connections and captures what was sent,
// standing in for a Zebra listening on port 9100.
type fakePrinter struct {
	ln   net.Listener
	data chan []byte
}

func newFakePrinter(t *testing.T) *fakePrinter {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	fp := &fakePrinter{ln: ln, data: make(chan []byte, 4)}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				b, _ := io.ReadAll(c)
				fp.data <- b
			}(conn)
		}
	}()
	t.Cleanup(func() { ln.Close() })

	return fp
}

func (f *fakePrinter) addr() string { return f.ln.Addr().String() }

func (f *fakePrinter) received(t *testing.T) []byte {
	t.Helper()
	select {
	case b := <-f.data:
		return b
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for printer data")
		return nil
	}
}

func TestSpooler_Print(t *testing.T) {
	printer := newFakePrinter(t)
	spooler := NewSpooler(zerolog.New(os.Stderr).Level(zerolog.Disabled))

	label := []byte("^XA\n^FDtest^FS\n^XZ\n")
	if err := spooler.Print(context.Background(), printer.addr(), label); err != nil {
		t.Fatalf("print: %v", err)
	}

	got := printer.received(t)
	if string(got) != string(label) {
		t.Errorf("printer received %q, want %q", got, label)
	}
}

func TestSpooler_Print_Unreachable(t *testing.T) {
	// Grab a port that nothing listens on.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	spooler := NewSpooler(zerolog.New(os.Stderr).Level(zerolog.Disabled))
	if err := spooler.Print(context.Background(), addr, []byte("^XA^XZ")); err == nil {
		t.Fatal("expected error printing to unreachable printer")
	}
}

func TestSpooler_Print_CanceledContext(t *testing.T) {
	printer := newFakePrinter(t)
	spooler := NewSpooler(zerolog.New(os.Stderr).Level(zerolog.Disabled))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := spooler.Print(ctx, printer.addr(), []byte("^XA^XZ")); err == nil {
		t.Fatal("expected error with canceled context")
	}
}
