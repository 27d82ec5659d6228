package agent

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"
)

// defaultPrintTimeout bounds the connect plus write to the printer.
const defaultPrintTimeout = 10 * time.Second

// Spooler sends rendered label data to printers over raw TCP. Zebra-class
// printers accept ZPL on port 9100 with no framing or acknowledgement, so
// a completed write is the strongest success signal available.
type Spooler struct {
	timeout time.Duration
	logger  zerolog.Logger
}

// NewSpooler creates a spooler with the default timeout.
func NewSpooler(logger zerolog.Logger) *Spooler {
	return &Spooler{
		timeout: defaultPrintTimeout,
		logger:  logger.With().Str("component", "spooler").Logger(),
	}
}

// Print connects to the printer and writes the label data.
func (s *Spooler) Print(ctx context.Context, address string, data []byte) error {
	dialer := net.Dialer{Timeout: s.timeout}

	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("connect to printer %s: %w", address, err)
	}
	defer conn.Close()

	if err := conn.SetWriteDeadline(time.Now().Add(s.timeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}

	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("write to printer %s: %w", address, err)
	}

	s.logger.Debug().
		Str("printer_address", address).
		Int("bytes", len(data)).
		Msg("label data sent to printer")

	return nil
}
