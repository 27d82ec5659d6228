package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/realworldtech/props-print-service/internal/config"
)

// ErrAuthRejected means the server refused the station's token. Retrying
// cannot help: token rotation means a rejected token will never become
// valid again, so the station has to be re-paired.
var ErrAuthRejected = errors.New("authentication rejected")

const (
	// defaultReadTimeout tolerates two missed server pings before the
	// station gives up on the connection.
	defaultReadTimeout  = 90 * time.Second
	defaultWriteTimeout = 10 * time.Second

	reconnectMinBackoff = time.Second
	reconnectMaxBackoff = 2 * time.Minute

	// statusProbeTimeout bounds the per-printer reachability probe taken
	// while building the authenticate frame.
	statusProbeTimeout = 2 * time.Second
)

// Runner maintains the station's connection to the server: it
// authenticates, persists rotated tokens, executes pushed print jobs, and
// reconnects with backoff when the connection drops.
type Runner struct {
	cfg        *config.AgentConfig
	configPath string
	journal    *Journal
	spooler    *Spooler
	dialer     *websocket.Dialer
	logger     zerolog.Logger

	readTimeout  time.Duration
	writeTimeout time.Duration
	minBackoff   time.Duration
	maxBackoff   time.Duration
}

// NewRunner creates a runner for the given configuration. The config path
// is where rotated tokens are persisted.
func NewRunner(cfg *config.AgentConfig, configPath string, journal *Journal, logger zerolog.Logger) (*Runner, error) {
	dialer, err := NewDialer(cfg.GetProxyConfig())
	if err != nil {
		return nil, err
	}

	return &Runner{
		cfg:          cfg,
		configPath:   configPath,
		journal:      journal,
		spooler:      NewSpooler(logger),
		dialer:       dialer,
		logger:       logger.With().Str("component", "runner").Logger(),
		readTimeout:  defaultReadTimeout,
		writeTimeout: defaultWriteTimeout,
		minBackoff:   reconnectMinBackoff,
		maxBackoff:   reconnectMaxBackoff,
	}, nil
}

// Run connects and serves print jobs until the context is canceled or the
// server rejects the station's token.
func (r *Runner) Run(ctx context.Context) error {
	backoff := r.minBackoff

	for {
		authed, err := r.runSession(ctx)
		if errors.Is(err, ErrAuthRejected) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if authed {
			backoff = r.minBackoff
		}

		if err != nil {
			r.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("session ended")
		} else {
			r.logger.Info().Dur("retry_in", backoff).Msg("server closed the connection, reconnecting")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > r.maxBackoff {
			backoff = r.maxBackoff
		}
	}
}

// runSession runs one connection lifecycle. It reports whether the session
// authenticated so the caller can reset its backoff.
func (r *Runner) runSession(ctx context.Context) (bool, error) {
	endpoint, err := websocketURL(r.cfg.ServerURL)
	if err != nil {
		return false, err
	}

	conn, resp, err := r.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			return false, fmt.Errorf("connect to %s: %w (HTTP %s)", endpoint, err, resp.Status)
		}
		return false, fmt.Errorf("connect to %s: %w", endpoint, err)
	}
	defer conn.Close()

	// ReadMessage has no context support; closing the connection is how a
	// canceled context unblocks the loop below.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	conn.SetReadDeadline(time.Now().Add(r.readTimeout))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(r.readTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(r.writeTimeout))
	})

	conn.SetWriteDeadline(time.Now().Add(r.writeTimeout))
	if err := conn.WriteJSON(r.buildAuthenticate(ctx)); err != nil {
		return false, fmt.Errorf("send authenticate: %w", err)
	}

	authed := false
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return authed, ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				// Clean close: server shutdown, or this station was
				// displaced by a newer connection for the same client.
				return authed, nil
			}
			return authed, fmt.Errorf("read server message: %w", err)
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			r.logger.Warn().Err(err).Msg("unparseable server frame")
			continue
		}

		switch env.Type {
		case msgTypeAuthResult:
			var result authResultFrame
			if err := json.Unmarshal(data, &result); err != nil {
				return authed, fmt.Errorf("parse auth_result: %w", err)
			}
			if !result.Success {
				return false, fmt.Errorf("%w: %s", ErrAuthRejected, result.Message)
			}
			r.completeAuth(ctx, &result)
			authed = true

		case msgTypePrintJob:
			var job PrintJob
			if err := json.Unmarshal(data, &job); err != nil {
				r.logger.Warn().Err(err).Msg("unparseable print job")
				continue
			}
			r.handleJob(ctx, conn, &job)

		case msgTypeError:
			var serverErr errorFrame
			if err := json.Unmarshal(data, &serverErr); err != nil {
				r.logger.Warn().Err(err).Msg("unparseable error frame")
				continue
			}
			r.logger.Warn().
				Str("code", serverErr.Code).
				Str("message", serverErr.Message).
				Msg("server reported a protocol error")

		default:
			r.logger.Debug().Str("type", env.Type).Msg("ignoring unexpected message type")
		}
	}
}

// buildAuthenticate declares the station's printers with a live
// reachability status from a quick TCP probe.
func (r *Runner) buildAuthenticate(ctx context.Context) authenticateFrame {
	printers := make([]wirePrinter, 0, len(r.cfg.Printers))
	for _, p := range r.cfg.Printers {
		status := "offline"
		if r.probePrinter(ctx, p.DialAddress()) {
			status = "online"
		}
		printers = append(printers, wirePrinter{
			ID:        p.ID,
			Name:      p.Name,
			Type:      p.Type,
			Status:    status,
			Templates: p.Templates,
		})
	}

	return authenticateFrame{
		Type:            msgTypeAuthenticate,
		ProtocolVersion: r.cfg.EffectiveProtocolVersion(),
		Token:           r.cfg.Token,
		ClientName:      r.cfg.Name,
		Printers:        printers,
	}
}

func (r *Runner) probePrinter(ctx context.Context, address string) bool {
	dialer := net.Dialer{Timeout: statusProbeTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// completeAuth persists the rotated token and records the contact. A failed
// config write is logged but does not end the session: the in-memory token
// stays valid for the next authenticate, which rotates and saves again.
func (r *Runner) completeAuth(ctx context.Context, result *authResultFrame) {
	if result.NewToken != "" {
		r.cfg.Token = result.NewToken
	}
	if result.ServerName != "" {
		r.cfg.ServerName = result.ServerName
	}

	if err := r.cfg.Save(r.configPath); err != nil {
		r.logger.Error().Err(err).Str("path", r.configPath).
			Msg("failed to persist rotated token; the station cannot survive a restart until this succeeds")
	}

	if err := r.journal.TouchLastContact(ctx); err != nil {
		r.logger.Warn().Err(err).Msg("failed to record last contact")
	}
	if result.ServerName != "" {
		if err := r.journal.SetMetadata(ctx, metaServerName, result.ServerName); err != nil {
			r.logger.Warn().Err(err).Msg("failed to record server name")
		}
	}

	r.logger.Info().Str("server_name", result.ServerName).Msg("authenticated, token rotated")
}

// handleJob runs one job through the local pipeline: journal, ack, render,
// print, report.
func (r *Runner) handleJob(ctx context.Context, conn *websocket.Conn, job *PrintJob) {
	logger := r.logger.With().Str("job_id", job.JobID).Str("printer_id", job.PrinterID).Logger()

	if err := r.journal.RecordJob(ctx, job); err != nil {
		logger.Error().Err(err).Msg("failed to journal job")
	}

	r.sendJobStatus(conn, job.JobID, jobStatusAcked, "")

	if err := r.printJob(ctx, job); err != nil {
		logger.Warn().Err(err).Msg("print failed")
		if jerr := r.journal.MarkFailed(ctx, job.JobID, err.Error()); jerr != nil {
			logger.Error().Err(jerr).Msg("failed to journal print failure")
		}
		r.sendJobStatus(conn, job.JobID, jobStatusFailed, err.Error())
		return
	}

	if err := r.journal.MarkPrinted(ctx, job.JobID); err != nil {
		logger.Error().Err(err).Msg("failed to journal printed job")
	}
	r.sendJobStatus(conn, job.JobID, jobStatusCompleted, "")

	logger.Info().
		Str("label_type", job.LabelType).
		Int("quantity", job.Quantity).
		Msg("label printed")
}

// printJob resolves the printer, renders the label, and spools it.
func (r *Runner) printJob(ctx context.Context, job *PrintJob) error {
	printer := r.findPrinter(job.PrinterID)
	if printer == nil {
		return fmt.Errorf("printer %q is not configured on this station", job.PrinterID)
	}

	data, err := RenderZPL(job)
	if err != nil {
		return fmt.Errorf("render label: %w", err)
	}

	return r.spooler.Print(ctx, printer.DialAddress(), data)
}

func (r *Runner) findPrinter(id string) *config.PrinterConfig {
	for i := range r.cfg.Printers {
		if r.cfg.Printers[i].ID == id {
			return &r.cfg.Printers[i]
		}
	}
	return nil
}

func (r *Runner) sendJobStatus(conn *websocket.Conn, jobID, status, message string) {
	conn.SetWriteDeadline(time.Now().Add(r.writeTimeout))
	frame := jobStatusFrame{Type: msgTypeJobStatus, JobID: jobID, Status: status, Message: message}
	if err := conn.WriteJSON(frame); err != nil {
		r.logger.Warn().Err(err).Str("job_id", jobID).Msg("failed to send job status")
	}
}
