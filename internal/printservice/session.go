package printservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/realworldtech/props-print-service/internal/auth"
	"github.com/realworldtech/props-print-service/internal/db"
	"github.com/realworldtech/props-print-service/internal/models"
	"github.com/realworldtech/props-print-service/internal/pubsub"
)

// SessionStore is the persistence surface the session state machine needs.
type SessionStore interface {
	CreatePrintClient(ctx context.Context, client *models.PrintClient) error
	GetPendingPrintClientByName(ctx context.Context, name string) (*models.PrintClient, error)
	GetPrintClientByTokenHash(ctx context.Context, tokenHash string) (*models.PrintClient, error)
	UpdatePrintClientTokenHash(ctx context.Context, id uuid.UUID, tokenHash string) error
	RotatePrintClientAuth(ctx context.Context, id uuid.UUID, tokenHash string, printers []models.Printer, protocolVersion, name string) error
	SetPrintClientConnected(ctx context.Context, id uuid.UUID, connected bool) error
	GetPrintRequestByJobID(ctx context.Context, jobID uuid.UUID) (*models.PrintRequest, error)
	UpdatePrintRequestStatus(ctx context.Context, req *models.PrintRequest) error
}

// Recorder receives protocol-level counters. Implementations must be
// goroutine safe. A nil recorder disables recording.
type Recorder interface {
	RecordAuth(result string)
	RecordPairing(outcome string)
	ObserveJobDuration(labelType string, seconds float64)
}

// SessionState tracks where a connection is in the pairing/auth lifecycle.
type SessionState int

const (
	// StateUnauth is the initial state; the auth timeout is armed.
	StateUnauth SessionState = iota
	// StatePairing means the session joined a pairing group and awaits an
	// operator decision. The auth timeout is disarmed: approval is human.
	StatePairing
	// StateAuthenticated means the token was validated and the session owns
	// the client's active-connection group membership.
	StateAuthenticated
	// StateClosed is terminal.
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateUnauth:
		return "unauth"
	case StatePairing:
		return "pairing"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Config holds tuning for the session service.
type Config struct {
	// AuthTimeout closes connections that neither pair nor authenticate.
	AuthTimeout time.Duration
	// SupportedProtocolVersions gates pairing and authentication.
	SupportedProtocolVersions []string
	// ServerName is reported to clients in pairing and auth responses.
	ServerName string
	// PingInterval is how often to ping idle connections.
	PingInterval time.Duration
	// WriteTimeout is the per-frame write deadline.
	WriteTimeout time.Duration
	// ReadTimeout is the read deadline, refreshed on every pong.
	ReadTimeout time.Duration
	// MaxMessageSize bounds inbound frames.
	MaxMessageSize int64
	// SendBufferSize is the outbound frame buffer per session.
	SendBufferSize int
	// EventBufferSize is the group-event buffer per session.
	EventBufferSize int
	// OpTimeout bounds each store or layer call made by a session.
	OpTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		AuthTimeout:               30 * time.Second,
		SupportedProtocolVersions: []string{models.DefaultProtocolVersion},
		ServerName:                "PROPS",
		PingInterval:              30 * time.Second,
		WriteTimeout:              10 * time.Second,
		ReadTimeout:               60 * time.Second,
		MaxMessageSize:            8192,
		SendBufferSize:            32,
		EventBufferSize:           16,
		OpTimeout:                 10 * time.Second,
	}
}

// Service owns all live print-client sessions and upgrades new connections.
type Service struct {
	config   Config
	store    SessionStore
	layer    pubsub.Layer
	logger   zerolog.Logger
	metrics  Recorder
	upgrader websocket.Upgrader

	sessions   map[uuid.UUID]*Session
	sessionsMu sync.RWMutex
}

// NewService creates a session service.
func NewService(store SessionStore, layer pubsub.Layer, cfg Config, logger zerolog.Logger) *Service {
	return &Service{
		config: cfg,
		store:  store,
		layer:  layer,
		logger: logger.With().Str("component", "print_session").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // print stations connect from arbitrary origins
			},
		},
		sessions: make(map[uuid.UUID]*Session),
	}
}

// SetMetrics wires the protocol counters. Call before serving traffic.
func (svc *Service) SetMetrics(rec Recorder) {
	svc.metrics = rec
}

func (svc *Service) recordAuth(result string) {
	if svc.metrics != nil {
		svc.metrics.RecordAuth(result)
	}
}

func (svc *Service) recordPairing(outcome string) {
	if svc.metrics != nil {
		svc.metrics.RecordPairing(outcome)
	}
}

func (svc *Service) observeJobDuration(labelType string, seconds float64) {
	if svc.metrics != nil {
		svc.metrics.ObserveJobDuration(labelType, seconds)
	}
}

// HandleWebSocket upgrades the request and runs a session for its lifetime.
func (svc *Service) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := svc.upgrader.Upgrade(w, r, nil)
	if err != nil {
		svc.logger.Error().Err(err).Msg("failed to upgrade websocket connection")
		return
	}

	sess := &Session{
		id:     uuid.New(),
		svc:    svc,
		conn:   conn,
		state:  StateUnauth,
		send:   make(chan []byte, svc.config.SendBufferSize),
		events: make(chan pubsub.Event, svc.config.EventBufferSize),
		done:   make(chan struct{}),
	}
	sess.logger = svc.logger.With().Str("session_id", sess.id.String()).Logger()

	svc.addSession(sess)
	sess.armAuthTimeout()

	go sess.writePump()
	go sess.eventLoop()
	go sess.readPump()

	sess.logger.Debug().Str("remote_addr", conn.RemoteAddr().String()).Msg("print client connected")
}

// SessionCount returns the number of live sessions.
func (svc *Service) SessionCount() int {
	svc.sessionsMu.RLock()
	defer svc.sessionsMu.RUnlock()
	return len(svc.sessions)
}

// CloseAll tears down every live session. Used on shutdown.
func (svc *Service) CloseAll() {
	svc.sessionsMu.RLock()
	sessions := make([]*Session, 0, len(svc.sessions))
	for _, s := range svc.sessions {
		sessions = append(sessions, s)
	}
	svc.sessionsMu.RUnlock()

	for _, s := range sessions {
		s.close()
	}
}

func (svc *Service) addSession(s *Session) {
	svc.sessionsMu.Lock()
	defer svc.sessionsMu.Unlock()
	svc.sessions[s.id] = s
}

func (svc *Service) removeSession(s *Session) {
	svc.sessionsMu.Lock()
	defer svc.sessionsMu.Unlock()
	delete(svc.sessions, s.id)
}

func (svc *Service) supportedVersion(version string) bool {
	for _, v := range svc.config.SupportedProtocolVersions {
		if v == version {
			return true
		}
	}
	return false
}

// Session is one live print-client connection. Inbound socket messages run
// on the read pump goroutine and group events on the event loop goroutine;
// mu guards the state they share. All outbound frames go through send and
// are written by the write pump, the only goroutine that touches the socket
// for writes.
type Session struct {
	id     uuid.UUID
	svc    *Service
	conn   *websocket.Conn
	logger zerolog.Logger

	send   chan []byte
	events chan pubsub.Event
	done   chan struct{}

	mu           sync.Mutex
	state        SessionState
	client       *models.PrintClient
	pairingGroup string
	activeGroup  string
	authTimer    *time.Timer

	closeOnce sync.Once
}

// Deliver implements pubsub.Subscriber. It never blocks: events are queued
// for the session's event loop and dropped with a warning on overflow.
func (s *Session) Deliver(event pubsub.Event) {
	select {
	case s.events <- event:
	case <-s.done:
	default:
		s.logger.Warn().Str("event_type", event.Type).Msg("session event buffer full, dropping event")
	}
}

// close makes the session terminal: no further outbound frames are accepted,
// the write pump flushes what is queued and closes the socket, and both
// pumps exit. Group and store cleanup happens on the read pump's way out.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *Session) opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.svc.config.OpTimeout)
}

// armAuthTimeout starts the watchdog that closes connections which never
// pair or authenticate. A fire that races its own cancellation re-checks
// state and is a no-op unless the session is still unauthenticated.
func (s *Session) armAuthTimeout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authTimer = time.AfterFunc(s.svc.config.AuthTimeout, func() {
		s.mu.Lock()
		expired := s.state == StateUnauth
		s.mu.Unlock()
		if expired {
			s.logger.Info().Dur("timeout", s.svc.config.AuthTimeout).Msg("closing connection: authentication timeout")
			s.close()
		}
	})
}

func (s *Session) cancelAuthTimeout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.authTimer != nil {
		s.authTimer.Stop()
		s.authTimer = nil
	}
}

// readPump reads client messages until the socket dies, then runs teardown.
// It is the single owner of session cleanup.
func (s *Session) readPump() {
	defer s.teardown()

	s.conn.SetReadLimit(s.svc.config.MaxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(s.svc.config.ReadTimeout))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(s.svc.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Debug().Err(err).Msg("websocket read error")
			}
			return
		}
		s.handleMessage(message)
	}
}

// writePump owns all socket writes: queued frames, pings, and the closing
// handshake once the session is done.
func (s *Session) writePump() {
	ticker := time.NewTicker(s.svc.config.PingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case data := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(s.svc.config.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(s.svc.config.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-s.done:
			// Flush anything already queued, then close cleanly.
			for {
				select {
				case data := <-s.send:
					s.conn.SetWriteDeadline(time.Now().Add(s.svc.config.WriteTimeout))
					if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
						return
					}
				default:
					s.conn.SetWriteDeadline(time.Now().Add(s.svc.config.WriteTimeout))
					s.conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}
		}
	}
}

// eventLoop handles events pushed through the group layer.
func (s *Session) eventLoop() {
	for {
		select {
		case <-s.done:
			return
		case event := <-s.events:
			s.handleEvent(event)
		}
	}
}

// teardown releases everything the session holds. Runs exactly once, on the
// read pump's exit path.
func (s *Session) teardown() {
	s.close()
	s.cancelAuthTimeout()

	s.mu.Lock()
	client := s.client
	pairingGroup := s.pairingGroup
	activeGroup := s.activeGroup
	s.pairingGroup = ""
	s.activeGroup = ""
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.svc.config.OpTimeout)
	defer cancel()

	if pairingGroup != "" {
		if err := s.svc.layer.Leave(ctx, pairingGroup, s); err != nil {
			s.logger.Debug().Err(err).Str("group", pairingGroup).Msg("failed to leave pairing group")
		}
	}
	if activeGroup != "" {
		if err := s.svc.layer.Leave(ctx, activeGroup, s); err != nil {
			s.logger.Debug().Err(err).Str("group", activeGroup).Msg("failed to leave active group")
		}

		// Best-effort connectivity cleanup. The record may have been
		// deleted, or a superseding session may already have flipped the
		// flag back on; either way this write is advisory.
		if client != nil {
			if err := s.svc.store.SetPrintClientConnected(ctx, client.ID, false); err != nil {
				s.logger.Debug().Err(err).Str("client_id", client.ID.String()).Msg("failed to clear connected flag")
			}
		}
	}

	s.svc.removeSession(s)

	if client != nil {
		s.logger.Info().Str("client_id", client.ID.String()).Str("client_name", client.Name).Msg("print client disconnected")
	} else {
		s.logger.Debug().Msg("print client disconnected")
	}
}

// enqueue marshals and queues an outbound frame. Frames are dropped once
// the session is closing or when the client cannot keep up.
func (s *Session) enqueue(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to marshal outbound message")
		return
	}
	s.enqueueRaw(data)
}

func (s *Session) enqueueRaw(data []byte) {
	select {
	case <-s.done:
	case s.send <- data:
	default:
		s.logger.Warn().Msg("session send buffer full, dropping frame")
	}
}

func (s *Session) sendError(code, message string) {
	s.enqueue(ErrorMessage{Type: MessageTypeError, Code: code, Message: message})
}

// sendAuthFailure reports a failed authentication and closes the
// connection. Authentication failures never leave the socket open.
func (s *Session) sendAuthFailure(message string) {
	s.svc.recordAuth("failure")
	s.enqueue(AuthResultMessage{Type: MessageTypeAuthResult, Success: false, Message: message})
	s.close()
}

// handleMessage dispatches one inbound frame by type.
func (s *Session) handleMessage(data []byte) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		s.sendError(ErrorCodeInvalidMessage, "malformed JSON")
		return
	}

	switch envelope.Type {
	case MessageTypePairingRequest:
		var msg PairingRequestMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendError(ErrorCodeInvalidMessage, "malformed pairing_request")
			return
		}
		s.handlePairingRequest(msg)

	case MessageTypeAuthenticate:
		var msg AuthenticateMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendError(ErrorCodeInvalidMessage, "malformed authenticate")
			return
		}
		s.handleAuthenticate(msg)

	case MessageTypeJobStatus:
		var msg JobStatusMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendError(ErrorCodeInvalidMessage, "malformed job_status")
			return
		}
		s.handleJobStatus(msg)

	default:
		s.sendError(ErrorCodeInvalidMessage, fmt.Sprintf("unknown message type %q", envelope.Type))
	}
}

// handlePairingRequest registers the station for operator approval and joins
// its pairing group. The auth timeout is disarmed: approval can take
// arbitrarily long.
func (s *Session) handlePairingRequest(msg PairingRequestMessage) {
	if !s.svc.supportedVersion(msg.ProtocolVersion) {
		s.sendError(ErrorCodeVersionMismatch, fmt.Sprintf("unsupported protocol version %q", msg.ProtocolVersion))
		return
	}
	if msg.ClientName == "" {
		s.sendError(ErrorCodeInvalidMessage, "client_name is required")
		return
	}

	ctx, cancel := s.opCtx()
	defer cancel()

	// Reuse an existing pending record for this name so repeated pairing
	// attempts do not pile up duplicates in the approval queue.
	client, err := s.svc.store.GetPendingPrintClientByName(ctx, msg.ClientName)
	if errors.Is(err, db.ErrNotFound) {
		placeholder, perr := auth.PlaceholderTokenHash()
		if perr != nil {
			s.logger.Error().Err(perr).Msg("failed to generate placeholder token hash")
			s.sendError(ErrorCodeInvalidMessage, "pairing failed")
			return
		}
		client = models.NewPrintClient(msg.ClientName, placeholder)
		client.ProtocolVersion = msg.ProtocolVersion
		if cerr := s.svc.store.CreatePrintClient(ctx, client); cerr != nil {
			s.logger.Error().Err(cerr).Str("client_name", msg.ClientName).Msg("failed to create print client")
			s.sendError(ErrorCodeInvalidMessage, "pairing failed")
			return
		}
	} else if err != nil {
		s.logger.Error().Err(err).Str("client_name", msg.ClientName).Msg("failed to look up pending print client")
		s.sendError(ErrorCodeInvalidMessage, "pairing failed")
		return
	}

	group := PairingGroup(client.ID)
	if err := s.svc.layer.Join(ctx, group, s); err != nil {
		s.logger.Error().Err(err).Str("group", group).Msg("failed to join pairing group")
		s.sendError(ErrorCodeInvalidMessage, "pairing failed")
		return
	}

	s.cancelAuthTimeout()

	s.mu.Lock()
	s.state = StatePairing
	s.client = client
	s.pairingGroup = group
	s.mu.Unlock()

	s.enqueue(PairingPendingMessage{
		Type:     MessageTypePairingPending,
		ClientID: client.ID.String(),
		Message:  "Pairing request received. Awaiting operator approval.",
	})
	s.svc.recordPairing("requested")

	s.logger.Info().
		Str("client_id", client.ID.String()).
		Str("client_name", client.Name).
		Msg("pairing request pending approval")
}

// handleAuthenticate validates the presented token, displaces any existing
// session for the same client, rotates the token, and joins the client's
// active-connection group. Token rotation and the group join both happen
// before auth_result is emitted.
func (s *Session) handleAuthenticate(msg AuthenticateMessage) {
	if !s.svc.supportedVersion(msg.ProtocolVersion) {
		s.sendError(ErrorCodeVersionMismatch, fmt.Sprintf("unsupported protocol version %q", msg.ProtocolVersion))
		return
	}
	if msg.Token == "" {
		s.sendAuthFailure("Token is required")
		return
	}
	if !auth.IsValidTokenFormat(msg.Token) {
		s.sendAuthFailure("Invalid token")
		return
	}

	ctx, cancel := s.opCtx()
	defer cancel()

	client, err := s.svc.store.GetPrintClientByTokenHash(ctx, auth.HashToken(msg.Token))
	if errors.Is(err, db.ErrNotFound) {
		s.sendAuthFailure("Invalid token")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to look up print client by token hash")
		s.sendAuthFailure("Authentication failed")
		return
	}

	if !client.CanAuthenticate() {
		s.logger.Info().
			Str("client_id", client.ID.String()).
			Str("status", string(client.Status)).
			Bool("is_active", client.IsActive).
			Msg("rejected authentication for unapproved or inactive client")
		s.sendAuthFailure("Client not approved or inactive")
		return
	}

	activeGroup := ActiveGroup(client.ID)

	// Single-connection enforcement: displace any session that already
	// holds this client's active group. Fire-and-forget; the old session
	// closes itself whenever it processes the event, and its cleanup may
	// race ours. is_connected is eventually consistent by design.
	if client.IsConnected {
		event, eerr := pubsub.NewEvent(pubsub.EventForceDisconnect, nil)
		if eerr == nil {
			if serr := s.svc.layer.Send(ctx, activeGroup, event); serr != nil {
				s.logger.Warn().Err(serr).Str("client_id", client.ID.String()).Msg("failed to publish force disconnect")
			}
		}
		s.logger.Info().Str("client_id", client.ID.String()).Msg("displacing existing connection")
	}

	s.cancelAuthTimeout()

	newToken, err := auth.GenerateToken()
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to generate rotation token")
		s.sendAuthFailure("Authentication failed")
		return
	}

	if drift := printerDrift(client.Printers, msg.Printers); drift != "" {
		s.logger.Info().
			Str("client_id", client.ID.String()).
			Str("drift", drift).
			Msg("printer inventory changed since last authentication")
	}

	if err := s.svc.store.RotatePrintClientAuth(ctx, client.ID, auth.HashToken(newToken), msg.Printers, msg.ProtocolVersion, msg.ClientName); err != nil {
		s.logger.Error().Err(err).Str("client_id", client.ID.String()).Msg("failed to rotate client credentials")
		s.sendAuthFailure("Authentication failed")
		return
	}

	if err := s.svc.layer.Join(ctx, activeGroup, s); err != nil {
		s.logger.Error().Err(err).Str("group", activeGroup).Msg("failed to join active group")
		s.sendAuthFailure("Authentication failed")
		return
	}

	client.IsConnected = true
	client.Printers = msg.Printers
	client.ProtocolVersion = msg.ProtocolVersion
	if msg.ClientName != "" {
		client.Name = msg.ClientName
	}

	s.mu.Lock()
	s.state = StateAuthenticated
	s.client = client
	s.activeGroup = activeGroup
	s.mu.Unlock()

	s.enqueue(AuthResultMessage{
		Type:       MessageTypeAuthResult,
		Success:    true,
		ServerName: s.svc.config.ServerName,
		NewToken:   newToken,
	})
	s.svc.recordAuth("success")

	s.logger.Info().
		Str("client_id", client.ID.String()).
		Str("client_name", client.Name).
		Int("printers", len(msg.Printers)).
		Msg("print client authenticated")
}

// handleJobStatus applies a client-reported job transition.
func (s *Session) handleJobStatus(msg JobStatusMessage) {
	s.mu.Lock()
	authenticated := s.state == StateAuthenticated
	client := s.client
	s.mu.Unlock()

	if !authenticated {
		s.sendError(ErrorCodeInvalidMessage, "job_status requires authentication")
		return
	}

	jobID, err := uuid.Parse(msg.JobID)
	if err != nil {
		s.sendError(ErrorCodeInvalidMessage, "invalid job_id")
		return
	}

	var target models.PrintRequestStatus
	switch msg.Status {
	case JobStatusAcked:
		target = models.PrintRequestStatusAcked
	case JobStatusCompleted:
		target = models.PrintRequestStatusCompleted
	case JobStatusFailed:
		target = models.PrintRequestStatusFailed
	default:
		s.sendError(ErrorCodeInvalidMessage, fmt.Sprintf("unknown job status %q", msg.Status))
		return
	}

	ctx, cancel := s.opCtx()
	defer cancel()

	req, err := s.svc.store.GetPrintRequestByJobID(ctx, jobID)
	if errors.Is(err, db.ErrNotFound) {
		s.sendError(ErrorCodeInvalidMessage, "unknown job")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", msg.JobID).Msg("failed to load print request")
		return
	}

	if req.PrintClientID == nil || *req.PrintClientID != client.ID {
		s.sendError(ErrorCodeInvalidMessage, "job does not belong to this client")
		return
	}

	if err := req.TransitionTo(target, msg.Message); err != nil {
		s.sendError(ErrorCodeInvalidMessage, err.Error())
		return
	}
	if err := s.svc.store.UpdatePrintRequestStatus(ctx, req); err != nil {
		s.logger.Error().Err(err).Str("job_id", msg.JobID).Msg("failed to persist job status")
		return
	}

	if target == models.PrintRequestStatusCompleted && req.SentAt != nil && req.CompletedAt != nil {
		s.svc.observeJobDuration(string(req.LabelType), req.CompletedAt.Sub(*req.SentAt).Seconds())
	}

	s.logger.Info().
		Str("job_id", msg.JobID).
		Str("status", string(target)).
		Str("client_id", client.ID.String()).
		Msg("job status updated")
}

// handleEvent processes one event delivered through the group layer.
func (s *Session) handleEvent(event pubsub.Event) {
	switch event.Type {
	case pubsub.EventPairingApproved:
		s.handlePairingApproved(event)
	case pubsub.EventPairingDenied:
		s.handlePairingDenied()
	case pubsub.EventForceDisconnect:
		s.handleForceDisconnect()
	case pubsub.EventPrintJob:
		s.handlePrintJob(event)
	default:
		s.logger.Debug().Str("event_type", event.Type).Msg("ignoring unknown group event")
	}
}

// handlePairingApproved issues the first real token for an approved client.
// The raw token crosses the wire exactly once, here.
func (s *Session) handlePairingApproved(event pubsub.Event) {
	s.mu.Lock()
	client := s.client
	pairingGroup := s.pairingGroup
	s.mu.Unlock()

	if client == nil || pairingGroup == "" {
		return
	}

	var decision pubsub.PairingDecision
	if err := json.Unmarshal(event.Payload, &decision); err != nil {
		s.logger.Error().Err(err).Msg("malformed pairing decision payload")
		return
	}
	if decision.PrintClientID != client.ID.String() {
		return
	}

	token, err := auth.GenerateToken()
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to generate pairing token")
		s.close()
		return
	}

	ctx, cancel := s.opCtx()
	defer cancel()

	if err := s.svc.store.UpdatePrintClientTokenHash(ctx, client.ID, auth.HashToken(token)); err != nil {
		s.logger.Error().Err(err).Str("client_id", client.ID.String()).Msg("failed to persist pairing token")
		s.close()
		return
	}

	s.enqueue(PairingApprovedMessage{
		Type:       MessageTypePairingApproved,
		Token:      token,
		ServerName: s.svc.config.ServerName,
	})

	s.leavePairingGroup(ctx)

	s.logger.Info().
		Str("client_id", client.ID.String()).
		Str("client_name", client.Name).
		Msg("pairing approved, token issued")
}

// handlePairingDenied notifies the station and leaves the pairing group.
// The connection stays open; the station decides what to do next.
func (s *Session) handlePairingDenied() {
	s.mu.Lock()
	client := s.client
	pairingGroup := s.pairingGroup
	s.mu.Unlock()

	if client == nil || pairingGroup == "" {
		return
	}

	s.enqueue(PairingDeniedMessage{Type: MessageTypePairingDenied})

	ctx, cancel := s.opCtx()
	defer cancel()
	s.leavePairingGroup(ctx)

	s.logger.Info().Str("client_id", client.ID.String()).Msg("pairing denied")
}

// handleForceDisconnect closes the session: a newer connection for the same
// client has taken over.
func (s *Session) handleForceDisconnect() {
	s.mu.Lock()
	authenticated := s.state == StateAuthenticated
	s.mu.Unlock()

	if !authenticated {
		return
	}

	s.logger.Info().Msg("closing connection: superseded by a new session")
	s.close()
}

// handlePrintJob forwards a dispatched job payload to the station verbatim.
func (s *Session) handlePrintJob(event pubsub.Event) {
	s.mu.Lock()
	authenticated := s.state == StateAuthenticated
	s.mu.Unlock()

	if !authenticated {
		return
	}

	s.enqueueRaw(event.Payload)
}

func (s *Session) leavePairingGroup(ctx context.Context) {
	s.mu.Lock()
	group := s.pairingGroup
	s.pairingGroup = ""
	s.mu.Unlock()

	if group == "" {
		return
	}
	if err := s.svc.layer.Leave(ctx, group, s); err != nil {
		s.logger.Debug().Err(err).Str("group", group).Msg("failed to leave pairing group")
	}
}
