package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/realworldtech/props-print-service/internal/db"
	"github.com/realworldtech/props-print-service/internal/models"
	"github.com/realworldtech/props-print-service/internal/printservice"
	"github.com/realworldtech/props-print-service/internal/pubsub"
)

// PrintClientStore defines the persistence operations the print client
// endpoints need.
type PrintClientStore interface {
	ListPrintClients(ctx context.Context, status models.PrintClientStatus) ([]*models.PrintClient, error)
	GetPrintClient(ctx context.Context, id uuid.UUID) (*models.PrintClient, error)
	ApprovePrintClient(ctx context.Context, id uuid.UUID, approvedBy string) error
	DenyPrintClient(ctx context.Context, id uuid.UUID, deniedBy string) error
	SetPrintClientActive(ctx context.Context, id uuid.UUID, active bool) error
	DeletePrintClient(ctx context.Context, id uuid.UUID) error
}

// PairingRecorder counts operator pairing decisions. A nil recorder disables
// recording.
type PairingRecorder interface {
	RecordPairing(outcome string)
}

// PrintClientsHandler handles print client administration endpoints.
type PrintClientsHandler struct {
	store   PrintClientStore
	layer   pubsub.Layer
	metrics PairingRecorder
	logger  zerolog.Logger
}

// NewPrintClientsHandler creates a new PrintClientsHandler.
func NewPrintClientsHandler(store PrintClientStore, layer pubsub.Layer, metrics PairingRecorder, logger zerolog.Logger) *PrintClientsHandler {
	return &PrintClientsHandler{
		store:   store,
		layer:   layer,
		metrics: metrics,
		logger:  logger.With().Str("component", "print_clients_handler").Logger(),
	}
}

// RegisterRoutes registers print client routes on the given router group.
func (h *PrintClientsHandler) RegisterRoutes(r *gin.RouterGroup) {
	clients := r.Group("/print-clients")
	{
		clients.GET("", h.List)
		clients.GET("/:id", h.Get)
		clients.POST("/:id/approve", h.Approve)
		clients.POST("/:id/deny", h.Deny)
		clients.POST("/:id/activate", h.Activate)
		clients.POST("/:id/deactivate", h.Deactivate)
		clients.DELETE("/:id", h.Delete)
	}
}

// ApproveClientRequest is the request body for approving a pairing.
type ApproveClientRequest struct {
	ApprovedBy string `json:"approved_by" binding:"required,min=1,max=255"`
}

// DenyClientRequest is the request body for denying a pairing.
type DenyClientRequest struct {
	DeniedBy string `json:"denied_by" binding:"required,min=1,max=255"`
}

// List returns print clients, optionally filtered by status and connection
// state.
// GET /api/v1/print-clients?status=pending&connected=true
func (h *PrintClientsHandler) List(c *gin.Context) {
	var status models.PrintClientStatus
	switch s := c.Query("status"); s {
	case "":
	case "pending", "approved", "denied":
		status = models.PrintClientStatus(s)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status filter"})
		return
	}

	clients, err := h.store.ListPrintClients(c.Request.Context(), status)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list print clients")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list print clients"})
		return
	}

	if connectedParam := c.Query("connected"); connectedParam != "" {
		connected, err := strconv.ParseBool(connectedParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid connected filter"})
			return
		}
		filtered := make([]*models.PrintClient, 0, len(clients))
		for _, client := range clients {
			if client.IsConnected == connected {
				filtered = append(filtered, client)
			}
		}
		clients = filtered
	}

	if clients == nil {
		clients = []*models.PrintClient{}
	}
	c.JSON(http.StatusOK, gin.H{"clients": clients})
}

// Get returns a specific print client by ID.
// GET /api/v1/print-clients/:id
func (h *PrintClientsHandler) Get(c *gin.Context) {
	id, ok := h.clientID(c)
	if !ok {
		return
	}

	client, err := h.store.GetPrintClient(c.Request.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "print client not found"})
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("client_id", id.String()).Msg("failed to get print client")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get print client"})
		return
	}

	c.JSON(http.StatusOK, client)
}

// Approve moves a pending client to approved and notifies its waiting
// pairing session. The session issues the token; this endpoint only records
// the decision.
// POST /api/v1/print-clients/:id/approve
func (h *PrintClientsHandler) Approve(c *gin.Context) {
	id, ok := h.clientID(c)
	if !ok {
		return
	}

	var req ApproveClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	client, err := h.store.GetPrintClient(c.Request.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "print client not found"})
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("client_id", id.String()).Msg("failed to get print client")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get print client"})
		return
	}

	if client.Status != models.PrintClientStatusPending {
		c.JSON(http.StatusConflict, gin.H{"error": "print client is not pending approval"})
		return
	}

	if err := h.store.ApprovePrintClient(c.Request.Context(), id, req.ApprovedBy); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			// Another decision won the race since the read above.
			c.JSON(http.StatusConflict, gin.H{"error": "print client is not pending approval"})
			return
		}
		h.logger.Error().Err(err).Str("client_id", id.String()).Msg("failed to approve print client")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to approve print client"})
		return
	}

	h.publish(c.Request.Context(), printservice.PairingGroup(id), pubsub.EventPairingApproved,
		pubsub.PairingDecision{PrintClientID: id.String()})
	h.recordPairing("approved")

	h.logger.Info().
		Str("client_id", id.String()).
		Str("client_name", client.Name).
		Str("approved_by", req.ApprovedBy).
		Msg("print client approved")

	h.respondWithClient(c, id)
}

// Deny moves a pending client to denied and notifies its waiting pairing
// session.
// POST /api/v1/print-clients/:id/deny
func (h *PrintClientsHandler) Deny(c *gin.Context) {
	id, ok := h.clientID(c)
	if !ok {
		return
	}

	var req DenyClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	client, err := h.store.GetPrintClient(c.Request.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "print client not found"})
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("client_id", id.String()).Msg("failed to get print client")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get print client"})
		return
	}

	if client.Status != models.PrintClientStatusPending {
		c.JSON(http.StatusConflict, gin.H{"error": "print client is not pending approval"})
		return
	}

	if err := h.store.DenyPrintClient(c.Request.Context(), id, req.DeniedBy); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusConflict, gin.H{"error": "print client is not pending approval"})
			return
		}
		h.logger.Error().Err(err).Str("client_id", id.String()).Msg("failed to deny print client")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to deny print client"})
		return
	}

	h.publish(c.Request.Context(), printservice.PairingGroup(id), pubsub.EventPairingDenied, nil)
	h.recordPairing("denied")

	h.logger.Info().
		Str("client_id", id.String()).
		Str("client_name", client.Name).
		Str("denied_by", req.DeniedBy).
		Msg("print client denied")

	h.respondWithClient(c, id)
}

// Activate re-enables a deactivated client.
// POST /api/v1/print-clients/:id/activate
func (h *PrintClientsHandler) Activate(c *gin.Context) {
	h.setActive(c, true)
}

// Deactivate disables a client and drops its live session. The client record
// and its pairing status survive; an inactive client simply cannot
// authenticate until reactivated.
// POST /api/v1/print-clients/:id/deactivate
func (h *PrintClientsHandler) Deactivate(c *gin.Context) {
	h.setActive(c, false)
}

func (h *PrintClientsHandler) setActive(c *gin.Context, active bool) {
	id, ok := h.clientID(c)
	if !ok {
		return
	}

	if err := h.store.SetPrintClientActive(c.Request.Context(), id, active); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "print client not found"})
			return
		}
		h.logger.Error().Err(err).Str("client_id", id.String()).Msg("failed to update print client")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update print client"})
		return
	}

	if !active {
		// A deactivated client must not keep an open session.
		h.publish(c.Request.Context(), printservice.ActiveGroup(id), pubsub.EventForceDisconnect, nil)
	}

	h.logger.Info().Str("client_id", id.String()).Bool("is_active", active).Msg("print client active flag updated")

	h.respondWithClient(c, id)
}

// Delete removes a print client. Any live session is dropped.
// DELETE /api/v1/print-clients/:id
func (h *PrintClientsHandler) Delete(c *gin.Context) {
	id, ok := h.clientID(c)
	if !ok {
		return
	}

	if err := h.store.DeletePrintClient(c.Request.Context(), id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "print client not found"})
			return
		}
		h.logger.Error().Err(err).Str("client_id", id.String()).Msg("failed to delete print client")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete print client"})
		return
	}

	h.publish(c.Request.Context(), printservice.ActiveGroup(id), pubsub.EventForceDisconnect, nil)

	h.logger.Info().Str("client_id", id.String()).Msg("print client deleted")

	c.JSON(http.StatusOK, gin.H{"message": "print client deleted"})
}

func (h *PrintClientsHandler) clientID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid print client ID"})
		return uuid.Nil, false
	}
	return id, true
}

// publish sends a group event best-effort. A station that misses a pairing
// decision re-pairs; a missed force-disconnect resolves on its own when the
// stale session next touches the socket.
func (h *PrintClientsHandler) publish(ctx context.Context, group, eventType string, payload any) {
	event, err := pubsub.NewEvent(eventType, payload)
	if err != nil {
		h.logger.Error().Err(err).Str("event_type", eventType).Msg("failed to encode group event")
		return
	}
	if err := h.layer.Send(ctx, group, event); err != nil {
		h.logger.Warn().Err(err).Str("group", group).Str("event_type", eventType).Msg("failed to publish group event")
	}
}

func (h *PrintClientsHandler) recordPairing(outcome string) {
	if h.metrics != nil {
		h.metrics.RecordPairing(outcome)
	}
}

// respondWithClient returns the current state of the client after a
// mutation, falling back to a bare confirmation if the re-read fails.
func (h *PrintClientsHandler) respondWithClient(c *gin.Context, id uuid.UUID) {
	client, err := h.store.GetPrintClient(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"id": id})
		return
	}
	c.JSON(http.StatusOK, client)
}
