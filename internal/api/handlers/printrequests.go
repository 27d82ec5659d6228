package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/realworldtech/props-print-service/internal/db"
	"github.com/realworldtech/props-print-service/internal/models"
)

// PrintRequestStore defines the persistence operations the print request
// endpoints need.
type PrintRequestStore interface {
	GetPrintClient(ctx context.Context, id uuid.UUID) (*models.PrintClient, error)
	CreatePrintRequest(ctx context.Context, req *models.PrintRequest) error
	GetPrintRequest(ctx context.Context, id uuid.UUID) (*models.PrintRequest, error)
	ListPrintRequests(ctx context.Context, filter models.PrintRequestFilter) ([]*models.PrintRequest, error)
}

// JobDispatcher pushes a print request to its client's live session and
// reports whether the job was published.
type JobDispatcher interface {
	Dispatch(ctx context.Context, req *models.PrintRequest) bool
}

// DispatchRecorder counts dispatch outcomes. A nil recorder disables
// recording.
type DispatchRecorder interface {
	RecordDispatch(outcome string)
}

// PrintRequestsHandler handles print request submission and inspection.
type PrintRequestsHandler struct {
	store      PrintRequestStore
	dispatcher JobDispatcher
	metrics    DispatchRecorder
	logger     zerolog.Logger
}

// NewPrintRequestsHandler creates a new PrintRequestsHandler.
func NewPrintRequestsHandler(store PrintRequestStore, dispatcher JobDispatcher, metrics DispatchRecorder, logger zerolog.Logger) *PrintRequestsHandler {
	return &PrintRequestsHandler{
		store:      store,
		dispatcher: dispatcher,
		metrics:    metrics,
		logger:     logger.With().Str("component", "print_requests_handler").Logger(),
	}
}

// RegisterRoutes registers print request routes on the given router group.
func (h *PrintRequestsHandler) RegisterRoutes(r *gin.RouterGroup) {
	requests := r.Group("/print-requests")
	{
		requests.GET("", h.List)
		requests.POST("", h.Create)
		requests.GET("/:id", h.Get)
		requests.POST("/:id/dispatch", h.Dispatch)
	}
}

// SubmitPrintRequest is the request body for creating a print request.
type SubmitPrintRequest struct {
	PrintClientID uuid.UUID  `json:"print_client_id" binding:"required"`
	LabelType     string     `json:"label_type" binding:"required,oneof=asset location"`
	AssetID       *uuid.UUID `json:"asset_id"`
	LocationID    *uuid.UUID `json:"location_id"`
	PrinterID     string     `json:"printer_id" binding:"required,min=1,max=255"`
	Quantity      int        `json:"quantity" binding:"required,min=1,max=100"`
	RequestedBy   string     `json:"requested_by" binding:"max=255"`
}

// List returns print requests, newest first, with optional filters.
// GET /api/v1/print-requests?status=sent&client=<uuid>&label_type=asset&limit=50
func (h *PrintRequestsHandler) List(c *gin.Context) {
	filter := models.PrintRequestFilter{Limit: 100}

	switch s := c.Query("status"); s {
	case "":
	case "pending", "sent", "acked", "completed", "failed":
		status := models.PrintRequestStatus(s)
		filter.Status = &status
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status filter"})
		return
	}

	if clientParam := c.Query("client"); clientParam != "" {
		clientID, err := uuid.Parse(clientParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid client filter"})
			return
		}
		filter.PrintClientID = &clientID
	}

	switch lt := c.Query("label_type"); lt {
	case "":
	case "asset", "location":
		labelType := models.LabelType(lt)
		filter.LabelType = &labelType
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid label_type filter"})
		return
	}

	if limitParam := c.Query("limit"); limitParam != "" {
		limit, err := strconv.Atoi(limitParam)
		if err != nil || limit < 1 || limit > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		filter.Limit = limit
	}

	requests, err := h.store.ListPrintRequests(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list print requests")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list print requests"})
		return
	}

	if requests == nil {
		requests = []*models.PrintRequest{}
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests})
}

// Get returns a specific print request by ID.
// GET /api/v1/print-requests/:id
func (h *PrintRequestsHandler) Get(c *gin.Context) {
	id, ok := h.requestID(c)
	if !ok {
		return
	}

	req, err := h.store.GetPrintRequest(c.Request.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "print request not found"})
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("request_id", id.String()).Msg("failed to get print request")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get print request"})
		return
	}

	c.JSON(http.StatusOK, req)
}

// Create validates, persists and immediately dispatches a print request.
// Validation fails fast before anything is written: a request row is only
// created once the client is known to be approved, active, connected and
// holding the named printer.
// POST /api/v1/print-requests
func (h *PrintRequestsHandler) Create(c *gin.Context) {
	var body SubmitPrintRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	labelType := models.LabelType(body.LabelType)
	switch labelType {
	case models.LabelTypeAsset:
		if body.AssetID == nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "asset labels require asset_id"})
			return
		}
	case models.LabelTypeLocation:
		if body.LocationID == nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "location labels require location_id"})
			return
		}
	}

	client, err := h.store.GetPrintClient(c.Request.Context(), body.PrintClientID)
	if errors.Is(err, db.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "print client not found"})
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("client_id", body.PrintClientID.String()).Msg("failed to get print client")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get print client"})
		return
	}

	if client.Status != models.PrintClientStatusApproved {
		c.JSON(http.StatusConflict, gin.H{"error": "print client is not approved"})
		return
	}
	if !client.IsActive {
		c.JSON(http.StatusConflict, gin.H{"error": "print client is deactivated"})
		return
	}
	if !client.IsConnected {
		c.JSON(http.StatusConflict, gin.H{"error": "print client is not connected"})
		return
	}
	if !client.HasPrinter(body.PrinterID) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": fmt.Sprintf("printer '%s' is not declared by client '%s'", body.PrinterID, client.Name),
		})
		return
	}
	if labelType == models.LabelTypeLocation && !client.SupportsLocationLabels() {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": fmt.Sprintf("client '%s' does not support location labels (protocol version %s)", client.Name, client.ProtocolVersion),
		})
		return
	}

	req := models.NewPrintRequest(client.ID, labelType, body.PrinterID, body.Quantity)
	req.AssetID = body.AssetID
	req.LocationID = body.LocationID
	req.RequestedBy = body.RequestedBy

	if err := h.store.CreatePrintRequest(c.Request.Context(), req); err != nil {
		h.logger.Error().Err(err).Str("client_id", client.ID.String()).Msg("failed to create print request")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create print request"})
		return
	}

	dispatched := h.dispatcher.Dispatch(c.Request.Context(), req)
	h.recordDispatch(dispatched)

	h.logger.Info().
		Str("request_id", req.ID.String()).
		Str("job_id", req.JobID.String()).
		Str("client_id", client.ID.String()).
		Str("label_type", string(labelType)).
		Bool("dispatched", dispatched).
		Msg("print request created")

	c.JSON(http.StatusCreated, gin.H{"request": req, "dispatched": dispatched})
}

// Dispatch pushes a pending print request to its client. Requests that
// already left pending cannot be re-dispatched; completed and failed are
// terminal, and sent/acked jobs are owned by the client until the sweep
// times them out.
// POST /api/v1/print-requests/:id/dispatch
func (h *PrintRequestsHandler) Dispatch(c *gin.Context) {
	id, ok := h.requestID(c)
	if !ok {
		return
	}

	req, err := h.store.GetPrintRequest(c.Request.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "print request not found"})
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("request_id", id.String()).Msg("failed to get print request")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get print request"})
		return
	}

	if req.Status != models.PrintRequestStatusPending {
		c.JSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("print request is %s, only pending requests can be dispatched", req.Status)})
		return
	}

	dispatched := h.dispatcher.Dispatch(c.Request.Context(), req)
	h.recordDispatch(dispatched)

	h.logger.Info().
		Str("request_id", req.ID.String()).
		Str("job_id", req.JobID.String()).
		Bool("dispatched", dispatched).
		Msg("print request dispatched")

	c.JSON(http.StatusOK, gin.H{"request": req, "dispatched": dispatched})
}

func (h *PrintRequestsHandler) requestID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid print request ID"})
		return uuid.Nil, false
	}
	return id, true
}

func (h *PrintRequestsHandler) recordDispatch(dispatched bool) {
	if h.metrics == nil {
		return
	}
	if dispatched {
		h.metrics.RecordDispatch("dispatched")
	} else {
		h.metrics.RecordDispatch("failed")
	}
}
