package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// StaleJobSweeper runs the stale print job sweep on demand.
type StaleJobSweeper interface {
	RunNow(ctx context.Context) (int64, error)
}

// MaintenanceHandler exposes maintenance operations.
type MaintenanceHandler struct {
	sweeper StaleJobSweeper
	logger  zerolog.Logger
}

// NewMaintenanceHandler creates a new MaintenanceHandler.
func NewMaintenanceHandler(sweeper StaleJobSweeper, logger zerolog.Logger) *MaintenanceHandler {
	return &MaintenanceHandler{
		sweeper: sweeper,
		logger:  logger.With().Str("component", "maintenance_handler").Logger(),
	}
}

// RegisterRoutes registers maintenance routes on the given router group.
func (h *MaintenanceHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/maintenance/sweep", h.Sweep)
}

// Sweep runs the stale job sweep immediately, outside its regular schedule,
// and reports how many jobs were failed.
// POST /api/v1/maintenance/sweep
func (h *MaintenanceHandler) Sweep(c *gin.Context) {
	swept, err := h.sweeper.RunNow(c.Request.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("manual sweep failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sweep failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"swept": swept})
}
