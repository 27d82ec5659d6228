package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// HealthStatus represents the health status of a component.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheckResult represents the result of a single component check.
type HealthCheckResult struct {
	Status   HealthStatus   `json:"status"`
	Duration string         `json:"duration,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// HealthResponse is the response for the health endpoint.
type HealthResponse struct {
	Status HealthStatus                  `json:"status"`
	Checks map[string]*HealthCheckResult `json:"checks,omitempty"`
}

// DatabaseHealthChecker defines the interface for database health checking.
type DatabaseHealthChecker interface {
	Ping(ctx context.Context) error
	PoolStats() map[string]any
}

// BrokerHealthChecker defines the interface for broker health checking. The
// in-process group layer has nothing to check; a nil checker reports the
// broker as not configured rather than unhealthy.
type BrokerHealthChecker interface {
	Ping(ctx context.Context) error
}

// SessionCounter reports how many print client sessions are live in this
// process.
type SessionCounter interface {
	SessionCount() int
}

// HealthHandler handles the liveness endpoint.
type HealthHandler struct {
	db       DatabaseHealthChecker
	broker   BrokerHealthChecker
	sessions SessionCounter
	logger   zerolog.Logger
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(db DatabaseHealthChecker, broker BrokerHealthChecker, sessions SessionCounter, logger zerolog.Logger) *HealthHandler {
	return &HealthHandler{
		db:       db,
		broker:   broker,
		sessions: sessions,
		logger:   logger.With().Str("component", "health_handler").Logger(),
	}
}

// RegisterPublicRoutes registers the health route; it requires no
// authentication.
func (h *HealthHandler) RegisterPublicRoutes(r *gin.Engine) {
	r.GET("/healthz", h.Check)
}

// Check reports overall service health: database reachability, broker
// reachability when one is configured, and the live session count.
// GET /healthz
func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	response := &HealthResponse{
		Status: HealthStatusHealthy,
		Checks: make(map[string]*HealthCheckResult),
	}

	dbResult := h.checkDatabase(ctx)
	response.Checks["database"] = dbResult

	brokerResult := h.checkBroker(ctx)
	response.Checks["broker"] = brokerResult

	if h.sessions != nil {
		response.Checks["sessions"] = &HealthCheckResult{
			Status:  HealthStatusHealthy,
			Details: map[string]any{"count": h.sessions.SessionCount()},
		}
	}

	if dbResult.Status == HealthStatusUnhealthy || brokerResult.Status == HealthStatusUnhealthy {
		response.Status = HealthStatusUnhealthy
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}

	c.JSON(http.StatusOK, response)
}

func (h *HealthHandler) checkDatabase(ctx context.Context) *HealthCheckResult {
	start := time.Now()
	result := &HealthCheckResult{
		Status: HealthStatusHealthy,
	}

	if h.db == nil {
		result.Status = HealthStatusUnhealthy
		result.Error = "database not configured"
		result.Duration = time.Since(start).String()
		return result
	}

	err := h.db.Ping(ctx)
	result.Duration = time.Since(start).String()

	if err != nil {
		result.Status = HealthStatusUnhealthy
		result.Error = "database ping failed"
		h.logger.Warn().Err(err).Msg("database health check failed")
		return result
	}

	result.Details = h.db.PoolStats()
	return result
}

func (h *HealthHandler) checkBroker(ctx context.Context) *HealthCheckResult {
	start := time.Now()
	result := &HealthCheckResult{
		Status: HealthStatusHealthy,
	}

	if h.broker == nil {
		// Single-process deployment on the in-memory layer.
		result.Details = map[string]any{"configured": false}
		result.Duration = time.Since(start).String()
		return result
	}

	err := h.broker.Ping(ctx)
	result.Duration = time.Since(start).String()

	if err != nil {
		result.Status = HealthStatusUnhealthy
		result.Error = "broker ping failed"
		h.logger.Warn().Err(err).Msg("broker health check failed")
		return result
	}

	result.Details = map[string]any{"configured": true}
	return result
}
