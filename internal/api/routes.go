// Package api provides the HTTP and WebSocket surface of the print service.
package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/realworldtech/props-print-service/internal/api/handlers"
	"github.com/realworldtech/props-print-service/internal/api/middleware"
	"github.com/realworldtech/props-print-service/internal/auth"
	"github.com/realworldtech/props-print-service/internal/config"
	"github.com/realworldtech/props-print-service/internal/db"
	"github.com/realworldtech/props-print-service/internal/metrics"
	"github.com/realworldtech/props-print-service/internal/printservice"
	"github.com/realworldtech/props-print-service/internal/pubsub"
)

// Config holds configuration for the API router.
type Config struct {
	// Environment gates the CORS policy: production refuses to start
	// without explicit origins.
	Environment config.Environment
	// AllowedOrigins for CORS.
	AllowedOrigins []string
	// RateLimitRequests is the number of requests allowed per period.
	RateLimitRequests int64
	// RateLimitPeriod is the rate limit window.
	RateLimitPeriod time.Duration
	// AdminToken guards /api/v1. Empty rejects every request.
	AdminToken string
	// Version information for the version endpoint.
	Version   string
	Commit    string
	BuildDate string
}

// DefaultConfig returns a Config with sensible defaults for development.
func DefaultConfig() Config {
	return Config{
		Environment:       config.EnvDevelopment,
		AllowedOrigins:    []string{},
		RateLimitRequests: 300,
		RateLimitPeriod:   time.Minute,
		Version:           "dev",
		Commit:            "unknown",
		BuildDate:         "unknown",
	}
}

// Deps carries the shared components the router wires into handlers.
type Deps struct {
	DB         *db.DB
	Layer      pubsub.Layer
	Broker     handlers.BrokerHealthChecker // nil when running the in-memory layer
	Sessions   *printservice.Service
	Dispatcher *printservice.Dispatcher
	Sweeper    handlers.StaleJobSweeper
	Collector  *metrics.Collector
	Gatherer   prometheus.Gatherer
	Metrics    *metrics.PrintMetrics
}

// Router wraps a Gin engine with configured middleware and routes.
type Router struct {
	Engine *gin.Engine
	logger zerolog.Logger
}

// NewRouter creates a new Router with the given dependencies.
func NewRouter(cfg Config, deps Deps, logger zerolog.Logger) (*Router, error) {
	r := &Router{
		Engine: gin.New(),
		logger: logger.With().Str("component", "router").Logger(),
	}

	// Global middleware
	r.Engine.Use(gin.Recovery())
	r.Engine.Use(middleware.RequestLogger(logger))
	r.Engine.Use(middleware.CORS(cfg.AllowedOrigins, cfg.Environment))

	rateLimiter, err := middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitPeriod)
	if err != nil {
		return nil, err
	}
	r.Engine.Use(rateLimiter)

	// Print stations connect here; everything after the handshake is the
	// session protocol, not HTTP.
	r.Engine.GET("/ws/print-service", func(c *gin.Context) {
		deps.Sessions.HandleWebSocket(c.Writer, c.Request)
	})

	// Public endpoints
	healthHandler := handlers.NewHealthHandler(deps.DB, deps.Broker, deps.Sessions, logger)
	healthHandler.RegisterPublicRoutes(r.Engine)

	metricsHandler := handlers.NewMetricsHandler(deps.DB, deps.Collector, deps.Gatherer, logger)
	metricsHandler.RegisterPublicRoutes(r.Engine)

	versionHandler := handlers.NewVersionHandler(cfg.Version, cfg.Commit, cfg.BuildDate)
	versionHandler.RegisterPublicRoutes(r.Engine)

	// Admin API (bearer token required)
	validator := auth.NewAdminTokenValidator(cfg.AdminToken)
	apiV1 := r.Engine.Group("/api/v1")
	apiV1.Use(middleware.AdminAuth(validator, logger))

	clientsHandler := handlers.NewPrintClientsHandler(deps.DB, deps.Layer, deps.Metrics, logger)
	clientsHandler.RegisterRoutes(apiV1)

	requestsHandler := handlers.NewPrintRequestsHandler(deps.DB, deps.Dispatcher, deps.Metrics, logger)
	requestsHandler.RegisterRoutes(apiV1)

	maintenanceHandler := handlers.NewMaintenanceHandler(deps.Sweeper, logger)
	maintenanceHandler.RegisterRoutes(apiV1)

	r.logger.Info().Msg("API router initialized")
	return r, nil
}
