package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/realworldtech/props-print-service/internal/metrics"
)

// MetricsStore defines the interface for database-level metrics data.
type MetricsStore interface {
	Ping(ctx context.Context) error
	PoolStats() map[string]any
}

// MetricsHandler serves the Prometheus exposition endpoint.
type MetricsHandler struct {
	db        MetricsStore
	collector *metrics.Collector
	gatherer  prometheus.Gatherer
	logger    zerolog.Logger
}

// NewMetricsHandler creates a new MetricsHandler. The collector refreshes
// store-driven gauges before each scrape; gatherer renders everything
// registered with the process registry.
func NewMetricsHandler(db MetricsStore, collector *metrics.Collector, gatherer prometheus.Gatherer, logger zerolog.Logger) *MetricsHandler {
	return &MetricsHandler{
		db:        db,
		collector: collector,
		gatherer:  gatherer,
		logger:    logger.With().Str("component", "metrics_handler").Logger(),
	}
}

// RegisterPublicRoutes registers the metrics route; scrapers don't
// authenticate.
func (h *MetricsHandler) RegisterPublicRoutes(r *gin.Engine) {
	r.GET("/metrics", h.Metrics)
}

// Metrics returns metrics in Prometheus exposition format.
// GET /metrics
func (h *MetricsHandler) Metrics(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	var sb strings.Builder

	sb.WriteString("# HELP props_print_info Print service information\n")
	sb.WriteString("# TYPE props_print_info gauge\n")
	sb.WriteString("props_print_info{component=\"server\"} 1\n")
	sb.WriteString("\n")

	sb.WriteString("# HELP props_print_up Component health (1 = healthy, 0 = unhealthy)\n")
	sb.WriteString("# TYPE props_print_up gauge\n")

	dbHealthy := 1
	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			dbHealthy = 0
			h.logger.Warn().Err(err).Msg("database ping failed for metrics")
		}
	} else {
		dbHealthy = 0
	}
	sb.WriteString(fmt.Sprintf("props_print_up{component=\"database\"} %d\n", dbHealthy))
	sb.WriteString("\n")

	if h.db != nil {
		poolStats := h.db.PoolStats()

		sb.WriteString("# HELP props_print_db_connections_total Total number of connections in the pool\n")
		sb.WriteString("# TYPE props_print_db_connections_total gauge\n")
		if v, ok := poolStats["total_conns"].(int32); ok {
			sb.WriteString(fmt.Sprintf("props_print_db_connections_total %d\n", v))
		}
		sb.WriteString("\n")

		sb.WriteString("# HELP props_print_db_connections_acquired Number of currently acquired connections\n")
		sb.WriteString("# TYPE props_print_db_connections_acquired gauge\n")
		if v, ok := poolStats["acquired_conns"].(int32); ok {
			sb.WriteString(fmt.Sprintf("props_print_db_connections_acquired %d\n", v))
		}
		sb.WriteString("\n")

		sb.WriteString("# HELP props_print_db_connections_idle Number of idle connections\n")
		sb.WriteString("# TYPE props_print_db_connections_idle gauge\n")
		if v, ok := poolStats["idle_conns"].(int32); ok {
			sb.WriteString(fmt.Sprintf("props_print_db_connections_idle %d\n", v))
		}
		sb.WriteString("\n")

		sb.WriteString("# HELP props_print_db_connections_max Maximum number of connections in the pool\n")
		sb.WriteString("# TYPE props_print_db_connections_max gauge\n")
		if v, ok := poolStats["max_conns"].(int32); ok {
			sb.WriteString(fmt.Sprintf("props_print_db_connections_max %d\n", v))
		}
		sb.WriteString("\n")
	}

	if h.collector != nil {
		if err := h.collector.Refresh(ctx); err != nil {
			h.logger.Warn().Err(err).Msg("failed to refresh store metrics")
		}
	}

	if h.gatherer != nil {
		families, err := h.gatherer.Gather()
		if err != nil {
			h.logger.Warn().Err(err).Msg("failed to gather prometheus metrics")
		} else {
			sb.WriteString(metrics.FormatFamilies(families))
		}
	}

	c.Header("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	c.String(http.StatusOK, sb.String())
}
