package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/realworldtech/props-print-service/internal/models"
)

// Store defines the interface for metrics data access.
type Store interface {
	CountConnectedPrintClients(ctx context.Context) (int64, error)
	CountPrintRequestsByStatus(ctx context.Context) (map[models.PrintRequestStatus]int64, error)
}

// SessionCounter reports the number of live websocket sessions.
type SessionCounter interface {
	SessionCount() int
}

// Collector refreshes the state gauges from the store. Refreshes are cached
// so a scrape storm does not turn into a query storm.
type Collector struct {
	store    Store
	sessions SessionCounter
	metrics  *PrintMetrics
	logger   zerolog.Logger

	mu          sync.Mutex
	lastRefresh time.Time
	cacheExpiry time.Duration
}

// NewCollector creates a gauge collector.
func NewCollector(store Store, sessions SessionCounter, m *PrintMetrics, logger zerolog.Logger) *Collector {
	return &Collector{
		store:       store,
		sessions:    sessions,
		metrics:     m,
		logger:      logger.With().Str("component", "metrics_collector").Logger(),
		cacheExpiry: 15 * time.Second,
	}
}

// Refresh updates the session, client, and request gauges. Calls within the
// cache window are no-ops.
func (c *Collector) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if time.Since(c.lastRefresh) < c.cacheExpiry {
		return nil
	}

	if c.sessions != nil {
		c.metrics.SetSessionCount(float64(c.sessions.SessionCount()))
	}

	connected, err := c.store.CountConnectedPrintClients(ctx)
	if err != nil {
		return fmt.Errorf("count connected print clients: %w", err)
	}
	c.metrics.SetClientCount("connected", float64(connected))

	counts, err := c.store.CountPrintRequestsByStatus(ctx)
	if err != nil {
		return fmt.Errorf("count print requests: %w", err)
	}
	// Zero every known status so gauges for drained statuses fall back
	// instead of freezing at their last value.
	for _, status := range []models.PrintRequestStatus{
		models.PrintRequestStatusPending,
		models.PrintRequestStatusSent,
		models.PrintRequestStatusAcked,
		models.PrintRequestStatusCompleted,
		models.PrintRequestStatusFailed,
	} {
		c.metrics.SetRequestCount(string(status), float64(counts[status]))
	}

	c.lastRefresh = time.Now()
	return nil
}
