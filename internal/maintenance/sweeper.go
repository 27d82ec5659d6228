// Package maintenance runs the background upkeep jobs of the print service,
// chiefly the stale print job sweep.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// StaleJobMessage is recorded on every print request the sweep fails.
const StaleJobMessage = "Timed out waiting for printer response"

// SweepStore defines the interface for sweep data access.
type SweepStore interface {
	SweepStalePrintRequests(ctx context.Context, cutoff time.Time, errorMessage string) (int64, error)
}

// SweepRecorder counts swept jobs in the metrics registry. A nil recorder
// disables recording.
type SweepRecorder interface {
	AddSwept(count int64)
}

// SweeperConfig holds sweep timing.
type SweeperConfig struct {
	// Interval is how often the sweep runs.
	Interval time.Duration
	// JobTimeout is how long a job may sit in sent or acked before it is
	// declared stale.
	JobTimeout time.Duration
}

// DefaultSweeperConfig returns production sweep timing.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Interval:   time.Minute,
		JobTimeout: 5 * time.Minute,
	}
}

// Sweeper periodically fails print jobs that were handed to a client but
// never reported back. A job can strand in sent or acked when the client
// crashes mid-print or drops off the network after receipt; without the
// sweep those rows would look in-flight forever.
type Sweeper struct {
	store    SweepStore
	config   SweeperConfig
	cron     *cron.Cron
	logger   zerolog.Logger
	recorder SweepRecorder
	mu       sync.Mutex
	running  bool
}

// NewSweeper creates a stale print job sweeper.
func NewSweeper(store SweepStore, cfg SweeperConfig, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		store:  store,
		config: cfg,
		cron:   cron.New(),
		logger: logger.With().Str("component", "print_sweep").Logger(),
	}
}

// SetRecorder wires the swept-jobs counter. Call before Start.
func (s *Sweeper) SetRecorder(rec SweepRecorder) {
	s.recorder = rec
}

// Start begins the periodic sweep schedule.
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("sweeper already running")
	}

	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.config.Interval), s.runSweep)
	if err != nil {
		return err
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().
		Dur("interval", s.config.Interval).
		Dur("job_timeout", s.config.JobTimeout).
		Msg("stale job sweeper started")

	return nil
}

// Stop stops the sweeper gracefully. The returned context is done once any
// in-flight sweep has finished.
func (s *Sweeper) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}

	s.running = false
	s.logger.Info().Msg("stopping stale job sweeper")
	return s.cron.Stop()
}

func (s *Sweeper) runSweep() {
	if _, err := s.RunNow(context.Background()); err != nil {
		s.logger.Error().Err(err).Msg("stale job sweep failed")
	}
}

// RunNow sweeps immediately and reports how many jobs were failed. The
// sweep is idempotent: jobs already failed stay failed, so overlapping runs
// are harmless.
func (s *Sweeper) RunNow(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-s.config.JobTimeout)

	swept, err := s.store.SweepStalePrintRequests(ctx, cutoff, StaleJobMessage)
	if err != nil {
		return 0, fmt.Errorf("sweep stale print requests: %w", err)
	}

	if s.recorder != nil {
		s.recorder.AddSwept(swept)
	}

	if swept > 0 {
		s.logger.Warn().
			Int64("swept", swept).
			Time("cutoff", cutoff).
			Msg("failed stale print jobs")
	} else {
		s.logger.Debug().Time("cutoff", cutoff).Msg("no stale print jobs")
	}

	return swept, nil
}
