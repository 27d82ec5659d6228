// Package main is the entrypoint for the PROPS print service server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/realworldtech/props-print-service/internal/api"
	"github.com/realworldtech/props-print-service/internal/config"
	"github.com/realworldtech/props-print-service/internal/db"
	"github.com/realworldtech/props-print-service/internal/maintenance"
	"github.com/realworldtech/props-print-service/internal/metrics"
	"github.com/realworldtech/props-print-service/internal/printservice"
	"github.com/realworldtech/props-print-service/internal/pubsub"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("version", Version).Logger()
	if os.Getenv("PROPS_ENV") != string(config.EnvProduction) {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	cfg, err := config.LoadServerConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
		return 1
	}

	if level, perr := zerolog.ParseLevel(cfg.LogLevel); perr == nil {
		logger = logger.Level(level)
	}

	logger.Info().
		Str("version", Version).
		Str("commit", Commit).
		Str("build_date", BuildDate).
		Str("environment", string(cfg.Environment)).
		Msg("Starting print service server")

	// Connect to database
	database, err := db.New(ctx, db.DefaultConfig(cfg.DatabaseURL), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
		return 1
	}
	defer database.Close()

	// Run migrations
	if err := database.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to run database migrations")
		return 1
	}

	// Group layer: Redis when configured, in-process otherwise. The
	// in-process layer is only correct for a single server process.
	var layer pubsub.Layer
	var broker *pubsub.Redis
	if cfg.RedisURL != "" {
		redisLayer, rerr := pubsub.NewRedis(ctx, cfg.RedisURL, logger)
		if rerr != nil {
			logger.Fatal().Err(rerr).Msg("Failed to connect to Redis")
			return 1
		}
		defer redisLayer.Close()
		layer = redisLayer
		broker = redisLayer
		logger.Info().Msg("Using Redis group layer")
	} else {
		layer = pubsub.NewMemory()
		logger.Info().Msg("Using in-memory group layer (single process only)")
	}

	// Prometheus metrics
	registry := prometheus.NewRegistry()
	printMetrics, err := metrics.NewPrintMetrics(registry)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to register metrics")
		return 1
	}

	// Session service for print station websockets
	sessionCfg := printservice.DefaultConfig()
	sessionCfg.AuthTimeout = cfg.AuthTimeout
	sessionCfg.SupportedProtocolVersions = cfg.SupportedProtocolVersions
	sessionCfg.ServerName = cfg.SiteName
	sessions := printservice.NewService(database, layer, sessionCfg, logger)
	sessions.SetMetrics(printMetrics)

	// Job dispatcher
	dispatcher := printservice.NewDispatcher(database, layer, printservice.DispatcherConfig{
		SiteURL: cfg.SiteURL,
	}, logger)

	// Stale job sweeper
	sweeper := maintenance.NewSweeper(database, maintenance.SweeperConfig{
		Interval:   cfg.SweepInterval,
		JobTimeout: cfg.JobTimeout,
	}, logger)
	sweeper.SetRecorder(printMetrics)
	if err := sweeper.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start stale job sweeper")
		return 1
	}
	defer sweeper.Stop()

	collector := metrics.NewCollector(database, sessions, printMetrics, logger)

	// Build API router
	routerCfg := api.Config{
		Environment:       cfg.Environment,
		AllowedOrigins:    cfg.CORSOrigins,
		RateLimitRequests: int64(cfg.RateLimitRequests),
		RateLimitPeriod:   cfg.RateLimitPeriod,
		AdminToken:        cfg.AdminAPIToken,
		Version:           Version,
		Commit:            Commit,
		BuildDate:         BuildDate,
	}
	deps := api.Deps{
		DB:         database,
		Layer:      layer,
		Sessions:   sessions,
		Dispatcher: dispatcher,
		Sweeper:    sweeper,
		Collector:  collector,
		Gatherer:   registry,
		Metrics:    printMetrics,
	}
	if broker != nil {
		deps.Broker = broker
	}

	router, err := api.NewRouter(routerCfg, deps, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize router")
		return 1
	}

	listenAddr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	// Start server in background
	go func() {
		logger.Info().Str("addr", listenAddr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	logger.Info().Str("signal", sig.String()).Msg("Shutting down server")

	// Close station sessions first: Shutdown does not touch hijacked
	// connections, and a clean close frame tells stations to reconnect.
	sessions.CloseAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown error")
		return 1
	}

	logger.Info().Msg("Server stopped gracefully")
	return 0
}
