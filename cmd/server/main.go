// Package main is the entry point for qfit, a self-hosted quantum
// least-squares laboratory. Datasets of sample points are fitted with small
// polynomial models by solving the least-squares normal equations on a
// simulated quantum computer, with histogram visualization of the measured
// solution register.
//
// The application follows clean architecture principles:
// - Domain layer is pure (no infrastructure dependencies)
// - Dependency injection via DI container
// - Repository pattern for data access
// - Service layer for business logic
// - HTTP handlers for API endpoints
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/qfitlab/qfit/internal/config"
	"github.com/qfitlab/qfit/internal/di"
	"github.com/qfitlab/qfit/internal/server"
	"github.com/qfitlab/qfit/pkg/logger"
)

// main orchestrates the startup sequence:
// 1. Load configuration from environment variables
// 2. Initialize logging
// 3. Wire all dependencies via the DI container (databases, repositories,
//    quantum backends, services, work processor, maintenance jobs)
// 4. Overlay configuration with settings-database overrides
// 5. Start the HTTP server
// 6. Start the work processor, worker pool and cron scheduler
// 7. Wait for a shutdown signal and stop everything in reverse order
//
// State lives in a 4-database architecture:
// - config.db: settings, datasets, dataset points
// - results.db: experiments and immutable run records
// - cache.db: rendered histogram/chart payloads
// - history.db: append-only shot archive and job history
func main() {
	// Load configuration first to get log level
	cfg, err := config.Load()
	if err != nil {
		// Use fallback logger if config fails
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting qfit")

	// Wire all dependencies: databases, repositories, backends, services,
	// the work processor and the maintenance queue.
	container, cron, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	// Settings-database values override the environment for runtime
	// tunables (shots, backend, qubit ceilings, retention).
	if err := cfg.UpdateFromSettings(container.SettingsRepo); err != nil {
		log.Warn().Err(err).Msg("Failed to update config from settings DB, using environment values")
	}

	srv := server.New(server.Config{
		Port:      cfg.Port,
		Log:       log,
		Config:    cfg,
		DevMode:   cfg.DevMode,
		Container: container,
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Background systems: the event-driven work processor runs queued
	// experiments, the worker pool drains the maintenance queue, and cron
	// feeds the queue on its schedules.
	go container.WorkProcessor.Run()
	log.Info().Msg("Work processor started")

	container.WorkerPool.Start()
	log.Info().Msg("Maintenance worker pool started")

	cron.Start()
	log.Info().Msg("Scheduler started")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	// Stop intake first (cron, then HTTP), then drain the workers, then
	// the processor; databases close last via the deferred container.
	cron.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}

	container.WorkerPool.Stop()
	container.WorkProcessor.Stop()

	if container.RemoteBackend != nil {
		if err := container.RemoteBackend.Stop(); err != nil {
			log.Warn().Err(err).Msg("Remote backend stop failed")
		}
	}

	log.Info().Msg("Shutdown complete")
}
