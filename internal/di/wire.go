// Package di provides dependency injection wiring and initialization.
package di

import (
	"fmt"

	"github.com/qfitlab/qfit/internal/config"
	"github.com/qfitlab/qfit/internal/scheduler"
	"github.com/rs/zerolog"
)

// Wire initializes all dependencies and returns a fully configured container
// plus the cron scheduler. This is the main entry point for dependency
// injection. Order of operations:
// 1. Initialize databases
// 2. Initialize repositories (schemas applied here)
// 3. Initialize services and quantum backends
// 4. Initialize the work processor
// 5. Register maintenance jobs and cron schedules
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, *scheduler.Cron, error) {
	container, err := InitializeDatabases(cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := InitializeRepositories(container, log); err != nil {
		container.Close()
		return nil, nil, fmt.Errorf("failed to initialize repositories: %w", err)
	}

	if err := InitializeServices(container, cfg, log); err != nil {
		container.Close()
		return nil, nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	InitializeWorkProcessor(container, cfg, log)

	cron, err := RegisterJobs(container, cfg, log)
	if err != nil {
		container.Close()
		return nil, nil, fmt.Errorf("failed to register jobs: %w", err)
	}

	log.Info().Msg("Dependency injection wiring completed successfully")

	return container, cron, nil
}
