// Package di provides dependency injection for the work processor.
package di

import (
	"github.com/qfitlab/qfit/internal/config"
	"github.com/qfitlab/qfit/internal/work"
	"github.com/rs/zerolog"
)

// InitializeWorkProcessor builds the work registry, registers the experiment
// pipeline work types and creates the processor. Services must be
// initialized first.
//
// The processor is created here but not started; main starts it after the
// HTTP server is up so the first sweep cannot race repository creation.
func InitializeWorkProcessor(container *Container, cfg *config.Config, log zerolog.Logger) {
	registry := work.NewRegistry()

	work.RegisterExperimentWorkTypes(registry, &work.ExperimentDeps{
		Runner:   container.ExperimentService,
		Store:    container.ExperimentRepo,
		Datasets: container.DatasetRepo,
		Charts:   container.ChartService,
		Cache:    container.ChartCache,
		Log:      log,
	})

	processor := work.NewProcessor(registry, container.EventBus, log)

	// Experiment lifecycle events nudge the processor; the sweep job in
	// the scheduler covers restarts and cache expiry.
	work.RegisterTriggers(container.EventBus, processor)

	container.WorkRegistry = registry
	container.WorkProcessor = processor

	log.Info().Int("work_types", len(registry.ByPriority())).Msg("Work processor initialized")
}
