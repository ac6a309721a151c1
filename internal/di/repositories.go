// Package di provides dependency injection for repositories.
package di

import (
	"fmt"

	"github.com/qfitlab/qfit/internal/modules/datasets"
	"github.com/qfitlab/qfit/internal/modules/experiments"
	"github.com/qfitlab/qfit/internal/modules/histogram"
	"github.com/qfitlab/qfit/internal/modules/settings"
	"github.com/qfitlab/qfit/internal/queue"
	"github.com/rs/zerolog"
)

// settingsDefaults seeds first-boot rows for every recognized key that has a
// sensible static default. Values mirror the config package fallbacks.
var settingsDefaults = map[string]string{
	"default_shots":          "1024",
	"default_backend":        "local",
	"default_clock_qubits":   "3",
	"max_qubits":             "20",
	"history_retention_days": "90",
	"sampler_seed":           "0",
	"backup_enabled":         "false",
}

// InitializeRepositories creates all repositories. Each repository applies
// its own schema, so this is also where the database schemas materialize.
func InitializeRepositories(container *Container, log zerolog.Logger) error {
	settingsRepo, err := settings.NewRepository(container.ConfigDB.Conn(), log)
	if err != nil {
		return fmt.Errorf("failed to initialize settings repository: %w", err)
	}
	if err := settingsRepo.Seed(settingsDefaults); err != nil {
		return fmt.Errorf("failed to seed settings defaults: %w", err)
	}
	container.SettingsRepo = settingsRepo

	datasetRepo, err := datasets.NewRepository(container.ConfigDB.Conn(), log)
	if err != nil {
		return fmt.Errorf("failed to initialize dataset repository: %w", err)
	}
	// First boot gets the walkthrough datasets so the dashboard has
	// something to fit immediately.
	if err := datasetRepo.Seed(); err != nil {
		return fmt.Errorf("failed to seed demo datasets: %w", err)
	}
	container.DatasetRepo = datasetRepo

	experimentRepo, err := experiments.NewRepository(container.ResultsDB.Conn(), log)
	if err != nil {
		return fmt.Errorf("failed to initialize experiment repository: %w", err)
	}
	container.ExperimentRepo = experimentRepo

	archiveRepo, err := experiments.NewArchiveRepository(container.HistoryDB, log)
	if err != nil {
		return fmt.Errorf("failed to initialize archive repository: %w", err)
	}
	container.ArchiveRepo = archiveRepo

	chartCache, err := histogram.NewCacheRepository(container.CacheDB.Conn())
	if err != nil {
		return fmt.Errorf("failed to initialize chart cache: %w", err)
	}
	container.ChartCache = chartCache

	jobHistory, err := queue.NewHistory(container.HistoryDB)
	if err != nil {
		return fmt.Errorf("failed to initialize job history: %w", err)
	}
	container.JobHistory = jobHistory

	log.Info().Msg("Repositories initialized")
	return nil
}
