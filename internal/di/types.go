/**
 * Package di provides dependency injection type definitions.
 *
 * This package defines the Container type which holds all application dependencies.
 * The Container is the single source of truth for all service instances and is
 * passed to handlers for access to services.
 */
package di

import (
	"database/sql"

	"github.com/qfitlab/qfit/internal/backends"
	"github.com/qfitlab/qfit/internal/database"
	"github.com/qfitlab/qfit/internal/events"
	"github.com/qfitlab/qfit/internal/modules/datasets"
	"github.com/qfitlab/qfit/internal/modules/experiments"
	"github.com/qfitlab/qfit/internal/modules/histogram"
	"github.com/qfitlab/qfit/internal/modules/settings"
	"github.com/qfitlab/qfit/internal/quantum"
	"github.com/qfitlab/qfit/internal/queue"
	"github.com/qfitlab/qfit/internal/reliability"
	"github.com/qfitlab/qfit/internal/work"
)

/**
 * Container holds all dependencies for the application.
 *
 * This is the single source of truth for all service instances.
 * The container is created by Wire() and passed to handlers for access to services.
 *
 * Architecture:
 * - Databases: 4-database architecture (config, results, cache, history)
 * - Backends: quantum execution layer (local simulator, optional remote)
 * - Repositories: data access layer (settings, datasets, experiments, runs)
 * - Services: business logic layer (experiment pipeline, histograms, backups)
 * - Work Components: background processor with event-driven execution
 *
 * All dependencies are injected via constructor injection.
 */
type Container struct {
	// Databases (4-database architecture)
	// Each database uses SQLite with WAL mode and profile-specific PRAGMAs
	ConfigDB  *database.DB // Settings, datasets, dataset points
	ResultsDB *database.DB // Experiments and immutable run records
	CacheDB   *database.DB // Rendered histogram/chart payloads

	// HistoryDB is the append-only shot archive. It is opened with the
	// mattn/go-sqlite3 driver and used as a bare connection: the archive
	// and job history tables own their schemas and never share
	// transactions with the core databases.
	HistoryDB *sql.DB

	// Repositories - data access layer
	SettingsRepo   *settings.Repository
	DatasetRepo    *datasets.Repository
	ExperimentRepo *experiments.Repository
	ArchiveRepo    *experiments.ArchiveRepository
	ChartCache     *histogram.CacheRepository

	// Quantum execution
	Sampler         *quantum.Sampler
	BackendRegistry *backends.Registry
	LocalBackend    *backends.LocalBackend
	RemoteBackend   *backends.RemoteBackend // nil unless a remote URL is configured

	// Services - business logic layer
	EventBus          *events.Bus
	ChartService      *histogram.Service
	ExperimentService *experiments.Service
	BackupService     *reliability.BackupService // nil unless backups are configured

	// Maintenance queue
	QueueManager  *queue.Manager
	QueueRegistry *queue.Registry
	WorkerPool    *queue.WorkerPool
	JobHistory    *queue.History

	// Work Processor - event-driven background pipeline
	WorkRegistry  *work.Registry
	WorkProcessor *work.Processor
}

// Close closes every database the container opened. Safe to call on a
// partially initialized container.
func (c *Container) Close() {
	if c.ConfigDB != nil {
		_ = c.ConfigDB.Close()
	}
	if c.ResultsDB != nil {
		_ = c.ResultsDB.Close()
	}
	if c.CacheDB != nil {
		_ = c.CacheDB.Close()
	}
	if c.HistoryDB != nil {
		_ = c.HistoryDB.Close()
	}
}
