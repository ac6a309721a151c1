// Package di provides dependency injection for maintenance jobs.
package di

import (
	"fmt"
	"time"

	"github.com/qfitlab/qfit/internal/config"
	"github.com/qfitlab/qfit/internal/modules/histogram"
	"github.com/qfitlab/qfit/internal/queue"
	"github.com/qfitlab/qfit/internal/scheduler"
	"github.com/rs/zerolog"
)

// queueWorkers is the worker pool size. Maintenance jobs are I/O-bound
// SQLite work; two workers keep a slow vacuum from starving backups.
const queueWorkers = 2

// RegisterJobs builds the maintenance queue, registers every job handler and
// wires the cron schedules. The worker pool and cron are created but not
// started; main starts them once the rest of the system is up.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*scheduler.Cron, error) {
	// Queue plumbing: in-memory priority queue fronted by the manager,
	// with one history row per attempt in history.db.
	manager := queue.NewManager(queue.NewMemoryQueue(), container.JobHistory)
	manager.SetLogger(log)
	container.QueueManager = manager

	registry := queue.NewRegistry()
	container.QueueRegistry = registry

	pool := queue.NewWorkerPool(manager, registry, queueWorkers)
	pool.SetLogger(log)
	pool.SetEventBus(container.EventBus)
	container.WorkerPool = pool

	// Job handlers. Each scheduler job owns one maintenance concern and
	// is adapted into a queue handler so every run gets worker dispatch,
	// retries and a history record.
	configConn := container.ConfigDB.Conn()
	resultsConn := container.ResultsDB.Conn()
	cacheConn := container.CacheDB.Conn()
	historyConn := container.HistoryDB

	jobs := []queue.RunnableJob{
		scheduler.NewCheckWALCheckpointsJob(configConn, resultsConn, cacheConn, historyConn),
		scheduler.NewVacuumDatabasesJob(configConn, cacheConn, historyConn),
		scheduler.NewIntegrityCheckJob(configConn, resultsConn, cacheConn, historyConn, container.EventBus),
		scheduler.NewHistoryCleanupJob(container.ArchiveRepo, container.JobHistory, cfg, log),
		histogram.NewCleanupJob(container.ChartCache, log),
		scheduler.NewExperimentSweepJob(container.WorkProcessor, log),
	}

	if container.BackupService != nil {
		jobs = append(jobs,
			scheduler.NewBackupJob(scheduler.BackupJobConfig{
				Service: container.BackupService,
				Log:     log,
			}),
			scheduler.NewBackupRotationJob(scheduler.BackupRotationJobConfig{
				Service: container.BackupService,
				Config:  cfg,
				Log:     log,
			}),
		)
	}

	for _, job := range jobs {
		registry.Register(queue.JobType(job.Name()), queue.JobToHandler(job))
	}

	// Event-driven enqueues: experiment creation, unhealthy databases,
	// completed backups.
	queue.RegisterListeners(container.EventBus, manager, registry, log)

	cron := scheduler.New(manager, log)
	if err := addSchedules(cron, container.BackupService != nil); err != nil {
		return nil, err
	}

	log.Info().Int("jobs", len(jobs)).Msg("Maintenance jobs registered")
	return cron, nil
}

// addSchedules wires the recurring maintenance windows. Schedules use the
// six-field cron format (with seconds).
func addSchedules(cron *scheduler.Cron, backupsEnabled bool) error {
	schedules := []struct {
		spec        string
		jobType     queue.JobType
		priority    queue.Priority
		minInterval time.Duration
	}{
		// Hourly WAL checkpoint keeps the -wal files bounded.
		{"0 15 * * * *", queue.JobTypeWALCheckpoint, queue.PriorityLow, 50 * time.Minute},

		// Nightly maintenance window, staggered so jobs never overlap
		// on the same database.
		{"0 0 3 * * *", queue.JobTypeVacuumDatabases, queue.PriorityLow, 20 * time.Hour},
		{"0 30 3 * * *", queue.JobTypeIntegrityCheck, queue.PriorityLow, 20 * time.Hour},
		{"0 0 4 * * *", queue.JobTypeHistoryCleanup, queue.PriorityLow, 20 * time.Hour},

		// Chart payloads expire on their own TTL; the cleanup just
		// reclaims the rows a few times a day.
		{"0 45 */6 * * *", queue.JobTypeCacheCleanup, queue.PriorityLow, 5 * time.Hour},

		// Periodic sweep for pending work the event triggers missed
		// (restarts, expired caches).
		{"0 */5 * * * *", queue.JobTypeExperimentRun, queue.PriorityMedium, 4 * time.Minute},
	}

	if backupsEnabled {
		schedules = append(schedules, struct {
			spec        string
			jobType     queue.JobType
			priority    queue.Priority
			minInterval time.Duration
		}{"0 10 */6 * * *", queue.JobTypeS3Backup, queue.PriorityMedium, 5 * time.Hour})
	}

	for _, s := range schedules {
		if err := cron.AddEnqueue(s.spec, s.jobType, s.priority, s.minInterval); err != nil {
			return fmt.Errorf("failed to schedule %s: %w", s.jobType, err)
		}
	}
	return nil
}
