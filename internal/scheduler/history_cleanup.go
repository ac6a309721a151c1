package scheduler

import (
	"fmt"

	"github.com/qfitlab/qfit/internal/config"
	"github.com/qfitlab/qfit/internal/modules/experiments"
	"github.com/qfitlab/qfit/internal/queue"
	"github.com/rs/zerolog"
)

// jobHistoryKeep is how many job history rows survive a cleanup pass.
const jobHistoryKeep = 500

// HistoryCleanupJob prunes history.db: archived measurement counts older
// than the configured retention, and job history beyond the newest rows.
type HistoryCleanupJob struct {
	JobBase
	archive    *experiments.ArchiveRepository
	jobHistory *queue.History
	cfg        *config.Config
	log        zerolog.Logger
}

// NewHistoryCleanupJob creates a new history cleanup job. Retention is read
// from the config at run time so settings changes apply without a restart.
func NewHistoryCleanupJob(
	archive *experiments.ArchiveRepository,
	jobHistory *queue.History,
	cfg *config.Config,
	log zerolog.Logger,
) *HistoryCleanupJob {
	return &HistoryCleanupJob{
		archive:    archive,
		jobHistory: jobHistory,
		cfg:        cfg,
		log:        log.With().Str("job", "history_cleanup").Logger(),
	}
}

// Name returns the job name
func (j *HistoryCleanupJob) Name() string {
	return "history_cleanup"
}

// Run executes the cleanup job
func (j *HistoryCleanupJob) Run() error {
	retentionDays := j.cfg.HistoryRetentionDays
	j.log.Info().Int("retention_days", retentionDays).Msg("Starting history cleanup")

	var archived int64
	if retentionDays < 1 {
		j.log.Info().Msg("Retention disabled, keeping all archived counts")
	} else {
		var err error
		archived, err = j.archive.PruneOlderThan(retentionDays)
		if err != nil {
			return fmt.Errorf("failed to prune measurement archive: %w", err)
		}
	}

	jobRows, err := j.jobHistory.Prune(jobHistoryKeep)
	if err != nil {
		return fmt.Errorf("failed to prune job history: %w", err)
	}

	j.log.Info().
		Int64("archived_counts_pruned", archived).
		Int64("job_history_pruned", jobRows).
		Msg("History cleanup completed")

	return nil
}
