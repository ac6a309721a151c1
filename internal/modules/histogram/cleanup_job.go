package histogram

import (
	"github.com/qfitlab/qfit/internal/scheduler/base"
	"github.com/rs/zerolog"
)

// CleanupJob removes expired chart payloads from cache.db.
// It runs under the cache_cleanup maintenance queue job.
type CleanupJob struct {
	base.JobBase
	repo *CacheRepository
	log  zerolog.Logger
}

// NewCleanupJob creates a new chart cache cleanup job.
func NewCleanupJob(repo *CacheRepository, log zerolog.Logger) *CleanupJob {
	return &CleanupJob{
		repo: repo,
		log:  log.With().Str("job", "cache_cleanup").Logger(),
	}
}

// Run deletes expired cache rows.
func (j *CleanupJob) Run() error {
	deleted, err := j.repo.DeleteExpired()
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to delete expired chart payloads")
		return err
	}

	if deleted > 0 {
		j.log.Info().
			Int64("deleted", deleted).
			Msg("Cleaned up expired chart payloads")
	}

	return nil
}

// Name returns the job name for scheduling and logging.
func (j *CleanupJob) Name() string {
	return "cache_cleanup"
}
