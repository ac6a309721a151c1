package scheduler

import (
	"context"

	"github.com/qfitlab/qfit/internal/reliability"
	"github.com/rs/zerolog"
)

// BackupJobConfig holds dependencies for BackupJob
type BackupJobConfig struct {
	Log     zerolog.Logger
	Service *reliability.BackupService
}

// BackupJob creates a backup archive and uploads it to object storage.
// Registered only when a bucket is configured.
type BackupJob struct {
	JobBase
	service *reliability.BackupService
	log     zerolog.Logger
}

// NewBackupJob creates a new backup job
func NewBackupJob(cfg BackupJobConfig) *BackupJob {
	return &BackupJob{
		service: cfg.Service,
		log:     cfg.Log.With().Str("job", "s3_backup").Logger(),
	}
}

// Name returns the job name
func (j *BackupJob) Name() string {
	return "s3_backup"
}

// Run executes the backup job
func (j *BackupJob) Run() error {
	result, err := j.service.CreateAndUploadBackup(context.Background(), j.progressFunc())
	if err != nil {
		j.log.Error().Err(err).Msg("Backup failed")
		return err
	}

	j.log.Info().
		Str("archive", result.Archive).
		Int64("size_bytes", result.SizeBytes).
		Int("databases", len(result.Databases)).
		Msg("Backup uploaded")

	return nil
}

// progressFunc bridges the queue progress reporter, when the worker attached
// one, into the backup service's phase callbacks.
func (j *BackupJob) progressFunc() reliability.ProgressFunc {
	r := j.GetProgressReporter()
	if r == nil {
		return nil
	}

	reporter, ok := r.(interface {
		ReportWithPhase(current, total int, message, phase string, details map[string]interface{})
	})
	if !ok {
		return nil
	}

	return func(current, total int, message, phase string) {
		reporter.ReportWithPhase(current, total, message, phase, nil)
	}
}
