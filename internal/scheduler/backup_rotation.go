package scheduler

import (
	"context"

	"github.com/qfitlab/qfit/internal/config"
	"github.com/qfitlab/qfit/internal/reliability"
	"github.com/rs/zerolog"
)

// BackupRotationJobConfig holds dependencies for BackupRotationJob
type BackupRotationJobConfig struct {
	Log     zerolog.Logger
	Service *reliability.BackupService
	Config  *config.Config
}

// BackupRotationJob deletes old backups from object storage. It is enqueued
// after each successful upload rather than on its own schedule.
type BackupRotationJob struct {
	JobBase
	service *reliability.BackupService
	cfg     *config.Config
	log     zerolog.Logger
}

// NewBackupRotationJob creates a new backup rotation job
func NewBackupRotationJob(cfg BackupRotationJobConfig) *BackupRotationJob {
	return &BackupRotationJob{
		service: cfg.Service,
		cfg:     cfg.Config,
		log:     cfg.Log.With().Str("job", "backup_rotation").Logger(),
	}
}

// Name returns the job name
func (j *BackupRotationJob) Name() string {
	return "backup_rotation"
}

// Run executes the rotation job
func (j *BackupRotationJob) Run() error {
	deleted, err := j.service.RotateOldBackups(context.Background(), j.cfg.Backup.RetentionDays)
	if err != nil {
		j.log.Error().Err(err).Msg("Backup rotation failed")
		return err
	}

	if deleted > 0 {
		j.log.Info().Int("deleted", deleted).Msg("Old backups rotated out")
	}

	return nil
}
