// Package di provides dependency injection for services.
package di

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/qfitlab/qfit/internal/backends"
	"github.com/qfitlab/qfit/internal/config"
	"github.com/qfitlab/qfit/internal/events"
	"github.com/qfitlab/qfit/internal/modules/experiments"
	"github.com/qfitlab/qfit/internal/modules/histogram"
	"github.com/qfitlab/qfit/internal/quantum"
	"github.com/qfitlab/qfit/internal/reliability"
	"github.com/rs/zerolog"
)

// InitializeServices creates the event bus, the quantum backends and the
// business services. Repositories must be initialized first.
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	container.EventBus = events.NewBus(log)

	// Shared sampler. A fixed seed makes local runs reproducible; seed 0
	// derives from the clock. Persisted settings override the environment
	// so an operator edit on the dashboard survives restarts.
	seed := cfg.SamplerSeed
	if stored, err := container.SettingsRepo.Get("sampler_seed"); err == nil && stored != nil {
		if parsed, perr := strconv.ParseInt(*stored, 10, 64); perr == nil && parsed != 0 {
			seed = parsed
		}
	}
	container.Sampler = quantum.NewSampler(seed)

	// Quantum backends. The local simulator is always available; the
	// remote backend joins the registry only when a URL is configured.
	registry := backends.NewRegistry(log)
	container.BackendRegistry = registry

	container.LocalBackend = backends.NewLocalBackend(cfg.MaxQubits, cfg.DefaultShots, container.Sampler, log)
	registry.Register(container.LocalBackend)

	if cfg.RemoteURL != "" {
		remote := backends.NewRemoteBackend(cfg.RemoteURL, cfg.MaxQubits, container.EventBus, log)
		registry.Register(remote)
		container.RemoteBackend = remote
		if err := remote.Start(); err != nil {
			// The reconnect loop keeps trying; a dead remote must not
			// block startup while the local backend works.
			log.Warn().Err(err).Str("url", cfg.RemoteURL).Msg("Remote backend not reachable, will keep retrying")
		}
	}

	container.ChartService = histogram.NewService(log)

	container.ExperimentService = experiments.NewService(
		container.ExperimentRepo,
		container.DatasetRepo,
		container.ArchiveRepo,
		container.BackendRegistry,
		container.EventBus,
		log,
	)

	backupsEnabled := cfg.Backup != nil && cfg.Backup.Enabled
	if stored, err := container.SettingsRepo.Get("backup_enabled"); err == nil && stored != nil {
		if parsed, perr := strconv.ParseBool(*stored); perr == nil {
			backupsEnabled = backupsEnabled || (parsed && cfg.Backup != nil && cfg.Backup.Bucket != "")
		}
	}
	if backupsEnabled {
		if err := initializeBackupService(container, cfg, log); err != nil {
			return err
		}
	} else {
		log.Info().Msg("Off-site backups disabled (no bucket configured)")
	}

	log.Info().
		Strs("backends", registry.List()).
		Bool("backups", container.BackupService != nil).
		Msg("Services initialized")

	return nil
}

// initializeBackupService connects the S3 client and wires the backup
// service over all four databases.
func initializeBackupService(container *Container, cfg *config.Config, log zerolog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s3Client, err := reliability.NewS3Client(ctx, cfg.Backup, log)
	if err != nil {
		return fmt.Errorf("failed to initialize S3 client: %w", err)
	}

	targets := []reliability.BackupTarget{
		{Name: "config", Conn: container.ConfigDB.Conn()},
		{Name: "results", Conn: container.ResultsDB.Conn()},
		{Name: "cache", Conn: container.CacheDB.Conn()},
		{Name: "history", Conn: container.HistoryDB},
	}

	container.BackupService = reliability.NewBackupService(
		s3Client,
		targets,
		cfg.DataDir,
		cfg.Backup.MinKeep,
		container.EventBus,
		log,
	)

	return nil
}
