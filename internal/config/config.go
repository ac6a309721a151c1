// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/qfitlab/qfit/internal/modules/settings"
)

// Config holds application configuration
type Config struct {
	DataDir        string // Base directory for all databases (always absolute)
	Port           int
	DevMode        bool
	LogLevel       string
	MaxQubits      int    // Hard ceiling for circuit width (state vector is 2^n amplitudes)
	DefaultShots   int    // Shot count used when an experiment does not specify one
	DefaultBackend string // Backend name used when an experiment does not specify one
	SamplerSeed    int64  // 0 = time-derived seed

	// DefaultClockQubits sets the phase-estimation register width for
	// experiments that do not choose one. More clock qubits resolve a wider
	// eigenvalue range at the cost of circuit width.
	DefaultClockQubits int

	// HistoryRetentionDays bounds how long archived outcome rows are kept
	// in history.db before the cleanup job prunes them.
	HistoryRetentionDays int

	RemoteURL string // WebSocket URL of a remote simulator service (optional)
	Backup    *BackupConfig
}

// BackupConfig holds off-site backup configuration for S3-compatible storage
// (AWS S3, Cloudflare R2, MinIO). Disabled unless a bucket is configured.
type BackupConfig struct {
	Enabled         bool
	Endpoint        string // Custom endpoint URL; empty = AWS default resolution
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	MinKeep         int // Minimum number of backups retained by rotation
	RetentionDays   int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Determine data directory with fallback logic
	// 1. Check QFIT_DATA_DIR environment variable
	// 2. If not set, default to ./data
	// 3. Always resolve to absolute path
	// 4. Ensure directory exists
	dataDir := getEnv("QFIT_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:              absDataDir,
		Port:                 getEnvAsInt("QFIT_PORT", 8042),
		DevMode:              getEnvAsBool("DEV_MODE", false),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		MaxQubits:            getEnvAsInt("QFIT_MAX_QUBITS", 20),
		DefaultShots:         getEnvAsInt("QFIT_DEFAULT_SHOTS", 1024),
		DefaultBackend:       getEnv("QFIT_DEFAULT_BACKEND", "local"),
		SamplerSeed:          int64(getEnvAsInt("QFIT_SAMPLER_SEED", 0)),
		DefaultClockQubits:   getEnvAsInt("QFIT_DEFAULT_CLOCK_QUBITS", 3),
		HistoryRetentionDays: getEnvAsInt("QFIT_HISTORY_RETENTION_DAYS", 90),
		RemoteURL:            getEnv("QFIT_REMOTE_BACKEND_URL", ""),
		Backup:               loadBackupConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// UpdateFromSettings updates configuration from the settings database.
// This should be called after the config database is initialized.
// Settings DB values take precedence over environment variables.
func (c *Config) UpdateFromSettings(settingsRepo *settings.Repository) error {
	shots, err := settingsRepo.GetInt("default_shots")
	if err != nil {
		return fmt.Errorf("failed to get default_shots from settings: %w", err)
	}
	if shots != nil && *shots > 0 {
		c.DefaultShots = *shots
	}

	backend, err := settingsRepo.Get("default_backend")
	if err != nil {
		return fmt.Errorf("failed to get default_backend from settings: %w", err)
	}
	if backend != nil && *backend != "" {
		c.DefaultBackend = *backend
	}

	maxQubits, err := settingsRepo.GetInt("max_qubits")
	if err != nil {
		return fmt.Errorf("failed to get max_qubits from settings: %w", err)
	}
	if maxQubits != nil && *maxQubits > 0 {
		c.MaxQubits = *maxQubits
	}

	clockQubits, err := settingsRepo.GetInt("default_clock_qubits")
	if err != nil {
		return fmt.Errorf("failed to get default_clock_qubits from settings: %w", err)
	}
	if clockQubits != nil && *clockQubits > 0 {
		c.DefaultClockQubits = *clockQubits
	}

	retention, err := settingsRepo.GetInt("history_retention_days")
	if err != nil {
		return fmt.Errorf("failed to get history_retention_days from settings: %w", err)
	}
	if retention != nil && *retention > 0 {
		c.HistoryRetentionDays = *retention
	}

	return nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.MaxQubits < 2 || c.MaxQubits > 24 {
		return fmt.Errorf("QFIT_MAX_QUBITS must be between 2 and 24, got %d", c.MaxQubits)
	}
	if c.DefaultShots <= 0 {
		return fmt.Errorf("QFIT_DEFAULT_SHOTS must be positive, got %d", c.DefaultShots)
	}
	if c.DefaultClockQubits < 1 || c.DefaultClockQubits > 8 {
		return fmt.Errorf("QFIT_DEFAULT_CLOCK_QUBITS must be between 1 and 8, got %d", c.DefaultClockQubits)
	}
	if c.HistoryRetentionDays < 1 {
		return fmt.Errorf("QFIT_HISTORY_RETENTION_DAYS must be positive, got %d", c.HistoryRetentionDays)
	}
	if c.Backup.Enabled && c.Backup.Bucket == "" {
		return fmt.Errorf("QFIT_BACKUP_BUCKET required when backups are enabled")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// loadBackupConfig loads backup configuration; backups stay off until a
// bucket is configured.
func loadBackupConfig() *BackupConfig {
	bucket := getEnv("QFIT_BACKUP_BUCKET", "")
	return &BackupConfig{
		Enabled:         getEnvAsBool("QFIT_BACKUP_ENABLED", bucket != ""),
		Endpoint:        getEnv("QFIT_BACKUP_ENDPOINT", ""),
		Region:          getEnv("QFIT_BACKUP_REGION", "auto"),
		Bucket:          bucket,
		AccessKeyID:     getEnv("QFIT_BACKUP_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("QFIT_BACKUP_SECRET_ACCESS_KEY", ""),
		MinKeep:         getEnvAsInt("QFIT_BACKUP_MIN_KEEP", 3),
		RetentionDays:   getEnvAsInt("QFIT_BACKUP_RETENTION_DAYS", 30),
	}
}
