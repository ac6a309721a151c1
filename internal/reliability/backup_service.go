package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/qfitlab/qfit/internal/events"
	"github.com/rs/zerolog"

	_ "modernc.org/sqlite" // Staged snapshots are verified through this driver
)

const (
	archivePrefix   = "qfit-backup-"
	archiveTimeFmt  = "2006-01-02-150405"
	metadataName    = "backup-metadata.json"
	minBackupsFloor = 3
)

// BackupTarget is one database to include in backups. Conn must be able to
// run VACUUM INTO, so it has to point at a file-backed database.
type BackupTarget struct {
	Name string
	Conn *sql.DB
}

// BackupMetadata describes the contents of one backup archive.
type BackupMetadata struct {
	Timestamp time.Time          `json:"timestamp"`
	Version   string             `json:"version"`
	Databases []DatabaseMetadata `json:"databases"`
}

// DatabaseMetadata describes a single database file in the archive.
type DatabaseMetadata struct {
	Name      string `json:"name"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// BackupInfo summarizes a backup stored in the bucket.
type BackupInfo struct {
	Filename  string    `json:"filename"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	AgeHours  int64     `json:"age_hours"`
}

// BackupResult is returned by CreateAndUploadBackup.
type BackupResult struct {
	Archive   string             `json:"archive"`
	SizeBytes int64              `json:"size_bytes"`
	Duration  time.Duration      `json:"-"`
	Databases []DatabaseMetadata `json:"databases"`
}

// ProgressFunc receives coarse progress while a backup runs. Phase is one of
// "staging", "archiving", "uploading".
type ProgressFunc func(current, total int, message, phase string)

// BackupService stages consistent snapshots of the application databases,
// bundles them into a tar.gz with a checksum manifest, and ships the
// archive to object storage.
type BackupService struct {
	storage ObjectStorage
	targets []BackupTarget
	dataDir string
	minKeep int
	bus     *events.Bus
	log     zerolog.Logger
}

// NewBackupService creates a backup service. minKeep below 3 is raised to 3
// so rotation can never delete the last usable backups.
func NewBackupService(
	storage ObjectStorage,
	targets []BackupTarget,
	dataDir string,
	minKeep int,
	bus *events.Bus,
	log zerolog.Logger,
) *BackupService {
	if minKeep < minBackupsFloor {
		minKeep = minBackupsFloor
	}
	return &BackupService{
		storage: storage,
		targets: targets,
		dataDir: dataDir,
		minKeep: minKeep,
		bus:     bus,
		log:     log.With().Str("service", "backup").Logger(),
	}
}

// CreateAndUploadBackup stages every target database, archives the snapshots
// and uploads the archive. progress may be nil.
func (s *BackupService) CreateAndUploadBackup(ctx context.Context, progress ProgressFunc) (*BackupResult, error) {
	s.log.Info().Msg("Starting backup")
	startTime := time.Now()

	stagingDir, err := os.MkdirTemp(s.dataDir, "backup-staging-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	// Staging steps plus archive plus upload.
	totalSteps := len(s.targets) + 2

	metadata := BackupMetadata{
		Timestamp: time.Now().UTC(),
		Version:   "1.0.0",
		Databases: make([]DatabaseMetadata, 0, len(s.targets)),
	}

	for i, target := range s.targets {
		s.report(progress, i+1, totalSteps, fmt.Sprintf("Staging %s.db", target.Name), "staging")
		s.log.Debug().Str("database", target.Name).Msg("Staging database snapshot")

		filename := target.Name + ".db"
		stagedPath := filepath.Join(stagingDir, filename)

		if err := s.stageDatabase(ctx, target, stagedPath); err != nil {
			return nil, fmt.Errorf("failed to stage %s: %w", target.Name, err)
		}

		info, err := os.Stat(stagedPath)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s snapshot: %w", target.Name, err)
		}

		checksum, err := checksumFile(stagedPath)
		if err != nil {
			return nil, fmt.Errorf("failed to checksum %s snapshot: %w", target.Name, err)
		}

		metadata.Databases = append(metadata.Databases, DatabaseMetadata{
			Name:      target.Name,
			Filename:  filename,
			SizeBytes: info.Size(),
			Checksum:  checksum,
		})
	}

	metadataPath := filepath.Join(stagingDir, metadataName)
	if err := writeMetadata(metadataPath, metadata); err != nil {
		return nil, fmt.Errorf("failed to write metadata: %w", err)
	}

	s.report(progress, len(s.targets)+1, totalSteps, "Creating archive", "archiving")

	archiveName := archivePrefix + time.Now().Format(archiveTimeFmt) + ".tar.gz"
	archivePath := filepath.Join(stagingDir, archiveName)

	var archiveMembers []string
	for _, dbMeta := range metadata.Databases {
		archiveMembers = append(archiveMembers, dbMeta.Filename)
	}
	archiveMembers = append(archiveMembers, metadataName)

	if err := createArchive(archivePath, stagingDir, archiveMembers); err != nil {
		return nil, fmt.Errorf("failed to create archive: %w", err)
	}

	archiveInfo, err := os.Stat(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat archive: %w", err)
	}

	s.report(progress, totalSteps, totalSteps, "Uploading "+archiveName, "uploading")

	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer archiveFile.Close()

	if err := s.storage.Upload(ctx, archiveName, archiveFile, archiveInfo.Size()); err != nil {
		return nil, fmt.Errorf("failed to upload archive: %w", err)
	}

	duration := time.Since(startTime)
	s.log.Info().
		Str("archive", archiveName).
		Int64("size_bytes", archiveInfo.Size()).
		Dur("duration_ms", duration).
		Msg("Backup completed")

	if s.bus != nil {
		s.bus.EmitData("reliability", &events.BackupCompletedData{
			Archive:         archiveName,
			SizeBytes:       archiveInfo.Size(),
			DurationSeconds: duration.Seconds(),
		})
	}

	return &BackupResult{
		Archive:   archiveName,
		SizeBytes: archiveInfo.Size(),
		Duration:  duration,
		Databases: metadata.Databases,
	}, nil
}

// stageDatabase writes a consistent snapshot of target to destPath and
// verifies it before it is allowed into the archive.
func (s *BackupService) stageDatabase(ctx context.Context, target BackupTarget, destPath string) error {
	// VACUUM INTO produces a compacted, transactionally consistent copy
	// without blocking writers.
	if _, err := target.Conn.ExecContext(ctx, "VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("vacuum into failed: %w", err)
	}

	snapshot, err := sql.Open("sqlite", destPath)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer snapshot.Close()

	var result string
	if err := snapshot.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("snapshot integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("snapshot integrity check returned: %s", result)
	}

	return nil
}

// ListBackups returns the backups in the bucket, newest first. Objects whose
// names do not parse as backup archives are skipped.
func (s *BackupService) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	objects, err := s.storage.List(ctx, archivePrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	backups := make([]BackupInfo, 0, len(objects))
	now := time.Now()

	for _, obj := range objects {
		if !strings.HasPrefix(obj.Key, archivePrefix) || !strings.HasSuffix(obj.Key, ".tar.gz") {
			continue
		}

		timestampStr := strings.TrimSuffix(strings.TrimPrefix(obj.Key, archivePrefix), ".tar.gz")
		timestamp, err := time.Parse(archiveTimeFmt, timestampStr)
		if err != nil {
			s.log.Warn().Str("filename", obj.Key).Msg("Failed to parse timestamp from backup name")
			continue
		}

		backups = append(backups, BackupInfo{
			Filename:  obj.Key,
			Timestamp: timestamp,
			SizeBytes: obj.SizeBytes,
			AgeHours:  int64(now.Sub(timestamp).Hours()),
		})
	}

	// Newest first.
	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})

	return backups, nil
}

// RotateOldBackups deletes backups older than retentionDays, always keeping
// the newest minKeep archives. retentionDays 0 keeps everything. Returns the
// number of backups deleted.
func (s *BackupService) RotateOldBackups(ctx context.Context, retentionDays int) (int, error) {
	s.log.Info().Int("retention_days", retentionDays).Msg("Starting backup rotation")

	backups, err := s.ListBackups(ctx)
	if err != nil {
		return 0, err
	}

	if len(backups) <= s.minKeep {
		s.log.Info().Int("count", len(backups)).Msg("Too few backups to rotate")
		return 0, nil
	}

	if retentionDays <= 0 {
		s.log.Debug().Msg("Retention disabled, keeping all backups")
		return 0, nil
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	deleted := 0

	for i, backup := range backups {
		if i < s.minKeep {
			continue
		}
		if !backup.Timestamp.Before(cutoff) {
			continue
		}

		if err := s.storage.Delete(ctx, backup.Filename); err != nil {
			s.log.Error().
				Err(err).
				Str("filename", backup.Filename).
				Msg("Failed to delete old backup")
			continue
		}

		s.log.Info().
			Str("filename", backup.Filename).
			Time("timestamp", backup.Timestamp).
			Msg("Deleted old backup")
		deleted++
	}

	s.log.Info().
		Int("deleted", deleted).
		Int("remaining", len(backups)-deleted).
		Msg("Backup rotation completed")

	return deleted, nil
}

func (s *BackupService) report(progress ProgressFunc, current, total int, message, phase string) {
	if progress != nil {
		progress(current, total, message, phase)
	}
}

// checksumFile returns the sha256 of a file as "sha256:<hex>".
func checksumFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}

	return fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}

func writeMetadata(path string, metadata BackupMetadata) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(metadata)
}

// createArchive writes a tar.gz containing the named files from sourceDir.
func createArchive(archivePath, sourceDir string, filenames []string) error {
	archiveFile, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer archiveFile.Close()

	gzipWriter := gzip.NewWriter(archiveFile)
	defer gzipWriter.Close()

	tarWriter := tar.NewWriter(gzipWriter)
	defer tarWriter.Close()

	for _, filename := range filenames {
		if err := addFileToArchive(tarWriter, filepath.Join(sourceDir, filename), filename); err != nil {
			return fmt.Errorf("failed to add %s to archive: %w", filename, err)
		}
	}

	return nil
}

func addFileToArchive(tarWriter *tar.Writer, filePath, nameInArchive string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header := &tar.Header{
		Name:    nameInArchive,
		Size:    info.Size(),
		Mode:    int64(info.Mode()),
		ModTime: info.ModTime(),
	}

	if err := tarWriter.WriteHeader(header); err != nil {
		return err
	}

	if _, err := io.Copy(tarWriter, file); err != nil {
		return err
	}

	return nil
}
