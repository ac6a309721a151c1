package queue

import "time"

// JobType identifies a job the queue can run.
type JobType string

const (
	// Database maintenance jobs
	JobTypeWALCheckpoint   JobType = "wal_checkpoint"
	JobTypeVacuumDatabases JobType = "vacuum_databases"
	JobTypeIntegrityCheck  JobType = "integrity_check"

	// Retention jobs
	JobTypeHistoryCleanup JobType = "history_cleanup"
	JobTypeCacheCleanup   JobType = "cache_cleanup"

	// Off-site backup jobs
	JobTypeS3Backup       JobType = "s3_backup"
	JobTypeBackupRotation JobType = "backup_rotation"

	// Experiment pipeline trigger - nudges the work processor to scan for
	// pending experiments, evaluation backfill and stale chart caches
	JobTypeExperimentRun JobType = "experiment_run"
)

// Priority represents job priority
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

// Job represents a queued job
type Job struct {
	ID          string
	Type        JobType
	Priority    Priority
	Payload     map[string]interface{}
	CreatedAt   time.Time
	AvailableAt time.Time
	Retries     int
	MaxRetries  int

	// Progress reporting (injected by WorkerPool)
	progressReporter *ProgressReporter
}

// GetProgressReporter returns the progress reporter for this job.
// Returns interface{} to satisfy the scheduler/base.JobBase interface requirement.
// Callers should type-assert to *ProgressReporter.
// Returns nil (not a nil-pointer interface) when no reporter is set.
func (j *Job) GetProgressReporter() interface{} {
	if j.progressReporter == nil {
		return nil
	}
	return j.progressReporter
}

// Queue interface for job queue operations
type Queue interface {
	Enqueue(job *Job) error
	Dequeue() (*Job, error)
	Size() int
}

// GetJobDescription returns a human-readable description for a job type
func GetJobDescription(jobType JobType) string {
	descriptions := map[JobType]string{
		JobTypeWALCheckpoint:   "Checkpointing write-ahead logs",
		JobTypeVacuumDatabases: "Compacting databases",
		JobTypeIntegrityCheck:  "Checking database integrity",
		JobTypeHistoryCleanup:  "Pruning archived measurement counts",
		JobTypeCacheCleanup:    "Cleaning up expired chart payloads",
		JobTypeS3Backup:        "Uploading backup to object storage",
		JobTypeBackupRotation:  "Rotating off-site backups",
		JobTypeExperimentRun:   "Processing queued experiments",
	}

	if desc, exists := descriptions[jobType]; exists {
		return desc
	}

	// Fallback to job type string
	return string(jobType)
}
