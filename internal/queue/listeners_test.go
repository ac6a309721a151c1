package queue

import (
	"testing"

	"github.com/qfitlab/qfit/internal/events"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupListeners(t *testing.T) (*events.Bus, *Manager, *Registry) {
	t.Helper()
	bus := events.NewBus(zerolog.Nop())
	manager := NewManager(NewMemoryQueue(), nil)
	registry := NewRegistry()
	RegisterListeners(bus, manager, registry, zerolog.Nop())
	return bus, manager, registry
}

func TestExperimentQueuedEnqueuesRunJob(t *testing.T) {
	bus, manager, _ := setupListeners(t)

	bus.EmitData("api", &events.ExperimentQueuedData{
		ExperimentID: "exp-42",
		DatasetID:    "sensor-drift",
		Backend:      "statevector",
		Shots:        4096,
	})

	job, err := manager.Dequeue()
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, JobTypeExperimentRun, job.Type)
	assert.Equal(t, PriorityCritical, job.Priority)
	assert.Equal(t, 3, job.MaxRetries)
	assert.Equal(t, "exp-42", job.Payload["experiment_id"])
}

func TestHealthyDatabaseReportIgnored(t *testing.T) {
	bus, manager, _ := setupListeners(t)

	bus.EmitData("scheduler", &events.DatabaseHealthData{
		Database: "results",
		Healthy:  true,
	})

	assert.Equal(t, 0, manager.Size())
}

func TestUnhealthyDatabaseEnqueuesIntegrityCheck(t *testing.T) {
	bus, manager, _ := setupListeners(t)

	bus.EmitData("scheduler", &events.DatabaseHealthData{
		Database: "cache",
		Healthy:  false,
		Error:    "database disk image is malformed",
	})

	job, err := manager.Dequeue()
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, JobTypeIntegrityCheck, job.Type)
	assert.Equal(t, PriorityHigh, job.Priority)
}

func TestRepeatedUnhealthyReportsEnqueueOnce(t *testing.T) {
	bus, manager, _ := setupListeners(t)

	// The integrity job itself emits health events while a database stays
	// broken; the pending check keeps that from piling up jobs.
	bus.EmitData("scheduler", &events.DatabaseHealthData{Database: "cache", Healthy: false})
	bus.EmitData("scheduler", &events.DatabaseHealthData{Database: "cache", Healthy: false})
	bus.EmitData("scheduler", &events.DatabaseHealthData{Database: "config", Healthy: false})

	assert.Equal(t, 1, manager.Size())
}

func TestBackupCompletedSkippedWithoutRotationHandler(t *testing.T) {
	bus, manager, _ := setupListeners(t)

	bus.EmitData("reliability", &events.BackupCompletedData{
		Archive:   "qfit-backup-2026-01-15-030000.tar.gz",
		SizeBytes: 1 << 20,
	})

	assert.Equal(t, 0, manager.Size())
}

func TestBackupCompletedEnqueuesRotation(t *testing.T) {
	bus, manager, registry := setupListeners(t)
	registry.Register(JobTypeBackupRotation, func(job *Job) error { return nil })

	bus.EmitData("reliability", &events.BackupCompletedData{
		Archive:         "qfit-backup-2026-01-15-030000.tar.gz",
		SizeBytes:       1 << 20,
		DurationSeconds: 2.5,
	})

	job, err := manager.Dequeue()
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, JobTypeBackupRotation, job.Type)
	assert.Equal(t, PriorityLow, job.Priority)
	assert.Equal(t, "qfit-backup-2026-01-15-030000.tar.gz", job.Payload["archive"])
}
