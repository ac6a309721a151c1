package queue

import (
	"fmt"
	"time"

	"github.com/qfitlab/qfit/internal/events"
	"github.com/rs/zerolog"
)

// RegisterListeners registers event listeners that enqueue jobs
func RegisterListeners(bus *events.Bus, manager *Manager, registry *Registry, log zerolog.Logger) {
	log = log.With().Str("component", "event_listeners").Logger()

	// ExperimentQueued -> experiment_run (CRITICAL priority)
	// The handler nudges the work processor, which picks the experiment up
	// from results.db. Going through the queue leaves a history record for
	// every trigger.
	bus.Subscribe(events.ExperimentQueued, func(event *events.Event) {
		job := &Job{
			ID:          fmt.Sprintf("%s-%d", JobTypeExperimentRun, event.Timestamp.UnixNano()),
			Type:        JobTypeExperimentRun,
			Priority:    PriorityCritical,
			Payload:     event.Data,
			CreatedAt:   event.Timestamp,
			AvailableAt: event.Timestamp,
			Retries:     0,
			MaxRetries:  3,
		}
		if err := manager.Enqueue(job); err != nil {
			log.Error().
				Err(err).
				Str("event_type", string(events.ExperimentQueued)).
				Str("job_type", string(JobTypeExperimentRun)).
				Str("job_id", job.ID).
				Msg("Failed to enqueue job from event")
		}
	})

	// DatabaseHealth (unhealthy) -> integrity_check (HIGH priority)
	// Interval-gated rather than enqueued directly: the integrity job itself
	// emits health events, so a direct enqueue would loop while a database
	// stays broken.
	bus.Subscribe(events.DatabaseHealth, func(event *events.Event) {
		if healthy, ok := event.Data["healthy"].(bool); ok && healthy {
			return
		}
		if manager.EnqueueIfShouldRun(JobTypeIntegrityCheck, PriorityHigh, 10*time.Minute, event.Data) {
			log.Warn().
				Interface("database", event.Data["database"]).
				Msg("Unhealthy database reported, integrity check enqueued")
		}
	})

	// BackupCompleted -> backup_rotation (LOW priority)
	// Rotation rides each successful upload instead of its own schedule.
	bus.Subscribe(events.BackupCompleted, func(event *events.Event) {
		if !registry.Has(JobTypeBackupRotation) {
			log.Debug().Msg("Backup rotation job not registered, skipping")
			return
		}
		job := &Job{
			ID:          fmt.Sprintf("%s-%d", JobTypeBackupRotation, event.Timestamp.UnixNano()),
			Type:        JobTypeBackupRotation,
			Priority:    PriorityLow,
			Payload:     event.Data,
			CreatedAt:   event.Timestamp,
			AvailableAt: event.Timestamp,
			Retries:     0,
			MaxRetries:  3,
		}
		if err := manager.Enqueue(job); err != nil {
			log.Error().
				Err(err).
				Str("event_type", string(events.BackupCompleted)).
				Str("job_type", string(JobTypeBackupRotation)).
				Str("job_id", job.ID).
				Msg("Failed to enqueue job from event")
		}
	})
}
