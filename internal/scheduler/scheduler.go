// Package scheduler provides the cron-driven maintenance layer: a
// robfig/cron wrapper and the job implementations it feeds into the
// maintenance queue.
package scheduler

import (
	"time"

	"github.com/qfitlab/qfit/internal/queue"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job represents a scheduled job
type Job interface {
	Run() error
	Name() string
}

// Cron manages time-based work. Most schedules do not run jobs inline;
// they enqueue into the maintenance queue so execution gets worker
// dispatch, retries and a history record.
type Cron struct {
	cron    *cron.Cron
	manager *queue.Manager
	log     zerolog.Logger
}

// New creates a new cron scheduler.
func New(manager *queue.Manager, log zerolog.Logger) *Cron {
	return &Cron{
		cron:    cron.New(cron.WithSeconds()),
		manager: manager,
		log:     log.With().Str("component", "scheduler").Logger(),
	}
}

// Start starts the scheduler.
func (s *Cron) Start() {
	s.cron.Start()
	s.log.Info().Msg("Scheduler started")
}

// Stop stops the scheduler and waits for in-flight cron callbacks.
func (s *Cron) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers a job that runs inline on the given cron schedule.
// Schedule examples (six fields, seconds first):
//   - "0 */5 * * * *"  - Every 5 minutes
//   - "@hourly"        - Every hour
//   - "@every 30s"     - Every 30 seconds
func (s *Cron) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		s.log.Debug().Str("job", job.Name()).Msg("Running job")

		if err := job.Run(); err != nil {
			s.log.Error().
				Err(err).
				Str("job", job.Name()).
				Msg("Job failed")
		} else {
			s.log.Debug().Str("job", job.Name()).Msg("Job completed")
		}
	})

	if err != nil {
		return err
	}

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")

	return nil
}

// AddEnqueue registers a schedule that enqueues a maintenance job instead of
// running it inline. minInterval guards against double-runs after restarts:
// the enqueue is skipped while the last recorded run is younger than it.
func (s *Cron) AddEnqueue(schedule string, jobType queue.JobType, priority queue.Priority, minInterval time.Duration) error {
	_, err := s.cron.AddFunc(schedule, func() {
		if s.manager.EnqueueIfShouldRun(jobType, priority, minInterval, nil) {
			s.log.Debug().
				Str("job_type", string(jobType)).
				Msg("Scheduled job enqueued")
		} else {
			s.log.Debug().
				Str("job_type", string(jobType)).
				Msg("Scheduled job skipped, ran recently or already pending")
		}
	})

	if err != nil {
		return err
	}

	s.log.Info().
		Str("schedule", schedule).
		Str("job_type", string(jobType)).
		Dur("min_interval", minInterval).
		Msg("Scheduled enqueue registered")

	return nil
}

// RunNow executes a job immediately (outside schedule).
func (s *Cron) RunNow(job Job) error {
	s.log.Info().Str("job", job.Name()).Msg("Running job immediately")
	return job.Run()
}
