package queue

import (
	"fmt"
	"sync"
	"time"

	"github.com/qfitlab/qfit/internal/events"
	"github.com/rs/zerolog"
)

// WorkerPool runs queued jobs on a fixed set of workers. Each attempt is
// recorded in history and broadcast as job lifecycle events; failures are
// requeued with a linear backoff until MaxRetries is exhausted.
type WorkerPool struct {
	manager  *Manager
	registry *Registry
	workers  int
	bus      *events.Bus
	log      zerolog.Logger

	// pollInterval paces the dequeue loop while the queue is empty;
	// retryDelay spaces attempts of a failing job. Shortened in tests.
	pollInterval time.Duration
	retryDelay   time.Duration

	mu      sync.Mutex
	started bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// NewWorkerPool creates a worker pool with the given number of workers
func NewWorkerPool(manager *Manager, registry *Registry, workers int) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool{
		manager:      manager,
		registry:     registry,
		workers:      workers,
		log:          zerolog.Nop(),
		pollInterval: 500 * time.Millisecond,
		retryDelay:   30 * time.Second,
	}
}

// SetLogger sets the logger for the worker pool
func (p *WorkerPool) SetLogger(log zerolog.Logger) {
	p.log = log.With().Str("component", "worker_pool").Logger()
}

// SetEventBus sets the event bus for job status broadcasting
func (p *WorkerPool) SetEventBus(bus *events.Bus) {
	p.bus = bus
}

// Start launches the workers
func (p *WorkerPool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		p.log.Warn().Msg("Worker pool already started, ignoring")
		return
	}
	p.started = true
	p.stop = make(chan struct{})

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	p.log.Info().Int("workers", p.workers).Msg("Worker pool started")
}

// Stop signals the workers and waits for in-flight jobs to finish
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	close(p.stop)
	p.mu.Unlock()

	p.wg.Wait()
	p.log.Info().Msg("Worker pool stopped")
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stop:
			return
		default:
		}

		job, err := p.manager.Dequeue()
		if err != nil {
			p.log.Error().Err(err).Int("worker", id).Msg("Failed to dequeue job")
		}
		if job == nil {
			select {
			case <-p.stop:
				return
			case <-time.After(p.pollInterval):
			}
			continue
		}

		p.runJob(job)
	}
}

// runJob executes one job attempt
func (p *WorkerPool) runJob(job *Job) {
	handler, ok := p.registry.Get(job.Type)
	if !ok {
		err := fmt.Errorf("no handler registered for job type %s", job.Type)
		p.log.Error().Str("job_type", string(job.Type)).Str("job_id", job.ID).Msg("No handler registered, dropping job")
		p.manager.RecordStart(job)
		p.manager.RecordResult(job, err, 0)
		p.emitStatus(job, "failed", err.Error(), 0)
		return
	}

	job.progressReporter = NewProgressReporter(p.bus, job.ID, job.Type)

	p.log.Info().
		Str("job_type", string(job.Type)).
		Str("job_id", job.ID).
		Int("attempt", job.Retries+1).
		Msg("Job started")
	p.manager.RecordStart(job)
	p.emitStatus(job, "started", "", 0)

	start := time.Now()
	err := handler(job)
	duration := time.Since(start)

	p.manager.RecordResult(job, err, duration)

	if err != nil {
		p.log.Error().
			Err(err).
			Str("job_type", string(job.Type)).
			Str("job_id", job.ID).
			Dur("duration", duration).
			Msg("Job failed")
		p.emitStatus(job, "failed", err.Error(), duration)
		p.requeueOrDrop(job)
		return
	}

	p.log.Info().
		Str("job_type", string(job.Type)).
		Str("job_id", job.ID).
		Dur("duration", duration).
		Msg("Job completed")
	p.emitStatus(job, "completed", "", duration)
}

// requeueOrDrop schedules another attempt for a failed job, or drops it when
// retries are exhausted.
func (p *WorkerPool) requeueOrDrop(job *Job) {
	if job.Retries >= job.MaxRetries {
		if job.MaxRetries > 0 {
			p.log.Error().
				Str("job_type", string(job.Type)).
				Str("job_id", job.ID).
				Int("attempts", job.Retries+1).
				Msg("Job failed permanently, dropping")
		}
		return
	}

	job.Retries++
	job.AvailableAt = time.Now().Add(p.retryDelay * time.Duration(job.Retries))

	if err := p.manager.Enqueue(job); err != nil {
		p.log.Error().Err(err).Str("job_id", job.ID).Msg("Failed to requeue job")
		return
	}

	p.log.Warn().
		Str("job_type", string(job.Type)).
		Str("job_id", job.ID).
		Int("retry", job.Retries).
		Int("max_retries", job.MaxRetries).
		Time("available_at", job.AvailableAt).
		Msg("Job requeued for retry")
}

func (p *WorkerPool) emitStatus(job *Job, status, errMsg string, duration time.Duration) {
	if p.bus == nil {
		return
	}

	data := &events.JobStatusData{
		JobID:       job.ID,
		JobType:     string(job.Type),
		Status:      status,
		Description: GetJobDescription(job.Type),
		Error:       errMsg,
		Timestamp:   time.Now(),
	}
	if status != "started" {
		data.Duration = duration.Seconds()
	}

	p.bus.EmitData("queue", data)
}
