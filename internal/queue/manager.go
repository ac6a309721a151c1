package queue

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Manager fronts the job queue: it deduplicates pending jobs per type,
// rate-limits interval jobs against recorded history, and records attempts.
type Manager struct {
	queue   Queue
	history *History
	log     zerolog.Logger

	mu      sync.Mutex
	pending map[JobType]int
}

// NewManager creates a new queue manager
func NewManager(queue Queue, history *History) *Manager {
	return &Manager{
		queue:   queue,
		history: history,
		log:     zerolog.Nop(),
		pending: make(map[JobType]int),
	}
}

// SetLogger sets the logger for the manager
func (m *Manager) SetLogger(log zerolog.Logger) {
	m.log = log.With().Str("component", "queue_manager").Logger()
}

// Enqueue adds a job to the queue. First attempts are deduplicated per type:
// if a job of the same type is already waiting, the new one is dropped.
// Retries (Retries > 0) bypass the dedupe so requeues always land.
func (m *Manager) Enqueue(job *Job) error {
	if job == nil {
		return fmt.Errorf("cannot enqueue nil job")
	}
	if job.Type == "" {
		return fmt.Errorf("cannot enqueue job without a type")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if job.Retries == 0 && m.pending[job.Type] > 0 {
		m.log.Debug().
			Str("job_type", string(job.Type)).
			Str("job_id", job.ID).
			Msg("Job of this type already pending, skipping")
		return nil
	}

	if err := m.queue.Enqueue(job); err != nil {
		return err
	}
	m.pending[job.Type]++
	return nil
}

// EnqueueIfShouldRun enqueues an interval job unless one is already pending
// or one started within the interval. Returns true if the job was enqueued.
func (m *Manager) EnqueueIfShouldRun(jobType JobType, priority Priority, interval time.Duration, payload map[string]interface{}) bool {
	m.mu.Lock()
	alreadyPending := m.pending[jobType] > 0
	m.mu.Unlock()
	if alreadyPending {
		return false
	}

	if m.history != nil {
		last, err := m.history.LastRun(jobType)
		if err != nil {
			m.log.Warn().Err(err).Str("job_type", string(jobType)).Msg("Failed to check job history, enqueueing anyway")
		} else if last != nil && time.Since(*last) < interval {
			return false
		}
	}

	now := time.Now()
	job := &Job{
		ID:          fmt.Sprintf("%s-%d", jobType, now.UnixNano()),
		Type:        jobType,
		Priority:    priority,
		Payload:     payload,
		CreatedAt:   now,
		AvailableAt: now,
		Retries:     0,
		MaxRetries:  3,
	}

	if err := m.Enqueue(job); err != nil {
		m.log.Error().Err(err).Str("job_type", string(jobType)).Msg("Failed to enqueue interval job")
		return false
	}
	return true
}

// Dequeue removes and returns the next runnable job, or (nil, nil) when
// nothing is available.
func (m *Manager) Dequeue() (*Job, error) {
	job, err := m.queue.Dequeue()
	if err != nil || job == nil {
		return job, err
	}

	m.mu.Lock()
	if m.pending[job.Type] > 0 {
		m.pending[job.Type]--
	}
	m.mu.Unlock()

	return job, nil
}

// Size returns the number of queued jobs
func (m *Manager) Size() int {
	return m.queue.Size()
}

// RecordStart records a job attempt in history. Safe without a history store.
func (m *Manager) RecordStart(job *Job) {
	if m.history == nil {
		return
	}
	if err := m.history.RecordStart(job); err != nil {
		m.log.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to record job start")
	}
}

// RecordResult finalizes a job attempt in history. Safe without a history store.
func (m *Manager) RecordResult(job *Job, runErr error, duration time.Duration) {
	if m.history == nil {
		return
	}
	if err := m.history.RecordResult(job, runErr, duration); err != nil {
		m.log.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to record job result")
	}
}

// History exposes the underlying history store for the jobs API. May be nil.
func (m *Manager) History() *History {
	return m.history
}
