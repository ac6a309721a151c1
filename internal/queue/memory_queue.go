package queue

import (
	"fmt"
	"sync"
	"time"
)

// MemoryQueue is an in-process Queue implementation. Jobs are held in a
// mutex-guarded slice; Dequeue returns the highest-priority job whose
// AvailableAt has passed, oldest first on ties.
type MemoryQueue struct {
	mu   sync.Mutex
	jobs []*Job
}

// NewMemoryQueue creates a new in-memory job queue
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

// Enqueue adds a job to the queue
func (q *MemoryQueue) Enqueue(job *Job) error {
	if job == nil {
		return fmt.Errorf("cannot enqueue nil job")
	}
	if job.Type == "" {
		return fmt.Errorf("cannot enqueue job without a type")
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

// Dequeue removes and returns the next runnable job.
// Returns (nil, nil) when no job is available yet.
func (q *MemoryQueue) Dequeue() (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	best := -1
	for i, job := range q.jobs {
		if job.AvailableAt.After(now) {
			continue
		}
		if best == -1 {
			best = i
			continue
		}
		if job.Priority > q.jobs[best].Priority {
			best = i
			continue
		}
		if job.Priority == q.jobs[best].Priority && job.CreatedAt.Before(q.jobs[best].CreatedAt) {
			best = i
		}
	}

	if best == -1 {
		return nil, nil
	}

	job := q.jobs[best]
	q.jobs = append(q.jobs[:best], q.jobs[best+1:]...)
	return job, nil
}

// Size returns the number of queued jobs, including ones not yet available
func (q *MemoryQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}
