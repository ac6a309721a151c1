package queue

import (
	"sort"
	"sync"
)

// Handler executes a dequeued job.
type Handler func(job *Job) error

// RunnableJob is the subset of scheduler jobs the queue dispatches.
type RunnableJob interface {
	Name() string
	Run() error
}

// jobAware is implemented by jobs that accept the queue job reference for
// progress reporting (scheduler/base.JobBase).
type jobAware interface {
	SetJob(qj interface{})
}

// JobToHandler adapts a scheduler job into a queue handler. If the job
// embeds base.JobBase, the queue job is injected before Run so the job can
// reach its progress reporter.
func JobToHandler(j RunnableJob) Handler {
	return func(job *Job) error {
		if aware, ok := j.(jobAware); ok {
			aware.SetJob(job)
		}
		return j.Run()
	}
}

// Registry maps job types to their handlers
type Registry struct {
	mu       sync.RWMutex
	handlers map[JobType]Handler
}

// NewRegistry creates a new job registry
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[JobType]Handler),
	}
}

// Register registers a handler for a job type, replacing any existing one
func (r *Registry) Register(jobType JobType, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[jobType] = handler
}

// Get returns the handler for a job type
func (r *Registry) Get(jobType JobType) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.handlers[jobType]
	return handler, ok
}

// Has reports whether a handler is registered for the job type
func (r *Registry) Has(jobType JobType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[jobType]
	return ok
}

// Types returns all registered job types, sorted
func (r *Registry) Types() []JobType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]JobType, 0, len(r.handlers))
	for jobType := range r.handlers {
		types = append(types, jobType)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
