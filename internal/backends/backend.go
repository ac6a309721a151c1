// Package backends provides the execution boundary between circuit
// construction and circuit execution. Callers build a quantum.Circuit and
// hand it to a QuantumBackend; where the amplitudes actually live (local
// state-vector simulator, remote simulation service) is the backend's
// business.
package backends

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/qfitlab/qfit/internal/quantum"
	"github.com/rs/zerolog"
)

// JobStatus describes where a submitted circuit is in its lifecycle.
type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
)

var (
	// ErrJobNotFound is returned for job IDs the backend has never seen
	// (or has already evicted).
	ErrJobNotFound = errors.New("job not found")

	// ErrJobRunning is returned by Results while the job is still queued
	// or executing. Callers poll Status until completion.
	ErrJobRunning = errors.New("job still running")

	// ErrNotConnected is returned by the remote backend when no WebSocket
	// session is available.
	ErrNotConnected = errors.New("backend not connected")
)

// ExecutionResult is what a backend hands back for a completed job.
// Counts holds sampled shot tallies keyed by MSB-first bitstrings;
// Probabilities holds the exact (or reported) outcome distribution with
// negligible entries dropped.
type ExecutionResult struct {
	JobID         string             `json:"job_id"`
	BackendName   string             `json:"backend_name"`
	Counts        map[string]int     `json:"counts"`
	Probabilities map[string]float64 `json:"probabilities"`
	Shots         int                `json:"shots"`
	NumQubits     int                `json:"num_qubits"`
	TimeUsed      time.Duration      `json:"time_used"`
}

// QuantumBackend executes circuits. Submit is asynchronous: it returns a job
// ID immediately and the caller polls Status / Results.
type QuantumBackend interface {
	// Name identifies the backend ("local", "remote", ...).
	Name() string

	// NumQubits is the widest circuit this backend accepts.
	NumQubits() int

	// Submit enqueues a circuit for execution and returns a job ID.
	Submit(ctx context.Context, circuit *quantum.Circuit) (string, error)

	// Status reports the lifecycle state of a submitted job.
	Status(ctx context.Context, jobID string) (JobStatus, error)

	// Results returns the outcome of a completed job. While the job is
	// queued or running it returns ErrJobRunning.
	Results(ctx context.Context, jobID string) (*ExecutionResult, error)

	// Cancel aborts a queued or running job. Cancelling a finished job is
	// a no-op.
	Cancel(ctx context.Context, jobID string) error
}

// Registry tracks the backends available to the rest of the application.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]QuantumBackend
	log      zerolog.Logger
}

// NewRegistry creates an empty backend registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		backends: make(map[string]QuantumBackend),
		log:      log.With().Str("component", "backend_registry").Logger(),
	}
}

// Register adds a backend under its own name. Re-registering a name
// replaces the previous backend.
func (r *Registry) Register(backend QuantumBackend) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := backend.Name()
	if _, exists := r.backends[name]; exists {
		r.log.Warn().Str("backend", name).Msg("Replacing already-registered backend")
	}
	r.backends[name] = backend

	r.log.Info().
		Str("backend", name).
		Int("num_qubits", backend.NumQubits()).
		Msg("Backend registered")
}

// Get returns the backend registered under name.
func (r *Registry) Get(name string) (QuantumBackend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	backend, exists := r.backends[name]
	if !exists {
		return nil, fmt.Errorf("unknown backend: %s", name)
	}
	return backend, nil
}

// List returns the registered backend names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
