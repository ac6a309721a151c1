package backends

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qfitlab/qfit/internal/quantum"
	"github.com/rs/zerolog"
)

// probCutoff drops outcome probabilities below this from reported
// distributions. Keeps result payloads proportional to the support of the
// state instead of 2^n.
const probCutoff = 1e-12

// LocalBackend executes circuits in-process on the state-vector simulator.
// Jobs complete within Submit; the asynchronous Status/Results surface exists
// so callers are written once against QuantumBackend and work unchanged
// against remote backends.
type LocalBackend struct {
	maxQubits    int
	defaultShots int
	sampler      *quantum.Sampler
	log          zerolog.Logger

	mu   sync.RWMutex
	jobs map[string]*localJob
}

type localJob struct {
	status JobStatus
	result *ExecutionResult
	err    error
}

// NewLocalBackend creates a simulator backend. maxQubits caps circuit width
// (memory for the amplitudes grows as 2^n); defaultShots is used when a
// circuit does not carry its own shot count.
func NewLocalBackend(maxQubits, defaultShots int, sampler *quantum.Sampler, log zerolog.Logger) *LocalBackend {
	if maxQubits <= 0 || maxQubits > quantum.MaxQubits {
		maxQubits = quantum.MaxQubits
	}
	if defaultShots <= 0 {
		defaultShots = 1024
	}
	return &LocalBackend{
		maxQubits:    maxQubits,
		defaultShots: defaultShots,
		sampler:      sampler,
		log:          log.With().Str("component", "local_backend").Logger(),
		jobs:         make(map[string]*localJob),
	}
}

func (b *LocalBackend) Name() string { return "local" }

func (b *LocalBackend) NumQubits() int { return b.maxQubits }

// Submit validates and immediately simulates the circuit, then records the
// outcome under a fresh job ID.
func (b *LocalBackend) Submit(ctx context.Context, circuit *quantum.Circuit) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if circuit == nil {
		return "", fmt.Errorf("nil circuit")
	}
	if err := circuit.Validate(); err != nil {
		return "", fmt.Errorf("invalid circuit: %w", err)
	}
	if circuit.NumQubits > b.maxQubits {
		return "", fmt.Errorf("circuit needs %d qubits, backend allows %d", circuit.NumQubits, b.maxQubits)
	}

	shots := circuit.Shots
	if shots <= 0 {
		shots = b.defaultShots
	}

	jobID := uuid.New().String()
	started := time.Now()

	state, err := quantum.Run(circuit)
	if err != nil {
		b.storeJob(jobID, &localJob{status: StatusFailed, err: err})
		b.log.Error().Err(err).Str("job_id", jobID).Msg("Simulation failed")
		return jobID, nil
	}

	probs := state.Probabilities()
	counts := b.sampler.Sample(probs, shots, circuit.NumQubits)

	result := &ExecutionResult{
		JobID:         jobID,
		BackendName:   b.Name(),
		Counts:        counts,
		Probabilities: probabilityMap(probs, circuit.NumQubits),
		Shots:         shots,
		NumQubits:     circuit.NumQubits,
		TimeUsed:      time.Since(started),
	}
	b.storeJob(jobID, &localJob{status: StatusCompleted, result: result})

	b.log.Debug().
		Str("job_id", jobID).
		Int("num_qubits", circuit.NumQubits).
		Int("gates", len(circuit.Gates)).
		Int("shots", shots).
		Dur("elapsed", result.TimeUsed).
		Msg("Circuit simulated")

	return jobID, nil
}

func (b *LocalBackend) Status(ctx context.Context, jobID string) (JobStatus, error) {
	job, err := b.getJob(jobID)
	if err != nil {
		return "", err
	}
	return job.status, nil
}

func (b *LocalBackend) Results(ctx context.Context, jobID string) (*ExecutionResult, error) {
	job, err := b.getJob(jobID)
	if err != nil {
		return nil, err
	}

	switch job.status {
	case StatusCompleted:
		return job.result, nil
	case StatusFailed:
		return nil, fmt.Errorf("job failed: %w", job.err)
	case StatusCancelled:
		return nil, fmt.Errorf("job was cancelled")
	default:
		return nil, ErrJobRunning
	}
}

// Cancel marks an unfinished job cancelled. Local jobs finish inside Submit,
// so in practice this only matters for jobs that never existed.
func (b *LocalBackend) Cancel(ctx context.Context, jobID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	job, exists := b.jobs[jobID]
	if !exists {
		return ErrJobNotFound
	}
	if job.status == StatusQueued || job.status == StatusRunning {
		job.status = StatusCancelled
	}
	return nil
}

func (b *LocalBackend) storeJob(jobID string, job *localJob) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.jobs[jobID] = job
}

func (b *LocalBackend) getJob(jobID string) (*localJob, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	job, exists := b.jobs[jobID]
	if !exists {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// probabilityMap converts a dense probability vector into a sparse
// bitstring-keyed map, dropping negligible entries.
func probabilityMap(probs []float64, numQubits int) map[string]float64 {
	out := make(map[string]float64)
	for i, p := range probs {
		if p > probCutoff {
			out[quantum.FormatBitstring(i, numQubits)] = p
		}
	}
	return out
}
