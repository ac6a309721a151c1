package experiments

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/qfitlab/qfit/internal/backends"
	"github.com/qfitlab/qfit/internal/domain"
	"github.com/qfitlab/qfit/internal/evaluation"
	"github.com/qfitlab/qfit/internal/events"
	"github.com/qfitlab/qfit/internal/modules/datasets"
	"github.com/qfitlab/qfit/internal/modules/fitting"
	"github.com/qfitlab/qfit/internal/modules/hhl"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
)

// defaultPollInterval is how often a submitted job is polled for completion.
// Local jobs finish inside Submit, so the first poll already sees a terminal
// status; the interval only matters for the remote backend.
const defaultPollInterval = 250 * time.Millisecond

// Service runs the solver pipeline: dataset to linear system to circuit to
// backend to recorded run.
type Service struct {
	repo     *Repository
	datasets *datasets.Repository
	archive  *ArchiveRepository
	registry *backends.Registry
	bus      *events.Bus
	log      zerolog.Logger

	// pollInterval is shortened in tests.
	pollInterval time.Duration
}

// NewService wires the pipeline dependencies together.
func NewService(
	repo *Repository,
	datasetsRepo *datasets.Repository,
	archive *ArchiveRepository,
	registry *backends.Registry,
	bus *events.Bus,
	log zerolog.Logger,
) *Service {
	return &Service{
		repo:         repo,
		datasets:     datasetsRepo,
		archive:      archive,
		registry:     registry,
		bus:          bus,
		log:          log.With().Str("service", "experiments").Logger(),
		pollInterval: defaultPollInterval,
	}
}

// Execute runs one experiment end to end and records the run. The experiment
// is claimed with a compare-and-set status update first, so two concurrent
// calls cannot both run it.
//
// Any pipeline failure marks the experiment failed and is returned to the
// caller; the work processor decides whether to retry.
func (s *Service) Execute(ctx context.Context, experimentID string) (*domain.Run, error) {
	exp, err := s.repo.GetExperiment(experimentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load experiment: %w", err)
	}
	if exp == nil {
		return nil, fmt.Errorf("experiment %s not found", experimentID)
	}

	claimed, err := s.repo.MarkRunning(exp.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to claim experiment: %w", err)
	}
	if !claimed {
		return nil, fmt.Errorf("experiment %s already has a run in flight", exp.ID)
	}

	run, err := s.runPipeline(ctx, exp)
	if err != nil {
		if markErr := s.repo.MarkFailed(exp.ID, err); markErr != nil {
			s.log.Error().Err(markErr).Str("experiment_id", exp.ID).Msg("Failed to record experiment failure")
		}
		s.bus.EmitData("experiments", &events.ExperimentFailedData{
			ExperimentID: exp.ID,
			Error:        err.Error(),
		})
		s.log.Error().Err(err).Str("experiment_id", exp.ID).Msg("Experiment failed")
		return nil, err
	}

	if err := s.repo.MarkCompleted(exp.ID); err != nil {
		return nil, fmt.Errorf("failed to mark experiment completed: %w", err)
	}
	return run, nil
}

func (s *Service) runPipeline(ctx context.Context, exp *domain.Experiment) (*domain.Run, error) {
	started := time.Now()

	ds, err := s.datasets.GetByID(exp.DatasetID)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset: %w", err)
	}
	if ds == nil {
		return nil, fmt.Errorf("dataset %s not found", exp.DatasetID)
	}

	problem, err := fitting.BuildProblem(ds.Points, fitting.Options{Degree: exp.Degree})
	if err != nil {
		return nil, fmt.Errorf("failed to build linear system: %w", err)
	}

	classical, err := fitting.ClassicalSolution(problem.Matrix, problem.RHS)
	if err != nil {
		return nil, fmt.Errorf("classical reference solve failed: %w", err)
	}

	opts := hhl.Options{
		ClockQubits: exp.ClockQubits,
		Shots:       exp.Shots,
	}
	// Calibrate here rather than leaving it to BuildCircuit: the rotation
	// constant has to be known when the solution scale is recovered below.
	if err := hhl.Calibrate(problem.Matrix, &opts); err != nil {
		return nil, fmt.Errorf("calibration failed: %w", err)
	}

	circuit, layout, err := hhl.BuildCircuit(problem, opts)
	if err != nil {
		return nil, fmt.Errorf("circuit synthesis failed: %w", err)
	}

	backend, err := s.registry.Get(exp.Backend)
	if err != nil {
		return nil, err
	}
	if circuit.NumQubits > backend.NumQubits() {
		return nil, fmt.Errorf("circuit needs %d qubits, backend %s allows %d",
			circuit.NumQubits, backend.Name(), backend.NumQubits())
	}

	runID := uuid.New().String()

	jobID, err := backend.Submit(ctx, circuit)
	if err != nil {
		return nil, fmt.Errorf("failed to submit circuit: %w", err)
	}

	s.log.Info().
		Str("experiment_id", exp.ID).
		Str("backend", backend.Name()).
		Str("job_id", jobID).
		Int("num_qubits", circuit.NumQubits).
		Int("shots", exp.Shots).
		Msg("Experiment started")

	s.bus.EmitData("experiments", &events.ExperimentStartedData{
		ExperimentID: exp.ID,
		RunID:        runID,
		Backend:      backend.Name(),
		NumQubits:    circuit.NumQubits,
	})

	result, err := s.waitForResult(ctx, backend, jobID)
	if err != nil {
		return nil, err
	}

	sol, err := hhl.ExtractSolution(result, layout, problem.Dim)
	if err != nil {
		return nil, err
	}

	// The post-selected state carries (C/‖b‖)·x, so the ancilla success
	// probability pins down the physical scale: ‖x‖ = ‖b‖·√P/C.
	scale := mat.Norm(problem.RHS, 2) * math.Sqrt(sol.SuccessProbability) / opts.RotationConstant
	quantumSolution := make([]float64, problem.Dim)
	for i, a := range sol.Amplitudes {
		quantumSolution[i] = a * scale
	}

	classicalSolution := make([]float64, problem.Dim)
	for i := range classicalSolution {
		classicalSolution[i] = classical.AtVec(i)
	}

	report, err := evaluation.Evaluate(evaluation.Input{
		Problem:            problem,
		Quantum:            quantumSolution,
		Classical:          classical,
		Counts:             result.Counts,
		Exact:              result.Probabilities,
		SuccessProbability: sol.SuccessProbability,
		Shots:              result.Shots,
	})
	if err != nil {
		return nil, fmt.Errorf("evaluation failed: %w", err)
	}

	run := &domain.Run{
		ID:                 runID,
		ExperimentID:       exp.ID,
		JobID:              jobID,
		Backend:            backend.Name(),
		Counts:             result.Counts,
		Probabilities:      result.Probabilities,
		QuantumSolution:    quantumSolution,
		ClassicalSolution:  classicalSolution,
		Evaluation:         &report,
		SuccessProbability: sol.SuccessProbability,
		Shots:              result.Shots,
		NumQubits:          result.NumQubits,
		StartedAt:          started,
		FinishedAt:         time.Now(),
	}

	if err := s.repo.SaveRun(run); err != nil {
		return nil, fmt.Errorf("failed to save run: %w", err)
	}
	if err := s.archive.ArchiveRun(run.ID, result.Counts); err != nil {
		return nil, fmt.Errorf("failed to archive outcomes: %w", err)
	}

	s.bus.EmitData("experiments", &events.ExperimentCompletedData{
		ExperimentID:       exp.ID,
		RunID:              run.ID,
		Fidelity:           report.Fidelity,
		SuccessProbability: sol.SuccessProbability,
		DurationSeconds:    time.Since(started).Seconds(),
	})

	s.log.Info().
		Str("experiment_id", exp.ID).
		Str("run_id", run.ID).
		Float64("fidelity", report.Fidelity).
		Float64("success_probability", sol.SuccessProbability).
		Msg("Experiment completed")

	return run, nil
}

// waitForResult polls the backend until the job reaches a terminal state.
// Results itself reports the failure cause for failed and cancelled jobs.
func (s *Service) waitForResult(ctx context.Context, backend backends.QuantumBackend, jobID string) (*backends.ExecutionResult, error) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		status, err := backend.Status(ctx, jobID)
		if err != nil {
			return nil, fmt.Errorf("failed to poll job %s: %w", jobID, err)
		}

		switch status {
		case backends.StatusCompleted, backends.StatusFailed, backends.StatusCancelled:
			return backend.Results(ctx, jobID)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
