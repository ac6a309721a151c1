package work

import (
	"context"
	"fmt"
	"time"

	"github.com/qfitlab/qfit/internal/domain"
	"github.com/qfitlab/qfit/internal/evaluation"
	"github.com/qfitlab/qfit/internal/modules/fitting"
	"github.com/qfitlab/qfit/internal/modules/histogram"
	"github.com/rs/zerolog"
)

// Work type IDs.
const (
	TypeExperimentRun     = "experiment_run"
	TypeRunEvaluation     = "run_evaluation"
	TypeChartCacheRefresh = "chart_cache_refresh"
)

// ExperimentRunnerInterface is the slice of the experiments service the
// processor needs: run one queued experiment end to end.
type ExperimentRunnerInterface interface {
	Execute(ctx context.Context, experimentID string) (*domain.Run, error)
}

// ExperimentStoreInterface defines the results.db reads and writes behind
// subject discovery and evaluation backfill.
type ExperimentStoreInterface interface {
	ExperimentsByStatus(status domain.ExperimentStatus) ([]domain.Experiment, error)
	GetExperiment(id string) (*domain.Experiment, error)
	GetRun(id string) (*domain.Run, error)
	RunIDs() ([]string, error)
	RunIDsWithoutEvaluation() ([]string, error)
	SetRunEvaluation(runID string, report *domain.EvaluationReport) error
}

// DatasetStoreInterface looks up the points an evaluation has to rebuild its
// linear system from.
type DatasetStoreInterface interface {
	GetByID(id string) (*domain.Dataset, error)
}

// ChartServiceInterface builds the cached histogram document for a run.
type ChartServiceInterface interface {
	BuildPayload(counts map[string]int) *histogram.Payload
}

// ChartCacheInterface is the cache.db surface the refresh work writes to.
type ChartCacheInterface interface {
	FreshRunIDs() (map[string]bool, error)
	Store(runID string, payload interface{}, ttl time.Duration) error
}

// ExperimentDeps contains all dependencies for the experiment work types.
type ExperimentDeps struct {
	Runner   ExperimentRunnerInterface
	Store    ExperimentStoreInterface
	Datasets DatasetStoreInterface
	Charts   ChartServiceInterface
	Cache    ChartCacheInterface
	Log      zerolog.Logger
}

// RegisterExperimentWorkTypes registers the experiment pipeline work types
// with the registry.
func RegisterExperimentWorkTypes(registry *Registry, deps *ExperimentDeps) {
	// experiment_run - run the solver pipeline for queued experiments.
	registry.Register(&WorkType{
		ID:       TypeExperimentRun,
		Priority: PriorityHigh,
		FindSubjects: func() []string {
			queued, err := deps.Store.ExperimentsByStatus(domain.ExperimentQueued)
			if err != nil {
				deps.Log.Warn().Err(err).Msg("Failed to list queued experiments")
				return nil
			}
			ids := make([]string, 0, len(queued))
			for _, exp := range queued {
				ids = append(ids, exp.ID)
			}
			return ids
		},
		Execute: func(ctx context.Context, subject string) error {
			if _, err := deps.Runner.Execute(ctx, subject); err != nil {
				return fmt.Errorf("failed to run experiment %s: %w", subject, err)
			}
			return nil
		},
	})

	// run_evaluation - backfill comparison reports for runs recorded without
	// one (older versions, runs imported from remote backends). Waits for
	// experiment work to quiesce so fresh runs keep priority.
	registry.Register(&WorkType{
		ID:        TypeRunEvaluation,
		DependsOn: []string{TypeExperimentRun},
		Priority:  PriorityMedium,
		FindSubjects: func() []string {
			ids, err := deps.Store.RunIDsWithoutEvaluation()
			if err != nil {
				deps.Log.Warn().Err(err).Msg("Failed to list unevaluated runs")
				return nil
			}
			return ids
		},
		Execute: func(ctx context.Context, subject string) error {
			return evaluateRun(deps, subject)
		},
	})

	// chart_cache_refresh - render and cache histogram payloads for runs the
	// cache has no fresh row for, so the dashboard never waits on a rebuild.
	registry.Register(&WorkType{
		ID:       TypeChartCacheRefresh,
		Priority: PriorityLow,
		FindSubjects: func() []string {
			ids, err := deps.Store.RunIDs()
			if err != nil {
				deps.Log.Warn().Err(err).Msg("Failed to list runs")
				return nil
			}
			fresh, err := deps.Cache.FreshRunIDs()
			if err != nil {
				deps.Log.Warn().Err(err).Msg("Failed to list cached charts")
				return nil
			}
			stale := make([]string, 0, len(ids))
			for _, id := range ids {
				if !fresh[id] {
					stale = append(stale, id)
				}
			}
			return stale
		},
		Execute: func(ctx context.Context, subject string) error {
			return refreshChart(deps, subject)
		},
	})
}

// evaluateRun rebuilds the linear system a run solved and stores the
// comparison report next to it.
func evaluateRun(deps *ExperimentDeps, runID string) error {
	run, err := deps.Store.GetRun(runID)
	if err != nil {
		return fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	if run == nil {
		return fmt.Errorf("run %s not found", runID)
	}

	exp, err := deps.Store.GetExperiment(run.ExperimentID)
	if err != nil {
		return fmt.Errorf("failed to load experiment %s: %w", run.ExperimentID, err)
	}
	if exp == nil {
		return fmt.Errorf("experiment %s not found for run %s", run.ExperimentID, runID)
	}

	ds, err := deps.Datasets.GetByID(exp.DatasetID)
	if err != nil {
		return fmt.Errorf("failed to load dataset %s: %w", exp.DatasetID, err)
	}
	if ds == nil {
		return fmt.Errorf("dataset %s not found for run %s", exp.DatasetID, runID)
	}

	problem, err := fitting.BuildProblem(ds.Points, fitting.Options{Degree: exp.Degree})
	if err != nil {
		return fmt.Errorf("failed to rebuild system for run %s: %w", runID, err)
	}
	classical, err := fitting.ClassicalSolution(problem.Matrix, problem.RHS)
	if err != nil {
		return fmt.Errorf("failed to solve system for run %s: %w", runID, err)
	}

	report, err := evaluation.Evaluate(evaluation.Input{
		Problem:            problem,
		Quantum:            run.QuantumSolution,
		Classical:          classical,
		Counts:             run.Counts,
		Exact:              run.Probabilities,
		SuccessProbability: run.SuccessProbability,
		Shots:              run.Shots,
	})
	if err != nil {
		return fmt.Errorf("failed to evaluate run %s: %w", runID, err)
	}

	if err := deps.Store.SetRunEvaluation(runID, &report); err != nil {
		return fmt.Errorf("failed to store evaluation for run %s: %w", runID, err)
	}

	deps.Log.Info().Str("run_id", runID).Float64("fidelity", report.Fidelity).Msg("Backfilled run evaluation")
	return nil
}

// refreshChart renders and caches the histogram payload for one run.
func refreshChart(deps *ExperimentDeps, runID string) error {
	run, err := deps.Store.GetRun(runID)
	if err != nil {
		return fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	if run == nil {
		return fmt.Errorf("run %s not found", runID)
	}

	payload := deps.Charts.BuildPayload(run.Counts)
	if payload == nil {
		// Recorded runs always carry counts; a row without them was not
		// written by the pipeline. Failing here parks the subject in the
		// exhausted set instead of re-finding it on every pass.
		return fmt.Errorf("run %s has no recorded outcomes", runID)
	}

	if err := deps.Cache.Store(runID, payload, histogram.TTLChartPayload); err != nil {
		return fmt.Errorf("failed to cache chart for run %s: %w", runID, err)
	}
	return nil
}
