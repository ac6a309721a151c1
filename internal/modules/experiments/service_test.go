package experiments

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/qfitlab/qfit/internal/backends"
	"github.com/qfitlab/qfit/internal/domain"
	"github.com/qfitlab/qfit/internal/events"
	"github.com/qfitlab/qfit/internal/modules/datasets"
	"github.com/qfitlab/qfit/internal/quantum"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serviceFixture struct {
	service  *Service
	repo     *Repository
	datasets *datasets.Repository
	archive  *ArchiveRepository
	bus      *events.Bus
}

func setupService(t *testing.T) *serviceFixture {
	openDB := func() *sql.DB {
		db, err := sql.Open("sqlite3", ":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		return db
	}

	repo, err := NewRepository(openDB(), zerolog.Nop())
	require.NoError(t, err)

	datasetsRepo, err := datasets.NewRepository(openDB(), zerolog.Nop())
	require.NoError(t, err)

	archive, err := NewArchiveRepository(openDB(), zerolog.Nop())
	require.NoError(t, err)

	registry := backends.NewRegistry(zerolog.Nop())
	registry.Register(backends.NewLocalBackend(20, 1024, quantum.NewSampler(42), zerolog.Nop()))

	bus := events.NewBus(zerolog.Nop())

	service := NewService(repo, datasetsRepo, archive, registry, bus, zerolog.Nop())
	service.pollInterval = time.Millisecond

	return &serviceFixture{
		service:  service,
		repo:     repo,
		datasets: datasetsRepo,
		archive:  archive,
		bus:      bus,
	}
}

func rampDataset(t *testing.T, repo *datasets.Repository) *domain.Dataset {
	ds := domain.Dataset{
		Name: "ramp",
		Points: []domain.Point{
			{X: 0, Y: 0},
			{X: 1, Y: 1},
			{X: 2, Y: 2},
			{X: 3, Y: 3},
		},
	}
	require.NoError(t, repo.Create(&ds))
	return &ds
}

func TestExecuteRecordsRun(t *testing.T) {
	fx := setupService(t)
	ds := rampDataset(t, fx.datasets)

	// The ramp's normal matrix has eigenvalues near 16.8 and 1.2; five
	// clock qubits give phase estimation enough resolution for both.
	exp := domain.Experiment{
		Name:        "ramp-fit",
		DatasetID:   ds.ID,
		Degree:      1,
		Shots:       8192,
		ClockQubits: 5,
		Backend:     "local",
	}
	require.NoError(t, fx.repo.CreateExperiment(&exp))

	run, err := fx.service.Execute(context.Background(), exp.ID)
	require.NoError(t, err)
	require.NotNil(t, run)

	// The ramp is exactly linear, so the fit is y = 0 + 1·x and the
	// sampled direction should sit close to the classical one.
	require.Len(t, run.ClassicalSolution, 2)
	assert.InDelta(t, 0.0, run.ClassicalSolution[0], 1e-9)
	assert.InDelta(t, 1.0, run.ClassicalSolution[1], 1e-9)

	require.Len(t, run.QuantumSolution, 2)
	require.NotNil(t, run.Evaluation)
	assert.Greater(t, run.Evaluation.Fidelity, 0.9)
	assert.Greater(t, run.SuccessProbability, 0.0)
	assert.NotEmpty(t, run.Counts)
	assert.NotEmpty(t, run.Probabilities)
	assert.Equal(t, 8192, run.Shots)
	assert.Equal(t, "local", run.Backend)
	assert.NotEmpty(t, run.JobID)

	// The run is durable and the experiment completed.
	stored, err := fx.repo.GetRun(run.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)

	got, err := fx.repo.GetExperiment(exp.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExperimentCompleted, got.Status)

	// Raw outcomes landed in the history archive.
	archived, err := fx.archive.CountsForRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.Counts, archived)
}

func TestExecuteEmitsLifecycleEvents(t *testing.T) {
	fx := setupService(t)
	ds := rampDataset(t, fx.datasets)

	var types []events.EventType
	fx.bus.SubscribeAll(func(e *events.Event) {
		types = append(types, e.Type)
	})

	exp := domain.Experiment{
		Name:      "ramp-fit",
		DatasetID: ds.ID,
		Degree:    1,
		Shots:     1024,
		Backend:   "local",
	}
	exp.ClockQubits = 3
	require.NoError(t, fx.repo.CreateExperiment(&exp))

	_, err := fx.service.Execute(context.Background(), exp.ID)
	require.NoError(t, err)

	assert.Contains(t, types, events.ExperimentStarted)
	assert.Contains(t, types, events.ExperimentCompleted)
	assert.NotContains(t, types, events.ExperimentFailed)
}

func TestExecuteMissingDatasetFails(t *testing.T) {
	fx := setupService(t)

	exp := domain.Experiment{
		Name:        "orphan",
		DatasetID:   "deleted-dataset",
		Degree:      1,
		Shots:       128,
		ClockQubits: 3,
		Backend:     "local",
	}
	require.NoError(t, fx.repo.CreateExperiment(&exp))

	_, err := fx.service.Execute(context.Background(), exp.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	got, err := fx.repo.GetExperiment(exp.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExperimentFailed, got.Status)
	assert.Contains(t, got.LastError, "not found")
}

func TestExecuteUnknownBackendFails(t *testing.T) {
	fx := setupService(t)
	ds := rampDataset(t, fx.datasets)

	exp := domain.Experiment{
		Name:        "nowhere",
		DatasetID:   ds.ID,
		Degree:      1,
		Shots:       128,
		ClockQubits: 3,
		Backend:     "hardware-we-do-not-have",
	}
	require.NoError(t, fx.repo.CreateExperiment(&exp))

	_, err := fx.service.Execute(context.Background(), exp.ID)
	require.Error(t, err)

	got, err := fx.repo.GetExperiment(exp.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExperimentFailed, got.Status)
	assert.Contains(t, got.LastError, "unknown backend")
}

func TestExecuteUnknownExperiment(t *testing.T) {
	fx := setupService(t)

	_, err := fx.service.Execute(context.Background(), "no-such-experiment")
	require.Error(t, err)
}

func TestExecuteRefusesSecondClaim(t *testing.T) {
	fx := setupService(t)
	ds := rampDataset(t, fx.datasets)

	exp := domain.Experiment{
		Name:        "claimed",
		DatasetID:   ds.ID,
		Degree:      1,
		Shots:       128,
		ClockQubits: 3,
		Backend:     "local",
	}
	require.NoError(t, fx.repo.CreateExperiment(&exp))

	claimed, err := fx.repo.MarkRunning(exp.ID)
	require.NoError(t, err)
	require.True(t, claimed)

	_, err = fx.service.Execute(context.Background(), exp.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "in flight")
}

func TestExecuteFailedRunCanBeRetried(t *testing.T) {
	fx := setupService(t)

	exp := domain.Experiment{
		Name:        "flaky",
		DatasetID:   "missing-at-first",
		Degree:      1,
		Shots:       256,
		ClockQubits: 3,
		Backend:     "local",
	}
	require.NoError(t, fx.repo.CreateExperiment(&exp))

	_, err := fx.service.Execute(context.Background(), exp.ID)
	require.Error(t, err)

	// The dataset shows up afterwards under the ID the experiment wants.
	ds := domain.Dataset{
		ID:   "missing-at-first",
		Name: "late",
		Points: []domain.Point{
			{X: 0, Y: 0},
			{X: 1, Y: 1},
			{X: 2, Y: 2},
		},
	}
	require.NoError(t, fx.datasets.Create(&ds))

	run, err := fx.service.Execute(context.Background(), exp.ID)
	require.NoError(t, err)
	require.NotNil(t, run)

	got, err := fx.repo.GetExperiment(exp.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExperimentCompleted, got.Status)
	assert.Empty(t, got.LastError)
}

func TestExecuteScaleRecovery(t *testing.T) {
	fx := setupService(t)

	// y = 2x + 1 exactly: coefficients (1, 2) have norm well above 1, so a
	// direction-only answer would fail this test.
	ds := domain.Dataset{
		Name: "steep",
		Points: []domain.Point{
			{X: 0, Y: 1},
			{X: 1, Y: 3},
			{X: 2, Y: 5},
			{X: 3, Y: 7},
		},
	}
	require.NoError(t, fx.datasets.Create(&ds))

	exp := domain.Experiment{
		Name:        "steep-fit",
		DatasetID:   ds.ID,
		Degree:      1,
		Shots:       8192,
		ClockQubits: 4,
		Backend:     "local",
	}
	require.NoError(t, fx.repo.CreateExperiment(&exp))

	run, err := fx.service.Execute(context.Background(), exp.ID)
	require.NoError(t, err)

	require.Len(t, run.ClassicalSolution, 2)
	assert.InDelta(t, 1.0, run.ClassicalSolution[0], 1e-9)
	assert.InDelta(t, 2.0, run.ClassicalSolution[1], 1e-9)

	// Sampling noise and eigenvalue quantization leave a generous margin;
	// recovery still has to land near the physical magnitudes.
	require.Len(t, run.QuantumSolution, 2)
	assert.InDelta(t, 1.0, run.QuantumSolution[0], 0.5)
	assert.InDelta(t, 2.0, run.QuantumSolution[1], 0.8)
}
