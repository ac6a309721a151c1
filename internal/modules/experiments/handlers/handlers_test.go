package handlers

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/qfitlab/qfit/internal/config"
	"github.com/qfitlab/qfit/internal/domain"
	"github.com/qfitlab/qfit/internal/events"
	"github.com/qfitlab/qfit/internal/modules/datasets"
	"github.com/qfitlab/qfit/internal/modules/experiments"
	"github.com/qfitlab/qfit/internal/modules/histogram"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handlerFixture struct {
	handler  *Handler
	repo     *experiments.Repository
	datasets *datasets.Repository
	cache    *histogram.CacheRepository
	bus      *events.Bus
}

func setupHandler(t *testing.T) *handlerFixture {
	openDB := func() *sql.DB {
		db, err := sql.Open("sqlite3", ":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		return db
	}

	repo, err := experiments.NewRepository(openDB(), zerolog.Nop())
	require.NoError(t, err)

	datasetsRepo, err := datasets.NewRepository(openDB(), zerolog.Nop())
	require.NoError(t, err)

	cache, err := histogram.NewCacheRepository(openDB())
	require.NoError(t, err)

	bus := events.NewBus(zerolog.Nop())
	cfg := &config.Config{
		DefaultShots:       1024,
		DefaultBackend:     "local",
		DefaultClockQubits: 3,
	}

	handler := NewHandler(repo, datasetsRepo, histogram.NewService(zerolog.Nop()), cache, bus, cfg, zerolog.Nop())

	return &handlerFixture{
		handler:  handler,
		repo:     repo,
		datasets: datasetsRepo,
		cache:    cache,
		bus:      bus,
	}
}

func (fx *handlerFixture) createDataset(t *testing.T) *domain.Dataset {
	ds := domain.Dataset{
		Name: "ramp",
		Points: []domain.Point{
			{X: 0, Y: 0},
			{X: 1, Y: 1},
			{X: 2, Y: 2},
			{X: 3, Y: 3},
		},
	}
	require.NoError(t, fx.datasets.Create(&ds))
	return &ds
}

func (fx *handlerFixture) createExperiment(t *testing.T, datasetID string) *domain.Experiment {
	exp := domain.Experiment{
		Name:        "fit",
		DatasetID:   datasetID,
		Degree:      1,
		Shots:       1024,
		ClockQubits: 3,
		Backend:     "local",
	}
	require.NoError(t, fx.repo.CreateExperiment(&exp))
	return &exp
}

func (fx *handlerFixture) saveRun(t *testing.T, experimentID string, evaluated bool) *domain.Run {
	run := domain.Run{
		ExperimentID:       experimentID,
		JobID:              "job-1",
		Backend:            "local",
		Counts:             map[string]int{"00001": 700, "10001": 300},
		QuantumSolution:    []float64{0.9, 0.3},
		ClassicalSolution:  []float64{0.95, 0.31},
		SuccessProbability: 0.5,
		Shots:              1024,
		NumQubits:          5,
		StartedAt:          time.Now().Add(-time.Second),
		FinishedAt:         time.Now(),
	}
	if evaluated {
		run.Evaluation = &domain.EvaluationReport{Fidelity: 0.99, ResidualNorm: 0.03}
	}
	require.NoError(t, fx.repo.SaveRun(&run))
	return &run
}

func TestHandleCreateAppliesDefaults(t *testing.T) {
	fx := setupHandler(t)
	ds := fx.createDataset(t)

	body := fmt.Sprintf(`{"name":"fit","dataset_id":%q}`, ds.ID)
	req := httptest.NewRequest("POST", "/api/experiments", strings.NewReader(body))
	w := httptest.NewRecorder()

	fx.handler.HandleCreate(w, req)

	require.Equal(t, http.StatusCreated, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	data := response["data"].(map[string]interface{})
	assert.Equal(t, float64(1024), data["shots"])
	assert.Equal(t, float64(3), data["clock_qubits"])
	assert.Equal(t, float64(1), data["degree"])
	assert.Equal(t, "local", data["backend"])
	assert.Equal(t, string(domain.ExperimentQueued), data["status"])
}

func TestHandleCreateValidation(t *testing.T) {
	fx := setupHandler(t)
	ds := fx.createDataset(t)

	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{"name":`},
		{"missing name", fmt.Sprintf(`{"dataset_id":%q}`, ds.ID)},
		{"missing dataset", `{"name":"fit"}`},
		{"negative degree", fmt.Sprintf(`{"name":"fit","dataset_id":%q,"degree":-1}`, ds.ID)},
		{"unknown dataset", `{"name":"fit","dataset_id":"nope"}`},
		{"degree too high for points", fmt.Sprintf(`{"name":"fit","dataset_id":%q,"degree":5}`, ds.ID)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/experiments", strings.NewReader(tc.body))
			w := httptest.NewRecorder()

			fx.handler.HandleCreate(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestHandleListCounts(t *testing.T) {
	fx := setupHandler(t)
	ds := fx.createDataset(t)
	fx.createExperiment(t, ds.ID)
	fx.createExperiment(t, ds.ID)

	req := httptest.NewRequest("GET", "/api/experiments", nil)
	w := httptest.NewRecorder()

	fx.handler.HandleList(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	data := response["data"].(map[string]interface{})
	assert.Equal(t, float64(2), data["count"])
}

func TestHandleGetMissing(t *testing.T) {
	fx := setupHandler(t)

	req := httptest.NewRequest("GET", "/api/experiments/nope", nil)
	w := httptest.NewRecorder()

	fx.handler.HandleGet(w, req, "nope")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleRunQueues(t *testing.T) {
	fx := setupHandler(t)
	ds := fx.createDataset(t)
	exp := fx.createExperiment(t, ds.ID)

	var queued []events.EventType
	fx.bus.Subscribe(events.ExperimentQueued, func(e *events.Event) {
		queued = append(queued, e.Type)
	})

	req := httptest.NewRequest("POST", "/api/experiments/"+exp.ID+"/run", nil)
	w := httptest.NewRecorder()

	fx.handler.HandleRun(w, req, exp.ID)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Len(t, queued, 1)

	got, err := fx.repo.GetExperiment(exp.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExperimentQueued, got.Status)
}

func TestHandleRunConflictsWhileRunning(t *testing.T) {
	fx := setupHandler(t)
	ds := fx.createDataset(t)
	exp := fx.createExperiment(t, ds.ID)

	claimed, err := fx.repo.MarkRunning(exp.ID)
	require.NoError(t, err)
	require.True(t, claimed)

	req := httptest.NewRequest("POST", "/api/experiments/"+exp.ID+"/run", nil)
	w := httptest.NewRecorder()

	fx.handler.HandleRun(w, req, exp.ID)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHandleRunMissing(t *testing.T) {
	fx := setupHandler(t)

	req := httptest.NewRequest("POST", "/api/experiments/nope/run", nil)
	w := httptest.NewRecorder()

	fx.handler.HandleRun(w, req, "nope")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleListRuns(t *testing.T) {
	fx := setupHandler(t)
	ds := fx.createDataset(t)
	exp := fx.createExperiment(t, ds.ID)
	fx.saveRun(t, exp.ID, true)

	req := httptest.NewRequest("GET", "/api/experiments/"+exp.ID+"/runs", nil)
	w := httptest.NewRecorder()

	fx.handler.HandleListRuns(w, req, exp.ID)

	require.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	data := response["data"].(map[string]interface{})
	assert.Equal(t, float64(1), data["count"])
}

func TestHandleGetRun(t *testing.T) {
	fx := setupHandler(t)
	ds := fx.createDataset(t)
	exp := fx.createExperiment(t, ds.ID)
	run := fx.saveRun(t, exp.ID, true)

	req := httptest.NewRequest("GET", "/api/runs/"+run.ID, nil)
	w := httptest.NewRecorder()

	fx.handler.HandleGetRun(w, req, run.ID)

	require.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	data := response["data"].(map[string]interface{})
	assert.Equal(t, run.ID, data["id"])
	assert.NotNil(t, data["counts"])
}

func TestHandleRunHistogramBuildsAndCaches(t *testing.T) {
	fx := setupHandler(t)
	ds := fx.createDataset(t)
	exp := fx.createExperiment(t, ds.ID)
	run := fx.saveRun(t, exp.ID, true)

	req := httptest.NewRequest("GET", "/api/runs/"+run.ID+"/histogram", nil)
	w := httptest.NewRecorder()

	fx.handler.HandleRunHistogram(w, req, run.ID)

	require.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	metadata := response["metadata"].(map[string]interface{})
	assert.Equal(t, false, metadata["cached"])

	data := response["data"].(map[string]interface{})
	bars := data["bars"].([]interface{})
	assert.Len(t, bars, 2)
	assert.NotEmpty(t, data["rendered"])

	// Second request is served from cache.db.
	w2 := httptest.NewRecorder()
	fx.handler.HandleRunHistogram(w2, req, run.ID)

	require.Equal(t, http.StatusOK, w2.Code)

	var second map[string]interface{}
	require.NoError(t, json.Unmarshal(w2.Body.Bytes(), &second))
	assert.Equal(t, true, second["metadata"].(map[string]interface{})["cached"])
	assert.Equal(t, data["bars"], second["data"].(map[string]interface{})["bars"])
}

func TestHandleRunHistogramMissingRun(t *testing.T) {
	fx := setupHandler(t)

	req := httptest.NewRequest("GET", "/api/runs/nope/histogram", nil)
	w := httptest.NewRecorder()

	fx.handler.HandleRunHistogram(w, req, "nope")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleRunEvaluation(t *testing.T) {
	fx := setupHandler(t)
	ds := fx.createDataset(t)
	exp := fx.createExperiment(t, ds.ID)
	run := fx.saveRun(t, exp.ID, true)

	req := httptest.NewRequest("GET", "/api/runs/"+run.ID+"/evaluation", nil)
	w := httptest.NewRecorder()

	fx.handler.HandleRunEvaluation(w, req, run.ID)

	require.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	data := response["data"].(map[string]interface{})
	assert.InDelta(t, 0.99, data["fidelity"].(float64), 1e-9)
}

func TestHandleRunEvaluationNotEvaluated(t *testing.T) {
	fx := setupHandler(t)
	ds := fx.createDataset(t)
	exp := fx.createExperiment(t, ds.ID)
	run := fx.saveRun(t, exp.ID, false)

	req := httptest.NewRequest("GET", "/api/runs/"+run.ID+"/evaluation", nil)
	w := httptest.NewRecorder()

	fx.handler.HandleRunEvaluation(w, req, run.ID)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleDeleteExperiment(t *testing.T) {
	fx := setupHandler(t)
	ds := fx.createDataset(t)
	exp := fx.createExperiment(t, ds.ID)
	run := fx.saveRun(t, exp.ID, true)

	req := httptest.NewRequest("DELETE", "/api/experiments/"+exp.ID, nil)
	w := httptest.NewRecorder()

	fx.handler.HandleDelete(w, req, exp.ID)

	assert.Equal(t, http.StatusOK, w.Code)

	gotExp, err := fx.repo.GetExperiment(exp.ID)
	require.NoError(t, err)
	assert.Nil(t, gotExp)

	gotRun, err := fx.repo.GetRun(run.ID)
	require.NoError(t, err)
	assert.Nil(t, gotRun)
}
