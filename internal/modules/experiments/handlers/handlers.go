// Package handlers provides HTTP handlers for experiments and their runs.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/qfitlab/qfit/internal/config"
	"github.com/qfitlab/qfit/internal/domain"
	"github.com/qfitlab/qfit/internal/events"
	"github.com/qfitlab/qfit/internal/modules/datasets"
	"github.com/qfitlab/qfit/internal/modules/experiments"
	"github.com/qfitlab/qfit/internal/modules/histogram"
	"github.com/rs/zerolog"
)

// Handler handles experiment and run HTTP requests
type Handler struct {
	repo     *experiments.Repository
	datasets *datasets.Repository
	charts   *histogram.Service
	cache    *histogram.CacheRepository
	bus      *events.Bus
	cfg      *config.Config
	log      zerolog.Logger
}

// NewHandler creates a new experiment handler
func NewHandler(
	repo *experiments.Repository,
	datasetsRepo *datasets.Repository,
	charts *histogram.Service,
	cache *histogram.CacheRepository,
	bus *events.Bus,
	cfg *config.Config,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		repo:     repo,
		datasets: datasetsRepo,
		charts:   charts,
		cache:    cache,
		bus:      bus,
		cfg:      cfg,
		log:      log.With().Str("handler", "experiments").Logger(),
	}
}

// createRequest is the POST /api/experiments body. Zero shots, clock qubits
// or backend fall back to the configured defaults.
type createRequest struct {
	Name        string `json:"name"`
	DatasetID   string `json:"dataset_id"`
	Degree      int    `json:"degree"`
	Shots       int    `json:"shots"`
	ClockQubits int    `json:"clock_qubits"`
	Backend     string `json:"backend"`
}

// HandleList handles GET /api/experiments
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.repo.ListExperiments()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list experiments")
		http.Error(w, "Failed to list experiments", http.StatusInternalServerError)
		return
	}

	if list == nil {
		list = []domain.Experiment{}
	}

	response := map[string]interface{}{
		"data": map[string]interface{}{
			"experiments": list,
			"count":       len(list),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleCreate handles POST /api/experiments
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Name == "" {
		http.Error(w, "Experiment name is required", http.StatusBadRequest)
		return
	}
	if req.DatasetID == "" {
		http.Error(w, "Dataset ID is required", http.StatusBadRequest)
		return
	}
	if req.Degree < 0 {
		http.Error(w, "Degree must be non-negative", http.StatusBadRequest)
		return
	}

	ds, err := h.datasets.GetByID(req.DatasetID)
	if err != nil {
		h.log.Error().Err(err).Str("dataset_id", req.DatasetID).Msg("Failed to check dataset")
		http.Error(w, "Failed to create experiment", http.StatusInternalServerError)
		return
	}
	if ds == nil {
		http.Error(w, "Dataset not found", http.StatusBadRequest)
		return
	}

	// A degree-0 system has one unknown and spans no qubits, so the
	// smallest runnable fit is linear.
	if req.Degree == 0 {
		req.Degree = 1
	}
	if req.Shots <= 0 {
		req.Shots = h.cfg.DefaultShots
	}
	if req.ClockQubits <= 0 {
		req.ClockQubits = h.cfg.DefaultClockQubits
	}
	if req.Backend == "" {
		req.Backend = h.cfg.DefaultBackend
	}

	if len(ds.Points) < req.Degree+1 {
		http.Error(w, "Dataset has too few points for the requested degree", http.StatusBadRequest)
		return
	}

	exp := domain.Experiment{
		Name:        req.Name,
		DatasetID:   req.DatasetID,
		Degree:      req.Degree,
		Shots:       req.Shots,
		ClockQubits: req.ClockQubits,
		Backend:     req.Backend,
	}
	if err := h.repo.CreateExperiment(&exp); err != nil {
		h.log.Error().Err(err).Str("name", req.Name).Msg("Failed to create experiment")
		http.Error(w, "Failed to create experiment", http.StatusInternalServerError)
		return
	}

	h.log.Info().
		Str("id", exp.ID).
		Str("name", exp.Name).
		Str("dataset_id", exp.DatasetID).
		Msg("Experiment created")

	response := map[string]interface{}{
		"data": exp,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}

	h.writeJSON(w, http.StatusCreated, response)
}

// HandleGet handles GET /api/experiments/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request, id string) {
	exp, err := h.repo.GetExperiment(id)
	if err != nil {
		h.log.Error().Err(err).Str("id", id).Msg("Failed to get experiment")
		http.Error(w, "Failed to get experiment", http.StatusInternalServerError)
		return
	}
	if exp == nil {
		http.Error(w, "Experiment not found", http.StatusNotFound)
		return
	}

	response := map[string]interface{}{
		"data": exp,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleDelete handles DELETE /api/experiments/{id}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request, id string) {
	exp, err := h.repo.GetExperiment(id)
	if err != nil {
		h.log.Error().Err(err).Str("id", id).Msg("Failed to get experiment")
		http.Error(w, "Failed to delete experiment", http.StatusInternalServerError)
		return
	}
	if exp == nil {
		http.Error(w, "Experiment not found", http.StatusNotFound)
		return
	}

	if err := h.repo.DeleteExperiment(id); err != nil {
		h.log.Error().Err(err).Str("id", id).Msg("Failed to delete experiment")
		http.Error(w, "Failed to delete experiment", http.StatusInternalServerError)
		return
	}

	h.log.Info().Str("id", id).Str("name", exp.Name).Msg("Experiment deleted")

	response := map[string]interface{}{
		"data": map[string]interface{}{
			"deleted": id,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleRun handles POST /api/experiments/{id}/run. It only queues the
// experiment; the work processor picks it up and runs the pipeline.
func (h *Handler) HandleRun(w http.ResponseWriter, r *http.Request, id string) {
	exp, err := h.repo.GetExperiment(id)
	if err != nil {
		h.log.Error().Err(err).Str("id", id).Msg("Failed to get experiment")
		http.Error(w, "Failed to queue experiment", http.StatusInternalServerError)
		return
	}
	if exp == nil {
		http.Error(w, "Experiment not found", http.StatusNotFound)
		return
	}

	queued, err := h.repo.Enqueue(id)
	if err != nil {
		h.log.Error().Err(err).Str("id", id).Msg("Failed to queue experiment")
		http.Error(w, "Failed to queue experiment", http.StatusInternalServerError)
		return
	}
	if !queued {
		http.Error(w, "Experiment already has a run in flight", http.StatusConflict)
		return
	}

	h.bus.EmitData("experiments", &events.ExperimentQueuedData{
		ExperimentID: exp.ID,
		DatasetID:    exp.DatasetID,
		Backend:      exp.Backend,
		Shots:        exp.Shots,
	})

	h.log.Info().Str("id", id).Msg("Experiment queued")

	response := map[string]interface{}{
		"data": map[string]interface{}{
			"experiment_id": id,
			"status":        string(domain.ExperimentQueued),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}

	h.writeJSON(w, http.StatusAccepted, response)
}

// HandleListRuns handles GET /api/experiments/{id}/runs
func (h *Handler) HandleListRuns(w http.ResponseWriter, r *http.Request, id string) {
	exp, err := h.repo.GetExperiment(id)
	if err != nil {
		h.log.Error().Err(err).Str("id", id).Msg("Failed to get experiment")
		http.Error(w, "Failed to list runs", http.StatusInternalServerError)
		return
	}
	if exp == nil {
		http.Error(w, "Experiment not found", http.StatusNotFound)
		return
	}

	runs, err := h.repo.ListRuns(id)
	if err != nil {
		h.log.Error().Err(err).Str("id", id).Msg("Failed to list runs")
		http.Error(w, "Failed to list runs", http.StatusInternalServerError)
		return
	}

	if runs == nil {
		runs = []domain.Run{}
	}

	response := map[string]interface{}{
		"data": map[string]interface{}{
			"runs":  runs,
			"count": len(runs),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleGetRun handles GET /api/runs/{id}
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request, id string) {
	run, err := h.repo.GetRun(id)
	if err != nil {
		h.log.Error().Err(err).Str("id", id).Msg("Failed to get run")
		http.Error(w, "Failed to get run", http.StatusInternalServerError)
		return
	}
	if run == nil {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}

	response := map[string]interface{}{
		"data": run,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleRunHistogram handles GET /api/runs/{id}/histogram. The payload is
// served from cache.db when a fresh row exists and rebuilt (and re-cached)
// otherwise.
func (h *Handler) HandleRunHistogram(w http.ResponseWriter, r *http.Request, id string) {
	cached, err := h.cache.GetIfFresh(id)
	if err != nil {
		h.log.Warn().Err(err).Str("run_id", id).Msg("Chart cache read failed")
	}
	if cached != nil {
		response := map[string]interface{}{
			"data": json.RawMessage(cached),
			"metadata": map[string]interface{}{
				"timestamp": time.Now().Format(time.RFC3339),
				"cached":    true,
			},
		}
		h.writeJSON(w, http.StatusOK, response)
		return
	}

	run, err := h.repo.GetRun(id)
	if err != nil {
		h.log.Error().Err(err).Str("id", id).Msg("Failed to get run")
		http.Error(w, "Failed to get run", http.StatusInternalServerError)
		return
	}
	if run == nil {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}

	payload := h.charts.BuildPayload(run.Counts)
	if payload == nil {
		http.Error(w, "Run has no recorded outcomes", http.StatusNotFound)
		return
	}

	if err := h.cache.Store(id, payload, histogram.TTLChartPayload); err != nil {
		h.log.Warn().Err(err).Str("run_id", id).Msg("Chart cache write failed")
	}

	response := map[string]interface{}{
		"data": payload,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"cached":    false,
		},
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleRunEvaluation handles GET /api/runs/{id}/evaluation
func (h *Handler) HandleRunEvaluation(w http.ResponseWriter, r *http.Request, id string) {
	run, err := h.repo.GetRun(id)
	if err != nil {
		h.log.Error().Err(err).Str("id", id).Msg("Failed to get run")
		http.Error(w, "Failed to get run", http.StatusInternalServerError)
		return
	}
	if run == nil {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}
	if run.Evaluation == nil {
		http.Error(w, "Run is not evaluated yet", http.StatusNotFound)
		return
	}

	response := map[string]interface{}{
		"data": run.Evaluation,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}

	h.writeJSON(w, http.StatusOK, response)
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
