// Package handlers provides HTTP handlers for dataset management.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/qfitlab/qfit/internal/domain"
	"github.com/qfitlab/qfit/internal/events"
	"github.com/qfitlab/qfit/internal/modules/datasets"
	"github.com/rs/zerolog"
)

// Handler handles dataset HTTP requests
type Handler struct {
	repo *datasets.Repository
	bus  *events.Bus
	log  zerolog.Logger
}

// NewHandler creates a new dataset handler
func NewHandler(repo *datasets.Repository, bus *events.Bus, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		bus:  bus,
		log:  log.With().Str("handler", "datasets").Logger(),
	}
}

// createRequest is the POST /api/datasets body
type createRequest struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Points      []domain.Point `json:"points"`
}

// HandleList handles GET /api/datasets
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.repo.List()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list datasets")
		http.Error(w, "Failed to list datasets", http.StatusInternalServerError)
		return
	}

	if list == nil {
		list = []domain.Dataset{}
	}

	response := map[string]interface{}{
		"data": map[string]interface{}{
			"datasets": list,
			"count":    len(list),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleCreate handles POST /api/datasets
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Name == "" {
		http.Error(w, "Dataset name is required", http.StatusBadRequest)
		return
	}
	if len(req.Points) < 2 {
		http.Error(w, "A dataset needs at least 2 points", http.StatusBadRequest)
		return
	}

	existing, err := h.repo.GetByName(req.Name)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to check dataset name")
		http.Error(w, "Failed to create dataset", http.StatusInternalServerError)
		return
	}
	if existing != nil {
		http.Error(w, "A dataset with that name already exists", http.StatusConflict)
		return
	}

	ds := domain.Dataset{
		Name:        req.Name,
		Description: req.Description,
		Points:      req.Points,
	}
	if err := h.repo.Create(&ds); err != nil {
		h.log.Error().Err(err).Str("name", req.Name).Msg("Failed to create dataset")
		http.Error(w, "Failed to create dataset", http.StatusInternalServerError)
		return
	}

	h.bus.EmitData("datasets", &events.DatasetChangedData{
		DatasetID: ds.ID,
		Action:    "created",
		Points:    len(ds.Points),
	})

	h.log.Info().Str("id", ds.ID).Str("name", ds.Name).Msg("Dataset created")

	response := map[string]interface{}{
		"data": ds,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}

	h.writeJSON(w, http.StatusCreated, response)
}

// HandleGet handles GET /api/datasets/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request, id string) {
	ds, err := h.repo.GetByID(id)
	if err != nil {
		h.log.Error().Err(err).Str("id", id).Msg("Failed to get dataset")
		http.Error(w, "Failed to get dataset", http.StatusInternalServerError)
		return
	}
	if ds == nil {
		http.Error(w, "Dataset not found", http.StatusNotFound)
		return
	}

	response := map[string]interface{}{
		"data": ds,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleDelete handles DELETE /api/datasets/{id}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request, id string) {
	ds, err := h.repo.GetByID(id)
	if err != nil {
		h.log.Error().Err(err).Str("id", id).Msg("Failed to get dataset")
		http.Error(w, "Failed to delete dataset", http.StatusInternalServerError)
		return
	}
	if ds == nil {
		http.Error(w, "Dataset not found", http.StatusNotFound)
		return
	}

	if err := h.repo.Delete(id); err != nil {
		h.log.Error().Err(err).Str("id", id).Msg("Failed to delete dataset")
		http.Error(w, "Failed to delete dataset", http.StatusInternalServerError)
		return
	}

	h.bus.EmitData("datasets", &events.DatasetChangedData{
		DatasetID: id,
		Action:    "deleted",
	})

	h.log.Info().Str("id", id).Str("name", ds.Name).Msg("Dataset deleted")

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

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
