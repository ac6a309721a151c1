// Package handlers provides HTTP handlers for runtime settings.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/qfitlab/qfit/internal/events"
	"github.com/qfitlab/qfit/internal/modules/settings"
	"github.com/rs/zerolog"
)

// Handler handles settings HTTP requests
type Handler struct {
	repo *settings.Repository
	bus  *events.Bus
	log  zerolog.Logger
}

// NewHandler creates a new settings handler
func NewHandler(repo *settings.Repository, bus *events.Bus, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		bus:  bus,
		log:  log.With().Str("handler", "settings").Logger(),
	}
}

// updateRequest is the PUT /api/settings/{key} body. Value accepts JSON
// strings, numbers and booleans; everything is stored as a string.
type updateRequest struct {
	Value interface{} `json:"value"`
}

// HandleGetAll handles GET /api/settings
func (h *Handler) HandleGetAll(w http.ResponseWriter, r *http.Request) {
	all, err := h.repo.GetAll()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get settings")
		http.Error(w, "Failed to get settings", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"data": map[string]interface{}{
			"settings": all,
			"count":    len(all),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleUpdate handles PUT /api/settings/{key}
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request, key string) {
	if key == "" {
		http.Error(w, "Setting key is required", http.StatusBadRequest)
		return
	}

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	value, ok := stringifyValue(req.Value)
	if !ok {
		http.Error(w, "Value must be a string, number or boolean", http.StatusBadRequest)
		return
	}

	if err := settings.Validate(key, value); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.repo.Set(key, value, nil); err != nil {
		h.log.Error().Err(err).Str("key", key).Msg("Failed to update setting")
		http.Error(w, "Failed to update setting", http.StatusInternalServerError)
		return
	}

	h.bus.EmitData("settings", &events.SettingsChangedData{
		Key:   key,
		Value: value,
	})

	h.log.Info().Str("key", key).Str("value", value).Msg("Setting updated")

	response := map[string]interface{}{
		"data": map[string]interface{}{
			"key":   key,
			"value": value,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}

	h.writeJSON(w, http.StatusOK, response)
}

// stringifyValue flattens a decoded JSON scalar to its stored string form.
func stringifyValue(v interface{}) (string, bool) {
	switch value := v.(type) {
	case string:
		return value, true
	case float64:
		// JSON numbers decode as float64; integral values are stored
		// without a trailing fraction.
		if value == float64(int64(value)) {
			return strconv.FormatInt(int64(value), 10), true
		}
		return strconv.FormatFloat(value, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(value), true
	default:
		return "", false
	}
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
