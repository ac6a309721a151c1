package work

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handlers exposes the processor over HTTP: inspection of registered work
// types and manual execution for debugging stuck work.
type Handlers struct {
	processor *Processor
	registry  *Registry
	log       zerolog.Logger
}

// NewHandlers creates the HTTP handlers for the work processor.
func NewHandlers(processor *Processor, registry *Registry, log zerolog.Logger) *Handlers {
	return &Handlers{
		processor: processor,
		registry:  registry,
		log:       log.With().Str("handler", "work").Logger(),
	}
}

// RegisterRoutes registers the work management routes.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Route("/work", func(r chi.Router) {
		r.Get("/types", h.HandleListTypes)
		r.Post("/trigger", h.HandleTrigger)
		r.Post("/{workType}/execute", func(w http.ResponseWriter, req *http.Request) {
			h.HandleExecute(w, req, chi.URLParam(req, "workType"), "")
		})
		r.Post("/{workType}/{subject}/execute", func(w http.ResponseWriter, req *http.Request) {
			h.HandleExecute(w, req, chi.URLParam(req, "workType"), chi.URLParam(req, "subject"))
		})
	})
}

// HandleListTypes returns all registered work types in scan order.
func (h *Handlers) HandleListTypes(w http.ResponseWriter, r *http.Request) {
	types := h.registry.ByPriority()

	list := make([]map[string]interface{}, 0, len(types))
	for _, wt := range types {
		list = append(list, map[string]interface{}{
			"id":         wt.ID,
			"priority":   wt.Priority.String(),
			"depends_on": wt.DependsOn,
			"pending":    len(wt.FindSubjects()),
		})
	}

	response := map[string]interface{}{
		"data": list,
		"metadata": map[string]interface{}{
			"count":     len(list),
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleExecute synchronously runs one work item, bypassing priority and
// dependency checks. The response waits for the execution to finish.
func (h *Handlers) HandleExecute(w http.ResponseWriter, r *http.Request, workType, subject string) {
	if !h.registry.Has(workType) {
		http.Error(w, "Unknown work type", http.StatusNotFound)
		return
	}

	if err := h.processor.ExecuteNow(workType, subject); err != nil {
		if strings.Contains(err.Error(), "already in flight") {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		h.log.Error().Err(err).Str("work_type", workType).Str("subject", subject).Msg("Manual execution failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data := map[string]interface{}{
		"work_type": workType,
		"status":    "completed",
	}
	if subject != "" {
		data["subject"] = subject
	}

	response := map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleTrigger wakes the processor to scan for pending work.
func (h *Handlers) HandleTrigger(w http.ResponseWriter, r *http.Request) {
	h.processor.Trigger()

	response := map[string]interface{}{
		"data": map[string]string{"status": "triggered"},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}

	h.writeJSON(w, http.StatusOK, response)
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
