package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all experiment and run routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/experiments", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleCreate)
		r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
			h.HandleGet(w, r, chi.URLParam(r, "id"))
		})
		r.Delete("/{id}", func(w http.ResponseWriter, r *http.Request) {
			h.HandleDelete(w, r, chi.URLParam(r, "id"))
		})
		r.Post("/{id}/run", func(w http.ResponseWriter, r *http.Request) {
			h.HandleRun(w, r, chi.URLParam(r, "id"))
		})
		r.Get("/{id}/runs", func(w http.ResponseWriter, r *http.Request) {
			h.HandleListRuns(w, r, chi.URLParam(r, "id"))
		})
	})

	r.Route("/runs", func(r chi.Router) {
		r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
			h.HandleGetRun(w, r, chi.URLParam(r, "id"))
		})
		r.Get("/{id}/histogram", func(w http.ResponseWriter, r *http.Request) {
			h.HandleRunHistogram(w, r, chi.URLParam(r, "id"))
		})
		r.Get("/{id}/evaluation", func(w http.ResponseWriter, r *http.Request) {
			h.HandleRunEvaluation(w, r, chi.URLParam(r, "id"))
		})
	})
}
