// Package server provides the HTTP server and routing for qfit.
package server

import (
	"context"
	"fmt"
	"io/fs"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/qfitlab/qfit/internal/config"
	"github.com/qfitlab/qfit/internal/di"
	datasethandlers "github.com/qfitlab/qfit/internal/modules/datasets/handlers"
	experimenthandlers "github.com/qfitlab/qfit/internal/modules/experiments/handlers"
	settingshandlers "github.com/qfitlab/qfit/internal/modules/settings/handlers"
	"github.com/qfitlab/qfit/internal/work"
	"github.com/qfitlab/qfit/pkg/embedded"
)

// Config holds server configuration.
type Config struct {
	Log       zerolog.Logger
	Config    *config.Config
	Port      int
	DevMode   bool
	Container *di.Container // DI container with all services
}

// Server represents the HTTP server.
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	cfg            *config.Config
	container      *di.Container
	systemHandlers *SystemHandlers
	startedAt      time.Time
}

// New creates a new HTTP server.
func New(cfg Config) *Server {
	// Register common MIME types to ensure correct Content-Type headers
	_ = mime.AddExtensionType(".js", "application/javascript")
	_ = mime.AddExtensionType(".mjs", "application/javascript")
	_ = mime.AddExtensionType(".css", "text/css")

	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		cfg:       cfg.Config,
		container: cfg.Container,
		startedAt: time.Now(),
	}

	s.systemHandlers = NewSystemHandlers(SystemHandlersConfig{
		Log:       cfg.Log,
		Config:    cfg.Config,
		Container: cfg.Container,
		StartedAt: s.startedAt,
	})

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// Timeout
	s.router.Use(middleware.Timeout(60 * time.Second))

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	// Health check (before SPA routing)
	s.router.Get("/health", s.handleHealth)

	// API routes
	s.router.Route("/api", func(r chi.Router) {
		// Unified events stream (SSE) - registered first so the
		// streaming handler is never wrapped by response buffering.
		eventsStreamHandler := NewEventsStreamHandler(s.container.EventBus, s.log)
		r.Get("/events/stream", eventsStreamHandler.ServeHTTP)

		// System monitoring and manual job triggers
		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.systemHandlers.HandleSystemStatus)
			r.Get("/memory", s.systemHandlers.HandleMemory)
			r.Get("/databases", s.systemHandlers.HandleDatabaseStats)
			r.Get("/disk", s.systemHandlers.HandleDiskUsage)
			r.Get("/jobs", s.systemHandlers.HandleJobsStatus)
		})
		r.Get("/backends", s.systemHandlers.HandleBackends)
		r.Post("/jobs/{type}", func(w http.ResponseWriter, req *http.Request) {
			s.systemHandlers.HandleTriggerJob(w, req, chi.URLParam(req, "type"))
		})

		// Dataset module
		datasetHandler := datasethandlers.NewHandler(s.container.DatasetRepo, s.container.EventBus, s.log)
		datasetHandler.RegisterRoutes(r)

		// Experiment module (experiments, runs, histograms, evaluations)
		experimentHandler := experimenthandlers.NewHandler(
			s.container.ExperimentRepo,
			s.container.DatasetRepo,
			s.container.ChartService,
			s.container.ChartCache,
			s.container.EventBus,
			s.cfg,
			s.log,
		)
		experimentHandler.RegisterRoutes(r)

		// Settings module
		settingsHandler := settingshandlers.NewHandler(s.container.SettingsRepo, s.container.EventBus, s.log)
		settingsHandler.RegisterRoutes(r)

		// Work processor introspection and manual execution
		workHandlers := work.NewHandlers(s.container.WorkProcessor, s.container.WorkRegistry, s.log)
		workHandlers.RegisterRoutes(r)
	})

	// Static dashboard (embedded single page)
	s.setupStaticRoutes()
}

// setupStaticRoutes serves the embedded dashboard at /.
func (s *Server) setupStaticRoutes() {
	staticFS, err := fs.Sub(embedded.Files, "static")
	if err != nil {
		s.log.Error().Err(err).Msg("Embedded dashboard unavailable")
		return
	}

	fileServer := http.FileServer(http.FS(staticFS))
	s.router.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		// API 404s must stay JSON, not fall through to the SPA page.
		if strings.HasPrefix(r.URL.Path, "/api/") {
			http.NotFound(w, r)
			return
		}
		fileServer.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs requests with zerolog
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.log.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("Request")
		}()

		next.ServeHTTP(ww, r)
	})
}

// Start starts the HTTP server. Blocks until the server stops.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Router exposes the chi router for tests.
func (s *Server) Router() http.Handler {
	return s.router
}
