package api

import (
	"log/slog"
	"net/http"

	"github.com/dgallion1/citewise/internal/app"
	"github.com/dgallion1/citewise/internal/config"
	"github.com/dgallion1/citewise/internal/pipeline"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server is the HTTP API server for citewise.
type Server struct {
	router       chi.Router
	app          *app.App
	orchestrator *pipeline.Orchestrator
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(a *app.App, orch *pipeline.Orchestrator, log *slog.Logger) *Server {
	s := &Server{
		app:          a,
		orchestrator: orch,
		log:          log,
		cfg:          a.Config,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		if s.cfg.APIKey != "" {
			r.Use(AuthMiddleware(s.cfg.APIKey, s.log))
		}

		r.Post("/api/ingest", s.handleIngest)
		r.Get("/api/ingest/{jobID}/status", s.handleIngestStatus)
		r.Post("/api/ingest/batch", s.handleBatchIngest)

		r.Post("/api/search", s.handleSearch)
		r.Post("/api/eval", s.handleEval)

		r.Get("/api/collections", s.handleListCollections)
		r.Delete("/api/collections/{name}", s.handleDeleteCollection)

		r.Get("/api/stats/embedding", s.handleEmbeddingStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
