// Package api exposes workflow management, execution, and cloak
// administration over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/drover/cloak"
	"github.com/hazyhaar/drover/export"
	"github.com/hazyhaar/drover/store"
	"github.com/hazyhaar/drover/workflow"
)

// Config wires the Service's collaborators.
type Config struct {
	Store  *store.Store
	Engine *workflow.Engine
	Policy *cloak.Policy

	// Exporter, when set, writes every finished run to disk as well.
	Exporter *export.Exporter

	Logger *slog.Logger
}

// Service is the HTTP facade.
type Service struct {
	store    *store.Store
	engine   *workflow.Engine
	policy   *cloak.Policy
	exporter *export.Exporter
	logger   *slog.Logger
}

// New creates a Service from cfg.
func New(cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		store:    cfg.Store,
		engine:   cfg.Engine,
		policy:   cfg.Policy,
		exporter: cfg.Exporter,
		logger:   cfg.Logger,
	}
}

// Router builds the chi router with all routes mounted.
func (s *Service) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/workflows", func(r chi.Router) {
			r.Post("/", s.handleCreateWorkflow)
			r.Get("/", s.handleListWorkflows)
			r.Get("/{id}", s.handleGetWorkflow)
			r.Delete("/{id}", s.handleDeleteWorkflow)
			r.Put("/{id}/steps", s.handleReplaceSteps)
			r.Post("/{id}/run", s.handleRunWorkflow)
			r.Get("/{id}/runs", s.handleListRuns)
		})

		r.Get("/runs/{id}", s.handleGetRun)

		r.Route("/cloak", func(r chi.Router) {
			r.Get("/", s.handleGetCloak)
			r.Post("/user-agents", s.handleAddUserAgent)
			r.Delete("/user-agents", s.handleRemoveUserAgent)
			r.Post("/proxies", s.handleAddProxy)
			r.Delete("/proxies", s.handleRemoveProxy)
			r.Put("/delay", s.handleSetDelay)
		})
	})

	return r
}

func (s *Service) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("api: encode response", "error", err)
	}
}

// writeError maps store and cloak sentinels onto HTTP statuses.
func (s *Service) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, cloak.ErrPoolExhausted):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		s.logger.Error("api: internal error", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
