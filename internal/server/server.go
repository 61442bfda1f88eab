// Package server exposes batch execution and rate window inspection
// over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/govbatch/govbatch/internal/config"
	"github.com/govbatch/govbatch/internal/core/engine"
	"github.com/govbatch/govbatch/internal/core/store"
	apperrors "github.com/govbatch/govbatch/internal/errors"
	"github.com/govbatch/govbatch/internal/observability"
	"github.com/govbatch/govbatch/internal/server/handlers"
	servermw "github.com/govbatch/govbatch/internal/server/middleware"
)

// Deps carries the collaborators the server routes dispatch to. Store
// may be nil, in which case the audit endpoints report the store as
// unconfigured.
type Deps struct {
	Runner   *engine.Runner
	Tracker  *engine.Tracker
	Store    *store.Store
	Defaults config.BatchConfig
}

// Server represents the HTTP server.
type Server struct {
	router *chi.Mux
	server *http.Server
	cfg    config.ServerConfig
}

// New creates a new HTTP server instance.
func New(cfg config.ServerConfig, deps Deps) *Server {
	r := chi.NewRouter()

	// Middleware order: RealIP, then request ID for correlation, then
	// panic recovery outermost around the handlers.
	r.Use(middleware.RealIP)
	r.Use(servermw.RequestID)
	r.Use(servermw.Recovery)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		apperrors.RespondWithEnvelope(w, req, apperrors.NewNotFoundError("The requested resource was not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		apperrors.RespondWithEnvelope(w, req, apperrors.NewMethodNotAllowedError("The requested method is not allowed for this resource"))
	})

	s := &Server{
		router: r,
		cfg:    cfg,
	}
	s.registerRoutes(deps)

	return s
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	if observability.ServerLogger != nil {
		observability.ServerLogger.Info("Starting HTTP server",
			zap.String("host", s.cfg.Host),
			zap.Int("port", s.cfg.Port),
			zap.String("addr", addr))
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if observability.ServerLogger != nil {
		observability.ServerLogger.Info("Shutting down HTTP server")
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the underlying router for testing.
func (s *Server) Handler() http.Handler {
	return s.router
}

// registerRoutes mounts all HTTP routes.
func (s *Server) registerRoutes(deps Deps) {
	health := handlers.NewHealthManager()
	if deps.Store != nil {
		health.RegisterChecker("store", storeChecker{deps.Store})
	}

	batches := &handlers.BatchHandler{
		Runner:   deps.Runner,
		Store:    deps.Store,
		Defaults: deps.Defaults,
	}
	rates := &handlers.RateLimitHandler{
		Tracker: deps.Tracker,
		Store:   deps.Store,
	}

	s.router.Get("/health", health.Handler)
	s.router.Get("/version", handlers.VersionHandler)

	s.router.Route("/v1", func(r chi.Router) {
		r.Post("/batches", batches.Execute)
		r.Get("/batches", batches.List)
		r.Get("/batches/{id}", batches.Get)
		r.Get("/rate-limits", rates.Snapshot)
		r.Get("/rate-limits/history", rates.History)
	})
}

// storeChecker adapts the store to the health checker interface.
type storeChecker struct {
	store *store.Store
}

func (c storeChecker) CheckHealth(ctx context.Context) error {
	return c.store.DB.PingContext(ctx)
}
