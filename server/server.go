// Package server provides HTTP server management and lifecycle handling.
// It includes middleware configuration, route registration and graceful
// shutdown.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/giygas/misalud-api/config"
	"github.com/giygas/misalud-api/interfaces"
	"github.com/giygas/misalud-api/logging"
	"github.com/giygas/misalud-api/metrics"
)

// Server represents the HTTP server
type Server struct {
	server  *http.Server
	router  chi.Router
	handler interfaces.HTTPHandler
	limiter *RateLimiter
	config  *config.Config
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, handler interfaces.HTTPHandler) *Server {
	router := chi.NewRouter()

	s := &Server{
		server: &http.Server{
			Handler:           router,
			Addr:              cfg.Address + ":" + cfg.Port,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      writeTimeout(cfg),
			IdleTimeout:       60 * time.Second,
		},
		router:  router,
		handler: handler,
		limiter: NewRateLimiter(30 * time.Minute),
		config:  cfg,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// writeTimeout leaves room for every backend attempt of an analysis plus
// the registry lookups that follow it.
func writeTimeout(cfg *config.Config) time.Duration {
	attempts := max(len(cfg.Backends), 1)
	return time.Duration(attempts)*cfg.BackendTimeout + 30*time.Second
}

// setupMiddleware configures all middleware
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	if s.config.Env == config.EnvProduction {
		s.router.Use(BlockDirectAccessMiddleware) // before RealIPMiddleware rewrites RemoteAddr
	}
	s.router.Use(RealIPMiddleware)
	s.router.Use(logging.RequestLogger(logging.Logger))
	s.router.Use(middleware.RedirectSlashes)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5, "application/json"))
	s.router.Use(metrics.Metrics)
	s.router.Use(RequestSizeMiddleware(s.config.MaxRequestBody, s.config.MaxHeaderSize))
	s.router.Use(s.limiter.Middleware)
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Route("/v1", func(r chi.Router) {
		r.Post("/documents/analyze", s.handler.AnalyzeDocument)
		r.Post("/medications/enrich", s.handler.EnrichMedications)
		r.Get("/medications/match/{name}", s.handler.MatchMedication)
		r.Post("/interactions", s.handler.CheckInteractions)
	})

	s.router.Get("/health", s.handler.HealthCheck)
	s.router.Handle("/metrics", promhttp.Handler())
}

// Router exposes the configured router.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start serves until Shutdown is called. A closed server is not an error.
func (s *Server) Start() error {
	logging.Info("Starting server", "address", s.server.Addr, "env", s.config.Env.String())
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down server...")
	defer s.limiter.Stop()

	if err := s.server.Shutdown(ctx); err != nil {
		logging.Error("Server forced to shutdown", "error", err)
		if err := s.server.Close(); err != nil {
			logging.Error("Server close error", "error", err)
			return err
		}
	}

	logging.Info("Server shutdown complete")
	return nil
}
