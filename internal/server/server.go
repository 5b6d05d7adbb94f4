package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/3leaps/dynastore/internal/server/handlers"
	"github.com/3leaps/dynastore/internal/server/middleware"
)

// Server is the admin HTTP server exposing health, readiness, and
// store statistics. It carries no scheduling logic.
type Server struct {
	host    string
	port    int
	version string

	health *handlers.HealthManager
	stats  handlers.StatsFunc

	httpServer *http.Server
}

// Option customizes server construction.
type Option func(*Server)

// WithVersion sets the version reported by /health and /version.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithHealthChecker registers a named dependency health check.
func WithHealthChecker(name string, c handlers.HealthChecker) Option {
	return func(s *Server) { s.health.RegisterChecker(name, c) }
}

// WithStats sets the /stats payload producer.
func WithStats(fn handlers.StatsFunc) Option {
	return func(s *Server) { s.stats = fn }
}

// New creates an admin server bound to host:port.
func New(host string, port int, opts ...Option) *Server {
	s := &Server{
		host:    host,
		port:    port,
		version: "dev",
		health:  handlers.NewHealthManager("dev"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.health.SetVersion(s.version)
	return s
}

// Port returns the configured listen port.
func (s *Server) Port() int { return s.port }

// Handler builds the router. Exposed for tests.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Recovery)

	r.NotFound(errorHandler(http.StatusNotFound, "NOT_FOUND", "resource not found"))
	r.MethodNotAllowed(errorHandler(http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed"))

	r.Get("/health", s.health.HealthHandler)
	r.Get("/health/ready", handlers.ReadinessHandler)
	r.Get("/version", s.versionHandler)
	if s.stats != nil {
		r.Get("/stats", handlers.StatsHandler(s.stats))
	}
	return r
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start(readTimeout, writeTimeout, idleTimeout time.Duration) error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.host, s.port),
		Handler:      s.Handler(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) versionHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"version": s.version})
}

func errorHandler(code int, errCode, message string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"code":    errCode,
				"message": message,
			},
		})
	}
}
