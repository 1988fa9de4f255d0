package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/gwiz/internal/auth"
	"github.com/mattjoyce/gwiz/internal/dispatch"
	"github.com/mattjoyce/gwiz/internal/events"
	"github.com/mattjoyce/gwiz/internal/gcode"
	"github.com/mattjoyce/gwiz/internal/metrics"
	"github.com/mattjoyce/gwiz/internal/queue"
)

// Engine is the part of the dispatch context exposed over HTTP.
type Engine interface {
	Snapshot(ackWindow int) dispatch.Snapshot
	Enqueue(cmd gcode.Command, pos queue.Position) error
	SetRunning(run bool)
	Flush() int
}

// Config holds API server configuration
type Config struct {
	Listen string
	// APIKey is the operator bearer token; it carries every scope.
	APIKey string
	// Tokens are additional bearer tokens with limited scopes.
	Tokens []auth.TokenConfig
	// AckWindow is the default number of acknowledged entries in a snapshot.
	AckWindow int
}

// Server represents the HTTP API server
type Server struct {
	config    Config
	engine    Engine
	events    *events.Hub
	metrics   *metrics.Recorder
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance
func New(config Config, engine Engine, hub *events.Hub, rec *metrics.Recorder, logger *slog.Logger) *Server {
	if config.AckWindow <= 0 {
		config.AckWindow = 50
	}
	if hub == nil {
		hub = events.NewHub(events.DefaultRing)
	}
	if rec == nil {
		rec = metrics.New()
	}
	return &Server{
		config:    config,
		engine:    engine,
		events:    hub,
		metrics:   rec,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler { return s.setupRoutes() }

// Start starts the HTTP server (blocking)
func (s *Server) Start(ctx context.Context) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:              s.config.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// setupRoutes configures the HTTP router
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoint.
	r.Get("/healthz", s.handleHealthz)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.With(s.requireScope(auth.ScopeRead)).Get("/snapshot", s.handleSnapshot)
		r.With(s.requireScope(auth.ScopeRead)).Get("/events", s.handleEvents)
		r.With(s.requireScope(auth.ScopeRead)).Method(http.MethodGet, "/metrics", s.metrics.Handler())

		r.With(s.requireScope(auth.ScopeControl)).Post("/commands", s.handleCommands)
		r.With(s.requireScope(auth.ScopeControl)).Post("/control/{action}", s.handleControl)
	})

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
