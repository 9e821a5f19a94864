// Package api exposes the hex viewer over HTTP: open files, request dumps,
// inspect history and follow lifecycle events as SSE.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/hexview/internal/auth"
	"github.com/mattjoyce/hexview/internal/events"
	"github.com/mattjoyce/hexview/internal/hexdump"
	"github.com/mattjoyce/hexview/internal/history"
	"github.com/mattjoyce/hexview/internal/session"
)

// Viewer is the session layer the handlers drive.
type Viewer interface {
	Open(ctx context.Context, path string) (session.Snapshot, bool, error)
	Activate(ctx context.Context, id string) (session.Snapshot, error)
	Update(ctx context.Context, id string, opts hexdump.Options) (session.Snapshot, error)
	Close(id string) error
	Get(id string) (session.Snapshot, error)
	List() []session.Snapshot
	Stats() (open, generating int)
}

// HistoryReader lists recent generations.
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]history.Entry, error)
}

// Config holds API server configuration
type Config struct {
	Listen string
	// APIKey is a single bearer token with full access.
	APIKey string
	// Tokens is an optional list of scoped bearer tokens.
	Tokens []auth.TokenConfig
}

// Server represents the HTTP API server
type Server struct {
	config    Config
	viewer    Viewer
	history   HistoryReader
	events    *events.Hub
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance. history may be nil.
func New(config Config, viewer Viewer, history HistoryReader, hub *events.Hub, logger *slog.Logger) *Server {
	if hub == nil {
		hub = events.NewHub(256)
	}
	return &Server{
		config:    config,
		viewer:    viewer,
		history:   history,
		events:    hub,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Start starts the HTTP server and blocks until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:        s.config.Listen,
		Handler:     s.setupRoutes(),
		ReadTimeout: 10 * time.Second,
		// Dumps of large files and SSE streams outlive a short write timeout.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
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

// Handler returns the configured router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// setupRoutes configures the HTTP router
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoints.
	r.Get("/healthz", s.handleHealthz)
	r.Get("/openapi.json", s.handleOpenAPI)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.With(s.requireScopes(auth.ScopeHexRead)).Get("/sessions", s.handleListSessions)
		r.With(s.requireScopes(auth.ScopeHexRead)).Get("/sessions/{id}", s.handleGetSession)
		r.With(s.requireScopes(auth.ScopeHexRead)).Get("/history", s.handleHistory)

		r.With(s.requireScopes(auth.ScopeHexWrite)).Post("/open", s.handleOpen)
		r.With(s.requireScopes(auth.ScopeHexWrite)).Post("/sessions/{id}/activate", s.handleActivate)
		r.With(s.requireScopes(auth.ScopeHexWrite)).Post("/sessions/{id}/dump", s.handleDump)
		r.With(s.requireScopes(auth.ScopeHexWrite)).Delete("/sessions/{id}", s.handleCloseSession)

		r.With(s.requireScopes(auth.ScopeEvents)).Get("/events", s.handleEvents)
	})

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
