// Package server exposes dispatcher telemetry over HTTP for the demo
// daemon. The dispatcher itself stays an in-process library; nothing
// here feeds work into it.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/me/lazyjs/internal/dispatch"
)

// Server serves health and stats endpoints for one dispatcher.
type Server struct {
	router     chi.Router
	logger     *slog.Logger
	dispatcher *dispatch.Dispatcher
	startTime  time.Time
	httpServer *http.Server
}

// New creates a server with all routes registered.
func New(d *dispatch.Dispatcher, logger *slog.Logger) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		logger:     logger.With("component", "server"),
		dispatcher: d,
		startTime:  time.Now(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(requestIDMiddleware)
	s.router.Use(loggingMiddleware(s.logger))
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/stats", s.handleStats)
}

// Handler returns the HTTP handler (useful for tests).
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() { errCh <- s.httpServer.ListenAndServe() }()
	s.logger.Info("listening", "addr", addr)
	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}
