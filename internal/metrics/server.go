package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/m3rciful/systembot/core/logger"
)

// Server serves /metrics and /healthz.
type Server struct {
	httpServer *http.Server
	done       chan error
}

// NewRouter returns the metrics HTTP handler.
func NewRouter() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// NewServer prepares a server bound to listen.
func NewServer(listen string) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              listen,
			Handler:           NewRouter(),
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
}

// Start binds the listener and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("metrics: listen %s: %w", s.httpServer.Addr, err)
	}
	s.done = make(chan error, 1)
	logger.Info(ctx, "metrics", "listen", slog.String("addr", ln.Addr().String()))
	go func() {
		err := s.httpServer.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.done <- err
	}()
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.done == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("metrics: shutdown: %w", err)
	}
	if err := <-s.done; err != nil {
		return fmt.Errorf("metrics: serve: %w", err)
	}
	logger.Info(ctx, "metrics", "stopped", slog.String("status", "ok"))
	return nil
}
