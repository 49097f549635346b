// Package server provides a lightweight HTTP status server that exposes the
// live crowd state, analytics and a simple dashboard.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/crowdpulse/crowdfeed/internal/analytics"
	"github.com/crowdpulse/crowdfeed/internal/constants"
	"github.com/crowdpulse/crowdfeed/internal/livestate"
	"github.com/crowdpulse/crowdfeed/internal/logger"
	"github.com/crowdpulse/crowdfeed/internal/realtime"
)

// Source is what the server reads from. The monitor implements it.
type Source interface {
	Store() *livestate.Store
	FeedState() realtime.State
	FeedStats() realtime.Stats
	Predict(ctx context.Context, areaID int64) (analytics.Prediction, error)
}

// StatusServer serves the dashboard and JSON API endpoints.
type StatusServer struct {
	addr    string
	log     *logger.Logger
	srv     *http.Server
	handler http.Handler
	started time.Time

	mu     sync.RWMutex
	source Source
}

// NewStatusServer creates a new StatusServer bound to the given address.
func NewStatusServer(addr string, log *logger.Logger) *StatusServer {
	if log == nil {
		log = logger.Nop()
	}
	s := &StatusServer{
		addr:    addr,
		log:     log.With("server"),
		started: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /", s.handleDashboard)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/areas", s.handleAreas)
	mux.HandleFunc("GET /api/areas/{id}", s.handleArea)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/alerts", s.handleAlerts)
	mux.HandleFunc("GET /api/scans", s.handleScans)
	mux.HandleFunc("GET /api/analytics/heatmap", s.handleHeatmap)
	mux.HandleFunc("GET /api/analytics/prediction/{id}", s.handlePrediction)

	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticFS)))

	s.handler = withLogging(s.log, mux)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return context.Background()
		},
	}

	return s
}

// SetSource attaches the live state provider. Thread-safe.
func (s *StatusServer) SetSource(src Source) {
	s.mu.Lock()
	s.source = src
	s.mu.Unlock()
}

func (s *StatusServer) getSource() Source {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.source
}

// Handler returns the routed handler, logging included.
func (s *StatusServer) Handler() http.Handler { return s.handler }

// Run starts the HTTP server and blocks until the context is cancelled.
// It performs graceful shutdown when the context is done.
func (s *StatusServer) Run(ctx context.Context) error {
	s.log.Info("Status server starting", "addr", s.addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("status server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.log.Info("Status server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.DefaultGracefulShutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("status server shutdown: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func withLogging(log *logger.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		log.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.statusCode,
			"duration", time.Since(start).String(),
		)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code before writing it.
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
