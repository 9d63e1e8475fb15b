// Package http exposes the service's operational endpoints: health,
// readiness, Prometheus metrics, and per-unit backfill progress.
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/storm-archive-backfill/internal/domain"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// ProgressSource reads the latest progress row for one backfill unit.
type ProgressSource interface {
	LatestProgress(ctx context.Context, region string, year int, month time.Month) (*domain.ProgressRecord, error)
}

// Server exposes health, readiness, metrics, and progress HTTP endpoints.
type Server struct {
	httpServer *http.Server
	progress   ProgressSource
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics, and
// /progress routes. progress may be nil; the route then answers 404.
func NewServer(addr string, ready ReadinessChecker, progress ProgressSource, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		progress: progress,
		logger:   logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /progress/{region}/{year}/{month}", s.handleProgress)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handleProgress reports the most recent pipeline step for one
// (region, year, month) unit.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	if s.progress == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "progress tracking not configured"})
		return
	}

	region := r.PathValue("region")
	year, yearErr := strconv.Atoi(r.PathValue("year"))
	month, monthErr := strconv.Atoi(r.PathValue("month"))
	if region == "" || yearErr != nil || monthErr != nil || month < 1 || month > 12 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "expected /progress/{region}/{year}/{month}"})
		return
	}

	rec, err := s.progress.LatestProgress(r.Context(), region, year, time.Month(month))
	if err != nil {
		s.logger.Error("progress lookup failed", "region", region, "year", year, "month", month, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "progress lookup failed"})
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unit has no recorded progress"})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort health response
}
