// Package api exposes the HTTP interface for the stock tracker service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gpuwatch/gpu-stock-tracker/internal/catalog"
	"github.com/gpuwatch/gpu-stock-tracker/internal/metrics"
	"github.com/gpuwatch/gpu-stock-tracker/internal/queue"
	"github.com/gpuwatch/gpu-stock-tracker/internal/stock"
)

// SnapshotSource exposes the latest aggregated availability snapshot.
type SnapshotSource interface {
	Latest() (stock.Snapshot, time.Time, bool)
}

// Discoverer runs one catalog discovery walk.
type Discoverer interface {
	Run(ctx context.Context) (catalog.Result, error)
}

// Server wires HTTP handlers to the queue, stores and discovery service.
type Server struct {
	router       chi.Router
	trigger      *queue.Trigger
	registry     stock.ProductRegistry
	availability stock.AvailabilityStore
	jobLog       stock.JobLog
	snapshots    SnapshotSource
	discovery    Discoverer
	logger       *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	trigger *queue.Trigger,
	registry stock.ProductRegistry,
	availability stock.AvailabilityStore,
	jobLog stock.JobLog,
	snapshots SnapshotSource,
	discovery Discoverer,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		trigger:      trigger,
		registry:     registry,
		availability: availability,
		jobLog:       jobLog,
		snapshots:    snapshots,
		discovery:    discovery,
		logger:       logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/sweeps", func(r chi.Router) {
			r.Post("/", s.submitSweep)
			r.Get("/", s.listSweeps)
			r.Get("/{job_id}", s.getSweep)
		})
		r.Get("/jobs", s.listScrapeJobs)
		r.Route("/availability", func(r chi.Router) {
			r.Get("/", s.getSnapshot)
			r.Get("/{sku}", s.getAvailabilityBySKU)
		})
		r.Route("/products", func(r chi.Router) {
			r.Get("/", s.listProducts)
			r.Post("/", s.createProduct)
			r.Post("/discover", s.discoverProducts)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// Listing products exercises the backing store, so readiness tracks it.
	if _, err := s.registry.List(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) submitSweep(w http.ResponseWriter, r *http.Request) {
	job, err := s.trigger.Submit(r.Context())
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) listSweeps(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"sweeps": s.trigger.Jobs()})
}

func (s *Server) getSweep(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, ok := s.trigger.Job(jobID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "sweep not found")
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

func (s *Server) listScrapeJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.jobLog.ListRecent(r.Context(), 10)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list scrape jobs")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *Server) getSnapshot(w http.ResponseWriter, _ *http.Request) {
	snapshot, taken, ok := s.snapshots.Latest()
	if !ok || snapshot.Empty() {
		s.writeJSON(w, http.StatusOK, map[string]any{
			"message":  "no stock available",
			"snapshot": stock.Snapshot{},
		})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"snapshot": snapshot,
		"taken_at": taken,
	})
}

func (s *Server) getAvailabilityBySKU(w http.ResponseWriter, r *http.Request) {
	sku := chi.URLParam(r, "sku")
	province := strings.TrimSpace(r.URL.Query().Get("province"))
	location := strings.TrimSpace(r.URL.Query().Get("location"))

	records, err := s.availability.FindBySKUAndLocation(r.Context(), sku, province, location)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to query availability")
		return
	}
	if records == nil {
		records = []stock.AvailabilityRecord{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"sku": sku, "records": records})
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.registry.List(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list products")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

type createProductRequest struct {
	URL  string   `json:"url"`
	SKU  string   `json:"sku"`
	MSRP *float64 `json:"msrp"`
}

func (s *Server) createProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	product, err := s.registry.Create(r.Context(), req.URL, req.SKU, req.MSRP)
	switch {
	case errors.Is(err, stock.ErrInvalidInput):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, stock.ErrDuplicateSKU):
		s.writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, "failed to create product")
	default:
		s.writeJSON(w, http.StatusCreated, product)
	}
}

func (s *Server) discoverProducts(w http.ResponseWriter, r *http.Request) {
	result, err := s.discovery.Run(r.Context())
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("panic", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
