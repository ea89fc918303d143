// Package httpadapter serves health, metrics and the read-only event API.
package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/disaster-alert-service/internal/domain"
	"github.com/couchcryptid/disaster-alert-service/internal/query"
	"github.com/couchcryptid/disaster-alert-service/internal/store"
)

// Queries is the read side the event routes call.
type Queries interface {
	Near(ctx context.Context, center domain.GeoPoint, radiusMeters float64, f store.Filter, limit int) (query.NearResult, error)
	Range(ctx context.Context, start, end time.Time) ([]domain.Event, error)
	ByType(ctx context.Context, t domain.Type) ([]domain.Event, error)
	BySeverity(ctx context.Context, level domain.Severity) ([]domain.Event, error)
	Recent(ctx context.Context, limit int) ([]domain.Event, error)
	Scoped(ctx context.Context) (query.ScopedResult, error)
	Stats(ctx context.Context) (query.Overview, error)
}

// Server exposes health, readiness, metrics and event query endpoints.
type Server struct {
	httpServer *http.Server
	queries    Queries
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and the
// /v1/events routes.
func NewServer(addr string, ready sharedobs.ReadinessChecker, queries Queries, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		queries: queries,
		logger:  logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /v1/events/recent", s.handleRecent)
	mux.HandleFunc("GET /v1/events/near", s.handleNear)
	mux.HandleFunc("GET /v1/events/range", s.handleRange)
	mux.HandleFunc("GET /v1/events/type/{type}", s.handleByType)
	mux.HandleFunc("GET /v1/events/severity/{level}", s.handleBySeverity)
	mux.HandleFunc("GET /v1/events/scoped", s.handleScoped)
	mux.HandleFunc("GET /v1/events/stats", s.handleStats)

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

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit")
	if err != nil {
		badRequest(w, err)
		return
	}
	events, err := s.queries.Recent(r.Context(), limit)
	s.respond(w, r, events, err)
}

func (s *Server) handleNear(w http.ResponseWriter, r *http.Request) {
	lat, err := floatParam(r, "lat", true)
	if err != nil {
		badRequest(w, err)
		return
	}
	lon, err := floatParam(r, "lon", true)
	if err != nil {
		badRequest(w, err)
		return
	}
	radius, err := floatParam(r, "radius", false)
	if err != nil {
		badRequest(w, err)
		return
	}
	limit, err := intParam(r, "limit")
	if err != nil {
		badRequest(w, err)
		return
	}

	var f store.Filter
	for _, name := range r.URL.Query()["type"] {
		t, err := domain.ParseType(name)
		if err != nil {
			badRequest(w, err)
			return
		}
		f.Types = append(f.Types, t)
	}
	if v := r.URL.Query().Get("minSeverity"); v != "" {
		if f.MinSeverity, err = domain.ParseSeverity(v); err != nil {
			badRequest(w, err)
			return
		}
	}

	result, err := s.queries.Near(r.Context(), domain.GeoPoint{Lon: lon, Lat: lat}, radius, f, limit)
	s.respond(w, r, result, err)
}

func (s *Server) handleRange(w http.ResponseWriter, r *http.Request) {
	start, err := timeParam(r, "start")
	if err != nil {
		badRequest(w, err)
		return
	}
	end, err := timeParam(r, "end")
	if err != nil {
		badRequest(w, err)
		return
	}
	events, err := s.queries.Range(r.Context(), start, end)
	s.respond(w, r, events, err)
}

func (s *Server) handleByType(w http.ResponseWriter, r *http.Request) {
	events, err := s.queries.ByType(r.Context(), domain.Type(r.PathValue("type")))
	s.respond(w, r, events, err)
}

func (s *Server) handleBySeverity(w http.ResponseWriter, r *http.Request) {
	level, err := domain.ParseSeverity(r.PathValue("level"))
	if err != nil {
		badRequest(w, err)
		return
	}
	events, err := s.queries.BySeverity(r.Context(), level)
	s.respond(w, r, events, err)
}

func (s *Server) handleScoped(w http.ResponseWriter, r *http.Request) {
	result, err := s.queries.Scoped(r.Context())
	s.respond(w, r, result, err)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	overview, err := s.queries.Stats(r.Context())
	s.respond(w, r, overview, err)
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, v any, err error) {
	switch {
	case err == nil:
		if events, ok := v.([]domain.Event); ok && events == nil {
			v = []domain.Event{}
		}
		writeJSON(w, http.StatusOK, v)
	case errors.Is(err, query.ErrInvalidArgument):
		badRequest(w, err)
	default:
		s.logger.Error("event query failed", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func badRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
}

func intParam(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return n, nil
}

func floatParam(r *http.Request, name string, required bool) (float64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		if required {
			return 0, errors.New(name + " is required")
		}
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, errors.New(name + " must be a number")
	}
	return f, nil
}

func timeParam(r *http.Request, name string) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return time.Time{}, errors.New(name + " is required")
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, errors.New(name + " must be an RFC 3339 timestamp")
	}
	return t, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // client may have gone away
}
