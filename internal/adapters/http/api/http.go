// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/okian/pickle/internal/adapters/archive"
	service "github.com/okian/pickle/internal/app"
	"github.com/okian/pickle/internal/domain/model"
)

const (
	defaultMaxUpload      = 512 << 20
	defaultStreamInterval = 33 * time.Millisecond
)

// Dependencies required by HTTP handlers. The analysis service satisfies it;
// tests use fakes.
type Dependencies interface {
	Submit(ctx context.Context, filename string, r io.Reader) (string, error)
	Status(ctx context.Context, id string) (model.Record, error)
	Watch(ctx context.Context, id string) (model.Record, <-chan struct{}, error)
	Results(ctx context.Context, id string) (service.Results, error)
	Asset(ctx context.Context, id string, kind service.AssetKind) (string, error)
	LiveHeatmap(ctx context.Context, kind service.HeatmapKind, id string) ([]byte, error)
	Timeline(ctx context.Context, id string) ([]byte, error)
	History(ctx context.Context, limit int) ([]archive.Summary, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	jobsHandler      *JobsHandler
	streamHandler    *StreamHandler
	dashboardHandler *dashboardHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	cfg := config{maxUpload: defaultMaxUpload, streamInterval: defaultStreamInterval}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{
		healthHandler:    NewHealthHandler(),
		statsHandler:     NewStatsHandler(statsProvider),
		jobsHandler:      NewJobsHandler(deps, cfg.maxUpload),
		streamHandler:    NewStreamHandler(deps, cfg.streamInterval),
		dashboardHandler: newDashboardHandler(),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	j := s.jobsHandler

	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /dashboard", s.dashboardHandler.HandleDashboard)
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /api/upload", route(j.HandleUpload, "upload"))
	mux.HandleFunc("GET /api/status/{job_id}", route(j.HandleStatus, "status"))
	mux.HandleFunc("GET /api/results/{job_id}", route(j.HandleResults, "results"))
	mux.HandleFunc("GET /api/assets/{job_id}/{kind}", route(j.HandleAsset, "assets"))
	mux.HandleFunc("GET /api/live_stats/{job_id}", route(j.HandleLiveStats, "live_stats"))
	mux.HandleFunc("GET /api/live_heatmap/{kind}/{job_id}", route(j.HandleLiveHeatmap, "live_heatmap"))
	mux.HandleFunc("GET /api/timeline/{job_id}", route(j.HandleTimeline, "timeline"))
	mux.HandleFunc("GET /api/history", route(j.HandleHistory, "history"))
	mux.HandleFunc("GET /api/stream/{job_id}", CORS(s.streamHandler.HandleStream))
	mux.HandleFunc("OPTIONS /api/", CORS(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
}

func route(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return CORS(MetricsMiddleware(next, endpoint))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError maps service errors to a status code and error code.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrAssetMissing):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, service.ErrHeatmapNotReady):
		writeError(w, http.StatusNotFound, "not_ready", err)
	case errors.Is(err, service.ErrNotCompleted):
		writeError(w, http.StatusBadRequest, "not_completed", err)
	case errors.Is(err, service.ErrInvalidKind):
		writeError(w, http.StatusBadRequest, "invalid_kind", err)
	case errors.Is(err, service.ErrEmptyUpload), errors.Is(err, ErrNoFile), errors.Is(err, ErrBadRequest):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "too_large", err)
	case errors.Is(err, service.ErrBackpressure), errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "backpressure", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal", err)
	}
}
