package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	service "github.com/okian/pickle/internal/app"
	"github.com/okian/pickle/internal/domain/model"
)

const (
	uploadField    = "file"
	maxMemory      = 32 << 20
	defaultHistory = 50
)

// JobsHandler serves upload, status and result routes.
type JobsHandler struct {
	deps      Dependencies
	maxUpload int64
}

// NewJobsHandler creates a jobs handler. Uploads larger than maxUpload bytes
// are refused.
func NewJobsHandler(deps Dependencies, maxUpload int64) *JobsHandler {
	return &JobsHandler{deps: deps, maxUpload: maxUpload}
}

type uploadResponse struct {
	JobID   string `json:"job_id"`
	Message string `json:"message"`
}

type statusResponse struct {
	Status   model.Status  `json:"status"`
	Progress float64       `json:"progress"`
	Result   *model.Result `json:"result"`
	Error    string        `json:"error,omitempty"`
}

type assetURLs struct {
	Video         string `json:"video_url"`
	PlayerHeatmap string `json:"player_heatmap_url"`
	BallHeatmap   string `json:"ball_heatmap_url"`
}

type resultsResponse struct {
	JobID  string          `json:"job_id"`
	Stats  json.RawMessage `json:"stats"`
	Assets assetURLs       `json:"assets"`
}

type liveStatsResponse struct {
	Status   model.Status `json:"status"`
	Progress float64      `json:"progress"`
	Stats    *model.Stats `json:"stats"`
}

// HandleUpload handles POST /api/upload with a multipart "file" part.
func (h *JobsHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > h.maxUpload {
		writeServiceError(w, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, h.maxUpload))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeServiceError(w, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, h.maxUpload))
			return
		}
		writeServiceError(w, fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		writeServiceError(w, ErrNoFile)
		return
	}
	defer func() { _ = file.Close() }()

	id, err := h.deps.Submit(r.Context(), header.Filename, file)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, uploadResponse{JobID: id, Message: "upload accepted, processing started"})
}

// HandleStatus handles GET /api/status/{job_id}.
func (h *JobsHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	rec, err := h.deps.Status(r.Context(), r.PathValue("job_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Status:   rec.Status,
		Progress: rec.Progress,
		Result:   rec.Result,
		Error:    rec.Error,
	})
}

// HandleResults handles GET /api/results/{job_id}.
func (h *JobsHandler) HandleResults(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("job_id")
	res, err := h.deps.Results(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resultsResponse{
		JobID: res.JobID,
		Stats: res.Stats,
		Assets: assetURLs{
			Video:         assetURL(id, service.AssetVideo),
			PlayerHeatmap: assetURL(id, service.AssetPlayerHeatmap),
			BallHeatmap:   assetURL(id, service.AssetBallHeatmap),
		},
	})
}

func assetURL(id string, kind service.AssetKind) string {
	return "/api/assets/" + id + "/" + string(kind)
}

// HandleAsset handles GET /api/assets/{job_id}/{kind}.
func (h *JobsHandler) HandleAsset(w http.ResponseWriter, r *http.Request) {
	kind := service.AssetKind(r.PathValue("kind"))
	path, err := h.deps.Asset(r.Context(), r.PathValue("job_id"), kind)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	switch kind {
	case service.AssetVideo:
		w.Header().Set("Content-Type", "video/x-motion-jpeg")
	default:
		w.Header().Set("Content-Type", "image/png")
	}
	http.ServeFile(w, r, path)
}

// HandleLiveStats handles GET /api/live_stats/{job_id}.
func (h *JobsHandler) HandleLiveStats(w http.ResponseWriter, r *http.Request) {
	rec, err := h.deps.Status(r.Context(), r.PathValue("job_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, liveStatsResponse{Status: rec.Status, Progress: rec.Progress, Stats: rec.LatestStats})
}

// HandleLiveHeatmap handles GET /api/live_heatmap/{kind}/{job_id}.
func (h *JobsHandler) HandleLiveHeatmap(w http.ResponseWriter, r *http.Request) {
	kind := service.HeatmapKind(r.PathValue("kind"))
	img, err := h.deps.LiveHeatmap(r.Context(), kind, r.PathValue("job_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(img)
}

// HandleTimeline handles GET /api/timeline/{job_id}.
func (h *JobsHandler) HandleTimeline(w http.ResponseWriter, r *http.Request) {
	page, err := h.deps.Timeline(r.Context(), r.PathValue("job_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}

// HandleHistory handles GET /api/history?limit=N.
func (h *JobsHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistory
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeServiceError(w, fmt.Errorf("%w: limit must be a positive integer", ErrBadRequest))
			return
		}
		limit = n
	}
	list, err := h.deps.History(r.Context(), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
