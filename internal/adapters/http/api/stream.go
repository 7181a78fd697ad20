package api

import (
	"net/http"
	"time"

	"github.com/okian/pickle/internal/adapters/mjpeg"
	"github.com/okian/pickle/pkg/logger"
	"github.com/okian/pickle/pkg/metrics"
)

// StreamHandler serves the live annotated frames of a job.
type StreamHandler struct {
	deps     Dependencies
	interval time.Duration
}

// NewStreamHandler creates a stream handler writing at most one part per
// interval.
func NewStreamHandler(deps Dependencies, interval time.Duration) *StreamHandler {
	return &StreamHandler{deps: deps, interval: interval}
}

// HandleStream handles GET /api/stream/{job_id}. Parts are written only while
// the job is processing, so a finished job gets an empty stream. Each part
// carries the newest frame at the moment it is written.
func (h *StreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("job_id")

	rec, changed, err := h.deps.Watch(ctx, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	metrics.AddStreamClients(1)
	defer metrics.AddStreamClients(-1)

	w.Header().Set("Content-Type", mjpeg.ContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	mw := mjpeg.NewWriter(w)
	defer func() { _ = mw.Close() }()

	var (
		last    time.Time
		written time.Time
	)
	for {
		if rec.Status.Terminal() {
			return
		}
		if len(rec.LatestFrame) > 0 && rec.UpdatedAt.After(last) {
			if wait := h.interval - time.Since(written); wait > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(wait):
				}
				// Frames published during the wait supersede the one that woke us.
				if rec, changed, err = h.deps.Watch(ctx, id); err != nil || rec.Status.Terminal() {
					return
				}
			}
			if err := mw.WriteFrame(rec.LatestFrame); err != nil {
				logger.Get().Debug(ctx, "stream client gone", logger.JobID(id), logger.Error(err))
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
			metrics.RecordStreamFrame()
			last = rec.UpdatedAt
			written = time.Now()
		}

		select {
		case <-ctx.Done():
			return
		case <-changed:
		}
		rec, changed, err = h.deps.Watch(ctx, id)
		if err != nil {
			return
		}
	}
}
