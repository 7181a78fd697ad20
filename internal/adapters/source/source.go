// Package source reads per-frame detections for a job. The detector itself
// runs elsewhere; a source only replays what it produced.
package source

import (
	"context"

	"github.com/okian/pickle/internal/domain/model"
)

// Meta describes a stream before its first frame is read.
type Meta struct {
	FPS         float64   `json:"fps"`
	TotalFrames int       `json:"total_frames"`
	Width       int       `json:"width,omitempty"`
	Height      int       `json:"height,omitempty"`
	Homography  []float64 `json:"homography,omitempty"`
}

// Source yields frames in order. Next returns io.EOF after the last frame.
type Source interface {
	Meta() Meta
	Next(ctx context.Context) (model.Frame, error)
	Close() error
}

// Opener opens the stored upload of a job.
type Opener interface {
	Open(ctx context.Context, path string) (Source, error)
}
