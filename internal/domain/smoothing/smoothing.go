// Package smoothing fills per-frame detection gaps in a finished ball track.
//
// Each box coordinate is treated as its own series. Gaps between two known
// frames are linearly interpolated, a leading gap takes the first known
// value and a trailing gap the last known value. This is a batch operation
// over a captured track; the live pipeline works on raw detections.
package smoothing

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/interp"

	"github.com/okian/pickle/internal/domain/model"
)

// ErrNoDetections is returned when the track holds no detection at all.
var ErrNoDetections = errors.New("track has no detections")

// Interpolate returns a box for every frame of dets.
func Interpolate(dets []model.Detection) ([]model.Box, error) {
	xs := make([]float64, 0, len(dets))
	series := [4][]float64{}
	for i, d := range dets {
		if d == nil {
			continue
		}
		xs = append(xs, float64(i))
		series[0] = append(series[0], d.X1)
		series[1] = append(series[1], d.Y1)
		series[2] = append(series[2], d.X2)
		series[3] = append(series[3], d.Y2)
	}
	if len(xs) == 0 {
		return nil, ErrNoDetections
	}

	out := make([]model.Box, len(dets))
	if len(xs) == 1 {
		only := model.Box{X1: series[0][0], Y1: series[1][0], X2: series[2][0], Y2: series[3][0]}
		for i := range out {
			out[i] = only
		}
		return out, nil
	}

	var fits [4]interp.PiecewiseLinear
	for c := range fits {
		if err := fits[c].Fit(xs, series[c]); err != nil {
			return nil, fmt.Errorf("fit coordinate %d: %w", c, err)
		}
	}

	first, last := xs[0], xs[len(xs)-1]
	value := func(c int, x float64) float64 {
		switch {
		case x <= first:
			return series[c][0]
		case x >= last:
			return series[c][len(series[c])-1]
		}
		return fits[c].Predict(x)
	}
	for i := range out {
		x := float64(i)
		out[i] = model.Box{X1: value(0, x), Y1: value(1, x), X2: value(2, x), Y2: value(3, x)}
	}
	return out, nil
}

// Centers returns the center point of every box.
func Centers(boxes []model.Box) []model.Point {
	pts := make([]model.Point, len(boxes))
	for i, b := range boxes {
		pts[i] = b.Center()
	}
	return pts
}
