package render

import "gonum.org/v1/plot/vg"

// HeatmapOption applies a configuration option to the Heatmap.
type HeatmapOption func(*Heatmap)

// WithCellSize sets the grid cell edge in meters.
func WithCellSize(meters float64) HeatmapOption {
	return func(h *Heatmap) {
		if meters > 0 {
			h.cellSize = meters
		}
	}
}

// WithHeatmapSize sets the output image size.
func WithHeatmapSize(w, h vg.Length) HeatmapOption {
	return func(hm *Heatmap) {
		if w > 0 && h > 0 {
			hm.width, hm.height = w, h
		}
	}
}

// CourtViewOption applies a configuration option to the CourtView.
type CourtViewOption func(*CourtView)

// WithViewSize sets the output frame size.
func WithViewSize(w, h vg.Length) CourtViewOption {
	return func(v *CourtView) {
		if w > 0 && h > 0 {
			v.width, v.height = w, h
		}
	}
}
