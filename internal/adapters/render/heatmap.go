// Package render draws court images: position heatmaps, bird's-eye frames
// and the score timeline page.
package render

import (
	"bytes"
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/okian/pickle/internal/domain/court"
	"github.com/okian/pickle/internal/domain/model"
)

// Default heatmap configuration constants.
const (
	defaultCellSize = 0.5 // meters
	defaultWidth    = 4 * vg.Inch
	defaultHeight   = 7 * vg.Inch
	paletteSize     = 64
)

// Heatmap bins court positions into a grid and draws it as a PNG.
type Heatmap struct {
	court    court.Court
	cellSize float64
	width    vg.Length
	height   vg.Length
}

// NewHeatmap creates a heatmap renderer for the given court.
func NewHeatmap(c court.Court, opts ...HeatmapOption) *Heatmap {
	h := &Heatmap{
		court:    c,
		cellSize: defaultCellSize,
		width:    defaultWidth,
		height:   defaultHeight,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// grid is a plotter.GridXYZ of position counts. Column 0 starts at -pad.
type grid struct {
	cols, rows int
	cell       float64
	pad        float64
	counts     []float64
}

func (g *grid) Dims() (c, r int)      { return g.cols, g.rows }
func (g *grid) Z(c, r int) float64    { return g.counts[r*g.cols+c] }
func (g *grid) X(c int) float64       { return -g.pad + (float64(c)+0.5)*g.cell }
func (g *grid) Y(r int) float64       { return -g.pad + (float64(r)+0.5)*g.cell }
func (g *grid) add(p model.Point) bool {
	c := int(math.Floor((p.X + g.pad) / g.cell))
	r := int(math.Floor((p.Y + g.pad) / g.cell))
	if c < 0 || r < 0 || c >= g.cols || r >= g.rows {
		return false
	}
	g.counts[r*g.cols+c]++
	return true
}

func (h *Heatmap) newGrid() *grid {
	pad := h.court.Margin + h.cellSize
	g := &grid{
		cols: int(math.Ceil((h.court.Width + 2*pad) / h.cellSize)),
		rows: int(math.Ceil((h.court.Length + 2*pad) / h.cellSize)),
		cell: h.cellSize,
		pad:  pad,
	}
	g.counts = make([]float64, g.cols*g.rows)
	return g
}

// Export renders the positions as a PNG. Points off the grid are ignored;
// no points at all still produce an image of the empty court.
func (h *Heatmap) Export(title string, pts []model.Point) ([]byte, error) {
	g := h.newGrid()
	for _, p := range pts {
		g.add(p)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s (%d samples)", title, len(pts))
	p.X.Label.Text = "Width (m)"
	p.Y.Label.Text = "Length (m)"

	hm := plotter.NewHeatMap(g, moreland.SmoothBlueRed().Palette(paletteSize))
	if hm.Max <= hm.Min {
		hm.Max = hm.Min + 1
	}
	p.Add(hm)

	if err := addCourtLines(p, h.court); err != nil {
		return nil, err
	}

	return encode(p, h.width, h.height, "png")
}

// addCourtLines draws the outer lines and the net.
func addCourtLines(p *plot.Plot, c court.Court) error {
	outline, err := plotter.NewLine(plotter.XYs{
		{X: 0, Y: 0}, {X: c.Width, Y: 0}, {X: c.Width, Y: c.Length}, {X: 0, Y: c.Length}, {X: 0, Y: 0},
	})
	if err != nil {
		return fmt.Errorf("court outline: %w", err)
	}
	outline.Color = color.White
	outline.Width = vg.Points(1.5)

	net, err := plotter.NewLine(plotter.XYs{{X: 0, Y: c.Midline()}, {X: c.Width, Y: c.Midline()}})
	if err != nil {
		return fmt.Errorf("court net: %w", err)
	}
	net.Color = color.Gray{Y: 200}
	net.Width = vg.Points(2)
	net.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}

	p.Add(outline, net)
	return nil
}

func encode(p *plot.Plot, w, h vg.Length, format string) ([]byte, error) {
	wt, err := p.WriterTo(w, h, format)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return buf.Bytes(), nil
}
