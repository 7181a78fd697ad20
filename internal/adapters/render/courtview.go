package render

import (
	"fmt"
	"image/color"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/okian/pickle/internal/domain/court"
	"github.com/okian/pickle/internal/domain/model"
)

const (
	defaultViewWidth  = 3 * vg.Inch
	defaultViewHeight = 5 * vg.Inch
)

var (
	surfaceColor = color.RGBA{R: 46, G: 125, B: 80, A: 255}
	ballColor    = color.RGBA{R: 240, G: 230, B: 40, A: 255}
	playerColor  = color.RGBA{R: 30, G: 110, B: 230, A: 255}
	bounceColor  = color.RGBA{R: 230, G: 40, B: 40, A: 255}
)

// Scene is everything drawn on one bird's-eye frame. Positions are in
// court coordinates.
type Scene struct {
	Frame   int
	Ball    *model.Point
	Players []model.Point
	Score   model.Score
	Bounce  bool
	Point   bool
	Winner  model.Side
}

// CourtView draws a top-down court with the ball and players. It stands in
// for the camera frame when the source carries no image.
type CourtView struct {
	court  court.Court
	width  vg.Length
	height vg.Length
}

// NewCourtView creates a renderer for the given court.
func NewCourtView(c court.Court, opts ...CourtViewOption) *CourtView {
	v := &CourtView{court: c, width: defaultViewWidth, height: defaultViewHeight}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Render draws the scene and encodes it as JPEG.
func (v *CourtView) Render(s Scene) ([]byte, error) {
	p := plot.New()
	p.Title.Text = title(s)
	p.BackgroundColor = surfaceColor
	p.HideAxes()

	pad := v.court.Margin + 0.5
	p.X.Min, p.X.Max = -pad, v.court.Width+pad
	p.Y.Min, p.Y.Max = -pad, v.court.Length+pad

	if err := addCourtLines(p, v.court); err != nil {
		return nil, err
	}

	if len(s.Players) > 0 {
		xys := make(plotter.XYs, len(s.Players))
		for i, pt := range s.Players {
			xys[i].X, xys[i].Y = pt.X, pt.Y
		}
		sc, err := plotter.NewScatter(xys)
		if err != nil {
			return nil, fmt.Errorf("players: %w", err)
		}
		sc.GlyphStyle = draw.GlyphStyle{Color: playerColor, Radius: vg.Points(5), Shape: draw.CircleGlyph{}}
		p.Add(sc)
	}

	if s.Ball != nil {
		sc, err := plotter.NewScatter(plotter.XYs{{X: s.Ball.X, Y: s.Ball.Y}})
		if err != nil {
			return nil, fmt.Errorf("ball: %w", err)
		}
		c := ballColor
		if s.Bounce {
			c = bounceColor
		}
		sc.GlyphStyle = draw.GlyphStyle{Color: c, Radius: vg.Points(4), Shape: draw.CircleGlyph{}}
		p.Add(sc)
	}

	return encode(p, v.width, v.height, "jpg")
}

func title(s Scene) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Frame %d  A %d : %d B", s.Frame, s.Score.Top, s.Score.Bottom)
	if s.Bounce {
		b.WriteString("  BOUNCE")
	}
	if s.Point && s.Winner.Known() {
		fmt.Fprintf(&b, "  POINT %s", strings.ToUpper(string(s.Winner)))
	}
	return b.String()
}
