package court

import "github.com/okian/pickle/internal/domain/model"

// Regulation pickleball court size in meters.
const (
	DefaultWidth  = 6.10
	DefaultLength = 13.41
)

// Court describes the playing surface in court coordinates. The origin is
// the top-left corner, X runs across the width and Y along the length.
type Court struct {
	Width  float64
	Length float64
	// Margin tolerates projection error around the lines.
	Margin float64
}

// Default returns a regulation court with no margin.
func Default() Court {
	return Court{Width: DefaultWidth, Length: DefaultLength}
}

// InBounds reports whether p lies on the court, lines included.
func (c Court) InBounds(p model.Point) bool {
	return p.X >= -c.Margin && p.X <= c.Width+c.Margin &&
		p.Y >= -c.Margin && p.Y <= c.Length+c.Margin
}

// Midline is the Y of the net, which splits the two kitchens.
func (c Court) Midline() float64 {
	return c.Length / 2
}
