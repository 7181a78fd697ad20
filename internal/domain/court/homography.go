// Package court maps image pixels onto the court plane and answers
// side and bounds questions in court coordinates (meters).
package court

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/okian/pickle/internal/domain/model"
)

const singularEps = 1e-12

// Projector maps an image point to court coordinates. The boolean is false
// when the point has no image on the court plane.
type Projector interface {
	Project(p model.Point) (model.Point, bool)
}

// Homography is a 3x3 perspective transform from pixels to court meters.
type Homography struct {
	h *mat.Dense
}

// NewHomography builds a homography from 9 row-major values.
func NewHomography(values []float64) (*Homography, error) {
	if len(values) != 9 {
		return nil, fmt.Errorf("%w: got %d", ErrBadHomography, len(values))
	}
	data := make([]float64, 9)
	copy(data, values)
	h := mat.NewDense(3, 3, data)
	if math.Abs(mat.Det(h)) < singularEps {
		return nil, ErrSingular
	}
	return &Homography{h: h}, nil
}

// Project applies the transform with perspective division.
func (hg *Homography) Project(p model.Point) (model.Point, bool) {
	var out mat.VecDense
	out.MulVec(hg.h, mat.NewVecDense(3, []float64{p.X, p.Y, 1}))
	w := out.AtVec(2)
	if math.Abs(w) < singularEps {
		return model.Point{}, false
	}
	return model.Point{X: out.AtVec(0) / w, Y: out.AtVec(1) / w}, true
}

// Inverse returns the court to pixel transform.
func (hg *Homography) Inverse() (*Homography, error) {
	var inv mat.Dense
	if err := inv.Inverse(hg.h); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingular, err)
	}
	return &Homography{h: &inv}, nil
}

// ProjectBall maps the center of a ball box. It returns nil when there is
// no detection, no projector or no image on the court plane.
func ProjectBall(pr Projector, det model.Detection) *model.Point {
	if det == nil || pr == nil {
		return nil
	}
	p, ok := pr.Project(det.Center())
	if !ok {
		return nil
	}
	return &p
}
