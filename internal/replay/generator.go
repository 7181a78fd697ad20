package replay

import (
	"bytes"
	"fmt"
	"math/rand/v2"

	"github.com/okian/pickle/internal/adapters/source"
	"github.com/okian/pickle/internal/domain/court"
	"github.com/okian/pickle/internal/domain/model"
)

// Ball height band per half, in meters from the top baseline.
var halves = map[model.Side][2]float64{
	model.SideTop:    {1.0, 5.5},
	model.SideBottom: {7.9, 12.4},
}

// Homography maps the synthetic camera's pixels to court meters.
func Homography() []float64 {
	return []float64{1 / pixelsPerMeter, 0, 0, 0, 1 / pixelsPerMeter, 0, 0, 0, 1}
}

// Generate builds n matches of the given number of rallies each.
func Generate(seed uint64, n, rallies int) ([]Match, error) {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	out := make([]Match, 0, n)
	for i := 0; i < n; i++ {
		m, err := GenerateMatch(rng, rallies)
		if err != nil {
			return nil, err
		}
		m.Name = fmt.Sprintf("match-%03d.jsonl", i+1)
		out = append(out, m)
	}
	return out, nil
}

// GenerateMatch builds one track. Each rally bounces the ball twice on a
// random half and then drops the ball long enough to end the rally, so the
// other half wins the point.
func GenerateMatch(rng *rand.Rand, rallies int) (Match, error) {
	frames := buildPlan(rng, rallies)

	var (
		buf      bytes.Buffer
		expected model.Score
	)
	c := court.Default()
	w, err := source.NewTrackWriter(&buf, source.Meta{
		FPS:         trackFPS,
		TotalFrames: len(frames.ys),
		Width:       int(c.Width * pixelsPerMeter),
		Height:      int(c.Length * pixelsPerMeter),
		Homography:  Homography(),
	})
	if err != nil {
		return Match{}, fmt.Errorf("track header: %w", err)
	}
	for _, loser := range frames.losers {
		expected.Add(model.Opposite(loser))
	}

	cx := c.Width / 2 * pixelsPerMeter
	for i, y := range frames.ys {
		f := model.Frame{Index: i, Players: players(rng, c)}
		if y > 0 {
			py := y * pixelsPerMeter
			f.Ball = &model.Box{X1: cx - 4, Y1: py - 4, X2: cx + 4, Y2: py + 4}
		}
		if err := w.Write(f); err != nil {
			return Match{}, fmt.Errorf("track frame %d: %w", i, err)
		}
	}
	if err := w.Flush(); err != nil {
		return Match{}, fmt.Errorf("track flush: %w", err)
	}
	return Match{Track: buf.Bytes(), Frames: len(frames.ys), Expected: expected}, nil
}

type plan struct {
	ys     []float64 // ball Y in meters per frame, 0 when not detected
	losers []model.Side
}

func buildPlan(rng *rand.Rand, rallies int) plan {
	var p plan
	p.ys = append(p.ys, make([]float64, leadInFrames)...)
	for r := 0; r < rallies; r++ {
		loser := model.SideTop
		if rng.IntN(2) == 1 {
			loser = model.SideBottom
		}
		p.losers = append(p.losers, loser)

		band := halves[loser]
		lo, hi := band[0], band[1]
		step := (hi - lo) / descentFrames
		p.ys = append(p.ys, lo)
		for bounce := 0; bounce < 2; bounce++ {
			for i := 1; i <= descentFrames; i++ {
				p.ys = append(p.ys, lo+step*float64(i))
			}
			for i := 1; i <= descentFrames; i++ {
				p.ys = append(p.ys, hi-step*float64(i))
			}
		}
		p.ys = append(p.ys, make([]float64, gapFrames)...)
	}
	return p
}

// players places one player on each half, jittered around the baselines.
func players(rng *rand.Rand, c court.Court) []model.Box {
	box := func(x, foot float64) model.Box {
		px, py := x*pixelsPerMeter, foot*pixelsPerMeter
		return model.Box{X1: px - 15, Y1: py - 80, X2: px + 15, Y2: py}
	}
	jitter := func() float64 { return rng.Float64() - 0.5 }
	return []model.Box{
		box(c.Width/2+jitter(), 1.5+jitter()),
		box(c.Width/2+jitter(), c.Length-1.0+jitter()),
	}
}
