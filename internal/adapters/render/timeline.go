package render

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/okian/pickle/internal/domain/model"
)

// echartsAssetsHost serves the echarts JavaScript for rendered pages.
const echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// Timeline renders an HTML page with the cumulative score after every
// awarded point and the length of every rally.
func Timeline(jobID string, stats model.Stats) ([]byte, error) {
	initOpts := opts.Initialization{
		PageTitle:  "pickle " + jobID,
		Theme:      "white",
		Width:      "900px",
		Height:     "420px",
		AssetsHost: echartsAssetsHost,
	}

	score := charts.NewLine()
	score.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts),
		charts.WithTitleOpts(opts.Title{Title: "Score", Subtitle: jobID}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "frame"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "points"}),
	)

	axis := make([]string, 0, len(stats.Points)+1)
	top := make([]opts.LineData, 0, len(stats.Points)+1)
	bottom := make([]opts.LineData, 0, len(stats.Points)+1)
	axis = append(axis, "0")
	top = append(top, opts.LineData{Value: 0})
	bottom = append(bottom, opts.LineData{Value: 0})

	var running model.Score
	for _, p := range stats.Points {
		running.Add(p.Winner)
		axis = append(axis, strconv.Itoa(p.Frame))
		top = append(top, opts.LineData{Value: running.Top, Name: p.Reason})
		bottom = append(bottom, opts.LineData{Value: running.Bottom, Name: p.Reason})
	}
	score.SetXAxis(axis).
		AddSeries("Player A (top)", top).
		AddSeries("Player B (bottom)", bottom).
		SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Step: "end"}))

	lengths := charts.NewBar()
	lengths.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts),
		charts.WithTitleOpts(opts.Title{Title: "Rally length", Subtitle: fmt.Sprintf("%d rallies", len(stats.Rallies))}),
		charts.WithYAxisOpts(opts.YAxis{Name: "frames"}),
	)
	names := make([]string, len(stats.Rallies))
	bars := make([]opts.BarData, len(stats.Rallies))
	for i, r := range stats.Rallies {
		names[i] = strconv.Itoa(i + 1)
		bars[i] = opts.BarData{Value: r.Frames}
	}
	lengths.SetXAxis(names).AddSeries("frames", bars)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsHost)
	page.SetPageTitle("pickle " + jobID)
	page.AddCharts(score, lengths)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return buf.Bytes(), nil
}
