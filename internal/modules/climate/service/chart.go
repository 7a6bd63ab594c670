package service

import (
	"fmt"
	"io"

	"climap-server/internal/modules/climate/scale"
	"climap-server/internal/modules/climate/types"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

const (
	chartWidth  = 640
	chartHeight = 320
)

// RenderChart writes the feature's monthly trend as a PNG line chart. Gaps split the line.
// The y axis spans the whole dataset so charts of different features compare directly.
func (s *Service) RenderChart(w io.Writer, key string, layer types.Layer, featureID string) error {
	d, err := s.catalog.Get(key)
	if err != nil {
		return err
	}
	f, err := d.Feature(layer, featureID)
	if err != nil {
		return err
	}
	sv := s.seriesView(d, f, 0)
	if len(sv.Values.Values()) == 0 || d.Stats.Empty() {
		return fmt.Errorf("%w: %s/%s", ErrNoData, layer, featureID)
	}

	line := drawing.ColorFromHex(d.Mapper.ColorStats(scale.Present(d.Stats.Max), d.Stats).Hex()[1:])
	ch := chart.Chart{
		Title:  fmt.Sprintf("%s (%s)", sv.Title, sv.Unit),
		Width:  chartWidth,
		Height: chartHeight,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16},
		},
		XAxis: chart.XAxis{
			Range: &chart.ContinuousRange{Min: 1, Max: scale.MonthsPerYear},
			Ticks: monthTicks(sv.Labels),
		},
		YAxis: chart.YAxis{
			Name:  d.Unit,
			Range: yRange(d.Stats),
		},
		Series: segments(sv.Title, sv.Values, line),
	}
	return ch.Render(chart.PNG, w)
}

func monthTicks(labels []string) []chart.Tick {
	ticks := make([]chart.Tick, 0, len(labels))
	for i, l := range labels {
		ticks = append(ticks, chart.Tick{Value: float64(i + 1), Label: l})
	}
	return ticks
}

func yRange(st scale.Stats) *chart.ContinuousRange {
	lo, hi := st.Min, st.Max
	if lo == hi {
		lo, hi = lo-1, hi+1
	}
	return &chart.ContinuousRange{Min: lo, Max: hi}
}

// segments splits a series into contiguous runs of valid months.
func segments(name string, values scale.Series, col drawing.Color) []chart.Series {
	var (
		out    []chart.Series
		xs, ys []float64
	)
	flush := func() {
		if len(xs) == 0 {
			return
		}
		out = append(out, chart.ContinuousSeries{
			Name: name,
			Style: chart.Style{
				StrokeColor: col,
				StrokeWidth: 2,
				DotColor:    col,
				DotWidth:    3,
			},
			XValues: xs,
			YValues: ys,
		})
		xs, ys = nil, nil
	}
	for i, r := range values {
		if !r.Valid {
			flush()
			continue
		}
		xs = append(xs, float64(i+1))
		ys = append(ys, r.Value)
	}
	flush()
	return out
}
