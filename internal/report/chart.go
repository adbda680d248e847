package report

import (
	"bytes"
	"errors"

	chart "github.com/wcharczuk/go-chart/v2"

	"github.com/stroke-risk-server/internal/domain"
)

const (
	chartWidth  = 1024
	chartHeight = 360
	maxBarWidth = 60
	minBarWidth = 3
)

// ErrNoBars is returned when a series has nothing to plot.
var ErrNoBars = errors.New("chart has no bars")

// ChartPNG renders a frequency series as a PNG bar chart.
func ChartPNG(series domain.ChartSeries) ([]byte, error) {
	if len(series.Points) == 0 {
		return nil, ErrNoBars
	}

	bars := make([]chart.Value, len(series.Points))
	maxCount := 0
	for i, p := range series.Points {
		bars[i] = chart.Value{Label: p.Label, Value: float64(p.Count)}
		if p.Count > maxCount {
			maxCount = p.Count
		}
	}

	barWidth := (chartWidth - 120) / len(bars) * 3 / 4
	if barWidth > maxBarWidth {
		barWidth = maxBarWidth
	}
	if barWidth < minBarWidth {
		barWidth = minBarWidth
	}

	graph := chart.BarChart{
		Title:      series.Title,
		Background: chart.Style{Padding: chart.Box{Top: 40}},
		Width:      chartWidth,
		Height:     chartHeight,
		BarWidth:   barWidth,
		BarSpacing: barWidth / 3,
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: float64(maxCount + 1)},
		},
		Bars: bars,
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, domain.NewPipelineError(domain.KindReportGeneration, "render chart", err)
	}
	return buf.Bytes(), nil
}

// ChartDataURI renders series and encodes the PNG as a data URI.
func ChartDataURI(series domain.ChartSeries) (string, error) {
	data, err := ChartPNG(series)
	if err != nil {
		return "", err
	}
	return DataURI("image/png", data), nil
}
