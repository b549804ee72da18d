package report

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/ecoshield360/ecoshield/internal/airquality"
)

// ErrNoChartData is returned when no pollutant has a positive density.
var ErrNoChartData = errors.New("no chart data")

// barColors gives every pollutant a fixed colour.
var barColors = map[airquality.Pollutant]string{
	airquality.PollutantNO2:  "ff9999",
	airquality.PollutantCO:   "66b3ff",
	airquality.PollutantO3:   "99ff99",
	airquality.PollutantSO2:  "ffcc99",
	airquality.PollutantCH4:  "ff99cc",
	airquality.PollutantHCHO: "c2c2f0",
}

// Bar is one normalized chart bar.
type Bar struct {
	Pollutant airquality.Pollutant
	Percent   float64
}

// Label renders the bar caption, e.g. "NO2 45.3%".
func (b Bar) Label() string {
	return fmt.Sprintf("%s %.1f%%", b.Pollutant, b.Percent)
}

// ChartFunc renders bars as a PNG image.
type ChartFunc func(bars []Bar) ([]byte, error)

// NormalizedBars scales the present densities of r to a percentage of the
// largest one.
func NormalizedBars(r airquality.Reading) ([]Bar, error) {
	var peak float64
	for _, p := range airquality.Pollutants {
		if v, ok := r.Value(p); ok && v > peak {
			peak = v
		}
	}
	if peak <= 0 {
		return nil, ErrNoChartData
	}

	bars := make([]Bar, 0, len(airquality.Pollutants))
	for _, p := range airquality.Pollutants {
		v, ok := r.Value(p)
		if !ok {
			continue
		}
		bars = append(bars, Bar{Pollutant: p, Percent: v / peak * 100})
	}
	return bars, nil
}

// BarChartPNG draws bars with go-chart.
func BarChartPNG(bars []Bar) ([]byte, error) {
	if len(bars) == 0 {
		return nil, ErrNoChartData
	}

	values := make([]chart.Value, len(bars))
	for i, b := range bars {
		hex, ok := barColors[b.Pollutant]
		if !ok {
			hex = "999999"
		}
		color := drawing.ColorFromHex(hex)
		values[i] = chart.Value{
			Value: b.Percent,
			Label: b.Label(),
			Style: chart.Style{
				FillColor:   color,
				StrokeColor: color,
				StrokeWidth: 1,
			},
		}
	}

	graph := chart.BarChart{
		Title:      "Relative pollutant levels (% of maximum)",
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 10, Right: 10, Bottom: 10}},
		Width:      900,
		Height:     450,
		BarWidth:   90,
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: 100},
		},
		Bars: values,
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render bar chart: %w", err)
	}
	return buf.Bytes(), nil
}
