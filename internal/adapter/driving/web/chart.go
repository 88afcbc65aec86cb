package web

import (
	"fmt"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/kmathis/glucopanel/internal/domain/model"
)

// Chart rendering constants. The value axis is pinned to 0-400 mg/dL so the
// shape of the curve is comparable across days; only the time axis follows
// the data.
const (
	chartMinWidth = 600
	chartHeight   = 400

	colorLow  = "#f39c12"
	colorGood = "#27ae60"
	colorHigh = "#e74c3c"

	// Translucent variants of the zone colors for the background bands.
	bandLow  = "rgba(243, 156, 18, 0.10)"
	bandGood = "rgba(39, 174, 96, 0.10)"
	bandHigh = "rgba(231, 76, 60, 0.10)"
)

// BuildGlucoseChart renders the reading window as a line chart with the
// glucose zones colored piecewise and threshold lines at the zone edges.
// Widths below the minimum are clamped up.
func BuildGlucoseChart(readings []model.Reading, width int) *charts.Line {
	if width < chartMinWidth {
		width = chartMinWidth
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Width:  fmt.Sprintf("%dpx", width),
			Height: fmt.Sprintf("%dpx", chartHeight),
		}),
		charts.WithTitleOpts(opts.Title{
			Title: "Glucose (mg/dL)",
		}),
		charts.WithXAxisOpts(opts.XAxis{
			AxisLabel: &opts.AxisLabel{
				Rotate: 45,
			},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Min: 0,
			Max: model.ChartValueMax,
		}),
		charts.WithTooltipOpts(opts.Tooltip{
			Show:    opts.Bool(true),
			Trigger: "axis",
		}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Type: "piecewise",
			Show: opts.Bool(false),
			Min:  0,
			Max:  model.ChartValueMax,
			Pieces: []opts.Piece{
				{Min: 0, Max: model.ThresholdLow - 1, Color: colorLow},
				{Min: model.ThresholdLow, Max: model.ThresholdHigh, Color: colorGood},
				{Min: model.ThresholdHigh + 1, Max: model.ChartValueMax, Color: colorHigh},
			},
		}),
	)

	labels := make([]string, 0, len(readings))
	items := make([]opts.LineData, 0, len(readings))
	for _, r := range readings {
		labels = append(labels, r.Timestamp.Local().Format("15:04"))
		items = append(items, opts.LineData{Value: r.Value})
	}

	seriesOpts := []charts.SeriesOpts{
		charts.WithMarkLineNameYAxisItemOpts(
			opts.MarkLineNameYAxisItem{Name: "low", YAxis: model.ThresholdLow},
			opts.MarkLineNameYAxisItem{Name: "high", YAxis: model.ThresholdHigh},
		),
		charts.WithMarkLineStyleOpts(opts.MarkLineStyle{
			Symbol: []string{"none", "none"},
		}),
	}

	// Background bands need x coordinates, so they only exist when there is
	// data to span.
	if len(labels) > 0 {
		first, last := labels[0], labels[len(labels)-1]
		seriesOpts = append(seriesOpts, charts.WithMarkAreaNameCoordItemOpts(
			zoneBand(string(model.ZoneLow), first, last, 0, model.ThresholdLow-1, bandLow),
			zoneBand(string(model.ZoneGood), first, last, model.ThresholdLow, model.ThresholdHigh, bandGood),
			zoneBand(string(model.ZoneHigh), first, last, model.ThresholdHigh+1, model.ChartValueMax, bandHigh),
		))
		seriesOpts = append(seriesOpts, charts.WithMarkAreaStyleOpts(opts.MarkAreaStyle{
			Label: &opts.Label{Show: opts.Bool(false)},
		}))
	}

	line.SetXAxis(labels)
	line.AddSeries("glucose", items, seriesOpts...)
	line.SetSeriesOptions(
		charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}),
	)

	return line
}

// zoneBand builds one horizontal background band covering [yLow, yHigh]
// across the full x range of the data.
func zoneBand(name, firstX, lastX string, yLow, yHigh int, color string) opts.MarkAreaNameCoordItem {
	return opts.MarkAreaNameCoordItem{
		Name:        name,
		Coordinate0: []interface{}{firstX, yLow},
		Coordinate1: []interface{}{lastX, yHigh},
		ItemStyle:   &opts.ItemStyle{Color: color},
	}
}
