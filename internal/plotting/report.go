package plotting

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/moonlight1509/pythea/internal/fitting"
)

// axisTimeFormat labels the report x axis down to seconds.
const axisTimeFormat = "15:04:05"

// WriteReport renders an interactive HTML kinematics report: one height chart
// and one speed chart per figure, stacked on a single page.
func WriteReport(w io.Writer, title string, params []ParameterPlot) error {
	if len(params) == 0 {
		return fmt.Errorf("plotting: no parameters to report")
	}

	page := components.NewPage()

	height, err := reportChart(title+" | Height [Rsun]", params, false)
	if err != nil {
		return err
	}
	page.AddCharts(height)

	speed, err := reportChart(title+" | Speed [km/s]", params, true)
	if err != nil {
		return err
	}
	page.AddCharts(speed)

	if err := page.Render(w); err != nil {
		return fmt.Errorf("plotting: render report: %w", err)
	}
	return nil
}

// reportChart builds one line chart over the evaluation axis. For speed
// charts the fit results are differentiated first.
func reportChart(title string, params []ParameterPlot, speed bool) (*charts.Line, error) {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "900px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Bottom: "0"}),
	)

	var axisSet bool
	for _, param := range params {
		if param.Result == nil {
			continue
		}
		times := param.Result.EvalAxis().EvalTimes()
		if !axisSet {
			labels := make([]string, len(times))
			for i, t := range times {
				labels[i] = t.UTC().Format(axisTimeFormat)
			}
			line.SetXAxis(labels)
			axisSet = true
		}

		curve := param.Result.FittedCurve()
		upper, lower := param.Result.Bands()
		if speed {
			vel := fitting.DeriveVelocity(param.Result)
			curve, upper, lower = vel.Curve, vel.Upper, vel.Lower
		}

		line.AddSeries(param.Label, lineData(curve))
		line.AddSeries(param.Label+" +sigma", lineData(upper),
			charts.WithLineStyleOpts(opts.LineStyle{Opacity: opts.Float(0.3), Type: "dashed"}))
		line.AddSeries(param.Label+" -sigma", lineData(lower),
			charts.WithLineStyleOpts(opts.LineStyle{Opacity: opts.Float(0.3), Type: "dashed"}))
	}
	if !axisSet {
		return nil, fmt.Errorf("plotting: no fitted parameters to report")
	}
	return line, nil
}

func lineData(v []float64) []opts.LineData {
	data := make([]opts.LineData, len(v))
	for i, y := range v {
		data[i] = opts.LineData{Value: y}
	}
	return data
}
