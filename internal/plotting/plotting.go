// Package plotting renders height-time and speed-time figures for a fit
// session: raw measurements, the fitted curve, the sigma band and (for
// splines) the smoothing-sweep envelope. When a parameter has too few samples
// for the requested fit, the height plot falls back to a plain connecting
// line instead of failing.
package plotting

import (
	"fmt"
	"image/color"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/moonlight1509/pythea/internal/fitting"
)

// Series colors, one per parameter in display order.
var palette = []color.RGBA{
	{R: 196, G: 78, B: 82, A: 255},  // height
	{R: 76, G: 114, B: 176, A: 255}, // first radius
	{R: 85, G: 168, B: 104, A: 255}, // second radius
}

func paletteColor(i int) color.RGBA {
	return palette[i%len(palette)]
}

func bandColor(c color.RGBA, alpha uint8) color.RGBA {
	return color.RGBA{R: c.R, G: c.G, B: c.B, A: alpha}
}

// ParameterPlot is one parameter's contribution to a figure: its raw samples
// and, when the fit succeeded, the fit result.
type ParameterPlot struct {
	Label   string
	Samples fitting.SampleSeries
	Result  fitting.Result // nil when the fit was skipped
}

// dayOffsets converts timestamps to fractional days since epoch for the
// x axis.
func dayOffsets(epoch time.Time, ts []time.Time) []float64 {
	out := make([]float64, len(ts))
	for i, t := range ts {
		out[i] = t.Sub(epoch).Seconds() / 86400.0
	}
	return out
}

// HeightTime builds the height-versus-time figure for the given parameters.
// The x axis is in days since the first sample of the first parameter.
func HeightTime(title string, params []ParameterPlot) (*plot.Plot, error) {
	if len(params) == 0 {
		return nil, fmt.Errorf("plotting: no parameters to plot")
	}
	epoch := epochOf(params)

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Time [days]"
	p.Y.Label.Text = "Height [Rsun]"

	for i, param := range params {
		col := paletteColor(i)

		scatter, err := plotter.NewScatter(xys(dayOffsets(epoch, param.Samples.Times()), param.Samples.Values()))
		if err != nil {
			return nil, fmt.Errorf("plotting: scatter for %s: %w", param.Label, err)
		}
		scatter.GlyphStyle.Color = col
		scatter.GlyphStyle.Radius = vg.Points(2)
		p.Add(scatter)
		p.Legend.Add(param.Label, scatter)

		if param.Result == nil {
			// Too few samples for a fit: plain connecting line.
			raw, err := plotter.NewLine(xys(dayOffsets(epoch, param.Samples.Times()), param.Samples.Values()))
			if err != nil {
				return nil, fmt.Errorf("plotting: raw line for %s: %w", param.Label, err)
			}
			raw.LineStyle.Color = col
			raw.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
			p.Add(raw)
			continue
		}

		x := dayOffsets(epoch, param.Result.EvalAxis().EvalTimes())
		if err := addCurveWithBands(p, x, param.Result.FittedCurve(), param.Result, col); err != nil {
			return nil, fmt.Errorf("plotting: %s: %w", param.Label, err)
		}
	}

	p.Legend.Top = true
	p.Legend.Left = true
	return p, nil
}

// SpeedTime builds the speed-versus-time figure. Parameters without a fit are
// omitted: there is no raw-speed fallback.
func SpeedTime(title string, params []ParameterPlot) (*plot.Plot, error) {
	if len(params) == 0 {
		return nil, fmt.Errorf("plotting: no parameters to plot")
	}
	epoch := epochOf(params)

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Time [days]"
	p.Y.Label.Text = "Speed [km/s]"

	for i, param := range params {
		if param.Result == nil {
			continue
		}
		col := paletteColor(i)

		vel := fitting.DeriveVelocity(param.Result)
		x := dayOffsets(epoch, param.Result.EvalAxis().EvalTimes())

		line, err := plotter.NewLine(xys(x, vel.Curve))
		if err != nil {
			return nil, fmt.Errorf("plotting: speed line for %s: %w", param.Label, err)
		}
		line.LineStyle.Color = col
		line.LineStyle.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(param.Label, line)

		if err := addBand(p, x, vel.Upper, vel.Lower, bandColor(col, 50)); err != nil {
			return nil, err
		}
		if vel.EnvelopeUpper != nil {
			if err := addBand(p, x, vel.EnvelopeUpper, vel.EnvelopeLower, bandColor(col, 15)); err != nil {
				return nil, err
			}
		}
	}

	p.Legend.Top = true
	p.Legend.Left = true
	return p, nil
}

// SavePNG writes the plot to a PNG file.
func SavePNG(p *plot.Plot, path string) error {
	if err := p.Save(5.5*vg.Inch, 5.5*vg.Inch, path); err != nil {
		return fmt.Errorf("plotting: save %s: %w", path, err)
	}
	return nil
}

// addCurveWithBands draws the fitted curve, the sigma band and, for spline
// results, the envelope band.
func addCurveWithBands(p *plot.Plot, x, curve []float64, res fitting.Result, col color.RGBA) error {
	line, err := plotter.NewLine(xys(x, curve))
	if err != nil {
		return err
	}
	line.LineStyle.Color = col
	line.LineStyle.Width = vg.Points(1)
	p.Add(line)

	upper, lower := res.Bands()
	if err := addBand(p, x, upper, lower, bandColor(col, 50)); err != nil {
		return err
	}
	if sr, ok := res.(*fitting.SplineResult); ok {
		if err := addBand(p, x, sr.EnvelopeUpper, sr.EnvelopeLower, bandColor(col, 15)); err != nil {
			return err
		}
	}
	return nil
}

// addBand fills the area between the upper and lower bound curves.
func addBand(p *plot.Plot, x, upper, lower []float64, fill color.RGBA) error {
	pts := make(plotter.XYs, 0, 2*len(x))
	for i := range x {
		pts = append(pts, plotter.XY{X: x[i], Y: upper[i]})
	}
	for i := len(x) - 1; i >= 0; i-- {
		pts = append(pts, plotter.XY{X: x[i], Y: lower[i]})
	}
	poly, err := plotter.NewPolygon(pts)
	if err != nil {
		return fmt.Errorf("plotting: band polygon: %w", err)
	}
	poly.Color = fill
	poly.LineStyle.Width = 0
	p.Add(poly)
	return nil
}

func epochOf(params []ParameterPlot) time.Time {
	epoch := time.Time{}
	for _, param := range params {
		if len(param.Samples) == 0 {
			continue
		}
		if epoch.IsZero() || param.Samples[0].Time.Before(epoch) {
			epoch = param.Samples[0].Time
		}
	}
	return epoch
}

func xys(x, y []float64) plotter.XYs {
	pts := make(plotter.XYs, len(x))
	for i := range x {
		pts[i] = plotter.XY{X: x[i], Y: y[i]}
	}
	return pts
}
