package fitting

import (
	"github.com/moonlight1509/pythea/internal/timeaxis"
	"github.com/moonlight1509/pythea/internal/units"
)

// VelocityResult is the speed curve derived from a height-like fit: the
// numerical derivative of the fitted curve and its bands with respect to the
// day-offset axis, converted from Rsun/day to km/s. The envelope speed bounds
// exist only for spline fits, which retain derivative extrema from the
// smoothing sweep; polynomial fits have no counterpart.
type VelocityResult struct {
	Axis  *timeaxis.Axis
	Curve []float64
	Upper []float64
	Lower []float64

	EnvelopeUpper []float64
	EnvelopeLower []float64
}

// DeriveVelocity converts a height-like fit result into a speed curve. The
// fit result is not modified; the velocity shares its evaluation axis.
func DeriveVelocity(r Result) *VelocityResult {
	axis := r.EvalAxis()
	eval := axis.Eval()
	upper, lower := r.Bands()

	v := &VelocityResult{
		Axis:  axis,
		Curve: scaleToKmPerS(gradient(r.FittedCurve(), eval)),
		Upper: scaleToKmPerS(gradient(upper, eval)),
		Lower: scaleToKmPerS(gradient(lower, eval)),
	}

	if sr, ok := r.(*SplineResult); ok {
		// The sweep extrema are already derivatives; scale without
		// re-differentiating.
		du, dl := sr.DerivativeEnvelope()
		v.EnvelopeUpper = scaleToKmPerS(du)
		v.EnvelopeLower = scaleToKmPerS(dl)
	}
	return v
}

func scaleToKmPerS(rsunPerDay []float64) []float64 {
	out := make([]float64, len(rsunPerDay))
	for i, g := range rsunPerDay {
		out[i] = units.SpeedKmPerS(g)
	}
	return out
}
