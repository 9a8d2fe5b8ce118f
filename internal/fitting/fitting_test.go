package fitting

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/moonlight1509/pythea/internal/timeaxis"
	"github.com/moonlight1509/pythea/internal/units"
)

// makeSeries builds a series with samples at the given day offsets.
func makeSeries(dayOffsets, values []float64) SampleSeries {
	t0 := time.Date(2021, 10, 28, 15, 0, 0, 0, time.UTC)
	series := make(SampleSeries, len(values))
	for i := range values {
		series[i] = Sample{
			Time:  t0.Add(time.Duration(dayOffsets[i] * 24 * float64(time.Hour))),
			Value: values[i],
		}
	}
	return series
}

func TestFit_PolynomialLinear(t *testing.T) {
	// Perfectly linear height series: slope 1 Rsun/day.
	series := makeSeries([]float64{0, 1, 2, 3, 4}, []float64{1, 2, 3, 4, 5})

	res, err := Fit(series, Config{Kind: Polynomial, Order: 1})
	if err != nil {
		t.Fatalf("Fit returned error: %v", err)
	}
	pr, ok := res.(*PolynomialResult)
	if !ok {
		t.Fatalf("result type = %T, want *PolynomialResult", res)
	}

	if got := len(pr.Curve); got != timeaxis.EvalPoints {
		t.Fatalf("curve length = %d, want %d", got, timeaxis.EvalPoints)
	}

	// Coefficients are highest degree first: slope 1, intercept 1.
	if math.Abs(pr.Coeffs[0]-1) > 1e-9 || math.Abs(pr.Coeffs[1]-1) > 1e-9 {
		t.Errorf("coeffs = %v, want [1 1]", pr.Coeffs)
	}

	// A perfect fit has (near) zero coefficient sigma; the bands collapse
	// onto the curve.
	for j, s := range pr.Sigma {
		if s > 1e-7 {
			t.Errorf("sigma[%d] = %v, want ~0", j, s)
		}
	}
	for i := range pr.Curve {
		if math.Abs(pr.Upper[i]-pr.Curve[i]) > 1e-6 || math.Abs(pr.Lower[i]-pr.Curve[i]) > 1e-6 {
			t.Fatalf("bands did not collapse at %d: curve=%v upper=%v lower=%v",
				i, pr.Curve[i], pr.Upper[i], pr.Lower[i])
		}
	}

	// The curve itself is exactly linear on the evaluation axis.
	eval := pr.Axis.Eval()
	for i := range eval {
		want := eval[i] + 1
		if math.Abs(pr.Curve[i]-want) > 1e-9 {
			t.Fatalf("curve[%d] = %v, want %v", i, pr.Curve[i], want)
		}
	}
}

func TestFit_PolynomialLeastSquaresOptimal(t *testing.T) {
	// Noisy quadratic-ish data; the LS solution must beat nearby coefficient
	// perturbations on residual sum of squares.
	x := []float64{0, 0.5, 1, 1.5, 2, 2.5, 3}
	y := []float64{2.1, 2.8, 4.2, 5.9, 8.3, 11.2, 14.1}
	series := makeSeries(x, y)

	res, err := Fit(series, Config{Kind: Polynomial, Order: 2})
	if err != nil {
		t.Fatalf("Fit returned error: %v", err)
	}
	pr := res.(*PolynomialResult)

	rss := func(coeffs []float64) float64 {
		fitted := polyval(coeffs, x)
		total := 0.0
		for i := range y {
			r := y[i] - fitted[i]
			total += r * r
		}
		return total
	}
	best := rss(pr.Coeffs)
	for j := range pr.Coeffs {
		for _, delta := range []float64{-1e-3, 1e-3} {
			perturbed := append([]float64(nil), pr.Coeffs...)
			perturbed[j] += delta
			if rss(perturbed) < best-1e-12 {
				t.Errorf("perturbing coeff %d by %v lowered RSS: %v < %v",
					j, delta, rss(perturbed), best)
			}
		}
	}
}

func TestFit_PolynomialBandsFromCoeffSigma(t *testing.T) {
	series := makeSeries([]float64{0, 1, 2, 3, 4, 5}, []float64{1.0, 2.2, 2.9, 4.3, 4.8, 6.2})

	res, err := Fit(series, Config{Kind: Polynomial, Order: 2})
	if err != nil {
		t.Fatalf("Fit returned error: %v", err)
	}
	pr := res.(*PolynomialResult)

	// The bands are the polynomial evaluated at coeffs ± sigma, not a
	// pointwise interval.
	upperCoeffs := make([]float64, len(pr.Coeffs))
	lowerCoeffs := make([]float64, len(pr.Coeffs))
	for j := range pr.Coeffs {
		upperCoeffs[j] = pr.Coeffs[j] + pr.Sigma[j]
		lowerCoeffs[j] = pr.Coeffs[j] - pr.Sigma[j]
	}
	eval := pr.Axis.Eval()
	wantUpper := polyval(upperCoeffs, eval)
	wantLower := polyval(lowerCoeffs, eval)
	for i := range eval {
		if math.Abs(pr.Upper[i]-wantUpper[i]) > 1e-12 {
			t.Fatalf("upper[%d] = %v, want %v", i, pr.Upper[i], wantUpper[i])
		}
		if math.Abs(pr.Lower[i]-wantLower[i]) > 1e-12 {
			t.Fatalf("lower[%d] = %v, want %v", i, pr.Lower[i], wantLower[i])
		}
	}

	// Covariance diagonal matches sigma².
	for j := range pr.Sigma {
		if math.Abs(pr.Cov[j][j]-pr.Sigma[j]*pr.Sigma[j]) > 1e-12 {
			t.Errorf("cov[%d][%d] = %v, want sigma² = %v", j, j, pr.Cov[j][j], pr.Sigma[j]*pr.Sigma[j])
		}
	}
}

func TestFit_Errors(t *testing.T) {
	cases := []struct {
		name   string
		series SampleSeries
		cfg    Config
		want   error
	}{
		{
			name:   "single sample",
			series: makeSeries([]float64{0}, []float64{1}),
			cfg:    Config{Kind: Polynomial, Order: 1},
			want:   ErrDegenerateInput,
		},
		{
			name:   "no samples",
			series: nil,
			cfg:    Config{Kind: Polynomial, Order: 1},
			want:   ErrDegenerateInput,
		},
		{
			name:   "identical timestamps",
			series: makeSeries([]float64{0, 0, 0}, []float64{1, 2, 3}),
			cfg:    Config{Kind: Polynomial, Order: 1},
			want:   ErrDegenerateInput,
		},
		{
			name:   "poly order equals N-1",
			series: makeSeries([]float64{0, 1, 2}, []float64{1, 2, 3}),
			cfg:    Config{Kind: Polynomial, Order: 2},
			want:   ErrUnderdeterminedFit,
		},
		{
			name:   "spline degree >= N",
			series: makeSeries([]float64{0, 1, 2}, []float64{1, 2, 3}),
			cfg:    Config{Kind: Spline, Order: 3},
			want:   ErrUnderdeterminedFit,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Fit(tc.series, tc.cfg); !errors.Is(err, tc.want) {
				t.Errorf("Fit error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	if err := (Config{Kind: "wavelet", Order: 2}).Validate(); err == nil {
		t.Error("Validate accepted unknown kind")
	}
	if err := (Config{Kind: Polynomial, Order: 0}).Validate(); err == nil {
		t.Error("Validate accepted order 0")
	}
	if err := (Config{Kind: Spline, Order: 3, Smoothing: -1}).Validate(); err == nil {
		t.Error("Validate accepted negative smoothing")
	}
	if err := (Config{Kind: Spline, Order: 3, Smoothing: 0.5}).Validate(); err != nil {
		t.Errorf("Validate rejected valid config: %v", err)
	}
}

func TestFit_SplineEnvelopeContainsCurve(t *testing.T) {
	// Accelerating CME apex heights with measurement scatter.
	x := []float64{0, 0.02, 0.04, 0.07, 0.09, 0.12, 0.15, 0.18}
	y := []float64{2.1, 2.6, 3.4, 4.7, 5.5, 7.2, 9.0, 11.3}
	series := makeSeries(x, y)

	res, err := Fit(series, Config{Kind: Spline, Order: 3, Smoothing: 0.5})
	if err != nil {
		t.Fatalf("Fit returned error: %v", err)
	}
	sr, ok := res.(*SplineResult)
	if !ok {
		t.Fatalf("result type = %T, want *SplineResult", res)
	}

	for j := range sr.Curve {
		if sr.EnvelopeUpper[j] < sr.Curve[j] {
			t.Fatalf("envelope upper < curve at %d: %v < %v", j, sr.EnvelopeUpper[j], sr.Curve[j])
		}
		if sr.EnvelopeLower[j] > sr.Curve[j] {
			t.Fatalf("envelope lower > curve at %d: %v > %v", j, sr.EnvelopeLower[j], sr.Curve[j])
		}
	}

	// The sigma band is constant width around the curve.
	for j := range sr.Curve {
		if math.Abs((sr.Upper[j]-sr.Curve[j])-sr.Sigma) > 1e-12 {
			t.Fatalf("upper band width at %d = %v, want sigma %v", j, sr.Upper[j]-sr.Curve[j], sr.Sigma)
		}
		if math.Abs((sr.Curve[j]-sr.Lower[j])-sr.Sigma) > 1e-12 {
			t.Fatalf("lower band width at %d = %v, want sigma %v", j, sr.Curve[j]-sr.Lower[j], sr.Sigma)
		}
	}

	du, dl := sr.DerivativeEnvelope()
	if len(du) != timeaxis.EvalPoints || len(dl) != timeaxis.EvalPoints {
		t.Fatalf("derivative envelope lengths = %d/%d, want %d", len(du), len(dl), timeaxis.EvalPoints)
	}
	for j := range du {
		if du[j] < dl[j] {
			t.Fatalf("derivative envelope inverted at %d: %v < %v", j, du[j], dl[j])
		}
	}
}

func TestFit_SplineInterpolatesAtZeroSmoothing(t *testing.T) {
	x := []float64{0, 0.05, 0.1, 0.16, 0.22, 0.3}
	y := []float64{2.0, 2.9, 3.5, 4.8, 6.0, 8.1}
	series := makeSeries(x, y)

	res, err := Fit(series, Config{Kind: Spline, Order: 3, Smoothing: 0})
	if err != nil {
		t.Fatalf("Fit returned error: %v", err)
	}
	sr := res.(*SplineResult)

	offsets := sr.Axis.Offsets()
	for i, off := range offsets {
		if got := sr.Spline.At(off); math.Abs(got-y[i]) > 1e-4 {
			t.Errorf("spline(x[%d]) = %v, want %v (interpolation at s=0)", i, got, y[i])
		}
	}
	if sr.Sigma > 1e-4 {
		t.Errorf("residual sigma = %v, want ~0 for interpolating spline", sr.Sigma)
	}
}

func TestFit_SplineSmoothingReducesRoughness(t *testing.T) {
	x := []float64{0, 0.03, 0.06, 0.09, 0.12, 0.15, 0.18, 0.21, 0.24}
	y := []float64{2.0, 2.9, 2.7, 3.8, 3.6, 4.9, 4.7, 5.8, 5.9}
	series := makeSeries(x, y)

	roughness := func(s float64) float64 {
		res, err := Fit(series, Config{Kind: Spline, Order: 3, Smoothing: s})
		if err != nil {
			t.Fatalf("Fit(s=%v) returned error: %v", s, err)
		}
		sr := res.(*SplineResult)
		total := 0.0
		for i := 2; i < len(sr.Curve); i++ {
			d2 := sr.Curve[i] - 2*sr.Curve[i-1] + sr.Curve[i-2]
			total += d2 * d2
		}
		return total
	}

	if r0, r1 := roughness(0), roughness(0.9); r1 > r0 {
		t.Errorf("roughness grew with smoothing: s=0 → %v, s=0.9 → %v", r0, r1)
	}
}

func TestDeriveVelocity_LinearHeight(t *testing.T) {
	// h(t) = 3t + 2 in Rsun with t in days: speed is 3 Rsun/day everywhere.
	series := makeSeries([]float64{0, 1, 2, 3, 4, 5}, []float64{2, 5, 8, 11, 14, 17})

	res, err := Fit(series, Config{Kind: Polynomial, Order: 1})
	if err != nil {
		t.Fatalf("Fit returned error: %v", err)
	}
	vel := DeriveVelocity(res)

	want := units.SpeedKmPerS(3)
	for i := 1; i < len(vel.Curve)-1; i++ {
		if math.Abs(vel.Curve[i]-want) > 1e-6 {
			t.Fatalf("velocity[%d] = %v, want %v", i, vel.Curve[i], want)
		}
	}
	if vel.EnvelopeUpper != nil || vel.EnvelopeLower != nil {
		t.Error("polynomial velocity carries envelope bounds; want none")
	}
}

func TestDeriveVelocity_SplineEnvelopeScaled(t *testing.T) {
	x := []float64{0, 0.02, 0.05, 0.08, 0.11, 0.15}
	y := []float64{2.3, 3.0, 4.1, 5.6, 7.0, 9.2}
	series := makeSeries(x, y)

	res, err := Fit(series, Config{Kind: Spline, Order: 3, Smoothing: 0.2})
	if err != nil {
		t.Fatalf("Fit returned error: %v", err)
	}
	sr := res.(*SplineResult)
	vel := DeriveVelocity(sr)

	du, dl := sr.DerivativeEnvelope()
	for j := range du {
		if math.Abs(vel.EnvelopeUpper[j]-units.SpeedKmPerS(du[j])) > 1e-9 {
			t.Fatalf("velocity envelope upper[%d] not scaled from derivative extrema", j)
		}
		if math.Abs(vel.EnvelopeLower[j]-units.SpeedKmPerS(dl[j])) > 1e-9 {
			t.Fatalf("velocity envelope lower[%d] not scaled from derivative extrema", j)
		}
	}
}

func TestFit_Idempotent(t *testing.T) {
	series := makeSeries([]float64{0, 0.04, 0.09, 0.13, 0.2, 0.27},
		[]float64{2.2, 3.1, 4.0, 5.3, 7.1, 9.4})

	polyA, err := Fit(series, Config{Kind: Polynomial, Order: 2})
	if err != nil {
		t.Fatalf("Fit returned error: %v", err)
	}
	polyB, _ := Fit(series, Config{Kind: Polynomial, Order: 2})
	if diff := cmp.Diff(polyA.(*PolynomialResult).Curve, polyB.(*PolynomialResult).Curve); diff != "" {
		t.Errorf("polynomial fit not idempotent (-a +b):\n%s", diff)
	}

	splA, err := Fit(series, Config{Kind: Spline, Order: 3, Smoothing: 0.3})
	if err != nil {
		t.Fatalf("Fit returned error: %v", err)
	}
	splB, _ := Fit(series, Config{Kind: Spline, Order: 3, Smoothing: 0.3})
	a, b := splA.(*SplineResult), splB.(*SplineResult)
	for j := range a.Curve {
		if math.Abs(a.Curve[j]-b.Curve[j]) > 1e-12 {
			t.Fatalf("spline curve differs at %d: %v vs %v", j, a.Curve[j], b.Curve[j])
		}
		if math.Abs(a.EnvelopeUpper[j]-b.EnvelopeUpper[j]) > 1e-12 {
			t.Fatalf("spline envelope differs at %d", j)
		}
	}
}

func TestGradient(t *testing.T) {
	// Exact for quadratics on a uniform grid in the interior.
	x := make([]float64, 21)
	y := make([]float64, 21)
	for i := range x {
		x[i] = float64(i) * 0.1
		y[i] = 2*x[i]*x[i] + 3*x[i] + 1
	}
	g := gradient(y, x)
	for i := 1; i < len(x)-1; i++ {
		want := 4*x[i] + 3
		if math.Abs(g[i]-want) > 1e-9 {
			t.Fatalf("gradient[%d] = %v, want %v", i, g[i], want)
		}
	}
	// One-sided boundary values are first-order.
	if math.Abs(g[0]-((y[1]-y[0])/(x[1]-x[0]))) > 1e-12 {
		t.Errorf("left boundary not one-sided difference")
	}
	if n := len(x) - 1; math.Abs(g[n]-((y[n]-y[n-1])/(x[n]-x[n-1]))) > 1e-12 {
		t.Errorf("right boundary not one-sided difference")
	}
}

func TestGradient_NonUniform(t *testing.T) {
	x := []float64{0, 0.1, 0.25, 0.3, 0.55, 0.8}
	y := make([]float64, len(x))
	for i := range x {
		y[i] = x[i] * x[i]
	}
	g := gradient(y, x)
	for i := 1; i < len(x)-1; i++ {
		if math.Abs(g[i]-2*x[i]) > 1e-9 {
			t.Fatalf("gradient[%d] = %v, want %v", i, g[i], 2*x[i])
		}
	}
}
