// Package fitting implements the kinematics curve-fitting engine: it fits a
// smooth model to a time series of one scalar geometric parameter (apex
// height, axis radius, tilt, ...), derives the uncertainty bands for the
// fitted curve, and converts height-like fits into speed curves.
//
// Two strategies are supported. The polynomial strategy is an ordinary
// least-squares fit with a band built from the coefficient sigmas. The spline
// strategy is a smoothing spline with a constant residual-sigma band plus an
// empirical envelope obtained by sweeping the smoothing factor and taking
// pointwise extrema of the refits and their derivatives.
//
// Every fit call is a pure function of its inputs; results are created fresh
// and never mutated.
package fitting

import (
	"errors"
	"fmt"
	"time"

	"github.com/moonlight1509/pythea/internal/timeaxis"
)

// Kind selects the fit strategy.
type Kind string

const (
	Polynomial Kind = "poly"
	Spline     Kind = "spline"
)

// Fit error kinds. Callers that want a fallback (for example drawing a raw
// unfit line) match these with errors.Is; the engine itself never retries and
// never returns a partial result.
var (
	// ErrDegenerateInput reports fewer than two samples or a zero time span.
	ErrDegenerateInput = errors.New("fitting: degenerate input")

	// ErrUnderdeterminedFit reports too few samples for the requested order.
	ErrUnderdeterminedFit = errors.New("fitting: underdetermined fit")

	// ErrNumericalFailure reports a singular or non-converging solve.
	ErrNumericalFailure = errors.New("fitting: numerical fit failure")
)

// Sample is one timestamped measurement of a scalar model parameter.
type Sample struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// SampleSeries is an ordered sequence of samples with strictly increasing
// timestamps. Missing measurements are simply absent from the series.
type SampleSeries []Sample

// Times returns the sample timestamps in order.
func (s SampleSeries) Times() []time.Time {
	times := make([]time.Time, len(s))
	for i, sm := range s {
		times[i] = sm.Time
	}
	return times
}

// Values returns the sample values in order.
func (s SampleSeries) Values() []float64 {
	values := make([]float64, len(s))
	for i, sm := range s {
		values[i] = sm.Value
	}
	return values
}

// Config selects the strategy and its parameters. Order is the polynomial
// degree or the spline degree; Smoothing applies to splines only.
type Config struct {
	Kind      Kind    `json:"type"`
	Order     int     `json:"order"`
	Smoothing float64 `json:"smooth,omitempty"`
}

// Validate reports a configuration that no strategy can accept.
func (c Config) Validate() error {
	switch c.Kind {
	case Polynomial, Spline:
	default:
		return fmt.Errorf("fitting: unknown fit kind %q", c.Kind)
	}
	if c.Order < 1 {
		return fmt.Errorf("fitting: order must be >= 1, got %d", c.Order)
	}
	if c.Kind == Spline && c.Smoothing < 0 {
		return fmt.Errorf("fitting: smoothing must be >= 0, got %v", c.Smoothing)
	}
	return nil
}

// Result is the tagged output of a fit. The two strategies produce different
// shapes (the spline carries envelope bands the polynomial lacks), so callers
// type-switch on *PolynomialResult / *SplineResult instead of probing for
// optional fields.
type Result interface {
	// EvalAxis returns the shared 120-point evaluation axis.
	EvalAxis() *timeaxis.Axis

	// FittedCurve returns the fitted values on the evaluation axis.
	FittedCurve() []float64

	// Bands returns the primary upper and lower uncertainty bounds.
	Bands() (upper, lower []float64)

	fitResult()
}

// PolynomialResult is the output of the polynomial strategy. The band comes
// from re-evaluating the polynomial at coeffs ± sigma; it is a deliberate
// cheap approximation, not a prediction interval.
type PolynomialResult struct {
	Axis  *timeaxis.Axis
	Curve []float64
	Upper []float64
	Lower []float64

	// Coeffs are the fitted coefficients, highest degree first. Sigma holds
	// the per-coefficient standard deviations, Cov the full covariance.
	Coeffs []float64
	Sigma  []float64
	Cov    [][]float64
}

func (r *PolynomialResult) EvalAxis() *timeaxis.Axis { return r.Axis }
func (r *PolynomialResult) FittedCurve() []float64   { return r.Curve }
func (r *PolynomialResult) Bands() (upper, lower []float64) {
	return r.Upper, r.Lower
}
func (r *PolynomialResult) fitResult() {}

// SplineResult is the output of the spline strategy. Upper/Lower is the
// constant-width residual-sigma band; EnvelopeUpper/EnvelopeLower are the
// pointwise extrema over the 100-step smoothing sweep. The derivative extrema
// of the sweep are retained so speed derivation does not repeat it.
type SplineResult struct {
	Axis  *timeaxis.Axis
	Curve []float64
	Upper []float64
	Lower []float64

	EnvelopeUpper []float64
	EnvelopeLower []float64

	// Sigma is the population standard deviation of the fit residuals.
	Sigma float64

	// Spline is the primary fitted spline.
	Spline *SmoothingSpline

	derivUpper []float64
	derivLower []float64
}

func (r *SplineResult) EvalAxis() *timeaxis.Axis { return r.Axis }
func (r *SplineResult) FittedCurve() []float64   { return r.Curve }
func (r *SplineResult) Bands() (upper, lower []float64) {
	return r.Upper, r.Lower
}
func (r *SplineResult) fitResult() {}

// DerivativeEnvelope returns the pointwise extrema of the swept spline
// derivatives, in Rsun/day.
func (r *SplineResult) DerivativeEnvelope() (upper, lower []float64) {
	return r.derivUpper, r.derivLower
}

// Fit fits the series with the configured strategy. The series needs at least
// two samples spanning a nonzero time range, and order+1 free coefficients
// must be strictly fewer than the sample count.
func Fit(series SampleSeries, cfg Config) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(series) < 2 {
		return nil, fmt.Errorf("%w: %d samples", ErrDegenerateInput, len(series))
	}

	axis, err := timeaxis.New(series.Times())
	if err != nil {
		if errors.Is(err, timeaxis.ErrDegenerate) {
			return nil, fmt.Errorf("%w: %v", ErrDegenerateInput, err)
		}
		return nil, err
	}

	switch cfg.Kind {
	case Polynomial:
		return fitPolynomial(axis, series.Values(), cfg.Order)
	case Spline:
		return fitSpline(axis, series.Values(), cfg.Order, cfg.Smoothing)
	default:
		return nil, fmt.Errorf("fitting: unknown fit kind %q", cfg.Kind)
	}
}
