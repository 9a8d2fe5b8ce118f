package fitting

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/moonlight1509/pythea/internal/timeaxis"
)

// Roughness-weight search range. RSS is monotone in the weight, ~0 at
// lambdaMin (interpolation) and maximal at lambdaMax (straight-line limit).
const (
	lambdaMin = 1e-12
	lambdaMax = 1e9
)

// SmoothingSpline is a penalized B-spline fitted to (x, y) with a smoothing
// factor s: the roughness weight is chosen so the residual sum of squares is
// at most s, as large (smooth) as that constraint allows. s = 0 interpolates.
type SmoothingSpline struct {
	degree    int
	knots     []float64
	coeffs    []float64
	smoothing float64
	lambda    float64
}

// Degree returns the spline degree.
func (s *SmoothingSpline) Degree() int { return s.degree }

// Smoothing returns the requested smoothing factor.
func (s *SmoothingSpline) Smoothing() float64 { return s.smoothing }

// At evaluates the spline at x. Points outside the fitted range are clamped
// to the boundary.
func (s *SmoothingSpline) At(x float64) float64 {
	k := s.degree
	lo, hi := s.knots[k], s.knots[len(s.knots)-k-1]
	if x < lo {
		x = lo
	}
	if x > hi {
		x = hi
	}
	span := findSpan(s.knots, k, x)
	basis := basisFuns(s.knots, k, span, x)
	acc := 0.0
	for r := 0; r <= k; r++ {
		acc += basis[r] * s.coeffs[span-k+r]
	}
	return acc
}

// Evaluate evaluates the spline at each point of xs.
func (s *SmoothingSpline) Evaluate(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = s.At(x)
	}
	return out
}

// NewSmoothingSpline fits a degree-k smoothing spline to strictly increasing
// sites x and values y. Requires len(x) > k.
func NewSmoothingSpline(x, y []float64, degree int, smoothing float64) (*SmoothingSpline, error) {
	n := len(x)
	if degree < 1 {
		return nil, fmt.Errorf("fitting: spline degree must be >= 1, got %d", degree)
	}
	if n <= degree {
		return nil, fmt.Errorf("%w: spline degree %d with %d samples", ErrUnderdeterminedFit, degree, n)
	}

	knots := splineKnots(x, degree)
	basis := designMatrix(knots, degree, x)
	penalty := diffPenalty(n)

	lambda := lambdaMin
	coeffs, rss, err := solvePenalized(basis, penalty, y, lambda)
	if err != nil {
		return nil, err
	}

	if smoothing > 0 && rss < smoothing {
		// Find the largest roughness weight whose RSS stays within the
		// smoothing budget; RSS grows monotonically with the weight.
		lo, hi := lambdaMin, lambdaMax
		cHi, rssHi, errHi := solvePenalized(basis, penalty, y, hi)
		if errHi == nil && rssHi <= smoothing {
			lambda, coeffs = hi, cHi
		} else {
			for iter := 0; iter < 60; iter++ {
				mid := math.Sqrt(lo * hi)
				cMid, rssMid, errMid := solvePenalized(basis, penalty, y, mid)
				if errMid != nil {
					return nil, errMid
				}
				if rssMid <= smoothing {
					lo, coeffs = mid, cMid
				} else {
					hi = mid
				}
			}
			lambda = lo
		}
	}

	return &SmoothingSpline{
		degree:    degree,
		knots:     knots,
		coeffs:    coeffs,
		smoothing: smoothing,
		lambda:    lambda,
	}, nil
}

// fitSpline runs the primary smoothing-spline fit plus the 100-step envelope
// sweep over smoothing factors 0.00..0.99.
func fitSpline(axis *timeaxis.Axis, y []float64, degree int, smoothing float64) (*SplineResult, error) {
	x := axis.Offsets()
	eval := axis.Eval()

	spl, err := NewSmoothingSpline(x, y, degree, smoothing)
	if err != nil {
		return nil, err
	}

	// Residual sigma is the population standard deviation; missing values
	// (NaN) are skipped rather than poisoning the band.
	resid := make([]float64, 0, len(x))
	for i := range x {
		r := y[i] - spl.At(x[i])
		if !math.IsNaN(r) {
			resid = append(resid, r)
		}
	}
	sigma := populationStd(resid)

	curve := spl.Evaluate(eval)
	upper := make([]float64, len(curve))
	lower := make([]float64, len(curve))
	for i, v := range curve {
		upper[i] = v + sigma
		lower[i] = v - sigma
	}

	// Envelope sweep: refit at each swept smoothing factor and keep running
	// pointwise extrema of the curves and their numerical derivatives, seeded
	// with the primary fit.
	envUpper := append([]float64(nil), curve...)
	envLower := append([]float64(nil), curve...)
	primaryDeriv := gradient(curve, eval)
	derivUpper := append([]float64(nil), primaryDeriv...)
	derivLower := append([]float64(nil), primaryDeriv...)

	for i := 0; i < 100; i++ {
		swept, err := NewSmoothingSpline(x, y, degree, float64(i)/100)
		if err != nil {
			return nil, fmt.Errorf("envelope sweep step %d: %w", i, err)
		}
		sweptCurve := swept.Evaluate(eval)
		sweptDeriv := gradient(sweptCurve, eval)
		for j := range eval {
			envUpper[j] = math.Max(envUpper[j], sweptCurve[j])
			envLower[j] = math.Min(envLower[j], sweptCurve[j])
			derivUpper[j] = math.Max(derivUpper[j], sweptDeriv[j])
			derivLower[j] = math.Min(derivLower[j], sweptDeriv[j])
		}
	}

	return &SplineResult{
		Axis:          axis,
		Curve:         curve,
		Upper:         upper,
		Lower:         lower,
		EnvelopeUpper: envUpper,
		EnvelopeLower: envLower,
		Sigma:         sigma,
		Spline:        spl,
		derivUpper:    derivUpper,
		derivLower:    derivLower,
	}, nil
}

// splineKnots builds the clamped knot vector whose basis dimension equals the
// number of sites: degree+1 boundary copies on each side with n-degree-1
// interior knots taken from the sites (odd degree) or site midpoints (even
// degree).
func splineKnots(x []float64, degree int) []float64 {
	n := len(x)
	interior := n - degree - 1

	knots := make([]float64, 0, n+degree+1)
	for i := 0; i <= degree; i++ {
		knots = append(knots, x[0])
	}
	if degree%2 == 1 {
		start := (degree + 1) / 2
		for i := 0; i < interior; i++ {
			knots = append(knots, x[start+i])
		}
	} else {
		start := degree / 2
		for i := 0; i < interior; i++ {
			knots = append(knots, 0.5*(x[start+i]+x[start+i+1]))
		}
	}
	for i := 0; i <= degree; i++ {
		knots = append(knots, x[n-1])
	}
	return knots
}

// findSpan locates the knot span index i with knots[i] <= x < knots[i+1],
// clamped so the last span is used at the right boundary.
func findSpan(knots []float64, degree int, x float64) int {
	n := len(knots) - degree - 1 // basis dimension
	if x >= knots[n] {
		return n - 1
	}
	lo, hi := degree, n
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if x < knots[mid] {
			hi = mid
		} else {
			lo = mid
		}
	}
	return lo
}

// basisFuns computes the degree+1 non-zero B-spline basis values at x for the
// given span (Cox-de Boor recursion).
func basisFuns(knots []float64, degree, span int, x float64) []float64 {
	basis := make([]float64, degree+1)
	left := make([]float64, degree+1)
	right := make([]float64, degree+1)

	basis[0] = 1
	for j := 1; j <= degree; j++ {
		left[j] = x - knots[span+1-j]
		right[j] = knots[span+j] - x
		saved := 0.0
		for r := 0; r < j; r++ {
			denom := right[r+1] + left[j-r]
			term := 0.0
			if denom != 0 {
				term = basis[r] / denom
			}
			basis[r] = saved + right[r+1]*term
			saved = left[j-r] * term
		}
		basis[j] = saved
	}
	return basis
}

// designMatrix evaluates the basis at each site, giving the n x n collocation
// matrix of the penalized least-squares problem.
func designMatrix(knots []float64, degree int, x []float64) *mat.Dense {
	n := len(x)
	d := mat.NewDense(n, n, nil)
	for i, xi := range x {
		span := findSpan(knots, degree, xi)
		basis := basisFuns(knots, degree, span, xi)
		for r := 0; r <= degree; r++ {
			d.Set(i, span-degree+r, basis[r])
		}
	}
	return d
}

// diffPenalty builds the second-order difference penalty on the coefficient
// vector. With fewer than three coefficients there is nothing to penalize and
// nil is returned.
func diffPenalty(dim int) *mat.Dense {
	if dim < 3 {
		return nil
	}
	d := mat.NewDense(dim-2, dim, nil)
	for i := 0; i < dim-2; i++ {
		d.Set(i, i, 1)
		d.Set(i, i+1, -2)
		d.Set(i, i+2, 1)
	}
	return d
}

// solvePenalized solves (BᵀB + λDᵀD) c = Bᵀy and returns the coefficients and
// the residual sum of squares of the fit.
func solvePenalized(basis, penalty *mat.Dense, y []float64, lambda float64) ([]float64, float64, error) {
	n, dim := basis.Dims()

	var normal mat.Dense
	normal.Mul(basis.T(), basis)
	if penalty != nil {
		var rough mat.Dense
		rough.Mul(penalty.T(), penalty)
		rough.Scale(lambda, &rough)
		normal.Add(&normal, &rough)
	}

	sym := mat.NewSymDense(dim, nil)
	for i := 0; i < dim; i++ {
		for j := i; j < dim; j++ {
			sym.SetSym(i, j, 0.5*(normal.At(i, j)+normal.At(j, i)))
		}
	}

	yVec := mat.NewVecDense(n, y)
	var rhs mat.VecDense
	rhs.MulVec(basis.T(), yVec)

	var chol mat.Cholesky
	if ok := chol.Factorize(sym); !ok {
		// Near-singular at the interpolation limit; retry with a small ridge.
		for i := 0; i < dim; i++ {
			sym.SetSym(i, i, sym.At(i, i)+1e-10)
		}
		if ok := chol.Factorize(sym); !ok {
			return nil, 0, fmt.Errorf("%w: spline normal equations not positive definite", ErrNumericalFailure)
		}
	}
	var sol mat.VecDense
	if err := chol.SolveVecTo(&sol, &rhs); err != nil {
		return nil, 0, fmt.Errorf("%w: spline solve: %v", ErrNumericalFailure, err)
	}

	coeffs := make([]float64, dim)
	copy(coeffs, sol.RawVector().Data)

	var fitted mat.VecDense
	fitted.MulVec(basis, &sol)
	rss := 0.0
	for i := 0; i < n; i++ {
		r := y[i] - fitted.AtVec(i)
		rss += r * r
	}
	return coeffs, rss, nil
}
