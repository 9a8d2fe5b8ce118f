package fitting

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/moonlight1509/pythea/internal/timeaxis"
)

// fitPolynomial runs an ordinary least-squares polynomial fit of the given
// degree and builds the sigma band by re-evaluating the polynomial at
// coeffs ± sqrt(diag(cov)). The covariance scaling uses the rss/(n-order-2)
// divisor of the reference implementation.
func fitPolynomial(axis *timeaxis.Axis, y []float64, order int) (*PolynomialResult, error) {
	x := axis.Offsets()
	n := len(x)
	m := order + 1

	if order >= n-1 {
		return nil, fmt.Errorf("%w: order %d with %d samples", ErrUnderdeterminedFit, order, n)
	}
	if n-m-1 <= 0 {
		// The covariance divisor needs more points than coefficients plus one.
		return nil, fmt.Errorf("%w: covariance needs more than %d samples for order %d",
			ErrUnderdeterminedFit, m+1, order)
	}

	// Vandermonde matrix, highest power first so coefficients match the
	// conventional polyval ordering.
	v := mat.NewDense(n, m, nil)
	for i := 0; i < n; i++ {
		p := 1.0
		for j := m - 1; j >= 0; j-- {
			v.Set(i, j, p)
			p *= x[i]
		}
	}
	b := mat.NewVecDense(n, y)

	var qr mat.QR
	qr.Factorize(v)
	var sol mat.VecDense
	if err := qr.SolveVecTo(&sol, false, b); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, fmt.Errorf("%w: least squares solve: %v", ErrNumericalFailure, err)
		}
	}
	coeffs := make([]float64, m)
	copy(coeffs, sol.RawVector().Data)

	// Residual sum of squares of the solution.
	var fitted mat.VecDense
	fitted.MulVec(v, &sol)
	rss := 0.0
	for i := 0; i < n; i++ {
		r := y[i] - fitted.AtVec(i)
		rss += r * r
	}

	// Covariance of the coefficients: (VᵀV)⁻¹ scaled by the residual variance.
	var gram mat.Dense
	gram.Mul(v.T(), v)
	var gramInv mat.Dense
	if err := gramInv.Inverse(&gram); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, fmt.Errorf("%w: singular normal matrix: %v", ErrNumericalFailure, err)
		}
	}
	fac := rss / float64(n-m-1)

	cov := make([][]float64, m)
	sigma := make([]float64, m)
	for j := 0; j < m; j++ {
		cov[j] = make([]float64, m)
		for k := 0; k < m; k++ {
			cov[j][k] = gramInv.At(j, k) * fac
		}
		sigma[j] = math.Sqrt(cov[j][j])
	}

	upperCoeffs := make([]float64, m)
	lowerCoeffs := make([]float64, m)
	for j := 0; j < m; j++ {
		upperCoeffs[j] = coeffs[j] + sigma[j]
		lowerCoeffs[j] = coeffs[j] - sigma[j]
	}

	eval := axis.Eval()
	return &PolynomialResult{
		Axis:   axis,
		Curve:  polyval(coeffs, eval),
		Upper:  polyval(upperCoeffs, eval),
		Lower:  polyval(lowerCoeffs, eval),
		Coeffs: coeffs,
		Sigma:  sigma,
		Cov:    cov,
	}, nil
}

// polyval evaluates a polynomial with coefficients ordered highest degree
// first at each point of xs, by Horner's method.
func polyval(coeffs, xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		acc := 0.0
		for _, c := range coeffs {
			acc = acc*x + c
		}
		out[i] = acc
	}
	return out
}
