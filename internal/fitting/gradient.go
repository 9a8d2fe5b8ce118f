package fitting

// gradient computes the numerical derivative dy/dx with second-order central
// differences in the interior and one-sided differences at the boundaries.
// Spacing may be non-uniform; x must be strictly increasing with len(x) ==
// len(y) >= 2.
func gradient(y, x []float64) []float64 {
	n := len(y)
	out := make([]float64, n)
	if n < 2 {
		return out
	}

	out[0] = (y[1] - y[0]) / (x[1] - x[0])
	out[n-1] = (y[n-1] - y[n-2]) / (x[n-1] - x[n-2])

	for i := 1; i < n-1; i++ {
		hs := x[i] - x[i-1]
		hd := x[i+1] - x[i]
		// Weighted central difference, exact for quadratics on uneven grids.
		out[i] = (hs*hs*y[i+1] + (hd*hd-hs*hs)*y[i] - hd*hd*y[i-1]) /
			(hs * hd * (hd + hs))
	}
	return out
}
