package flux

import "math"

// safeDiv returns a/b, or NaN whenever the quotient would not be finite.
func safeDiv(a, b float64) float64 {
	if b == 0 || math.IsNaN(a) || math.IsNaN(b) {
		return math.NaN()
	}
	q := a / b
	if math.IsInf(q, 0) {
		return math.NaN()
	}
	return q
}

// safeSqrt returns NaN for negative arguments.
func safeSqrt(x float64) float64 {
	if !(x >= 0) {
		return math.NaN()
	}
	return math.Sqrt(x)
}

func finite(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }
