package spectral

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Moments are the central moments of one series.
type Moments struct {
	Variance float64
	Skewness float64
	Kurtosis float64 // Pearson, 3 for a Gaussian
}

// ComputeMoments returns the moments of the non-missing values of x.
// Fewer than three values, or no variance, yields NaN statistics.
func ComputeMoments(x []float64) Moments {
	vals := make([]float64, 0, len(x))
	for _, v := range x {
		if !math.IsNaN(v) {
			vals = append(vals, v)
		}
	}
	nan := Moments{Variance: math.NaN(), Skewness: math.NaN(), Kurtosis: math.NaN()}
	if len(vals) < 3 {
		return nan
	}
	m := Moments{Variance: stat.PopVariance(vals, nil)}
	if !(m.Variance > 0) {
		m.Skewness, m.Kurtosis = math.NaN(), math.NaN()
		return m
	}
	m.Skewness = stat.Skew(vals, nil)
	m.Kurtosis = stat.ExKurtosis(vals, nil) + 3
	return m
}

// Product returns the elementwise product of two fluctuation series.
func Product(x, y []float64) []float64 {
	n := min(len(x), len(y))
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = x[i] * y[i]
	}
	return out
}
