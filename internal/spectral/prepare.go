package spectral

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Prepared is one channel of a window after gap filling and detrending.
type Prepared struct {
	Values        []float64 // fluctuations about the linear trend
	Mean          float64
	Slope         float64 // per sample
	Delta         float64 // |trend over the window| / std of the fluctuations
	ValidFraction float64
}

// Prepare fills gaps in x and removes its least-squares linear trend.
// Interior gaps are interpolated linearly and edge gaps take the nearest
// valid value. ok is false when fewer than minValid of the samples are
// valid; x is never modified.
func Prepare(x []float64, minValid float64) (p Prepared, ok bool) {
	n := len(x)
	p.ValidFraction = ValidFraction(x)
	if n < 2 || p.ValidFraction < minValid || p.ValidFraction == 0 {
		return p, false
	}

	filled := fillGaps(x)
	idx := make([]float64, n)
	for i := range idx {
		idx[i] = float64(i)
	}
	intercept, slope := stat.LinearRegression(idx, filled, nil, false)

	p.Values = make([]float64, n)
	for i, v := range filled {
		p.Values[i] = v - (intercept + slope*float64(i))
	}
	p.Mean = stat.Mean(filled, nil)
	p.Slope = slope

	sd := stat.PopStdDev(p.Values, nil)
	trend := math.Abs(slope * float64(n-1))
	switch {
	case sd > 0:
		p.Delta = trend / sd
	case trend == 0:
		p.Delta = 0
	default:
		p.Delta = math.NaN()
	}
	return p, true
}

// ValidFraction returns the share of x that is not NaN.
func ValidFraction(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	n := 0
	for _, v := range x {
		if !math.IsNaN(v) {
			n++
		}
	}
	return float64(n) / float64(len(x))
}

func fillGaps(x []float64) []float64 {
	out := append([]float64(nil), x...)
	prev := -1
	for i, v := range out {
		if math.IsNaN(v) {
			continue
		}
		switch {
		case prev < 0:
			for j := 0; j < i; j++ {
				out[j] = v
			}
		case i-prev > 1:
			a := out[prev]
			step := (v - a) / float64(i-prev)
			for j := prev + 1; j < i; j++ {
				out[j] = a + step*float64(j-prev)
			}
		}
		prev = i
	}
	for j := prev + 1; j < len(out); j++ {
		out[j] = out[prev]
	}
	return out
}
