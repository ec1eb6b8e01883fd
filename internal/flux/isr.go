package flux

import (
	"math"
	"slices"

	"github.com/couchcryptid/turbulent-flux-etl/internal/spectral"
	"gonum.org/v1/gonum/stat"
)

// ISRFit is the log-log line fitted to the inertial subrange of a spectrum.
type ISRFit struct {
	Slope      float64
	Intercept  float64 // ln S at ln f = 0
	R2         float64
	FreqLo     float64
	FreqHi     float64
	CenterFreq float64 // geometric centre of the band
	Level      float64 // fitted S(f)·f^(5/3) at CenterFreq
}

// FitInertialSubrange searches the log-binned spectrum between ISRMinFreq
// and ISRMaxFraction of the Nyquist frequency for the run of ISRBins bins
// whose least-squares slope is closest to -5/3. Fits with r² below ISRMinR2
// are rejected and ties go to the higher frequency band. ok is false when
// no band qualifies.
func FitInertialSubrange(s spectral.Spectrum, p Params) (fit ISRFit, ok bool) {
	if len(s.Freq) < 2 || s.Missing() {
		return ISRFit{}, false
	}
	nyquist := s.Freq[len(s.Freq)-1]
	binned := spectral.LogBin(s, p.Spectral.LogBins)

	var lf, ld []float64
	for i, f := range binned.Freq {
		d := binned.Density[i]
		if f < p.ISRMinFreq || f > p.ISRMaxFraction*nyquist || !(d > 0) {
			continue
		}
		lf = append(lf, math.Log(f))
		ld = append(ld, math.Log(d))
	}
	return fitBands(lf, ld, p)
}

// fitBands scans runs of ISRBins points in log-log space.
func fitBands(lf, ld []float64, p Params) (fit ISRFit, ok bool) {
	if p.ISRBins < 2 || len(lf) < p.ISRBins {
		return ISRFit{}, false
	}

	const tie = 1e-9
	best := math.Inf(1)
	for start := 0; start+p.ISRBins <= len(lf); start++ {
		x := lf[start : start+p.ISRBins]
		y := ld[start : start+p.ISRBins]
		alpha, beta := stat.LinearRegression(x, y, nil, false)
		r2 := stat.RSquared(x, y, nil, alpha, beta)
		if !(r2 >= p.ISRMinR2) {
			continue
		}
		miss := math.Abs(beta + fiveBy3)
		if miss > best+tie {
			continue
		}
		best = math.Min(best, miss)
		center := (x[0] + x[len(x)-1]) / 2
		fit = ISRFit{
			Slope:      beta,
			Intercept:  alpha,
			R2:         r2,
			FreqLo:     math.Exp(x[0]),
			FreqHi:     math.Exp(x[len(x)-1]),
			CenterFreq: math.Exp(center),
			Level:      math.Exp(alpha + beta*center + fiveBy3*center),
		}
		ok = true
	}
	return fit, ok
}

// Dissipation converts an inertial subrange level of a velocity spectrum
// into the dissipation rate via Taylor's hypothesis at mean speed u.
func Dissipation(level, alpha, u float64) float64 {
	if !(level > 0) || !(alpha > 0) || !(u > 0) {
		return math.NaN()
	}
	return twoPi / u * math.Pow(level/alpha, 1.5)
}

// TemperatureDissipation returns the dissipation rate of temperature
// variance from the level of the temperature spectrum.
func TemperatureDissipation(level, epsilon, beta, u float64) float64 {
	if !(level > 0) || !(epsilon > 0) || !(beta > 0) || !(u > 0) {
		return math.NaN()
	}
	return level * math.Pow(twoPi/u, 2.0/3.0) * math.Cbrt(epsilon) / beta
}

// MedianEpsilon returns the median of the finite, positive estimates.
func MedianEpsilon(eps ...float64) float64 {
	var vals []float64
	for _, e := range eps {
		if finite(e) && e > 0 {
			vals = append(vals, e)
		}
	}
	switch len(vals) {
	case 0:
		return math.NaN()
	case 1:
		return vals[0]
	}
	slices.Sort(vals)
	n := len(vals)
	if n%2 == 1 {
		return vals[n/2]
	}
	return (vals[n/2-1] + vals[n/2]) / 2
}
