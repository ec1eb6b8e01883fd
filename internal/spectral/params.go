// Package spectral estimates auto and cross spectral densities of one
// averaging window with Welch's method.
package spectral

// Params configures the estimator.
type Params struct {
	Rate             float64 // Hz
	SegmentLength    int     // samples per Welch segment
	MinValidFraction float64 // below this a channel yields a missing spectrum
	LogBins          int     // log-spaced bins used for slope fitting
}

// DefaultParams returns the estimator settings for 10 Hz data.
func DefaultParams() Params {
	return Params{
		Rate:             10,
		SegmentLength:    2048,
		MinValidFraction: 0.8,
		LogBins:          40,
	}
}
