package conditioning

import "math"

// ZeroFraction returns the share of samples that are exactly zero or missing.
// Masking only turns samples missing, so the share never drops between
// passes and the run threshold it drives stays put.
func ZeroFraction(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	n := 0
	for _, v := range x {
		if v == 0 || math.IsNaN(v) {
			n++
		}
	}
	return float64(n) / float64(len(x))
}

// ZeroRunLength returns the minimum run of exact zeros treated as a logger
// fault. Days with many zeros need longer runs before they are discarded.
func ZeroRunLength(zeroFraction float64, p Params) int {
	if zeroFraction <= p.ZeroFractionThreshold || p.ZeroFractionThreshold >= 1 {
		return p.ZeroRunMin
	}
	t := (zeroFraction - p.ZeroFractionThreshold) / (1 - p.ZeroFractionThreshold)
	return p.ZeroRunMin + int(math.Round(t*float64(p.ZeroRunMax-p.ZeroRunMin)))
}

// ZeroRuns returns a copy of x with every run of at least minRun exact zeros
// set missing. A missing sample ends a run.
func ZeroRuns(x []float64, minRun int) []float64 {
	out := append([]float64(nil), x...)
	zeroRunsInPlace(out, minRun)
	return out
}

func zeroRunsInPlace(x []float64, minRun int) int {
	if minRun <= 0 {
		return 0
	}
	n := 0
	start := -1
	flush := func(end int) {
		if start >= 0 && end-start >= minRun {
			for i := start; i < end; i++ {
				x[i] = math.NaN()
			}
			n += end - start
		}
		start = -1
	}
	for i, v := range x {
		if v == 0 {
			if start < 0 {
				start = i
			}
			continue
		}
		flush(i)
	}
	flush(len(x))
	return n
}
