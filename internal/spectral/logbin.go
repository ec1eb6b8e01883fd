package spectral

import "math"

// LogBin averages s over n logarithmically spaced frequency bins spanning
// its non-zero frequencies. Bin frequencies are the geometric mean of their
// members. Empty bins and non-finite densities are dropped.
func LogBin(s Spectrum, n int) Spectrum {
	if n <= 0 || len(s.Freq) < 2 {
		return Spectrum{}
	}
	lo := math.Log(s.Freq[1])
	hi := math.Log(s.Freq[len(s.Freq)-1])
	width := (hi - lo) / float64(n)

	var out Spectrum
	k := 1
	for b := 0; b < n; b++ {
		edge := lo + width*float64(b+1)
		sumLogF, sumD, cnt := 0.0, 0.0, 0
		for ; k < len(s.Freq); k++ {
			lf := math.Log(s.Freq[k])
			if lf > edge && b < n-1 {
				break
			}
			if d := s.Density[k]; !math.IsNaN(d) && !math.IsInf(d, 0) {
				sumLogF += lf
				sumD += d
				cnt++
			}
		}
		if cnt == 0 {
			continue
		}
		out.Freq = append(out.Freq, math.Exp(sumLogF/float64(cnt)))
		out.Density = append(out.Density, sumD/float64(cnt))
	}
	return out
}
