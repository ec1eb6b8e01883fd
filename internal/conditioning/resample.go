package conditioning

import (
	"math"
	"time"

	"github.com/couchcryptid/turbulent-flux-etl/internal/domain"
)

// Resample bin-averages s onto the regular grid day + k/rate covering the
// whole UTC day. Samples outside the day are dropped, empty bins are
// missing and diagnostic codes are not carried over. Heading is averaged on
// the circle.
func Resample(s domain.Series, rate float64, day time.Time) domain.Series {
	day = domain.DayStart(day)
	n := int(math.Round(86400 * rate))
	out := domain.NewSeries(n)
	out.Start = day
	out.Rate = rate
	if n == 0 {
		return out
	}
	step := float64(time.Second) / rate
	origin := day.UnixNano()
	for k := range out.Time {
		out.Time[k] = origin + int64(math.Round(float64(k)*step))
	}

	bins := make([]int, s.Len())
	for i, t := range s.Time {
		k := int(math.Floor(float64(t-origin) / step))
		if k < 0 || k >= n {
			k = -1
		}
		bins[i] = k
	}

	count := make([]int32, n)
	sum := make([]float64, n)
	for _, ch := range domain.Channels() {
		if ch == domain.SonicDiag || ch == domain.GasDiag || s.Values[ch] == nil {
			continue
		}
		if ch == domain.Heading {
			out.Values[ch] = resampleHeading(s.Values[ch], bins, n)
			continue
		}
		clear(count)
		clear(sum)
		for i, v := range s.Values[ch] {
			if k := bins[i]; k >= 0 && !math.IsNaN(v) {
				sum[k] += v
				count[k]++
			}
		}
		dst := out.Values[ch]
		for k := range dst {
			if count[k] > 0 {
				dst[k] = sum[k] / float64(count[k])
			}
		}
	}
	return out
}

func resampleHeading(x []float64, bins []int, n int) []float64 {
	sin := make([]float64, n)
	cos := make([]float64, n)
	count := make([]int32, n)
	for i, v := range x {
		if k := bins[i]; k >= 0 && !math.IsNaN(v) {
			r := v * math.Pi / 180
			sin[k] += math.Sin(r)
			cos[k] += math.Cos(r)
			count[k]++
		}
	}
	out := make([]float64, n)
	for k := range out {
		if count[k] == 0 {
			out[k] = math.NaN()
			continue
		}
		deg := math.Atan2(sin[k], cos[k]) * 180 / math.Pi
		if deg < 0 {
			deg += 360
		}
		out[k] = deg
	}
	return out
}
