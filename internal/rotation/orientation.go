package rotation

import (
	"fmt"
	"math"
	"time"

	"github.com/couchcryptid/turbulent-flux-etl/internal/domain"
)

// OrientationBlocks averages the attitude channels over consecutive blocks
// of the given length starting at day. Heading uses a circular mean; roll
// and pitch arithmetic means. A non-positive averaging covers the whole day.
func OrientationBlocks(s domain.Series, day time.Time, averaging time.Duration) ([]domain.Orientation, error) {
	day = domain.DayStart(day)
	if averaging <= 0 || averaging > 24*time.Hour {
		averaging = 24 * time.Hour
	}
	if (24*time.Hour)%averaging != 0 {
		return nil, fmt.Errorf("orientation averaging %s does not divide a day: %w", averaging, domain.ErrConfiguration)
	}
	n := int((24 * time.Hour) / averaging)

	type acc struct {
		sin, cos      float64
		nh            int
		roll, pitch   float64
		nroll, npitch int
	}
	accs := make([]acc, n)
	origin := day.UnixNano()
	heading := s.Values[domain.Heading]
	roll := s.Values[domain.Roll]
	pitch := s.Values[domain.Pitch]
	for i, t := range s.Time {
		b := int((t - origin) / int64(averaging))
		if t < origin || b >= n {
			continue
		}
		a := &accs[b]
		if heading != nil && !math.IsNaN(heading[i]) {
			sn, cs := math.Sincos(heading[i] * deg)
			a.sin += sn
			a.cos += cs
			a.nh++
		}
		if roll != nil && !math.IsNaN(roll[i]) {
			a.roll += roll[i]
			a.nroll++
		}
		if pitch != nil && !math.IsNaN(pitch[i]) {
			a.pitch += pitch[i]
			a.npitch++
		}
	}

	blocks := make([]domain.Orientation, n)
	for b, a := range accs {
		start := day.Add(time.Duration(b) * averaging)
		if a.nh == 0 {
			return nil, fmt.Errorf("no valid heading in block starting %s: %w", start.Format(time.RFC3339), domain.ErrConfiguration)
		}
		blocks[b] = domain.Orientation{
			Start:   start,
			End:     start.Add(averaging),
			Heading: CircularMean(a.sin, a.cos),
			Roll:    mean(a.roll, a.nroll),
			Pitch:   mean(a.pitch, a.npitch),
		}
	}
	return blocks, nil
}

// CircularMean converts summed unit vector components into a bearing in
// [0, 360).
func CircularMean(sin, cos float64) float64 {
	d := math.Atan2(sin, cos) / deg
	if d < 0 {
		d += 360
	}
	if d >= 360 {
		d -= 360
	}
	return d
}

func mean(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
