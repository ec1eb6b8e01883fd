package rotation

import (
	"math"
)

// StreamlineResult holds one window rotated into the mean wind.
type StreamlineResult struct {
	U, V, W   []float64
	Yaw       float64 // degrees, counterclockwise from the input u axis
	Pitch     float64 // degrees
	MeanSpeed float64 // mean streamwise speed, m/s
}

// Streamline applies the double rotation: yaw so that mean v is zero, then
// pitch so that mean w is zero. Missing samples stay missing and are
// ignored by the means. An empty window yields NaN angles.
func Streamline(u, v, w []float64) StreamlineResult {
	mu, mv, mw := nanMean(u), nanMean(v), nanMean(w)
	n := len(u)
	res := StreamlineResult{
		U: make([]float64, n),
		V: make([]float64, n),
		W: make([]float64, n),
	}
	if math.IsNaN(mu) || math.IsNaN(mv) || math.IsNaN(mw) {
		for i := range res.U {
			res.U[i], res.V[i], res.W[i] = math.NaN(), math.NaN(), math.NaN()
		}
		res.Yaw, res.Pitch, res.MeanSpeed = math.NaN(), math.NaN(), math.NaN()
		return res
	}

	yaw := math.Atan2(mv, mu)
	sy, cy := math.Sincos(yaw)
	horiz := math.Hypot(mu, mv)
	pitch := math.Atan2(mw, horiz)
	sp, cp := math.Sincos(pitch)

	for i := 0; i < n; i++ {
		u1 := u[i]*cy + v[i]*sy
		v1 := -u[i]*sy + v[i]*cy
		res.U[i] = u1*cp + w[i]*sp
		res.V[i] = v1
		res.W[i] = -u1*sp + w[i]*cp
	}
	res.Yaw = yaw / deg
	res.Pitch = pitch / deg
	res.MeanSpeed = math.Hypot(horiz, mw)
	return res
}

// WindSpeedDirection returns the vector mean speed and the direction the
// wind blows from, degrees clockwise from north, for earth-frame u (east)
// and v (north).
func WindSpeedDirection(u, v []float64) (speed, dir float64) {
	mu, mv := pairedMeans(u, v)
	if math.IsNaN(mu) {
		return math.NaN(), math.NaN()
	}
	speed = math.Hypot(mu, mv)
	dir = math.Mod(math.Atan2(-mu, -mv)/deg+360, 360)
	return speed, dir
}

func nanMean(x []float64) float64 {
	sum, n := 0.0, 0
	for _, v := range x {
		if !math.IsNaN(v) {
			sum += v
			n++
		}
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

func pairedMeans(u, v []float64) (float64, float64) {
	su, sv, n := 0.0, 0.0, 0
	for i := range u {
		if i >= len(v) || math.IsNaN(u[i]) || math.IsNaN(v[i]) {
			continue
		}
		su += u[i]
		sv += v[i]
		n++
	}
	if n == 0 {
		return math.NaN(), math.NaN()
	}
	return su / float64(n), sv / float64(n)
}
