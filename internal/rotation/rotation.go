// Package rotation moves sonic wind vectors between the body, earth and
// streamline frames.
package rotation

import (
	"fmt"
	"math"
	"time"

	"github.com/couchcryptid/turbulent-flux-etl/internal/domain"
)

const deg = math.Pi / 180

// Rotator turns body-frame vectors into the earth frame (u east, v north,
// w up). Angles are degrees. Heading is the compass direction of the body
// x axis, clockwise from north.
type Rotator struct {
	Roll    float64
	Pitch   float64
	Heading float64

	m [3][3]float64
}

// NewRotator builds the rotation for one orientation block. A block without
// a heading is a configuration error.
func NewRotator(o domain.Orientation) (*Rotator, error) {
	if !o.HasHeading() {
		return nil, fmt.Errorf("no heading for %s: %w", o.Start.Format(time.RFC3339), domain.ErrConfiguration)
	}
	roll, pitch := o.Roll, o.Pitch
	if math.IsNaN(roll) {
		roll = 0
	}
	if math.IsNaN(pitch) {
		pitch = 0
	}
	r := &Rotator{Roll: roll, Pitch: pitch, Heading: o.Heading}

	// Rz(yaw)·Ry(pitch)·Rx(roll): roll first, then pitch, then yaw. The
	// compass heading is clockwise from north, the math yaw counterclockwise
	// from east.
	yaw := (90 - o.Heading) * deg
	r.m = mul(mul(rotZ(yaw), rotY(pitch*deg)), rotX(roll*deg))
	return r, nil
}

// Apply rotates a body-frame vector into the earth frame.
func (r *Rotator) Apply(u, v, w float64) (x, y, z float64) {
	m := &r.m
	return m[0][0]*u + m[0][1]*v + m[0][2]*w,
		m[1][0]*u + m[1][1]*v + m[1][2]*w,
		m[2][0]*u + m[2][1]*v + m[2][2]*w
}

// Inverse rotates an earth-frame vector back into the body frame.
func (r *Rotator) Inverse(x, y, z float64) (u, v, w float64) {
	m := &r.m
	return m[0][0]*x + m[1][0]*y + m[2][0]*z,
		m[0][1]*x + m[1][1]*y + m[2][1]*z,
		m[0][2]*x + m[1][2]*y + m[2][2]*z
}

// RotateSeries returns a copy of s with U, V and W in the earth frame. Each
// sample is rotated by the block that contains its timestamp; samples
// outside every block are left missing.
func RotateSeries(s domain.Series, blocks []domain.Orientation) (domain.Series, error) {
	rots := make([]*Rotator, len(blocks))
	for i, b := range blocks {
		r, err := NewRotator(b)
		if err != nil {
			return domain.Series{}, err
		}
		rots[i] = r
	}

	out := s.Clone()
	u, v, w := out.Values[domain.U], out.Values[domain.V], out.Values[domain.W]
	if u == nil || v == nil || w == nil {
		return out, nil
	}
	b := 0
	for i, t := range out.Time {
		for b < len(blocks) && t >= blocks[b].End.UnixNano() {
			b++
		}
		if b == len(blocks) || t < blocks[b].Start.UnixNano() {
			u[i], v[i], w[i] = math.NaN(), math.NaN(), math.NaN()
			continue
		}
		u[i], v[i], w[i] = rots[b].Apply(u[i], v[i], w[i])
	}
	return out, nil
}

func rotX(a float64) [3][3]float64 {
	s, c := math.Sincos(a)
	return [3][3]float64{{1, 0, 0}, {0, c, -s}, {0, s, c}}
}

func rotY(a float64) [3][3]float64 {
	s, c := math.Sincos(a)
	return [3][3]float64{{c, 0, s}, {0, 1, 0}, {-s, 0, c}}
}

func rotZ(a float64) [3][3]float64 {
	s, c := math.Sincos(a)
	return [3][3]float64{{c, -s, 0}, {s, c, 0}, {0, 0, 1}}
}

func mul(a, b [3][3]float64) [3][3]float64 {
	var out [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				out[i][j] += a[i][k] * b[k][j]
			}
		}
	}
	return out
}
