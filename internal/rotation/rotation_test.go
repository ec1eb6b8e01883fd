package rotation_test

import (
	"math"
	"testing"
	"time"

	"github.com/couchcryptid/turbulent-flux-etl/internal/domain"
	"github.com/couchcryptid/turbulent-flux-etl/internal/rotation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2019, 12, 1, 0, 0, 0, 0, time.UTC)

func wholeDay(heading, roll, pitch float64) domain.Orientation {
	return domain.Orientation{Start: day, End: day.Add(24 * time.Hour), Heading: heading, Roll: roll, Pitch: pitch}
}

func TestNewRotator_MissingHeading(t *testing.T) {
	_, err := rotation.NewRotator(wholeDay(math.NaN(), 0, 0))
	require.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestRotator_InverseRecoversVector(t *testing.T) {
	for _, heading := range []float64{0, 37.5, 90, 181, 359.9} {
		r, err := rotation.NewRotator(wholeDay(heading, 2.5, -1.25))
		require.NoError(t, err)
		x, y, z := r.Apply(3.2, -1.1, 0.4)
		u, v, w := r.Inverse(x, y, z)
		assert.InDelta(t, 3.2, u, 1e-12)
		assert.InDelta(t, -1.1, v, 1e-12)
		assert.InDelta(t, 0.4, w, 1e-12)
	}
}

func TestRotator_PreservesLength(t *testing.T) {
	r, err := rotation.NewRotator(wholeDay(123, 4, 7))
	require.NoError(t, err)
	x, y, z := r.Apply(1, 2, 3)
	assert.InDelta(t, math.Sqrt(14), math.Sqrt(x*x+y*y+z*z), 1e-12)
}

func TestRotator_HeadingOnly(t *testing.T) {
	// Body x pointing east.
	r, err := rotation.NewRotator(wholeDay(90, 0, 0))
	require.NoError(t, err)
	x, y, z := r.Apply(1, 0, 0)
	assert.InDelta(t, 1, x, 1e-12)
	assert.InDelta(t, 0, y, 1e-12)
	assert.InDelta(t, 0, z, 1e-12)

	// Body x pointing north.
	r, err = rotation.NewRotator(wholeDay(0, 0, 0))
	require.NoError(t, err)
	x, y, _ = r.Apply(1, 0, 0)
	assert.InDelta(t, 0, x, 1e-12)
	assert.InDelta(t, 1, y, 1e-12)
}

func TestRotator_RollKeepsXAxis(t *testing.T) {
	r, err := rotation.NewRotator(wholeDay(90, 10, 0))
	require.NoError(t, err)
	_, _, z := r.Apply(1, 0, 0)
	assert.InDelta(t, 0, z, 1e-12)
	_, _, z = r.Apply(0, 1, 0)
	assert.InDelta(t, math.Sin(10*math.Pi/180), z, 1e-12)
}

func TestOrientationBlocks_CircularMean(t *testing.T) {
	s := domain.NewSeries(4)
	for i := range s.Time {
		s.Time[i] = day.Add(time.Duration(i) * time.Hour).UnixNano()
	}
	copy(s.Values[domain.Heading], []float64{350, 10, math.NaN(), 0})
	copy(s.Values[domain.Roll], []float64{1, 3, 5, math.NaN()})

	blocks, err := rotation.OrientationBlocks(s, day, 0)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	h := blocks[0].Heading
	assert.InDelta(t, 0, math.Min(h, 360-h), 1e-9)
	assert.InDelta(t, 3, blocks[0].Roll, 1e-12)
	assert.Zero(t, blocks[0].Pitch)
	assert.Equal(t, day.Add(24*time.Hour), blocks[0].End)
}

func TestOrientationBlocks_EmptyBlockFails(t *testing.T) {
	s := domain.NewSeries(2)
	s.Time[0] = day.Add(time.Hour).UnixNano()
	s.Time[1] = day.Add(2 * time.Hour).UnixNano()
	s.Values[domain.Heading][0] = 45
	s.Values[domain.Heading][1] = 47

	blocks, err := rotation.OrientationBlocks(s, day, 12*time.Hour)
	require.ErrorIs(t, err, domain.ErrConfiguration)
	assert.Nil(t, blocks)

	_, err = rotation.OrientationBlocks(s, day, 7*time.Hour)
	require.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestRotateSeries_UsesContainingBlock(t *testing.T) {
	s := domain.NewSeries(2)
	s.Time[0] = day.Add(time.Hour).UnixNano()
	s.Time[1] = day.Add(13 * time.Hour).UnixNano()
	for i := range s.Time {
		s.Values[domain.U][i] = 1
		s.Values[domain.V][i] = 0
		s.Values[domain.W][i] = 0
	}
	blocks := []domain.Orientation{
		{Start: day, End: day.Add(12 * time.Hour), Heading: 90},
		{Start: day.Add(12 * time.Hour), End: day.Add(24 * time.Hour), Heading: 0},
	}

	out, err := rotation.RotateSeries(s, blocks)
	require.NoError(t, err)
	assert.InDelta(t, 1, out.Values[domain.U][0], 1e-12)
	assert.InDelta(t, 1, out.Values[domain.V][1], 1e-12)
	assert.Equal(t, 1.0, s.Values[domain.U][1], "input untouched")
}

func TestStreamline_ZeroesMeanCrossAndVertical(t *testing.T) {
	n := 600
	u, v, w := make([]float64, n), make([]float64, n), make([]float64, n)
	for i := range u {
		p := float64(i) / 17
		u[i] = 3 + 0.5*math.Sin(p)
		v[i] = 2 + 0.3*math.Cos(p)
		w[i] = 0.2 + 0.1*math.Sin(3*p)
	}
	res := rotation.Streamline(u, v, w)

	assert.InDelta(t, 0, mean(res.V), 1e-12)
	assert.InDelta(t, 0, mean(res.W), 1e-12)
	assert.InDelta(t, res.MeanSpeed, mean(res.U), 1e-12)
	assert.Greater(t, res.Yaw, 0.0)
}

func TestStreamline_AllMissing(t *testing.T) {
	nan := math.NaN()
	res := rotation.Streamline([]float64{nan}, []float64{nan}, []float64{nan})
	assert.True(t, math.IsNaN(res.MeanSpeed))
	assert.True(t, math.IsNaN(res.U[0]))
}

func TestWindSpeedDirection(t *testing.T) {
	tests := []struct {
		name string
		u, v float64
		dir  float64
	}{
		{"from north", 0, -5, 0},
		{"from east", -5, 0, 90},
		{"from south", 0, 5, 180},
		{"from west", 5, 0, 270},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			speed, dir := rotation.WindSpeedDirection([]float64{tt.u, tt.u}, []float64{tt.v, tt.v})
			assert.InDelta(t, 5, speed, 1e-12)
			assert.InDelta(t, tt.dir, dir, 1e-9)
		})
	}
}

func mean(x []float64) float64 {
	s := 0.0
	for _, v := range x {
		s += v
	}
	return s / float64(len(x))
}
