package synthetic_test

import (
	"math"
	"testing"
	"time"

	"github.com/couchcryptid/turbulent-flux-etl/internal/domain"
	"github.com/couchcryptid/turbulent-flux-etl/internal/synthetic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDay_ShapeAndDeterminism(t *testing.T) {
	st := domain.Station{Name: "asfs30", Height: 3.3, Enabled: true}
	day := time.Date(2020, 1, 5, 0, 0, 0, 0, time.UTC)
	o := synthetic.DefaultOptions()
	o.Duration = time.Minute

	a, err := synthetic.Day(st, day, o)
	require.NoError(t, err)
	b, err := synthetic.Day(st, day, o)
	require.NoError(t, err)

	assert.Equal(t, 1200, a.Samples.Len())
	assert.Equal(t, day.UnixNano(), a.Samples.Time[0])
	assert.Equal(t, day.Add(50*time.Millisecond).UnixNano(), a.Samples.Time[1])
	assert.Equal(t, a.Samples.Values[domain.W], b.Samples.Values[domain.W])
	assert.Equal(t, 30.0, a.Samples.Values[domain.Heading][10])

	speed := 0.0
	for i := 0; i < a.Samples.Len(); i++ {
		u, v, w := a.Samples.Values[domain.U][i], a.Samples.Values[domain.V][i], a.Samples.Values[domain.W][i]
		speed += math.Sqrt(u*u + v*v + w*w)
	}
	assert.InDelta(t, 6, speed/float64(a.Samples.Len()), 0.5)
}

func TestDay_NoHeadingAndSpikes(t *testing.T) {
	o := synthetic.DefaultOptions()
	o.Duration = 10 * time.Second
	o.NoHeading = true
	o.SpikeEvery = 50
	o.Gas = false

	b, err := synthetic.Day(domain.Station{Name: "x", Height: 2}, time.Now(), o)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(b.Samples.Values[domain.Heading][0]))
	assert.True(t, math.IsNaN(b.Samples.Values[domain.H2O][0]))
	assert.Greater(t, b.Samples.Values[domain.W][25], 15.0)
}
