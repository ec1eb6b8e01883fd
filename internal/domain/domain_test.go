package domain

import (
	"math"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDay = time.Date(2020, time.March, 14, 0, 0, 0, 0, time.UTC)

func TestParseColumn(t *testing.T) {
	tests := []struct {
		name    string
		want    Column
		wantErr bool
	}{
		{"Hs", Hs, false},
		{"Hl_Webb", HlWebb, false},
		{"zeta_level_n", Zeta, false},
		{"bulk_zeta", BulkZeta, false},
		{"hs", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseColumn(tt.name)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrConfiguration)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestColumnNamesAreUnique(t *testing.T) {
	seen := make(map[string]bool, NumColumns)
	for i := 0; i < NumColumns; i++ {
		name := Column(i).String()
		require.NotEmpty(t, name, "column %d has no name", i)
		assert.False(t, seen[name], "duplicate column name %q", name)
		seen[name] = true
	}
}

func TestParseSchema(t *testing.T) {
	t.Run("empty selects everything", func(t *testing.T) {
		s, err := ParseSchema("")
		require.NoError(t, err)
		assert.Equal(t, NumColumns, s.Len())
		assert.Equal(t, 0, s.Index(Hs))
	})

	t.Run("subset keeps order", func(t *testing.T) {
		s, err := ParseSchema("ustar, Hs")
		require.NoError(t, err)
		assert.Equal(t, []string{"ustar", "Hs"}, s.Names())
		assert.Equal(t, 1, s.Index(Hs))
		assert.Equal(t, -1, s.Index(Cd))
	})

	t.Run("unknown rejected", func(t *testing.T) {
		_, err := ParseSchema("Hs,not_a_column")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not_a_column")
	})

	t.Run("duplicate rejected", func(t *testing.T) {
		_, err := ParseSchema("Hs,Hs")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrConfiguration)
	})
}

func TestParseChannel(t *testing.T) {
	c, err := ParseChannel("T_sonic")
	require.NoError(t, err)
	assert.Equal(t, Ts, c)

	_, err = ParseChannel("nope")
	assert.Error(t, err)
}

func TestNewRecord_ProjectsAndDropsInfinities(t *testing.T) {
	schema, err := ParseSchema("Hs,ustar,Cd")
	require.NoError(t, err)

	v := MissingValues()
	v[Hs] = 12.5
	v[Ustar] = math.Inf(1)

	r := NewRecord(schema, testDay, StatusOK, &v)
	require.Equal(t, 3, r.Len())
	assert.InDelta(t, 12.5, r.At(0), 1e-12)
	assert.True(t, math.IsNaN(r.At(1)))
	assert.Equal(t, DefaultFillValue, r.Filled(1, DefaultFillValue))
	assert.Equal(t, DefaultFillValue, r.Filled(2, DefaultFillValue))
	assert.False(t, r.AllMissing())
}

func TestMissingRecord(t *testing.T) {
	r := MissingRecord(FullSchema(), testDay, StatusInsufficientData)
	assert.Equal(t, NumColumns, r.Len())
	assert.True(t, r.AllMissing())
	assert.Equal(t, StatusInsufficientData, r.Status)
}

func TestSummarize(t *testing.T) {
	schema, err := ParseSchema("Hs,ustar")
	require.NoError(t, err)

	mk := func(hs, us float64) FluxRecord {
		v := MissingValues()
		v[Hs] = hs
		v[Ustar] = us
		return NewRecord(schema, testDay, StatusOK, &v)
	}
	table := FluxTable{
		Schema:  schema,
		Records: []FluxRecord{mk(-10, 0.2), mk(20, math.NaN()), mk(5, 0.4), mk(math.NaN(), math.NaN())},
	}

	stats := Summarize(table)
	require.Len(t, stats, 2)

	assert.Equal(t, Hs, stats[0].Column)
	assert.InDelta(t, -10, stats[0].Min, 1e-12)
	assert.InDelta(t, 20, stats[0].Max, 1e-12)
	assert.InDelta(t, 5, stats[0].Mean, 1e-12)
	assert.InDelta(t, 25, stats[0].PercentMissing, 1e-12)

	assert.InDelta(t, 0.3, stats[1].Mean, 1e-12)
	assert.InDelta(t, 50, stats[1].PercentMissing, 1e-12)
}

func TestSeriesCloneIsDeep(t *testing.T) {
	s := NewSeries(3)
	s.Values[U][0] = 1
	c := s.Clone()
	c.Values[U][0] = 2
	assert.InDelta(t, 1, s.Values[U][0], 1e-12)
	assert.True(t, math.IsNaN(c.Values[V][2]))
}

func TestSeriesSlice(t *testing.T) {
	s := NewSeries(4)
	for i := range s.Time {
		s.Time[i] = testDay.Add(time.Duration(i) * time.Second).UnixNano()
		s.Values[W][i] = float64(i)
	}
	sub := s.Slice(1, 3)
	assert.Equal(t, 2, sub.Len())
	assert.Equal(t, testDay.Add(time.Second), sub.Start)
	assert.Equal(t, []float64{1, 2}, sub.Channel(W))
}

func TestNow_UsesInjectedClock(t *testing.T) {
	fake := clockwork.NewFakeClockAt(testDay.Add(6 * time.Hour))
	SetClock(fake)
	t.Cleanup(func() { SetClock(nil) })

	assert.Equal(t, testDay.Add(6*time.Hour), Now())
}

func TestOrientationHasHeading(t *testing.T) {
	assert.True(t, Orientation{Heading: 0}.HasHeading())
	assert.False(t, Orientation{Heading: math.NaN()}.HasHeading())
}
