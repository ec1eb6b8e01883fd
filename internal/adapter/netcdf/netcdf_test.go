package netcdf_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/couchcryptid/turbulent-flux-etl/internal/adapter/netcdf"
	"github.com/couchcryptid/turbulent-flux-etl/internal/domain"
	"github.com/ctessum/cdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDay = time.Date(2020, 4, 2, 0, 0, 0, 0, time.UTC)

func testTable(t *testing.T) domain.FluxTable {
	t.Helper()
	schema, err := domain.ParseSchema("Hs,ustar")
	require.NoError(t, err)

	v := domain.MissingValues()
	v[domain.Hs] = -4.5
	v[domain.Ustar] = 0.3
	table := domain.FluxTable{
		Station: domain.Station{Name: "asfs50", Height: 2.9, SnowDepthInit: 0.2, DistanceInit: 1.8, Enabled: true},
		Day:     testDay,
		Schema:  schema,
		Records: []domain.FluxRecord{
			domain.NewRecord(schema, testDay, domain.StatusOK, &v),
			domain.MissingRecord(schema, testDay.Add(10*time.Minute), domain.StatusInsufficientData),
			domain.MissingRecord(schema, testDay.Add(20*time.Minute), domain.StatusTimeout),
		},
		Skipped: 1,
	}
	table.Stats = domain.Summarize(table)
	return table
}

func TestWriter_LoadTable(t *testing.T) {
	dir := t.TempDir()
	w := netcdf.NewWriter(dir, -9999, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	require.NoError(t, w.LoadTable(context.Background(), testTable(t)))

	f, err := os.Open(netcdf.Path(dir, "asfs50", testDay))
	require.NoError(t, err)
	defer f.Close()
	nc, err := cdf.Open(f)
	require.NoError(t, err)

	assert.Equal(t, "asfs50", nc.Header.GetAttribute("", "station"))
	assert.Equal(t, []float64{2.9}, nc.Header.GetAttribute("", "sensor_height"))
	assert.Equal(t, "W/m2", nc.Header.GetAttribute("Hs", "units"))
	assert.Equal(t, []float64{-9999}, nc.Header.GetAttribute("Hs", "missing_value"))
	assert.Equal(t, []int{3}, nc.Header.Lengths("Hs"))

	read := func(name string) []float64 {
		buf := make([]float64, 3)
		_, err := nc.Reader(name, []int{0}, []int{3}).Read(buf)
		require.NoError(t, err)
		return buf
	}
	assert.Equal(t, []float64{-4.5, -9999, -9999}, read("Hs"))
	assert.Equal(t, []float64{0, 600, 1200}, read("time"))

	status := make([]int32, 3)
	_, err = nc.Reader("status", []int{0}, []int{3}).Read(status)
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 1, 2}, status)
}

func TestWriter_EmptyTable(t *testing.T) {
	w := netcdf.NewWriter(t.TempDir(), -9999, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	table := testTable(t)
	table.Records = nil
	assert.Error(t, w.LoadTable(context.Background(), table))
}
