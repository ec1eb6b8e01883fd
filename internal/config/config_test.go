package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/turbulent-flux-etl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stationsYAML = `stations:
  - name: asfs30
    height: 3.3
    snow_depth_init: 0.12
    distance_init: 2.1
    enabled: true
  - name: asfs50
    height: 2.8
    enabled: false
`

func writeStations(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stations.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// setBase sets the variables without defaults.
func setBase(t *testing.T) {
	t.Helper()
	t.Setenv("STATIONS_FILE", writeStations(t, stationsYAML))
	t.Setenv("START_DATE", "2020-03-01")
}

func TestLoad_Defaults(t *testing.T) {
	setBase(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Len(t, cfg.Stations, 2)
	assert.Equal(t, "parquet", cfg.InputFormat)
	assert.Equal(t, []string{"parquet"}, cfg.OutputFormats)
	assert.Equal(t, time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC), cfg.StartDate)
	assert.Equal(t, cfg.StartDate, cfg.EndDate)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 10*time.Minute, cfg.DayTimeout)
	assert.InDelta(t, -9999.0, cfg.FillValue, 0)
	assert.Equal(t, 5, cfg.WriteMaxAttempts)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.False(t, cfg.KafkaEnabled())
	assert.False(t, cfg.ClickHouseEnabled())
	assert.Empty(t, cfg.Schedule)

	p := cfg.Capacitor
	assert.Equal(t, 10*time.Minute, p.Window)
	assert.Equal(t, 144, p.WindowsPerDay())
	assert.Equal(t, 24*time.Hour, p.HeadingAveraging)
	assert.Equal(t, 2048, p.Flux.Spectral.SegmentLength)
	assert.Equal(t, domain.NumColumns, p.Schema.Len())
}

func TestLoad_CustomEnv(t *testing.T) {
	setBase(t)
	t.Setenv("END_DATE", "2020-03-05")
	t.Setenv("INPUT_FORMAT", "CSV")
	t.Setenv("OUTPUT_FORMATS", "parquet, netcdf")
	t.Setenv("WORKERS", "8")
	t.Setenv("DAY_TIMEOUT", "2m")
	t.Setenv("WINDOW_DURATION", "30m")
	t.Setenv("HEADING_AVERAGING", "6h")
	t.Setenv("DESPIKE_THRESHOLD", "4")
	t.Setenv("OUTPUT_COLUMNS", "Hs,ustar,epsilon")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_SINK_TOPIC", "flux-records")
	t.Setenv("LOG_FORMAT", "text")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "csv", cfg.InputFormat)
	assert.Equal(t, []string{"parquet", "netcdf"}, cfg.OutputFormats)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 2*time.Minute, cfg.DayTimeout)
	assert.Equal(t, 4*24*time.Hour, cfg.EndDate.Sub(cfg.StartDate))
	assert.Equal(t, 48, cfg.Capacitor.WindowsPerDay())
	assert.Equal(t, 6*time.Hour, cfg.Capacitor.HeadingAveraging)
	assert.InDelta(t, 4.0, cfg.Capacitor.Conditioning.DespikeThresholds[domain.U], 0)
	assert.InDelta(t, 50.0, cfg.Capacitor.Conditioning.DespikeThresholds[domain.CO2], 0)
	assert.Equal(t, []string{"Hs", "ustar", "epsilon"}, cfg.Capacitor.Schema.Names())
	assert.True(t, cfg.KafkaEnabled())
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"invalid shutdown timeout", "SHUTDOWN_TIMEOUT", "not-a-duration"},
		{"window not dividing day", "WINDOW_DURATION", "7m"},
		{"bad heading averaging", "HEADING_AVERAGING", "5h"},
		{"zero workers", "WORKERS", "0"},
		{"bad workers", "WORKERS", "many"},
		{"bad start date", "START_DATE", "03/01/2020"},
		{"end before start", "END_DATE", "2020-02-01"},
		{"unknown input format", "INPUT_FORMAT", "hdf5"},
		{"unknown output format", "OUTPUT_FORMATS", "parquet,xlsx"},
		{"unknown column", "OUTPUT_COLUMNS", "Hs,not_a_column"},
		{"bad fill value", "FILL_VALUE", "none"},
		{"zero write attempts", "WRITE_MAX_ATTEMPTS", "0"},
		{"zero run bounds", "ZERO_RUN_MIN", "20000"},
		{"bad despike threshold", "DESPIKE_THRESHOLD", "-1"},
		{"kafka topic without brokers", "KAFKA_SINK_TOPIC", "flux"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBase(t)
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestLoad_ErrorNamesVariable(t *testing.T) {
	setBase(t)
	t.Setenv("DAY_TIMEOUT", "-1s")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DAY_TIMEOUT")
}

func TestLoad_ScheduleWithoutDates(t *testing.T) {
	t.Setenv("STATIONS_FILE", writeStations(t, stationsYAML))
	t.Setenv("SCHEDULE", "0 2 * * *")
	t.Setenv("LOOKBACK_DAYS", "3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.StartDate.IsZero())
	assert.Equal(t, 3, cfg.Lookback)
}

func TestLoad_MissingStartDate(t *testing.T) {
	t.Setenv("STATIONS_FILE", writeStations(t, stationsYAML))
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "START_DATE")
}

func TestLoadStations(t *testing.T) {
	stations, err := LoadStations(writeStations(t, stationsYAML))
	require.NoError(t, err)
	require.Len(t, stations, 2)
	assert.Equal(t, domain.Station{Name: "asfs30", Height: 3.3, SnowDepthInit: 0.12, DistanceInit: 2.1, Enabled: true}, stations[0])
	assert.False(t, stations[1].Enabled)
}

func TestLoadStations_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty list", "stations: []\n"},
		{"missing name", "stations:\n  - height: 2\n"},
		{"non-positive height", "stations:\n  - name: a\n    height: 0\n"},
		{"duplicate", "stations:\n  - name: a\n    height: 2\n  - name: a\n    height: 3\n"},
		{"not yaml", "stations: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadStations(writeStations(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadStations_MissingFile(t *testing.T) {
	_, err := LoadStations(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STATIONS_FILE")
}
