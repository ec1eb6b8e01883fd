package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/couchcryptid/turbulent-flux-etl/internal/capacitor"
	"github.com/couchcryptid/turbulent-flux-etl/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const dateLayout = "2006-01-02"

// File formats for INPUT_FORMAT and OUTPUT_FORMATS.
const (
	FormatParquet = "parquet"
	FormatCSV     = "csv"
	FormatNetCDF  = "netcdf"
)

var validate = validator.New()

// Config holds all service settings, populated from environment variables.
type Config struct {
	StationsFile  string
	Stations      []domain.Station
	InputDir      string
	InputFormat   string
	OutputDir     string
	OutputFormats []string

	StartDate time.Time
	EndDate   time.Time
	// Lookback is the number of trailing days a scheduled run covers.
	Lookback int

	Workers          int
	DayTimeout       time.Duration
	FillValue        float64
	WriteMaxAttempts int
	LedgerPath       string

	KafkaBrokers       []string
	KafkaSinkTopic     string
	ClickHouseAddr     string
	ClickHouseDatabase string
	ClickHouseTable    string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	Schedule        string

	Capacitor capacitor.Params
}

// KafkaEnabled reports whether the Kafka sink is configured.
func (c *Config) KafkaEnabled() bool { return c.KafkaSinkTopic != "" && len(c.KafkaBrokers) > 0 }

// ClickHouseEnabled reports whether the ClickHouse sink is configured.
func (c *Config) ClickHouseEnabled() bool { return c.ClickHouseAddr != "" }

// Load reads configuration from environment variables, applying defaults
// where unset. A .env file in the working directory is loaded first when
// present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		StationsFile:       sharedcfg.EnvOrDefault("STATIONS_FILE", "stations.yaml"),
		InputDir:           sharedcfg.EnvOrDefault("INPUT_DIR", "data/raw"),
		InputFormat:        strings.ToLower(sharedcfg.EnvOrDefault("INPUT_FORMAT", FormatParquet)),
		OutputDir:          sharedcfg.EnvOrDefault("OUTPUT_DIR", "data/flux"),
		OutputFormats:      splitList(sharedcfg.EnvOrDefault("OUTPUT_FORMATS", FormatParquet)),
		LedgerPath:         os.Getenv("LEDGER_PATH"),
		KafkaSinkTopic:     os.Getenv("KAFKA_SINK_TOPIC"),
		ClickHouseAddr:     os.Getenv("CLICKHOUSE_ADDR"),
		ClickHouseDatabase: sharedcfg.EnvOrDefault("CLICKHOUSE_DATABASE", "default"),
		ClickHouseTable:    sharedcfg.EnvOrDefault("CLICKHOUSE_TABLE", "flux_records"),
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		Schedule:           os.Getenv("SCHEDULE"),
	}
	if b := os.Getenv("KAFKA_BROKERS"); b != "" {
		cfg.KafkaBrokers = sharedcfg.ParseBrokers(b)
	}

	if err := cfg.loadRun(); err != nil {
		return nil, err
	}
	if err := cfg.loadCapacitor(); err != nil {
		return nil, err
	}
	if err := cfg.validateFormats(); err != nil {
		return nil, err
	}

	stations, err := LoadStations(cfg.StationsFile)
	if err != nil {
		return nil, err
	}
	cfg.Stations = stations

	if cfg.KafkaSinkTopic != "" && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_SINK_TOPIC is set but KAFKA_BROKERS is empty")
	}
	return cfg, nil
}

func (c *Config) loadRun() error {
	var err error
	if c.Workers, err = envInt("WORKERS", 4); err != nil {
		return err
	}
	if c.Workers < 1 {
		return errors.New("WORKERS must be at least 1")
	}
	if c.DayTimeout, err = envDuration("DAY_TIMEOUT", "10m"); err != nil {
		return err
	}
	if c.WriteMaxAttempts, err = envInt("WRITE_MAX_ATTEMPTS", 5); err != nil {
		return err
	}
	if c.WriteMaxAttempts < 1 {
		return errors.New("WRITE_MAX_ATTEMPTS must be at least 1")
	}
	if c.FillValue, err = envFloat("FILL_VALUE", domain.DefaultFillValue); err != nil {
		return err
	}
	if c.Lookback, err = envInt("LOOKBACK_DAYS", 1); err != nil {
		return err
	}
	if c.Lookback < 1 {
		return errors.New("LOOKBACK_DAYS must be at least 1")
	}

	// A scheduled run derives its range at trigger time.
	if c.Schedule != "" && os.Getenv("START_DATE") == "" {
		return nil
	}
	if c.StartDate, err = envDate("START_DATE", ""); err != nil {
		return err
	}
	if c.EndDate, err = envDate("END_DATE", c.StartDate.Format(dateLayout)); err != nil {
		return err
	}
	if c.EndDate.Before(c.StartDate) {
		return errors.New("END_DATE is before START_DATE")
	}
	return nil
}

func (c *Config) loadCapacitor() error {
	p := capacitor.DefaultParams()
	var err error

	if p.Window, err = envDuration("WINDOW_DURATION", "10m"); err != nil {
		return err
	}
	if p.NativeRate, err = envFloat("NATIVE_RATE_HZ", p.NativeRate); err != nil {
		return err
	}
	if p.SampleRate, err = envFloat("SAMPLE_RATE_HZ", p.SampleRate); err != nil {
		return err
	}
	if p.HeadingAveraging, err = envDuration("HEADING_AVERAGING", "24h"); err != nil {
		return err
	}
	if p.MinValidFraction, err = envFloat("MIN_VALID_FRACTION", p.MinValidFraction); err != nil {
		return err
	}
	if p.Flux.Spectral.SegmentLength, err = envInt("SPECTRAL_SEGMENT_LENGTH", p.Flux.Spectral.SegmentLength); err != nil {
		return err
	}
	p.Flux.Spectral.Rate = p.SampleRate
	p.Flux.Spectral.MinValidFraction = p.MinValidFraction

	cp := &p.Conditioning
	if cp.DespikeWindow, err = envInt("DESPIKE_WINDOW", cp.DespikeWindow); err != nil {
		return err
	}
	if v := os.Getenv("DESPIKE_THRESHOLD"); v != "" {
		thr, err := strconv.ParseFloat(v, 64)
		if err != nil || thr <= 0 {
			return fmt.Errorf("invalid DESPIKE_THRESHOLD %q", v)
		}
		// The CO2 threshold stays on its own scale.
		for ch := range cp.DespikeThresholds {
			if ch != domain.CO2 {
				cp.DespikeThresholds[ch] = thr
			}
		}
	}
	if cp.ZeroRunMin, err = envInt("ZERO_RUN_MIN", cp.ZeroRunMin); err != nil {
		return err
	}
	if cp.ZeroRunMax, err = envInt("ZERO_RUN_MAX", cp.ZeroRunMax); err != nil {
		return err
	}
	if cp.ZeroRunMin > cp.ZeroRunMax {
		return errors.New("ZERO_RUN_MIN exceeds ZERO_RUN_MAX")
	}
	if cp.ZeroFractionThreshold, err = envFloat("ZERO_FRACTION_THRESHOLD", cp.ZeroFractionThreshold); err != nil {
		return err
	}

	if p.Bulk.MaxIterations, err = envInt("BULK_MAX_ITERATIONS", p.Bulk.MaxIterations); err != nil {
		return err
	}
	if p.Bulk.Tolerance, err = envFloat("BULK_TOLERANCE", p.Bulk.Tolerance); err != nil {
		return err
	}

	if p.Schema, err = domain.ParseSchema(os.Getenv("OUTPUT_COLUMNS")); err != nil {
		return fmt.Errorf("invalid OUTPUT_COLUMNS: %w", err)
	}
	if err := p.Validate(); err != nil {
		return err
	}
	c.Capacitor = p
	return nil
}

func (c *Config) validateFormats() error {
	switch c.InputFormat {
	case FormatParquet, FormatCSV:
	default:
		return fmt.Errorf("invalid INPUT_FORMAT %q", c.InputFormat)
	}
	if len(c.OutputFormats) == 0 && !c.KafkaEnabled() && !c.ClickHouseEnabled() {
		return errors.New("no sink configured: set OUTPUT_FORMATS, KAFKA_SINK_TOPIC or CLICKHOUSE_ADDR")
	}
	for _, f := range c.OutputFormats {
		if f != FormatParquet && f != FormatNetCDF {
			return fmt.Errorf("invalid OUTPUT_FORMATS entry %q", f)
		}
	}
	return nil
}

// stationsFile is the YAML layout of the station list.
type stationsFile struct {
	Stations []domain.Station `yaml:"stations" validate:"required,min=1,dive"`
}

// LoadStations reads and validates the station list. Station names must be
// unique.
func LoadStations(path string) ([]domain.Station, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read STATIONS_FILE: %w", err)
	}
	var f stationsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse STATIONS_FILE %s: %w", path, err)
	}
	if err := validate.Struct(f); err != nil {
		return nil, fmt.Errorf("invalid STATIONS_FILE %s: %w", path, err)
	}
	seen := make(map[string]bool, len(f.Stations))
	for _, st := range f.Stations {
		if seen[st.Name] {
			return nil, fmt.Errorf("invalid STATIONS_FILE %s: duplicate station %q", path, st.Name)
		}
		seen[st.Name] = true
	}
	return f.Stations, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", key, v)
	}
	return n, nil
}

func envFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", key, v)
	}
	return f, nil
}

func envDuration(key, def string) (time.Duration, error) {
	v := sharedcfg.EnvOrDefault(key, def)
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q", key, v)
	}
	return d, nil
}

func envDate(key, def string) (time.Time, error) {
	v := sharedcfg.EnvOrDefault(key, def)
	if v == "" {
		return time.Time{}, fmt.Errorf("%s is required", key)
	}
	t, err := time.ParseInLocation(dateLayout, v, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s %q: want YYYY-MM-DD", key, v)
	}
	return t, nil
}
