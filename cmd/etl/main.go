package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/couchcryptid/turbulent-flux-etl/internal/adapter/clickhouse"
	"github.com/couchcryptid/turbulent-flux-etl/internal/adapter/csvgz"
	httpadapter "github.com/couchcryptid/turbulent-flux-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/turbulent-flux-etl/internal/adapter/kafka"
	"github.com/couchcryptid/turbulent-flux-etl/internal/adapter/netcdf"
	parquetadapter "github.com/couchcryptid/turbulent-flux-etl/internal/adapter/parquet"
	"github.com/couchcryptid/turbulent-flux-etl/internal/adapter/sink"
	"github.com/couchcryptid/turbulent-flux-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/turbulent-flux-etl/internal/capacitor"
	"github.com/couchcryptid/turbulent-flux-etl/internal/config"
	"github.com/couchcryptid/turbulent-flux-etl/internal/observability"
	"github.com/couchcryptid/turbulent-flux-etl/internal/pipeline"
	"github.com/go-co-op/gocron"
)

func main() {
	rerunFailed := flag.Bool("rerun-failed", false, "rerun only the days the latest ledger run failed to write")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg)

	if err := run(cfg, logger, *rerunFailed); err != nil {
		logger.Error("etl failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, rerunFailed bool) error {
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var source pipeline.DayExtractor
	switch cfg.InputFormat {
	case config.FormatCSV:
		source = csvgz.NewSource(cfg.InputDir, logger)
	default:
		source = parquetadapter.NewSource(cfg.InputDir, logger)
	}

	sinks, closers, err := buildSinks(ctx, cfg, logger, metrics)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Error("sink close error", "error", err)
			}
		}
	}()
	loader := sink.NewFanout(sinks, logger, metrics)
	logger.Info("sinks configured", "sinks", loader.Names())

	var ledger *sqlite.Ledger
	var pipelineLedger pipeline.Ledger
	if cfg.LedgerPath != "" {
		ledger, err = sqlite.Open(cfg.LedgerPath, logger)
		if err != nil {
			return err
		}
		defer ledger.Close()
		pipelineLedger = ledger
	}

	processor := capacitor.New(cfg.Capacitor, logger)
	p := pipeline.New(source, processor, loader, pipelineLedger, logger, metrics, pipeline.Options{
		Workers:          cfg.Workers,
		DayTimeout:       cfg.DayTimeout,
		WriteMaxAttempts: cfg.WriteMaxAttempts,
		RetryInitial:     pipeline.DefaultOptions().RetryInitial,
		RetryMax:         pipeline.DefaultOptions().RetryMax,
	})

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, p, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
		logger.Info("shutdown complete")
	}()

	switch {
	case rerunFailed:
		if ledger == nil {
			return errors.New("-rerun-failed requires LEDGER_PATH")
		}
		jobs, err := failedJobs(ctx, ledger, cfg, logger)
		if err != nil {
			return err
		}
		return runOnce(ctx, p, jobs)
	case cfg.Schedule != "":
		return runScheduled(ctx, cfg, p, logger)
	default:
		return runOnce(ctx, p, pipeline.Jobs(cfg.Stations, cfg.StartDate, cfg.EndDate))
	}
}

// buildSinks creates the configured sinks and their close functions.
// Remote sinks are wrapped in a circuit breaker.
func buildSinks(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) ([]sink.Sink, []func() error, error) {
	var sinks []sink.Sink
	var closers []func() error
	for _, f := range cfg.OutputFormats {
		switch f {
		case config.FormatParquet:
			sinks = append(sinks, parquetadapter.NewWriter(cfg.OutputDir, cfg.FillValue, logger, metrics))
		case config.FormatNetCDF:
			sinks = append(sinks, netcdf.NewWriter(cfg.OutputDir, cfg.FillValue, logger, metrics))
		}
	}
	if cfg.KafkaEnabled() {
		w := kafkaadapter.NewWriter(cfg.KafkaBrokers, cfg.KafkaSinkTopic, logger)
		closers = append(closers, w.Close)
		sinks = append(sinks, sink.WithBreaker(w, sink.DefaultBreakerSettings(), logger))
	}
	if cfg.ClickHouseEnabled() {
		w := clickhouse.NewWriter(cfg.ClickHouseAddr, cfg.ClickHouseDatabase, cfg.ClickHouseTable, cfg.Capacitor.Schema, cfg.FillValue, logger)
		ensureCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err := w.EnsureTable(ensureCtx)
		cancel()
		if err != nil {
			return nil, closers, err
		}
		sinks = append(sinks, sink.WithBreaker(w, sink.DefaultBreakerSettings(), logger))
	}
	return sinks, closers, nil
}

func runOnce(ctx context.Context, p *pipeline.Pipeline, jobs []pipeline.Job) error {
	outcomes := p.Run(ctx, jobs)
	s := pipeline.Summarize(outcomes)
	if ctx.Err() != nil {
		return fmt.Errorf("run interrupted: %w", ctx.Err())
	}
	if n := s.Failed(); n > 0 {
		return fmt.Errorf("%d of %d station days failed", n, s.Jobs)
	}
	return nil
}

// runScheduled triggers a run over the trailing LOOKBACK_DAYS complete
// days on every SCHEDULE tick until ctx is cancelled. A tick that fires
// while a run is still going is skipped.
func runScheduled(ctx context.Context, cfg *config.Config, p *pipeline.Pipeline, logger *slog.Logger) error {
	s := gocron.NewScheduler(time.UTC)
	_, err := s.Cron(cfg.Schedule).SingletonMode().Do(func() {
		start, end := pipeline.TrailingRange(time.Now(), cfg.Lookback)
		logger.Info("scheduled run triggered",
			"start", start.Format("2006-01-02"),
			"end", end.Format("2006-01-02"),
		)
		p.Run(ctx, pipeline.Jobs(cfg.Stations, start, end))
	})
	if err != nil {
		return fmt.Errorf("invalid SCHEDULE %q: %w", cfg.Schedule, err)
	}
	s.StartAsync()
	logger.Info("scheduler started", "schedule", cfg.Schedule, "lookback_days", cfg.Lookback)

	<-ctx.Done()
	logger.Info("shutting down")
	s.Stop()
	return nil
}

// failedJobs rebuilds the jobs the latest ledger run did not write. Days of
// stations no longer configured are dropped.
func failedJobs(ctx context.Context, ledger *sqlite.Ledger, cfg *config.Config, logger *slog.Logger) ([]pipeline.Job, error) {
	run, err := ledger.LatestRun(ctx)
	if err != nil {
		return nil, err
	}
	failed, err := ledger.FailedDays(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	stations := make(map[string]int, len(cfg.Stations))
	for i, st := range cfg.Stations {
		stations[st.Name] = i
	}
	var jobs []pipeline.Job
	for _, d := range failed {
		i, ok := stations[d.Station]
		if !ok {
			logger.Warn("station no longer configured, skipping", "station", d.Station, "day", d.Day.Format("2006-01-02"))
			continue
		}
		jobs = append(jobs, pipeline.Job{Station: cfg.Stations[i], Day: d.Day})
	}
	logger.Info("rerunning failed days", "run_id", run.ID, "days", len(jobs))
	return jobs, nil
}
