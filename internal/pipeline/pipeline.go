package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/couchcryptid/turbulent-flux-etl/internal/domain"
	"github.com/couchcryptid/turbulent-flux-etl/internal/observability"
)

// DayExtractor reads one station day of raw samples. A day with no data
// at the source is returned as a batch flagged Unavailable, not an error.
type DayExtractor interface {
	ExtractDay(ctx context.Context, station domain.Station, day time.Time) (domain.DayBatch, error)
}

// DayProcessor turns a day of samples into a flux table.
//
// TimeoutTable returns the all-missing table written when extraction runs
// past the day deadline.
type DayProcessor interface {
	ProcessDay(ctx context.Context, batch domain.DayBatch) (domain.FluxTable, error)
	TimeoutTable(station domain.Station, day time.Time) domain.FluxTable
}

// TableLoader writes a flux table to the destination.
type TableLoader interface {
	LoadTable(ctx context.Context, table domain.FluxTable) error
}

// Ledger records the outcome of every station day in a run.
type Ledger interface {
	StartRun(ctx context.Context, jobs int) (string, error)
	RecordOutcome(ctx context.Context, runID string, o Outcome) error
	FinishRun(ctx context.Context, runID string, s Summary) error
}

// Options tunes the worker pool and the load retries.
type Options struct {
	Workers          int
	DayTimeout       time.Duration
	WriteMaxAttempts int
	RetryInitial     time.Duration
	RetryMax         time.Duration
}

// DefaultOptions returns the pool settings used when none are configured.
func DefaultOptions() Options {
	return Options{
		Workers:          4,
		DayTimeout:       10 * time.Minute,
		WriteMaxAttempts: 5,
		RetryInitial:     200 * time.Millisecond,
		RetryMax:         5 * time.Second,
	}
}

// Pipeline runs extract, compute and load for every (station, day) job.
type Pipeline struct {
	extractor DayExtractor
	processor DayProcessor
	loader    TableLoader
	ledger    Ledger
	logger    *slog.Logger
	metrics   *observability.Metrics
	opts      Options
	ready     atomic.Bool

	mu   sync.Mutex
	last *RunReport
}

// New creates a Pipeline with the given stages and observability. The
// ledger may be nil.
func New(e DayExtractor, p DayProcessor, l TableLoader, ledger Ledger, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Pipeline {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.WriteMaxAttempts < 1 {
		opts.WriteMaxAttempts = 1
	}
	return &Pipeline{
		extractor: e,
		processor: p,
		loader:    l,
		ledger:    ledger,
		logger:    logger,
		metrics:   metrics,
		opts:      opts,
	}
}

// CheckReadiness returns nil once the pipeline has finished at least one
// station day, or an error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not completed any station days yet")
	}
	return nil
}

// LastRun returns the report of the most recently finished run.
func (p *Pipeline) LastRun() (RunReport, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return RunReport{}, false
	}
	return *p.last, true
}

// Run processes every job and returns one Outcome per job, in job order.
// A failing day never stops the others. Cancelling ctx stops new days from
// starting; days not started or interrupted are reported with
// OutcomeCancelled.
func (p *Pipeline) Run(ctx context.Context, jobs []Job) []Outcome {
	start := time.Now()
	p.logger.Info("pipeline started", "jobs", len(jobs), "workers", p.opts.Workers)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	runID := p.startRun(ctx, len(jobs))

	outcomes := make([]Outcome, len(jobs))
	sem := make(chan struct{}, p.opts.Workers)
	var wg sync.WaitGroup

	for i, job := range jobs {
		if ctx.Err() != nil {
			outcomes[i] = Outcome{Job: job, Status: OutcomeCancelled, Err: ctx.Err()}
			continue
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(i int, job Job) {
			defer wg.Done()
			defer func() { <-sem }()
			o := p.runJob(ctx, job)
			p.recordOutcome(ctx, runID, o)
			outcomes[i] = o
		}(i, job)
	}
	wg.Wait()

	s := Summarize(outcomes)
	s.Duration = time.Since(start)
	p.finishRun(ctx, runID, s)
	p.mu.Lock()
	p.last = &RunReport{ID: runID, Started: start, Summary: s}
	p.mu.Unlock()
	p.logger.Info("pipeline finished",
		"jobs", s.Jobs,
		"ok", s.Counts[OutcomeOK],
		"failed", s.Failed(),
		"windows_skipped", s.Skipped,
		"duration", s.Duration.Round(time.Millisecond),
	)
	return outcomes
}

// runJob extracts, computes and loads one station day.
func (p *Pipeline) runJob(ctx context.Context, job Job) Outcome {
	start := time.Now()
	day := job.Day.Format("2006-01-02")
	log := p.logger.With("station", job.Station.Name, "day", day)
	o := Outcome{Job: job}
	defer func() {
		o.Duration = time.Since(start)
		p.metrics.DaysProcessed.WithLabelValues(string(o.Status)).Inc()
		p.metrics.DayDuration.Observe(o.Duration.Seconds())
	}()

	dayCtx, cancel := context.WithTimeout(ctx, p.opts.DayTimeout)
	defer cancel()

	var table domain.FluxTable
	batch, err := p.extractor.ExtractDay(dayCtx, job.Station, job.Day)
	switch {
	case err == nil:
		table, err = p.processor.ProcessDay(dayCtx, batch)
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		table = p.processor.TimeoutTable(job.Station, job.Day)
		err = fmt.Errorf("extract: %w: %w", domain.ErrDayTimeout, err)
	case !errors.Is(err, context.Canceled):
		log.Error("extract day failed", "error", err)
		o.Status, o.Err = OutcomeExtractError, err
		return o
	}

	switch {
	case err == nil:
		o.Status = OutcomeOK
		if batch.Unavailable {
			o.Status = OutcomeUnavailable
		}
	case errors.Is(err, domain.ErrDayTimeout):
		log.Warn("day timed out, writing remaining windows as missing", "error", err)
		o.Status, o.Err = OutcomeTimeout, err
	case errors.Is(err, domain.ErrConfiguration):
		log.Error("day skipped: configuration error", "error", err)
		o.Status, o.Err = OutcomeConfiguration, err
		return o
	case errors.Is(err, context.Canceled):
		log.Warn("day cancelled", "error", err)
		o.Status, o.Err = OutcomeCancelled, err
		return o
	default:
		log.Error("day skipped: compute failed", "error", err)
		o.Status, o.Err = OutcomeComputeError, err
		return o
	}

	o.Records = len(table.Records)
	o.Skipped = table.Skipped
	p.countWindows(table)

	// The day deadline bounds computation only; writes use the run context.
	if err := p.load(ctx, log, table); err != nil {
		log.Error("load table failed", "error", err)
		o.Status, o.Err = OutcomeWriteExhausted, err
		return o
	}

	if o.Skipped > 0 {
		log.Info("day complete", "records", o.Records, "windows_skipped", o.Skipped)
	} else {
		log.Debug("day complete", "records", o.Records)
	}
	p.ready.Store(true)
	return o
}

// load writes the table, retrying with exponential backoff up to
// WriteMaxAttempts attempts in total.
func (p *Pipeline) load(ctx context.Context, log *slog.Logger, table domain.FluxTable) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.opts.RetryInitial
	eb.MaxInterval = p.opts.RetryMax
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.opts.WriteMaxAttempts-1)), ctx)

	attempts := 0
	err := backoff.RetryNotify(func() error {
		attempts++
		return p.loader.LoadTable(ctx, table)
	}, b, func(err error, wait time.Duration) {
		p.metrics.LoadRetries.Inc()
		log.Warn("load failed, retrying", "error", err, "attempt", attempts, "backoff", wait)
	})
	if err != nil {
		return fmt.Errorf("after %d attempts: %w: %w", attempts, domain.ErrWriteExhausted, err)
	}
	return nil
}

func (p *Pipeline) countWindows(table domain.FluxTable) {
	var nonConverged int
	for _, r := range table.Records {
		p.metrics.Windows.WithLabelValues(string(r.Status)).Inc()
		if r.BulkComputed && !r.BulkConverged {
			nonConverged++
		}
	}
	p.metrics.BulkNonConverge.Add(float64(nonConverged))
}

func (p *Pipeline) startRun(ctx context.Context, jobs int) string {
	if p.ledger == nil {
		return ""
	}
	id, err := p.ledger.StartRun(ctx, jobs)
	if err != nil {
		p.logger.Warn("ledger start run failed", "error", err)
	}
	return id
}

func (p *Pipeline) recordOutcome(ctx context.Context, runID string, o Outcome) {
	if p.ledger == nil || runID == "" {
		return
	}
	if err := p.ledger.RecordOutcome(ctx, runID, o); err != nil {
		p.logger.Warn("ledger record failed", "error", err, "station", o.Job.Station.Name)
	}
}

func (p *Pipeline) finishRun(ctx context.Context, runID string, s Summary) {
	if p.ledger == nil || runID == "" {
		return
	}
	if err := p.ledger.FinishRun(context.WithoutCancel(ctx), runID, s); err != nil {
		p.logger.Warn("ledger finish run failed", "error", err)
	}
}
