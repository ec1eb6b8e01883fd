package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/turbulent-flux-etl/internal/capacitor"
	"github.com/couchcryptid/turbulent-flux-etl/internal/domain"
	"github.com/couchcryptid/turbulent-flux-etl/internal/observability"
	"github.com/couchcryptid/turbulent-flux-etl/internal/pipeline"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	day1 = time.Date(2020, 1, 5, 0, 0, 0, 0, time.UTC)
	day2 = day1.AddDate(0, 0, 1)

	stationA = domain.Station{Name: "asfs30", Height: 3, Enabled: true}
	stationB = domain.Station{Name: "asfs40", Height: 2.5, Enabled: true}
)

// --- mocks ---

type mockExtractor struct {
	errFor map[string]error
	block  bool
}

func (m *mockExtractor) ExtractDay(ctx context.Context, st domain.Station, day time.Time) (domain.DayBatch, error) {
	if m.block {
		<-ctx.Done()
		return domain.DayBatch{}, fmt.Errorf("read %s: %w", st.Name, ctx.Err())
	}
	if err := m.errFor[st.Name]; err != nil {
		return domain.DayBatch{}, err
	}
	return domain.DayBatch{Station: st, Day: day, Unavailable: true}, nil
}

// mockProcessor returns a small table, or the error registered for the
// station.
type mockProcessor struct {
	errFor  map[string]error
	block   bool
	onStart func()
	records []domain.FluxRecord
}

func (m *mockProcessor) ProcessDay(ctx context.Context, b domain.DayBatch) (domain.FluxTable, error) {
	if m.onStart != nil {
		m.onStart()
	}
	if m.block {
		<-ctx.Done()
		err := ctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", domain.ErrDayTimeout, err)
		}
		return missingTable(b, domain.StatusTimeout), err
	}
	if err := m.errFor[b.Station.Name]; err != nil {
		return domain.FluxTable{}, err
	}
	if m.records != nil {
		return domain.FluxTable{Station: b.Station, Day: b.Day, Schema: domain.FullSchema(), Records: m.records}, nil
	}
	return missingTable(b, domain.StatusInsufficientData), nil
}

func (m *mockProcessor) TimeoutTable(st domain.Station, day time.Time) domain.FluxTable {
	return missingTable(domain.DayBatch{Station: st, Day: day}, domain.StatusTimeout)
}

func missingTable(b domain.DayBatch, status domain.RecordStatus) domain.FluxTable {
	schema := domain.FullSchema()
	t := domain.FluxTable{Station: b.Station, Day: b.Day, Schema: schema}
	for i := range 3 {
		t.Records = append(t.Records, domain.MissingRecord(schema, b.Day.Add(time.Duration(i)*10*time.Minute), status))
	}
	t.Skipped = 3
	return t
}

type mockLoader struct {
	mu       sync.Mutex
	failures int // first n calls fail
	calls    int
	loaded   []domain.FluxTable
}

func (m *mockLoader) LoadTable(_ context.Context, t domain.FluxTable) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.calls <= m.failures {
		return errors.New("sink unavailable")
	}
	m.loaded = append(m.loaded, t)
	return nil
}

type mockLedger struct {
	mu       sync.Mutex
	outcomes []pipeline.Outcome
	summary  *pipeline.Summary
}

func (m *mockLedger) StartRun(context.Context, int) (string, error) { return "run-1", nil }

func (m *mockLedger) RecordOutcome(_ context.Context, runID string, o pipeline.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if runID != "run-1" {
		return errors.New("unknown run")
	}
	m.outcomes = append(m.outcomes, o)
	return nil
}

func (m *mockLedger) FinishRun(_ context.Context, _ string, s pipeline.Summary) error {
	m.summary = &s
	return nil
}

func testOptions() pipeline.Options {
	return pipeline.Options{
		Workers:          2,
		DayTimeout:       time.Second,
		WriteMaxAttempts: 3,
		RetryInitial:     time.Millisecond,
		RetryMax:         5 * time.Millisecond,
	}
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func statuses(outcomes []pipeline.Outcome) []pipeline.OutcomeStatus {
	out := make([]pipeline.OutcomeStatus, len(outcomes))
	for i, o := range outcomes {
		out[i] = o.Status
	}
	return out
}

// --- tests ---

func TestJobs(t *testing.T) {
	disabled := domain.Station{Name: "off", Height: 2}
	jobs := pipeline.Jobs([]domain.Station{stationA, disabled, stationB}, day1.Add(13*time.Hour), day2)

	want := []pipeline.Job{
		{Station: stationA, Day: day1},
		{Station: stationB, Day: day1},
		{Station: stationA, Day: day2},
		{Station: stationB, Day: day2},
	}
	if diff := cmp.Diff(want, jobs); diff != "" {
		t.Errorf("jobs mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, pipeline.Jobs([]domain.Station{stationA}, day2, day1))
}

func TestTrailingRange(t *testing.T) {
	start, end := pipeline.TrailingRange(time.Date(2020, 1, 10, 2, 0, 0, 0, time.UTC), 3)
	assert.Equal(t, time.Date(2020, 1, 7, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2020, 1, 9, 0, 0, 0, 0, time.UTC), end)
}

func TestPipeline_Run_HappyPath(t *testing.T) {
	ldr := &mockLoader{}
	ledger := &mockLedger{}
	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(&mockExtractor{}, &mockProcessor{}, ldr, ledger, discard(), metrics, testOptions())

	require.Error(t, p.CheckReadiness(context.Background()))

	jobs := pipeline.Jobs([]domain.Station{stationA, stationB}, day1, day2)
	outcomes := p.Run(context.Background(), jobs)

	require.Len(t, outcomes, 4)
	for i, o := range outcomes {
		assert.Equal(t, jobs[i], o.Job, "outcomes are in job order")
		assert.Equal(t, pipeline.OutcomeUnavailable, o.Status)
		assert.Equal(t, 3, o.Records)
		assert.NoError(t, o.Err)
	}
	assert.Len(t, ldr.loaded, 4)
	require.NoError(t, p.CheckReadiness(context.Background()))

	assert.Len(t, ledger.outcomes, 4)
	require.NotNil(t, ledger.summary)
	assert.Equal(t, 4, ledger.summary.Jobs)
	assert.Equal(t, 12, ledger.summary.Skipped)
	assert.Equal(t, 0, ledger.summary.Failed())

	assert.InDelta(t, 4.0, testutil.ToFloat64(metrics.DaysProcessed.WithLabelValues("unavailable")), 0)
	assert.InDelta(t, 12.0, testutil.ToFloat64(metrics.Windows.WithLabelValues("insufficient_data")), 0)
	assert.InDelta(t, 0.0, testutil.ToFloat64(metrics.PipelineRunning), 0)
}

func TestPipeline_Run_FailureIsolation(t *testing.T) {
	ext := &mockExtractor{errFor: map[string]error{"asfs40": errors.New("corrupt file")}}
	proc := &mockProcessor{errFor: map[string]error{
		"asfs30": fmt.Errorf("no heading: %w", domain.ErrConfiguration),
		"asfs50": errors.New("boom"),
	}}
	stationC := domain.Station{Name: "asfs50", Height: 2, Enabled: true}
	stationD := domain.Station{Name: "asfs60", Height: 2, Enabled: true}
	ldr := &mockLoader{}
	p := pipeline.New(ext, proc, ldr, nil, discard(), observability.NewMetricsForTesting(), testOptions())

	outcomes := p.Run(context.Background(), pipeline.Jobs([]domain.Station{stationA, stationB, stationC, stationD}, day1, day1))

	assert.Equal(t, []pipeline.OutcomeStatus{
		pipeline.OutcomeConfiguration,
		pipeline.OutcomeExtractError,
		pipeline.OutcomeComputeError,
		pipeline.OutcomeUnavailable,
	}, statuses(outcomes))
	require.ErrorIs(t, outcomes[0].Err, domain.ErrConfiguration)
	require.Len(t, ldr.loaded, 1)
	assert.Equal(t, "asfs60", ldr.loaded[0].Station.Name)

	s := pipeline.Summarize(outcomes)
	assert.Equal(t, 3, s.Failed())
}

func TestPipeline_Run_RetriesLoad(t *testing.T) {
	ldr := &mockLoader{failures: 2}
	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(&mockExtractor{}, &mockProcessor{}, ldr, nil, discard(), metrics, testOptions())

	outcomes := p.Run(context.Background(), pipeline.Jobs([]domain.Station{stationA}, day1, day1))

	require.Len(t, outcomes, 1)
	assert.Equal(t, pipeline.OutcomeUnavailable, outcomes[0].Status)
	assert.Equal(t, 3, ldr.calls)
	assert.InDelta(t, 2.0, testutil.ToFloat64(metrics.LoadRetries), 0)
}

func TestPipeline_Run_WriteExhausted(t *testing.T) {
	ldr := &mockLoader{failures: 100}
	p := pipeline.New(&mockExtractor{}, &mockProcessor{}, ldr, nil, discard(), observability.NewMetricsForTesting(), testOptions())

	outcomes := p.Run(context.Background(), pipeline.Jobs([]domain.Station{stationA}, day1, day1))

	require.Len(t, outcomes, 1)
	assert.Equal(t, pipeline.OutcomeWriteExhausted, outcomes[0].Status)
	require.ErrorIs(t, outcomes[0].Err, domain.ErrWriteExhausted)
	assert.Equal(t, 3, ldr.calls)
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_DayTimeout(t *testing.T) {
	opts := testOptions()
	opts.DayTimeout = 20 * time.Millisecond
	ldr := &mockLoader{}
	p := pipeline.New(&mockExtractor{}, &mockProcessor{block: true}, ldr, nil, discard(), observability.NewMetricsForTesting(), opts)

	outcomes := p.Run(context.Background(), pipeline.Jobs([]domain.Station{stationA}, day1, day1))

	require.Len(t, outcomes, 1)
	assert.Equal(t, pipeline.OutcomeTimeout, outcomes[0].Status)
	require.ErrorIs(t, outcomes[0].Err, domain.ErrDayTimeout)
	require.Len(t, ldr.loaded, 1, "timed out days still write their missing records")
	assert.Equal(t, domain.StatusTimeout, ldr.loaded[0].Records[0].Status)
}

func TestPipeline_Run_ExtractTimeoutWritesMissingDay(t *testing.T) {
	opts := testOptions()
	opts.DayTimeout = 20 * time.Millisecond
	ldr := &mockLoader{}
	p := pipeline.New(&mockExtractor{block: true}, &mockProcessor{}, ldr, nil, discard(), observability.NewMetricsForTesting(), opts)

	outcomes := p.Run(context.Background(), pipeline.Jobs([]domain.Station{stationA}, day1, day1))

	require.Len(t, outcomes, 1)
	assert.Equal(t, pipeline.OutcomeTimeout, outcomes[0].Status)
	require.ErrorIs(t, outcomes[0].Err, domain.ErrDayTimeout)
	require.ErrorIs(t, outcomes[0].Err, context.DeadlineExceeded)
	assert.Equal(t, 3, outcomes[0].Records)
	require.Len(t, ldr.loaded, 1)
	assert.Equal(t, stationA.Name, ldr.loaded[0].Station.Name)
	for _, r := range ldr.loaded[0].Records {
		assert.Equal(t, domain.StatusTimeout, r.Status)
		assert.True(t, r.AllMissing())
	}
}

func TestPipeline_Run_CancelledMidDay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ldr := &mockLoader{}
	proc := &mockProcessor{block: true, onStart: cancel}
	p := pipeline.New(&mockExtractor{}, proc, ldr, nil, discard(), observability.NewMetricsForTesting(), testOptions())

	outcomes := p.Run(ctx, pipeline.Jobs([]domain.Station{stationA}, day1, day1))

	require.Len(t, outcomes, 1)
	assert.Equal(t, pipeline.OutcomeCancelled, outcomes[0].Status)
	require.ErrorIs(t, outcomes[0].Err, context.Canceled)
	assert.Empty(t, ldr.loaded)
}

func TestPipeline_Run_CountsOnlyComputedNonConvergence(t *testing.T) {
	schema := domain.FullSchema()
	v := domain.MissingValues()
	rec := func(computed, converged bool) domain.FluxRecord {
		r := domain.NewRecord(schema, day1, domain.StatusOK, &v)
		r.BulkComputed, r.BulkConverged = computed, converged
		return r
	}
	proc := &mockProcessor{records: []domain.FluxRecord{
		rec(true, false),
		rec(false, false),
		rec(true, true),
	}}
	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(&mockExtractor{}, proc, &mockLoader{}, nil, discard(), metrics, testOptions())

	p.Run(context.Background(), pipeline.Jobs([]domain.Station{stationA}, day1, day1))

	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.BulkNonConverge), 0)
	assert.InDelta(t, 3.0, testutil.ToFloat64(metrics.Windows.WithLabelValues("ok")), 0)
}

func TestPipeline_Run_Cancelled(t *testing.T) {
	ldr := &mockLoader{}
	p := pipeline.New(&mockExtractor{}, &mockProcessor{}, ldr, nil, discard(), observability.NewMetricsForTesting(), testOptions())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes := p.Run(ctx, pipeline.Jobs([]domain.Station{stationA, stationB}, day1, day1))
	assert.Equal(t, []pipeline.OutcomeStatus{pipeline.OutcomeCancelled, pipeline.OutcomeCancelled}, statuses(outcomes))
	assert.Empty(t, ldr.loaded)
}

func TestPipeline_Run_WithFluxCapacitor(t *testing.T) {
	cp := capacitor.DefaultParams()
	fc := capacitor.New(cp, discard())
	ldr := &mockLoader{}
	p := pipeline.New(&mockExtractor{}, fc, ldr, nil, discard(), observability.NewMetricsForTesting(), testOptions())

	outcomes := p.Run(context.Background(), pipeline.Jobs([]domain.Station{stationA}, day1, day1))

	require.Len(t, outcomes, 1)
	assert.Equal(t, pipeline.OutcomeUnavailable, outcomes[0].Status)
	assert.Equal(t, cp.WindowsPerDay(), outcomes[0].Records)
	assert.Equal(t, cp.WindowsPerDay(), outcomes[0].Skipped)
	require.Len(t, ldr.loaded, 1)
	assert.True(t, ldr.loaded[0].Records[0].AllMissing())
}

func TestPipeline_LastRun(t *testing.T) {
	p := pipeline.New(&mockExtractor{}, &mockProcessor{}, &mockLoader{}, &mockLedger{}, discard(), observability.NewMetricsForTesting(), testOptions())

	_, ok := p.LastRun()
	require.False(t, ok)

	p.Run(context.Background(), pipeline.Jobs([]domain.Station{stationA}, day1, day2))

	rep, ok := p.LastRun()
	require.True(t, ok)
	assert.Equal(t, "run-1", rep.ID)
	assert.Equal(t, 2, rep.Summary.Jobs)
	assert.Equal(t, 2, rep.Summary.Counts[pipeline.OutcomeUnavailable])
}
