// Package sqlite keeps a ledger of pipeline runs and the outcome of every
// station day in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/turbulent-flux-etl/internal/pipeline"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

const (
	dayLayout = "2006-01-02"
	// Fixed width so that timestamps sort as text.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// ErrNoRuns is returned by LatestRun when the ledger is empty.
var ErrNoRuns = errors.New("ledger has no runs")

// Run is a row of the runs table.
type Run struct {
	ID             string
	StartedAt      time.Time
	FinishedAt     time.Time // zero while the run is in progress
	Jobs           int
	Failed         int
	Records        int
	WindowsSkipped int
}

// DayOutcome is a row of the day_outcomes table.
type DayOutcome struct {
	Station        string
	Day            time.Time
	Status         pipeline.OutcomeStatus
	Records        int
	WindowsSkipped int
	Duration       time.Duration
	Error          string
}

// Ledger implements pipeline.Ledger on SQLite.
type Ledger struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens or creates the ledger database at path and applies the schema.
func Open(path string, logger *slog.Logger) (*Ledger, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", path, "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"))
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	// Workers record outcomes concurrently; SQLite takes one writer at a time.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing ledger schema: %w", err)
	}
	return &Ledger{db: db, logger: logger}, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// StartRun inserts a new run and returns its ID.
func (l *Ledger) StartRun(ctx context.Context, jobs int) (string, error) {
	id := uuid.NewString()
	if _, err := l.db.ExecContext(ctx, insertRunSQL, id, formatTime(time.Now()), jobs); err != nil {
		return "", fmt.Errorf("inserting run: %w", err)
	}
	return id, nil
}

// RecordOutcome stores the outcome of one station day. Recording the same
// day twice in a run keeps the later outcome.
func (l *Ledger) RecordOutcome(ctx context.Context, runID string, o pipeline.Outcome) error {
	var errText sql.NullString
	if o.Err != nil {
		errText = sql.NullString{String: o.Err.Error(), Valid: true}
	}
	_, err := l.db.ExecContext(ctx, insertOutcomeSQL,
		runID,
		o.Job.Station.Name,
		o.Job.Day.UTC().Format(dayLayout),
		string(o.Status),
		o.Records,
		o.Skipped,
		o.Duration.Milliseconds(),
		errText,
	)
	if err != nil {
		return fmt.Errorf("inserting outcome: %w", err)
	}
	return nil
}

// FinishRun stores the run summary.
func (l *Ledger) FinishRun(ctx context.Context, runID string, s pipeline.Summary) error {
	res, err := l.db.ExecContext(ctx, finishRunSQL,
		formatTime(time.Now()),
		s.Failed(),
		s.Records,
		s.Skipped,
		s.Duration.Milliseconds(),
		runID,
	)
	if err != nil {
		return fmt.Errorf("updating run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("updating run: unknown run %q", runID)
	}
	l.logger.Info("run recorded in ledger",
		"run_id", runID,
		"jobs", s.Jobs,
		"failed", s.Failed(),
		"records", humanize.Comma(int64(s.Records)),
	)
	return nil
}

// LatestRun returns the most recently started run.
func (l *Ledger) LatestRun(ctx context.Context) (Run, error) {
	var (
		r                  Run
		started, finished string
	)
	err := l.db.QueryRowContext(ctx, selectLatestRunSQL).Scan(
		&r.ID, &started, &finished, &r.Jobs, &r.Failed, &r.Records, &r.WindowsSkipped,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNoRuns
	}
	if err != nil {
		return Run{}, fmt.Errorf("scanning run: %w", err)
	}
	if r.StartedAt, err = parseTime(started); err != nil {
		return Run{}, err
	}
	if finished != "" {
		if r.FinishedAt, err = parseTime(finished); err != nil {
			return Run{}, err
		}
	}
	return r, nil
}

// Outcomes returns every recorded day of a run, ordered by day then station.
func (l *Ledger) Outcomes(ctx context.Context, runID string) (outcomes []DayOutcome, err error) {
	rows, err := l.db.QueryContext(ctx, selectOutcomesSQL, runID)
	if err != nil {
		return nil, fmt.Errorf("querying outcomes: %w", err)
	}
	defer func() {
		if cErr := rows.Close(); cErr != nil && err == nil {
			err = fmt.Errorf("closing rows: %w", cErr)
		}
	}()

	for rows.Next() {
		var (
			o        DayOutcome
			day      string
			status   string
			duration int64
		)
		if err = rows.Scan(&o.Station, &day, &status, &o.Records, &o.WindowsSkipped, &duration, &o.Error); err != nil {
			return nil, fmt.Errorf("scanning outcome: %w", err)
		}
		if o.Day, err = time.ParseInLocation(dayLayout, day, time.UTC); err != nil {
			return nil, fmt.Errorf("parsing outcome day %q: %w", day, err)
		}
		o.Status = pipeline.OutcomeStatus(status)
		o.Duration = time.Duration(duration) * time.Millisecond
		outcomes = append(outcomes, o)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating outcomes: %w", err)
	}
	return outcomes, nil
}

// FailedDays returns the days of a run whose table was not written.
func (l *Ledger) FailedDays(ctx context.Context, runID string) ([]DayOutcome, error) {
	all, err := l.Outcomes(ctx, runID)
	if err != nil {
		return nil, err
	}
	var failed []DayOutcome
	for _, o := range all {
		if !o.Status.Written() {
			failed = append(failed, o)
		}
	}
	return failed, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing ledger time %q: %w", s, err)
	}
	return t, nil
}
