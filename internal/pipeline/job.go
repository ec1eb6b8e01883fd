package pipeline

import (
	"time"

	"github.com/couchcryptid/turbulent-flux-etl/internal/domain"
)

// Job is one station day.
type Job struct {
	Station domain.Station
	Day     time.Time
}

// Jobs enumerates every enabled station for every day in [start, end],
// day by day, stations in the given order within a day.
func Jobs(stations []domain.Station, start, end time.Time) []Job {
	start, end = domain.DayStart(start), domain.DayStart(end)
	var jobs []Job
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		for _, st := range stations {
			if st.Enabled {
				jobs = append(jobs, Job{Station: st, Day: d})
			}
		}
	}
	return jobs
}

// TrailingRange returns the last n complete UTC days before now.
func TrailingRange(now time.Time, n int) (time.Time, time.Time) {
	end := domain.DayStart(now).AddDate(0, 0, -1)
	return end.AddDate(0, 0, -(n - 1)), end
}

// OutcomeStatus classifies how a station day ended.
type OutcomeStatus string

const (
	OutcomeOK             OutcomeStatus = "ok"
	OutcomeUnavailable    OutcomeStatus = "unavailable"
	OutcomeTimeout        OutcomeStatus = "timeout"
	OutcomeConfiguration  OutcomeStatus = "configuration"
	OutcomeExtractError   OutcomeStatus = "extract_error"
	OutcomeComputeError   OutcomeStatus = "compute_error"
	OutcomeWriteExhausted OutcomeStatus = "write_exhausted"
	OutcomeCancelled      OutcomeStatus = "cancelled"
)

// Written reports whether a table reached the sinks.
func (s OutcomeStatus) Written() bool {
	return s == OutcomeOK || s == OutcomeUnavailable || s == OutcomeTimeout
}

// Outcome is the result of one Job.
type Outcome struct {
	Job      Job
	Status   OutcomeStatus
	Records  int
	Skipped  int
	Duration time.Duration
	Err      error
}

// Summary aggregates the outcomes of a run.
type Summary struct {
	Jobs     int
	Counts   map[OutcomeStatus]int
	Records  int
	Skipped  int
	Duration time.Duration
}

// Failed is the number of days whose table was not written.
func (s Summary) Failed() int {
	n := 0
	for st, c := range s.Counts {
		if !st.Written() {
			n += c
		}
	}
	return n
}

// Summarize counts outcomes by status.
func Summarize(outcomes []Outcome) Summary {
	s := Summary{Jobs: len(outcomes), Counts: make(map[OutcomeStatus]int)}
	for _, o := range outcomes {
		s.Counts[o.Status]++
		s.Records += o.Records
		s.Skipped += o.Skipped
	}
	return s
}

// RunReport describes a finished run. ID is empty without a ledger.
type RunReport struct {
	ID      string
	Started time.Time
	Summary Summary
}
