package domain

import "errors"

// Error kinds shared by the flux engine and the pipeline. Callers classify
// failures with errors.Is; producers wrap them with context.
var (
	// ErrInsufficientData marks a window or day with too few valid samples.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrConfiguration marks a station/day that cannot be processed as
	// configured, e.g. no heading for the day.
	ErrConfiguration = errors.New("configuration error")
	// ErrNumericalDegeneracy marks a computation that would divide by zero
	// or take a root of a negative number.
	ErrNumericalDegeneracy = errors.New("numerical degeneracy")
	// ErrConvergence marks a bulk solution that did not converge.
	ErrConvergence = errors.New("bulk model did not converge")
	// ErrDayTimeout marks a day whose computation exceeded its deadline.
	ErrDayTimeout = errors.New("day computation timed out")
	// ErrWriteExhausted marks a table that could not be written after
	// every retry.
	ErrWriteExhausted = errors.New("write retries exhausted")
)
