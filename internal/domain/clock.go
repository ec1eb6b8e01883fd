package domain

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// clock stamps FluxTable.ProcessedAt. Tests swap it for a fake so tables
// compare equal across runs.
var clock = clockwork.NewRealClock()

// SetClock replaces the processing time source. Nil restores the real clock.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// Now returns the current processing time in UTC.
func Now() time.Time {
	return clock.Now().UTC()
}
