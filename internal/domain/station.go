package domain

import (
	"math"
	"time"
)

// Station is a drifting weather station and its calibration constants.
type Station struct {
	Name          string  `yaml:"name" validate:"required"`
	Height        float64 `yaml:"height" validate:"gt=0"` // sonic height above the surface, m
	SnowDepthInit float64 `yaml:"snow_depth_init"`        // passed through, not used by the flux math
	DistanceInit  float64 `yaml:"distance_init"`          // passed through, not used by the flux math
	Enabled       bool    `yaml:"enabled"`
}

// DayBatch is one calendar day of samples for one station.
type DayBatch struct {
	Station     Station
	Day         time.Time // UTC midnight
	Samples     Series
	Unavailable bool // ingestion flagged the whole day as missing
}

// Orientation is the sonic attitude used to rotate every sample in
// [Start, End). It is computed once per averaging block and read-only after.
type Orientation struct {
	Start   time.Time
	End     time.Time
	Heading float64 // degrees
	Roll    float64 // degrees, inclinometer y
	Pitch   float64 // degrees, inclinometer x
}

// HasHeading reports whether the block has a usable heading.
func (o Orientation) HasHeading() bool {
	return !math.IsNaN(o.Heading) && !math.IsInf(o.Heading, 0)
}

// Window is one averaging interval of a day.
type Window struct {
	Index         int
	Start         time.Time
	End           time.Time
	ValidFraction float64
}

// DayStart truncates t to UTC midnight.
func DayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
