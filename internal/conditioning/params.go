// Package conditioning cleans a station day of raw sonic and gas analyzer
// samples before any turbulence statistics are computed.
//
// Every step returns new slices; input series are never modified. Values
// are only ever replaced (by NaN or by a local median), never removed, so
// sample counts and timestamps survive conditioning unchanged.
package conditioning

import (
	"math"

	"github.com/couchcryptid/turbulent-flux-etl/internal/domain"
)

// Bounds is an inclusive physical range.
type Bounds struct {
	Min float64
	Max float64
}

// Contains reports whether x lies inside the range.
func (b Bounds) Contains(x float64) bool { return x >= b.Min && x <= b.Max }

// Params configures the conditioner.
type Params struct {
	Bounds map[domain.Channel]Bounds

	// Exact-zero runs on these channels are logger faults.
	ZeroChannels          []domain.Channel
	ZeroRunMin            int
	ZeroRunMax            int
	ZeroFractionThreshold float64

	DespikeWindow     int
	DespikeThresholds map[domain.Channel]float64

	MinSignalStrength float64 // percent
	BadPathTolerance  float64 // fraction of sonic paths
	Diag              DiagLayout
}

// DefaultParams returns the standard conditioning configuration.
func DefaultParams() Params {
	return Params{
		Bounds: map[domain.Channel]Bounds{
			domain.U:              {-40, 40},
			domain.V:              {-40, 40},
			domain.W:              {-40, 40},
			domain.Ts:             {-70, 20},
			domain.AirTemp:        {-70, 20},
			domain.SurfaceTemp:    {-80, 20},
			domain.Pressure:       {850, 1100},
			domain.H2O:            {0, 100},
			domain.CO2:            {0, 2000},
			domain.RH:             {0, 110},
			domain.SignalStrength: {0, 100},
			domain.Heading:        {0, 360},
			domain.Roll:           {-90, 90},
			domain.Pitch:          {-90, 90},
		},
		ZeroChannels:          []domain.Channel{domain.U, domain.V, domain.W, domain.Ts},
		ZeroRunMin:            200,
		ZeroRunMax:            10000,
		ZeroFractionThreshold: 0.05,
		DespikeWindow:         1200,
		DespikeThresholds: map[domain.Channel]float64{
			domain.U:   5,
			domain.V:   5,
			domain.W:   5,
			domain.Ts:  5,
			domain.H2O: 5,
			domain.CO2: 50,
		},
		MinSignalStrength: 50,
		BadPathTolerance:  1.0 / 9.0,
		Diag:              DefaultDiagLayout,
	}
}

// Report counts the values each step replaced, per channel.
type Report struct {
	Diagnostic [domain.NumChannels]int
	WeakSignal [domain.NumChannels]int
	OutOfRange [domain.NumChannels]int
	ZeroRun    [domain.NumChannels]int
	Spikes     [domain.NumChannels]int
	WindGap    [domain.NumChannels]int
}

// Total returns the number of replaced values over every step.
func (r Report) Total() int {
	n := 0
	for c := 0; c < domain.NumChannels; c++ {
		n += r.Diagnostic[c] + r.WeakSignal[c] + r.OutOfRange[c] + r.ZeroRun[c] + r.Spikes[c] + r.WindGap[c]
	}
	return n
}

// invalidate sets x[i] missing and reports whether it was valid before.
func invalidate(x []float64, i int) bool {
	if math.IsNaN(x[i]) {
		return false
	}
	x[i] = math.NaN()
	return true
}
