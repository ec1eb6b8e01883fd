package capacitor

import (
	"fmt"
	"time"

	"github.com/couchcryptid/turbulent-flux-etl/internal/bulk"
	"github.com/couchcryptid/turbulent-flux-etl/internal/conditioning"
	"github.com/couchcryptid/turbulent-flux-etl/internal/domain"
	"github.com/couchcryptid/turbulent-flux-etl/internal/flux"
)

const day = 24 * time.Hour

// Params configures a FluxCapacitor. It is built once from configuration
// and never modified afterwards.
type Params struct {
	Window           time.Duration
	NativeRate       float64 // Hz of the raw logger
	SampleRate       float64 // Hz of the resampled grid
	HeadingAveraging time.Duration
	MinValidFraction float64 // of U, V and W samples per window

	// FallbackPressure (hPa) stands in for a window without a barometer.
	FallbackPressure float64
	// BoundaryLayerDepth (m) scales convective gustiness in the bulk model.
	BoundaryLayerDepth float64

	Conditioning conditioning.Params
	Flux         flux.Params
	Bulk         bulk.Params
	Schema       domain.Schema
}

// DefaultParams returns the standard configuration: 10 minute windows on a
// 10 Hz grid resampled from 20 Hz, one orientation per day.
func DefaultParams() Params {
	return Params{
		Window:             10 * time.Minute,
		NativeRate:         20,
		SampleRate:         10,
		HeadingAveraging:   day,
		MinValidFraction:   0.8,
		FallbackPressure:   1013.25,
		BoundaryLayerDepth: 600,
		Conditioning:       conditioning.DefaultParams(),
		Flux:               flux.DefaultParams(),
		Bulk:               bulk.DefaultParams(),
		Schema:             domain.FullSchema(),
	}
}

// Validate reports the first inconsistent setting.
func (p Params) Validate() error {
	switch {
	case p.Window <= 0 || day%p.Window != 0:
		return fmt.Errorf("window %s must divide 24h: %w", p.Window, domain.ErrConfiguration)
	case p.SampleRate <= 0 || p.NativeRate <= 0:
		return fmt.Errorf("sample rates must be positive: %w", domain.ErrConfiguration)
	case p.HeadingAveraging > 0 && day%p.HeadingAveraging != 0:
		return fmt.Errorf("heading averaging %s must divide 24h: %w", p.HeadingAveraging, domain.ErrConfiguration)
	case p.MinValidFraction < 0 || p.MinValidFraction > 1:
		return fmt.Errorf("min valid fraction %.2f outside [0, 1]: %w", p.MinValidFraction, domain.ErrConfiguration)
	case p.Schema.Len() == 0:
		return fmt.Errorf("empty output schema: %w", domain.ErrConfiguration)
	}
	samples := p.Window.Seconds() * p.SampleRate
	if samples != float64(int(samples)) {
		return fmt.Errorf("window %s is not a whole number of samples at %.3g Hz: %w", p.Window, p.SampleRate, domain.ErrConfiguration)
	}
	return nil
}

// WindowsPerDay is the number of records in every day's table.
func (p Params) WindowsPerDay() int { return int(day / p.Window) }

// SamplesPerWindow is the length of a window on the resampled grid.
func (p Params) SamplesPerWindow() int { return int(p.Window.Seconds() * p.SampleRate) }

// Windows tiles the day starting at midnight.
func (p Params) Windows(d time.Time) []domain.Window {
	d = domain.DayStart(d)
	out := make([]domain.Window, p.WindowsPerDay())
	for i := range out {
		start := d.Add(time.Duration(i) * p.Window)
		out[i] = domain.Window{Index: i, Start: start, End: start.Add(p.Window)}
	}
	return out
}
