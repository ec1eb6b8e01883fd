// Package capacitor runs the turbulence engine over one station day:
// conditioning, resampling, tilt rotation and then, window by window,
// streamline rotation, spectral flux integration and the bulk model.
package capacitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/couchcryptid/turbulent-flux-etl/internal/bulk"
	"github.com/couchcryptid/turbulent-flux-etl/internal/conditioning"
	"github.com/couchcryptid/turbulent-flux-etl/internal/domain"
	"github.com/couchcryptid/turbulent-flux-etl/internal/flux"
	"github.com/couchcryptid/turbulent-flux-etl/internal/rotation"
)

// FluxCapacitor turns DayBatches into FluxTables. It holds no per-day
// state and is safe for concurrent use.
type FluxCapacitor struct {
	p          Params
	integrator *flux.Integrator
	logger     *slog.Logger
}

// New creates a FluxCapacitor. p should have passed Validate.
func New(p Params, logger *slog.Logger) *FluxCapacitor {
	return &FluxCapacitor{
		p:          p,
		integrator: flux.NewIntegrator(p.Flux),
		logger:     logger,
	}
}

// Params returns the configuration in use.
func (c *FluxCapacitor) Params() Params { return c.p }

// ProcessDay computes one record per window of the batch's day.
//
// A day without a usable heading returns an error wrapping
// domain.ErrConfiguration and no table. When ctx expires part way through,
// the remaining windows are emitted with StatusTimeout and the table is
// returned together with an error wrapping domain.ErrDayTimeout.
func (c *FluxCapacitor) ProcessDay(ctx context.Context, batch domain.DayBatch) (domain.FluxTable, error) {
	d := domain.DayStart(batch.Day)
	log := c.logger.With("station", batch.Station.Name, "day", d.Format("2006-01-02"))
	table := domain.FluxTable{
		Station: batch.Station,
		Day:     d,
		Schema:  c.p.Schema,
		Records: make([]domain.FluxRecord, 0, c.p.WindowsPerDay()),
	}
	if !(batch.Station.Height > 0) {
		return domain.FluxTable{}, fmt.Errorf("station %q height %.3g: %w", batch.Station.Name, batch.Station.Height, domain.ErrConfiguration)
	}

	windows := c.p.Windows(d)
	if batch.Unavailable || batch.Samples.Len() == 0 {
		log.Warn("day unavailable, emitting missing records")
		for _, w := range windows {
			table.Records = append(table.Records, domain.MissingRecord(c.p.Schema, w.Start, domain.StatusInsufficientData))
		}
		table.Skipped = len(windows)
		return c.finish(table), nil
	}

	cleaned, rep := conditioning.Condition(batch.Samples, c.p.Conditioning)
	log.Debug("conditioned samples",
		"samples", batch.Samples.Len(),
		"coverage", float64(batch.Samples.Len())/(86400*c.p.NativeRate),
		"replaced", rep.Total(),
		"spikes_w", rep.Spikes[domain.W],
		"out_of_range_ts", rep.OutOfRange[domain.Ts],
	)
	grid := conditioning.Resample(cleaned, c.p.SampleRate, d)

	blocks, err := rotation.OrientationBlocks(grid, d, c.p.HeadingAveraging)
	if err != nil {
		return domain.FluxTable{}, fmt.Errorf("station %q day %s: %w", batch.Station.Name, d.Format("2006-01-02"), err)
	}
	earth, err := rotation.RotateSeries(grid, blocks)
	if err != nil {
		return domain.FluxTable{}, fmt.Errorf("station %q day %s: %w", batch.Station.Name, d.Format("2006-01-02"), err)
	}

	per := c.p.SamplesPerWindow()
	for i, w := range windows {
		if err := ctx.Err(); err != nil {
			for _, rest := range windows[i:] {
				table.Records = append(table.Records, domain.MissingRecord(c.p.Schema, rest.Start, domain.StatusTimeout))
			}
			log.Warn("day timed out", "completed_windows", i, "remaining_windows", len(windows)-i)
			if errors.Is(err, context.DeadlineExceeded) {
				err = domain.ErrDayTimeout
			}
			return c.finish(table), fmt.Errorf("station %q day %s after %d windows: %w", batch.Station.Name, d.Format("2006-01-02"), i, err)
		}

		rec := c.window(earth.Slice(i*per, (i+1)*per), w, batch.Station, log)
		if rec.Status == domain.StatusInsufficientData {
			table.Skipped++
		}
		table.Records = append(table.Records, rec)
	}

	if table.Skipped > 0 {
		log.Info("windows skipped for insufficient data", "skipped", table.Skipped, "windows", len(windows))
	}
	return c.finish(table), nil
}

// TimeoutTable returns a table for day with every window missing and
// marked StatusTimeout.
func (c *FluxCapacitor) TimeoutTable(station domain.Station, day time.Time) domain.FluxTable {
	d := domain.DayStart(day)
	windows := c.p.Windows(d)
	table := domain.FluxTable{
		Station: station,
		Day:     d,
		Schema:  c.p.Schema,
		Records: make([]domain.FluxRecord, 0, len(windows)),
	}
	for _, w := range windows {
		table.Records = append(table.Records, domain.MissingRecord(c.p.Schema, w.Start, domain.StatusTimeout))
	}
	return c.finish(table)
}

func (c *FluxCapacitor) finish(t domain.FluxTable) domain.FluxTable {
	t.ProcessedAt = domain.Now()
	t.Stats = domain.Summarize(t)
	return t
}

func (c *FluxCapacitor) window(s domain.Series, w domain.Window, st domain.Station, log *slog.Logger) domain.FluxRecord {
	u, v, wz := s.Values[domain.U], s.Values[domain.V], s.Values[domain.W]
	w.ValidFraction = windFraction(u, v, wz)
	if w.ValidFraction < c.p.MinValidFraction || w.ValidFraction == 0 {
		log.Debug("window insufficient", "window", w.Index, "valid_fraction", w.ValidFraction)
		return domain.MissingRecord(c.p.Schema, w.Start, domain.StatusInsufficientData)
	}

	sl := rotation.Streamline(u, v, wz)
	pressure := nanMean(s.Values[domain.Pressure])
	if math.IsNaN(pressure) {
		pressure = c.p.FallbackPressure
	}
	res := c.integrator.Integrate(flux.WindowInput{
		Height:    st.Height,
		U:         sl.U,
		V:         sl.V,
		W:         sl.W,
		T:         s.Values[domain.Ts],
		Q:         s.Values[domain.H2O],
		C:         s.Values[domain.CO2],
		EarthU:    u,
		EarthV:    v,
		MeanSpeed: sl.MeanSpeed,
		Pressure:  pressure,
	})
	values := res.Values

	computed, converged := true, false
	br, err := bulk.Solve(bulk.Input{
		U:  sl.MeanSpeed,
		Ts: nanMean(s.Values[domain.SurfaceTemp]),
		Ta: nanMean(s.Values[domain.AirTemp]),
		RH: nanMean(s.Values[domain.RH]),
		P:  pressure,
		Zu: st.Height,
		Zt: st.Height,
		Zq: st.Height,
		Zi: c.p.BoundaryLayerDepth,
	}, c.p.Bulk)
	switch {
	case err == nil:
		br.Fill(&values)
		converged = true
	case errors.Is(err, domain.ErrConvergence):
		br.Fill(&values)
		log.Debug("bulk model did not converge", "window", w.Index, "iterations", br.Iterations)
	default:
		computed = false
		log.Debug("bulk model skipped", "window", w.Index, "error", err)
	}

	rec := domain.NewRecord(c.p.Schema, w.Start, domain.StatusOK, &values)
	rec.BulkComputed = computed
	rec.BulkConverged = converged
	return rec
}

func windFraction(u, v, w []float64) float64 {
	if len(u) == 0 {
		return 0
	}
	n := 0
	for i := range u {
		if !math.IsNaN(u[i]) && !math.IsNaN(v[i]) && !math.IsNaN(w[i]) {
			n++
		}
	}
	return float64(n) / float64(len(u))
}

func nanMean(x []float64) float64 {
	sum, n := 0.0, 0
	for _, v := range x {
		if !math.IsNaN(v) {
			sum += v
			n++
		}
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}
