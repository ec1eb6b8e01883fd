// Package netcdf writes flux tables as NetCDF-3 classic files, one per
// station day, with time as the record dimension.
package netcdf

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/turbulent-flux-etl/internal/domain"
	"github.com/couchcryptid/turbulent-flux-etl/internal/observability"
	"github.com/ctessum/cdf"
	"github.com/dustin/go-humanize"
)

const (
	timeDim = "time"

	varTime          = "time"
	varStatus        = "status"
	varBulkConverged = "bulk_converged"
)

// Status codes stored in the status variable.
var statusCodes = map[domain.RecordStatus]int32{
	domain.StatusOK:               0,
	domain.StatusInsufficientData: 1,
	domain.StatusTimeout:          2,
}

// Path is the location of a flux file under dir.
func Path(dir, station string, day time.Time) string {
	return filepath.Join(dir, station, day.Format("2006-01-02")+"_flux.nc")
}

// Writer writes flux tables. It implements pipeline.TableLoader.
type Writer struct {
	dir     string
	fill    float64
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewWriter creates a Writer rooted at dir. metrics may be nil.
func NewWriter(dir string, fill float64, logger *slog.Logger, metrics *observability.Metrics) *Writer {
	return &Writer{dir: dir, fill: fill, logger: logger, metrics: metrics}
}

// Name identifies the sink in logs and metrics.
func (w *Writer) Name() string { return "netcdf" }

// LoadTable writes the table to a temporary file and renames it into place.
func (w *Writer) LoadTable(ctx context.Context, t domain.FluxTable) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(t.Records) == 0 {
		return errors.New("netcdf: empty table")
	}
	path := Path(w.dir, t.Station.Name, t.Day)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	h := w.header(t)
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	size, err := w.write(f, h, t)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}

	if w.metrics != nil {
		w.metrics.BytesWritten.WithLabelValues(w.Name()).Add(float64(size))
	}
	w.logger.Debug("flux table written",
		"station", t.Station.Name,
		"day", t.Day.Format("2006-01-02"),
		"path", path,
		"size", humanize.Bytes(uint64(size)),
	)
	return nil
}

func (w *Writer) header(t domain.FluxTable) *cdf.Header {
	h := cdf.NewHeader([]string{timeDim}, []int{0})
	h.AddAttribute("", "title", "turbulent flux estimates")
	h.AddAttribute("", "station", t.Station.Name)
	h.AddAttribute("", "day", t.Day.Format("2006-01-02"))
	h.AddAttribute("", "processed_at", t.ProcessedAt.UTC().Format(time.RFC3339))
	h.AddAttribute("", "sensor_height", []float64{t.Station.Height})
	h.AddAttribute("", "snow_depth_init", []float64{t.Station.SnowDepthInit})
	h.AddAttribute("", "distance_init", []float64{t.Station.DistanceInit})
	h.AddAttribute("", "windows_skipped", []int32{int32(t.Skipped)})

	h.AddVariable(varTime, []string{timeDim}, []float64{0})
	h.AddAttribute(varTime, "units", "seconds since "+t.Day.Format("2006-01-02 15:04:05"))
	h.AddAttribute(varTime, "long_name", "window start")

	h.AddVariable(varStatus, []string{timeDim}, []int32{0})
	h.AddAttribute(varStatus, "long_name", "record status")
	h.AddAttribute(varStatus, "flag_values", []int32{0, 1, 2})
	h.AddAttribute(varStatus, "flag_meanings", "ok insufficient_data timeout")

	h.AddVariable(varBulkConverged, []string{timeDim}, []int32{0})
	h.AddAttribute(varBulkConverged, "long_name", "bulk flux iteration converged")

	stats := make(map[domain.Column]domain.ColumnStats, len(t.Stats))
	for _, s := range t.Stats {
		stats[s.Column] = s
	}
	for _, c := range t.Schema.Columns() {
		name := c.String()
		attrs := c.Attrs()
		h.AddVariable(name, []string{timeDim}, []float64{0})
		h.AddAttribute(name, "units", attrs.Units)
		h.AddAttribute(name, "long_name", attrs.LongName)
		h.AddAttribute(name, "missing_value", []float64{w.fill})
		h.AddAttribute(name, "_FillValue", []float64{w.fill})
		if s, ok := stats[c]; ok {
			h.AddAttribute(name, "percent_missing", []float64{s.PercentMissing})
			h.AddAttribute(name, "min", []float64{domain.Fill(s.Min, w.fill)})
			h.AddAttribute(name, "max", []float64{domain.Fill(s.Max, w.fill)})
			h.AddAttribute(name, "mean", []float64{domain.Fill(s.Mean, w.fill)})
		}
	}
	h.Define()
	return h
}

func (w *Writer) write(f *os.File, h *cdf.Header, t domain.FluxTable) (int64, error) {
	if err := errors.Join(h.Check()...); err != nil {
		return 0, err
	}
	nc, err := cdf.Create(f, h)
	if err != nil {
		return 0, err
	}

	n := len(t.Records)
	times := make([]float64, n)
	status := make([]int32, n)
	converged := make([]int32, n)
	for i, r := range t.Records {
		times[i] = r.Start.Sub(t.Day).Seconds()
		status[i] = statusCodes[r.Status]
		if r.BulkConverged {
			converged[i] = 1
		}
	}
	begin, end := []int{0}, []int{n}
	if err := writeVar(nc, varTime, begin, end, times); err != nil {
		return 0, err
	}
	if err := writeVar(nc, varStatus, begin, end, status); err != nil {
		return 0, err
	}
	if err := writeVar(nc, varBulkConverged, begin, end, converged); err != nil {
		return 0, err
	}

	col := make([]float64, n)
	for j, c := range t.Schema.Columns() {
		for i, r := range t.Records {
			col[i] = r.Filled(j, w.fill)
		}
		if err := writeVar(nc, c.String(), begin, end, col); err != nil {
			return 0, err
		}
	}
	if err := cdf.UpdateNumRecs(f); err != nil {
		return 0, fmt.Errorf("update record count: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func writeVar(nc *cdf.File, name string, begin, end []int, data any) error {
	if _, err := nc.Writer(name, begin, end).Write(data); err != nil {
		return fmt.Errorf("variable %s: %w", name, err)
	}
	return nil
}
