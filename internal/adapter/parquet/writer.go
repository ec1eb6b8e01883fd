package parquet

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/couchcryptid/turbulent-flux-etl/internal/domain"
	"github.com/couchcryptid/turbulent-flux-etl/internal/observability"
	"github.com/dustin/go-humanize"
	"github.com/parquet-go/parquet-go"
)

// Metadata keys attached to every flux file.
const (
	MetaStation     = "flux.station"
	MetaDay         = "flux.day"
	MetaFillValue   = "flux.fill_value"
	MetaStats       = "flux.column_stats"
	MetaProcessedAt = "flux.processed_at"
	MetaSkipped     = "flux.windows_skipped"
)

// Fixed leading fields of every flux row.
const (
	FieldStation       = "station"
	FieldWindowStart   = "window_start"
	FieldStatus        = "status"
	FieldBulkConverged = "bulk_converged"
)

// ColumnStat is the JSON form of domain.ColumnStats. Missing statistics are
// written as the fill value.
type ColumnStat struct {
	Column         string  `json:"column"`
	Min            float64 `json:"min"`
	Max            float64 `json:"max"`
	Mean           float64 `json:"mean"`
	PercentMissing float64 `json:"percent_missing"`
}

// Writer writes one flux table per station day. It implements
// pipeline.TableLoader.
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
func (w *Writer) Name() string { return "parquet" }

// LoadTable writes the table to a temporary file and renames it into
// place, so readers never see a partial table.
func (w *Writer) LoadTable(ctx context.Context, t domain.FluxTable) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := FluxPath(w.dir, t.Station.Name, t.Day)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	schema := FluxSchema(t.Schema)
	rows, err := w.rows(schema, t)
	if err != nil {
		return err
	}
	opts, err := w.options(schema, t)
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	pw := parquet.NewWriter(f, opts...)
	if _, err := pw.WriteRows(rows); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := pw.Close(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("close writer %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}

	if w.metrics != nil {
		w.metrics.BytesWritten.WithLabelValues(w.Name()).Add(float64(info.Size()))
	}
	w.logger.Debug("flux table written",
		"station", t.Station.Name,
		"day", t.Day.Format(dayLayout),
		"path", path,
		"size", humanize.Bytes(uint64(info.Size())),
	)
	return nil
}

// FluxSchema is the Parquet schema of a flux table with the given columns.
func FluxSchema(s domain.Schema) *parquet.Schema {
	group := parquet.Group{
		FieldStation:       parquet.String(),
		FieldWindowStart:   parquet.Timestamp(parquet.Nanosecond),
		FieldStatus:        parquet.String(),
		FieldBulkConverged: parquet.Leaf(parquet.BooleanType),
	}
	for _, name := range s.Names() {
		group[name] = parquet.Leaf(parquet.DoubleType)
	}
	return parquet.NewSchema("flux_record", group)
}

// columnIndex maps top level field names to leaf column indexes. Group
// fields are stored in name order, not insertion order.
func columnIndex(schema *parquet.Schema) map[string]int {
	idx := make(map[string]int)
	for i, path := range schema.Columns() {
		idx[path[0]] = i
	}
	return idx
}

func (w *Writer) rows(schema *parquet.Schema, t domain.FluxTable) ([]parquet.Row, error) {
	idx := columnIndex(schema)
	names := t.Schema.Names()
	station := []byte(t.Station.Name)

	rows := make([]parquet.Row, len(t.Records))
	for i, r := range t.Records {
		if r.Len() != len(names) {
			return nil, fmt.Errorf("record %d has %d values, schema has %d", i, r.Len(), len(names))
		}
		row := make(parquet.Row, len(idx))
		set := func(field string, v parquet.Value) {
			j := idx[field]
			row[j] = v.Level(0, 0, j)
		}
		set(FieldStation, parquet.ByteArrayValue(station))
		set(FieldWindowStart, parquet.Int64Value(r.Start.UnixNano()))
		set(FieldStatus, parquet.ByteArrayValue([]byte(r.Status)))
		set(FieldBulkConverged, parquet.BooleanValue(r.BulkConverged))
		for k, name := range names {
			set(name, parquet.DoubleValue(r.Filled(k, w.fill)))
		}
		rows[i] = row
	}
	return rows, nil
}

func (w *Writer) options(schema *parquet.Schema, t domain.FluxTable) ([]parquet.WriterOption, error) {
	stats := make([]ColumnStat, len(t.Stats))
	for i, s := range t.Stats {
		stats[i] = ColumnStat{
			Column:         s.Column.String(),
			Min:            domain.Fill(s.Min, w.fill),
			Max:            domain.Fill(s.Max, w.fill),
			Mean:           domain.Fill(s.Mean, w.fill),
			PercentMissing: s.PercentMissing,
		}
	}
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return nil, fmt.Errorf("encode column stats: %w", err)
	}
	return []parquet.WriterOption{
		schema,
		parquet.Compression(&parquet.Zstd),
		parquet.KeyValueMetadata(MetaStation, t.Station.Name),
		parquet.KeyValueMetadata(MetaDay, t.Day.Format(dayLayout)),
		parquet.KeyValueMetadata(MetaFillValue, strconv.FormatFloat(w.fill, 'g', -1, 64)),
		parquet.KeyValueMetadata(MetaStats, string(statsJSON)),
		parquet.KeyValueMetadata(MetaProcessedAt, t.ProcessedAt.UTC().Format(time.RFC3339)),
		parquet.KeyValueMetadata(MetaSkipped, strconv.Itoa(t.Skipped)),
	}, nil
}
