// Package clickhouse inserts flux tables into a ClickHouse table with the
// native protocol, one columnar block per station day.
package clickhouse

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ClickHouse/ch-go"
	"github.com/ClickHouse/ch-go/proto"
	"github.com/couchcryptid/turbulent-flux-etl/internal/domain"
)

// Writer inserts flux tables. It implements pipeline.TableLoader.
//
// The target table is a ReplacingMergeTree keyed by (station, window_start)
// with processed_at as the version, so a retried or re-run day replaces
// its earlier rows.
type Writer struct {
	addr     string
	database string
	table    string
	schema   domain.Schema
	fill     float64
	logger   *slog.Logger
}

// NewWriter creates a Writer for <database>.<table> at addr.
func NewWriter(addr, database, table string, schema domain.Schema, fill float64, logger *slog.Logger) *Writer {
	return &Writer{
		addr:     addr,
		database: database,
		table:    table,
		schema:   schema,
		fill:     fill,
		logger:   logger,
	}
}

// Name identifies the sink in logs and metrics.
func (w *Writer) Name() string { return "clickhouse" }

func (w *Writer) dial(ctx context.Context) (*ch.Client, error) {
	conn, err := ch.Dial(ctx, ch.Options{
		Address:     w.addr,
		Database:    w.database,
		Compression: ch.CompressionLZ4,
	})
	if err != nil {
		return nil, fmt.Errorf("connect clickhouse %s: %w", w.addr, err)
	}
	return conn, nil
}

// EnsureTable creates the target table when it does not exist.
func (w *Writer) EnsureTable(ctx context.Context) error {
	conn, err := w.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := conn.Do(ctx, ch.Query{Body: CreateTableSQL(w.database, w.table, w.schema)}); err != nil {
		return fmt.Errorf("create table %s.%s: %w", w.database, w.table, err)
	}
	return nil
}

// LoadTable inserts every record of the table in one block.
func (w *Writer) LoadTable(ctx context.Context, t domain.FluxTable) error {
	if len(t.Records) == 0 {
		return nil
	}
	block := NewBlock(t.Schema)
	block.Append(t, w.fill)

	conn, err := w.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.Do(ctx, ch.Query{
		Body:  block.InsertSQL(w.database, w.table),
		Input: block.Input(),
	}); err != nil {
		return fmt.Errorf("insert %s %s: %w", t.Station.Name, t.Day.Format("2006-01-02"), err)
	}
	w.logger.Debug("flux table inserted", "station", t.Station.Name, "day", t.Day.Format("2006-01-02"), "rows", block.Rows())
	return nil
}

// CreateTableSQL is the DDL of the flux table for the given columns.
func CreateTableSQL(database, table string, s domain.Schema) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s.%s (\n", database, table)
	b.WriteString("  station String,\n")
	b.WriteString("  window_start DateTime,\n")
	b.WriteString("  status String,\n")
	b.WriteString("  bulk_converged UInt8,\n")
	b.WriteString("  processed_at DateTime")
	for _, name := range s.Names() {
		fmt.Fprintf(&b, ",\n  `%s` Float64", name)
	}
	b.WriteString("\n) ENGINE = ReplacingMergeTree(processed_at)\nORDER BY (station, window_start)")
	return b.String()
}

// Block holds one insert's worth of columns.
type Block struct {
	names       []string
	station     *proto.ColStr
	windowStart *proto.ColDateTime
	status      *proto.ColStr
	converged   *proto.ColUInt8
	processedAt *proto.ColDateTime
	values      []*proto.ColFloat64
}

// NewBlock creates an empty block for the schema.
func NewBlock(s domain.Schema) *Block {
	b := &Block{
		names:       s.Names(),
		station:     new(proto.ColStr),
		windowStart: new(proto.ColDateTime),
		status:      new(proto.ColStr),
		converged:   new(proto.ColUInt8),
		processedAt: new(proto.ColDateTime),
	}
	b.values = make([]*proto.ColFloat64, len(b.names))
	for i := range b.values {
		b.values[i] = new(proto.ColFloat64)
	}
	return b
}

// Append adds the table's records with missing values replaced by fill.
func (b *Block) Append(t domain.FluxTable, fill float64) {
	processed := t.ProcessedAt.UTC()
	for _, r := range t.Records {
		b.station.Append(t.Station.Name)
		b.windowStart.Append(r.Start.UTC())
		b.status.Append(string(r.Status))
		var conv uint8
		if r.BulkConverged {
			conv = 1
		}
		b.converged.Append(conv)
		b.processedAt.Append(processed)
		for j, col := range b.values {
			col.Append(r.Filled(j, fill))
		}
	}
}

// Rows returns the number of buffered rows.
func (b *Block) Rows() int { return b.station.Rows() }

// Input returns the block as ch-go input columns.
func (b *Block) Input() proto.Input {
	in := proto.Input{
		{Name: "station", Data: b.station},
		{Name: "window_start", Data: b.windowStart},
		{Name: "status", Data: b.status},
		{Name: "bulk_converged", Data: b.converged},
		{Name: "processed_at", Data: b.processedAt},
	}
	for i, name := range b.names {
		in = append(in, proto.InputColumn{Name: name, Data: b.values[i]})
	}
	return in
}

// InsertSQL is the INSERT statement matching Input.
func (b *Block) InsertSQL(database, table string) string {
	cols := []string{"station", "window_start", "status", "bulk_converged", "processed_at"}
	for _, name := range b.names {
		cols = append(cols, "`"+name+"`")
	}
	return fmt.Sprintf("INSERT INTO %s.%s (%s) VALUES", database, table, strings.Join(cols, ", "))
}
