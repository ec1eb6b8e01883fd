package parquet

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/parquet-go/parquet-go"
)

// FluxFile is a flux table read back from disk with the fill value still
// in place.
type FluxFile struct {
	Station       string
	Day           string
	FillValue     float64
	Stats         []ColumnStat
	Columns       []string // derived columns in file order
	WindowStarts  []time.Time
	Statuses      []string
	BulkConverged []bool
	Values        map[string][]float64
}

// Rows returns the number of records.
func (f *FluxFile) Rows() int { return len(f.Statuses) }

// ReadFluxFile loads a file written by Writer.
func ReadFluxFile(path string) (*FluxFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	out := &FluxFile{Values: make(map[string][]float64)}
	if err := out.readMetadata(pf); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	names := make([]string, 0)
	for _, col := range pf.Schema().Columns() {
		names = append(names, col[0])
	}
	for _, name := range names {
		switch name {
		case FieldStation, FieldWindowStart, FieldStatus, FieldBulkConverged:
		default:
			out.Columns = append(out.Columns, name)
		}
	}

	reader := parquet.NewReader(pf)
	defer reader.Close()
	buf := make([]parquet.Row, 256)
	for {
		n, err := reader.ReadRows(buf)
		for _, row := range buf[:n] {
			out.appendRow(names, row)
		}
		if errors.Is(err, io.EOF) || (err == nil && n == 0) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}
	return out, nil
}

func (f *FluxFile) readMetadata(pf *parquet.File) error {
	f.Station, _ = pf.Lookup(MetaStation)
	f.Day, _ = pf.Lookup(MetaDay)
	fill, ok := pf.Lookup(MetaFillValue)
	if !ok {
		return errors.New("missing fill value metadata")
	}
	v, err := strconv.ParseFloat(fill, 64)
	if err != nil {
		return fmt.Errorf("bad fill value %q: %w", fill, err)
	}
	f.FillValue = v
	if stats, ok := pf.Lookup(MetaStats); ok {
		if err := json.Unmarshal([]byte(stats), &f.Stats); err != nil {
			return fmt.Errorf("bad column stats: %w", err)
		}
	}
	return nil
}

func (f *FluxFile) appendRow(names []string, row parquet.Row) {
	for _, v := range row {
		name := names[v.Column()]
		switch name {
		case FieldStation:
		case FieldWindowStart:
			f.WindowStarts = append(f.WindowStarts, time.Unix(0, v.Int64()).UTC())
		case FieldStatus:
			f.Statuses = append(f.Statuses, string(v.ByteArray()))
		case FieldBulkConverged:
			f.BulkConverged = append(f.BulkConverged, v.Boolean())
		default:
			f.Values[name] = append(f.Values[name], v.Double())
		}
	}
}
