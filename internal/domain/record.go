package domain

import (
	"math"
	"time"
)

// DefaultFillValue is the missing-value sentinel written to sinks.
const DefaultFillValue = -9999.0

// RecordStatus says how a FluxRecord was produced.
type RecordStatus string

const (
	StatusOK               RecordStatus = "ok"
	StatusInsufficientData RecordStatus = "insufficient_data"
	StatusTimeout          RecordStatus = "timeout"
)

// FluxRecord is one output row: the derived scalars of one window.
// Values are NaN when missing and are held in schema order.
//
// BulkComputed is set when the bulk model ran for the window. A window
// whose bulk inputs were missing has neither flag set.
type FluxRecord struct {
	Start         time.Time
	Status        RecordStatus
	BulkComputed  bool
	BulkConverged bool
	values        []float64
}

// Values is a full, column-indexed set of derived quantities.
type Values [NumColumns]float64

// MissingValues returns a Values with every entry NaN.
func MissingValues() Values {
	var v Values
	for i := range v {
		v[i] = math.NaN()
	}
	return v
}

// NewRecord projects v onto the schema.
func NewRecord(schema Schema, start time.Time, status RecordStatus, v *Values) FluxRecord {
	r := FluxRecord{Start: start, Status: status, values: make([]float64, schema.Len())}
	for i, c := range schema.cols {
		x := v[c]
		if math.IsInf(x, 0) {
			x = math.NaN()
		}
		r.values[i] = x
	}
	return r
}

// MissingRecord returns a record with every column missing.
func MissingRecord(schema Schema, start time.Time, status RecordStatus) FluxRecord {
	v := MissingValues()
	return NewRecord(schema, start, status, &v)
}

// Len returns the number of columns.
func (r FluxRecord) Len() int { return len(r.values) }

// At returns the value at schema position i, NaN when missing.
func (r FluxRecord) At(i int) float64 { return r.values[i] }

// Filled returns the value at schema position i with missing values
// replaced by fill.
func (r FluxRecord) Filled(i int, fill float64) float64 {
	return Fill(r.values[i], fill)
}

// Fill replaces NaN and infinities with the sentinel.
func Fill(x, fill float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return fill
	}
	return x
}

// AllMissing reports whether every column is missing.
func (r FluxRecord) AllMissing() bool {
	for _, x := range r.values {
		if !math.IsNaN(x) {
			return false
		}
	}
	return true
}

// FluxTable is one station-day of FluxRecords in window order.
type FluxTable struct {
	Station     Station
	Day         time.Time
	Schema      Schema
	Records     []FluxRecord
	Skipped     int // windows emitted missing for insufficient data
	ProcessedAt time.Time
	Stats       []ColumnStats
}

// Value returns column c of record i, NaN when missing or unconfigured.
func (t FluxTable) Value(i int, c Column) float64 {
	j := t.Schema.Index(c)
	if j < 0 {
		return math.NaN()
	}
	return t.Records[i].values[j]
}

// ColumnStats summarises a column for quality monitoring. They are
// attached to the written table as metadata only.
type ColumnStats struct {
	Column         Column
	Min            float64
	Max            float64
	Mean           float64
	PercentMissing float64
}

// Summarize computes per-column statistics over the table's records.
func Summarize(t FluxTable) []ColumnStats {
	stats := make([]ColumnStats, t.Schema.Len())
	for j, c := range t.Schema.cols {
		st := ColumnStats{Column: c, Min: math.NaN(), Max: math.NaN(), Mean: math.NaN()}
		var sum float64
		var n, missing int
		for _, r := range t.Records {
			x := r.values[j]
			if math.IsNaN(x) {
				missing++
				continue
			}
			if n == 0 || x < st.Min {
				st.Min = x
			}
			if n == 0 || x > st.Max {
				st.Max = x
			}
			sum += x
			n++
		}
		if n > 0 {
			st.Mean = sum / float64(n)
		}
		if len(t.Records) > 0 {
			st.PercentMissing = 100 * float64(missing) / float64(len(t.Records))
		} else {
			st.PercentMissing = 100
		}
		stats[j] = st
	}
	return stats
}
