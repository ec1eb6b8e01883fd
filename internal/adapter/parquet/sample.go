// Package parquet reads raw station days from and writes flux tables to
// Parquet files laid out as <dir>/<station>/<YYYY-MM-DD>[_flux].parquet.
package parquet

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/couchcryptid/turbulent-flux-etl/internal/domain"
)

const dayLayout = "2006-01-02"

// SampleRow is one raw logger sample. Missing values are stored as NaN.
type SampleRow struct {
	Time           int64   `parquet:"time"` // unix nanoseconds
	U              float64 `parquet:"u"`
	V              float64 `parquet:"v"`
	W              float64 `parquet:"w"`
	TSonic         float64 `parquet:"T_sonic"`
	H2O            float64 `parquet:"h2o"`
	CO2            float64 `parquet:"co2"`
	Pressure       float64 `parquet:"pressure"`
	SignalStrength float64 `parquet:"signal_strength"`
	SonicDiag      float64 `parquet:"sonic_diag"`
	GasDiag        float64 `parquet:"gas_diag"`
	Heading        float64 `parquet:"heading"`
	Roll           float64 `parquet:"roll"`
	Pitch          float64 `parquet:"pitch"`
	AirTemp        float64 `parquet:"temp_air"`
	SurfaceTemp    float64 `parquet:"temp_surface"`
	RH             float64 `parquet:"rh"`
}

func (r *SampleRow) fields() [domain.NumChannels]*float64 {
	return [domain.NumChannels]*float64{
		domain.U:              &r.U,
		domain.V:              &r.V,
		domain.W:              &r.W,
		domain.Ts:             &r.TSonic,
		domain.H2O:            &r.H2O,
		domain.CO2:            &r.CO2,
		domain.Pressure:       &r.Pressure,
		domain.SignalStrength: &r.SignalStrength,
		domain.SonicDiag:      &r.SonicDiag,
		domain.GasDiag:        &r.GasDiag,
		domain.Heading:        &r.Heading,
		domain.Roll:           &r.Roll,
		domain.Pitch:          &r.Pitch,
		domain.AirTemp:        &r.AirTemp,
		domain.SurfaceTemp:    &r.SurfaceTemp,
		domain.RH:             &r.RH,
	}
}

// RowsToSeries converts rows to a series, keeping only samples inside
// [day, day+24h).
func RowsToSeries(rows []SampleRow, day time.Time) domain.Series {
	lo := day.UnixNano()
	hi := day.Add(24 * time.Hour).UnixNano()
	n := 0
	for i := range rows {
		if rows[i].Time >= lo && rows[i].Time < hi {
			n++
		}
	}
	s := domain.NewSeries(n)
	s.Start = day
	j := 0
	for i := range rows {
		if rows[i].Time < lo || rows[i].Time >= hi {
			continue
		}
		s.Time[j] = rows[i].Time
		for c, f := range rows[i].fields() {
			s.Values[c][j] = *f
		}
		j++
	}
	return s
}

// SeriesToRows converts a series to rows. Channels without data are NaN.
func SeriesToRows(s domain.Series) []SampleRow {
	rows := make([]SampleRow, s.Len())
	for i := range rows {
		rows[i].Time = s.Time[i]
		for c, f := range rows[i].fields() {
			*f = nan
			if v := s.Values[c]; v != nil {
				*f = v[i]
			}
		}
	}
	return rows
}

// SamplePath is the location of a raw station day under dir.
func SamplePath(dir, station string, day time.Time) string {
	return filepath.Join(dir, station, day.Format(dayLayout)+".parquet")
}

// FluxPath is the location of a flux table under dir.
func FluxPath(dir, station string, day time.Time) string {
	return filepath.Join(dir, station, fmt.Sprintf("%s_flux.parquet", day.Format(dayLayout)))
}
