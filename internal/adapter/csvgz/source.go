// Package csvgz reads raw station days from gzipped CSV files laid out as
// <dir>/<station>/<YYYY-MM-DD>.csv.gz. The header names a "time" column
// (RFC 3339) and any subset of the channel columns; empty cells and "NaN"
// are missing.
package csvgz

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/turbulent-flux-etl/internal/domain"
	"github.com/klauspost/pgzip"
)

const timeColumn = "time"

// Path is the location of a raw station day under dir.
func Path(dir, station string, day time.Time) string {
	return filepath.Join(dir, station, day.Format("2006-01-02")+".csv.gz")
}

// Source reads raw station days. It implements pipeline.DayExtractor.
type Source struct {
	dir    string
	logger *slog.Logger
}

// NewSource creates a Source rooted at dir.
func NewSource(dir string, logger *slog.Logger) *Source {
	return &Source{dir: dir, logger: logger}
}

// ExtractDay reads the station's file for day. A missing file yields a
// batch flagged Unavailable.
func (s *Source) ExtractDay(ctx context.Context, st domain.Station, day time.Time) (domain.DayBatch, error) {
	day = domain.DayStart(day)
	batch := domain.DayBatch{Station: st, Day: day}
	path := Path(s.dir, st.Name, day)

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("no sample file for day", "station", st.Name, "day", day.Format("2006-01-02"), "path", path)
		batch.Unavailable = true
		return batch, nil
	}
	if err != nil {
		return batch, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	zr, err := pgzip.NewReader(f)
	if err != nil {
		return batch, fmt.Errorf("gunzip %s: %w", path, err)
	}
	defer zr.Close()

	samples, err := Decode(ctx, zr, day)
	if err != nil {
		return batch, fmt.Errorf("decode %s: %w", path, err)
	}
	batch.Samples = samples
	batch.Unavailable = samples.Len() == 0
	return batch, nil
}

// Decode parses CSV samples, keeping only those inside [day, day+24h).
// Unknown columns are ignored.
func Decode(ctx context.Context, r io.Reader, day time.Time) (domain.Series, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	header, err := cr.Read()
	if err != nil {
		return domain.Series{}, fmt.Errorf("read header: %w", err)
	}

	timeCol := -1
	cols := make([]domain.Channel, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		cols[i] = -1
		if name == timeColumn {
			timeCol = i
			continue
		}
		if c, err := domain.ParseChannel(name); err == nil {
			cols[i] = c
		}
	}
	if timeCol < 0 {
		return domain.Series{}, errors.New("header has no time column")
	}

	lo, hi := day.UnixNano(), day.Add(24*time.Hour).UnixNano()
	var times []int64
	var values [domain.NumChannels][]float64
	for line := 2; ; line++ {
		if line%65536 == 0 && ctx.Err() != nil {
			return domain.Series{}, ctx.Err()
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return domain.Series{}, fmt.Errorf("line %d: %w", line, err)
		}
		ts, err := time.Parse(time.RFC3339Nano, rec[timeCol])
		if err != nil {
			return domain.Series{}, fmt.Errorf("line %d: bad time %q", line, rec[timeCol])
		}
		t := ts.UnixNano()
		if t < lo || t >= hi {
			continue
		}
		times = append(times, t)
		for c := range values {
			values[c] = append(values[c], math.NaN())
		}
		n := len(times) - 1
		for i, c := range cols {
			if c < 0 {
				continue
			}
			values[c][n] = parseValue(rec[i])
		}
	}

	s := domain.Series{Start: day, Time: times, Values: values}
	if len(times) == 0 {
		s = domain.NewSeries(0)
		s.Start = day
	}
	return s, nil
}

func parseValue(cell string) float64 {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// WriteDay stores a batch as a gzipped CSV file with every channel.
func WriteDay(dir string, batch domain.DayBatch) (string, error) {
	path := Path(dir, batch.Station.Name, batch.Day)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	zw := pgzip.NewWriter(f)
	if err := Encode(zw, batch.Samples); err != nil {
		zw.Close()
		f.Close()
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := zw.Close(); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}

// Encode writes samples as CSV with a header row.
func Encode(w io.Writer, s domain.Series) error {
	cw := csv.NewWriter(w)
	header := []string{timeColumn}
	for _, c := range domain.Channels() {
		header = append(header, c.String())
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	rec := make([]string, len(header))
	for i := range s.Len() {
		rec[0] = time.Unix(0, s.Time[i]).UTC().Format(time.RFC3339Nano)
		for c := range domain.NumChannels {
			rec[c+1] = ""
			if v := s.Values[c]; v != nil && !math.IsNaN(v[i]) {
				rec[c+1] = strconv.FormatFloat(v[i], 'g', -1, 64)
			}
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
