package parquet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/turbulent-flux-etl/internal/domain"
	"github.com/parquet-go/parquet-go"
)

var nan = math.NaN()

const readBatch = 4096

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
	path := SamplePath(s.dir, st.Name, day)

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("no sample file for day", "station", st.Name, "day", day.Format(dayLayout), "path", path)
		batch.Unavailable = true
		return batch, nil
	}
	if err != nil {
		return batch, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	rows, err := readSamples(ctx, f)
	if err != nil {
		return batch, fmt.Errorf("read %s: %w", path, err)
	}
	batch.Samples = RowsToSeries(rows, day)
	batch.Unavailable = batch.Samples.Len() == 0
	return batch, nil
}

func readSamples(ctx context.Context, f *os.File) ([]SampleRow, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return nil, err
	}

	reader := parquet.NewGenericReader[SampleRow](pf)
	defer reader.Close()

	rows := make([]SampleRow, 0, reader.NumRows())
	buf := make([]SampleRow, readBatch)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := reader.Read(buf)
		rows = append(rows, buf[:n]...)
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return rows, nil
		}
	}
}

// WriteDay stores a batch as a raw sample file, creating the station
// directory when needed.
func WriteDay(dir string, batch domain.DayBatch) (string, error) {
	path := SamplePath(dir, batch.Station.Name, batch.Day)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	w := parquet.NewGenericWriter[SampleRow](f, parquet.Compression(&parquet.Zstd))
	if _, err := w.Write(SeriesToRows(batch.Samples)); err != nil {
		f.Close()
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		f.Close()
		return "", fmt.Errorf("close writer %s: %w", path, err)
	}
	return path, f.Close()
}
