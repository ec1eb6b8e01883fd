// Command validate checks flux parquet files written by the ETL: every
// day is rectangular with one row per window, windows without enough data
// carry only the fill value, and no NaN or infinity reaches the file.
//
// Usage:
//
//	go run ./cmd/validate -dir data/flux -window 10m
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	parquetadapter "github.com/couchcryptid/turbulent-flux-etl/internal/adapter/parquet"
	"github.com/couchcryptid/turbulent-flux-etl/internal/domain"
	"github.com/dustin/go-humanize"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	dir := flag.String("dir", "", "flux output directory (<dir>/<station>/<day>_flux.parquet)")
	window := flag.Duration("window", 10*time.Minute, "averaging window the files were written with")
	flag.Parse()

	if *dir == "" || *window <= 0 || (24*time.Hour)%*window != 0 {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*dir, *window); code != 0 {
		os.Exit(code)
	}
}

// fluxDay is one loaded file.
type fluxDay struct {
	path    string
	station string
	day     time.Time
	file    *parquetadapter.FluxFile
}

func run(dir string, window time.Duration) int {
	fmt.Println("=== Flux Output Validation ===")
	fmt.Println()

	days, size, err := loadAll(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}
	if len(days) == 0 {
		fmt.Fprintf(os.Stderr, "FATAL: no flux files under %s\n", dir)
		return 1
	}

	phases := []*phase{
		validateShape(days, window),
		validateMissing(days),
		validateMetadata(days),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Files: %d station days, %d rows, %s\n", len(days), countRows(days), humanize.Bytes(uint64(size)))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Data loading ──

func loadAll(dir string) ([]fluxDay, int64, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*", "*_flux.parquet"))
	if err != nil {
		return nil, 0, err
	}
	sort.Strings(paths)

	var days []fluxDay
	var size int64
	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), "_flux.parquet")
		day, err := time.ParseInLocation("2006-01-02", name, time.UTC)
		if err != nil {
			return nil, 0, fmt.Errorf("unexpected file name %s", path)
		}
		f, err := parquetadapter.ReadFluxFile(path)
		if err != nil {
			return nil, 0, err
		}
		if fi, err := os.Stat(path); err == nil {
			size += fi.Size()
		}
		days = append(days, fluxDay{
			path:    path,
			station: filepath.Base(filepath.Dir(path)),
			day:     day,
			file:    f,
		})
	}
	return days, size, nil
}

func countRows(days []fluxDay) int {
	n := 0
	for _, d := range days {
		n += d.file.Rows()
	}
	return n
}

// ── Shape ──

func validateShape(days []fluxDay, window time.Duration) *phase {
	p := &phase{name: "Rectangular tables, one row per window"}
	want := int(24 * time.Hour / window)
	for _, d := range days {
		f := d.file
		if f.Rows() != want {
			p.errorf("%s: %d rows, want %d", d.path, f.Rows(), want)
			continue
		}
		for _, c := range f.Columns {
			if n := len(f.Values[c]); n != want {
				p.errorf("%s: column %s has %d values, want %d", d.path, c, n, want)
			}
		}
		if len(f.WindowStarts) != want || len(f.BulkConverged) != want {
			p.errorf("%s: ragged key columns", d.path)
			continue
		}
		for i, ts := range f.WindowStarts {
			if exp := d.day.Add(time.Duration(i) * window); !ts.Equal(exp) {
				p.errorf("%s: row %d starts at %s, want %s", d.path, i, ts.Format(time.RFC3339), exp.Format(time.RFC3339))
				break
			}
		}
	}
	return p
}

// ── Missing values ──

func validateMissing(days []fluxDay) *phase {
	p := &phase{name: "Missing windows carry only the fill value"}
	for _, d := range days {
		f := d.file
		for i, status := range f.Statuses {
			filled := 0
			for _, c := range f.Columns {
				x := f.Values[c][i]
				if math.IsNaN(x) || math.IsInf(x, 0) {
					p.errorf("%s: row %d column %s is %v", d.path, i, c, x)
				}
				if x == f.FillValue {
					filled++
				}
			}
			switch domain.RecordStatus(status) {
			case domain.StatusOK:
			case domain.StatusInsufficientData, domain.StatusTimeout:
				if filled != len(f.Columns) {
					p.errorf("%s: row %d is %s but has %d computed values", d.path, i, status, len(f.Columns)-filled)
				}
				if f.BulkConverged[i] {
					p.errorf("%s: row %d is %s but bulk_converged is set", d.path, i, status)
				}
			default:
				p.errorf("%s: row %d has unknown status %q", d.path, i, status)
			}
		}
	}
	return p
}

// ── Metadata ──

func validateMetadata(days []fluxDay) *phase {
	p := &phase{name: "Metadata matches file layout and contents"}
	for _, d := range days {
		f := d.file
		if f.Station != d.station {
			p.errorf("%s: station metadata %q, directory %q", d.path, f.Station, d.station)
		}
		if f.Day != d.day.Format("2006-01-02") {
			p.errorf("%s: day metadata %q", d.path, f.Day)
		}
		if len(f.Stats) != len(f.Columns) {
			p.errorf("%s: %d column stats for %d columns", d.path, len(f.Stats), len(f.Columns))
			continue
		}
		for _, st := range f.Stats {
			vals, ok := f.Values[st.Column]
			if !ok {
				p.errorf("%s: stats for unknown column %s", d.path, st.Column)
				continue
			}
			missing := 0
			for _, x := range vals {
				if x == f.FillValue {
					missing++
				}
			}
			pct := 100 * float64(missing) / float64(len(vals))
			if len(vals) > 0 && math.Abs(pct-st.PercentMissing) > 1e-6 {
				p.errorf("%s: column %s percent_missing %.2f, counted %.2f", d.path, st.Column, st.PercentMissing, pct)
			}
		}
	}
	return p
}
