// Command genmock writes synthetic raw station days for local runs and
// tests. Each day is generated with known turbulence statistics so that
// the flux output can be checked against them.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -out data/raw \
//	  -stations-out stations.yaml \
//	  -start 2020-04-01 -days 2 -format parquet
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/couchcryptid/turbulent-flux-etl/internal/adapter/csvgz"
	parquetadapter "github.com/couchcryptid/turbulent-flux-etl/internal/adapter/parquet"
	"github.com/couchcryptid/turbulent-flux-etl/internal/config"
	"github.com/couchcryptid/turbulent-flux-etl/internal/domain"
	"github.com/couchcryptid/turbulent-flux-etl/internal/synthetic"
	"github.com/dustin/go-humanize"
	"github.com/gosuri/uiprogress"
	"gopkg.in/yaml.v3"
)

// defaultStations are written when no station file is given.
var defaultStations = []domain.Station{
	{Name: "asfs30", Height: 3.3, SnowDepthInit: 0.12, DistanceInit: 2.1, Enabled: true},
	{Name: "asfs40", Height: 2.9, SnowDepthInit: 0.2, DistanceInit: 2.5, Enabled: true},
	{Name: "asfs50", Height: 3.1, SnowDepthInit: 0.08, DistanceInit: 2.2, Enabled: true},
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "directory to write raw station days to")
	stationsIn := flag.String("stations", "", "station YAML file to generate for (default: built-in stations)")
	stationsOut := flag.String("stations-out", "", "write the station list used to this YAML file")
	startFlag := flag.String("start", "2020-04-01", "first day, YYYY-MM-DD")
	days := flag.Int("days", 1, "number of days per station")
	format := flag.String("format", config.FormatParquet, "raw file format: parquet or csv")
	duration := flag.Duration("duration", 24*time.Hour, "data per day from midnight; the rest of the day is absent")
	seed := flag.Uint64("seed", 1, "random seed")
	spikes := flag.Int("spike-every", 0, "add a W spike every n samples (0 disables)")
	verbose := flag.Bool("v", false, "log every file instead of showing a progress bar")
	flag.Parse()

	if *out == "" || *days < 1 {
		flag.Usage()
		return fmt.Errorf("missing required flags: -out, -days >= 1")
	}
	start, err := time.ParseInLocation("2006-01-02", *startFlag, time.UTC)
	if err != nil {
		return fmt.Errorf("invalid -start: %w", err)
	}

	stations := defaultStations
	if *stationsIn != "" {
		if stations, err = config.LoadStations(*stationsIn); err != nil {
			return err
		}
	}

	write := parquetadapter.WriteDay
	switch *format {
	case config.FormatParquet:
	case config.FormatCSV:
		write = csvgz.WriteDay
	default:
		return fmt.Errorf("invalid -format %q", *format)
	}

	var bar *uiprogress.Bar
	if !*verbose {
		uiprogress.Start()
		bar = uiprogress.AddBar(len(stations) * *days).AppendCompleted().PrependElapsed()
		bar.PrependFunc(func(b *uiprogress.Bar) string {
			return fmt.Sprintf("station day %d/%d", b.Current(), len(stations)**days)
		})
	}

	var total int64
	for i, st := range stations {
		for d := range *days {
			day := start.AddDate(0, 0, d)
			o := synthetic.DefaultOptions()
			o.Duration = *duration
			o.Seed = *seed + uint64(i*1000+d)
			o.SpikeEvery = *spikes
			batch, err := synthetic.Day(st, day, o)
			if err != nil {
				return fmt.Errorf("generating %s %s: %w", st.Name, day.Format("2006-01-02"), err)
			}
			path, err := write(*out, batch)
			if err != nil {
				return fmt.Errorf("writing %s %s: %w", st.Name, day.Format("2006-01-02"), err)
			}
			size := fileSize(path)
			total += size
			if bar != nil {
				bar.Incr()
			} else {
				log.Printf("%s: %d samples, %s", path, batch.Samples.Len(), humanize.Bytes(uint64(size)))
			}
		}
	}
	if bar != nil {
		uiprogress.Stop()
	}
	log.Printf("total: %d station days, %s", len(stations)**days, humanize.Bytes(uint64(total)))

	if *stationsOut != "" {
		if err := writeStations(*stationsOut, stations); err != nil {
			return fmt.Errorf("writing station list: %w", err)
		}
		log.Printf("wrote station list: %s", *stationsOut)
	}
	return nil
}

func fileSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}

func writeStations(path string, stations []domain.Station) error {
	data, err := yaml.Marshal(struct {
		Stations []domain.Station `yaml:"stations"`
	}{stations})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
