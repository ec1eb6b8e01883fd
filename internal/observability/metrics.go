package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "flux_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the ETL pipeline.
type Metrics struct {
	DaysProcessed   *prometheus.CounterVec // labels: outcome={ok,unavailable,timeout,configuration,extract_error,compute_error,write_exhausted}
	Windows         *prometheus.CounterVec // labels: status={ok,insufficient_data,timeout}
	BulkNonConverge prometheus.Counter
	PipelineRunning prometheus.Gauge

	// Sink metrics.
	LoadRetries  prometheus.Counter
	LoadFailures *prometheus.CounterVec // labels: sink
	BytesWritten *prometheus.CounterVec // labels: sink

	DayDuration prometheus.Histogram
}

func newMetrics() *Metrics {
	return &Metrics{
		DaysProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "days_processed_total",
			Help:      "Station days finished, by outcome.",
		}, []string{"outcome"}),
		Windows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "windows_total",
			Help:      "Flux records emitted, by status.",
		}, []string{"status"}),
		BulkNonConverge: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bulk_nonconverged_total",
			Help:      "Windows whose bulk flux iteration did not converge.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a batch run is in progress, 0 otherwise.",
		}),
		LoadRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "load_retries_total",
			Help:      "Table writes retried after a failure.",
		}),
		LoadFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "load_failures_total",
			Help:      "Failed table writes, by sink.",
		}, []string{"sink"}),
		BytesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_written_total",
			Help:      "Bytes written to file sinks.",
		}, []string{"sink"}),
		DayDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "day_processing_duration_seconds",
			Help:      "Duration of extract, compute and load for one station day.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.DaysProcessed,
		m.Windows,
		m.BulkNonConverge,
		m.PipelineRunning,
		m.LoadRetries,
		m.LoadFailures,
		m.BytesWritten,
		m.DayDuration,
	}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics registered with a fresh registry to
// avoid "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	m := newMetrics()
	prometheus.NewRegistry().MustRegister(m.collectors()...)
	return m
}
