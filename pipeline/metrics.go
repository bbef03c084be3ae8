package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the transformation pipeline.
type Metrics struct {
	Registry         *prometheus.Registry
	RunsTotal        *prometheus.CounterVec
	RunDuration      prometheus.Histogram
	RecordsProcessed prometheus.Counter
	RowsDropped      *prometheus.CounterVec
}

// NewMetrics constructs and registers all collectors on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	runs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_runs_total",
			Help: "Total pipeline runs by outcome.",
		},
		[]string{"status"},
	)
	duration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pipeline_run_duration_seconds",
			Help:    "Wall-clock duration of pipeline runs.",
			Buckets: prometheus.DefBuckets,
		},
	)
	processed := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_records_processed_total",
			Help: "Total records written to the processed artifact.",
		},
	)
	dropped := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_rows_dropped_total",
			Help: "Total rows excluded during cleaning, by reason.",
		},
		[]string{"reason"},
	)

	registry.MustRegister(runs, duration, processed, dropped)

	return &Metrics{
		Registry:         registry,
		RunsTotal:        runs,
		RunDuration:      duration,
		RecordsProcessed: processed,
		RowsDropped:      dropped,
	}
}

// ObserveRun records one finished run.
func (m *Metrics) ObserveRun(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDuration.Observe(elapsed.Seconds())
}

// AddProcessed increments the processed-records counter.
func (m *Metrics) AddProcessed(count int) {
	if m == nil {
		return
	}
	m.RecordsProcessed.Add(float64(count))
}

// AddDropped increments the dropped-rows counter for a reason label.
func (m *Metrics) AddDropped(reason string, count int) {
	if m == nil || count == 0 {
		return
	}
	m.RowsDropped.WithLabelValues(reason).Add(float64(count))
}
