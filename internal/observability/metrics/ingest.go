// Package metrics provides custom Prometheus metrics for the pipeline stages.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// IngestMetrics contains all Prometheus metrics related to batch fetching
// and importing.
type IngestMetrics struct {
	FetchAttempts     *prometheus.CounterVec
	FetchDuration     prometheus.Histogram
	DownloadSize      prometheus.Histogram
	RecordsImported   prometheus.Counter
	RecordsUpdated    prometheus.Counter
	RecordsSkipped    prometheus.Counter
	RecordsDropped    prometheus.Counter
	ImportDuration    prometheus.Histogram
	PartitionsWritten prometheus.Counter
}

// NewIngestMetrics creates a new instance of IngestMetrics registered with
// the given registry.
func NewIngestMetrics(registry *prometheus.Registry) (*IngestMetrics, error) {
	m := &IngestMetrics{}
	m.initMetrics()
	collectors := []prometheus.Collector{
		m.FetchAttempts, m.FetchDuration, m.DownloadSize,
		m.RecordsImported, m.RecordsUpdated, m.RecordsSkipped, m.RecordsDropped,
		m.ImportDuration, m.PartitionsWritten,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register ingest metrics: %w", err)
		}
	}
	return m, nil
}

func (m *IngestMetrics) initMetrics() {
	m.FetchAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tns_fetch_attempts_total",
		Help: "Total number of batch fetch attempts by outcome",
	}, []string{"outcome"})

	m.FetchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tns_fetch_duration_seconds",
		Help:    "Duration of batch fetch operations in seconds",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	m.DownloadSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tns_download_size_bytes",
		Help:    "Size of downloaded batch archives in bytes",
		Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
	})

	m.RecordsImported = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tns_records_imported_total",
		Help: "Total number of newly inserted transient objects",
	})

	m.RecordsUpdated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tns_records_updated_total",
		Help: "Total number of refreshed transient objects",
	})

	m.RecordsSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tns_records_skipped_total",
		Help: "Total number of records skipped as stale",
	})

	m.RecordsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tns_records_dropped_total",
		Help: "Total number of rows dropped for missing required fields",
	})

	m.ImportDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tns_import_duration_seconds",
		Help:    "Duration of batch import operations in seconds",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	m.PartitionsWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tns_partitions_written_total",
		Help: "Total number of daily partition files created or updated",
	})
}

// RecordFetchOutcome increments the fetch attempt counter for one outcome
// (success, retry, not_available, failed).
func (m *IngestMetrics) RecordFetchOutcome(outcome string) {
	m.FetchAttempts.WithLabelValues(outcome).Inc()
}

// RecordImport accumulates the counters of one import run.
func (m *IngestMetrics) RecordImport(imported, updated, skipped, dropped int, seconds float64) {
	m.RecordsImported.Add(float64(imported))
	m.RecordsUpdated.Add(float64(updated))
	m.RecordsSkipped.Add(float64(skipped))
	m.RecordsDropped.Add(float64(dropped))
	m.ImportDuration.Observe(seconds)
}
