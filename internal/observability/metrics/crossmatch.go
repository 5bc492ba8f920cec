package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// CrossMatchMetrics contains all Prometheus metrics related to catalog
// cross-matching.
type CrossMatchMetrics struct {
	ObjectsMatched  prometheus.Counter
	MatchesFound    *prometheus.CounterVec
	CandidateErrors prometheus.Counter
	CatalogFailures *prometheus.CounterVec
	MatchDuration   prometheus.Histogram
}

// NewCrossMatchMetrics creates a new instance of CrossMatchMetrics
// registered with the given registry.
func NewCrossMatchMetrics(registry *prometheus.Registry) (*CrossMatchMetrics, error) {
	m := &CrossMatchMetrics{}
	m.initMetrics()
	collectors := []prometheus.Collector{
		m.ObjectsMatched, m.MatchesFound, m.CandidateErrors,
		m.CatalogFailures, m.MatchDuration,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register cross-match metrics: %w", err)
		}
	}
	return m, nil
}

func (m *CrossMatchMetrics) initMetrics() {
	m.ObjectsMatched = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crossmatch_objects_total",
		Help: "Total number of objects run through the cross-match engine",
	})

	m.MatchesFound = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crossmatch_matches_total",
		Help: "Total number of catalog matches found, by catalog",
	}, []string{"catalog"})

	m.CandidateErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crossmatch_candidate_errors_total",
		Help: "Total number of per-candidate failures isolated during a run",
	})

	m.CatalogFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crossmatch_catalog_failures_total",
		Help: "Total number of whole-catalog query failures, by catalog",
	}, []string{"catalog"})

	m.MatchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "crossmatch_object_duration_seconds",
		Help:    "Duration of one object's cross-match across all catalogs",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})
}
