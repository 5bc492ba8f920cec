package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// ExpiryMetrics contains all Prometheus metrics related to the auto-expiry
// scheduler.
type ExpiryMetrics struct {
	Runs             prometheus.Counter
	ObjectsSnoozed   prometheus.Counter
	ObjectsAwakened  prometheus.Counter
	LastRunTimestamp prometheus.Gauge
}

// NewExpiryMetrics creates a new instance of ExpiryMetrics registered with
// the given registry.
func NewExpiryMetrics(registry *prometheus.Registry) (*ExpiryMetrics, error) {
	m := &ExpiryMetrics{}
	m.initMetrics()
	collectors := []prometheus.Collector{
		m.Runs, m.ObjectsSnoozed, m.ObjectsAwakened, m.LastRunTimestamp,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register expiry metrics: %w", err)
		}
	}
	return m, nil
}

func (m *ExpiryMetrics) initMetrics() {
	m.Runs = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "expiry_runs_total",
		Help: "Total number of auto-expiry runs",
	})

	m.ObjectsSnoozed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "expiry_objects_snoozed_total",
		Help: "Total number of objects snoozed for inactivity",
	})

	m.ObjectsAwakened = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "expiry_objects_awakened_total",
		Help: "Total number of snoozed objects pulled back into the inbox",
	})

	m.LastRunTimestamp = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "expiry_last_run_timestamp_seconds",
		Help: "Timestamp of the last completed auto-expiry run",
	})
}

// RecordRun accumulates the counters of one expiry run.
func (m *ExpiryMetrics) RecordRun(snoozed, awakened int) {
	m.Runs.Inc()
	m.ObjectsSnoozed.Add(float64(snoozed))
	m.ObjectsAwakened.Add(float64(awakened))
	m.LastRunTimestamp.SetToCurrentTime()
}
