// Package observability provides the Prometheus metric collectors for the
// pipeline stages and an optional scrape endpoint.
package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kinderlab/tnsmarshal/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry   *prometheus.Registry
	Ingest     *metrics.IngestMetrics
	CrossMatch *metrics.CrossMatchMetrics
	Expiry     *metrics.ExpiryMetrics
}

// NewMetrics creates a new instance of Metrics, initializing all metric
// collectors against a fresh registry.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	ingestMetrics, err := metrics.NewIngestMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create ingest metrics: %w", err)
	}

	crossMatchMetrics, err := metrics.NewCrossMatchMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create cross-match metrics: %w", err)
	}

	expiryMetrics, err := metrics.NewExpiryMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create expiry metrics: %w", err)
	}

	return &Metrics{
		registry:   registry,
		Ingest:     ingestMetrics,
		CrossMatch: crossMatchMetrics,
		Expiry:     expiryMetrics,
	}, nil
}

// Handler returns an HTTP handler exposing the registry in the Prometheus
// text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
