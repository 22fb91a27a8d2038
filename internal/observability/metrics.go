// Package observability provides metrics for sightings runs.
package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fieldbio/sightings/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry  *prometheus.Registry
	Sightings *metrics.SightingsMetrics
	Sites     *metrics.SitesMetrics
	EBird     *metrics.EBirdMetrics
}

// NewMetrics creates a new instance of Metrics, initializing all metric collectors.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	sightingsMetrics, err := metrics.NewSightingsMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create sightings metrics: %w", err)
	}

	sitesMetrics, err := metrics.NewSitesMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create sites metrics: %w", err)
	}

	ebirdMetrics, err := metrics.NewEBirdMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create ebird metrics: %w", err)
	}

	return &Metrics{
		registry:  registry,
		Sightings: sightingsMetrics,
		Sites:     sitesMetrics,
		EBird:     ebirdMetrics,
	}, nil
}

// WriteTextfile writes the current values in the node exporter textfile
// format. CLI runs are too short-lived to be scraped, so the textfile
// collector picks them up instead.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
