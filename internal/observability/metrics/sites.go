package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fieldbio/sightings/internal/sites"
)

// Check outcome label values.
const (
	StatusPassed = "passed"
	StatusFailed = "failed"
)

// SitesMetrics contains Prometheus metrics for survey-site validation
type SitesMetrics struct {
	registry *prometheus.Registry

	checksTotal      *prometheus.CounterVec
	correctionsTotal prometheus.Counter
}

// NewSitesMetrics creates and registers new site validation metrics
func NewSitesMetrics(registry *prometheus.Registry) (*SitesMetrics, error) {
	m := &SitesMetrics{registry: registry}
	m.checksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sites_checks_total",
			Help: "Total number of survey-site checks run",
		},
		[]string{"check", "status"},
	)
	m.correctionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sites_trapping_area_corrections_total",
			Help: "Total number of trapping areas rewritten to the containing scouting area",
		},
	)
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Describe implements the Collector interface
func (m *SitesMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.checksTotal.Describe(ch)
	m.correctionsTotal.Describe(ch)
}

// Collect implements the Collector interface
func (m *SitesMetrics) Collect(ch chan<- prometheus.Metric) {
	m.checksTotal.Collect(ch)
	m.correctionsTotal.Collect(ch)
}

// RecordCheck implements sites.Recorder
func (m *SitesMetrics) RecordCheck(check string, passed bool) {
	status := StatusFailed
	if passed {
		status = StatusPassed
	}
	m.checksTotal.WithLabelValues(check, status).Inc()
}

// RecordCorrections implements sites.Recorder
func (m *SitesMetrics) RecordCorrections(corrected int) {
	m.correctionsTotal.Add(float64(corrected))
}

var _ sites.Recorder = (*SitesMetrics)(nil)
