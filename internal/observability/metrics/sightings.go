// Package metrics provides sighting merge and site validation metrics for observability
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fieldbio/sightings/internal/observation"
)

// SightingsMetrics contains Prometheus metrics for observation merges
type SightingsMetrics struct {
	registry *prometheus.Registry

	observationsPulledTotal *prometheus.CounterVec
	observationsLumpedTotal *prometheus.CounterVec
	checklistsNewTotal      *prometheus.CounterVec
	checklistsDriftedTotal  *prometheus.CounterVec
	checklistsStored        *prometheus.GaugeVec
	mergesTotal             *prometheus.CounterVec
}

// NewSightingsMetrics creates and registers new sighting metrics
func NewSightingsMetrics(registry *prometheus.Registry) (*SightingsMetrics, error) {
	m := &SightingsMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// initMetrics initializes all Prometheus metrics
func (m *SightingsMetrics) initMetrics() {
	m.observationsPulledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sightings_observations_pulled_total",
			Help: "Total number of raw observations pulled from the observation source",
		},
		[]string{"species_code"},
	)

	m.observationsLumpedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sightings_observations_lumped_total",
			Help: "Total number of observations summed into a checklist already pulled under another species code",
		},
		[]string{"species_code"},
	)

	m.checklistsNewTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sightings_checklists_new_total",
			Help: "Total number of checklists added to the store",
		},
		[]string{"region"},
	)

	m.checklistsDriftedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sightings_checklists_drifted_total",
			Help: "Total number of stored checklists whose count changed on a later pull",
		},
		[]string{"region"},
	)

	m.checklistsStored = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sightings_checklists_pulled",
			Help: "Distinct checklists seen in the last merge",
		},
		[]string{"region"},
	)

	m.mergesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sightings_merges_total",
			Help: "Total number of completed merges",
		},
		[]string{"region"},
	)
}

// Describe implements the Collector interface
func (m *SightingsMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.observationsPulledTotal.Describe(ch)
	m.observationsLumpedTotal.Describe(ch)
	m.checklistsNewTotal.Describe(ch)
	m.checklistsDriftedTotal.Describe(ch)
	m.checklistsStored.Describe(ch)
	m.mergesTotal.Describe(ch)
}

// Collect implements the Collector interface
func (m *SightingsMetrics) Collect(ch chan<- prometheus.Metric) {
	m.observationsPulledTotal.Collect(ch)
	m.observationsLumpedTotal.Collect(ch)
	m.checklistsNewTotal.Collect(ch)
	m.checklistsDriftedTotal.Collect(ch)
	m.checklistsStored.Collect(ch)
	m.mergesTotal.Collect(ch)
}

// RecordPull implements observation.Recorder
func (m *SightingsMetrics) RecordPull(speciesCode string, observations, lumped int) {
	m.observationsPulledTotal.WithLabelValues(speciesCode).Add(float64(observations))
	m.observationsLumpedTotal.WithLabelValues(speciesCode).Add(float64(lumped))
}

// RecordMerge implements observation.Recorder
func (m *SightingsMetrics) RecordMerge(result *observation.MergeResult) {
	region := result.RegionCode
	m.checklistsNewTotal.WithLabelValues(region).Add(float64(result.New))
	m.checklistsDriftedTotal.WithLabelValues(region).Add(float64(len(result.Drifted)))
	m.checklistsStored.WithLabelValues(region).Set(float64(result.Checklists))
	m.mergesTotal.WithLabelValues(region).Inc()
}

var _ observation.Recorder = (*SightingsMetrics)(nil)
