package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fieldbio/sightings/internal/ebird"
)

// EBirdMetrics exports the request counters of an eBird client
type EBirdMetrics struct {
	apiCallsTotal       prometheus.Counter
	apiErrorsTotal      prometheus.Counter
	cacheHitsTotal      prometheus.Counter
	cacheMissesTotal    prometheus.Counter
	requestSecondsTotal prometheus.Counter
}

// NewEBirdMetrics creates and registers new eBird client metrics
func NewEBirdMetrics(registry *prometheus.Registry) (*EBirdMetrics, error) {
	m := &EBirdMetrics{
		apiCallsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ebird_api_calls_total",
			Help: "Total number of requests sent to the eBird API",
		}),
		apiErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ebird_api_errors_total",
			Help: "Total number of failed eBird API requests",
		}),
		cacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ebird_cache_hits_total",
			Help: "Total number of taxonomy lookups served from the cache",
		}),
		cacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ebird_cache_misses_total",
			Help: "Total number of taxonomy lookups that went to the API",
		}),
		requestSecondsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ebird_request_duration_seconds_total",
			Help: "Total time spent waiting for eBird API responses",
		}),
	}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Describe implements the Collector interface
func (m *EBirdMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.apiCallsTotal.Describe(ch)
	m.apiErrorsTotal.Describe(ch)
	m.cacheHitsTotal.Describe(ch)
	m.cacheMissesTotal.Describe(ch)
	m.requestSecondsTotal.Describe(ch)
}

// Collect implements the Collector interface
func (m *EBirdMetrics) Collect(ch chan<- prometheus.Metric) {
	m.apiCallsTotal.Collect(ch)
	m.apiErrorsTotal.Collect(ch)
	m.cacheHitsTotal.Collect(ch)
	m.cacheMissesTotal.Collect(ch)
	m.requestSecondsTotal.Collect(ch)
}

// RecordClient adds the counters a client gathered during a run.
func (m *EBirdMetrics) RecordClient(c ebird.Metrics) {
	m.apiCallsTotal.Add(float64(c.APICalls))
	m.apiErrorsTotal.Add(float64(c.APIErrors))
	m.cacheHitsTotal.Add(float64(c.CacheHits))
	m.cacheMissesTotal.Add(float64(c.CacheMisses))
	m.requestSecondsTotal.Add(c.TotalDuration.Seconds())
}
