// Package metrics provides Prometheus collectors for observation index
// lookups and pipeline outcomes.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for objects processed by the pipeline.
const (
	OutcomeResolved   = "resolved"
	OutcomeUnresolved = "unresolved"
	OutcomeFailed     = "failed"
)

// Metrics contains the collectors of one resolution process.
type Metrics struct {
	registry *prometheus.Registry

	lookupsTotal   *prometheus.CounterVec
	lookupErrors   *prometheus.CounterVec
	lookupDuration *prometheus.HistogramVec
	cacheHits      *prometheus.CounterVec
	objectsTotal   *prometheus.CounterVec
	trackletSize   prometheus.Histogram
}

// New creates and registers the collectors on registry. A nil registry gets
// a fresh private one.
func New(registry *prometheus.Registry) (*Metrics, error) {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	m := &Metrics{registry: registry}
	m.initMetrics()
	for _, c := range m.collectors() {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.lookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neodisc_index_lookups_total",
			Help: "Total number of observation index point lookups",
		},
		[]string{"kind"}, // kind: permanent, provisional, tracklet
	)
	m.lookupErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neodisc_index_lookup_errors_total",
			Help: "Total number of failed observation index lookups",
		},
		[]string{"kind"},
	)
	m.lookupDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "neodisc_index_lookup_duration_seconds",
			Help: "Time taken by observation index lookups",
			// 1ms to ~16s
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		},
		[]string{"kind"},
	)
	m.cacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neodisc_index_cache_hits_total",
			Help: "Total number of lookups answered from the lookup cache",
		},
		[]string{"kind"},
	)
	m.objectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neodisc_objects_total",
			Help: "Total number of catalog objects processed, by outcome",
		},
		[]string{"outcome"},
	)
	m.trackletSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "neodisc_tracklet_observations",
			Help:    "Number of observations in assembled discovery tracklets",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10, 15, 20, 50},
		},
	)
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.lookupsTotal, m.lookupErrors, m.lookupDuration,
		m.cacheHits, m.objectsTotal, m.trackletSize,
	}
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RecordLookup(kind string, d time.Duration, err error) {
	m.lookupsTotal.WithLabelValues(kind).Inc()
	m.lookupDuration.WithLabelValues(kind).Observe(d.Seconds())
	if err != nil {
		m.lookupErrors.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) RecordCacheHit(kind string) {
	m.cacheHits.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordObject(outcome string) {
	m.objectsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordTracklet(size int) {
	m.trackletSize.Observe(float64(size))
}

// WriteTextfile writes all collected metrics in the text exposition format,
// for pickup by a node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
