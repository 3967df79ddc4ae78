package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metrics collects the service counters on a private registry so tests can
// build servers independently without duplicate-registration panics.
type metrics struct {
	registry         *prometheus.Registry
	uploads          *prometheus.CounterVec
	inferenceSeconds *prometheus.HistogramVec
	syntheticServed  prometheus.Counter
}

func newMetrics() *metrics {
	m := &metrics{registry: prometheus.NewRegistry()}

	m.uploads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crowdcount_uploads_total",
		Help: "Uploads processed, partitioned by outcome.",
	}, []string{"outcome"})

	m.inferenceSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crowdcount_inference_duration_seconds",
		Help:    "Time spent producing a density estimate.",
		Buckets: prometheus.DefBuckets,
	}, []string{"engine"})

	m.syntheticServed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crowdcount_synthetic_estimates_total",
		Help: "Estimates served by the synthetic fallback engine.",
	})

	m.registry.MustRegister(m.uploads, m.inferenceSeconds, m.syntheticServed)
	return m
}
