// Package obmetrics wires the client's observable metrics (spec.md §6)
// into Prometheus, in the shape of the teacher's kprom plugin: a small
// struct of pre-registered collectors, built once and handed to
// obkv.WithMetricsRegistry.
package obmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the registerer-backed collector set the client observes
// through. It satisfies the narrow interface pkg/obkv requires of a
// metrics registry, so pkg/obkv itself never imports prometheus.
type Metrics struct {
	duration     *prometheus.HistogramVec
	distribution *prometheus.HistogramVec
	retries      *prometheus.CounterVec

	registerOnce sync.Once
	reg          prometheus.Registerer
}

// Opt configures a Metrics set.
type Opt interface{ apply(*Metrics) }

type opt struct{ fn func(*Metrics) }

func (o opt) apply(m *Metrics) { o.fn(m) }

// Registerer overrides the prometheus.Registerer metrics register into.
// Defaults to prometheus.DefaultRegisterer.
func Registerer(r prometheus.Registerer) Opt {
	return opt{func(m *Metrics) { m.reg = r }}
}

// New builds a fresh Metrics set and registers its collectors with
// MustRegister against the configured Registerer (default
// prometheus.DefaultRegisterer). Each call builds new collectors, so a
// second New against the same Registerer panics on duplicate
// registration.
func New(opts ...Opt) *Metrics {
	m := &Metrics{reg: prometheus.DefaultRegisterer}
	for _, o := range opts {
		o.apply(m)
	}

	m.duration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "obkv_client_duration_seconds",
		Help:    "Latency of client operations, labeled by operation kind.",
		Buckets: exponentialBuckets(0.0005, 2, 18),
	}, []string{"op"})

	m.distribution = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "obkv_client_metric_distribution",
		Help:    "Distribution of sampled client metrics, such as query permits in use.",
		Buckets: linearBuckets(5, 20, 20),
	}, []string{"metric"})

	m.retries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "obkv_client_retry_total",
		Help: "Count of retried client operations, labeled by operation kind.",
	}, []string{"op"})

	m.registerOnce.Do(func() {
		m.reg.MustRegister(m.duration, m.distribution, m.retries)
	})
	return m
}

// ObserveDuration records d against op's duration histogram.
func (m *Metrics) ObserveDuration(op string, d time.Duration) {
	m.duration.WithLabelValues(op).Observe(d.Seconds())
}

// ObserveDistribution records v against the named distribution
// histogram (spec.md §7 "query_permits in use").
func (m *Metrics) ObserveDistribution(name string, v float64) {
	m.distribution.WithLabelValues(name).Observe(v)
}

// IncRetry increments op's retry counter.
func (m *Metrics) IncRetry(op string) {
	m.retries.WithLabelValues(op).Inc()
}

func exponentialBuckets(start, factor float64, count int) []float64 {
	buckets := make([]float64, count)
	v := start
	for i := range buckets {
		buckets[i] = v
		v *= factor
	}
	return buckets
}

func linearBuckets(start, width float64, count int) []float64 {
	buckets := make([]float64, count)
	v := start
	for i := range buckets {
		buckets[i] = v
		v += width
	}
	return buckets
}
