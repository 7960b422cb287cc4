// Package metrics exposes posting metrics to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"costledger/internal/domain/posting"
	"costledger/internal/infrastructure/storage/postgres"
)

// Metric names.
const (
	MetricPostingsTotal          = "costledger_postings_total"
	MetricPostingDurationSeconds = "costledger_posting_duration_seconds"
	MetricRefusalsTotal          = "costledger_posting_refusals_total"
	MetricDBConns                = "costledger_db_connections"
	MetricDBAcquireTotal         = "costledger_db_acquire_total"
)

// Collector implements posting.Metrics on a private registry.
type Collector struct {
	registry *prometheus.Registry

	postingsTotal   *prometheus.CounterVec
	postingDuration *prometheus.HistogramVec
	refusalsTotal   *prometheus.CounterVec
}

var _ posting.Metrics = (*Collector)(nil)

// NewCollector creates the posting collectors plus Go and process collectors.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		postingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricPostingsTotal,
			Help: "Posting operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		postingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricPostingDurationSeconds,
			Help:    "Duration of posting operations including the atomic unit.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"operation"}),
		refusalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricRefusalsTotal,
			Help: "Refused postings by operation and error code.",
		}, []string{"operation", "code"}),
	}

	c.registry.MustRegister(
		c.postingsTotal,
		c.postingDuration,
		c.refusalsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) ObservePosting(operation, outcome string, d time.Duration) {
	c.postingsTotal.WithLabelValues(operation, outcome).Inc()
	c.postingDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func (c *Collector) IncRefusal(operation, code string) {
	c.refusalsTotal.WithLabelValues(operation, code).Inc()
}

// WatchPool exports connection pool gauges read from stats on every scrape.
func (c *Collector) WatchPool(stats func() postgres.PoolStats) {
	state := func(pick func(postgres.PoolStats) int32) func() float64 {
		return func() float64 { return float64(pick(stats())) }
	}
	gauge := func(name string, pick func(postgres.PoolStats) int32) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        MetricDBConns,
			Help:        "Database connections by state.",
			ConstLabels: prometheus.Labels{"state": name},
		}, state(pick))
	}

	c.registry.MustRegister(
		gauge("total", func(s postgres.PoolStats) int32 { return s.TotalConns }),
		gauge("acquired", func(s postgres.PoolStats) int32 { return s.AcquiredConns }),
		gauge("idle", func(s postgres.PoolStats) int32 { return s.IdleConns }),
		gauge("max", func(s postgres.PoolStats) int32 { return s.MaxConns }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: MetricDBAcquireTotal,
			Help: "Connections acquired from the pool.",
		}, func() float64 { return float64(stats().AcquireCount) }),
	)
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
