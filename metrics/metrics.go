// Package metrics exposes Prometheus metrics for crawl runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// Namespace is the namespace for all newsharvest metrics.
	Namespace = "newsharvest"

	// Subsystem is the subsystem for crawl metrics.
	Subsystem = "crawl"
)

// Metrics holds the crawl collectors and the registry they live on. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal           *prometheus.CounterVec
	RunDurationSeconds  *prometheus.HistogramVec
	PagesFetchedTotal   prometheus.Counter
	NewItemsTotal       prometheus.Counter
	StoreItems          prometheus.Gauge
	LastSuccessUnixTime prometheus.Gauge
}

// New creates the collectors on a fresh registry, along with the Go runtime
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)
	m := &Metrics{registry: reg}

	m.RunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "runs_total",
			Help:      "Total number of crawl runs by mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	m.RunDurationSeconds = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "run_duration_seconds",
			Help:      "Duration of crawl runs in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17min
		},
		[]string{"mode"},
	)

	m.PagesFetchedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "pages_fetched_total",
			Help:      "Total number of listing pages fetched",
		},
	)

	m.NewItemsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "new_items_total",
			Help:      "Total number of items added to the store",
		},
	)

	m.StoreItems = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "store_items",
			Help:      "Number of items in the store after the last successful run",
		},
	)

	m.LastSuccessUnixTime = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run",
		},
	)

	return m
}

// ObserveRun records a finished run. outcome is "success" or an error kind.
func (m *Metrics) ObserveRun(mode, outcome string, pages, newItems, totalItems int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if mode == "" {
		mode = "unknown"
	}

	m.RunsTotal.WithLabelValues(mode, outcome).Inc()
	m.RunDurationSeconds.WithLabelValues(mode).Observe(elapsed.Seconds())
	m.PagesFetchedTotal.Add(float64(pages))

	if outcome == "success" {
		m.NewItemsTotal.Add(float64(newItems))
		m.StoreItems.Set(float64(totalItems))
		m.LastSuccessUnixTime.SetToCurrentTime()
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
