// Package metrics provides Prometheus metrics for the quote service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "quoter"

// Collector groups the service metrics on one registry.
type Collector struct {
	registry *prometheus.Registry

	polls        *prometheus.CounterVec
	pollDuration *prometheus.HistogramVec
	activeViews  prometheus.Gauge
	orders       *prometheus.CounterVec
}

func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Market data poll ticks by pair, kind and outcome.",
		}, []string{"pair", "kind", "outcome"}),
		pollDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_duration_seconds",
			Help:      "Duration of one poll tick including both upstream requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		activeViews: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_views",
			Help:      "Views with a running poll task.",
		}),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulated_orders_total",
			Help:      "Confirmed simulated orders by side.",
		}, []string{"side"}),
	}
	reg.MustRegister(c.polls, c.pollDuration, c.activeViews, c.orders)
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return c
}

// ObservePoll records one tick. kind is "market" or "chart".
func (c *Collector) ObservePoll(pair, kind string, took time.Duration, err error) {
	if c == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.polls.WithLabelValues(pair, kind, outcome).Inc()
	c.pollDuration.WithLabelValues(kind).Observe(took.Seconds())
}

func (c *Collector) ViewMounted() {
	if c != nil {
		c.activeViews.Inc()
	}
}

func (c *Collector) ViewUnmounted() {
	if c != nil {
		c.activeViews.Dec()
	}
}

func (c *Collector) OrderConfirmed(side string) {
	if c != nil {
		c.orders.WithLabelValues(side).Inc()
	}
}

// ActiveViews is the mounted-view gauge.
func (c *Collector) ActiveViews() prometheus.Gauge {
	return c.activeViews
}

// Registry exposes the underlying registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
