// Package observability exposes the process's prometheus metrics.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the counters the pipeline reports. Failures degrade
// coverage rather than crashing the process, so counting them is the main
// way operators see source trouble.
type Metrics struct {
	registry *prometheus.Registry

	FetchAttempts  *prometheus.CounterVec
	FetchFailures  *prometheus.CounterVec
	PoolsUpserted  prometheus.Counter
	Opportunities  *prometheus.CounterVec
	EventsDropped  prometheus.Counter
	FeedMessages   prometheus.Counter
	FeedReconnects prometheus.Counter
}

// New creates and registers all pipeline metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		FetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dexradar_fetch_attempts_total",
			Help: "Source fetch attempts, by source.",
		}, []string{"source"}),
		FetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dexradar_fetch_failures_total",
			Help: "Source fetch failures, by source and kind.",
		}, []string{"source", "kind"}),
		PoolsUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dexradar_pools_upserted_total",
			Help: "Pool records merged into the registry.",
		}),
		Opportunities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dexradar_opportunities_total",
			Help: "Arbitrage opportunities emitted, by kind.",
		}, []string{"kind"}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dexradar_subscriber_events_dropped_total",
			Help: "Events dropped from overflowing subscriber queues.",
		}),
		FeedMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dexradar_feed_messages_total",
			Help: "Ticker messages received from the CEX feed.",
		}),
		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dexradar_feed_reconnects_total",
			Help: "Reconnection attempts made by the CEX feed.",
		}),
	}

	reg.MustRegister(
		m.FetchAttempts,
		m.FetchFailures,
		m.PoolsUpserted,
		m.Opportunities,
		m.EventsDropped,
		m.FeedMessages,
		m.FeedReconnects,
	)
	return m
}

// Handler returns the HTTP handler serving the metrics registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
