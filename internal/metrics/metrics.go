// Package metrics exposes poller activity to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Poll results recorded by ObservePoll.
const (
	ResultOK         = "ok"
	ResultFetchError = "fetch_error"
	ResultStoreError = "store_error"
)

// Poller collects metrics for poll cycles. A nil *Poller records nothing.
type Poller struct {
	polls         *prometheus.CounterVec
	changes       prometheus.Counter
	pollDuration  prometheus.Histogram
	lastSuccessTS prometheus.Gauge
}

// NewPoller registers the poller metrics with reg.
func NewPoller(reg prometheus.Registerer) *Poller {
	return &Poller{
		polls: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "hello_polls_total",
				Help: "Number of poll cycles by result.",
			}, []string{"result"},
		),
		changes: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "hello_payload_changes_total",
				Help: "Number of snapshots whose payload differed from the previous one.",
			},
		),
		pollDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "hello_poll_duration_seconds",
				Help:    "Duration of poll cycles, upstream request included.",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		lastSuccessTS: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "hello_last_successful_poll_timestamp_seconds",
				Help: "Unix time of the last poll that stored a snapshot.",
			},
		),
	}
}

// ObservePoll records the outcome of one poll cycle.
func (p *Poller) ObservePoll(result string, started, finished time.Time) {
	if p == nil {
		return
	}
	p.polls.WithLabelValues(result).Inc()
	p.pollDuration.Observe(finished.Sub(started).Seconds())
	if result == ResultOK {
		p.lastSuccessTS.Set(float64(finished.Unix()))
	}
}

// IncChanged counts a payload change.
func (p *Poller) IncChanged() {
	if p == nil {
		return
	}
	p.changes.Inc()
}

// Handler serves the metrics gathered by reg.
func Handler(reg prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
