// Package metrics defines the Prometheus instruments for the site API.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "site_api"

// Upstream call outcomes.
const (
	OutcomeSuccess   = "success"
	OutcomeTransport = "transport_error"
	OutcomeStatus    = "status_error"
	OutcomeRejected  = "rejected"
)

// Cache lookup results.
const (
	CacheHit    = "hit"
	CacheMiss   = "miss"
	CacheError  = "error"
	CacheShared = "shared"
)

// Metrics holds all instruments. A nil *Metrics records nothing.
type Metrics struct {
	UpstreamRequests *prometheus.CounterVec
	UpstreamRetries  *prometheus.CounterVec
	UpstreamDuration *prometheus.HistogramVec
	BreakerState     *prometheus.GaugeVec
	CacheLookups     *prometheus.CounterVec
}

// New creates and registers the instruments on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		UpstreamRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_requests_total",
				Help:      "Upstream API calls by service and outcome, after retries",
			},
			[]string{"service", "outcome"},
		),
		UpstreamRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_retries_total",
				Help:      "Failed upstream attempts that were retried",
			},
			[]string{"service"},
		),
		UpstreamDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_request_duration_seconds",
				Help:      "Duration of upstream calls including retries",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"service"},
		),
		BreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"service"},
		),
		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Response cache lookups by cache and result",
			},
			[]string{"cache", "result"},
		),
	}
}

// ObserveUpstream records the final outcome of an upstream call.
func (m *Metrics) ObserveUpstream(service, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.UpstreamRequests.WithLabelValues(service, outcome).Inc()
	m.UpstreamDuration.WithLabelValues(service).Observe(d.Seconds())
}

// IncRetry counts one retried attempt.
func (m *Metrics) IncRetry(service string) {
	if m == nil {
		return
	}
	m.UpstreamRetries.WithLabelValues(service).Inc()
}

// SetBreakerState records the breaker state as 0, 1 or 2.
func (m *Metrics) SetBreakerState(service string, state float64) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(service).Set(state)
}

// IncCache counts one cache lookup.
func (m *Metrics) IncCache(cache, result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(cache, result).Inc()
}
