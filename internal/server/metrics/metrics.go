// Package metrics collects and exposes Prometheus metrics for the server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what services and handlers report to.
type Recorder interface {
	TokensIssued()
	TokenRotated()
	RefreshReuseDetected()
	QuotaDecision(allowed bool)
	TryOnFinished(outcome string, d time.Duration)
	TryOnInFlight(delta int)
	HTTPRequest(route, method string, status int, d time.Duration)
}

// Collector is the Prometheus-backed Recorder.
type Collector struct {
	tokensIssued  prometheus.Counter
	tokenRotated  prometheus.Counter
	refreshReuse  prometheus.Counter
	quota         *prometheus.CounterVec
	tryOnOutcome  *prometheus.CounterVec
	tryOnDuration prometheus.Histogram
	tryOnInFlight prometheus.Gauge
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		tokensIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stylist_tokens_issued_total",
			Help: "Access/refresh token pairs issued.",
		}),
		tokenRotated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stylist_refresh_rotations_total",
			Help: "Successful refresh token rotations.",
		}),
		refreshReuse: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stylist_refresh_reuse_detected_total",
			Help: "Refresh tokens presented after they were already rotated.",
		}),
		quota: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stylist_quota_decisions_total",
			Help: "Quota consumption attempts by decision.",
		}, []string{"decision"}),
		tryOnOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stylist_tryon_total",
			Help: "Finished try-on orchestrations by outcome.",
		}, []string{"outcome"}),
		tryOnDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "stylist_tryon_duration_seconds",
			Help:    "Wall-clock time from submission to outcome.",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 60, 90, 120},
		}),
		tryOnInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stylist_tryon_in_flight",
			Help: "Try-on orchestrations currently holding a slot.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stylist_http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stylist_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	reg.MustRegister(
		c.tokensIssued,
		c.tokenRotated,
		c.refreshReuse,
		c.quota,
		c.tryOnOutcome,
		c.tryOnDuration,
		c.tryOnInFlight,
		c.httpRequests,
		c.httpDuration,
	)

	return c
}

func (c *Collector) TokensIssued()         { c.tokensIssued.Inc() }
func (c *Collector) TokenRotated()         { c.tokenRotated.Inc() }
func (c *Collector) RefreshReuseDetected() { c.refreshReuse.Inc() }

func (c *Collector) QuotaDecision(allowed bool) {
	decision := "exceeded"
	if allowed {
		decision = "allowed"
	}
	c.quota.WithLabelValues(decision).Inc()
}

func (c *Collector) TryOnFinished(outcome string, d time.Duration) {
	c.tryOnOutcome.WithLabelValues(outcome).Inc()
	c.tryOnDuration.Observe(d.Seconds())
}

func (c *Collector) TryOnInFlight(delta int) {
	c.tryOnInFlight.Add(float64(delta))
}

func (c *Collector) HTTPRequest(route, method string, status int, d time.Duration) {
	c.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

// Nop discards everything. Useful in tests.
type Nop struct{}

func (Nop) TokensIssued()                                  {}
func (Nop) TokenRotated()                                  {}
func (Nop) RefreshReuseDetected()                          {}
func (Nop) QuotaDecision(bool)                             {}
func (Nop) TryOnFinished(string, time.Duration)            {}
func (Nop) TryOnInFlight(int)                              {}
func (Nop) HTTPRequest(string, string, int, time.Duration) {}

// Handler returns the HTTP handler Prometheus scrapes.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
