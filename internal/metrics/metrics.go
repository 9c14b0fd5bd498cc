// Package metrics exposes Prometheus collectors for remote calls, backend
// operations and gateway requests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records aora metrics on a Prometheus registry.
type Collector struct {
	remoteCalls      *prometheus.CounterVec
	remoteLatency    *prometheus.HistogramVec
	operations       *prometheus.CounterVec
	operationLatency *prometheus.HistogramVec
	httpRequests     *prometheus.CounterVec
	httpLatency      *prometheus.HistogramVec
}

// NewCollector creates the collectors and registers them on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		remoteCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aora_remote_calls_total",
			Help: "Calls made to the backend service by route and status code.",
		}, []string{"route", "status_code"}),
		remoteLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aora_remote_call_duration_seconds",
			Help:    "Latency of calls made to the backend service.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aora_operations_total",
			Help: "Completed client operations by outcome.",
		}, []string{"operation", "outcome"}),
		operationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aora_operation_duration_seconds",
			Help:    "Latency of client operations.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"operation"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aora_http_requests_total",
			Help: "Gateway requests by method, route pattern and status code.",
		}, []string{"method", "route", "status_code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aora_http_request_duration_seconds",
			Help:    "Gateway request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		c.remoteCalls,
		c.remoteLatency,
		c.operations,
		c.operationLatency,
		c.httpRequests,
		c.httpLatency,
	)

	return c
}

// ObserveRemoteCall records one call to the backend service. A zero status
// means the call failed before a response arrived.
func (c *Collector) ObserveRemoteCall(route string, status int, duration time.Duration) {
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	c.remoteCalls.WithLabelValues(route, code).Inc()
	c.remoteLatency.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordOperation records a completed client operation.
func (c *Collector) RecordOperation(op string, err error, duration time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	c.operations.WithLabelValues(op, outcome).Inc()
	c.operationLatency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordHTTPRequest records a served gateway request.
func (c *Collector) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpLatency.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Handler serves the gathered metrics in the Prometheus exposition format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
