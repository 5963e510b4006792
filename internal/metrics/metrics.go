package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RemoteRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "followreq_remote_requests_total",
		Help: "Requests sent to the remote API",
	}, []string{"endpoint", "status"})

	RemoteLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "followreq_remote_request_duration_seconds",
		Help:    "Remote API latency",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"endpoint"})

	Fetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "followreq_pending_fetches_total",
		Help: "Pending-request fetches by source",
	}, []string{"source"})

	Actions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "followreq_actions_total",
		Help: "Executed actions by kind and result",
	}, []string{"kind", "result"})

	RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "followreq_rate_limited_total",
		Help: "Actions denied by the local rate limiter",
	}, []string{"kind", "scope"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "followreq_http_requests_total",
		Help: "Requests served by the local HTTP boundary",
	}, []string{"method", "route", "status"})

	HTTPLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "followreq_http_request_duration_seconds",
		Help:    "Local HTTP boundary latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"method", "route"})
)

// ObserveRemote 记录一次远端调用
func ObserveRemote(endpoint string, status int, seconds float64) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	RemoteRequests.WithLabelValues(endpoint, label).Inc()
	RemoteLatency.WithLabelValues(endpoint).Observe(seconds)
}
