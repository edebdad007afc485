package api

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "jobledger",
	Subsystem: "http",
	Name:      "requests_total",
	Help:      "HTTP requests by method, route pattern and status code.",
}, []string{"method", "route", "status"})

var httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "jobledger",
	Subsystem: "http",
	Name:      "request_duration_seconds",
	Help:      "HTTP request latency by method and route pattern.",
	Buckets:   prometheus.DefBuckets,
}, []string{"method", "route"})

var paymentOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "jobledger",
	Subsystem: "ledger",
	Name:      "payments_total",
	Help:      "Payment attempts by outcome (accepted, overpayment, invalid, not_found, error).",
}, []string{"outcome"})

// CommitRetries counts record commits re-run after a version conflict.
// cmd/server hooks it into the service with billing.WithRetryHook.
var CommitRetries = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "jobledger",
	Subsystem: "ledger",
	Name:      "commit_retries_total",
	Help:      "Record commits retried after a concurrent modification.",
})

func observeRequest(method, route string, status int, seconds float64) {
	if route == "" {
		route = "unmatched"
	}
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(seconds)
}
