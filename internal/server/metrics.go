package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the gateway's Prometheus instruments.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	PaymentsSettled prometheus.Counter
	InvoicesIssued  prometheus.Counter
	QueriesExecuted *prometheus.CounterVec
	RateLimited     prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hyprcat_http_requests_total",
			Help: "HTTP requests served, by method, route, and status.",
		}, []string{"method", "route", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hyprcat_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		PaymentsSettled: factory.NewCounter(prometheus.CounterOpts{
			Name: "hyprcat_payments_settled_total",
			Help: "Confirmed payment receipts.",
		}),
		InvoicesIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "hyprcat_invoices_issued_total",
			Help: "Invoices issued with 402 responses.",
		}),
		QueriesExecuted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hyprcat_federated_queries_total",
			Help: "Federated queries, by outcome.",
		}, []string{"outcome"}),
		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "hyprcat_rate_limited_total",
			Help: "Requests rejected by the rate limiter.",
		}),
	}
}
