package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// Optimizations counts finished optimisation runs by stop reason
	Optimizations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ecoroute_optimizations_total", Help: "Optimisation runs by stop reason."},
		[]string{"stop_reason"},
	)
	// SolveDuration records wall-clock solve time in seconds
	SolveDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "ecoroute_solve_duration_seconds", Help: "Optimisation wall-clock time in seconds.", Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60}},
	)
	// UnassignedOrders counts orders reported as unassignable
	UnassignedOrders = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "ecoroute_unassigned_orders_total", Help: "Orders left unassigned by the optimiser."},
	)
	// SolvesInFlight tracks optimisations holding a worker slot
	SolvesInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "ecoroute_solves_in_flight", Help: "Optimisations currently running."},
	)
	// EstimatorDegraded is 1 while the travel-time estimator fallback is active
	EstimatorDegraded = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "ecoroute_estimator_degraded", Help: "1 when the travel-time model failed to load."},
	)

	// WebhookDeliveries counts webhook delivery outcomes by event type and status
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	// WebhookLatency tracks webhook delivery latencies in milliseconds
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers collectors to the API registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(
			HTTPRequests, HTTPDuration,
			Optimizations, SolveDuration, UnassignedOrders, SolvesInFlight, EstimatorDegraded,
			WebhookDeliveries, WebhookLatency,
		)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
