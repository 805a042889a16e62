package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the service.
	Registry = prometheus.NewRegistry()

	// HTTPRequests counts requests by method, path, and status.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds.
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// Notifications counts inbound webhook notifications by type and status.
	Notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "notifications_total", Help: "Inbound marketplace notifications by type and order status."},
		[]string{"type", "status"},
	)
	// Transitions counts state-machine transitions by outcome. The webhook
	// boundary always answers 200, so failures are visible here and in the
	// journal, not in HTTP status codes.
	Transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "order_transitions_total", Help: "Order sync transitions by outcome."},
		[]string{"transition", "outcome"},
	)
	// SignatureChecks counts webhook signature verification results.
	SignatureChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_signature_checks_total", Help: "Webhook signature verification results."},
		[]string{"result"},
	)
	// CachedOrders tracks the number of orders with cached line items.
	CachedOrders = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "cached_orders", Help: "Orders currently held in the item cache."},
	)
)

// RegisterDefault registers all collectors on the service registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(Notifications)
		Registry.MustRegister(Transitions)
		Registry.MustRegister(SignatureChecks)
		Registry.MustRegister(CachedOrders)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
