// Package metrics defines the prometheus collectors of the service. They are
// registered in the default registry and exposed by the API at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookEvents counts the Stripe webhook deliveries by event type and
	// result (processed, duplicate, invalid, failed, ignored).
	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailclean_webhook_events_total",
			Help: "Total number of Stripe webhook events received",
		},
		[]string{"type", "result"},
	)

	// CheckoutSessions counts the checkout sessions created by plan and status.
	CheckoutSessions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailclean_checkout_sessions_total",
			Help: "Total number of checkout sessions requested",
		},
		[]string{"plan", "status"},
	)

	// AuthRequests counts the auth provider calls by operation and status.
	AuthRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailclean_auth_requests_total",
			Help: "Total number of auth provider operations",
		},
		[]string{"operation", "status"},
	)

	// AuthRetries counts the attempts repeated after a retryable failure.
	AuthRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailclean_auth_retries_total",
			Help: "Total number of retried auth provider attempts",
		},
		[]string{"operation"},
	)

	// HTTPRequestDuration observes the API latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailclean_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~16s
		},
		[]string{"method", "route", "status"},
	)
)

// RecordWebhookEvent increments the webhook counter.
func RecordWebhookEvent(eventType, result string) {
	if eventType == "" {
		eventType = "unknown"
	}
	WebhookEvents.WithLabelValues(eventType, result).Inc()
}

// RecordCheckoutSession increments the checkout counter.
func RecordCheckoutSession(plan, status string) {
	CheckoutSessions.WithLabelValues(plan, status).Inc()
}

// RecordAuthRequest increments the auth counter.
func RecordAuthRequest(operation, status string) {
	AuthRequests.WithLabelValues(operation, status).Inc()
}

// RecordAuthRetry increments the auth retry counter.
func RecordAuthRetry(operation string) {
	AuthRetries.WithLabelValues(operation).Inc()
}

// RecordHTTPRequestDuration observes the duration of a served request.
func RecordHTTPRequestDuration(method, route, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}
