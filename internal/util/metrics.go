package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CheckoutSessionsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_sessions_created_total",
		Help: "Total number of checkout sessions created",
	}, []string{"mode"})

	CheckoutFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_failed_total",
		Help: "Total number of failed checkout attempts",
	}, []string{"reason"})

	GuestCustomersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "guest_customers_created_total",
		Help: "Total number of guest Stripe customers created",
	})

	CheckoutLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "checkout_session_latency_seconds",
		Help:    "Latency of checkout session creation",
		Buckets: prometheus.DefBuckets,
	})

	WebhookEventsReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_received_total",
		Help: "Total number of webhook events received",
	}, []string{"type"})

	WebhookEventsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_processed_total",
		Help: "Total number of webhook events processed by outcome",
	}, []string{"outcome"})

	WebhookSignatureFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webhook_signature_failures_total",
		Help: "Total number of webhook signature verification failures",
	})

	OrdersRecordedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_recorded_total",
		Help: "Total number of one-time payment orders recorded",
	})

	SubscriptionsSyncedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "subscriptions_synced_total",
		Help: "Total number of subscription state syncs from Stripe",
	})

	ReconcileLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "webhook_reconcile_latency_seconds",
		Help:    "Latency of webhook event reconciliation",
		Buckets: prometheus.DefBuckets,
	})

	DiscountsAppliedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_discounts_applied_total",
		Help: "Total number of discount code applications",
	}, []string{"result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
