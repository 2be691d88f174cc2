package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BookingsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookings_created_total",
		Help: "Total number of bookings created",
	})

	BookingsApprovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookings_approved_total",
		Help: "Total number of bookings approved for payment",
	})

	BookingsExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookings_expired_total",
		Help: "Total number of bookings expired past their payment window",
	})

	PaymentSubmissionsAccepted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_submissions_accepted_total",
		Help: "Total number of accepted payment submissions",
	}, []string{"phase"})

	PaymentSubmissionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_submissions_rejected_total",
		Help: "Total number of rejected payment submissions",
	}, []string{"reason"})

	VerificationsConfirmedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "verifications_confirmed_total",
		Help: "Total number of on-chain payment verifications that confirmed",
	}, []string{"phase"})

	VerificationsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "verifications_failed_total",
		Help: "Total number of terminally failed payment verifications",
	}, []string{"reason"})

	VerificationAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "verification_receipt_attempts",
		Help:    "Receipt fetch attempts needed before a verification settled",
		Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10},
	})

	ChainRPCLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chain_rpc_latency_seconds",
		Help:    "Latency of blockchain RPC calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	NotificationsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_published_total",
		Help: "Total number of notification events published",
	}, []string{"type"})

	NotificationsDeliveredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_delivered_total",
		Help: "Total number of notification events relayed to delivery",
	}, []string{"type"})

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
