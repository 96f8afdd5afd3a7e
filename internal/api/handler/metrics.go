package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	mdropRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mdrop_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	mdropRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mdrop_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	mdropClaimsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mdrop_claims_total",
		Help: "Total claim submissions by outcome.",
	}, []string{"outcome"})

	mdropDistributionPaused = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mdrop_distribution_paused",
		Help: "Whether a distribution is currently paused (1) or active (0).",
	}, []string{"distribution"})

	mdropWebhookDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mdrop_webhook_deliveries_total",
		Help: "Total webhook deliveries by success status.",
	}, []string{"status"})

	mdropAuditSweepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mdrop_audit_sweeps_total",
		Help: "Total reconciliation sweeps by result.",
	}, []string{"result"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		mdropRequestsTotal.WithLabelValues(method, path, status).Inc()
		mdropRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordClaim records a claim submission outcome.
func RecordClaim(outcome string) {
	mdropClaimsTotal.WithLabelValues(outcome).Inc()
}

// SetPausedGauge sets the pause gauge for a distribution.
func SetPausedGauge(distribution int, paused bool) {
	v := 0.0
	if paused {
		v = 1.0
	}
	mdropDistributionPaused.WithLabelValues(strconv.Itoa(distribution)).Set(v)
}

// RecordWebhookDelivery records a webhook delivery attempt.
func RecordWebhookDelivery(success bool) {
	if success {
		mdropWebhookDeliveriesTotal.WithLabelValues("success").Inc()
	} else {
		mdropWebhookDeliveriesTotal.WithLabelValues("failure").Inc()
	}
}

// RecordAuditSweep records a reconciliation sweep result.
func RecordAuditSweep(consistent bool) {
	if consistent {
		mdropAuditSweepsTotal.WithLabelValues("consistent").Inc()
	} else {
		mdropAuditSweepsTotal.WithLabelValues("drift").Inc()
	}
}
