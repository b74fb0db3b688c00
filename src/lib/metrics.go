package lib

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// TransitionsTotal counts state-machine transitions by target status.
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_transitions_total",
			Help: "Total number of payment status transitions",
		},
		[]string{"to_status"},
	)

	// CallbacksTotal counts webhook callbacks by leg, outcome and what the
	// reconciler did with them (applied, duplicate, mismatch, unknown, error).
	CallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_callbacks_total",
			Help: "Total number of gateway callbacks received",
		},
		[]string{"leg", "outcome", "result"},
	)

	GatewayRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Total number of requests issued to the payment gateway",
		},
		[]string{"leg", "result"},
	)

	GatewayCircuitState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_circuit_state",
			Help: "Gateway circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
	)

	SweepRecoveredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reconciliation_sweep_recovered_total",
			Help: "Stuck transactions resolved by the reconciliation sweep",
		},
	)
)

// PrometheusMiddleware records request counts and latencies per route.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		RequestsTotal.WithLabelValues(c.Request.Method, c.FullPath(), status).Inc()
		RequestDuration.WithLabelValues(c.Request.Method, c.FullPath()).Observe(duration)
	}
}
