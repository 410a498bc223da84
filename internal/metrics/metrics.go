package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// LoginAttempts counts login outcomes (success, invalid, inactive)
	LoginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "admin_auth_login_attempts_total",
		Help: "Login attempts by outcome",
	}, []string{"outcome"})

	// TokenRotations counts refresh outcomes (rotated, expired, invalid, conflict, reused)
	TokenRotations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "admin_auth_token_rotations_total",
		Help: "Refresh credential rotations by outcome",
	}, []string{"outcome"})

	SessionsRevoked = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "admin_auth_sessions_revoked_total",
		Help: "Refresh credentials revoked by reason",
	}, []string{"reason"})

	CSRFRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "admin_csrf_rejections_total",
		Help: "Mutating requests rejected by the CSRF guard",
	}, []string{"reason"})

	PermissionChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "admin_permission_checks_total",
		Help: "Page permission evaluations by page and result",
	}, []string{"page", "result"})

	RateLimitDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "admin_ratelimit_decisions_total",
		Help: "Rate limiter decisions by endpoint class and result",
	}, []string{"class", "result"})

	// RateLimitBackend is 1 while counters are served by the local fallback store
	RateLimitBackend = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "admin_ratelimit_degraded",
		Help: "Binary indicator that rate counters are served locally (1 = degraded)",
	})

	AuditWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "admin_audit_writes_total",
		Help: "Audit entries persisted by write mode (sync, async, degraded) and result",
	}, []string{"mode", "result"})

	AuditQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "admin_audit_queue_depth",
		Help: "Routine audit entries waiting for the background writer",
	})

	HTTPInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "admin_http_in_flight_requests",
		Help: "In-flight HTTP requests",
	})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "admin_http_requests_total",
		Help: "HTTP requests by method, route and status",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "admin_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
