package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/secure-auth-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides
// lightweight snapshots for the internal API.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	loginTotal      *prometheus.CounterVec
	mfaTotal        *prometheus.CounterVec
	refreshTotal    *prometheus.CounterVec
	rateLimitTrips  *prometheus.CounterVec
	tokenReuse      prometheus.Counter
	deviceBlocks    prometheus.Counter

	requestCount         uint64
	requestDurationTotal uint64
	loginSuccessCount    uint64
	loginFailureCount    uint64
	rateLimitCount       uint64
	tokenReuseCount      uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	loginTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_login_attempts_total",
		Help: "Login attempts by outcome",
	}, []string{"outcome"})

	mfaTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_mfa_verifications_total",
		Help: "MFA verifications by outcome",
	}, []string{"outcome"})

	refreshTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_token_refreshes_total",
		Help: "Refresh token rotations by outcome",
	}, []string{"outcome"})

	rateLimitTrips := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_rate_limit_trips_total",
		Help: "Requests rejected by the rate limiter, by scope",
	}, []string{"scope"})

	tokenReuse := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_token_reuse_detections_total",
		Help: "Detected replays of rotated refresh tokens",
	})

	deviceBlocks := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_device_blocks_total",
		Help: "Devices moved to the blocked state",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, loginTotal, mfaTotal, refreshTotal, rateLimitTrips, tokenReuse, deviceBlocks, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		loginTotal:      loginTotal,
		mfaTotal:        mfaTotal,
		refreshTotal:    refreshTotal,
		rateLimitTrips:  rateLimitTrips,
		tokenReuse:      tokenReuse,
		deviceBlocks:    deviceBlocks,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordLogin counts a login attempt outcome.
func (m *MetricsService) RecordLogin(success bool) {
	if m == nil {
		return
	}
	if success {
		m.loginTotal.WithLabelValues("success").Inc()
		atomic.AddUint64(&m.loginSuccessCount, 1)
	} else {
		m.loginTotal.WithLabelValues("failure").Inc()
		atomic.AddUint64(&m.loginFailureCount, 1)
	}
}

// RecordMFA counts an MFA verification outcome.
func (m *MetricsService) RecordMFA(success bool) {
	if m == nil {
		return
	}
	if success {
		m.mfaTotal.WithLabelValues("success").Inc()
	} else {
		m.mfaTotal.WithLabelValues("failure").Inc()
	}
}

// RecordRefresh counts a refresh rotation outcome.
func (m *MetricsService) RecordRefresh(success bool) {
	if m == nil {
		return
	}
	if success {
		m.refreshTotal.WithLabelValues("success").Inc()
	} else {
		m.refreshTotal.WithLabelValues("failure").Inc()
	}
}

// RecordRateLimitTrip counts a rate-limited request under a scope.
func (m *MetricsService) RecordRateLimitTrip(scope models.RateLimitScope) {
	if m == nil {
		return
	}
	m.rateLimitTrips.WithLabelValues(string(scope)).Inc()
	atomic.AddUint64(&m.rateLimitCount, 1)
}

// RecordTokenReuse counts a detected replay of a rotated refresh token.
func (m *MetricsService) RecordTokenReuse() {
	if m == nil {
		return
	}
	m.tokenReuse.Inc()
	atomic.AddUint64(&m.tokenReuseCount, 1)
}

// RecordDeviceBlock counts a device block.
func (m *MetricsService) RecordDeviceBlock() {
	if m == nil {
		return
	}
	m.deviceBlocks.Inc()
}

// Snapshot returns aggregated metrics for the internal API.
func (m *MetricsService) Snapshot() models.MetricsSnapshot {
	if m == nil {
		return models.MetricsSnapshot{}
	}
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.MetricsSnapshot{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		LoginSuccessTotal:        atomic.LoadUint64(&m.loginSuccessCount),
		LoginFailureTotal:        atomic.LoadUint64(&m.loginFailureCount),
		RateLimitTripsTotal:      atomic.LoadUint64(&m.rateLimitCount),
		TokenReuseTotal:          atomic.LoadUint64(&m.tokenReuseCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
