package models

import "time"

// MetricsSnapshot is an aggregated view of process-level metrics for the
// internal API.
type MetricsSnapshot struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	LoginSuccessTotal        uint64    `json:"login_success_total"`
	LoginFailureTotal        uint64    `json:"login_failure_total"`
	RateLimitTripsTotal      uint64    `json:"rate_limit_trips_total"`
	TokenReuseTotal          uint64    `json:"token_reuse_total"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}

// SystemStats aggregates persisted counts for the internal API.
type SystemStats struct {
	Users          UserStats      `json:"users"`
	ActiveSessions int            `json:"active_sessions"`
	Devices        map[string]int `json:"devices_by_state"`
	Events         map[string]int `json:"events_24h"`
	GeneratedAt    time.Time      `json:"generated_at"`
}

// UserStats breaks the user population down by account status.
type UserStats struct {
	Total  int `json:"total"`
	Active int `json:"active"`
	Locked int `json:"locked"`
}
