package api

import (
	"sync/atomic"
	"time"
)

// Metrics collects in-memory server metrics using atomic counters.
type Metrics struct {
	startTime     time.Time
	requests      atomic.Int64
	serverErrors  atomic.Int64
	clientErrors  atomic.Int64
	rateLimited   atomic.Int64
	mutations     atomic.Int64
	changesServed atomic.Int64
	notifications atomic.Int64
	deliveries    atomic.Int64
	failures      atomic.Int64
}

// MetricsSnapshot is a point-in-time view of server metrics.
type MetricsSnapshot struct {
	UptimeSeconds    float64 `json:"uptime_seconds"`
	Requests         int64   `json:"requests"`
	ServerErrors     int64   `json:"server_errors"`
	ClientErrors     int64   `json:"client_errors"`
	RateLimited      int64   `json:"rate_limited"`
	Mutations        int64   `json:"mutations"`
	ChangesServed    int64   `json:"changes_served"`
	Notifications    int64   `json:"notifications"`
	Deliveries       int64   `json:"deliveries"`
	DeliveryFailures int64   `json:"delivery_failures"`
	HeadSeq          int64   `json:"head_seq"`
}

// NewMetrics creates a new Metrics instance with the current time as start.
func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// RecordRequest increments the total request counter.
func (m *Metrics) RecordRequest() {
	m.requests.Add(1)
}

// RecordError increments the server error (5xx) counter.
func (m *Metrics) RecordError() {
	m.serverErrors.Add(1)
}

// RecordClientError increments the client error (4xx) counter.
func (m *Metrics) RecordClientError() {
	m.clientErrors.Add(1)
}

// RecordRateLimited increments the rejected-by-rate-limit counter.
func (m *Metrics) RecordRateLimited() {
	m.rateLimited.Add(1)
}

// RecordMutation counts one accepted insert, update or delete.
func (m *Metrics) RecordMutation() {
	m.mutations.Add(1)
}

// RecordChangesServed adds n to the change-feed counter.
func (m *Metrics) RecordChangesServed(n int) {
	m.changesServed.Add(int64(n))
}

// RecordNotification counts one fan-out and its per-endpoint outcomes.
func (m *Metrics) RecordNotification(delivered, failed int) {
	m.notifications.Add(1)
	m.deliveries.Add(int64(delivered))
	m.failures.Add(int64(failed))
}

// Snapshot returns a point-in-time copy of the metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		UptimeSeconds:    time.Since(m.startTime).Seconds(),
		Requests:         m.requests.Load(),
		ServerErrors:     m.serverErrors.Load(),
		ClientErrors:     m.clientErrors.Load(),
		RateLimited:      m.rateLimited.Load(),
		Mutations:        m.mutations.Load(),
		ChangesServed:    m.changesServed.Load(),
		Notifications:    m.notifications.Load(),
		Deliveries:       m.deliveries.Load(),
		DeliveryFailures: m.failures.Load(),
	}
}
