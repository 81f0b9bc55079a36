// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmpaAI Contributors

package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the service counters. It satisfies auth.Metrics and
// api.RequestRecorder.
type Metrics struct {
	Operations    *prometheus.CounterVec
	Notifications *prometheus.CounterVec
	HTTPRequests  *prometheus.CounterVec
	SessionsSwept prometheus.Counter
}

// NewMetrics creates the counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "empaai_auth_operations_total",
			Help: "Auth operations by operation and outcome",
		}, []string{"operation", "outcome"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "empaai_notifications_total",
			Help: "Notification deliveries by kind and status",
		}, []string{"kind", "status"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "empaai_http_requests_total",
			Help: "HTTP requests by route pattern and status code",
		}, []string{"route", "status"}),
		SessionsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "empaai_sessions_swept_total",
			Help: "Expired sessions removed by the sweeper",
		}),
	}
	reg.MustRegister(m.Operations, m.Notifications, m.HTTPRequests, m.SessionsSwept)
	return m
}

// RecordOperation counts one auth operation.
func (m *Metrics) RecordOperation(operation, outcome string) {
	m.Operations.WithLabelValues(operation, outcome).Inc()
}

// RecordNotification counts one notification attempt.
func (m *Metrics) RecordNotification(kind, status string) {
	m.Notifications.WithLabelValues(kind, status).Inc()
}

// RecordSessionsSwept adds n swept sessions.
func (m *Metrics) RecordSessionsSwept(n int64) {
	if n > 0 {
		m.SessionsSwept.Add(float64(n))
	}
}

// RecordHTTPRequest counts one finished HTTP request.
func (m *Metrics) RecordHTTPRequest(route string, status int) {
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}
