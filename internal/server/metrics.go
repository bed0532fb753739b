package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the socket layer.
type Metrics struct {
	sessionsActive   prometheus.Gauge
	messagesRelayed  prometheus.Counter
	relayFailures    prometheus.Counter
	pushes           *prometheus.CounterVec
	notifications    *prometheus.CounterVec
	upgradesRejected *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "jobchat_sessions_active",
			Help: "Number of authenticated sockets currently registered.",
		}),
		messagesRelayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "jobchat_messages_relayed_total",
			Help: "Chat messages persisted and relayed.",
		}),
		relayFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "jobchat_relay_failures_total",
			Help: "Chat messages that could not be persisted.",
		}),
		pushes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "jobchat_pushes_total",
			Help: "Events pushed to individual sockets.",
		}, []string{"event", "outcome"}),
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "jobchat_notifications_total",
			Help: "Invitation notifications by outcome.",
		}, []string{"outcome"}),
		upgradesRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "jobchat_upgrades_rejected_total",
			Help: "Socket upgrades closed before registration.",
		}, []string{"reason"}),
	}
}
