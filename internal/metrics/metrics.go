// Package metrics holds the domain counters exported next to the fiber request metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the proposal service counters.
type Metrics struct {
	StatusTransitions    *prometheus.CounterVec
	NotificationFailures *prometheus.CounterVec
	ConsistencyIssues    *prometheus.CounterVec
	IdentityFallbacks    prometheus.Counter
}

// New builds the counters and registers them with reg when it is not nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		StatusTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "proposal",
			Name:      "status_transitions_total",
			Help:      "Committed proposal status transitions.",
		}, []string{"from", "to"}),
		NotificationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "proposal",
			Name:      "notification_failures_total",
			Help:      "Notifications that could not be created after a committed status transition.",
		}, []string{"type"}),
		ConsistencyIssues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "proposal",
			Name:      "consistency_issues_total",
			Help:      "Cross-store consistency issues reported by the debug view.",
		}, []string{"code"}),
		IdentityFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "proposal",
			Name:      "identity_placeholders_total",
			Help:      "Draft lookups that arrived with a non-canonical placeholder id.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.StatusTransitions, m.NotificationFailures, m.ConsistencyIssues, m.IdentityFallbacks)
	}
	return m
}

// Nop returns unregistered counters, for tests and tools.
func Nop() *Metrics {
	return New(nil)
}
