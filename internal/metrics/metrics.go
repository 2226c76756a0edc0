// Package metrics counts reminder engine outcomes with Prometheus collectors.
// paytrack is not a server, so instead of an HTTP endpoint the registry is
// written to a node_exporter textfile when configured.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	// ScheduleAttempts tracks schedule attempts by outcome
	ScheduleAttempts *prometheus.CounterVec

	// Cancels tracks trigger cancellations by result
	Cancels *prometheus.CounterVec

	// Negotiations tracks permission negotiations by result
	Negotiations *prometheus.CounterVec

	// TriggersFired tracks triggers delivered by the runner
	TriggersFired prometheus.Counter
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ScheduleAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paytrack_reminder_schedule_total",
				Help: "Total number of reminder schedule attempts",
			},
			[]string{"outcome"},
		),
		Cancels: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paytrack_reminder_cancel_total",
				Help: "Total number of trigger cancellations",
			},
			[]string{"result"},
		),
		Negotiations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paytrack_permission_negotiations_total",
				Help: "Total number of permission negotiations",
			},
			[]string{"result"},
		),
		TriggersFired: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "paytrack_triggers_fired_total",
				Help: "Total number of triggers delivered by the runner",
			},
		),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveSchedule counts one schedule attempt.
func (m *Metrics) ObserveSchedule(outcome string) {
	if m == nil {
		return
	}
	m.ScheduleAttempts.WithLabelValues(outcome).Inc()
}

// ObserveCancel counts one cancellation; ok is false when the backend
// reported a failure that was swallowed.
func (m *Metrics) ObserveCancel(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.Cancels.WithLabelValues(result).Inc()
}

// ObserveNegotiation counts one permission negotiation.
func (m *Metrics) ObserveNegotiation(granted bool) {
	if m == nil {
		return
	}
	result := "granted"
	if !granted {
		result = "declined"
	}
	m.Negotiations.WithLabelValues(result).Inc()
}

// ObserveFired counts one delivered trigger.
func (m *Metrics) ObserveFired() {
	if m == nil {
		return
	}
	m.TriggersFired.Inc()
}

// WriteTextfile writes the registry in the text exposition format to path.
// An empty path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
