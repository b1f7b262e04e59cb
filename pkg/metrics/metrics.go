package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all application metrics
type Metrics struct {
	// Upstream clinic API
	UpstreamRequests *prometheus.CounterVec
	UpstreamLatency  *prometheus.HistogramVec
	Unauthorized     prometheus.Counter

	// Workflows
	WizardTransitions  *prometheus.CounterVec
	AppointmentsBooked prometheus.Counter
	PendingCompletions prometheus.Gauge

	// Portal HTTP surface
	HTTPRequests *prometheus.CounterVec
	HTTPLatency  *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates all portal metrics and registers them on a private registry,
// so several instances can coexist in tests.
func New(namespace string) *Metrics {
	m := &Metrics{
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "requests_total",
			Help:      "Total number of requests sent to the clinic API",
		}, []string{"resource", "method", "status"}),
		UpstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "request_duration_seconds",
			Help:      "Duration of clinic API requests",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"resource"}),
		Unauthorized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "forced_logouts_total",
			Help:      "Sessions cleared because the clinic API answered 401",
		}),
		WizardTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wizard",
			Name:      "transitions_total",
			Help:      "Wizard step transitions by outcome",
		}, []string{"wizard", "step", "outcome"}),
		AppointmentsBooked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "appointments_booked_total",
			Help:      "Appointments created through the booking wizard",
		}),
		PendingCompletions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "consultation",
			Name:      "pending_completions",
			Help:      "Consultations whose appointment is not yet marked completed",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of portal HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of portal HTTP requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.UpstreamRequests,
		m.UpstreamLatency,
		m.Unauthorized,
		m.WizardTransitions,
		m.AppointmentsBooked,
		m.PendingCompletions,
		m.HTTPRequests,
		m.HTTPLatency,
	)

	return m
}

// Registry exposes the registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Transition records one wizard step outcome. Safe on a nil receiver.
func (m *Metrics) Transition(wizard, step, outcome string) {
	if m == nil {
		return
	}
	m.WizardTransitions.WithLabelValues(wizard, step, outcome).Inc()
}
