package change

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the saga's Prometheus collectors.
type Metrics struct {
	outcomes     *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	retries      *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "synapse_change_outcomes_total",
				Help: "Finished changes by outcome.",
			},
			[]string{"outcome"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "synapse_change_step_duration_seconds",
				Help:    "Duration of saga steps, retries included.",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"step"},
		),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "synapse_change_retries_total",
				Help: "Retried step attempts.",
			},
			[]string{"step"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.outcomes, m.stepDuration, m.retries)
	}
	return m
}

func (m *Metrics) outcome(o Outcome) {
	m.outcomes.WithLabelValues(string(o)).Inc()
}

func (m *Metrics) retry(step string) {
	m.retries.WithLabelValues(step).Inc()
}

func (m *Metrics) observe(step string, d time.Duration) {
	m.stepDuration.WithLabelValues(step).Observe(d.Seconds())
}
