package metrics

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics holds the collectors of one process. They live in a private
// registry because the tool exits after a single attempt and pushes instead
// of being scraped.
type Metrics struct {
	Registry *prometheus.Registry

	// AttemptsTotal counts finished attempts.
	// outcome: succeeded, rejected, timeout, failed
	AttemptsTotal *prometheus.CounterVec

	// ConfirmationPolls records how many reloads the confirmation loop needed.
	ConfirmationPolls prometheus.Histogram

	// AttemptDuration records the wall time of an attempt, from validation to its end.
	AttemptDuration *prometheus.HistogramVec
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		AttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cpeer_agent_upgrade_attempts_total",
				Help: "Total number of agent upgrade attempts by mode and outcome.",
			},
			[]string{"mode", "outcome"},
		),

		ConfirmationPolls: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cpeer_agent_upgrade_confirmation_polls",
				Help:    "Number of keep-alive polls until the agent reconnected or the budget ran out.",
				Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
			},
		),

		AttemptDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cpeer_agent_upgrade_duration_seconds",
				Help:    "Duration of agent upgrade attempts.",
				Buckets: prometheus.ExponentialBuckets(1, 2, 10),
			},
			[]string{"mode"},
		),
	}

	m.Registry.MustRegister(m.AttemptsTotal, m.ConfirmationPolls, m.AttemptDuration)
	return m
}

func (m *Metrics) ObserveAttempt(mode, outcome string, elapsed time.Duration) {
	m.AttemptsTotal.WithLabelValues(mode, outcome).Inc()
	m.AttemptDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
}

func (m *Metrics) ObservePolls(polls int) {
	m.ConfirmationPolls.Observe(float64(polls))
}

// Push sends every collector of the registry to a Pushgateway under job,
// grouped by agent.
func (m *Metrics) Push(ctx context.Context, gateway, job, agentID string) error {
	pusher := push.New(gateway, job).Gatherer(m.Registry)
	if agentID != "" {
		pusher = pusher.Grouping("agent", agentID)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return errors.Wrapf(err, "failed to push metrics to %s", gateway)
	}
	return nil
}
