package metrics

import (
	"context"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/securefed/go-coordinator/types"
)

const namespace = "securefed"

// Metrics turns round results into prometheus series.
type Metrics struct {
	rounds          *prometheus.CounterVec
	submissions     *prometheus.CounterVec
	missing         prometheus.Counter
	currentRound    prometheus.Gauge
	invitedNodes    prometheus.Gauge
	roundDuration   prometheus.Histogram
	quarantinedByID *prometheus.CounterVec

	evaluationLoss    prometheus.Gauge
	evaluationMetrics *prometheus.GaugeVec
	evaluatedExamples prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		rounds: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "rounds_total",
			Help:      "Number of round attempts by final status",
		}, []string{"status"}),
		submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "submissions_total",
			Help:      "Number of classified submissions by verdict",
		}, []string{"verdict"}),
		missing: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "missing_submissions_total",
			Help:      "Number of invited nodes that did not submit",
		}),
		currentRound: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "global_state_round",
			Help:      "Round number of the latest global state",
		}),
		invitedNodes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "invited_nodes",
			Help:      "Number of nodes invited to the latest round attempt",
		}),
		roundDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "round_duration_seconds",
			Help:      "Duration of round attempts",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		quarantinedByID: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "quarantined_by_node_total",
			Help:      "Number of quarantined submissions per node",
		}, []string{"node"}),
		evaluationLoss: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "loss",
			Help:      "Example weighted loss of the latest evaluated global state",
		}),
		evaluationMetrics: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "metric",
			Help:      "Example weighted evaluation metrics of the latest evaluated global state",
		}, []string{"metric"}),
		evaluatedExamples: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "examples_total",
			Help:      "Number of examples global states were evaluated on",
		}),
	}
}

func (m *Metrics) PublishRoundResult(_ context.Context, result types.RoundResult) error {
	m.rounds.WithLabelValues(string(result.Status)).Inc()
	m.invitedNodes.Set(float64(len(result.InvitedNodeIDs)))
	m.missing.Add(float64(len(result.MissingNodeIDs)))
	m.roundDuration.Observe(result.Duration.Seconds())

	if result.Status != types.RoundCompleted {
		return nil
	}

	m.currentRound.Set(float64(result.NewState.Round))
	m.submissions.WithLabelValues(types.Accepted.String()).Add(float64(result.AcceptedCount))
	m.submissions.WithLabelValues(types.Quarantined.String()).Add(float64(result.QuarantinedCount))
	for _, id := range result.QuarantinedNodeIDs {
		m.quarantinedByID.WithLabelValues(id).Inc()
	}

	if e := result.Evaluation; e != nil {
		m.evaluationLoss.Set(e.Loss)
		m.evaluatedExamples.Add(float64(e.ExampleCount))
		for name, v := range e.Metrics {
			m.evaluationMetrics.WithLabelValues(name).Set(v)
		}
	}

	return nil
}
