package metrics

import (
	"context"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/securefed/go-coordinator/types"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

func TestMetrics_PublishRoundResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	ctx := context.Background()

	require.NoError(t, m.PublishRoundResult(ctx, types.RoundResult{
		Round:              1,
		Status:             types.RoundCompleted,
		NewState:           types.GlobalState{Round: 1},
		AcceptedCount:      2,
		QuarantinedCount:   1,
		InvitedNodeIDs:     []string{"a", "b", "m", "s"},
		QuarantinedNodeIDs: []string{"m"},
		MissingNodeIDs:     []string{"s"},
		Duration:           time.Second,
		Evaluation: &types.EvaluationSummary{
			Loss:         0.25,
			ExampleCount: 120,
			Metrics:      map[string]float64{"accuracy": 0.8},
		},
	}))
	require.NoError(t, m.PublishRoundResult(ctx, types.RoundResult{
		Round:          2,
		Status:         types.RoundFailed,
		InvitedNodeIDs: []string{"a", "s"},
		MissingNodeIDs: []string{"s"},
	}))

	require.Equal(t, float64(1), testutil.ToFloat64(m.rounds.WithLabelValues("completed")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.rounds.WithLabelValues("failed")))
	require.Equal(t, float64(2), testutil.ToFloat64(m.submissions.WithLabelValues("Accepted")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.submissions.WithLabelValues("Quarantined")))
	require.Equal(t, float64(2), testutil.ToFloat64(m.missing))
	require.Equal(t, float64(1), testutil.ToFloat64(m.currentRound))
	require.Equal(t, float64(2), testutil.ToFloat64(m.invitedNodes))
	require.Equal(t, float64(1), testutil.ToFloat64(m.quarantinedByID.WithLabelValues("m")))
	require.Equal(t, 0.25, testutil.ToFloat64(m.evaluationLoss))
	require.Equal(t, 0.8, testutil.ToFloat64(m.evaluationMetrics.WithLabelValues("accuracy")))
	require.Equal(t, float64(120), testutil.ToFloat64(m.evaluatedExamples))

	families, err := reg.Gather()
	require.NoError(t, err)
	var observed uint64
	for _, f := range families {
		if f.GetName() == "securefed_coordinator_round_duration_seconds" {
			observed = f.GetMetric()[0].GetHistogram().GetSampleCount()
		}
	}
	require.Equal(t, uint64(2), observed)
}

func TestNew_SeparateRegistries(t *testing.T) {
	require.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
