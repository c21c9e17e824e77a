package factory

import (
	"context"
	"github.com/securefed/go-coordinator/node"
	"github.com/securefed/go-coordinator/types"
	"github.com/stretchr/testify/require"
	"testing"
)

func fleetConfig() FleetConfig {
	return FleetConfig{
		HonestNodes:      3,
		AdversarialNodes: 1,
		AdversarialMode:  node.ModeTamper,
		MinSamples:       10,
		MaxSamples:       100,
		LearningRate:     0.5,
		TargetSpread:     0.1,
		Seed:             7,
	}
}

func TestNewFleet(t *testing.T) {
	optimum := types.Parameters{types.Zeros(3)}

	nodes, err := NewFleet(fleetConfig(), optimum)
	require.NoError(t, err)
	require.Len(t, nodes, 4)

	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID())
	}
	require.Equal(t, []string{"node-01", "node-02", "node-03", "adversary-01"}, ids)

	adv, ok := nodes[3].(*node.Adversarial)
	require.True(t, ok)
	require.Equal(t, node.ModeTamper, adv.Mode())

	sub, err := nodes[0].ProduceUpdate(context.Background(), types.GlobalState{Parameters: optimum}, types.FitConfig{LocalEpochs: 1})
	require.NoError(t, err)
	require.GreaterOrEqual(t, sub.SampleCount, uint64(10))
	require.LessOrEqual(t, sub.SampleCount, uint64(100))
}

func TestNewFleet_Deterministic(t *testing.T) {
	optimum := types.Parameters{types.Zeros(3)}
	state := types.GlobalState{Parameters: optimum}

	first, err := NewFleet(fleetConfig(), optimum)
	require.NoError(t, err)
	second, err := NewFleet(fleetConfig(), optimum)
	require.NoError(t, err)

	for i := range first {
		a, err := first[i].ProduceUpdate(context.Background(), state, types.FitConfig{LocalEpochs: 1})
		require.NoError(t, err)
		b, err := second[i].ProduceUpdate(context.Background(), state, types.FitConfig{LocalEpochs: 1})
		require.NoError(t, err)
		require.Equal(t, a, b)
	}
}

func TestNewFleet_ModeIsNormalised(t *testing.T) {
	optimum := types.Parameters{types.Zeros(3)}

	cfg := fleetConfig()
	cfg.AdversarialMode = "Tamper"
	nodes, err := NewFleet(cfg, optimum)
	require.NoError(t, err)

	adv, ok := nodes[3].(*node.Adversarial)
	require.True(t, ok)
	require.Equal(t, node.ModeTamper, adv.Mode())

	sub, err := adv.ProduceUpdate(context.Background(), types.GlobalState{Parameters: optimum}, types.FitConfig{LocalEpochs: 1})
	require.NoError(t, err)
	require.NotEmpty(t, sub.Fingerprint)
}

func TestNewFleet_Errors(t *testing.T) {
	optimum := types.Parameters{types.Zeros(3)}

	cfg := fleetConfig()
	cfg.AdversarialMode = "friendly"
	_, err := NewFleet(cfg, optimum)
	require.Error(t, err)

	cfg = fleetConfig()
	cfg.HonestNodes, cfg.AdversarialNodes = 0, 0
	_, err = NewFleet(cfg, optimum)
	require.Error(t, err)

	cfg = fleetConfig()
	cfg.MaxSamples = 1
	_, err = NewFleet(cfg, optimum)
	require.Error(t, err)

	_, err = NewFleet(fleetConfig(), nil)
	require.Error(t, err)
}
