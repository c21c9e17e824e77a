package factory

import (
	"fmt"
	"github.com/pkg/errors"
	"github.com/securefed/go-coordinator/node"
	"github.com/securefed/go-coordinator/types"
	"math/rand"
)

// FleetConfig describes a simulated set of nodes.
type FleetConfig struct {
	HonestNodes      int
	AdversarialNodes int
	AdversarialMode  node.Mode
	MinSamples       uint64
	MaxSamples       uint64
	LearningRate     float64
	TargetSpread     float64
	Seed             int64
}

// NewFleet builds honest and adversarial nodes around a shared optimum. Every honest
// node gets its own target, a perturbation of optimum, and its own sample count, so
// the aggregate depends on the weighting.
func NewFleet(cfg FleetConfig, optimum types.Parameters) ([]node.Node, error) {
	if cfg.HonestNodes < 0 || cfg.AdversarialNodes < 0 {
		return nil, errors.New("node counts must not be negative")
	}
	if cfg.HonestNodes+cfg.AdversarialNodes == 0 {
		return nil, errors.New("fleet must contain at least one node")
	}
	if cfg.MinSamples == 0 || cfg.MaxSamples < cfg.MinSamples {
		return nil, errors.Errorf("invalid sample range [%d, %d]", cfg.MinSamples, cfg.MaxSamples)
	}
	if err := optimum.Validate(); err != nil {
		return nil, errors.Wrap(err, "validating optimum")
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	nodes := make([]node.Node, 0, cfg.HonestNodes+cfg.AdversarialNodes)

	for i := 0; i < cfg.HonestNodes; i++ {
		nodes = append(nodes, node.NewHonest(fmt.Sprintf("node-%02d", i+1), newTrainer(cfg, optimum, rng)))
	}

	var mode node.Mode
	if cfg.AdversarialNodes > 0 {
		parsed, err := node.ParseMode(string(cfg.AdversarialMode))
		if err != nil {
			return nil, err
		}
		mode = parsed
	}
	for i := 0; i < cfg.AdversarialNodes; i++ {
		id := fmt.Sprintf("adversary-%02d", i+1)
		nodes = append(nodes, node.NewAdversarial(id, mode, newTrainer(cfg, optimum, rng)))
	}

	return nodes, nil
}

func newTrainer(cfg FleetConfig, optimum types.Parameters, rng *rand.Rand) *node.SyntheticTrainer {
	target := optimum.Clone()
	for i := range target {
		for j := range target[i].Values {
			target[i].Values[j] += (rng.Float64()*2 - 1) * cfg.TargetSpread
		}
	}

	samples := cfg.MinSamples
	if span := cfg.MaxSamples - cfg.MinSamples; span > 0 {
		samples += uint64(rng.Int63n(int64(span) + 1))
	}

	return &node.SyntheticTrainer{Target: target, LearningRate: cfg.LearningRate, SampleCount: samples}
}
