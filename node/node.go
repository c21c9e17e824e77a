// Package node contains the participants the coordinator talks to. Every node runs
// the same protocol; adversarial ones deviate from it in well defined ways.
package node

import (
	"context"
	"github.com/pkg/errors"
	"github.com/securefed/go-coordinator/fingerprint"
	"github.com/securefed/go-coordinator/types"
)

type Node interface {
	ID() string
	// ProduceUpdate trains on the node's private data starting from state and returns
	// the resulting submission. It must honour ctx cancellation.
	ProduceUpdate(ctx context.Context, state types.GlobalState, cfg types.FitConfig) (types.Submission, error)
	// Evaluate scores state on the node's local test data.
	Evaluate(ctx context.Context, state types.GlobalState) (types.Evaluation, error)
}

// Trainer is the local model. Fit returns the trained parameters and the number of
// samples they were trained on, Evaluate the loss of params, the number of test
// examples and further named metrics such as accuracy.
type Trainer interface {
	Fit(ctx context.Context, params types.Parameters, cfg types.FitConfig) (types.Parameters, uint64, error)
	Evaluate(ctx context.Context, params types.Parameters) (float64, uint64, map[string]float64, error)
}

type Honest struct {
	id      string
	trainer Trainer
}

func NewHonest(id string, trainer Trainer) *Honest {
	return &Honest{id: id, trainer: trainer}
}

func (h *Honest) ID() string { return h.id }

func (h *Honest) ProduceUpdate(ctx context.Context, state types.GlobalState, cfg types.FitConfig) (types.Submission, error) {
	params, samples, err := h.trainer.Fit(ctx, state.Parameters.Clone(), cfg)
	if err != nil {
		return types.Submission{}, errors.Wrapf(err, "fitting node %s", h.id)
	}

	return types.Submission{
		NodeID:      h.id,
		Parameters:  params,
		SampleCount: samples,
		Fingerprint: fingerprint.Compute(params),
	}, nil
}

func (h *Honest) Evaluate(ctx context.Context, state types.GlobalState) (types.Evaluation, error) {
	return evaluate(ctx, h.id, h.trainer, state)
}

func evaluate(ctx context.Context, id string, trainer Trainer, state types.GlobalState) (types.Evaluation, error) {
	loss, examples, metrics, err := trainer.Evaluate(ctx, state.Parameters.Clone())
	if err != nil {
		return types.Evaluation{}, errors.Wrapf(err, "evaluating on node %s", id)
	}

	return types.Evaluation{NodeID: id, Loss: loss, ExampleCount: examples, Metrics: metrics}, nil
}
