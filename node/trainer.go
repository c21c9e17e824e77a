package node

import (
	"context"
	"github.com/pkg/errors"
	"github.com/securefed/go-coordinator/types"
)

// SyntheticTrainer stands in for a real model. Each local epoch moves every value a
// LearningRate fraction of the way toward Target, which plays the role of the node's
// private optimum.
type SyntheticTrainer struct {
	Target       types.Parameters
	LearningRate float64
	SampleCount  uint64
}

func (st *SyntheticTrainer) Fit(ctx context.Context, params types.Parameters, cfg types.FitConfig) (types.Parameters, uint64, error) {
	if !params.SameShape(st.Target) {
		return nil, 0, errors.New("target shape does not match global parameters")
	}

	epochs := cfg.LocalEpochs
	if epochs < 1 {
		epochs = 1
	}

	out := params.Clone()
	for e := 0; e < epochs; e++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		for i := range out {
			for j, v := range out[i].Values {
				out[i].Values[j] = v + st.LearningRate*(st.Target[i].Values[j]-v)
			}
		}
	}

	return out, st.SampleCount, nil
}

// Evaluate scores params by their mean squared distance to Target. Accuracy is
// 1/(1+loss), so it reaches 1 at the node's optimum.
func (st *SyntheticTrainer) Evaluate(ctx context.Context, params types.Parameters) (float64, uint64, map[string]float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, nil, err
	}

	loss, err := meanSquaredError(params, st.Target)
	if err != nil {
		return 0, 0, nil, err
	}

	return loss, st.SampleCount, map[string]float64{"accuracy": 1 / (1 + loss)}, nil
}

// FixedTrainer always returns the same parameters. Useful when the aggregate has to be
// known in advance.
type FixedTrainer struct {
	Parameters  types.Parameters
	SampleCount uint64
	Err         error
}

func (ft *FixedTrainer) Fit(ctx context.Context, _ types.Parameters, _ types.FitConfig) (types.Parameters, uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	if ft.Err != nil {
		return nil, 0, ft.Err
	}

	return ft.Parameters.Clone(), ft.SampleCount, nil
}

// Evaluate scores params against the fixed parameters, like SyntheticTrainer does
// against its target.
func (ft *FixedTrainer) Evaluate(ctx context.Context, params types.Parameters) (float64, uint64, map[string]float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, nil, err
	}
	if ft.Err != nil {
		return 0, 0, nil, ft.Err
	}

	loss, err := meanSquaredError(params, ft.Parameters)
	if err != nil {
		return 0, 0, nil, err
	}

	return loss, ft.SampleCount, map[string]float64{"accuracy": 1 / (1 + loss)}, nil
}

func meanSquaredError(params, target types.Parameters) (float64, error) {
	if !params.SameShape(target) {
		return 0, errors.New("target shape does not match evaluated parameters")
	}

	var sum float64
	var n int
	for i := range params {
		for j, v := range params[i].Values {
			d := v - target[i].Values[j]
			sum += d * d
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}

	return sum / float64(n), nil
}
