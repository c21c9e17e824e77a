package processor

import (
	"context"
	"github.com/pkg/errors"
	"github.com/securefed/go-coordinator/node"
	"github.com/securefed/go-coordinator/types"
	"github.com/securefed/go-coordinator/validator/aggregation"
	"golang.org/x/sync/errgroup"
	"slices"
	"sort"
)

// evaluate asks nodes to score the new global state and waits for all of them or the
// round timeout. Evaluation never fails a round: nodes that error, panic or time out
// are reported as missing, and nil is returned when no usable evaluation came back.
func (p *Processor) evaluate(ctx context.Context, state types.GlobalState, nodes []node.Node) *types.EvaluationSummary {
	if len(nodes) == 0 {
		return nil
	}

	evalCtx, cancel := context.WithTimeout(ctx, p.cfg.RoundTimeout)
	defer cancel()

	evaluations := make([]types.Evaluation, len(nodes))
	answered := make([]bool, len(nodes))
	var g errgroup.Group
	for i, n := range nodes {
		i, n := i, n
		g.Go(func() error {
			e, err := evaluateOne(evalCtx, n, state.Clone())
			if err != nil {
				p.logger.Warnw("node did not evaluate", "round", state.Round, "node", n.ID(), "error", err)
				return nil
			}
			e.NodeID = n.ID()
			evaluations[i] = e
			answered[i] = true
			return nil
		})
	}
	_ = g.Wait()

	received := make([]types.Evaluation, 0, len(nodes))
	var missing []string
	for i, n := range nodes {
		if answered[i] {
			received = append(received, evaluations[i])
		} else {
			missing = append(missing, n.ID())
		}
	}

	summary, ok := aggregation.AggregateEvaluations(received)
	if !ok {
		return nil
	}

	for _, e := range received {
		if !slices.Contains(summary.EvaluatedNodeIDs, e.NodeID) {
			missing = append(missing, e.NodeID)
		}
	}
	sort.Strings(missing)
	summary.MissingNodeIDs = missing
	if summary.MissingNodeIDs == nil {
		summary.MissingNodeIDs = []string{}
	}

	return &summary
}

func evaluateOne(ctx context.Context, n node.Node, state types.GlobalState) (e types.Evaluation, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("node panicked: %v", r)
		}
	}()

	e, err = n.Evaluate(ctx, state)
	if err != nil {
		return types.Evaluation{}, err
	}
	if ctx.Err() != nil {
		return types.Evaluation{}, ctx.Err()
	}

	return e, nil
}
