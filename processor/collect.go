package processor

import (
	"context"
	"github.com/pkg/errors"
	"github.com/securefed/go-coordinator/node"
	"github.com/securefed/go-coordinator/types"
	"github.com/securefed/go-coordinator/utils"
	"golang.org/x/sync/errgroup"
	"sort"
)

var (
	ErrNodeTimeout = errors.New("node did not answer before the round deadline")
	errNilUpdate   = errors.New("node returned an empty update")
)

type response struct {
	nodeID     string
	submission types.Submission
	err        error
}

type collection struct {
	submissions []types.Submission
	missing     []string
}

// collect runs one session per invited node and gathers their submissions. Sessions
// still running when collection closes are cancelled and waited for, so no node
// outlives its round. Node failures only ever mark the node as missing.
func (p *Processor) collect(ctx context.Context, state types.GlobalState, cfg types.FitConfig, invited []node.Node) (collection, error) {
	roundCtx, cancel := context.WithTimeout(ctx, p.cfg.RoundTimeout)
	defer cancel()

	responses := make(chan response, len(invited))
	var g errgroup.Group
	for _, n := range invited {
		n := n
		g.Go(func() error {
			sub, err := produce(roundCtx, n, state.Clone(), cfg)
			responses <- response{nodeID: n.ID(), submission: sub, err: err}
			return nil
		})
	}

	received := make(map[string]types.Submission)
	responded := 0

	closed := false
	for !closed && responded < len(invited) {
		select {
		case r := <-responses:
			responded++
			if r.err != nil {
				if errors.Is(r.err, context.DeadlineExceeded) {
					r.err = ErrNodeTimeout
				}
				p.logger.Warnw("node did not submit", "round", cfg.Round, "node", r.nodeID, "error", r.err)
				continue
			}

			// a submission belongs to the session that delivered it, whatever it claims
			sub := r.submission
			sub.ClaimedNodeID = ""
			if sub.NodeID != "" && sub.NodeID != r.nodeID {
				p.logger.Warnw("submission claims another identity", "round", cfg.Round, "node", r.nodeID, "claimed", sub.NodeID)
				sub.ClaimedNodeID = sub.NodeID
			}
			sub.NodeID = r.nodeID
			received[r.nodeID] = sub

			if !p.cfg.CollectAllInvited && len(received) >= p.cfg.MinFitNodes {
				closed = true
			}
		case <-roundCtx.Done():
			closed = true
		}
	}

	cancel()
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return collection{}, errors.Wrap(err, "collecting submissions")
	}

	c := collection{submissions: make([]types.Submission, 0, len(received))}
	for _, id := range utils.SortedKeys(received) {
		c.submissions = append(c.submissions, received[id])
	}
	for _, n := range invited {
		if _, ok := received[n.ID()]; !ok {
			c.missing = append(c.missing, n.ID())
		}
	}
	sort.Strings(c.missing)

	return c, nil
}

// produce calls the node and converts panics and empty updates into errors.
func produce(ctx context.Context, n node.Node, state types.GlobalState, cfg types.FitConfig) (sub types.Submission, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("node panicked: %v", r)
		}
	}()

	sub, err = n.ProduceUpdate(ctx, state, cfg)
	if err != nil {
		return types.Submission{}, err
	}
	if sub.Parameters == nil {
		return types.Submission{}, errNilUpdate
	}

	// a late answer after the deadline does not count
	if ctx.Err() != nil {
		return types.Submission{}, ctx.Err()
	}

	sub.Parameters = sub.Parameters.Clone()

	return sub, nil
}
