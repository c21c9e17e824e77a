package processor

import (
	"context"
	"github.com/pkg/errors"
	"github.com/securefed/go-coordinator/fingerprint"
	"github.com/securefed/go-coordinator/node"
	"github.com/securefed/go-coordinator/store"
	"github.com/securefed/go-coordinator/types"
	"github.com/securefed/go-coordinator/validator"
	"github.com/securefed/go-coordinator/validator/quarantine"
	"go.uber.org/zap"
	"math/rand"
	"slices"
	"sort"
	"time"
)

var (
	ErrQuorumNotReached    = errors.New("quorum not reached")
	ErrNotEnoughNodes      = errors.New("not enough registered nodes")
	ErrDuplicateNodeID     = errors.New("duplicate node id")
	ErrInvalidInitialState = errors.New("invalid initial global state")
)

func newQuorumNotReachedError(round uint64, submitted, required int) *QuorumNotReachedError {
	return &QuorumNotReachedError{Round: round, Submitted: submitted, Required: required}
}

type QuorumNotReachedError struct {
	Round     uint64
	Submitted int
	Required  int
}

func (e *QuorumNotReachedError) Error() string {
	return errors.Errorf("round %d: %d submissions received, %d required: %s", e.Round, e.Submitted, e.Required, ErrQuorumNotReached).Error()
}

func (e *QuorumNotReachedError) Is(target error) bool {
	return target == ErrQuorumNotReached
}

// StateStore keeps every global state and the outcome of every attempt.
type StateStore interface {
	GetLastGlobalState(ctx context.Context) (types.GlobalState, error)
	SetGlobalState(ctx context.Context, state types.GlobalState) error
	GetRoundResults(ctx context.Context, round uint64) ([]types.RoundResult, error)
}

type ResultPublisher interface {
	PublishRoundResult(ctx context.Context, result types.RoundResult) error
}

type Processor struct {
	cfg          Config
	nodes        []node.Node
	ps           StateStore
	val          *validator.Validator
	publishers   []ResultPublisher
	initialState types.GlobalState
	rng          *rand.Rand
	logger       *zap.SugaredLogger
	status       *StatusMutex
	now          func() time.Time
}

func NewProcessor(cfg Config, nodes []node.Node, ps StateStore, val *validator.Validator, initialState types.GlobalState, logger *zap.Logger, publishers ...ResultPublisher) (*Processor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "validating config")
	}
	if err := initialState.Parameters.Validate(); err != nil {
		return nil, errors.Wrap(ErrInvalidInitialState, err.Error())
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	registered := make([]node.Node, len(nodes))
	copy(registered, nodes)
	sort.Slice(registered, func(i, j int) bool {
		return registered[i].ID() < registered[j].ID()
	})
	for i := 1; i < len(registered); i++ {
		if registered[i].ID() == registered[i-1].ID() {
			return nil, errors.Wrapf(ErrDuplicateNodeID, "node %s", registered[i].ID())
		}
	}

	required := cfg.MinAvailableNodes
	if cfg.MinFitNodes > required {
		required = cfg.MinFitNodes
	}
	if len(registered) < required {
		return nil, errors.Wrapf(ErrNotEnoughNodes, "%d registered, %d required", len(registered), required)
	}

	p := Processor{
		cfg:          cfg,
		nodes:        registered,
		ps:           ps,
		val:          val,
		publishers:   publishers,
		initialState: initialState.Clone(),
		rng:          rand.New(rand.NewSource(cfg.Seed)),
		logger:       logger.Sugar().Named("processor"),
		status:       &StatusMutex{},
		now:          time.Now,
	}
	p.status.setRegisteredNodes(len(registered))

	return &p, nil
}

func (p *Processor) Status() Status {
	return p.status.Get()
}

// Start runs NumRounds attempts, one after the other. It returns nil when they are
// all done, the context error when cancelled, and a non recoverable error such as
// aggregation.ErrShapeInvariantViolation or exhausted retries otherwise.
func (p *Processor) Start(ctx context.Context) error {
	state, err := p.getLastGlobalState(ctx)
	if err != nil {
		return errors.Wrap(err, "getting last global state")
	}
	p.logger.Infow("starting", "round", state.Round, "nodes", len(p.nodes), "numRounds", p.cfg.NumRounds)

	consumed := 0
	retries := 0
	for consumed < p.cfg.NumRounds {
		round := state.Round + 1
		attempt, err := p.nextAttempt(ctx, round)
		if err != nil {
			return errors.Wrapf(err, "getting next attempt for round %d", round)
		}

		result, err := p.processRound(ctx, state, round, attempt)
		if err != nil {
			return errors.Wrapf(err, "processing round %d", round)
		}

		if result.Status == types.RoundCompleted {
			state = result.NewState
			consumed++
			retries = 0
			continue
		}

		switch p.cfg.FailedRoundPolicy {
		case PolicySkip:
			consumed++
		case PolicyRetry:
			retries++
			if retries > p.cfg.MaxRoundRetries {
				return errors.Wrapf(newQuorumNotReachedError(round, result.ReceivedCount, p.cfg.MinFitNodes), "giving up after %d retries", p.cfg.MaxRoundRetries)
			}
		}
	}

	p.status.setPhase(PhaseFinished)
	p.logger.Infow("finished", "round", state.Round)

	return nil
}

// processRound runs a single attempt and persists and publishes its result.
func (p *Processor) processRound(ctx context.Context, state types.GlobalState, round uint64, attempt int) (types.RoundResult, error) {
	startedAt := p.now().UTC()
	p.status.startAttempt(round, attempt)

	invited, uninvited := p.selectNodes()
	cfg := types.FitConfig{Round: round, LocalEpochs: p.cfg.LocalEpochs, BatchSize: p.cfg.BatchSize}
	p.logger.Infow("round announced", "round", round, "attempt", attempt, "invited", nodeIDs(invited))

	p.status.setPhase(PhaseCollecting)
	collected, err := p.collect(ctx, state, cfg, invited)
	if err != nil {
		return types.RoundResult{}, err
	}

	result := types.RoundResult{
		Round:            round,
		Attempt:          attempt,
		InvitedNodeIDs:   nodeIDs(invited),
		MissingNodeIDs:   collected.missing,
		UninvitedNodeIDs: uninvited,
		ReceivedCount:    len(collected.submissions),
		StartedAt:        startedAt,
	}

	if len(collected.submissions) < p.cfg.MinFitNodes {
		quorumErr := newQuorumNotReachedError(round, len(collected.submissions), p.cfg.MinFitNodes)
		p.logger.Warnw("round failed", "round", round, "attempt", attempt, "error", quorumErr)

		result.Status = types.RoundFailed
		result.NewState = state
		result.ExcludedNodeIDs = result.InvitedNodeIDs
		result.FailureReason = quorumErr.Error()
		result.Duration = p.now().Sub(startedAt)
		p.status.failed(result.Duration)

		return result, p.publish(ctx, result)
	}

	p.status.setPhase(PhaseFiltering)
	validated, err := p.val.ValidateRound(ctx, round, state, collected.submissions)
	if err != nil {
		return types.RoundResult{}, errors.Wrap(err, "validating round")
	}

	p.status.setPhase(PhaseAggregating)
	err = p.ps.SetGlobalState(ctx, validated.NewState)
	if err != nil {
		return types.RoundResult{}, errors.Wrap(err, "storing global state")
	}

	result.Status = types.RoundCompleted
	result.NewState = validated.NewState
	result.StateFingerprint = validated.StateFingerprint
	result.AuditDigest = validated.AuditDigest
	result.AcceptedCount = validated.AcceptedCount
	result.QuarantinedCount = validated.QuarantinedCount
	result.QuarantinedNodeIDs = quarantine.QuarantinedNodes(validated.Records)
	result.ExcludedNodeIDs = excludedNodes(result.QuarantinedNodeIDs, result.MissingNodeIDs)

	if p.cfg.Evaluate {
		p.status.setPhase(PhaseEvaluating)
		result.Evaluation = p.evaluate(ctx, validated.NewState, submitters(invited, collected.submissions))
		if result.Evaluation != nil {
			p.logger.Infow("round evaluated", "round", round, "loss", result.Evaluation.Loss, "metrics", result.Evaluation.Metrics)
		}
	}

	result.Duration = p.now().Sub(startedAt)
	p.status.completed(round, result.StateFingerprint, result.AuditDigest, result.Duration)

	p.logger.Infow("round completed", "round", round, "attempt", attempt, "accepted", result.AcceptedCount,
		"quarantined", result.QuarantinedCount, "missing", len(result.MissingNodeIDs), "took", result.Duration)

	return result, p.publish(ctx, result)
}

func (p *Processor) publish(ctx context.Context, result types.RoundResult) error {
	for _, pub := range p.publishers {
		if err := pub.PublishRoundResult(ctx, result); err != nil {
			return errors.Wrapf(err, "publishing result of round %d", result.Round)
		}
	}

	return nil
}

// selectNodes samples the invited nodes for an attempt. The rng is seeded so a run
// can be replayed.
func (p *Processor) selectNodes() (invited []node.Node, uninvited []string) {
	size := p.cfg.sampleSize(len(p.nodes))
	perm := p.rng.Perm(len(p.nodes))

	chosen := make(map[int]bool, size)
	for _, i := range perm[:size] {
		chosen[i] = true
	}

	uninvited = make([]string, 0, len(p.nodes)-size)
	for i, n := range p.nodes {
		if chosen[i] {
			invited = append(invited, n)
		} else {
			uninvited = append(uninvited, n.ID())
		}
	}

	return invited, uninvited
}

func (p *Processor) getLastGlobalState(ctx context.Context) (types.GlobalState, error) {
	state, err := p.ps.GetLastGlobalState(ctx)
	if err == nil {
		p.status.setLastCompleted(state.Round, fingerprint.Compute(state.Parameters), "")
		return state, nil
	}

	if errors.Cause(err) != store.ErrNotFound {
		return types.GlobalState{}, err
	}

	err = p.ps.SetGlobalState(ctx, p.initialState)
	if err != nil {
		return types.GlobalState{}, errors.Wrap(err, "storing initial global state")
	}
	err = p.val.InitChain(ctx, p.initialState.Round)
	if err != nil {
		return types.GlobalState{}, errors.Wrap(err, "anchoring audit chain")
	}

	return p.initialState.Clone(), nil
}

// nextAttempt numbers attempts per round so results of earlier runs are not overwritten.
func (p *Processor) nextAttempt(ctx context.Context, round uint64) (int, error) {
	results, err := p.ps.GetRoundResults(ctx, round)
	if err != nil {
		if errors.Cause(err) == store.ErrNotFound {
			return 1, nil
		}
		return 0, err
	}

	return len(results) + 1, nil
}

func nodeIDs(nodes []node.Node) []string {
	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID())
	}

	return ids
}

// excludedNodes is the sorted union of quarantined and missing nodes.
func excludedNodes(quarantined, missing []string) []string {
	excluded := make([]string, 0, len(quarantined)+len(missing))
	excluded = append(excluded, quarantined...)
	excluded = append(excluded, missing...)
	sort.Strings(excluded)

	return slices.Compact(excluded)
}

// submitters returns the invited nodes that delivered one of submissions.
func submitters(invited []node.Node, submissions []types.Submission) []node.Node {
	delivered := make(map[string]bool, len(submissions))
	for _, s := range submissions {
		delivered[s.NodeID] = true
	}

	nodes := make([]node.Node, 0, len(submissions))
	for _, n := range invited {
		if delivered[n.ID()] {
			nodes = append(nodes, n)
		}
	}

	return nodes
}
