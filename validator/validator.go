package validator

import (
	"context"
	"encoding/hex"
	"github.com/pkg/errors"
	"github.com/securefed/go-coordinator/audit"
	"github.com/securefed/go-coordinator/fingerprint"
	"github.com/securefed/go-coordinator/types"
	"github.com/securefed/go-coordinator/validator/aggregation"
	"github.com/securefed/go-coordinator/validator/chain"
	"github.com/securefed/go-coordinator/validator/quarantine"
	"go.uber.org/zap"
	"sort"
)

// ValidatedRound is what a round leaves behind once its submissions were filtered,
// audited and aggregated.
type ValidatedRound struct {
	NewState         types.GlobalState
	Records          []types.AuditRecord
	AcceptedCount    int
	QuarantinedCount int
	StateFingerprint string
	AuditDigest      string
}

type Validator struct {
	sink       audit.Sink
	digests    chain.DigestStore
	classifier *quarantine.Classifier
	logger     *zap.SugaredLogger
}

func New(sink audit.Sink, digests chain.DigestStore, classifier *quarantine.Classifier, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Validator{sink: sink, digests: digests, classifier: classifier, logger: logger.Sugar()}
}

// InitChain anchors the audit chain at the round of the initial global state.
func (v *Validator) InitChain(ctx context.Context, baseRound uint64) error {
	return chain.SaveBase(ctx, v.digests, baseRound)
}

// ValidateRound filters the collected submissions against prior, appends one audit
// record per submission and aggregates the accepted ones into the state of round.
// Audit records that were written stay written even if a later step fails.
func (v *Validator) ValidateRound(ctx context.Context, round uint64, prior types.GlobalState, submissions []types.Submission) (ValidatedRound, error) {
	ordered := make([]types.Submission, len(submissions))
	copy(ordered, submissions)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].NodeID < ordered[j].NodeID
	})

	accepted, records := v.classifier.Filter(round, ordered, prior.Parameters)
	for _, r := range records {
		if r.Verdict == types.Quarantined {
			v.logger.Warnw("submission quarantined", "round", round, "node", r.NodeID, "reason", r.Reason)
		}
	}

	stored, err := quarantine.Store(ctx, v.sink, records)
	if err != nil {
		return ValidatedRound{}, errors.Wrap(err, "storing audit records")
	}

	acceptedCount, quarantinedCount := quarantine.Count(stored)
	v.logger.Infow("round filtered", "round", round, "accepted", acceptedCount, "quarantined", quarantinedCount)

	aggregated, err := aggregation.Aggregate(accepted, prior)
	if err != nil {
		return ValidatedRound{}, errors.Wrap(err, "aggregating accepted submissions")
	}
	next := types.GlobalState{Round: round, Parameters: aggregated.Parameters}
	if len(accepted) == 0 {
		next.Parameters = prior.Parameters.Clone()
	}

	err = aggregation.CheckShape(prior, next)
	if err != nil {
		return ValidatedRound{}, errors.Wrap(err, "checking aggregated shape")
	}

	stateFingerprint := fingerprint.Compute(next.Parameters)
	digest, err := chain.ComputeAndSave(ctx, v.digests, round, stored, stateFingerprint)
	if err != nil {
		return ValidatedRound{}, errors.Wrap(err, "computing and storing audit chain")
	}

	return ValidatedRound{
		NewState:         next,
		Records:          stored,
		AcceptedCount:    acceptedCount,
		QuarantinedCount: quarantinedCount,
		StateFingerprint: stateFingerprint,
		AuditDigest:      hex.EncodeToString(digest[:]),
	}, nil
}
