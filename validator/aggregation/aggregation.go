package aggregation

import (
	"github.com/pkg/errors"
	"github.com/securefed/go-coordinator/types"
	"sort"
)

// ErrShapeInvariantViolation means the global model would change shape. It is a
// protocol level bug and callers must stop instead of carrying on.
var ErrShapeInvariantViolation = errors.New("global state shape invariant violated")

// Aggregate computes the sample weighted mean of the accepted submissions. The
// returned state keeps prior's round number; advancing it is up to the caller.
func Aggregate(accepted []types.Submission, prior types.GlobalState) (types.GlobalState, error) {
	if len(accepted) == 0 {
		return prior, nil
	}

	ordered := make([]types.Submission, len(accepted))
	copy(ordered, accepted)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].NodeID < ordered[j].NodeID
	})

	var totalWeight float64
	for _, s := range ordered {
		if s.SampleCount == 0 {
			return types.GlobalState{}, errors.Errorf("submission from node %s has zero sample count", s.NodeID)
		}
		if !s.Parameters.SameShape(prior.Parameters) {
			return types.GlobalState{}, errors.Wrapf(ErrShapeInvariantViolation, "submission from node %s has shape %v, expected %v", s.NodeID, s.Parameters.Shape(), prior.Parameters.Shape())
		}
		totalWeight += float64(s.SampleCount)
	}

	// w*v/w is not always v in floating point
	if len(ordered) == 1 {
		return types.GlobalState{Round: prior.Round, Parameters: ordered[0].Parameters.Clone()}, nil
	}

	// normalised weights keep every partial sum a convex combination of finite values
	sums := types.ZerosLike(prior.Parameters)
	for _, s := range ordered {
		w := float64(s.SampleCount) / totalWeight
		for ti, t := range s.Parameters {
			acc := sums[ti].Values
			for vi, v := range t.Values {
				acc[vi] += w * v
			}
		}
	}

	next := types.GlobalState{Round: prior.Round, Parameters: sums}
	if err := CheckShape(prior, next); err != nil {
		return types.GlobalState{}, err
	}

	return next, nil
}

// CheckShape verifies that next has exactly the parameter layout of prior.
func CheckShape(prior, next types.GlobalState) error {
	if !next.Parameters.SameShape(prior.Parameters) {
		return errors.Wrapf(ErrShapeInvariantViolation, "shape %v changed to %v", prior.Parameters.Shape(), next.Parameters.Shape())
	}
	if err := next.Parameters.Validate(); err != nil {
		return errors.Wrap(ErrShapeInvariantViolation, err.Error())
	}

	return nil
}
