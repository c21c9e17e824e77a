package chain

import (
	"context"
	"github.com/pkg/errors"
	"github.com/securefed/go-coordinator/types"
)

type DigestStore interface {
	GetAuditDigest(ctx context.Context, round uint64) ([]byte, error)
	PutAuditDigest(ctx context.Context, round uint64, digest []byte) error
}

func ComputeAndSave(ctx context.Context, store DigestStore, round uint64, records []types.AuditRecord, stateFingerprint string) ([32]byte, error) {
	prevDigest, err := getPrevAuditDigest(ctx, store, round)
	if err != nil {
		return [32]byte{}, errors.Wrap(err, "getting prev audit digest")
	}

	c := Chain{
		Round:                    round,
		Records:                  records,
		StateFingerprint:         stateFingerprint,
		PreviousRoundAuditDigest: prevDigest,
	}
	currentDigest, err := c.Digest()
	if err != nil {
		return [32]byte{}, errors.Wrap(err, "computing current round digest")
	}

	err = store.PutAuditDigest(ctx, round, currentDigest[:])
	if err != nil {
		return [32]byte{}, errors.Wrapf(err, "storing audit digest for round: %d", round)
	}

	return currentDigest, nil
}

// SaveBase anchors the chain at round, the round of the state a coordinator starts
// from without any history. The first round after it links to the zero digest.
func SaveBase(ctx context.Context, store DigestStore, round uint64) error {
	if round == 0 {
		return nil
	}

	var zero [32]byte
	err := store.PutAuditDigest(ctx, round, zero[:])
	if err != nil {
		return errors.Wrapf(err, "storing base audit digest for round: %d", round)
	}

	return nil
}

func getPrevAuditDigest(ctx context.Context, store DigestStore, round uint64) ([32]byte, error) {
	// the first round has nothing to link to
	if round <= 1 {
		return [32]byte{}, nil
	}

	stored, err := store.GetAuditDigest(ctx, round-1)
	if err != nil {
		return [32]byte{}, errors.Wrapf(err, "getting audit digest for last round: %d", round-1)
	}

	var prev [32]byte
	copy(prev[:], stored)

	return prev, nil
}

// Verify recomputes the digest of a round from its records and compares it with the stored one.
func Verify(ctx context.Context, store DigestStore, round uint64, records []types.AuditRecord, stateFingerprint string) error {
	prevDigest, err := getPrevAuditDigest(ctx, store, round)
	if err != nil {
		return errors.Wrap(err, "getting prev audit digest")
	}

	c := Chain{Round: round, Records: records, StateFingerprint: stateFingerprint, PreviousRoundAuditDigest: prevDigest}
	digest, err := c.Digest()
	if err != nil {
		return errors.Wrap(err, "computing digest")
	}

	stored, err := store.GetAuditDigest(ctx, round)
	if err != nil {
		return errors.Wrapf(err, "getting audit digest for round %d", round)
	}

	if string(stored) != string(digest[:]) {
		return errors.Errorf("audit digest mismatch for round %d", round)
	}

	return nil
}
