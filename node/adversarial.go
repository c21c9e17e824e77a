package node

import (
	"context"
	"github.com/pkg/errors"
	"github.com/securefed/go-coordinator/fingerprint"
	"github.com/securefed/go-coordinator/types"
	"github.com/securefed/go-coordinator/validator/quarantine"
	"strings"
)

type Mode string

const (
	// ModePoisonSentinel zeroes the update and declares the sentinel fingerprint.
	ModePoisonSentinel Mode = "poison-sentinel"
	// ModeTamper poisons the update after fingerprinting the honest one.
	ModeTamper Mode = "tamper"
	// ModeForge poisons the update and fingerprints the poisoned content. The
	// coordinator cannot tell this apart from an honest submission.
	ModeForge Mode = "forge"
	// ModeSilent never answers.
	ModeSilent Mode = "silent"
)

var modes = []Mode{ModePoisonSentinel, ModeTamper, ModeForge, ModeSilent}

func ParseMode(s string) (Mode, error) {
	for _, m := range modes {
		if strings.EqualFold(s, string(m)) {
			return m, nil
		}
	}

	return "", errors.Errorf("unknown adversarial mode %q", s)
}

type Adversarial struct {
	id      string
	mode    Mode
	trainer Trainer
}

func NewAdversarial(id string, mode Mode, trainer Trainer) *Adversarial {
	return &Adversarial{id: id, mode: mode, trainer: trainer}
}

func (a *Adversarial) ID() string { return a.id }

func (a *Adversarial) Mode() Mode { return a.mode }

func (a *Adversarial) ProduceUpdate(ctx context.Context, state types.GlobalState, cfg types.FitConfig) (types.Submission, error) {
	if a.mode == ModeSilent {
		<-ctx.Done()
		return types.Submission{}, ctx.Err()
	}

	trained, samples, err := a.trainer.Fit(ctx, state.Parameters.Clone(), cfg)
	if err != nil {
		return types.Submission{}, errors.Wrapf(err, "fitting node %s", a.id)
	}
	poisoned := types.ZerosLike(trained)

	submission := types.Submission{NodeID: a.id, Parameters: poisoned, SampleCount: samples}
	switch a.mode {
	case ModePoisonSentinel:
		submission.Fingerprint = quarantine.SentinelFingerprint
	case ModeTamper:
		submission.Fingerprint = fingerprint.Compute(trained)
	case ModeForge:
		submission.Fingerprint = fingerprint.Compute(poisoned)
	default:
		return types.Submission{}, errors.Errorf("unknown adversarial mode %q", a.mode)
	}

	return submission, nil
}

// Evaluate reports honestly: poisoning happens on the update path only.
func (a *Adversarial) Evaluate(ctx context.Context, state types.GlobalState) (types.Evaluation, error) {
	if a.mode == ModeSilent {
		<-ctx.Done()
		return types.Evaluation{}, ctx.Err()
	}

	return evaluate(ctx, a.id, a.trainer, state)
}
