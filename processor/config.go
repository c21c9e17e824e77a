package processor

import (
	"github.com/pkg/errors"
	"strings"
	"time"
)

type FailedRoundPolicy string

const (
	// PolicyRetry re-attempts the same round number until it completes or
	// MaxRoundRetries is exhausted.
	PolicyRetry FailedRoundPolicy = "retry"
	// PolicySkip counts a failed attempt as one of NumRounds and moves on.
	PolicySkip FailedRoundPolicy = "skip"
)

func ParseFailedRoundPolicy(s string) (FailedRoundPolicy, error) {
	switch FailedRoundPolicy(strings.ToLower(s)) {
	case PolicyRetry:
		return PolicyRetry, nil
	case PolicySkip:
		return PolicySkip, nil
	}

	return "", errors.Errorf("unknown failed round policy %q", s)
}

type Config struct {
	MinFitNodes       int
	MinAvailableNodes int
	FitFraction       float64
	NumRounds         int
	RoundTimeout      time.Duration
	CollectAllInvited bool
	FailedRoundPolicy FailedRoundPolicy
	MaxRoundRetries   int
	Seed              int64
	LocalEpochs       int
	BatchSize         int
	// Evaluate asks the nodes that submitted to score every new global state.
	Evaluate bool
}

func DefaultConfig() Config {
	return Config{
		MinFitNodes:       2,
		MinAvailableNodes: 2,
		FitFraction:       1.0,
		NumRounds:         3,
		RoundTimeout:      30 * time.Second,
		FailedRoundPolicy: PolicyRetry,
		MaxRoundRetries:   3,
		LocalEpochs:       1,
		BatchSize:         32,
		Evaluate:          true,
	}
}

func (c Config) Validate() error {
	if c.MinFitNodes < 1 {
		return errors.Errorf("min fit nodes must be at least 1, got %d", c.MinFitNodes)
	}
	if c.MinAvailableNodes < 0 {
		return errors.Errorf("min available nodes must not be negative, got %d", c.MinAvailableNodes)
	}
	if c.FitFraction <= 0 || c.FitFraction > 1 {
		return errors.Errorf("fit fraction must be in (0, 1], got %v", c.FitFraction)
	}
	if c.NumRounds < 1 {
		return errors.Errorf("num rounds must be at least 1, got %d", c.NumRounds)
	}
	if c.RoundTimeout <= 0 {
		return errors.Errorf("round timeout must be positive, got %v", c.RoundTimeout)
	}
	if c.FailedRoundPolicy != PolicyRetry && c.FailedRoundPolicy != PolicySkip {
		return errors.Errorf("unknown failed round policy %q", c.FailedRoundPolicy)
	}
	if c.MaxRoundRetries < 0 {
		return errors.Errorf("max round retries must not be negative, got %d", c.MaxRoundRetries)
	}
	if c.LocalEpochs < 1 {
		return errors.Errorf("local epochs must be at least 1, got %d", c.LocalEpochs)
	}
	if c.BatchSize < 1 {
		return errors.Errorf("batch size must be at least 1, got %d", c.BatchSize)
	}

	return nil
}

// sampleSize is max(floor(available*FitFraction), MinFitNodes), capped at available.
func (c Config) sampleSize(available int) int {
	n := int(float64(available) * c.FitFraction)
	if n < c.MinFitNodes {
		n = c.MinFitNodes
	}
	if n > available {
		n = available
	}

	return n
}
