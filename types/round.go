package types

import (
	"github.com/pkg/errors"
	"time"
)

// GlobalState is the coordinator owned model at the end of a round. A new value is
// produced every round; previous values are never modified.
type GlobalState struct {
	Round      uint64     `json:"round"`
	Parameters Parameters `json:"parameters"`
}

func (gs GlobalState) Clone() GlobalState {
	return GlobalState{Round: gs.Round, Parameters: gs.Parameters.Clone()}
}

// FitConfig is handed to every invited node together with the global state.
type FitConfig struct {
	Round       uint64 `json:"round"`
	LocalEpochs int    `json:"localEpochs"`
	BatchSize   int    `json:"batchSize"`
}

// Submission is a single node contribution for one round. Once received, NodeID is the
// node of the session that delivered it. ClaimedNodeID keeps the identity written in the
// payload when it differs from NodeID.
type Submission struct {
	NodeID        string     `json:"nodeId"`
	ClaimedNodeID string     `json:"claimedNodeId,omitempty"`
	Parameters    Parameters `json:"parameters"`
	SampleCount   uint64     `json:"sampleCount"`
	Fingerprint   string     `json:"fingerprint"`
}

// Evaluation is one node's assessment of a global state on its local test data.
type Evaluation struct {
	NodeID       string             `json:"nodeId"`
	Loss         float64            `json:"loss"`
	ExampleCount uint64             `json:"exampleCount"`
	Metrics      map[string]float64 `json:"metrics,omitempty"`
}

// EvaluationSummary holds the example weighted means of the evaluations of a round.
type EvaluationSummary struct {
	Loss             float64            `json:"loss"`
	ExampleCount     uint64             `json:"exampleCount"`
	Metrics          map[string]float64 `json:"metrics,omitempty"`
	EvaluatedNodeIDs []string           `json:"evaluatedNodeIds"`
	MissingNodeIDs   []string           `json:"missingNodeIds"`
}

type Verdict uint8

const (
	Accepted Verdict = iota + 1
	Quarantined
)

func (v Verdict) String() string {
	switch v {
	case Accepted:
		return "Accepted"
	case Quarantined:
		return "Quarantined"
	default:
		return "Unknown"
	}
}

func ParseVerdict(s string) (Verdict, bool) {
	switch s {
	case "Accepted":
		return Accepted, true
	case "Quarantined":
		return Quarantined, true
	}

	return 0, false
}

const (
	ReasonFingerprintMismatch = "fingerprint_mismatch"
	ReasonSentinelFingerprint = "sentinel_fingerprint"
	ReasonMalformedSubmission = "malformed_submission"
)

// AuditRecord is one entry of the append-only compliance trail.
type AuditRecord struct {
	Round       uint64    `json:"round"`
	Sequence    uint64    `json:"sequence"`
	NodeID      string    `json:"nodeId"`
	Fingerprint string    `json:"fingerprint"`
	Verdict     Verdict   `json:"verdict"`
	Reason      string    `json:"reason,omitempty"`
	RecordedAt  time.Time `json:"recordedAt"`
}

type RoundStatus string

const (
	RoundCompleted RoundStatus = "completed"
	RoundFailed    RoundStatus = "failed"
)

// RoundResult is published once per round attempt. ExcludedNodeIDs lists the invited
// nodes whose update is not part of the new state (quarantined and missing), while
// UninvitedNodeIDs lists the registered nodes that were not sampled.
type RoundResult struct {
	Round              uint64             `json:"round"`
	Attempt            int                `json:"attempt"`
	Status             RoundStatus        `json:"status"`
	NewState           GlobalState        `json:"newState"`
	StateFingerprint   string             `json:"stateFingerprint"`
	ReceivedCount      int                `json:"receivedCount"`
	AcceptedCount      int                `json:"acceptedCount"`
	QuarantinedCount   int                `json:"quarantinedCount"`
	InvitedNodeIDs     []string           `json:"invitedNodeIds"`
	QuarantinedNodeIDs []string           `json:"quarantinedNodeIds"`
	MissingNodeIDs     []string           `json:"missingNodeIds"`
	ExcludedNodeIDs    []string           `json:"excludedNodeIds"`
	UninvitedNodeIDs   []string           `json:"uninvitedNodeIds"`
	Evaluation         *EvaluationSummary `json:"evaluation,omitempty"`
	AuditDigest        string             `json:"auditDigest,omitempty"`
	FailureReason      string             `json:"failureReason,omitempty"`
	StartedAt          time.Time          `json:"startedAt"`
	Duration           time.Duration      `json:"duration"`
}

func (v Verdict) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

func (v *Verdict) UnmarshalText(text []byte) error {
	parsed, ok := ParseVerdict(string(text))
	if !ok {
		return errors.Errorf("unknown verdict %q", string(text))
	}
	*v = parsed

	return nil
}
