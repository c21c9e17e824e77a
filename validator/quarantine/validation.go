package quarantine

import (
	"github.com/pkg/errors"
	"github.com/securefed/go-coordinator/fingerprint"
	"github.com/securefed/go-coordinator/types"
	"math"
	"strings"
)

// SentinelFingerprint is the value a node declares to admit it tampered with its update.
const SentinelFingerprint = "invalid_fake_hash_string_12345"

// MaxAbsValue bounds every accepted parameter value, which keeps the weighted mean of
// accepted updates finite.
const MaxAbsValue = math.MaxFloat64 / 4

var ErrMalformedSubmission = errors.New("malformed submission")

type Decision struct {
	Verdict types.Verdict
	Reason  string
	Err     error
}

// IsSentinel reports whether the declared fingerprint is a known-bad marker.
func IsSentinel(declared string) bool {
	return declared == SentinelFingerprint || strings.Contains(strings.ToLower(declared), "fake")
}

// Classifier quarantines sentinel fingerprints plus an operator supplied deny list.
type Classifier struct {
	knownBad map[string]struct{}
}

func NewClassifier(knownBad ...string) *Classifier {
	c := Classifier{knownBad: make(map[string]struct{}, len(knownBad))}
	for _, fp := range knownBad {
		c.knownBad[fp] = struct{}{}
	}

	return &c
}

func (c *Classifier) isKnownBad(declared string) bool {
	if IsSentinel(declared) {
		return true
	}
	if c == nil {
		return false
	}
	_, ok := c.knownBad[declared]

	return ok
}

// Classify uses a classifier without deny list.
func Classify(submission types.Submission, expected types.Parameters) Decision {
	return (*Classifier)(nil).Classify(submission, expected)
}

// Classify decides whether a submission can be trusted. It never fails: anything it
// cannot make sense of is quarantined.
func (c *Classifier) Classify(submission types.Submission, expected types.Parameters) Decision {
	if err := checkWellFormed(submission, expected); err != nil {
		return Decision{
			Verdict: types.Quarantined,
			Reason:  types.ReasonMalformedSubmission,
			Err:     errors.Wrap(ErrMalformedSubmission, err.Error()),
		}
	}

	if c.isKnownBad(submission.Fingerprint) {
		return Decision{
			Verdict: types.Quarantined,
			Reason:  types.ReasonSentinelFingerprint,
			Err:     errors.Errorf("node %s declared known-bad fingerprint %q", submission.NodeID, submission.Fingerprint),
		}
	}

	recomputed := fingerprint.Compute(submission.Parameters)
	if recomputed != submission.Fingerprint {
		return Decision{
			Verdict: types.Quarantined,
			Reason:  types.ReasonFingerprintMismatch,
			Err:     errors.Errorf("declared fingerprint %q does not match recomputed %s", submission.Fingerprint, recomputed),
		}
	}

	return Decision{Verdict: types.Accepted}
}

func checkWellFormed(submission types.Submission, expected types.Parameters) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("inspecting submission: %v", r)
		}
	}()

	if submission.NodeID == "" {
		return errors.New("missing node id")
	}
	if submission.ClaimedNodeID != "" && submission.ClaimedNodeID != submission.NodeID {
		return errors.Errorf("node %s submitted as %s", submission.NodeID, submission.ClaimedNodeID)
	}
	if submission.SampleCount == 0 {
		return errors.New("sample count must be positive")
	}
	if submission.Fingerprint == "" {
		return errors.New("missing fingerprint")
	}
	if err := submission.Parameters.Validate(); err != nil {
		return errors.Wrap(err, "validating parameters")
	}
	if !submission.Parameters.SameShape(expected) {
		return errors.Errorf("parameter shape %v does not match global shape %v", submission.Parameters.Shape(), expected.Shape())
	}
	for ti, t := range submission.Parameters {
		for vi, v := range t.Values {
			if math.Abs(v) > MaxAbsValue {
				return errors.Errorf("value %g at tensor %d index %d is out of range", v, ti, vi)
			}
		}
	}

	return nil
}

// Filter classifies every submission of a round, in order. It returns the accepted
// subset and exactly one audit record per submission.
func (c *Classifier) Filter(round uint64, submissions []types.Submission, expected types.Parameters) ([]types.Submission, []types.AuditRecord) {
	accepted := make([]types.Submission, 0, len(submissions))
	records := make([]types.AuditRecord, 0, len(submissions))

	for _, s := range submissions {
		decision := c.Classify(s, expected)
		records = append(records, toAuditRecord(round, s, decision))
		if decision.Verdict == types.Accepted {
			accepted = append(accepted, s)
		}
	}

	return accepted, records
}

func Filter(round uint64, submissions []types.Submission, expected types.Parameters) ([]types.Submission, []types.AuditRecord) {
	return (*Classifier)(nil).Filter(round, submissions, expected)
}
