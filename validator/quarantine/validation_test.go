package quarantine

import (
	"context"
	"github.com/securefed/go-coordinator/audit"
	"github.com/securefed/go-coordinator/fingerprint"
	"github.com/securefed/go-coordinator/types"
	"github.com/stretchr/testify/require"
	"testing"
)

func globalShape() types.Parameters {
	return types.Parameters{types.Zeros(2, 2), types.Zeros(1)}
}

func honestSubmission(nodeID string, value float64, samples uint64) types.Submission {
	params := types.Parameters{
		types.NewTensor([]int{2, 2}, []float64{value, value, value, value}),
		types.Scalar(value),
	}

	return types.Submission{
		NodeID:      nodeID,
		Parameters:  params,
		SampleCount: samples,
		Fingerprint: fingerprint.Compute(params),
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name           string
		modify         func(s *types.Submission)
		expectedResult types.Verdict
		expectedReason string
	}{
		{
			name:           "valid submission",
			modify:         func(s *types.Submission) {},
			expectedResult: types.Accepted,
		},
		{
			name: "declared fingerprint does not match",
			modify: func(s *types.Submission) {
				s.Parameters[1].Values[0] = 0
			},
			expectedResult: types.Quarantined,
			expectedReason: types.ReasonFingerprintMismatch,
		},
		{
			name: "uppercase fingerprint is a mismatch",
			modify: func(s *types.Submission) {
				s.Fingerprint = "A" + s.Fingerprint[1:]
			},
			expectedResult: types.Quarantined,
			expectedReason: types.ReasonFingerprintMismatch,
		},
		{
			name: "sentinel fingerprint",
			modify: func(s *types.Submission) {
				s.Fingerprint = SentinelFingerprint
			},
			expectedResult: types.Quarantined,
			expectedReason: types.ReasonSentinelFingerprint,
		},
		{
			name: "fake marker in fingerprint",
			modify: func(s *types.Submission) {
				s.Fingerprint = "FAKE-" + s.Fingerprint
			},
			expectedResult: types.Quarantined,
			expectedReason: types.ReasonSentinelFingerprint,
		},
		{
			name: "missing node id",
			modify: func(s *types.Submission) {
				s.NodeID = ""
			},
			expectedResult: types.Quarantined,
			expectedReason: types.ReasonMalformedSubmission,
		},
		{
			name: "zero sample count",
			modify: func(s *types.Submission) {
				s.SampleCount = 0
			},
			expectedResult: types.Quarantined,
			expectedReason: types.ReasonMalformedSubmission,
		},
		{
			name: "missing fingerprint",
			modify: func(s *types.Submission) {
				s.Fingerprint = ""
			},
			expectedResult: types.Quarantined,
			expectedReason: types.ReasonMalformedSubmission,
		},
		{
			name: "shape mismatch with matching fingerprint",
			modify: func(s *types.Submission) {
				s.Parameters = types.Parameters{types.Scalar(1)}
				s.Fingerprint = fingerprint.Compute(s.Parameters)
			},
			expectedResult: types.Quarantined,
			expectedReason: types.ReasonMalformedSubmission,
		},
		{
			name: "nil parameters",
			modify: func(s *types.Submission) {
				s.Parameters = nil
			},
			expectedResult: types.Quarantined,
			expectedReason: types.ReasonMalformedSubmission,
		},
		{
			name: "payload claims another node",
			modify: func(s *types.Submission) {
				s.ClaimedNodeID = "node-2"
			},
			expectedResult: types.Quarantined,
			expectedReason: types.ReasonMalformedSubmission,
		},
		{
			name: "payload claims its own node",
			modify: func(s *types.Submission) {
				s.ClaimedNodeID = s.NodeID
			},
			expectedResult: types.Accepted,
		},
		{
			name: "value out of range with matching fingerprint",
			modify: func(s *types.Submission) {
				s.Parameters[1].Values[0] = 1e308
				s.Fingerprint = fingerprint.Compute(s.Parameters)
			},
			expectedResult: types.Quarantined,
			expectedReason: types.ReasonMalformedSubmission,
		},
		{
			name: "values do not fill the shape",
			modify: func(s *types.Submission) {
				s.Parameters[0].Values = s.Parameters[0].Values[:3]
				s.Fingerprint = fingerprint.Compute(s.Parameters)
			},
			expectedResult: types.Quarantined,
			expectedReason: types.ReasonMalformedSubmission,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := honestSubmission("node-1", 0.5, 10)
			tc.modify(&s)

			d := Classify(s, globalShape())
			require.Equal(t, tc.expectedResult, d.Verdict)
			require.Equal(t, tc.expectedReason, d.Reason)
			if tc.expectedResult == types.Accepted {
				require.NoError(t, d.Err)
			} else {
				require.Error(t, d.Err)
			}
		})
	}
}

func TestClassify_KnownBadOverridesMatchingHash(t *testing.T) {
	s := honestSubmission("node-1", 0.5, 10)
	require.True(t, fingerprint.Matches(s.Parameters, s.Fingerprint))

	c := NewClassifier(s.Fingerprint)
	d := c.Classify(s, globalShape())
	require.Equal(t, types.Quarantined, d.Verdict)
	require.Equal(t, types.ReasonSentinelFingerprint, d.Reason)

	other := honestSubmission("node-2", 0.25, 10)
	require.Equal(t, types.Accepted, c.Classify(other, globalShape()).Verdict)
}

func TestIsSentinel(t *testing.T) {
	require.True(t, IsSentinel(SentinelFingerprint))
	require.True(t, IsSentinel("some-Fake-value"))
	require.False(t, IsSentinel(fingerprint.Compute(globalShape())))
	require.False(t, IsSentinel(""))
}

func TestFilter_OneRecordPerSubmission(t *testing.T) {
	good := honestSubmission("node-a", 1, 100)
	tampered := honestSubmission("node-b", 2, 100)
	tampered.Parameters[0].Values[0] = 0
	sentinel := honestSubmission("node-c", 3, 100)
	sentinel.Fingerprint = SentinelFingerprint

	submissions := []types.Submission{good, tampered, sentinel}
	accepted, records := Filter(4, submissions, globalShape())

	require.Len(t, records, len(submissions))
	require.Len(t, accepted, 1)
	require.Equal(t, "node-a", accepted[0].NodeID)

	acceptedCount, quarantinedCount := Count(records)
	require.Equal(t, len(submissions), acceptedCount+quarantinedCount)
	require.Equal(t, 1, acceptedCount)
	require.Equal(t, []string{"node-b", "node-c"}, QuarantinedNodes(records))

	for i, r := range records {
		require.Equal(t, uint64(4), r.Round)
		require.Equal(t, submissions[i].NodeID, r.NodeID)
		require.Equal(t, submissions[i].Fingerprint, r.Fingerprint)
	}
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	sink := audit.NewMemorySink()

	_, records := Filter(1, []types.Submission{honestSubmission("node-a", 1, 1), honestSubmission("node-b", 1, 1)}, globalShape())
	stored, err := Store(ctx, sink, records)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	require.Equal(t, uint64(1), stored[0].Sequence)
	require.Equal(t, uint64(2), stored[1].Sequence)
	require.Equal(t, stored, sink.Records())
}

func TestStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, records := Filter(1, []types.Submission{honestSubmission("node-a", 1, 1)}, globalShape())
	stored, err := Store(ctx, audit.NewMemorySink(), records)
	require.Error(t, err)
	require.Empty(t, stored)
}
