package audit

import (
	"context"
	"encoding/csv"
	"github.com/securefed/go-coordinator/types"
	"github.com/stretchr/testify/require"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestMemorySink_AssignsSequence(t *testing.T) {
	ctx := context.Background()
	sink := NewMemorySink()

	first, err := sink.AppendAuditRecord(ctx, types.AuditRecord{Round: 1, NodeID: "a", Verdict: types.Accepted})
	require.NoError(t, err)
	second, err := sink.AppendAuditRecord(ctx, types.AuditRecord{Round: 1, NodeID: "b", Verdict: types.Quarantined})
	require.NoError(t, err)

	require.Equal(t, uint64(1), first.Sequence)
	require.Equal(t, uint64(2), second.Sequence)
	require.False(t, first.RecordedAt.IsZero())
	require.Len(t, sink.Records(), 2)
}

func TestMemorySink_ConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	sink := NewMemorySink()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := sink.AppendAuditRecord(ctx, types.AuditRecord{Round: 1, NodeID: "n", Verdict: types.Accepted})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	seen := make(map[uint64]bool)
	for _, r := range sink.Records() {
		require.False(t, seen[r.Sequence], "duplicate sequence %d", r.Sequence)
		seen[r.Sequence] = true
	}
	require.Len(t, seen, 50)
}

func TestCSVSink_WritesHeaderOnce(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "training_metrics.csv")

	sink, err := NewCSVSink(path)
	require.NoError(t, err)
	_, err = sink.AppendAuditRecord(ctx, types.AuditRecord{Round: 1, NodeID: "node-1", Fingerprint: "abc", Verdict: types.Accepted})
	require.NoError(t, err)
	require.NoError(t, sink.Close())

	// reopening appends without a second header
	sink, err = NewCSVSink(path)
	require.NoError(t, err)
	_, err = sink.AppendAuditRecord(ctx, types.AuditRecord{Round: 2, NodeID: "node-2", Fingerprint: "invalid_fake_hash_string_12345", Verdict: types.Quarantined})
	require.NoError(t, err)
	require.NoError(t, sink.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Equal(t, [][]string{
		{"Round", "Node_ID", "SHA256_Hash", "Status"},
		{"1", "node-1", "abc", "Accepted"},
		{"2", "node-2", "invalid_fake_hash_string_12345", "Quarantined"},
	}, rows)
}

func TestMultiSink_PropagatesPrimaryRecord(t *testing.T) {
	ctx := context.Background()
	primary := NewMemorySink()
	secondary := NewMemorySink()
	ms := MultiSink{primary, secondary}

	_, err := ms.AppendAuditRecord(ctx, types.AuditRecord{Round: 1, NodeID: "a", Verdict: types.Accepted})
	require.NoError(t, err)
	stored, err := ms.AppendAuditRecord(ctx, types.AuditRecord{Round: 1, NodeID: "b", Verdict: types.Accepted})
	require.NoError(t, err)

	require.Equal(t, uint64(2), stored.Sequence)
	require.Equal(t, primary.Records(), secondary.Records())

	_, err = MultiSink{}.AppendAuditRecord(ctx, types.AuditRecord{})
	require.Error(t, err)
}
