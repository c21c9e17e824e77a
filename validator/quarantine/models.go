package quarantine

import (
	"context"
	"github.com/pkg/errors"
	"github.com/securefed/go-coordinator/audit"
	"github.com/securefed/go-coordinator/types"
)

func toAuditRecord(round uint64, s types.Submission, d Decision) types.AuditRecord {
	return types.AuditRecord{
		Round:       round,
		NodeID:      s.NodeID,
		Fingerprint: s.Fingerprint,
		Verdict:     d.Verdict,
		Reason:      d.Reason,
	}
}

func Count(records []types.AuditRecord) (accepted, quarantined int) {
	for _, r := range records {
		switch r.Verdict {
		case types.Accepted:
			accepted++
		case types.Quarantined:
			quarantined++
		}
	}

	return accepted, quarantined
}

func QuarantinedNodes(records []types.AuditRecord) []string {
	nodes := make([]string, 0)
	for _, r := range records {
		if r.Verdict == types.Quarantined {
			nodes = append(nodes, r.NodeID)
		}
	}

	return nodes
}

// Store appends the records one by one; the sink fills in sequence and time.
func Store(ctx context.Context, sink audit.Sink, records []types.AuditRecord) ([]types.AuditRecord, error) {
	stored := make([]types.AuditRecord, 0, len(records))
	for _, r := range records {
		appended, err := sink.AppendAuditRecord(ctx, r)
		if err != nil {
			return stored, errors.Wrapf(err, "appending audit record for node %s", r.NodeID)
		}
		stored = append(stored, appended)
	}

	return stored, nil
}
