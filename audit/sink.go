// Package audit holds the append-only sinks the coordinator writes one record to
// for every classified submission. Consumers may tail a sink but never rewrite it.
package audit

import (
	"context"
	"github.com/pkg/errors"
	"github.com/securefed/go-coordinator/types"
	"sync"
	"time"
)

type Sink interface {
	// AppendAuditRecord persists a single record atomically and returns it with
	// Sequence and RecordedAt populated.
	AppendAuditRecord(ctx context.Context, record types.AuditRecord) (types.AuditRecord, error)
}

// MultiSink fans a record out to several sinks. The first sink is authoritative for
// sequence numbers; the following ones receive the record it returned.
type MultiSink []Sink

func (ms MultiSink) AppendAuditRecord(ctx context.Context, record types.AuditRecord) (types.AuditRecord, error) {
	if len(ms) == 0 {
		return types.AuditRecord{}, errors.New("no audit sink configured")
	}

	stored, err := ms[0].AppendAuditRecord(ctx, record)
	if err != nil {
		return types.AuditRecord{}, errors.Wrap(err, "appending to primary sink")
	}

	for i, s := range ms[1:] {
		if _, err := s.AppendAuditRecord(ctx, stored); err != nil {
			return stored, errors.Wrapf(err, "appending to sink %d", i+1)
		}
	}

	return stored, nil
}

// MemorySink keeps records in process memory.
type MemorySink struct {
	mutex   sync.Mutex
	records []types.AuditRecord
	now     func() time.Time
}

func NewMemorySink() *MemorySink {
	return &MemorySink{now: time.Now}
}

func (m *MemorySink) AppendAuditRecord(ctx context.Context, record types.AuditRecord) (types.AuditRecord, error) {
	if err := ctx.Err(); err != nil {
		return types.AuditRecord{}, err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if record.Sequence == 0 {
		record.Sequence = uint64(len(m.records)) + 1
	}
	if record.RecordedAt.IsZero() {
		record.RecordedAt = m.now().UTC()
	}
	m.records = append(m.records, record)

	return record, nil
}

func (m *MemorySink) Records() []types.AuditRecord {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return append([]types.AuditRecord(nil), m.records...)
}
