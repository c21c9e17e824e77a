package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"
	"github.com/securefed/go-coordinator/types"
	"go.uber.org/zap"
	"sync"
	"time"
)

var ErrNotFound = errors.New("store resource not found")

// PebbleStore keeps the audit trail, every global state and every round result.
// Audit records and states are only ever added, never overwritten.
type PebbleStore struct {
	db     *pebble.DB
	logger *zap.Logger

	auditMutex   sync.Mutex
	lastSequence uint64
	now          func() time.Time
}

func NewPebbleStore(db *pebble.DB, logger *zap.Logger) (*PebbleStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	ps := PebbleStore{db: db, logger: logger, now: time.Now}

	seq, err := ps.getUint64(auditSequenceKey())
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, errors.Wrap(err, "loading audit sequence")
	}
	ps.lastSequence = seq

	return &ps, nil
}

// AppendAuditRecord writes the record and the advanced sequence counter in one
// synced batch, so either both land or neither does.
func (s *PebbleStore) AppendAuditRecord(ctx context.Context, record types.AuditRecord) (types.AuditRecord, error) {
	if err := ctx.Err(); err != nil {
		return types.AuditRecord{}, errors.Wrap(err, "appending audit record")
	}

	s.auditMutex.Lock()
	defer s.auditMutex.Unlock()

	record.Sequence = s.lastSequence + 1
	if record.RecordedAt.IsZero() {
		record.RecordedAt = s.now().UTC()
	}

	value, err := json.Marshal(record)
	if err != nil {
		return types.AuditRecord{}, errors.Wrap(err, "marshalling audit record")
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	err = batch.Set(auditRecordKey(record.Round, record.Sequence), value, nil)
	if err != nil {
		return types.AuditRecord{}, errors.Wrap(err, "adding audit record to batch")
	}
	err = batch.Set(auditSequenceKey(), binary.BigEndian.AppendUint64(nil, record.Sequence), nil)
	if err != nil {
		return types.AuditRecord{}, errors.Wrap(err, "adding audit sequence to batch")
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return types.AuditRecord{}, errors.Wrap(err, "committing audit record")
	}
	s.lastSequence = record.Sequence

	return record, nil
}

// GetAuditRecords returns the records of one round ordered by sequence.
func (s *PebbleStore) GetAuditRecords(ctx context.Context, round uint64) ([]types.AuditRecord, error) {
	return s.GetAuditRecordsRange(ctx, round, round)
}

func (s *PebbleStore) GetAuditRecordsRange(ctx context.Context, fromRound, toRound uint64) ([]types.AuditRecord, error) {
	if toRound < fromRound {
		return nil, errors.Errorf("invalid round range [%d, %d]", fromRound, toRound)
	}

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: auditRoundPrefix(fromRound),
		UpperBound: upperBound(auditRoundPrefix(toRound)),
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating audit iterator")
	}
	defer iter.Close()

	records := make([]types.AuditRecord, 0)
	for iter.First(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var record types.AuditRecord
		if err := json.Unmarshal(iter.Value(), &record); err != nil {
			return nil, errors.Wrap(err, "unmarshalling audit record")
		}
		records = append(records, record)
	}

	if err := iter.Error(); err != nil {
		return nil, errors.Wrap(err, "iterating audit records")
	}

	return records, nil
}

// SetGlobalState persists a state and marks its round as the last processed one.
func (s *PebbleStore) SetGlobalState(ctx context.Context, state types.GlobalState) error {
	value, err := json.Marshal(state)
	if err != nil {
		return errors.Wrap(err, "marshalling global state")
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	if err := batch.Set(globalStateKey(state.Round), value, nil); err != nil {
		return errors.Wrap(err, "adding global state to batch")
	}
	if err := batch.Set(lastProcessedRoundKey(), binary.BigEndian.AppendUint64(nil, state.Round), nil); err != nil {
		return errors.Wrap(err, "adding last processed round to batch")
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return errors.Wrapf(err, "storing global state for round %d", state.Round)
	}

	return nil
}

func (s *PebbleStore) GetGlobalState(ctx context.Context, round uint64) (types.GlobalState, error) {
	var state types.GlobalState
	if err := s.getJSON(globalStateKey(round), &state); err != nil {
		return types.GlobalState{}, errors.Wrapf(err, "getting global state for round %d", round)
	}

	return state, nil
}

func (s *PebbleStore) GetLastProcessedRound(ctx context.Context) (uint64, error) {
	round, err := s.getUint64(lastProcessedRoundKey())
	if err != nil {
		return 0, errors.Wrap(err, "getting last processed round")
	}

	return round, nil
}

func (s *PebbleStore) GetLastGlobalState(ctx context.Context) (types.GlobalState, error) {
	round, err := s.GetLastProcessedRound(ctx)
	if err != nil {
		return types.GlobalState{}, err
	}

	return s.GetGlobalState(ctx, round)
}

func (s *PebbleStore) SetRoundResult(ctx context.Context, result types.RoundResult) error {
	value, err := json.Marshal(result)
	if err != nil {
		return errors.Wrap(err, "marshalling round result")
	}

	err = s.db.Set(roundResultKey(result.Round, uint32(result.Attempt)), value, pebble.Sync)
	if err != nil {
		return errors.Wrapf(err, "storing round result for round %d", result.Round)
	}

	return nil
}

// PublishRoundResult lets the store act as a round result feed.
func (s *PebbleStore) PublishRoundResult(ctx context.Context, result types.RoundResult) error {
	return s.SetRoundResult(ctx, result)
}

// GetRoundResults returns every attempt made for a round, oldest first.
func (s *PebbleStore) GetRoundResults(ctx context.Context, round uint64) ([]types.RoundResult, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: roundResultPrefix(round),
		UpperBound: upperBound(roundResultPrefix(round)),
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating round result iterator")
	}
	defer iter.Close()

	var results []types.RoundResult
	for iter.First(); iter.Valid(); iter.Next() {
		var result types.RoundResult
		if err := json.Unmarshal(iter.Value(), &result); err != nil {
			return nil, errors.Wrap(err, "unmarshalling round result")
		}
		results = append(results, result)
	}
	if err := iter.Error(); err != nil {
		return nil, errors.Wrap(err, "iterating round results")
	}

	if len(results) == 0 {
		return nil, ErrNotFound
	}

	return results, nil
}

// GetRoundResult returns the latest attempt for a round.
func (s *PebbleStore) GetRoundResult(ctx context.Context, round uint64) (types.RoundResult, error) {
	results, err := s.GetRoundResults(ctx, round)
	if err != nil {
		return types.RoundResult{}, err
	}

	return results[len(results)-1], nil
}

func (s *PebbleStore) PutAuditDigest(ctx context.Context, round uint64, digest []byte) error {
	err := s.db.Set(auditDigestKey(round), digest, pebble.Sync)
	if err != nil {
		return errors.Wrapf(err, "storing audit digest for round %d", round)
	}

	return nil
}

func (s *PebbleStore) GetAuditDigest(ctx context.Context, round uint64) ([]byte, error) {
	value, closer, err := s.db.Get(auditDigestKey(round))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}

		return nil, errors.Wrap(err, "getting audit digest")
	}
	defer closer.Close()

	return append([]byte(nil), value...), nil
}

func (s *PebbleStore) getJSON(key []byte, v interface{}) error {
	value, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return ErrNotFound
		}

		return errors.Wrap(err, "getting value")
	}
	defer closer.Close()

	if err := json.Unmarshal(value, v); err != nil {
		return errors.Wrap(err, "unmarshalling value")
	}

	return nil
}

func (s *PebbleStore) getUint64(key []byte) (uint64, error) {
	value, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return 0, ErrNotFound
		}

		return 0, errors.Wrap(err, "getting value")
	}
	defer closer.Close()

	if len(value) != 8 {
		return 0, errors.Errorf("expected 8 bytes, got %d", len(value))
	}

	return binary.BigEndian.Uint64(value), nil
}
