package store

import (
	"encoding/binary"
)

const (
	AuditRecord        = 0x00
	RoundResult        = 0x01
	GlobalState        = 0x02
	AuditDigest        = 0x03
	LastProcessedRound = 0x04
	AuditSequence      = 0x05
)

func auditRecordKey(round, sequence uint64) []byte {
	key := auditRoundPrefix(round)
	key = binary.BigEndian.AppendUint64(key, sequence)

	return key
}

func auditRoundPrefix(round uint64) []byte {
	key := []byte{AuditRecord}
	key = binary.BigEndian.AppendUint64(key, round)

	return key
}

func roundResultKey(round uint64, attempt uint32) []byte {
	key := roundResultPrefix(round)
	key = binary.BigEndian.AppendUint32(key, attempt)

	return key
}

func roundResultPrefix(round uint64) []byte {
	key := []byte{RoundResult}
	key = binary.BigEndian.AppendUint64(key, round)

	return key
}

func globalStateKey(round uint64) []byte {
	key := []byte{GlobalState}
	key = binary.BigEndian.AppendUint64(key, round)

	return key
}

func auditDigestKey(round uint64) []byte {
	key := []byte{AuditDigest}
	key = binary.BigEndian.AppendUint64(key, round)

	return key
}

func lastProcessedRoundKey() []byte {
	return []byte{LastProcessedRound}
}

func auditSequenceKey() []byte {
	return []byte{AuditSequence}
}

// upperBound returns the smallest key greater than every key starting with prefix.
func upperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}

	return nil
}
