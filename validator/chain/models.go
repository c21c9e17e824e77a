package chain

import (
	"bytes"
	"encoding/binary"
	"github.com/pkg/errors"
	"github.com/securefed/go-coordinator/types"
	"github.com/securefed/go-coordinator/utils"
)

// Chain links the audit records of one round to the digest of the previous round.
type Chain struct {
	Round                    uint64
	Records                  []types.AuditRecord
	StateFingerprint         string
	PreviousRoundAuditDigest [32]byte
}

func (c *Chain) MarshallBinary() ([]byte, error) {
	var buff bytes.Buffer

	if _, err := buff.Write(c.PreviousRoundAuditDigest[:]); err != nil {
		return nil, errors.Wrap(err, "writing previous round digest")
	}

	header, err := utils.BinarySerialize(struct {
		Round       uint64
		RecordCount uint64
	}{Round: c.Round, RecordCount: uint64(len(c.Records))})
	if err != nil {
		return nil, errors.Wrap(err, "serializing chain header")
	}
	buff.Write(header)

	for _, r := range c.Records {
		writeString(&buff, r.NodeID)
		writeString(&buff, r.Fingerprint)
		buff.WriteByte(byte(r.Verdict))
	}
	writeString(&buff, c.StateFingerprint)

	return buff.Bytes(), nil
}

func (c *Chain) Digest() ([32]byte, error) {
	b, err := c.MarshallBinary()
	if err != nil {
		return [32]byte{}, errors.Wrap(err, "serializing chain")
	}

	digest, err := utils.K12Hash(b)
	if err != nil {
		return [32]byte{}, errors.Wrap(err, "hashing chain")
	}

	return digest, nil
}

// length prefixed so that adjacent strings cannot be re-split
func writeString(buff *bytes.Buffer, s string) {
	buff.Write(binary.LittleEndian.AppendUint32(nil, uint32(len(s))))
	buff.WriteString(s)
}
