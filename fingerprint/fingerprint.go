// Package fingerprint derives the content hash nodes attach to their submissions and
// the coordinator recomputes when classifying them.
//
// Canonical form: for every tensor in declared order the rank, each dimension and
// each value are written little-endian (dimensions as uint64, values as IEEE-754
// float64). The SHA-256 of that byte sequence is rendered as lowercase hex.
package fingerprint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"github.com/securefed/go-coordinator/types"
	"math"
)

// Size is the length of a rendered fingerprint.
const Size = sha256.Size * 2

func Compute(params types.Parameters) string {
	digest := sha256.Sum256(Canonicalize(params))
	return hex.EncodeToString(digest[:])
}

func Canonicalize(params types.Parameters) []byte {
	size := 0
	for _, t := range params {
		size += 8 + 8*len(t.Shape) + 8*len(t.Values)
	}

	b := make([]byte, 0, size)
	for _, t := range params {
		b = binary.LittleEndian.AppendUint64(b, uint64(len(t.Shape)))
		for _, dim := range t.Shape {
			b = binary.LittleEndian.AppendUint64(b, uint64(dim))
		}
		for _, v := range t.Values {
			b = binary.LittleEndian.AppendUint64(b, math.Float64bits(v))
		}
	}

	return b
}

func Matches(params types.Parameters, declared string) bool {
	return Compute(params) == declared
}

// IsWellFormed reports whether fp looks like an output of Compute.
func IsWellFormed(fp string) bool {
	if len(fp) != Size {
		return false
	}
	for i := 0; i < len(fp); i++ {
		c := fp[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}

	return true
}
