package fingerprint

import (
	"github.com/securefed/go-coordinator/types"
	"github.com/stretchr/testify/require"
	"math"
	"strings"
	"testing"
)

func testParams() types.Parameters {
	return types.Parameters{
		types.NewTensor([]int{2, 2}, []float64{0.1, -0.2, 0.3, 4}),
		types.Scalar(7),
	}
}

func TestCompute_Deterministic(t *testing.T) {
	first := Compute(testParams())
	second := Compute(testParams())

	require.Equal(t, first, second)
	require.Len(t, first, Size)
	require.Equal(t, strings.ToLower(first), first)
	require.True(t, IsWellFormed(first))
}

func TestCompute_ChangesWithAnyValue(t *testing.T) {
	base := Compute(testParams())
	seen := map[string]struct{}{base: {}}

	for ti, tensor := range testParams() {
		for vi := range tensor.Values {
			modified := testParams()
			modified[ti].Values[vi] = math.Nextafter(modified[ti].Values[vi], math.Inf(1))

			fp := Compute(modified)
			_, dup := seen[fp]
			require.False(t, dup, "tensor %d value %d produced a known fingerprint", ti, vi)
			seen[fp] = struct{}{}
		}
	}
}

func TestCompute_ShapeIsPartOfTheFingerprint(t *testing.T) {
	flat := types.Parameters{types.NewTensor([]int{4}, []float64{1, 2, 3, 4})}
	square := types.Parameters{types.NewTensor([]int{2, 2}, []float64{1, 2, 3, 4})}
	split := types.Parameters{types.NewTensor([]int{2}, []float64{1, 2}), types.NewTensor([]int{2}, []float64{3, 4})}

	require.NotEqual(t, Compute(flat), Compute(square))
	require.NotEqual(t, Compute(flat), Compute(split))
	require.NotEqual(t, Compute(square), Compute(split))
}

func TestCompute_NegativeZero(t *testing.T) {
	pos := types.Parameters{types.Scalar(0)}
	neg := types.Parameters{types.Scalar(math.Copysign(0, -1))}

	// bit-level encoding: -0 and +0 are different payloads
	require.NotEqual(t, Compute(pos), Compute(neg))
}

func TestCanonicalize_Layout(t *testing.T) {
	b := Canonicalize(types.Parameters{types.Scalar(1)})
	// rank, one dimension, one value
	require.Len(t, b, 24)
	require.Equal(t, byte(1), b[0])
	require.Equal(t, byte(1), b[8])
	require.Equal(t, byte(0xf0), b[22])
	require.Equal(t, byte(0x3f), b[23])
}

func TestMatches(t *testing.T) {
	fp := Compute(testParams())
	require.True(t, Matches(testParams(), fp))
	require.False(t, Matches(testParams(), strings.ToUpper(fp)))
	require.False(t, Matches(types.Parameters{types.Scalar(1)}, fp))
}

func TestIsWellFormed(t *testing.T) {
	require.False(t, IsWellFormed(""))
	require.False(t, IsWellFormed("invalid_fake_hash_string_12345"))
	require.False(t, IsWellFormed(strings.Repeat("G", Size)))
	require.True(t, IsWellFormed(strings.Repeat("a", Size)))
}
