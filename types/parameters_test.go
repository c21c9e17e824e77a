package types

import (
	"github.com/stretchr/testify/require"
	"math"
	"testing"
)

func TestParameters_Validate(t *testing.T) {
	cases := []struct {
		name        string
		params      Parameters
		expectError bool
	}{
		{name: "valid", params: Parameters{Zeros(2, 3), Scalar(1)}},
		{name: "empty", params: Parameters{}, expectError: true},
		{name: "value count mismatch", params: Parameters{{Shape: []int{2, 2}, Values: []float64{1, 2, 3}}}, expectError: true},
		{name: "zero dimension", params: Parameters{{Shape: []int{0}, Values: []float64{}}}, expectError: true},
		{name: "nan", params: Parameters{{Shape: []int{1}, Values: []float64{math.NaN()}}}, expectError: true},
		{name: "inf", params: Parameters{{Shape: []int{1}, Values: []float64{math.Inf(1)}}}, expectError: true},
		{name: "empty shape", params: Parameters{{Shape: []int{}, Values: []float64{}}}, expectError: true},
		{name: "size overflows int", params: Parameters{{Shape: []int{1 << 62, 4}, Values: []float64{}}}, expectError: true},
		{name: "size wraps to a small value", params: Parameters{{Shape: []int{1 << 62, 4, 1 << 2}, Values: []float64{}}}, expectError: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.params.Validate()
			if tc.expectError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestParameters_SameShape(t *testing.T) {
	a := Parameters{Zeros(2, 3), Zeros(3)}

	require.True(t, a.SameShape(Parameters{Zeros(2, 3), Zeros(3)}))
	require.False(t, a.SameShape(Parameters{Zeros(3, 2), Zeros(3)}))
	require.False(t, a.SameShape(Parameters{Zeros(2, 3)}))
	require.False(t, a.SameShape(Parameters{Zeros(6), Zeros(3)}))
}

func TestParameters_CloneIsDeep(t *testing.T) {
	original := Parameters{NewTensor([]int{2}, []float64{1, 2})}
	cloned := original.Clone()

	cloned[0].Values[0] = 42
	cloned[0].Shape[0] = 7

	require.Equal(t, 1.0, original[0].Values[0])
	require.Equal(t, 2, original[0].Shape[0])
}

func TestGlobalState_Clone(t *testing.T) {
	gs := GlobalState{Round: 3, Parameters: Parameters{Scalar(0.5)}}
	cloned := gs.Clone()
	cloned.Parameters[0].Values[0] = 1

	require.Equal(t, uint64(3), cloned.Round)
	require.Equal(t, 0.5, gs.Parameters[0].Values[0])
}

func TestVerdict_String(t *testing.T) {
	require.Equal(t, "Accepted", Accepted.String())
	require.Equal(t, "Quarantined", Quarantined.String())

	v, ok := ParseVerdict("Quarantined")
	require.True(t, ok)
	require.Equal(t, Quarantined, v)

	_, ok = ParseVerdict("maybe")
	require.False(t, ok)
}
