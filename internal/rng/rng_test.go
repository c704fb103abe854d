package rng_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cueworks/stagehand/internal/rng"
)

// TestCryptoSource_Intn_InRange verifies the postcondition: every value
// returned by Intn(6) is in [0, 6).
func TestCryptoSource_Intn_InRange(t *testing.T) {
	src := rng.NewCryptoSource()
	for i := 0; i < 1000; i++ {
		v := src.Intn(6)
		assert.GreaterOrEqual(t, v, 0)
		assert.Less(t, v, 6)
	}
}

// TestCryptoSource_Intn_PanicsOnZero verifies the precondition: Intn panics
// when called with n <= 0.
func TestCryptoSource_Intn_PanicsOnZero(t *testing.T) {
	src := rng.NewCryptoSource()
	assert.Panics(t, func() { src.Intn(0) })
}

// TestSeededSource_Deterministic verifies two sources with the same seed
// produce identical sequences.
func TestSeededSource_Deterministic(t *testing.T) {
	a := rng.NewSeededSource(42)
	b := rng.NewSeededSource(42)
	for i := 0; i < 100; i++ {
		assert.Equal(t, a.Intn(1000), b.Intn(1000), "same seed must replay the same sequence")
	}

	assert.Panics(t, func() { a.Intn(-1) })
}

func TestWeightedIndex_Errors(t *testing.T) {
	src := rng.NewSeededSource(1)

	_, err := rng.WeightedIndex(src, []int{0, 0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sum to zero")

	_, err = rng.WeightedIndex(src, []int{2, -1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "negative")
}

// TestWeightedIndex_Property verifies the postcondition: the picked index is
// always in range and never one with zero weight.
func TestWeightedIndex_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		weights := rapid.SliceOfN(rapid.IntRange(0, 10), 1, 8).Draw(rt, "weights")
		total := 0
		for _, w := range weights {
			total += w
		}
		if total == 0 {
			weights[0] = 1
		}
		src := rng.NewSeededSource(rapid.Int64().Draw(rt, "seed"))

		i, err := rng.WeightedIndex(src, weights)
		require.NoError(rt, err)
		assert.GreaterOrEqual(rt, i, 0)
		assert.Less(rt, i, len(weights))
		assert.Greater(rt, weights[i], 0, "zero-weight indexes must be unreachable")
	})
}

// TestWeightedIndex_SingleHeavyWeight verifies an all-or-nothing split always
// picks the only live index.
func TestWeightedIndex_SingleHeavyWeight(t *testing.T) {
	src := rng.NewCryptoSource()
	for i := 0; i < 50; i++ {
		got, err := rng.WeightedIndex(src, []int{0, 7, 0})
		require.NoError(t, err)
		assert.Equal(t, 1, got)
	}
}
