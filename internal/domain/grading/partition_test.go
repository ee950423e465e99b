package grading

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seq(n int) []int {
	items := make([]int, n)
	for i := range items {
		items[i] = i
	}
	return items
}

func TestPartition_CompletenessAndBalance(t *testing.T) {
	for n := 0; n <= 40; n++ {
		for w := 1; w <= 12; w++ {
			items := seq(n)
			batches, err := Partition(items, w)
			require.NoError(t, err)

			// Concatenation reconstructs the input exactly.
			var flat []int
			for _, b := range batches {
				require.NotEmpty(t, b, "n=%d w=%d", n, w)
				flat = append(flat, b...)
			}
			if n == 0 {
				assert.Empty(t, flat)
				assert.Empty(t, batches)
				continue
			}
			assert.Equal(t, items, flat, "n=%d w=%d", n, w)

			if n < w {
				assert.Len(t, batches, n, "n=%d w=%d", n, w)
				for _, b := range batches {
					assert.Len(t, b, 1)
				}
				continue
			}

			assert.Len(t, batches, w, "n=%d w=%d", n, w)
			minSize, maxSize := len(batches[0]), len(batches[0])
			for _, b := range batches {
				minSize = min(minSize, len(b))
				maxSize = max(maxSize, len(b))
			}
			assert.LessOrEqual(t, maxSize-minSize, 1, "n=%d w=%d", n, w)
		}
	}
}

func TestPartition_Deterministic(t *testing.T) {
	items := []string{"a", "b", "c", "d", "e", "f", "g"}

	first, err := Partition(items, 3)
	require.NoError(t, err)
	second, err := Partition(items, 3)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, [][]string{{"a", "b", "c"}, {"d", "e"}, {"f", "g"}}, first)
}

func TestPartition_DoesNotAliasInput(t *testing.T) {
	items := seq(4)
	batches, err := Partition(items, 2)
	require.NoError(t, err)

	batches[0][0] = 100
	assert.Equal(t, 0, items[0])
}

func TestPartition_InvalidWorkerCount(t *testing.T) {
	for _, w := range []int{0, -1} {
		_, err := Partition(seq(3), w)
		assert.ErrorIs(t, err, ErrInvalidWorkerCount)
	}
}
