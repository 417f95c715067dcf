package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVectorIndex(t *testing.T) *VectorIndex {
	t.Helper()
	idx, err := NewVectorIndex(VectorIndexConfig{Dimensions: 3})
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestVectorIndex_SearchNearest(t *testing.T) {
	idx := newTestVectorIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx,
		[]int64{1, 2, 3},
		[][]float32{
			{1, 0, 0},
			{0, 1, 0},
			{0.9, 0.1, 0},
		}))

	results, err := idx.Search(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.EqualValues(t, 1, results[0].ChunkID)
	assert.EqualValues(t, 3, results[1].ChunkID)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestVectorIndex_DeleteIsLazyButEffective(t *testing.T) {
	idx := newTestVectorIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, []int64{1, 2}, [][]float32{{1, 0, 0}, {0, 1, 0}}))
	idx.Delete([]int64{1})

	assert.False(t, idx.Contains(1))
	assert.Equal(t, 1, idx.Count())

	results, err := idx.Search(ctx, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqualValues(t, 1, r.ChunkID, "deleted chunk must not surface")
	}
}

func TestVectorIndex_DimensionMismatch(t *testing.T) {
	idx := newTestVectorIndex(t)
	ctx := context.Background()

	err := idx.Add(ctx, []int64{1}, [][]float32{{1, 0}})
	assert.Error(t, err)

	_, err = idx.Search(ctx, []float32{1, 0}, 1)
	assert.Error(t, err)
}

func TestVectorIndex_EmptySearch(t *testing.T) {
	idx := newTestVectorIndex(t)
	results, err := idx.Search(context.Background(), []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}
