package vector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"identical", []float64{1, 0}, []float64{1, 0}, 1.0},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0.0},
		{"opposite", []float64{1, 0}, []float64{-1, 0}, -1.0},
		{"scaled", []float64{1, 1}, []float64{3, 3}, 1.0},
		{"zero vector", []float64{0, 0}, []float64{1, 1}, 0.0},
		{"empty", nil, []float64{1}, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Cosine(tt.a, tt.b), 1e-12)
		})
	}
}

func TestMemoryIndexSearchOrdering(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	require.NoError(t, idx.Upsert(ctx, "note:exact", []float64{1, 0}, nil))
	require.NoError(t, idx.Upsert(ctx, "note:close", []float64{0.9, 0.1}, nil))
	require.NoError(t, idx.Upsert(ctx, "note:far", []float64{0, 1}, nil))

	matches, err := idx.Search(ctx, []float64{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, "note:exact", matches[0].ID)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-12)
	assert.Equal(t, "note:close", matches[1].ID)
	assert.Equal(t, "note:far", matches[2].ID)

	// topK truncates.
	matches, err = idx.Search(ctx, []float64{1, 0}, 2)
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestMemoryIndexTieBreaksOnID(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	// Identical vectors: similarity ties, id ascending decides.
	require.NoError(t, idx.Upsert(ctx, "note:b", []float64{1, 1}, nil))
	require.NoError(t, idx.Upsert(ctx, "note:a", []float64{1, 1}, nil))

	matches, err := idx.Search(ctx, []float64{1, 1}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "note:a", matches[0].ID)
	assert.Equal(t, "note:b", matches[1].ID)
}

func TestMemoryIndexUpsertReplaces(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	require.NoError(t, idx.Upsert(ctx, "note:a", []float64{1, 0}, nil))
	require.NoError(t, idx.Upsert(ctx, "note:a", []float64{0, 1}, nil))
	assert.Equal(t, 1, idx.Len())

	matches, err := idx.Search(ctx, []float64{0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-12)
}

func TestMemoryIndexDelete(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	require.NoError(t, idx.Upsert(ctx, "note:a", []float64{1, 0}, nil))
	require.NoError(t, idx.Delete(ctx, "note:a"))
	require.NoError(t, idx.Delete(ctx, "note:a")) // absent delete is a no-op
	assert.Equal(t, 0, idx.Len())

	matches, err := idx.Search(ctx, []float64{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestMemoryIndexSearchZeroTopK(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	require.NoError(t, idx.Upsert(ctx, "note:a", []float64{1}, nil))

	matches, err := idx.Search(ctx, []float64{1}, 0)
	require.NoError(t, err)
	assert.Empty(t, matches)
}
