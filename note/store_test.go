package note

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNote(content string, embedding []float64) *Note {
	return &Note{
		ID:        ComputeID(embedding),
		Content:   content,
		Embedding: embedding,
	}
}

func TestNoteValidate(t *testing.T) {
	tests := []struct {
		name       string
		note       *Note
		maxContent int
		dimension  int
		wantErr    bool
	}{
		{
			name:      "valid",
			note:      newTestNote("hello", []float64{0.1, 0.2}),
			dimension: 2,
		},
		{
			name:      "empty content",
			note:      newTestNote("", []float64{0.1, 0.2}),
			dimension: 2,
			wantErr:   true,
		},
		{
			name:       "content too long",
			note:       newTestNote("abcdef", []float64{0.1}),
			maxContent: 3,
			dimension:  1,
			wantErr:    true,
		},
		{
			name:      "missing embedding",
			note:      &Note{ID: "note:x", Content: "hello"},
			dimension: 2,
			wantErr:   true,
		},
		{
			name:      "dimension mismatch",
			note:      newTestNote("hello", []float64{0.1, 0.2, 0.3}),
			dimension: 2,
			wantErr:   true,
		},
		{
			name: "dimension check skipped when unconfigured",
			note: newTestNote("hello", []float64{0.1, 0.2, 0.3}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.note.Validate(tt.maxContent, tt.dimension)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMemoryStoreInsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	n := newTestNote("the bhagavad gita discusses karma yoga", []float64{0.5, 0.5})

	id, existed, err := store.Insert(ctx, n)
	require.NoError(t, err)
	assert.False(t, existed)
	assert.Equal(t, n.ID, id)

	// Second insert with the same identity is a no-op returning the same id.
	dup := newTestNote("the bhagavad gita discusses karma yoga", []float64{0.5, 0.5})
	id2, existed, err := store.Insert(ctx, dup)
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, id, id2)
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStoreInsertIdempotentUnderRace(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	const workers = 16
	ids := make([]string, workers)
	existedCount := 0

	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n := newTestNote("identical content", []float64{0.25, 0.75})
			id, existed, err := store.Insert(ctx, n)
			require.NoError(t, err)
			mu.Lock()
			ids[i] = id
			if existed {
				existedCount++
			}
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	// Exactly one goroutine created the note; all observed the same id.
	assert.Equal(t, workers-1, existedCount)
	assert.Equal(t, 1, store.Len())
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestMemoryStoreSequenceIsMonotonic(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for i := 0; i < 5; i++ {
		n := newTestNote("content", []float64{float64(i)})
		_, _, err := store.Insert(ctx, n)
		require.NoError(t, err)
	}

	all, err := store.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i, n := range all {
		assert.Equal(t, uint64(i+1), n.Seq)
	}
}

func TestMemoryStoreGetExcludesArchived(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	n := newTestNote("fading memory", []float64{0.9})
	id, _, err := store.Insert(ctx, n)
	require.NoError(t, err)

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "fading memory", got.Content)

	require.NoError(t, store.Archive(ctx, id))

	_, err = store.Get(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)

	// GetAny still reads archived notes.
	got, err = store.GetAny(ctx, id)
	require.NoError(t, err)
	assert.True(t, got.Archived)
}

func TestMemoryStoreGetMissing(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.Get(ctx, "note:missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.GetAny(ctx, "note:missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreUpdateAnnotationsDirtyFlag(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	n := newTestNote("original content", []float64{0.1})
	id, _, err := store.Insert(ctx, n)
	require.NoError(t, err)

	// Keyword and tag changes leave the embedding payload untouched.
	require.NoError(t, store.UpdateAnnotations(ctx, id, []string{"karma"}, []string{"philosophy"}, ""))
	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, got.Dirty)
	assert.Equal(t, []string{"karma"}, got.Keywords)
	assert.Equal(t, []string{"philosophy"}, got.Tags)

	// A new description changes the payload, marking the note dirty.
	require.NoError(t, store.UpdateAnnotations(ctx, id, []string{"karma"}, []string{"philosophy"}, "a summary"))
	got, err = store.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, got.Dirty)

	// Re-indexing replaces the vector and clears the flag; identity stays.
	require.NoError(t, store.ReplaceEmbedding(ctx, id, []float64{0.7}))
	got, err = store.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, got.Dirty)
	assert.Equal(t, []float64{0.7}, got.Embedding)
	assert.Equal(t, id, got.ID)
}

func TestMemoryStoreClonesOnRead(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	n := newTestNote("stable", []float64{0.3})
	id, _, err := store.Insert(ctx, n)
	require.NoError(t, err)

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	got.Content = "mutated"
	got.Embedding[0] = 99

	again, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "stable", again.Content)
	assert.Equal(t, 0.3, again.Embedding[0])
}
