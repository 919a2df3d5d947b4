package vector

import (
	"context"
	"sort"
	"sync"
)

// MemoryIndex is a thread-safe brute-force cosine index.
//
// Every search scans all stored vectors. That is linear in the number of
// notes, which is fine for the in-process engine this backs; swap in a
// sqlite-vec index for larger graphs.
type MemoryIndex struct {
	mu      sync.RWMutex
	vectors map[string][]float64
	meta    map[string]map[string]string
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		vectors: make(map[string][]float64),
		meta:    make(map[string]map[string]string),
	}
}

// Upsert inserts or replaces the vector stored under id.
func (i *MemoryIndex) Upsert(ctx context.Context, id string, vec []float64, meta map[string]string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.vectors[id] = append([]float64(nil), vec...)
	if meta != nil {
		copied := make(map[string]string, len(meta))
		for k, v := range meta {
			copied[k] = v
		}
		i.meta[id] = copied
	}
	return nil
}

// Search returns up to topK nearest vectors by cosine similarity,
// ordered by similarity descending with ties broken by id ascending.
func (i *MemoryIndex) Search(ctx context.Context, vec []float64, topK int) ([]Match, error) {
	if topK <= 0 {
		return nil, nil
	}

	i.mu.RLock()
	matches := make([]Match, 0, len(i.vectors))
	for id, stored := range i.vectors {
		matches = append(matches, Match{ID: id, Similarity: Cosine(vec, stored)})
	}
	i.mu.RUnlock()

	sort.Slice(matches, func(a, b int) bool {
		if matches[a].Similarity != matches[b].Similarity {
			return matches[a].Similarity > matches[b].Similarity
		}
		return matches[a].ID < matches[b].ID
	})

	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Delete removes the vector stored under id.
func (i *MemoryIndex) Delete(ctx context.Context, id string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	delete(i.vectors, id)
	delete(i.meta, id)
	return nil
}

// Len returns the number of stored vectors.
func (i *MemoryIndex) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.vectors)
}
