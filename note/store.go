package note

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Store persists notes keyed by their content-derived identity.
//
// Insert is an atomic insert-if-absent: concurrent ingestion of identical
// content must converge on a single stored note, with every caller receiving
// the same id.
type Store interface {
	// Insert stores the note if no note with its id exists. It returns the
	// canonical id and whether an entry already existed. When existed is
	// true the store is unchanged and the incoming note is discarded.
	Insert(ctx context.Context, n *Note) (id string, existed bool, err error)

	// Get returns the note, excluding archived entries.
	// Returns ErrNotFound if the note is absent or archived.
	Get(ctx context.Context, id string) (*Note, error)

	// GetAny returns the note regardless of archive status.
	// Returns ErrNotFound only if the note is absent.
	GetAny(ctx context.Context, id string) (*Note, error)

	// UpdateAnnotations overwrites the cosmetic fields. The note is marked
	// dirty only when the embedding payload (content + description)
	// changed; keyword and tag changes leave the stored vector valid.
	UpdateAnnotations(ctx context.Context, id string, keywords, tags []string, description string) error

	// ReplaceEmbedding stores a re-derived vector and clears the dirty
	// flag. The note's id is not recomputed.
	ReplaceEmbedding(ctx context.Context, id string, embedding []float64) error

	// Archive transitions the note to its terminal archived state.
	Archive(ctx context.Context, id string) error

	// All returns every stored note, including archived ones, ordered by
	// ingestion sequence.
	All(ctx context.Context) ([]*Note, error)
}

// MemoryStore is a thread-safe in-memory Store.
type MemoryStore struct {
	mu    sync.RWMutex
	notes map[string]*Note
	seq   uint64
	now   func() time.Time
}

// NewMemoryStore creates an empty in-memory note store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		notes: make(map[string]*Note),
		now:   time.Now,
	}
}

// SetClock overrides the store's time source. Intended for tests.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Insert stores the note if absent. The id must already be set by the caller
// (via ComputeID); Seq and CreatedAt are assigned under the store lock so the
// sequence is strictly monotonic even under concurrent ingestion.
func (s *MemoryStore) Insert(ctx context.Context, n *Note) (string, bool, error) {
	if n.ID == "" {
		return "", false, fmt.Errorf("%w: note id is required", ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.notes[n.ID]; ok {
		return n.ID, true, nil
	}

	stored := n.Clone()
	s.seq++
	stored.Seq = s.seq
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now()
	}
	stored.Archived = false
	stored.Dirty = false
	s.notes[stored.ID] = stored
	return stored.ID, false, nil
}

// Get returns the note, excluding archived entries.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.notes[id]
	if !ok || n.Archived {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return n.Clone(), nil
}

// GetAny returns the note regardless of archive status.
func (s *MemoryStore) GetAny(ctx context.Context, id string) (*Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.notes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return n.Clone(), nil
}

// UpdateAnnotations overwrites keywords, tags, and description.
func (s *MemoryStore) UpdateAnnotations(ctx context.Context, id string, keywords, tags []string, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	oldPayload := n.EmbedPayload()
	n.Keywords = append([]string(nil), keywords...)
	n.Tags = append([]string(nil), tags...)
	n.Description = description

	if payloadHash(n.EmbedPayload()) != payloadHash(oldPayload) {
		n.Dirty = true
	}
	return nil
}

// ReplaceEmbedding stores a re-derived vector and clears the dirty flag.
func (s *MemoryStore) ReplaceEmbedding(ctx context.Context, id string, embedding []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	n.Embedding = append([]float64(nil), embedding...)
	n.Dirty = false
	return nil
}

// Archive transitions the note to its terminal archived state.
func (s *MemoryStore) Archive(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	n.Archived = true
	return nil
}

// All returns every stored note ordered by ingestion sequence.
func (s *MemoryStore) All(ctx context.Context) ([]*Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Note, 0, len(s.notes))
	for _, n := range s.notes {
		out = append(out, n.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// Len returns the number of stored notes, archived included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.notes)
}

func payloadHash(payload string) string {
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
