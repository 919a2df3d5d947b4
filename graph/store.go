package graph

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"
)

// Default recency parameters for MemoryStore.
const (
	// defaultRecencyHalfLife controls how fast the freshness factor for a
	// note pair decays after their last interaction.
	defaultRecencyHalfLife = 7 * 24 * time.Hour

	// defaultRecencyFloor is the minimum freshness factor for pairs with
	// prior interaction, keeping re-evaluated edges from vanishing.
	defaultRecencyFloor = 0.25
)

// Store is the adjacency storage for typed, weighted edges between notes.
//
// Implementations must never silently drop an edge write: UpsertEdge either
// persists the edge or returns an error. Concurrent writers touching the same
// (source, target, relation) key resolve last-writer-wins on weight and
// rationale.
type Store interface {
	// UpsertEdge inserts or updates an edge, keyed by
	// (Source, Target, Relation). The first write sets CreatedAt; every
	// write sets UpdatedAt and refreshes the pair's interaction time.
	UpsertEdge(ctx context.Context, e Edge) error

	// Neighbors returns up to maxLinks outgoing edges from the given note,
	// filtered to weight >= minWeight, ordered by weight descending with
	// ties broken by earliest CreatedAt then target id.
	// maxLinks <= 0 means unbounded.
	Neighbors(ctx context.Context, id string, maxLinks int, minWeight float64) ([]Edge, error)

	// Edges returns all outgoing edges from the given note, unordered
	// guarantees beyond those of Neighbors are not made.
	Edges(ctx context.Context, id string) ([]Edge, error)

	// RecencyBoost returns the freshness factor in (0,1] for a pair of
	// notes: 1.0 when the pair has never interacted, decaying toward a
	// floor with time since their last interaction.
	RecencyBoost(ctx context.Context, a, b string) (float64, error)
}

// MemoryStore is a thread-safe in-memory Store.
//
// Multiple engine instances may each own their own MemoryStore; there is no
// process-global state.
type MemoryStore struct {
	mu    sync.RWMutex
	edges map[string]map[string]Edge // source -> edge key -> edge
	pairs map[string]time.Time       // unordered pair -> last interaction

	recencyHalfLife time.Duration
	recencyFloor    float64
	now             func() time.Time
}

// NewMemoryStore creates an empty in-memory graph store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		edges:           make(map[string]map[string]Edge),
		pairs:           make(map[string]time.Time),
		recencyHalfLife: defaultRecencyHalfLife,
		recencyFloor:    defaultRecencyFloor,
		now:             time.Now,
	}
}

// SetClock overrides the store's time source. Intended for tests.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// UpsertEdge inserts or updates an edge keyed by (Source, Target, Relation).
func (s *MemoryStore) UpsertEdge(ctx context.Context, e Edge) error {
	if err := e.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	byKey, ok := s.edges[e.Source]
	if !ok {
		byKey = make(map[string]Edge)
		s.edges[e.Source] = byKey
	}

	key := e.Key()
	if existing, ok := byKey[key]; ok {
		// Last-writer-wins on weight, rationale, and mirror flag.
		e.CreatedAt = existing.CreatedAt
	} else {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	byKey[key] = e

	s.pairs[pairKey(e.Source, e.Target)] = now
	return nil
}

// Neighbors returns outgoing edges ordered by weight descending.
func (s *MemoryStore) Neighbors(ctx context.Context, id string, maxLinks int, minWeight float64) ([]Edge, error) {
	s.mu.RLock()
	byKey := s.edges[id]
	out := make([]Edge, 0, len(byKey))
	for _, e := range byKey {
		if e.Weight >= minWeight {
			out = append(out, e)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Target < out[j].Target
	})

	if maxLinks > 0 && len(out) > maxLinks {
		out = out[:maxLinks]
	}
	return out, nil
}

// Edges returns all outgoing edges from the given note.
func (s *MemoryStore) Edges(ctx context.Context, id string) ([]Edge, error) {
	return s.Neighbors(ctx, id, 0, 0)
}

// RecencyBoost returns the freshness factor for a pair of notes.
//
// First contact yields 1.0. After an interaction the factor decays
// exponentially with the configured half-life, floored so that long-dormant
// pairs still carry some weight when re-linked.
func (s *MemoryStore) RecencyBoost(ctx context.Context, a, b string) (float64, error) {
	s.mu.RLock()
	touched, ok := s.pairs[pairKey(a, b)]
	now := s.now()
	s.mu.RUnlock()

	if !ok {
		return 1.0, nil
	}

	elapsed := now.Sub(touched)
	if elapsed < 0 {
		elapsed = 0
	}
	boost := math.Exp(-elapsed.Hours() * math.Ln2 / s.recencyHalfLife.Hours())
	if boost < s.recencyFloor {
		boost = s.recencyFloor
	}
	return boost, nil
}

// Len returns the total number of stored edges.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, byKey := range s.edges {
		n += len(byKey)
	}
	return n
}
