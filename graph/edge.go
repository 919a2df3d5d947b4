package graph

import (
	"fmt"
	"time"
)

// Edge is a typed, weighted relationship between two notes.
//
// Edges are upserted on the key (Source, Target, Relation): re-evaluating the
// same pair updates weight and rationale in place rather than accumulating
// duplicates. Conflicting concurrent writes to the same key resolve
// last-writer-wins, which is acceptable because edge contents are derived
// facts, not user commands.
type Edge struct {
	// Source is the note id the edge originates from.
	Source string

	// Target is the note id the edge points to.
	Target string

	// Relation is the typed relationship drawn from the closed vocabulary.
	// RelationUnrelated is never persisted.
	Relation Relation

	// Weight is the combined strength of the relationship in [0,1],
	// computed as confidence x similarity x freshness at discovery time.
	Weight float64

	// Rationale is the classifier's explanation for the relationship.
	Rationale string

	// Mirror marks the reverse half of a mirrored pair. The discovery
	// engine writes non-directional relations as two edges with equal
	// weight; the reverse edge carries Mirror=true so audits can tell the
	// halves apart.
	Mirror bool

	// CreatedAt is when the edge key was first written.
	CreatedAt time.Time

	// UpdatedAt is when the edge was last upserted.
	UpdatedAt time.Time
}

// Key returns the upsert key for the edge.
func (e Edge) Key() string {
	return e.Source + "\x00" + e.Target + "\x00" + string(e.Relation)
}

// Validate checks that the edge is well formed for persistence.
func (e Edge) Validate() error {
	if e.Source == "" {
		return fmt.Errorf("%w: source id is required", ErrInvalidEdge)
	}
	if e.Target == "" {
		return fmt.Errorf("%w: target id is required", ErrInvalidEdge)
	}
	if e.Source == e.Target {
		return fmt.Errorf("%w: self-edges are not allowed", ErrInvalidEdge)
	}
	if err := e.Relation.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEdge, err)
	}
	if e.Relation == RelationUnrelated {
		return fmt.Errorf("%w: unrelated never persists as an edge", ErrInvalidEdge)
	}
	if e.Weight < 0 || e.Weight > 1 {
		return fmt.Errorf("%w: weight %f must be in [0,1]", ErrInvalidEdge, e.Weight)
	}
	return nil
}

// pairKey returns an order-independent key for a note pair, used to track
// recency of interaction regardless of edge direction.
func pairKey(a, b string) string {
	if a < b {
		return a + "\x00" + b
	}
	return b + "\x00" + a
}
