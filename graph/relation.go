package graph

import (
	"errors"
	"fmt"
)

// Relation classifies how one note relates to another.
//
// The vocabulary is closed: classification output that names any other
// relation is a schema violation and must be rejected, never coerced.
//
// Relations split into two groups with different edge semantics:
//
//   - Directional relations (refutes, predecessor, successor) produce exactly
//     one edge from source to target. The reverse direction is only written if
//     it is independently classified.
//   - All other relations are symmetric and produce a mirrored pair of edges
//     with equal weight.
//
// RelationUnrelated is a valid classification outcome but never persists as
// an edge.
type Relation string

const (
	// RelationElaborates indicates the source expands on the target with
	// additional detail or nuance.
	RelationElaborates Relation = "elaborates"

	// RelationSupports indicates the source provides evidence or reasoning
	// that strengthens the target.
	RelationSupports Relation = "supports"

	// RelationContradicts indicates the source and target are in tension
	// without one disproving the other.
	RelationContradicts Relation = "contradicts"

	// RelationRefutes indicates the source disproves the target.
	// Directional: refutation does not flow backwards.
	RelationRefutes Relation = "refutes"

	// RelationPredecessor indicates the source came before the target in a
	// sequence of reasoning or events. Directional.
	RelationPredecessor Relation = "predecessor"

	// RelationSuccessor indicates the source came after the target in a
	// sequence of reasoning or events. Directional.
	RelationSuccessor Relation = "successor"

	// RelationUnrelated indicates no meaningful relationship. It is a normal
	// classification outcome, not an error, and writes no edge.
	RelationUnrelated Relation = "unrelated"
)

// ErrInvalidRelation is returned when a relation value is not part of the
// closed vocabulary.
var ErrInvalidRelation = errors.New("graph: invalid relation")

// String returns the relation as a string.
func (r Relation) String() string {
	return string(r)
}

// IsValid reports whether the relation is part of the closed vocabulary.
func (r Relation) IsValid() bool {
	switch r {
	case RelationElaborates, RelationSupports, RelationContradicts,
		RelationRefutes, RelationPredecessor, RelationSuccessor,
		RelationUnrelated:
		return true
	default:
		return false
	}
}

// Directional reports whether the relation produces a single directed edge.
// Non-directional relations produce a mirrored pair.
func (r Relation) Directional() bool {
	switch r {
	case RelationRefutes, RelationPredecessor, RelationSuccessor:
		return true
	default:
		return false
	}
}

// Validate returns an error if the relation is not part of the closed
// vocabulary.
//
// Example:
//
//	rel := graph.Relation(decision.Relation)
//	if err := rel.Validate(); err != nil {
//	    logger.Warn("classifier returned unknown relation", "relation", decision.Relation)
//	    return
//	}
func (r Relation) Validate() error {
	if !r.IsValid() {
		return fmt.Errorf("%w: %q (must be one of: elaborates, supports, contradicts, refutes, predecessor, successor, unrelated)", ErrInvalidRelation, r)
	}
	return nil
}

// ParseRelation converts a string to a Relation, validating it against the
// closed vocabulary.
func ParseRelation(s string) (Relation, error) {
	r := Relation(s)
	if err := r.Validate(); err != nil {
		return "", err
	}
	return r, nil
}

// Relations returns all valid relations in the vocabulary.
func Relations() []Relation {
	return []Relation{
		RelationElaborates,
		RelationSupports,
		RelationContradicts,
		RelationRefutes,
		RelationPredecessor,
		RelationSuccessor,
		RelationUnrelated,
	}
}
