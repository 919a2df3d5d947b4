package classify

import (
	"context"
	"errors"
	"fmt"

	"github.com/zero-day-ai/engram/graph"
)

// Common errors returned by classification providers.
var (
	// ErrUnavailable indicates the classification provider cannot be
	// reached, timed out, or its circuit breaker is open. Link discovery
	// treats it as a signal to degrade to similarity-only linking.
	//
	// Example:
	//
	//	decision, err := provider.ClassifyRelation(ctx, a, b, sim)
	//	if errors.Is(err, classify.ErrUnavailable) {
	//		// fall back to the similarity provider
	//	}
	ErrUnavailable = errors.New("classification provider unavailable")

	// ErrInvalidDecision indicates the provider responded but its decision
	// violated the contract: a relation outside the closed vocabulary or a
	// confidence outside [0, 1].
	ErrInvalidDecision = errors.New("invalid classification decision")
)

// Decision is the outcome of classifying the relationship from a source
// note to a target note.
type Decision struct {
	// Relation is drawn from the closed vocabulary in the graph package.
	// RelationUnrelated means no meaningful relationship was found.
	Relation graph.Relation `json:"relation"`

	// Confidence is the provider's confidence in the relation, in [0, 1].
	Confidence float64 `json:"confidence"`

	// Rationale is a short human-readable justification, preserved on any
	// edge derived from this decision.
	Rationale string `json:"rationale"`
}

// Validate checks the decision against the provider contract.
func (d Decision) Validate() error {
	if !d.Relation.IsValid() {
		return fmt.Errorf("%w: relation %q not in vocabulary", ErrInvalidDecision, d.Relation)
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v out of range [0, 1]", ErrInvalidDecision, d.Confidence)
	}
	return nil
}

// Provider classifies the relationship between two notes. Implementations
// must return a Decision that passes Validate, or an error.
type Provider interface {
	// ClassifyRelation determines the relationship from the source note to
	// the target note. The similarity argument is the cosine similarity of
	// their embeddings, supplied as a hint.
	ClassifyRelation(ctx context.Context, source, target string, similarity float64) (Decision, error)
}
