package classify

import (
	"context"
	"fmt"

	"github.com/zero-day-ai/engram/graph"
)

// DefaultSimilarityThreshold is the embedding similarity above which the
// similarity-only provider reports its fallback relation.
const DefaultSimilarityThreshold = 0.85

// SimilarityProvider classifies note pairs from embedding similarity alone,
// with no model call. It serves as the degraded-mode fallback when the LLM
// provider is unavailable, and as a cheap default for tests and local runs.
//
// Pairs below Threshold are reported as unrelated. Pairs at or above it are
// reported with the configured Relation; the zero value keeps that at
// unrelated too, so linking stays off unless a fallback relation is chosen
// deliberately.
type SimilarityProvider struct {
	// Threshold is the minimum similarity for a link (default: 0.85).
	Threshold float64

	// Relation is reported for pairs above the threshold
	// (default: unrelated, which writes no edge).
	Relation graph.Relation
}

// NewSimilarityProvider creates a similarity-only provider with defaults.
func NewSimilarityProvider() *SimilarityProvider {
	return &SimilarityProvider{
		Threshold: DefaultSimilarityThreshold,
		Relation:  graph.RelationUnrelated,
	}
}

// ClassifyRelation maps similarity straight to a decision.
func (p *SimilarityProvider) ClassifyRelation(ctx context.Context, source, target string, similarity float64) (Decision, error) {
	threshold := p.Threshold
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}
	relation := p.Relation
	if relation == "" {
		relation = graph.RelationUnrelated
	}

	confidence := similarity
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	if similarity < threshold {
		return Decision{
			Relation:   graph.RelationUnrelated,
			Confidence: confidence,
			Rationale:  fmt.Sprintf("similarity %.3f below threshold %.2f", similarity, threshold),
		}, nil
	}

	return Decision{
		Relation:   relation,
		Confidence: confidence,
		Rationale:  fmt.Sprintf("similarity %.3f at or above threshold %.2f", similarity, threshold),
	}, nil
}
