package classify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/engram/graph"
)

func TestSimilarityProviderBelowThreshold(t *testing.T) {
	provider := NewSimilarityProvider()

	decision, err := provider.ClassifyRelation(context.Background(), "a", "b", 0.6)
	require.NoError(t, err)

	assert.Equal(t, graph.RelationUnrelated, decision.Relation)
	assert.Equal(t, 0.6, decision.Confidence)
	assert.NoError(t, decision.Validate())
}

func TestSimilarityProviderDefaultsToNoLink(t *testing.T) {
	provider := NewSimilarityProvider()

	// Above threshold but no fallback relation configured.
	decision, err := provider.ClassifyRelation(context.Background(), "a", "b", 0.95)
	require.NoError(t, err)
	assert.Equal(t, graph.RelationUnrelated, decision.Relation)
}

func TestSimilarityProviderConfiguredFallbackRelation(t *testing.T) {
	provider := &SimilarityProvider{
		Threshold: 0.8,
		Relation:  graph.RelationSupports,
	}

	decision, err := provider.ClassifyRelation(context.Background(), "a", "b", 0.91)
	require.NoError(t, err)

	assert.Equal(t, graph.RelationSupports, decision.Relation)
	assert.Equal(t, 0.91, decision.Confidence)
}

func TestSimilarityProviderClampsNegativeSimilarity(t *testing.T) {
	provider := NewSimilarityProvider()

	decision, err := provider.ClassifyRelation(context.Background(), "a", "b", -0.4)
	require.NoError(t, err)

	assert.Equal(t, graph.RelationUnrelated, decision.Relation)
	assert.Equal(t, 0.0, decision.Confidence)
	assert.NoError(t, decision.Validate())
}

func TestSimilarityProviderZeroValueUsesDefaults(t *testing.T) {
	var provider SimilarityProvider

	decision, err := provider.ClassifyRelation(context.Background(), "a", "b", 0.86)
	require.NoError(t, err)
	assert.Equal(t, graph.RelationUnrelated, decision.Relation)

	decision, err = provider.ClassifyRelation(context.Background(), "a", "b", 0.2)
	require.NoError(t, err)
	assert.Equal(t, graph.RelationUnrelated, decision.Relation)
}
