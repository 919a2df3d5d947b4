package vector

import (
	"context"
	"math"
)

// Match is a single vector search hit.
type Match struct {
	// ID is the note id the vector was indexed under.
	ID string

	// Similarity is the cosine similarity to the query vector, in [-1,1].
	Similarity float64
}

// Index is the pluggable vector search backend.
//
// Implementations must return matches ordered by similarity descending, with
// ties broken by id ascending so results are deterministic.
type Index interface {
	// Upsert inserts or replaces the vector stored under id.
	Upsert(ctx context.Context, id string, vec []float64, meta map[string]string) error

	// Search returns up to topK nearest vectors by cosine similarity.
	Search(ctx context.Context, vec []float64, topK int) ([]Match, error)

	// Delete removes the vector stored under id. Deleting an absent id is
	// a no-op.
	Delete(ctx context.Context, id string) error
}

// Cosine computes the cosine similarity between two vectors.
//
// Mismatched lengths compare over the shorter prefix; a zero vector yields
// similarity 0.
func Cosine(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
