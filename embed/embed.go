// Package embed defines the embedding-provider capability consumed at
// ingestion and query time. Production providers wrap an external model
// behind this interface; Deterministic provides a stable, dependency-free
// implementation for tests and examples.
package embed

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// DefaultDimension is the vector dimension used when none is configured.
const DefaultDimension = 128

// Provider produces fixed-dimension embeddings for text.
//
// Implementations must be stable: identical text yields the same vector for
// the same model version, which is what makes content-derived note identity
// meaningful. Dimension is a configuration constant checked at ingestion.
type Provider interface {
	// Embed returns the embedding for the given text.
	Embed(ctx context.Context, text string) ([]float64, error)

	// Dimension returns the fixed dimensionality of produced vectors.
	Dimension() int
}

// Deterministic is a hash-seeded Provider with no external dependencies.
//
// Vectors are derived from SHA-256 expansion of the input text and
// normalized to unit length. Identical text always produces the same vector;
// unrelated texts land roughly orthogonal. It carries no semantic meaning
// and exists for tests, examples, and offline development.
type Deterministic struct {
	dim int
}

// NewDeterministic creates a deterministic provider with the given
// dimension. dim <= 0 falls back to DefaultDimension.
func NewDeterministic(dim int) *Deterministic {
	if dim <= 0 {
		dim = DefaultDimension
	}
	return &Deterministic{dim: dim}
}

// Embed returns a stable unit vector derived from the text.
func (d *Deterministic) Embed(ctx context.Context, text string) ([]float64, error) {
	vec := make([]float64, d.dim)

	var counter [8]byte
	var block [sha256.Size]byte
	filled := 0
	for i := 0; filled < d.dim; i++ {
		binary.BigEndian.PutUint64(counter[:], uint64(i))
		h := sha256.New()
		h.Write([]byte(text))
		h.Write(counter[:])
		h.Sum(block[:0])

		for off := 0; off+8 <= len(block) && filled < d.dim; off += 8 {
			bits := binary.BigEndian.Uint64(block[off : off+8])
			// Map to [-1, 1).
			vec[filled] = float64(int64(bits)) / float64(math.MaxInt64)
			filled++
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec, nil
}

// Dimension returns the provider's fixed vector dimension.
func (d *Deterministic) Dimension() int {
	return d.dim
}
