package retrieval

import "fmt"

// Query bounds and defaults.
const (
	// MaxLinkDepth is the deepest graph expansion a query may request.
	MaxLinkDepth = 2

	// DefaultTopK is the result count when the query does not set one.
	DefaultTopK = 10

	// DefaultDiversityLambda balances relevance against diversity in the
	// final selection. 1.0 is pure relevance.
	DefaultDiversityLambda = 0.7

	// DefaultMaxLinks bounds how many neighbors each hit contributes.
	DefaultMaxLinks = 5

	// depthTwoDecay discounts second-hop candidates for the lower
	// confidence of transitive relevance.
	depthTwoDecay = 0.5
)

// Query describes one hybrid retrieval.
type Query struct {
	// Embedding is the query vector (required).
	Embedding []float64

	// TopK is how many notes to return (default: 10).
	TopK int

	// LinkDepth is how many graph hops to expand: 0 disables graph
	// traversal, 1 adds immediate neighbors, 2 adds their neighbors.
	// Depth beyond 2 fails with ErrDepthLimit.
	LinkDepth int

	// DiversityLambda weights relevance against redundancy during
	// selection, in [0, 1] (default: 0.7).
	DiversityLambda float64

	// MaxLinks bounds neighbor expansion per hit (default: 5).
	MaxLinks int

	// MinWeight drops edges below this weight during expansion.
	MinWeight float64

	// Filter is an optional CEL expression over the candidate note's
	// content, description, tags, and keywords. Candidates where it
	// evaluates false are excluded.
	//
	//	tags.exists(t, t == "incident") && content.contains("retry")
	Filter string
}

// withDefaults fills unset fields. A zero DiversityLambda means unset.
func (q Query) withDefaults() Query {
	if q.TopK <= 0 {
		q.TopK = DefaultTopK
	}
	if q.DiversityLambda == 0 {
		q.DiversityLambda = DefaultDiversityLambda
	}
	if q.MaxLinks <= 0 {
		q.MaxLinks = DefaultMaxLinks
	}
	return q
}

// Validate checks the query after defaults are applied.
func (q Query) Validate() error {
	if len(q.Embedding) == 0 {
		return fmt.Errorf("%w: embedding is required", ErrInvalidQuery)
	}
	if q.LinkDepth < 0 {
		return fmt.Errorf("%w: negative link depth", ErrInvalidQuery)
	}
	if q.LinkDepth > MaxLinkDepth {
		return fmt.Errorf("%w: requested depth %d", ErrDepthLimit, q.LinkDepth)
	}
	if q.DiversityLambda < 0 || q.DiversityLambda > 1 {
		return fmt.Errorf("%w: diversity lambda %v out of range [0, 1]", ErrInvalidQuery, q.DiversityLambda)
	}
	return nil
}
