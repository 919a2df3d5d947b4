package retrieval

import "errors"

// Common errors returned by the retriever.
var (
	// ErrDepthLimit indicates a query asked for link expansion beyond two
	// hops. Neighbor fan-out grows combinatorially past that, so deeper
	// traversal is refused rather than attempted.
	//
	// Example:
	//
	//	_, err := r.Search(ctx, retrieval.Query{LinkDepth: 3})
	//	if errors.Is(err, retrieval.ErrDepthLimit) {
	//		// clamp the request to depth 2 and retry
	//	}
	ErrDepthLimit = errors.New("link depth beyond 2 is not supported")

	// ErrInvalidQuery indicates a malformed query, such as a missing
	// embedding or an out-of-range diversity lambda.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrInvalidFilter indicates the query's filter expression failed to
	// compile or did not evaluate to a boolean.
	ErrInvalidFilter = errors.New("invalid filter expression")
)
