package graph

import "errors"

// Sentinel errors for graph store operations.
// These errors can be used with errors.Is() for error checking.
var (
	// ErrInvalidEdge indicates that an edge failed validation before
	// persistence. This can occur when:
	//   - Source or target id is empty
	//   - Source equals target (self-edge)
	//   - The relation is outside the closed vocabulary
	//   - The relation is unrelated (never persisted)
	//   - The weight is outside [0,1]
	//
	// Example:
	//
	//	err := store.UpsertEdge(ctx, edge)
	//	if errors.Is(err, graph.ErrInvalidEdge) {
	//	    logger.Warn("discarding malformed edge", "error", err)
	//	}
	ErrInvalidEdge = errors.New("graph: invalid edge")
)
