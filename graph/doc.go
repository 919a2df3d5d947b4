// Package graph provides adjacency storage for typed, weighted relationships
// between memory notes.
//
// Relationships use a closed vocabulary (see Relation). Directional relations
// (refutes, predecessor, successor) produce a single edge; all other accepted
// relations produce a mirrored pair with equal weight, so traversal sees the
// relationship from both endpoints.
//
// Edges are idempotent on the key (source, target, relation): re-discovery of
// a known relationship updates weight and rationale via upsert rather than
// duplicating the edge.
//
// Example:
//
//	store := graph.NewMemoryStore()
//	err := store.UpsertEdge(ctx, graph.Edge{
//	    Source:    "note:abc",
//	    Target:    "note:def",
//	    Relation:  graph.RelationSupports,
//	    Weight:    0.72,
//	    Rationale: "both describe the retry policy",
//	})
//
//	edges, err := store.Neighbors(ctx, "note:abc", 5, 0.1)
package graph
