// Package retrieval answers memory queries by combining vector similarity
// with graph traversal.
//
// # Pipeline
//
// A search runs three phases:
//
//  1. Vector search returns the TopK most similar notes to the query
//     embedding, tagged with provenance "vector".
//  2. With LinkDepth >= 1, each hit's strongest outgoing edges pull in
//     neighbors, scored as hit score times edge weight and tagged
//     "graph_depth_1". LinkDepth 2 repeats once more with the score
//     halved, tagged "graph_depth_2". Deeper traversal fails with
//     ErrDepthLimit. A visited set keeps cyclic graphs from looping and
//     gives re-reachable notes their first, shallowest provenance.
//  3. The merged candidates pass through maximal-marginal-relevance
//     selection: each round keeps the candidate with the best blend of
//     relevance and novelty relative to what is already selected. Score
//     ties resolve by earliest creation time, which keeps result order
//     deterministic.
//
// # Filters
//
// Queries may carry a CEL expression evaluated per candidate over its
// content, description, tags, and keywords:
//
//	result, err := r.Search(ctx, retrieval.Query{
//		Embedding: emb,
//		Filter:    `tags.exists(t, t == "incident")`,
//	})
//
// Filtered notes are excluded entirely, including from expansion.
package retrieval
