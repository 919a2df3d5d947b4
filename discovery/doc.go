// Package discovery builds the knowledge graph: after a note is ingested,
// it finds the note's nearest neighbors in embedding space, asks a
// classification provider what relationship each pair holds, and writes
// weighted edges for the decisions that clear the acceptance threshold.
//
// # Weights
//
// An accepted edge's weight multiplies three signals:
//
//	weight = confidence × similarity × freshness
//
// confidence comes from the classifier, similarity from the vector index,
// and freshness from the graph store's recency boost for the pair (1.0 on
// first contact, decaying for pairs that interacted recently).
//
// # Direction
//
// refutes, predecessor, and successor are directional and produce a single
// edge from the new note to the candidate. All other accepted relations
// are symmetric: the engine writes a mirrored pair with equal weight, the
// reverse edge flagged as a mirror.
//
// # Degradation
//
// Classification is best-effort. The first provider failure in a run
// (including malformed decisions) flips the run to the similarity-only
// fallback for its remaining candidates and marks the report degraded.
// Ingestion never fails because discovery had a bad day; only storage
// errors propagate, letting the queue worker retry the run.
package discovery
