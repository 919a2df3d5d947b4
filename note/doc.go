// Package note provides content-addressed persistence for atomic memory
// units.
//
// A note's identity is derived from its embedding bytes (see ComputeID), so
// ingesting identical content twice collapses to the same stored note. The
// insert-if-absent contract holds under concurrent duplicate ingestion.
//
// Annotation fields (keywords, tags, description) are mutable and refreshed
// over time; they never affect identity. Changing the description marks the
// note dirty because the description participates in the embedding payload,
// signaling that the vector-index entry is stale until an explicit re-index.
//
// Notes are never deleted, only archived when their retention drops below the
// configured threshold. Archived notes are invisible to normal reads and to
// retrieval, but remain accessible through GetAny.
package note
