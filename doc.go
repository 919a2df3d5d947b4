// Package engram implements an agentic memory engine: a unified store that
// persists interaction notes keyed by content-derived identity, discovers
// typed relationships between notes, models retention decay, and answers
// queries through hybrid vector+graph retrieval with bounded iterative
// reasoning.
//
// # Core Concepts
//
// The engine is organized around several key concepts:
//
//   - Notes: atomic memory units with content, an embedding vector, and
//     mutable annotations. Identity is a hash over the embedding bytes, so
//     re-ingesting identical content collapses to one stored note.
//   - Edges: typed, weighted relationships between notes, discovered
//     automatically by classifying similar pairs.
//   - Decay: a forgetting-curve model. Unused notes fade toward archival;
//     retrieved notes are reinforced and resist decay longer.
//   - Hybrid retrieval: vector similarity seeds, bounded graph expansion,
//     and diversity-aware selection.
//   - Reasoning sessions: a bounded search/inject loop that lets a model
//     pull memories mid-generation under a hard search budget.
//
// # Architecture
//
// The engine is a library boundary, not a network service. It consumes
// three narrow capability interfaces, each substitutable:
//
//   - embed.Provider turns text into fixed-dimension vectors
//   - classify.Provider decides the relation between two notes
//   - vector.Index answers nearest-neighbor queries
//
// Storage defaults to in-memory implementations; the sqlite package
// provides a persistent backend behind the same interfaces. Link discovery
// and metadata refresh run on a background worker fed by a per-engine task
// queue, so ingestion stays synchronous and fast.
//
// # Getting Started
//
// Create an engine, ingest a few notes, and search:
//
//	eng, err := engram.New(
//	    engram.WithEmbedder(myEmbedder),
//	    engram.WithClassifier(myClassifier),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Shutdown(context.Background())
//
//	id, err := eng.Ingest(ctx, engram.IngestRequest{
//	    Content: "karma yoga is the path of selfless action",
//	    Tags:    []string{"philosophy"},
//	})
//
//	result, err := eng.Search(ctx, engram.SearchRequest{
//	    Text:      "paths of yoga",
//	    LinkDepth: 1,
//	})
//
// See the examples directory for complete runnable programs.
package engram
