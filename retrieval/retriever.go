package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/zero-day-ai/engram/graph"
	"github.com/zero-day-ai/engram/note"
	"github.com/zero-day-ai/engram/telemetry"
	"github.com/zero-day-ai/engram/vector"
)

// Provenance records how a candidate entered the result set.
type Provenance string

const (
	// ProvenanceVector marks direct vector-search hits.
	ProvenanceVector Provenance = "vector"

	// ProvenanceGraphDepth1 marks immediate neighbors of a hit.
	ProvenanceGraphDepth1 Provenance = "graph_depth_1"

	// ProvenanceGraphDepth2 marks neighbors of neighbors.
	ProvenanceGraphDepth2 Provenance = "graph_depth_2"
)

// Item is one retrieved note with its scoring context.
type Item struct {
	// Note is the retrieved note.
	Note *note.Note

	// Score is the relevance used during selection: vector similarity for
	// direct hits, discounted along edges for graph finds.
	Score float64

	// Provenance tells which phase surfaced the note.
	Provenance Provenance

	// Relation is the edge type that pulled the note in. Empty for vector
	// hits.
	Relation graph.Relation

	// Via is the note the edge was followed from. Empty for vector hits.
	Via string

	// Selected reports whether diversity selection kept the note.
	Selected bool
}

// Result is the outcome of one search.
type Result struct {
	// Items are the selected notes in selection order.
	Items []Item

	// Candidates is every distinct note considered, in discovery order,
	// with Selected marking which ones diversity selection kept. Callers
	// auditing the selection can inspect the rejects here.
	Candidates []Item
}

// NoteSource supplies notes during retrieval. Implementations must treat
// archived notes as absent. note.Store satisfies this.
type NoteSource interface {
	Get(ctx context.Context, id string) (*note.Note, error)
}

// Config wires a Retriever to its stores.
type Config struct {
	// Index is the vector search backend (required).
	Index vector.Index

	// Graph supplies typed edges for expansion (required).
	Graph graph.Store

	// Source resolves candidate ids to notes (required).
	Source NoteSource

	// Telemetry records search metrics. Optional.
	Telemetry *telemetry.Telemetry

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Retriever answers hybrid queries: vector similarity seeded, graph
// expanded, diversity selected.
type Retriever struct {
	index     vector.Index
	graph     graph.Store
	source    NoteSource
	telemetry *telemetry.Telemetry
	logger    *slog.Logger
}

// New creates a Retriever from the config.
func New(cfg Config) (*Retriever, error) {
	if cfg.Index == nil {
		return nil, fmt.Errorf("retrieval.Config.Index is required")
	}
	if cfg.Graph == nil {
		return nil, fmt.Errorf("retrieval.Config.Graph is required")
	}
	if cfg.Source == nil {
		return nil, fmt.Errorf("retrieval.Config.Source is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		index:     cfg.Index,
		graph:     cfg.Graph,
		source:    cfg.Source,
		telemetry: cfg.Telemetry,
		logger:    logger,
	}, nil
}

// Search runs the hybrid pipeline for one query.
//
// Vector search supplies the seed hits. LinkDepth >= 1 expands each hit's
// strongest neighbors; depth 2 expands one hop further with the score
// discounted by half. A note reached through multiple paths keeps its
// first, shallowest provenance. The merged candidates then pass through
// maximal-marginal-relevance selection down to TopK.
func (r *Retriever) Search(ctx context.Context, q Query) (*Result, error) {
	q = q.withDefaults()
	if err := q.Validate(); err != nil {
		return nil, err
	}

	filter, err := CompileFilter(q.Filter)
	if err != nil {
		return nil, err
	}

	ctx, span := r.telemetry.StartSpan(ctx, "engram.search",
		attribute.Int("top_k", q.TopK),
		attribute.Int("link_depth", q.LinkDepth),
	)
	defer span.End()
	start := time.Now()

	visited := make(map[string]bool)
	var candidates []Item

	// Phase 1: vector seeds.
	matches, err := r.index.Search(ctx, q.Embedding, q.TopK)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	var frontier []Item
	for _, match := range matches {
		item, ok, err := r.admit(ctx, filter, visited, match.ID, Item{
			Score:      match.Similarity,
			Provenance: ProvenanceVector,
		})
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		candidates = append(candidates, item)
		frontier = append(frontier, item)
	}

	// Phase 2: graph expansion, one depth at a time.
	for depth := 1; depth <= q.LinkDepth; depth++ {
		provenance := ProvenanceGraphDepth1
		decay := 1.0
		if depth == 2 {
			provenance = ProvenanceGraphDepth2
			decay = depthTwoDecay
		}

		var next []Item
		for _, parent := range frontier {
			edges, err := r.graph.Neighbors(ctx, parent.Note.ID, q.MaxLinks, q.MinWeight)
			if err != nil {
				return nil, fmt.Errorf("expand %s: %w", parent.Note.ID, err)
			}
			for _, edge := range edges {
				item, ok, err := r.admit(ctx, filter, visited, edge.Target, Item{
					Score:      parent.Score * edge.Weight * decay,
					Provenance: provenance,
					Relation:   edge.Relation,
					Via:        parent.Note.ID,
				})
				if err != nil {
					return nil, err
				}
				if !ok {
					continue
				}
				candidates = append(candidates, item)
				next = append(next, item)
			}
		}
		frontier = next
	}

	result := &Result{
		Items:      selectDiverse(candidates, q.TopK, q.DiversityLambda),
		Candidates: candidates,
	}

	r.telemetry.RecordSearchDuration(ctx, time.Since(start), q.LinkDepth)
	r.logger.Debug("search complete",
		"candidates", len(result.Candidates),
		"selected", len(result.Items),
		"link_depth", q.LinkDepth,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// admit resolves an id to a note and applies the visited set and filter.
// The bool is false when the candidate is skipped.
func (r *Retriever) admit(ctx context.Context, filter *Filter, visited map[string]bool, id string, item Item) (Item, bool, error) {
	if visited[id] {
		return Item{}, false, nil
	}
	visited[id] = true

	n, err := r.source.Get(ctx, id)
	if err != nil {
		if errors.Is(err, note.ErrNotFound) {
			return Item{}, false, nil
		}
		return Item{}, false, fmt.Errorf("load candidate %s: %w", id, err)
	}

	matched, err := filter.Matches(n)
	if err != nil {
		return Item{}, false, err
	}
	if !matched {
		return Item{}, false, nil
	}

	item.Note = n
	return item, true, nil
}
