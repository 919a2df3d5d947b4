package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/zero-day-ai/engram/classify"
	"github.com/zero-day-ai/engram/graph"
	"github.com/zero-day-ai/engram/note"
	"github.com/zero-day-ai/engram/queue"
	"github.com/zero-day-ai/engram/telemetry"
	"github.com/zero-day-ai/engram/vector"
)

const (
	// DefaultTopK is how many similar notes are examined per discovery run.
	DefaultTopK = 10

	// DefaultAcceptThreshold is the minimum classification confidence for
	// an edge to be written.
	DefaultAcceptThreshold = 0.65
)

// Config wires a discovery engine to its stores and providers.
type Config struct {
	// Notes, Graph, and Index are the engine's storage (required).
	Notes note.Store
	Graph graph.Store
	Index vector.Index

	// Classifier decides the relation for each candidate pair (required).
	Classifier classify.Provider

	// Fallback takes over for the remainder of a run after the classifier
	// fails. Defaults to a similarity-only provider that writes no edges.
	Fallback classify.Provider

	// Tasks receives metadata-refresh tasks for notes touched by new
	// edges. Optional; nil disables refresh enqueueing.
	Tasks queue.Queue

	// TopK is how many similar notes are examined (default: 10, sensible
	// values run 8 to 15).
	TopK int

	// AcceptThreshold is the minimum confidence for writing an edge
	// (default: 0.65).
	AcceptThreshold float64

	// Telemetry records discovery metrics. Optional.
	Telemetry *telemetry.Telemetry

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Report summarizes one discovery run.
type Report struct {
	// NoteID is the note the run examined candidates for.
	NoteID string

	// Examined counts candidate pairs that reached classification.
	Examined int

	// Accepted counts pairs that produced at least one edge.
	Accepted int

	// Rejected counts pairs filtered out by confidence or relation.
	Rejected int

	// Degraded is true when the classifier failed and the run switched to
	// the similarity-only fallback.
	Degraded bool

	// Edges lists every edge written, mirrors included.
	Edges []graph.Edge
}

// Engine finds and classifies relationships for freshly ingested notes.
//
// A run never fails the note it serves: candidate-level problems are
// skipped, and classifier outages degrade the run to similarity-only
// linking. Only storage errors propagate, so the queue worker can retry.
type Engine struct {
	notes      note.Store
	graph      graph.Store
	index      vector.Index
	classifier classify.Provider
	fallback   classify.Provider
	tasks      queue.Queue

	topK      int
	threshold float64
	telemetry *telemetry.Telemetry
	logger    *slog.Logger
}

// NewEngine creates a discovery engine from the config.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Notes == nil {
		return nil, fmt.Errorf("discovery.Config.Notes is required")
	}
	if cfg.Graph == nil {
		return nil, fmt.Errorf("discovery.Config.Graph is required")
	}
	if cfg.Index == nil {
		return nil, fmt.Errorf("discovery.Config.Index is required")
	}
	if cfg.Classifier == nil {
		return nil, fmt.Errorf("discovery.Config.Classifier is required")
	}

	fallback := cfg.Fallback
	if fallback == nil {
		fallback = classify.NewSimilarityProvider()
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	threshold := cfg.AcceptThreshold
	if threshold <= 0 {
		threshold = DefaultAcceptThreshold
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		notes:      cfg.Notes,
		graph:      cfg.Graph,
		index:      cfg.Index,
		classifier: cfg.Classifier,
		fallback:   fallback,
		tasks:      cfg.Tasks,
		topK:       topK,
		threshold:  threshold,
		telemetry:  cfg.Telemetry,
		logger:     logger,
	}, nil
}

// Discover examines the note's nearest neighbors, classifies each pair,
// and writes weighted edges for accepted relations. Notes touched by a new
// edge get a metadata-refresh task enqueued.
func (e *Engine) Discover(ctx context.Context, noteID string) (*Report, error) {
	ctx, span := e.telemetry.StartSpan(ctx, "engram.discover")
	defer span.End()

	report := &Report{NoteID: noteID}

	subject, err := e.notes.Get(ctx, noteID)
	if err != nil {
		if errors.Is(err, note.ErrNotFound) {
			// The note was archived or removed before the task ran.
			e.logger.Debug("skipping discovery, note gone", "note_id", noteID)
			return report, nil
		}
		return nil, fmt.Errorf("load note for discovery: %w", err)
	}

	// One extra result because the note itself is in the index.
	matches, err := e.index.Search(ctx, subject.Embedding, e.topK+1)
	if err != nil {
		return nil, fmt.Errorf("candidate search: %w", err)
	}

	provider := e.classifier
	touched := make(map[string]bool)

	for _, match := range matches {
		if match.ID == noteID {
			continue
		}
		if report.Examined >= e.topK {
			break
		}

		candidate, err := e.notes.Get(ctx, match.ID)
		if err != nil {
			if errors.Is(err, note.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("load candidate %s: %w", match.ID, err)
		}
		report.Examined++

		decision, err := provider.ClassifyRelation(ctx, subject.Content, candidate.Content, match.Similarity)
		if err != nil && !report.Degraded {
			// First classifier failure: degrade to similarity-only for
			// the rest of the run, re-trying this candidate with it.
			e.logger.Warn("classification degraded to similarity-only",
				"note_id", noteID,
				"error", err,
			)
			report.Degraded = true
			provider = e.fallback
			decision, err = provider.ClassifyRelation(ctx, subject.Content, candidate.Content, match.Similarity)
		}
		if err != nil {
			e.logger.Warn("skipping candidate, classification failed",
				"note_id", noteID,
				"candidate_id", match.ID,
				"error", err,
			)
			report.Rejected++
			e.telemetry.RecordLinkRejected(ctx, "provider_error")
			continue
		}

		if decision.Relation == graph.RelationUnrelated {
			report.Rejected++
			e.telemetry.RecordLinkRejected(ctx, "unrelated")
			continue
		}
		if decision.Confidence < e.threshold {
			report.Rejected++
			e.telemetry.RecordLinkRejected(ctx, "low_confidence")
			continue
		}

		edges, err := e.writeEdges(ctx, noteID, candidate.ID, match.Similarity, decision)
		if err != nil {
			return nil, err
		}

		report.Accepted++
		report.Edges = append(report.Edges, edges...)
		touched[noteID] = true
		touched[candidate.ID] = true
		e.telemetry.RecordLinkAccepted(ctx, decision.Relation.String())
	}

	e.enqueueRefresh(ctx, touched)

	e.logger.Debug("discovery run complete",
		"note_id", noteID,
		"examined", report.Examined,
		"accepted", report.Accepted,
		"rejected", report.Rejected,
		"degraded", report.Degraded,
	)
	return report, nil
}

// writeEdges computes the weight and upserts the edge, plus its mirror for
// non-directional relations.
func (e *Engine) writeEdges(ctx context.Context, sourceID, targetID string, similarity float64, decision classify.Decision) ([]graph.Edge, error) {
	freshness, err := e.graph.RecencyBoost(ctx, sourceID, targetID)
	if err != nil {
		e.logger.Warn("recency lookup failed, assuming first contact",
			"source", sourceID, "target", targetID, "error", err)
		freshness = 1.0
	}

	weight := decision.Confidence * clamp01(similarity) * freshness

	forward := graph.Edge{
		Source:    sourceID,
		Target:    targetID,
		Relation:  decision.Relation,
		Weight:    weight,
		Rationale: decision.Rationale,
	}
	if err := e.graph.UpsertEdge(ctx, forward); err != nil {
		return nil, fmt.Errorf("write edge %s -> %s: %w", sourceID, targetID, err)
	}
	edges := []graph.Edge{forward}

	if !decision.Relation.Directional() {
		mirror := graph.Edge{
			Source:    targetID,
			Target:    sourceID,
			Relation:  decision.Relation,
			Weight:    weight,
			Rationale: decision.Rationale,
			Mirror:    true,
		}
		if err := e.graph.UpsertEdge(ctx, mirror); err != nil {
			return nil, fmt.Errorf("write mirror edge %s -> %s: %w", targetID, sourceID, err)
		}
		edges = append(edges, mirror)
	}

	return edges, nil
}

// enqueueRefresh schedules metadata refresh for every note a new edge
// touched. Failures are logged, never propagated: refresh is advisory.
func (e *Engine) enqueueRefresh(ctx context.Context, touched map[string]bool) {
	if e.tasks == nil || len(touched) == 0 {
		return
	}
	for id := range touched {
		task := queue.NewTask(queue.KindMetadataRefresh, id)
		if err := e.tasks.Enqueue(ctx, task); err != nil {
			e.logger.Warn("failed to enqueue metadata refresh",
				"note_id", id, "error", err)
		}
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
