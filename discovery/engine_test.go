package discovery

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/engram/classify"
	"github.com/zero-day-ai/engram/graph"
	"github.com/zero-day-ai/engram/note"
	"github.com/zero-day-ai/engram/queue"
	"github.com/zero-day-ai/engram/vector"
)

// stubClassifier returns a fixed decision or error for every pair.
type stubClassifier struct {
	decision classify.Decision
	err      error
	calls    int
}

func (s *stubClassifier) ClassifyRelation(ctx context.Context, source, target string, similarity float64) (classify.Decision, error) {
	s.calls++
	if s.err != nil {
		return classify.Decision{}, s.err
	}
	d := s.decision
	if d.Rationale == "" {
		d.Rationale = "stub rationale"
	}
	return d, nil
}

type fixture struct {
	notes *note.MemoryStore
	graph *graph.MemoryStore
	index *vector.MemoryIndex
	tasks *queue.ChannelQueue
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		notes: note.NewMemoryStore(),
		graph: graph.NewMemoryStore(),
		index: vector.NewMemoryIndex(),
		tasks: queue.NewChannelQueue(64),
	}
	t.Cleanup(func() { _ = f.tasks.Close() })
	return f
}

func (f *fixture) engine(t *testing.T, classifier classify.Provider, fallback classify.Provider) *Engine {
	t.Helper()
	eng, err := NewEngine(Config{
		Notes:      f.notes,
		Graph:      f.graph,
		Index:      f.index,
		Classifier: classifier,
		Fallback:   fallback,
		Tasks:      f.tasks,
	})
	require.NoError(t, err)
	return eng
}

func (f *fixture) addNote(t *testing.T, content string, embedding []float64) string {
	t.Helper()
	ctx := context.Background()

	n := &note.Note{
		ID:        note.ComputeID(embedding),
		Content:   content,
		Embedding: embedding,
	}
	id, _, err := f.notes.Insert(ctx, n)
	require.NoError(t, err)
	require.NoError(t, f.index.Upsert(ctx, id, embedding, nil))
	return id
}

func TestDiscoverWritesMirroredEdges(t *testing.T) {
	f := newFixture(t)
	classifier := &stubClassifier{decision: classify.Decision{
		Relation:   graph.RelationSupports,
		Confidence: 0.9,
		Rationale:  "shared claim",
	}}
	eng := f.engine(t, classifier, nil)

	ctx := context.Background()
	a := f.addNote(t, "retry with backoff", []float64{1, 0, 0})
	b := f.addNote(t, "backoff avoids thundering herds", []float64{0.8, 0.6, 0})

	report, err := eng.Discover(ctx, a)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Examined)
	assert.Equal(t, 1, report.Accepted)
	assert.False(t, report.Degraded)
	require.Len(t, report.Edges, 2)

	// weight = confidence x similarity x freshness = 0.9 x 0.8 x 1.0
	wantWeight := 0.9 * 0.8

	forward, err := f.graph.Neighbors(ctx, a, 0, 0)
	require.NoError(t, err)
	require.Len(t, forward, 1)
	assert.Equal(t, b, forward[0].Target)
	assert.Equal(t, graph.RelationSupports, forward[0].Relation)
	assert.InDelta(t, wantWeight, forward[0].Weight, 1e-9)
	assert.False(t, forward[0].Mirror)

	reverse, err := f.graph.Neighbors(ctx, b, 0, 0)
	require.NoError(t, err)
	require.Len(t, reverse, 1)
	assert.Equal(t, a, reverse[0].Target)
	assert.InDelta(t, wantWeight, reverse[0].Weight, 1e-9)
	assert.True(t, reverse[0].Mirror)
}

func TestDiscoverRejectsLowConfidence(t *testing.T) {
	f := newFixture(t)
	classifier := &stubClassifier{decision: classify.Decision{
		Relation:   graph.RelationSupports,
		Confidence: 0.40,
	}}
	eng := f.engine(t, classifier, nil)

	ctx := context.Background()
	a := f.addNote(t, "note a", []float64{1, 0, 0})
	f.addNote(t, "note b", []float64{0.9, 0.1, 0})

	report, err := eng.Discover(ctx, a)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Examined)
	assert.Equal(t, 0, report.Accepted)
	assert.Equal(t, 1, report.Rejected)
	assert.Equal(t, 0, f.graph.Len())
}

func TestDiscoverDirectionalRelationSingleEdge(t *testing.T) {
	f := newFixture(t)
	classifier := &stubClassifier{decision: classify.Decision{
		Relation:   graph.RelationRefutes,
		Confidence: 0.95,
		Rationale:  "newer measurement invalidates the old one",
	}}
	eng := f.engine(t, classifier, nil)

	ctx := context.Background()
	a := f.addNote(t, "the cache hit rate is 40%", []float64{1, 0, 0})
	b := f.addNote(t, "the cache hit rate is 90%", []float64{0.7, 0.7, 0.14})

	report, err := eng.Discover(ctx, a)
	require.NoError(t, err)
	require.Len(t, report.Edges, 1)

	forward, err := f.graph.Neighbors(ctx, a, 0, 0)
	require.NoError(t, err)
	require.Len(t, forward, 1)
	assert.Equal(t, graph.RelationRefutes, forward[0].Relation)

	reverse, err := f.graph.Neighbors(ctx, b, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, reverse)
}

func TestDiscoverSkipsUnrelatedDecisions(t *testing.T) {
	f := newFixture(t)
	classifier := &stubClassifier{decision: classify.Decision{
		Relation:   graph.RelationUnrelated,
		Confidence: 0.99,
	}}
	eng := f.engine(t, classifier, nil)

	ctx := context.Background()
	a := f.addNote(t, "note a", []float64{1, 0, 0})
	f.addNote(t, "note b", []float64{0.9, 0.43, 0})

	report, err := eng.Discover(ctx, a)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Rejected)
	assert.Equal(t, 0, f.graph.Len())
}

func TestDiscoverDegradesToFallback(t *testing.T) {
	f := newFixture(t)
	classifier := &stubClassifier{err: errors.New("model endpoint down")}
	fallback := &classify.SimilarityProvider{
		Threshold: 0.5,
		Relation:  graph.RelationSupports,
	}
	eng := f.engine(t, classifier, fallback)

	ctx := context.Background()
	a := f.addNote(t, "note a", []float64{1, 0, 0})
	b := f.addNote(t, "note b", []float64{0.8, 0.6, 0})

	report, err := eng.Discover(ctx, a)
	require.NoError(t, err)

	assert.True(t, report.Degraded)
	assert.Equal(t, 1, report.Accepted)
	// The failing classifier was only consulted once.
	assert.Equal(t, 1, classifier.calls)

	forward, err := f.graph.Neighbors(ctx, a, 0, 0)
	require.NoError(t, err)
	require.Len(t, forward, 1)
	assert.Equal(t, b, forward[0].Target)
	assert.Equal(t, graph.RelationSupports, forward[0].Relation)
	// Fallback confidence equals similarity: weight = 0.8 x 0.8 x 1.0.
	assert.InDelta(t, 0.64, forward[0].Weight, 1e-9)
}

func TestDiscoverDegradedDefaultFallbackWritesNothing(t *testing.T) {
	f := newFixture(t)
	classifier := &stubClassifier{err: fmt.Errorf("bad decision: %w", classify.ErrInvalidDecision)}
	eng := f.engine(t, classifier, nil)

	ctx := context.Background()
	a := f.addNote(t, "note a", []float64{1, 0, 0})
	f.addNote(t, "note b", []float64{0.8, 0.6, 0})

	report, err := eng.Discover(ctx, a)
	require.NoError(t, err)

	assert.True(t, report.Degraded)
	assert.Equal(t, 0, report.Accepted)
	assert.Equal(t, 0, f.graph.Len())
}

func TestDiscoverEnqueuesMetadataRefresh(t *testing.T) {
	f := newFixture(t)
	classifier := &stubClassifier{decision: classify.Decision{
		Relation:   graph.RelationElaborates,
		Confidence: 0.8,
	}}
	eng := f.engine(t, classifier, nil)

	ctx := context.Background()
	a := f.addNote(t, "note a", []float64{1, 0, 0})
	b := f.addNote(t, "note b", []float64{0.8, 0.6, 0})

	_, err := eng.Discover(ctx, a)
	require.NoError(t, err)

	n, err := f.tasks.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		task, err := f.tasks.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, queue.KindMetadataRefresh, task.Kind)
		seen[task.NoteID] = true
	}
	assert.True(t, seen[a])
	assert.True(t, seen[b])
}

func TestDiscoverNoRefreshWhenNothingAccepted(t *testing.T) {
	f := newFixture(t)
	classifier := &stubClassifier{decision: classify.Decision{
		Relation:   graph.RelationSupports,
		Confidence: 0.2,
	}}
	eng := f.engine(t, classifier, nil)

	ctx := context.Background()
	a := f.addNote(t, "note a", []float64{1, 0, 0})
	f.addNote(t, "note b", []float64{0.8, 0.6, 0})

	_, err := eng.Discover(ctx, a)
	require.NoError(t, err)

	n, err := f.tasks.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestDiscoverMissingNoteIsNoOp(t *testing.T) {
	f := newFixture(t)
	eng := f.engine(t, &stubClassifier{}, nil)

	report, err := eng.Discover(context.Background(), "note:missing")
	require.NoError(t, err)
	assert.Equal(t, 0, report.Examined)
	assert.Empty(t, report.Edges)
}

func TestDiscoverReevaluationUsesRecency(t *testing.T) {
	f := newFixture(t)

	base := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	f.graph.SetClock(func() time.Time { return base })

	classifier := &stubClassifier{decision: classify.Decision{
		Relation:   graph.RelationSupports,
		Confidence: 1.0,
	}}
	eng := f.engine(t, classifier, nil)

	ctx := context.Background()
	a := f.addNote(t, "note a", []float64{1, 0, 0})
	f.addNote(t, "note b", []float64{0.8, 0.6, 0})

	_, err := eng.Discover(ctx, a)
	require.NoError(t, err)

	edges, err := f.graph.Neighbors(ctx, a, 0, 0)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.InDelta(t, 0.8, edges[0].Weight, 1e-9)

	// One half-life later, re-running discovery halves the freshness.
	f.graph.SetClock(func() time.Time { return base.Add(7 * 24 * time.Hour) })

	_, err = eng.Discover(ctx, a)
	require.NoError(t, err)

	edges, err = f.graph.Neighbors(ctx, a, 0, 0)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.InDelta(t, 0.8*0.5, edges[0].Weight, 1e-6)
	// The original discovery time survives the re-write.
	assert.Equal(t, base, edges[0].CreatedAt)
}

func TestDiscoverSkipsArchivedCandidates(t *testing.T) {
	f := newFixture(t)
	classifier := &stubClassifier{decision: classify.Decision{
		Relation:   graph.RelationSupports,
		Confidence: 0.9,
	}}
	eng := f.engine(t, classifier, nil)

	ctx := context.Background()
	a := f.addNote(t, "note a", []float64{1, 0, 0})
	b := f.addNote(t, "note b", []float64{0.8, 0.6, 0})
	require.NoError(t, f.notes.Archive(ctx, b))

	report, err := eng.Discover(ctx, a)
	require.NoError(t, err)

	assert.Equal(t, 0, report.Examined)
	assert.Equal(t, 0, f.graph.Len())
}

func TestDiscoverWeightNeverExceedsSimilarityClamp(t *testing.T) {
	f := newFixture(t)
	classifier := &stubClassifier{decision: classify.Decision{
		Relation:   graph.RelationSupports,
		Confidence: 1.0,
	}}
	eng := f.engine(t, classifier, nil)

	ctx := context.Background()
	a := f.addNote(t, "note a", []float64{1, 0, 0})
	f.addNote(t, "note b", []float64{1, 1e-9, 0})

	_, err := eng.Discover(ctx, a)
	require.NoError(t, err)

	edges, err := f.graph.Neighbors(ctx, a, 0, 0)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.LessOrEqual(t, edges[0].Weight, 1.0)
	assert.True(t, math.Abs(edges[0].Weight-1.0) < 1e-6)
}

func TestNewEngineValidatesConfig(t *testing.T) {
	f := newFixture(t)

	_, err := NewEngine(Config{Graph: f.graph, Index: f.index, Classifier: &stubClassifier{}})
	assert.Error(t, err)

	_, err = NewEngine(Config{Notes: f.notes, Index: f.index, Classifier: &stubClassifier{}})
	assert.Error(t, err)

	_, err = NewEngine(Config{Notes: f.notes, Graph: f.graph, Classifier: &stubClassifier{}})
	assert.Error(t, err)

	_, err = NewEngine(Config{Notes: f.notes, Graph: f.graph, Index: f.index})
	assert.Error(t, err)
}
