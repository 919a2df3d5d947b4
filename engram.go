package engram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/zero-day-ai/engram/classify"
	"github.com/zero-day-ai/engram/config"
	"github.com/zero-day-ai/engram/decay"
	"github.com/zero-day-ai/engram/discovery"
	"github.com/zero-day-ai/engram/embed"
	"github.com/zero-day-ai/engram/graph"
	"github.com/zero-day-ai/engram/note"
	"github.com/zero-day-ai/engram/queue"
	"github.com/zero-day-ai/engram/reason"
	"github.com/zero-day-ai/engram/retrieval"
	"github.com/zero-day-ai/engram/sqlite"
	"github.com/zero-day-ai/engram/telemetry"
	"github.com/zero-day-ai/engram/vector"
)

// embedAttempts bounds the retry loop around a down embedding provider at
// the ingestion boundary. Ingestion cannot proceed without a vector, so
// transient failures are retried with backoff before giving up.
const embedAttempts = 3

// reasonReinforceQuality is the quality factor applied when a reasoning
// session injects a note's content into its context. Deliberate caller
// reinforcement through Reinforce can signal stronger use.
const reasonReinforceQuality = 0.5

// Engine is the memory engine facade: content-addressed note storage,
// automatic link discovery, retention decay, hybrid retrieval, and
// bounded iterative reasoning behind one handle.
//
// All methods are safe for concurrent use. Ingestion is synchronous;
// link discovery and metadata refresh run on a background worker, so a
// just-ingested note may briefly miss graph-expanded search results.
//
// Example:
//
//	eng, err := engram.New(
//	    engram.WithLogger(logger),
//	    engram.WithConfig("/path/to/engram.yaml"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Shutdown(context.Background())
type Engine struct {
	cfg    *config.Config
	logger *slog.Logger
	tel    *telemetry.Telemetry
	clock  func() time.Time

	embedder   embed.Provider
	dimension  int
	maxContent int

	notes      note.Store
	graph      graph.Store
	decayStore decay.Store
	manager    *decay.Manager
	index      vector.Index

	tasks  queue.Queue
	worker *queue.Worker
	disc   *discovery.Engine
	retr   *retrieval.Retriever
	ctrl   *reason.Controller

	db     *sqlite.DB
	closed atomic.Bool
}

// New creates an Engine. With zero options it runs fully in memory with
// an in-process task queue, a deterministic embedding provider, and a
// JSON logger, which suits tests and prototyping.
//
// Example:
//
//	eng, err := engram.New(
//	    engram.WithEmbedder(openaiEmbedder),
//	    engram.WithLLM(claudeProvider),
//	    engram.WithSQLite("/var/lib/engram/memory.db"),
//	)
func New(opts ...Option) (*Engine, error) {
	ec := &engineConfig{}
	for _, opt := range opts {
		opt(ec)
	}

	if ec.logger == nil {
		ec.logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	cfg := ec.cfg
	if cfg == nil && ec.configPath != "" {
		loaded, err := config.Load(ec.configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if cfg == nil {
		cfg = &config.Config{}
	}

	tel, err := telemetry.New(ec.tracerProvider, ec.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	embedder := ec.embedder
	if embedder == nil {
		embedder = embed.NewDeterministic(cfg.Embedding.GetDimensions())
	}

	e := &Engine{
		cfg:        cfg,
		logger:     ec.logger,
		tel:        tel,
		clock:      ec.clock,
		embedder:   embedder,
		dimension:  embedder.Dimension(),
		maxContent: note.DefaultMaxContentLength,
		notes:      ec.notes,
		graph:      ec.graphStore,
		decayStore: ec.decayStore,
		index:      ec.index,
		tasks:      ec.tasks,
	}
	if e.clock == nil {
		e.clock = time.Now
	}

	sqlitePath := ec.sqlitePath
	if sqlitePath == "" && cfg.Storage.GetKind() == "sqlite" {
		sqlitePath = cfg.Storage.GetPath()
	}
	if sqlitePath != "" {
		db, err := sqlite.Open(sqlitePath, e.dimension)
		if err != nil {
			return nil, fmt.Errorf("open sqlite backend: %w", err)
		}
		e.db = db
		db.Notes.SetClock(e.clock)
		db.Graph.SetClock(e.clock)
		if e.notes == nil {
			e.notes = db.Notes
		}
		if e.graph == nil {
			e.graph = db.Graph
		}
		if e.decayStore == nil {
			e.decayStore = db.Decay
		}
		if e.index == nil {
			e.index = db.Vectors
		}
	}
	if e.notes == nil {
		ms := note.NewMemoryStore()
		ms.SetClock(e.clock)
		e.notes = ms
	}
	if e.graph == nil {
		gs := graph.NewMemoryStore()
		gs.SetClock(e.clock)
		e.graph = gs
	}
	if e.decayStore == nil {
		e.decayStore = decay.NewMemoryStore()
	}
	if e.index == nil {
		e.index = vector.NewMemoryIndex()
	}

	e.manager = &decay.Manager{
		ArchiveThreshold: cfg.Decay.GetArchiveThreshold(),
		Clock:            e.clock,
	}

	if e.tasks == nil {
		if cfg.Queue.GetKind() == "redis" {
			q, err := queue.NewRedisQueue(queue.RedisOptions{
				URL: cfg.Queue.GetRedisURL(),
				Key: cfg.Queue.GetKey(),
			})
			if err != nil {
				return nil, fmt.Errorf("connect redis queue: %w", err)
			}
			e.tasks = q
		} else {
			e.tasks = queue.NewChannelQueue(queue.DefaultCapacity)
		}
	}

	fallback := classify.NewSimilarityProvider()
	fallback.Threshold = cfg.Linking.GetSimilarityThreshold()
	if rel, err := graph.ParseRelation(cfg.Linking.GetFallbackRelation()); err == nil {
		fallback.Relation = rel
	}

	classifier := ec.classifier
	if classifier == nil && ec.model != nil {
		llmClassifier, err := classify.NewLLMProvider(classify.LLMOptions{
			Provider:   ec.model,
			MaxRetries: cfg.Linking.GetMaxRetries(),
		})
		if err != nil {
			return nil, fmt.Errorf("build llm classifier: %w", err)
		}
		classifier = classify.NewBreakerProvider(llmClassifier, classify.BreakerOptions{
			Logger: e.logger,
		})
	}
	if classifier == nil {
		classifier = fallback
	}

	e.disc, err = discovery.NewEngine(discovery.Config{
		Notes:           e.notes,
		Graph:           e.graph,
		Index:           e.index,
		Classifier:      classifier,
		Fallback:        fallback,
		Tasks:           e.tasks,
		TopK:            cfg.Linking.GetTopK(),
		AcceptThreshold: cfg.Linking.GetAcceptThreshold(),
		Telemetry:       e.tel,
		Logger:          e.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build discovery engine: %w", err)
	}

	e.retr, err = retrieval.New(retrieval.Config{
		Index:     e.index,
		Graph:     e.graph,
		Source:    &activeSource{engine: e},
		Telemetry: e.tel,
		Logger:    e.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build retriever: %w", err)
	}

	if ec.model != nil {
		e.ctrl, err = reason.NewController(ec.model, e.reasonSearch, reason.Options{
			MaxSearches:    cfg.Reasoning.GetMaxSearches(),
			CondenseBudget: cfg.Reasoning.GetCondenseBudget(),
			Reinforce:      e.reasonReinforce,
			Telemetry:      e.tel,
			Logger:         e.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("build reasoning controller: %w", err)
		}
	}

	e.worker = queue.NewWorker(e.tasks, queue.WorkerOptions{
		BatchSize:       cfg.Worker.GetBatchSize(),
		FlushInterval:   cfg.Worker.GetFlushInterval(),
		Concurrency:     cfg.Worker.GetConcurrency(),
		MaxRetries:      cfg.Worker.GetMaxRetries(),
		ShutdownTimeout: cfg.Worker.GetShutdownTimeout(),
		Logger:          e.logger,
	})
	e.worker.Handle(queue.KindLinkDiscovery, func(ctx context.Context, t queue.Task) error {
		_, err := e.disc.Discover(ctx, t.NoteID)
		return err
	})
	e.worker.Handle(queue.KindMetadataRefresh, e.refreshMetadata)
	if err := e.worker.Start(context.Background()); err != nil {
		return nil, fmt.Errorf("start worker: %w", err)
	}

	return e, nil
}

// IngestRequest describes one note to remember.
type IngestRequest struct {
	// Content is the immutable text payload (required).
	Content string

	// Keywords, Tags, and Description are optional annotations. The
	// description joins the content in the embedding payload.
	Keywords    []string
	Tags        []string
	Description string

	// Embedding, when set, is used as-is and the embedding provider is
	// not called. Its length must match the configured dimension.
	Embedding []float64
}

// Ingest stores a note and schedules link discovery for it.
//
// Identity derives from the embedding bytes, so ingesting identical
// content again returns the existing id without side effects, even under
// concurrent duplicate ingestion. A failed embedding call is
// retried with backoff; link discovery runs in the background and its
// failures never fail this call.
func (e *Engine) Ingest(ctx context.Context, req IngestRequest) (string, error) {
	if e.closed.Load() {
		return "", ErrClosed
	}
	ctx, span := e.tel.StartSpan(ctx, "engram.ingest")
	defer span.End()

	if req.Content == "" {
		return "", fmt.Errorf("%w: content is required", ErrValidation)
	}
	if len(req.Content) > e.maxContent {
		return "", fmt.Errorf("%w: content length %d exceeds maximum %d", ErrValidation, len(req.Content), e.maxContent)
	}

	embedding := req.Embedding
	if embedding == nil {
		var err error
		embedding, err = e.embedText(ctx, note.EmbedPayload(req.Content, req.Description))
		if err != nil {
			return "", err
		}
	}
	if len(embedding) != e.dimension {
		return "", fmt.Errorf("%w: embedding dimension %d does not match configured dimension %d", ErrValidation, len(embedding), e.dimension)
	}

	n := &note.Note{
		ID:          note.ComputeID(embedding),
		Content:     req.Content,
		Keywords:    req.Keywords,
		Tags:        req.Tags,
		Description: req.Description,
		Embedding:   embedding,
	}
	if err := n.Validate(e.maxContent, e.dimension); err != nil {
		return "", err
	}

	id, existed, err := e.notes.Insert(ctx, n)
	if err != nil {
		return "", fmt.Errorf("insert note: %w", err)
	}
	e.tel.RecordIngest(ctx, existed)
	if existed {
		e.logger.Debug("duplicate ingestion collapsed", "note_id", id)
		return id, nil
	}

	if err := e.decayStore.Init(ctx, id, e.clock()); err != nil {
		return "", fmt.Errorf("init decay record: %w", err)
	}
	if err := e.index.Upsert(ctx, id, embedding, nil); err != nil {
		return "", fmt.Errorf("index note: %w", err)
	}

	if err := e.tasks.Enqueue(ctx, queue.NewTask(queue.KindLinkDiscovery, id)); err != nil {
		// The note is stored and searchable; it only misses graph links.
		e.logger.Warn("link discovery not scheduled", "note_id", id, "error", err)
	}

	e.logger.Info("note ingested", "note_id", id, "content_length", len(req.Content))
	return id, nil
}

// GetOption adjusts a Get call.
type GetOption func(*getOptions)

type getOptions struct {
	includeArchived bool
}

// WithArchived includes archived notes in the read.
func WithArchived() GetOption {
	return func(o *getOptions) {
		o.includeArchived = true
	}
}

// Get returns a note by id. Archived notes return ErrNotFound unless
// WithArchived is given. Reads perform the lazy retention check: a note
// whose retention fell below the archive threshold is archived on the
// spot.
func (e *Engine) Get(ctx context.Context, id string, opts ...GetOption) (*note.Note, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	var o getOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.includeArchived {
		return e.notes.GetAny(ctx, id)
	}
	return e.getActive(ctx, id)
}

// getActive reads a live note, archiving it first when its retention has
// dropped below the threshold since the last read.
func (e *Engine) getActive(ctx context.Context, id string) (*note.Note, error) {
	n, err := e.notes.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	rec, err := e.decayStore.Get(ctx, id)
	if err != nil {
		if errors.Is(err, decay.ErrNoRecord) {
			// Notes written by an external process may lack a record;
			// treat them as never decaying.
			return n, nil
		}
		return nil, fmt.Errorf("read decay record: %w", err)
	}
	fade, err := e.manager.ShouldArchive(rec)
	if err != nil {
		return nil, err
	}
	if !fade {
		return n, nil
	}

	if err := e.notes.Archive(ctx, id); err != nil {
		return nil, fmt.Errorf("archive faded note: %w", err)
	}
	e.logger.Info("note archived by retention check", "note_id", id, "strength", rec.Strength)
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// RefreshAnnotation overwrites a note's keywords, tags, and description.
// Identity never changes. When the description changes, the embedding
// payload changed with it, so the note's vector is re-derived and the
// index entry replaced; keyword and tag edits leave the vector untouched.
func (e *Engine) RefreshAnnotation(ctx context.Context, id string, keywords, tags []string, description string) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if err := e.notes.UpdateAnnotations(ctx, id, keywords, tags, description); err != nil {
		return err
	}

	n, err := e.notes.GetAny(ctx, id)
	if err != nil {
		return err
	}
	if !n.Dirty {
		return nil
	}

	embedding, err := e.embedText(ctx, n.EmbedPayload())
	if err != nil {
		return fmt.Errorf("re-embed after annotation change: %w", err)
	}
	if err := e.notes.ReplaceEmbedding(ctx, id, embedding); err != nil {
		return err
	}
	if err := e.index.Upsert(ctx, id, embedding, nil); err != nil {
		return fmt.Errorf("re-index note: %w", err)
	}
	e.logger.Debug("note re-indexed after annotation change", "note_id", id)
	return nil
}

// SearchRequest describes one hybrid retrieval.
type SearchRequest struct {
	// Text is embedded to form the query vector. Ignored when Embedding
	// is set.
	Text string

	// Embedding is the query vector. Required if Text is empty.
	Embedding []float64

	// TopK is how many notes to return (default: 10).
	TopK int

	// LinkDepth is how many graph hops to expand, 0 through 2. Depth 3 or
	// more fails with ErrDepthLimit.
	LinkDepth int

	// DiversityLambda weights relevance against redundancy in [0,1]
	// (default: 0.7).
	DiversityLambda float64

	// MaxLinks bounds neighbor expansion per hit (default: 5).
	MaxLinks int

	// MinWeight drops edges below this weight during expansion.
	MinWeight float64

	// Filter is an optional CEL expression over candidate annotations,
	// e.g. `tags.exists(t, t == "incident")`.
	Filter string
}

// Search answers a query through the hybrid retriever: vector similarity
// seeds, bounded graph expansion, and diversity-aware selection. Notes
// that decayed below the archive threshold are archived during the read
// and never surface.
func (e *Engine) Search(ctx context.Context, req SearchRequest) (*retrieval.Result, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}

	embedding := req.Embedding
	if embedding == nil {
		if req.Text == "" {
			return nil, fmt.Errorf("%w: text or embedding is required", retrieval.ErrInvalidQuery)
		}
		var err error
		embedding, err = e.embedText(ctx, req.Text)
		if err != nil {
			return nil, err
		}
	}

	return e.retr.Search(ctx, retrieval.Query{
		Embedding:       embedding,
		TopK:            req.TopK,
		LinkDepth:       req.LinkDepth,
		DiversityLambda: req.DiversityLambda,
		MaxLinks:        req.MaxLinks,
		MinWeight:       req.MinWeight,
		Filter:          req.Filter,
	})
}

// Reinforce records that a note's content was actually used, multiplying
// its strength by (1 + quality) and resetting its decay clock. quality
// must be in [0,1]; zero legitimately records a touch without a boost.
func (e *Engine) Reinforce(ctx context.Context, id string, quality float64) error {
	if e.closed.Load() {
		return ErrClosed
	}
	err := e.decayStore.Update(ctx, id, func(rec *decay.Record) error {
		return e.manager.Reinforce(rec, quality)
	})
	if errors.Is(err, decay.ErrNoRecord) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return err
}

// Retention reports a note's current retention in [0,1], computed fresh
// from its decay record.
func (e *Engine) Retention(ctx context.Context, id string) (float64, error) {
	if e.closed.Load() {
		return 0, ErrClosed
	}
	rec, err := e.decayStore.Get(ctx, id)
	if err != nil {
		if errors.Is(err, decay.ErrNoRecord) {
			return 0, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return 0, err
	}
	return e.manager.Retention(rec)
}

// Sweep eagerly archives every note whose retention dropped below the
// archive threshold and reports how many it archived. Lazy read-time
// checks already keep results correct; sweeping just reclaims the
// fan-out spent scoring faded notes.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	if e.closed.Load() {
		return 0, ErrClosed
	}
	records, err := e.decayStore.All(ctx)
	if err != nil {
		return 0, err
	}

	archived := 0
	for id, rec := range records {
		fade, err := e.manager.ShouldArchive(rec)
		if err != nil {
			return archived, err
		}
		if !fade {
			continue
		}
		n, err := e.notes.GetAny(ctx, id)
		if err != nil || n.Archived {
			continue
		}
		if err := e.notes.Archive(ctx, id); err != nil {
			return archived, fmt.Errorf("archive note %s: %w", id, err)
		}
		archived++
	}
	if archived > 0 {
		e.logger.Info("sweep archived faded notes", "count", archived)
	}
	return archived, nil
}

// NewSession starts a reasoning session: a bounded loop in which the
// model may request memory searches mid-generation, capped by the
// configured search budget. Requires an engine built WithLLM.
func (e *Engine) NewSession() (*reason.Session, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	if e.ctrl == nil {
		return nil, ErrNoReasoner
	}
	return e.ctrl.NewSession(), nil
}

// Flush blocks until every background task enqueued before the call has
// been handled. Intended for tests and orderly batch pipelines.
func (e *Engine) Flush(ctx context.Context) error {
	if e.closed.Load() {
		return ErrClosed
	}
	return e.worker.Flush(ctx)
}

// Shutdown stops the background worker, waits for in-flight tasks up to
// the configured shutdown timeout, and closes the queue and any owned
// storage. The engine rejects all calls afterward.
func (e *Engine) Shutdown(ctx context.Context) error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	var errs []error
	if err := e.worker.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop worker: %w", err))
	}
	if err := e.tasks.Close(); err != nil && !errors.Is(err, queue.ErrClosed) {
		errs = append(errs, fmt.Errorf("close queue: %w", err))
	}
	if e.db != nil {
		if err := e.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close sqlite: %w", err))
		}
	}
	e.logger.Info("engine shut down")
	return errors.Join(errs...)
}

// embedText calls the embedding provider with bounded retries. Embedding
// is the one provider the engine cannot proceed without, so outages are
// retried with exponential backoff before surfacing
// ErrProviderUnavailable.
func (e *Engine) embedText(ctx context.Context, text string) ([]float64, error) {
	var lastErr error
	for attempt := 0; attempt < embedAttempts; attempt++ {
		if attempt > 0 {
			delay := time.Duration(1<<(attempt-1)) * 100 * time.Millisecond
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			e.logger.Warn("retrying embedding call", "attempt", attempt+1, "error", lastErr)
		}
		vec, err := e.embedder.Embed(ctx, text)
		if err == nil {
			return vec, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: embedding failed after %d attempts: %v", ErrProviderUnavailable, embedAttempts, lastErr)
}

// reasonSearch is the retrieval capability handed to reasoning sessions.
// It uses the configured retrieval defaults rather than caller-tunable
// knobs: the model asking for memories should not control fan-out.
func (e *Engine) reasonSearch(ctx context.Context, query string) ([]retrieval.Item, error) {
	embedding, err := e.embedText(ctx, query)
	if err != nil {
		return nil, err
	}
	result, err := e.retr.Search(ctx, retrieval.Query{
		Embedding:       embedding,
		TopK:            e.cfg.Retrieval.GetTopK(),
		LinkDepth:       e.cfg.Retrieval.GetLinkDepth(),
		DiversityLambda: e.cfg.Retrieval.GetDiversityLambda(),
		MaxLinks:        e.cfg.Retrieval.GetMaxLinks(),
	})
	if err != nil {
		return nil, err
	}
	return result.Items, nil
}

// reasonReinforce strengthens the notes whose content a reasoning session
// injected into its context.
func (e *Engine) reasonReinforce(ctx context.Context, noteIDs []string) {
	for _, id := range noteIDs {
		if err := e.Reinforce(ctx, id, reasonReinforceQuality); err != nil {
			e.logger.Warn("reinforcement skipped", "note_id", id, "error", err)
		}
	}
}

// activeSource adapts the engine's lazy-archival read for the retriever,
// so retrieval never resurrects a note the decay model has let go.
type activeSource struct {
	engine *Engine
}

func (s *activeSource) Get(ctx context.Context, id string) (*note.Note, error) {
	return s.engine.getActive(ctx, id)
}
