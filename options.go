package engram

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/zero-day-ai/engram/classify"
	"github.com/zero-day-ai/engram/config"
	"github.com/zero-day-ai/engram/decay"
	"github.com/zero-day-ai/engram/embed"
	"github.com/zero-day-ai/engram/graph"
	"github.com/zero-day-ai/engram/llm"
	"github.com/zero-day-ai/engram/note"
	"github.com/zero-day-ai/engram/queue"
	"github.com/zero-day-ai/engram/vector"
)

// Option configures the Engine.
type Option func(*engineConfig)

// engineConfig holds configuration for an Engine instance.
type engineConfig struct {
	configPath string
	cfg        *config.Config
	logger     *slog.Logger

	embedder   embed.Provider
	classifier classify.Provider
	model      llm.Provider

	notes      note.Store
	graphStore graph.Store
	decayStore decay.Store
	index      vector.Index
	tasks      queue.Queue

	sqlitePath string

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	clock          func() time.Time
}

// WithConfig sets the path to an engram.yaml file loaded during New.
// Settings from the file tune thresholds, budgets, and the background
// worker; explicit options take precedence over file settings.
func WithConfig(path string) Option {
	return func(c *engineConfig) {
		c.configPath = path
	}
}

// WithConfigValue supplies an already-parsed configuration, bypassing file
// loading. Useful in tests and for programs that assemble settings
// themselves.
func WithConfigValue(cfg *config.Config) Option {
	return func(c *engineConfig) {
		c.cfg = cfg
	}
}

// WithLogger sets a custom structured logger.
// If not provided, a JSON logger writing to stdout is created.
func WithLogger(logger *slog.Logger) Option {
	return func(c *engineConfig) {
		c.logger = logger
	}
}

// WithEmbedder sets the embedding provider used at ingestion and query
// time. If not provided, a deterministic hash-seeded provider is used;
// it is stable and dependency-free but carries no semantic signal, so
// production engines should supply a real model.
func WithEmbedder(p embed.Provider) Option {
	return func(c *engineConfig) {
		c.embedder = p
	}
}

// WithClassifier sets the relation classification provider used by link
// discovery. If not provided and an LLM provider is configured, an
// LLM-backed classifier behind a circuit breaker is built; with neither,
// discovery runs on similarity thresholds alone.
func WithClassifier(p classify.Provider) Option {
	return func(c *engineConfig) {
		c.classifier = p
	}
}

// WithLLM sets the completion provider backing reasoning sessions and,
// absent an explicit classifier, relation classification.
func WithLLM(p llm.Provider) Option {
	return func(c *engineConfig) {
		c.model = p
	}
}

// WithNoteStore replaces the default in-memory note store.
func WithNoteStore(s note.Store) Option {
	return func(c *engineConfig) {
		c.notes = s
	}
}

// WithGraphStore replaces the default in-memory graph store.
func WithGraphStore(s graph.Store) Option {
	return func(c *engineConfig) {
		c.graphStore = s
	}
}

// WithDecayStore replaces the default in-memory decay record store.
func WithDecayStore(s decay.Store) Option {
	return func(c *engineConfig) {
		c.decayStore = s
	}
}

// WithVectorIndex replaces the default in-memory vector index with a
// pluggable backend.
func WithVectorIndex(i vector.Index) Option {
	return func(c *engineConfig) {
		c.index = i
	}
}

// WithQueue replaces the default in-process channel queue feeding the
// background worker, e.g. with a Redis-backed queue shared by external
// workers.
func WithQueue(q queue.Queue) Option {
	return func(c *engineConfig) {
		c.tasks = q
	}
}

// WithSQLite stores notes, edges, decay records, and vectors in the
// SQLite database at path, replacing all four in-memory defaults. Stores
// set explicitly through other options still win.
func WithSQLite(path string) Option {
	return func(c *engineConfig) {
		c.sqlitePath = path
	}
}

// WithTracerProvider enables OpenTelemetry tracing for ingest, discovery,
// search, and reasoning rounds.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *engineConfig) {
		c.tracerProvider = tp
	}
}

// WithMeterProvider enables OpenTelemetry metrics: ingest counts, link
// accept/reject counts, search durations, and reasoning token overhead.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *engineConfig) {
		c.meterProvider = mp
	}
}

// WithClock overrides the engine's time source. Decay and retention
// computations read through it, which lets tests advance time without
// sleeping.
func WithClock(now func() time.Time) Option {
	return func(c *engineConfig) {
		c.clock = now
	}
}
