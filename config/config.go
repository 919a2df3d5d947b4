// Package config provides loading and parsing of engram.yaml configuration
// files. An engram.yaml tunes one engine instance: embedding dimensions,
// decay thresholds, link discovery, retrieval, reasoning budgets, and the
// background worker.
//
// Every section is optional. Accessors return package defaults for missing
// sections or fields, so an empty file configures a working engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents an engram.yaml configuration file.
type Config struct {
	Embedding *EmbeddingConfig `yaml:"embedding,omitempty"`
	Decay     *DecayConfig     `yaml:"decay,omitempty"`
	Linking   *LinkingConfig   `yaml:"linking,omitempty"`
	Retrieval *RetrievalConfig `yaml:"retrieval,omitempty"`
	Reasoning *ReasoningConfig `yaml:"reasoning,omitempty"`
	Worker    *WorkerConfig    `yaml:"worker,omitempty"`
	Queue     *QueueConfig     `yaml:"queue,omitempty"`
	Storage   *StorageConfig   `yaml:"storage,omitempty"`
}

// EmbeddingConfig pins the vector dimension checked at ingestion time.
type EmbeddingConfig struct {
	// Dimensions is the fixed embedding width. Ingestion rejects vectors
	// of any other length. Default: 128.
	Dimensions int `yaml:"dimensions,omitempty"`
}

// GetDimensions returns the configured dimension or the default value.
func (e *EmbeddingConfig) GetDimensions() int {
	if e == nil || e.Dimensions <= 0 {
		return 128
	}
	return e.Dimensions
}

// DecayConfig tunes memory retention.
type DecayConfig struct {
	// ArchiveThreshold is the retention below which a note is archived.
	// Default: 0.1.
	ArchiveThreshold float64 `yaml:"archive_threshold,omitempty"`

	// SweepInterval is how often the archive sweep runs.
	// Format: Go duration string (e.g., "1h"). Default: 1h.
	SweepInterval string `yaml:"sweep_interval,omitempty"`
}

// GetArchiveThreshold returns the archive threshold or the default value.
func (d *DecayConfig) GetArchiveThreshold() float64 {
	if d == nil || d.ArchiveThreshold <= 0 || d.ArchiveThreshold >= 1 {
		return 0.1
	}
	return d.ArchiveThreshold
}

// GetSweepInterval parses the sweep interval and returns a duration.
// Returns the default value if not set or invalid.
func (d *DecayConfig) GetSweepInterval() time.Duration {
	if d == nil || d.SweepInterval == "" {
		return time.Hour
	}
	v, err := time.ParseDuration(d.SweepInterval)
	if err != nil || v <= 0 {
		return time.Hour
	}
	return v
}

// LinkingConfig tunes background link discovery.
type LinkingConfig struct {
	// TopK is how many nearest neighbors are examined per new note.
	// Default: 10.
	TopK int `yaml:"top_k,omitempty"`

	// AcceptThreshold is the minimum classification confidence for an
	// edge. Default: 0.65.
	AcceptThreshold float64 `yaml:"accept_threshold,omitempty"`

	// SimilarityThreshold drives the fallback linker used when the
	// classification provider is unavailable. Default: 0.85.
	SimilarityThreshold float64 `yaml:"similarity_threshold,omitempty"`

	// FallbackRelation is the relation the fallback linker assigns above
	// the similarity threshold. Default: "unrelated" (no edge written).
	FallbackRelation string `yaml:"fallback_relation,omitempty"`

	// MaxRetries bounds classification retries per candidate pair.
	// Default: 3.
	MaxRetries int `yaml:"max_retries,omitempty"`
}

// GetTopK returns the candidate count or the default value.
func (l *LinkingConfig) GetTopK() int {
	if l == nil || l.TopK <= 0 {
		return 10
	}
	return l.TopK
}

// GetAcceptThreshold returns the confidence floor or the default value.
func (l *LinkingConfig) GetAcceptThreshold() float64 {
	if l == nil || l.AcceptThreshold <= 0 || l.AcceptThreshold > 1 {
		return 0.65
	}
	return l.AcceptThreshold
}

// GetSimilarityThreshold returns the fallback threshold or the default value.
func (l *LinkingConfig) GetSimilarityThreshold() float64 {
	if l == nil || l.SimilarityThreshold <= 0 || l.SimilarityThreshold > 1 {
		return 0.85
	}
	return l.SimilarityThreshold
}

// GetFallbackRelation returns the fallback relation or the default value.
func (l *LinkingConfig) GetFallbackRelation() string {
	if l == nil || l.FallbackRelation == "" {
		return "unrelated"
	}
	return l.FallbackRelation
}

// GetMaxRetries returns the retry budget or the default value.
func (l *LinkingConfig) GetMaxRetries() int {
	if l == nil || l.MaxRetries <= 0 {
		return 3
	}
	return l.MaxRetries
}

// RetrievalConfig tunes hybrid search defaults. Per-query values override
// these.
type RetrievalConfig struct {
	// TopK is the result count. Default: 10.
	TopK int `yaml:"top_k,omitempty"`

	// LinkDepth is the graph expansion depth, 0 through 2. Default: 1.
	LinkDepth *int `yaml:"link_depth,omitempty"`

	// DiversityLambda balances relevance against diversity in [0,1].
	// Default: 0.7.
	DiversityLambda float64 `yaml:"diversity_lambda,omitempty"`

	// MaxLinks bounds neighbor expansion per hit. Default: 5.
	MaxLinks int `yaml:"max_links,omitempty"`
}

// GetTopK returns the result count or the default value.
func (r *RetrievalConfig) GetTopK() int {
	if r == nil || r.TopK <= 0 {
		return 10
	}
	return r.TopK
}

// GetLinkDepth returns the expansion depth or the default value. Zero is a
// meaningful setting (vector-only search), so the field is a pointer:
// absent means default, explicit zero means zero.
func (r *RetrievalConfig) GetLinkDepth() int {
	if r == nil || r.LinkDepth == nil {
		return 1
	}
	if *r.LinkDepth < 0 || *r.LinkDepth > 2 {
		return 1
	}
	return *r.LinkDepth
}

// GetDiversityLambda returns the diversity weight or the default value.
func (r *RetrievalConfig) GetDiversityLambda() float64 {
	if r == nil || r.DiversityLambda <= 0 || r.DiversityLambda > 1 {
		return 0.7
	}
	return r.DiversityLambda
}

// GetMaxLinks returns the per-hit link bound or the default value.
func (r *RetrievalConfig) GetMaxLinks() int {
	if r == nil || r.MaxLinks <= 0 {
		return 5
	}
	return r.MaxLinks
}

// ReasoningConfig tunes iterative reasoning sessions.
type ReasoningConfig struct {
	// MaxSearches caps retrieval rounds per session. Default: 5.
	MaxSearches int `yaml:"max_searches,omitempty"`

	// CondenseBudget caps each injected summary, in tokens. Default: 300.
	CondenseBudget int `yaml:"condense_budget,omitempty"`
}

// GetMaxSearches returns the search budget or the default value.
func (r *ReasoningConfig) GetMaxSearches() int {
	if r == nil || r.MaxSearches <= 0 {
		return 5
	}
	return r.MaxSearches
}

// GetCondenseBudget returns the summary token cap or the default value.
func (r *ReasoningConfig) GetCondenseBudget() int {
	if r == nil || r.CondenseBudget <= 0 {
		return 300
	}
	return r.CondenseBudget
}

// WorkerConfig tunes the background task worker.
type WorkerConfig struct {
	// Concurrency is the number of handler goroutines. Default: 4.
	Concurrency int `yaml:"concurrency,omitempty"`

	// BatchSize is how many tasks accumulate before a flush. Default: 8.
	BatchSize int `yaml:"batch_size,omitempty"`

	// FlushInterval forces a flush after this long regardless of batch
	// fill. Format: Go duration string. Default: 30s.
	FlushInterval string `yaml:"flush_interval,omitempty"`

	// MaxRetries is how many times a failed task is retried before being
	// dropped. Negative means no retries. Default: 2.
	MaxRetries int `yaml:"max_retries,omitempty"`

	// ShutdownTimeout is the time to wait for graceful shutdown.
	// Format: Go duration string. Default: 30s.
	ShutdownTimeout string `yaml:"shutdown_timeout,omitempty"`
}

// GetConcurrency returns the configured concurrency or the default value.
func (w *WorkerConfig) GetConcurrency() int {
	if w == nil || w.Concurrency <= 0 {
		return 4
	}
	return w.Concurrency
}

// GetBatchSize returns the batch size or the default value.
func (w *WorkerConfig) GetBatchSize() int {
	if w == nil || w.BatchSize <= 0 {
		return 8
	}
	return w.BatchSize
}

// GetFlushInterval parses the flush interval and returns a duration.
// Returns the default value if not set or invalid.
func (w *WorkerConfig) GetFlushInterval() time.Duration {
	if w == nil || w.FlushInterval == "" {
		return 30 * time.Second
	}
	v, err := time.ParseDuration(w.FlushInterval)
	if err != nil || v <= 0 {
		return 30 * time.Second
	}
	return v
}

// GetMaxRetries returns the retry budget or the default value.
func (w *WorkerConfig) GetMaxRetries() int {
	if w == nil || w.MaxRetries == 0 {
		return 2
	}
	if w.MaxRetries < 0 {
		return 0
	}
	return w.MaxRetries
}

// GetShutdownTimeout parses the shutdown timeout and returns a duration.
// Returns the default value if not set or invalid.
func (w *WorkerConfig) GetShutdownTimeout() time.Duration {
	if w == nil || w.ShutdownTimeout == "" {
		return 30 * time.Second
	}
	v, err := time.ParseDuration(w.ShutdownTimeout)
	if err != nil || v <= 0 {
		return 30 * time.Second
	}
	return v
}

// QueueConfig selects the task queue backend.
type QueueConfig struct {
	// Kind is "memory" or "redis". Default: "memory".
	Kind string `yaml:"kind,omitempty"`

	// RedisURL is the connection string for the redis backend.
	// Default: "redis://localhost:6379".
	RedisURL string `yaml:"redis_url,omitempty"`

	// Key is the redis list key tasks are pushed to.
	// Default: "engram:tasks".
	Key string `yaml:"key,omitempty"`
}

// GetKind returns the queue backend name or the default value.
func (q *QueueConfig) GetKind() string {
	if q == nil || q.Kind == "" {
		return "memory"
	}
	return q.Kind
}

// GetRedisURL returns the redis connection string or the default value.
func (q *QueueConfig) GetRedisURL() string {
	if q == nil || q.RedisURL == "" {
		return "redis://localhost:6379"
	}
	return q.RedisURL
}

// GetKey returns the redis list key or the default value.
func (q *QueueConfig) GetKey() string {
	if q == nil || q.Key == "" {
		return "engram:tasks"
	}
	return q.Key
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	// Kind is "memory" or "sqlite". Default: "memory".
	Kind string `yaml:"kind,omitempty"`

	// Path is the sqlite database file. Default: "engram.db".
	Path string `yaml:"path,omitempty"`
}

// GetKind returns the storage backend name or the default value.
func (s *StorageConfig) GetKind() string {
	if s == nil || s.Kind == "" {
		return "memory"
	}
	return s.Kind
}

// GetPath returns the database path or the default value.
func (s *StorageConfig) GetPath() string {
	if s == nil || s.Path == "" {
		return "engram.db"
	}
	return s.Path
}

// Load reads and parses an engram.yaml file from the given path.
// If the path is a directory, it looks for engram.yaml or engram.yml in
// that directory.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}

	var configPath string
	if info.IsDir() {
		yamlPath := filepath.Join(path, "engram.yaml")
		if _, err := os.Stat(yamlPath); err == nil {
			configPath = yamlPath
		} else {
			ymlPath := filepath.Join(path, "engram.yml")
			if _, err := os.Stat(ymlPath); err == nil {
				configPath = ymlPath
			} else {
				return nil, fmt.Errorf("no engram.yaml or engram.yml found in %s", path)
			}
		}
	} else {
		configPath = path
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// LoadFromDir searches for engram.yaml starting from the given directory
// and walking up to parent directories until found or root is reached.
func LoadFromDir(dir string) (*Config, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	for {
		config, err := Load(absDir)
		if err == nil {
			return config, nil
		}

		parent := filepath.Dir(absDir)
		if parent == absDir {
			return nil, fmt.Errorf("no engram.yaml found in %s or parent directories", dir)
		}
		absDir = parent
	}
}
