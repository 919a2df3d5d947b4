package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const sampleYAML = `
embedding:
  dimensions: 768
decay:
  archive_threshold: 0.05
  sweep_interval: 15m
linking:
  top_k: 20
  accept_threshold: 0.75
  similarity_threshold: 0.9
  fallback_relation: elaborates
  max_retries: 5
retrieval:
  top_k: 6
  link_depth: 2
  diversity_lambda: 0.5
  max_links: 3
reasoning:
  max_searches: 8
  condense_budget: 450
worker:
  concurrency: 2
  batch_size: 16
  flush_interval: 1m
  max_retries: 4
  shutdown_timeout: 10s
queue:
  kind: redis
  redis_url: redis://cache.internal:6380/1
  key: myapp:tasks
storage:
  kind: sqlite
  path: /var/lib/engram/notes.db
`

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "engram.yaml", sampleYAML)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 768, cfg.Embedding.GetDimensions())
	assert.Equal(t, 0.05, cfg.Decay.GetArchiveThreshold())
	assert.Equal(t, 15*time.Minute, cfg.Decay.GetSweepInterval())

	assert.Equal(t, 20, cfg.Linking.GetTopK())
	assert.Equal(t, 0.75, cfg.Linking.GetAcceptThreshold())
	assert.Equal(t, 0.9, cfg.Linking.GetSimilarityThreshold())
	assert.Equal(t, "elaborates", cfg.Linking.GetFallbackRelation())
	assert.Equal(t, 5, cfg.Linking.GetMaxRetries())

	assert.Equal(t, 6, cfg.Retrieval.GetTopK())
	assert.Equal(t, 2, cfg.Retrieval.GetLinkDepth())
	assert.Equal(t, 0.5, cfg.Retrieval.GetDiversityLambda())
	assert.Equal(t, 3, cfg.Retrieval.GetMaxLinks())

	assert.Equal(t, 8, cfg.Reasoning.GetMaxSearches())
	assert.Equal(t, 450, cfg.Reasoning.GetCondenseBudget())

	assert.Equal(t, 2, cfg.Worker.GetConcurrency())
	assert.Equal(t, 16, cfg.Worker.GetBatchSize())
	assert.Equal(t, time.Minute, cfg.Worker.GetFlushInterval())
	assert.Equal(t, 4, cfg.Worker.GetMaxRetries())
	assert.Equal(t, 10*time.Second, cfg.Worker.GetShutdownTimeout())

	assert.Equal(t, "redis", cfg.Queue.GetKind())
	assert.Equal(t, "redis://cache.internal:6380/1", cfg.Queue.GetRedisURL())
	assert.Equal(t, "myapp:tasks", cfg.Queue.GetKey())

	assert.Equal(t, "sqlite", cfg.Storage.GetKind())
	assert.Equal(t, "/var/lib/engram/notes.db", cfg.Storage.GetPath())
}

func TestEmptyConfigYieldsDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "engram.yaml", "")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 128, cfg.Embedding.GetDimensions())
	assert.Equal(t, 0.1, cfg.Decay.GetArchiveThreshold())
	assert.Equal(t, time.Hour, cfg.Decay.GetSweepInterval())
	assert.Equal(t, 10, cfg.Linking.GetTopK())
	assert.Equal(t, 0.65, cfg.Linking.GetAcceptThreshold())
	assert.Equal(t, 0.85, cfg.Linking.GetSimilarityThreshold())
	assert.Equal(t, "unrelated", cfg.Linking.GetFallbackRelation())
	assert.Equal(t, 3, cfg.Linking.GetMaxRetries())
	assert.Equal(t, 10, cfg.Retrieval.GetTopK())
	assert.Equal(t, 1, cfg.Retrieval.GetLinkDepth())
	assert.Equal(t, 0.7, cfg.Retrieval.GetDiversityLambda())
	assert.Equal(t, 5, cfg.Retrieval.GetMaxLinks())
	assert.Equal(t, 5, cfg.Reasoning.GetMaxSearches())
	assert.Equal(t, 300, cfg.Reasoning.GetCondenseBudget())
	assert.Equal(t, 4, cfg.Worker.GetConcurrency())
	assert.Equal(t, 8, cfg.Worker.GetBatchSize())
	assert.Equal(t, 30*time.Second, cfg.Worker.GetFlushInterval())
	assert.Equal(t, 2, cfg.Worker.GetMaxRetries())
	assert.Equal(t, "memory", cfg.Queue.GetKind())
	assert.Equal(t, "redis://localhost:6379", cfg.Queue.GetRedisURL())
	assert.Equal(t, "engram:tasks", cfg.Queue.GetKey())
	assert.Equal(t, "memory", cfg.Storage.GetKind())
	assert.Equal(t, "engram.db", cfg.Storage.GetPath())
}

func TestNilSectionsAreSafe(t *testing.T) {
	var cfg Config
	assert.Equal(t, 128, cfg.Embedding.GetDimensions())
	assert.Equal(t, 0.1, cfg.Decay.GetArchiveThreshold())
	assert.Equal(t, 1, cfg.Retrieval.GetLinkDepth())
	assert.Equal(t, 5, cfg.Reasoning.GetMaxSearches())
	assert.Equal(t, "memory", cfg.Queue.GetKind())
	assert.Equal(t, "memory", cfg.Storage.GetKind())
}

func TestExplicitZeroLinkDepth(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "engram.yaml", "retrieval:\n  link_depth: 0\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Retrieval.GetLinkDepth())
}

func TestOutOfRangeValuesFallBack(t *testing.T) {
	content := `
decay:
  archive_threshold: 1.5
  sweep_interval: "not a duration"
linking:
  accept_threshold: 2.0
retrieval:
  link_depth: 7
  diversity_lambda: -0.3
worker:
  max_retries: -1
`
	path := writeConfig(t, t.TempDir(), "engram.yaml", content)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 0.1, cfg.Decay.GetArchiveThreshold())
	assert.Equal(t, time.Hour, cfg.Decay.GetSweepInterval())
	assert.Equal(t, 0.65, cfg.Linking.GetAcceptThreshold())
	assert.Equal(t, 1, cfg.Retrieval.GetLinkDepth())
	assert.Equal(t, 0.7, cfg.Retrieval.GetDiversityLambda())
	assert.Equal(t, 0, cfg.Worker.GetMaxRetries())
}

func TestLoadFromDirectory(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "engram.yaml", "embedding:\n  dimensions: 256\n")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 256, cfg.Embedding.GetDimensions())
}

func TestLoadPrefersYamlOverYml(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "engram.yaml", "embedding:\n  dimensions: 256\n")
	writeConfig(t, dir, "engram.yml", "embedding:\n  dimensions: 512\n")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 256, cfg.Embedding.GetDimensions())
}

func TestLoadYmlFallback(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "engram.yml", "embedding:\n  dimensions: 512\n")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 512, cfg.Embedding.GetDimensions())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)

	_, err = Load(t.TempDir())
	assert.Error(t, err)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "engram.yaml", "embedding: [not: a: map\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadFromDirWalksUp(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "engram.yaml", "embedding:\n  dimensions: 256\n")

	nested := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	cfg, err := LoadFromDir(nested)
	require.NoError(t, err)
	assert.Equal(t, 256, cfg.Embedding.GetDimensions())
}

func TestLoadFromDirNotFound(t *testing.T) {
	// An isolated temp dir has no engram.yaml anywhere up its chain,
	// unless the environment happens to carry one; use a nested dir and
	// only assert the error message shape on a miss.
	dir := filepath.Join(t.TempDir(), "x")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	cfg, err := LoadFromDir(dir)
	if err == nil {
		// A config higher up the real filesystem was found; nothing to
		// assert beyond it parsing.
		assert.NotNil(t, cfg)
		return
	}
	assert.Contains(t, err.Error(), "engram.yaml")
}
