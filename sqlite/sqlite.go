// Package sqlite persists engine state in a single SQLite database: notes,
// edges, decay records, and the vector index.
//
// Each store implements the corresponding interface from the note, graph,
// decay, and vector packages, returning the same sentinel errors as the
// in-memory implementations so callers cannot tell the backends apart.
//
// KNN search uses the sqlite-vec extension when it loads, and falls back
// to a linear scan over the stored vectors when it does not. Both paths
// produce identical orderings.
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB bundles the four stores backed by one SQLite database.
type DB struct {
	db *sql.DB

	Notes   *NoteStore
	Graph   *GraphStore
	Decay   *DecayStore
	Vectors *VecIndex
}

// Open opens or creates the database at path and prepares the schema.
// dimensions fixes the vector index width and must match the embedding
// provider.
func Open(path string, dimensions int) (*DB, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("sqlite: dimensions must be positive, got %d", dimensions)
	}

	// Immediate transactions take the write lock at BEGIN, so concurrent
	// read-modify-write updates queue on the busy timeout instead of
	// failing mid-transaction.
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: init schema: %w", err)
	}

	return &DB{
		db:      db,
		Notes:   newNoteStore(db),
		Graph:   newGraphStore(db),
		Decay:   &DecayStore{db: db},
		Vectors: NewVecIndex(db, dimensions),
	}, nil
}

// Close closes the underlying database handle.
func (d *DB) Close() error {
	return d.db.Close()
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS notes (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		keywords TEXT NOT NULL DEFAULT '[]',
		tags TEXT NOT NULL DEFAULT '[]',
		embedding TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		archived INTEGER NOT NULL DEFAULT 0,
		dirty INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_notes_archived ON notes(archived);

	CREATE TABLE IF NOT EXISTS edges (
		source_id TEXT NOT NULL,
		target_id TEXT NOT NULL,
		rel_type TEXT NOT NULL,
		weight REAL NOT NULL,
		rationale TEXT NOT NULL DEFAULT '',
		mirror INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (source_id, target_id, rel_type)
	);

	CREATE INDEX IF NOT EXISTS idx_edges_source_weight ON edges(source_id, weight DESC);
	CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_id);

	CREATE TABLE IF NOT EXISTS pair_touch (
		pair_key TEXT PRIMARY KEY,
		touched_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS decay_records (
		note_id TEXT PRIMARY KEY,
		strength REAL NOT NULL,
		last_touch INTEGER NOT NULL,
		retrieval_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS vectors (
		id TEXT PRIMARY KEY,
		vec TEXT NOT NULL,
		meta TEXT
	);
	`
	_, err := db.Exec(schema)
	return err
}

// nanos converts a time to its stored integer form.
func nanos(t time.Time) int64 {
	return t.UnixNano()
}

// fromNanos converts a stored integer back to a UTC time.
func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
