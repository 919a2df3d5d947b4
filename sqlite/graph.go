package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/zero-day-ai/engram/graph"
)

// Recency parameters, matching the in-memory graph store.
const (
	recencyHalfLife = 7 * 24 * time.Hour
	recencyFloor    = 0.25
)

// GraphStore implements graph.Store on SQLite. Edge upserts and the pair
// touch refresh commit in one transaction, so concurrent writers on the
// same key resolve last-writer-wins without tearing.
type GraphStore struct {
	db  *sql.DB
	now func() time.Time
}

func newGraphStore(db *sql.DB) *GraphStore {
	return &GraphStore{db: db, now: time.Now}
}

// SetClock overrides the store's time source. Intended for tests; call
// before concurrent use.
func (s *GraphStore) SetClock(now func() time.Time) {
	s.now = now
}

// UpsertEdge inserts or updates an edge keyed by (Source, Target, Relation).
func (s *GraphStore) UpsertEdge(ctx context.Context, e graph.Edge) error {
	if err := e.Validate(); err != nil {
		return err
	}
	now := nanos(s.now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin edge upsert: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO edges (source_id, target_id, rel_type, weight, rationale, mirror, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id, target_id, rel_type) DO UPDATE SET
			weight = excluded.weight,
			rationale = excluded.rationale,
			mirror = excluded.mirror,
			updated_at = excluded.updated_at
	`, e.Source, e.Target, string(e.Relation), e.Weight, e.Rationale, boolToInt(e.Mirror), now, now)
	if err != nil {
		return fmt.Errorf("upsert edge: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO pair_touch (pair_key, touched_at) VALUES (?, ?)
		ON CONFLICT(pair_key) DO UPDATE SET touched_at = excluded.touched_at
	`, pairKey(e.Source, e.Target), now)
	if err != nil {
		return fmt.Errorf("touch pair: %w", err)
	}

	return tx.Commit()
}

// Neighbors returns up to maxLinks outgoing edges with weight >= minWeight,
// ordered by weight descending, earliest CreatedAt, then target id.
func (s *GraphStore) Neighbors(ctx context.Context, id string, maxLinks int, minWeight float64) ([]graph.Edge, error) {
	limit := maxLinks
	if limit <= 0 {
		limit = -1 // no limit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT source_id, target_id, rel_type, weight, rationale, mirror, created_at, updated_at
		FROM edges
		WHERE source_id = ? AND weight >= ?
		ORDER BY weight DESC, created_at ASC, target_id ASC
		LIMIT ?
	`, id, minWeight, limit)
	if err != nil {
		return nil, fmt.Errorf("query neighbors: %w", err)
	}
	defer rows.Close()

	out := make([]graph.Edge, 0)
	for rows.Next() {
		var (
			e         graph.Edge
			relation  string
			mirror    int
			createdAt int64
			updatedAt int64
		)
		err := rows.Scan(&e.Source, &e.Target, &relation, &e.Weight,
			&e.Rationale, &mirror, &createdAt, &updatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		e.Relation = graph.Relation(relation)
		e.Mirror = mirror != 0
		e.CreatedAt = fromNanos(createdAt)
		e.UpdatedAt = fromNanos(updatedAt)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query neighbors: %w", err)
	}
	return out, nil
}

// Edges returns all outgoing edges from the given note.
func (s *GraphStore) Edges(ctx context.Context, id string) ([]graph.Edge, error) {
	return s.Neighbors(ctx, id, 0, 0)
}

// RecencyBoost returns the freshness factor for a pair of notes.
func (s *GraphStore) RecencyBoost(ctx context.Context, a, b string) (float64, error) {
	var touchedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT touched_at FROM pair_touch WHERE pair_key = ?`, pairKey(a, b),
	).Scan(&touchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return 1.0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load pair touch: %w", err)
	}

	elapsed := s.now().Sub(fromNanos(touchedAt))
	if elapsed < 0 {
		elapsed = 0
	}
	boost := math.Exp(-elapsed.Hours() * math.Ln2 / recencyHalfLife.Hours())
	if boost < recencyFloor {
		boost = recencyFloor
	}
	return boost, nil
}

// pairKey returns an order-independent key for a note pair.
func pairKey(a, b string) string {
	if a < b {
		return a + "\x00" + b
	}
	return b + "\x00" + a
}
