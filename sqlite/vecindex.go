package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"

	"github.com/zero-day-ai/engram/vector"
)

func init() {
	sqlite_vec.Auto()
}

// VecIndex implements vector.Index on SQLite.
//
// Raw vectors always live in the vectors table. When the sqlite-vec
// extension loads, a vec0 virtual table accelerates KNN queries; when it
// does not, searches fall back to a linear cosine scan. The two paths
// return the same ordering: similarity descending, ties by id ascending.
type VecIndex struct {
	db         *sql.DB
	dimensions int
	available  bool
}

// NewVecIndex prepares the vector index over an open database. The vec0
// side tables are created only when the extension is available.
func NewVecIndex(db *sql.DB, dimensions int) *VecIndex {
	vi := &VecIndex{db: db, dimensions: dimensions}
	if err := vi.ensureVecSchema(); err != nil {
		slog.Warn("sqlite-vec unavailable, vector search using linear scan", "error", err)
		return vi
	}
	vi.available = true

	if n, err := vi.backfill(); err != nil {
		slog.Warn("vec index backfill failed", "error", err)
	} else if n > 0 {
		slog.Info("backfilled vectors into vec index", "count", n)
	}
	return vi
}

// Accelerated reports whether KNN queries run through the vec0 extension.
func (vi *VecIndex) Accelerated() bool {
	return vi.available
}

func (vi *VecIndex) ensureVecSchema() error {
	var vecVersion string
	if err := vi.db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		return fmt.Errorf("vec_version() failed: %w", err)
	}

	if _, err := vi.db.Exec(`CREATE TABLE IF NOT EXISTS vec_metadata (key TEXT PRIMARY KEY, value TEXT)`); err != nil {
		return fmt.Errorf("create vec_metadata: %w", err)
	}

	// vec0 requires integer rowids; note ids are text.
	if _, err := vi.db.Exec(`CREATE TABLE IF NOT EXISTS note_vec_ids (
		vec_id INTEGER PRIMARY KEY AUTOINCREMENT,
		note_id TEXT UNIQUE NOT NULL
	)`); err != nil {
		return fmt.Errorf("create vec id mapping: %w", err)
	}

	vi.handleDimensionChange()

	createSQL := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS note_embeddings USING vec0(embedding float[%d] distance_metric=cosine)`,
		vi.dimensions,
	)
	if _, err := vi.db.Exec(createSQL); err != nil {
		return fmt.Errorf("create vec0 table: %w", err)
	}

	vi.db.Exec(`INSERT OR REPLACE INTO vec_metadata (key, value) VALUES ('dimensions', ?)`,
		fmt.Sprintf("%d", vi.dimensions))
	return nil
}

// handleDimensionChange drops the vec0 table when the embedding width
// changed since the last run, so it can be rebuilt at the new width.
func (vi *VecIndex) handleDimensionChange() {
	var storedDim string
	err := vi.db.QueryRow(`SELECT value FROM vec_metadata WHERE key = 'dimensions'`).Scan(&storedDim)
	if err != nil {
		return // first run
	}
	if storedDim == fmt.Sprintf("%d", vi.dimensions) {
		return
	}

	slog.Warn("embedding dimensions changed, rebuilding vec index",
		"stored", storedDim,
		"configured", vi.dimensions)
	vi.db.Exec(`DROP TABLE IF EXISTS note_embeddings`)
	vi.db.Exec(`DELETE FROM note_vec_ids`)
}

// Upsert inserts or replaces the vector stored under id.
func (vi *VecIndex) Upsert(ctx context.Context, id string, vec []float64, meta map[string]string) error {
	if id == "" {
		return fmt.Errorf("vector id is required")
	}

	vecJSON, err := marshalFloats(vec)
	if err != nil {
		return fmt.Errorf("marshal vector: %w", err)
	}
	var metaJSON sql.NullString
	if meta != nil {
		data, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("marshal vector metadata: %w", err)
		}
		metaJSON = sql.NullString{String: string(data), Valid: true}
	}

	_, err = vi.db.ExecContext(ctx, `
		INSERT INTO vectors (id, vec, meta) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET vec = excluded.vec, meta = excluded.meta
	`, id, vecJSON, metaJSON)
	if err != nil {
		return fmt.Errorf("store vector: %w", err)
	}

	if !vi.available || len(vec) != vi.dimensions {
		return nil
	}
	return vi.vecUpsert(ctx, id, vec)
}

func (vi *VecIndex) vecUpsert(ctx context.Context, id string, vec []float64) error {
	var vecID int64
	err := vi.db.QueryRowContext(ctx,
		`SELECT vec_id FROM note_vec_ids WHERE note_id = ?`, id).Scan(&vecID)
	if errors.Is(err, sql.ErrNoRows) {
		res, err := vi.db.ExecContext(ctx, `INSERT INTO note_vec_ids (note_id) VALUES (?)`, id)
		if err != nil {
			return fmt.Errorf("create vec id mapping: %w", err)
		}
		vecID, _ = res.LastInsertId()
	} else if err != nil {
		return fmt.Errorf("load vec id mapping: %w", err)
	}

	blob, err := sqlite_vec.SerializeFloat32(toFloat32(vec))
	if err != nil {
		return fmt.Errorf("serialize embedding: %w", err)
	}

	// vec0 does not support ON CONFLICT.
	vi.db.ExecContext(ctx, `DELETE FROM note_embeddings WHERE rowid = ?`, vecID)
	_, err = vi.db.ExecContext(ctx,
		`INSERT INTO note_embeddings (rowid, embedding) VALUES (?, ?)`, vecID, blob)
	if err != nil {
		return fmt.Errorf("insert into vec0: %w", err)
	}
	return nil
}

// Search returns up to topK nearest vectors by cosine similarity.
func (vi *VecIndex) Search(ctx context.Context, vec []float64, topK int) ([]vector.Match, error) {
	if topK <= 0 {
		return nil, nil
	}

	if vi.available && len(vec) == vi.dimensions {
		matches, err := vi.knn(ctx, vec, topK)
		if err == nil {
			return matches, nil
		}
		slog.Warn("vec knn failed, falling back to linear scan", "error", err)
	}
	return vi.scan(ctx, vec, topK)
}

func (vi *VecIndex) knn(ctx context.Context, vec []float64, topK int) ([]vector.Match, error) {
	blob, err := sqlite_vec.SerializeFloat32(toFloat32(vec))
	if err != nil {
		return nil, fmt.Errorf("serialize query: %w", err)
	}

	rows, err := vi.db.QueryContext(ctx, `
		SELECT rowid, distance
		FROM note_embeddings
		WHERE embedding MATCH ?
		ORDER BY distance
		LIMIT ?
	`, blob, topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type hit struct {
		rowID    int64
		distance float64
	}
	var hits []hit
	for rows.Next() {
		var h hit
		if err := rows.Scan(&h.rowID, &h.distance); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(hits))
	args := make([]any, len(hits))
	for i, h := range hits {
		placeholders[i] = "?"
		args[i] = h.rowID
	}
	mapRows, err := vi.db.QueryContext(ctx,
		`SELECT vec_id, note_id FROM note_vec_ids WHERE vec_id IN (`+strings.Join(placeholders, ",")+`)`,
		args...)
	if err != nil {
		return nil, err
	}
	defer mapRows.Close()

	idByRow := make(map[int64]string, len(hits))
	for mapRows.Next() {
		var (
			vecID  int64
			noteID string
		)
		if err := mapRows.Scan(&vecID, &noteID); err != nil {
			return nil, err
		}
		idByRow[vecID] = noteID
	}
	if err := mapRows.Err(); err != nil {
		return nil, err
	}

	matches := make([]vector.Match, 0, len(hits))
	for _, h := range hits {
		id, ok := idByRow[h.rowID]
		if !ok {
			continue
		}
		matches = append(matches, vector.Match{ID: id, Similarity: 1 - h.distance})
	}
	sortMatches(matches)
	return matches, nil
}

// scan is the brute-force fallback over the raw vectors table.
func (vi *VecIndex) scan(ctx context.Context, vec []float64, topK int) ([]vector.Match, error) {
	rows, err := vi.db.QueryContext(ctx, `SELECT id, vec FROM vectors`)
	if err != nil {
		return nil, fmt.Errorf("scan vectors: %w", err)
	}
	defer rows.Close()

	var matches []vector.Match
	for rows.Next() {
		var (
			id      string
			vecJSON string
		)
		if err := rows.Scan(&id, &vecJSON); err != nil {
			return nil, fmt.Errorf("scan vector row: %w", err)
		}
		var stored []float64
		if err := json.Unmarshal([]byte(vecJSON), &stored); err != nil {
			return nil, fmt.Errorf("unmarshal vector %s: %w", id, err)
		}
		matches = append(matches, vector.Match{ID: id, Similarity: vector.Cosine(vec, stored)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan vectors: %w", err)
	}

	sortMatches(matches)
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Delete removes the vector stored under id. Deleting an absent id is a
// no-op.
func (vi *VecIndex) Delete(ctx context.Context, id string) error {
	if _, err := vi.db.ExecContext(ctx, `DELETE FROM vectors WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete vector: %w", err)
	}
	if !vi.available {
		return nil
	}

	var vecID int64
	err := vi.db.QueryRowContext(ctx,
		`SELECT vec_id FROM note_vec_ids WHERE note_id = ?`, id).Scan(&vecID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load vec id mapping: %w", err)
	}
	vi.db.ExecContext(ctx, `DELETE FROM note_embeddings WHERE rowid = ?`, vecID)
	vi.db.ExecContext(ctx, `DELETE FROM note_vec_ids WHERE vec_id = ?`, vecID)
	return nil
}

// backfill populates the vec0 index from raw vectors missing from it, for
// databases written while the extension was unavailable.
func (vi *VecIndex) backfill() (int, error) {
	rows, err := vi.db.Query(`
		SELECT v.id, v.vec
		FROM vectors v
		LEFT JOIN note_vec_ids m ON m.note_id = v.id
		WHERE m.vec_id IS NULL
	`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	type pending struct {
		id  string
		vec []float64
	}
	var work []pending
	for rows.Next() {
		var (
			id      string
			vecJSON string
		)
		if err := rows.Scan(&id, &vecJSON); err != nil {
			continue
		}
		var stored []float64
		if err := json.Unmarshal([]byte(vecJSON), &stored); err != nil {
			continue
		}
		if len(stored) != vi.dimensions {
			continue
		}
		work = append(work, pending{id: id, vec: stored})
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	count := 0
	for _, p := range work {
		if err := vi.vecUpsert(context.Background(), p.id, p.vec); err != nil {
			continue
		}
		count++
	}
	return count, nil
}

func sortMatches(matches []vector.Match) {
	sort.Slice(matches, func(a, b int) bool {
		if matches[a].Similarity != matches[b].Similarity {
			return matches[a].Similarity > matches[b].Similarity
		}
		return matches[a].ID < matches[b].ID
	})
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
