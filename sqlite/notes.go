package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/zero-day-ai/engram/note"
)

// NoteStore implements note.Store on SQLite. The table's implicit rowid
// serves as the ingestion sequence: notes are never deleted, so rowids are
// strictly monotonic.
type NoteStore struct {
	db  *sql.DB
	now func() time.Time
}

func newNoteStore(db *sql.DB) *NoteStore {
	return &NoteStore{db: db, now: time.Now}
}

// SetClock overrides the store's time source. Intended for tests; call
// before concurrent use.
func (s *NoteStore) SetClock(now func() time.Time) {
	s.now = now
}

// Insert stores the note if absent. The id must already be set by the
// caller. The single INSERT with ON CONFLICT DO NOTHING makes concurrent
// ingestion of identical content converge on one row.
func (s *NoteStore) Insert(ctx context.Context, n *note.Note) (string, bool, error) {
	if n.ID == "" {
		return "", false, fmt.Errorf("%w: note id is required", note.ErrValidation)
	}

	createdAt := n.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	keywords, err := marshalStrings(n.Keywords)
	if err != nil {
		return "", false, fmt.Errorf("marshal keywords: %w", err)
	}
	tags, err := marshalStrings(n.Tags)
	if err != nil {
		return "", false, fmt.Errorf("marshal tags: %w", err)
	}
	embedding, err := marshalFloats(n.Embedding)
	if err != nil {
		return "", false, fmt.Errorf("marshal embedding: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO notes (id, content, description, keywords, tags, embedding, created_at, archived, dirty)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, 0)
		ON CONFLICT(id) DO NOTHING
	`, n.ID, n.Content, n.Description, keywords, tags, embedding, nanos(createdAt))
	if err != nil {
		return "", false, fmt.Errorf("insert note: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return "", false, fmt.Errorf("insert note: %w", err)
	}
	return n.ID, affected == 0, nil
}

// Get returns the note, excluding archived entries.
func (s *NoteStore) Get(ctx context.Context, id string) (*note.Note, error) {
	return s.get(ctx, id, true)
}

// GetAny returns the note regardless of archive status.
func (s *NoteStore) GetAny(ctx context.Context, id string) (*note.Note, error) {
	return s.get(ctx, id, false)
}

func (s *NoteStore) get(ctx context.Context, id string, activeOnly bool) (*note.Note, error) {
	query := `
		SELECT id, content, description, keywords, tags, embedding, created_at, rowid, archived, dirty
		FROM notes WHERE id = ?`
	if activeOnly {
		query += ` AND archived = 0`
	}

	n, err := scanNote(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", note.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load note %s: %w", id, err)
	}
	return n, nil
}

// UpdateAnnotations overwrites keywords, tags, and description. The note
// turns dirty only when the embedding payload changed.
func (s *NoteStore) UpdateAnnotations(ctx context.Context, id string, keywords, tags []string, description string) error {
	keywordsJSON, err := marshalStrings(keywords)
	if err != nil {
		return fmt.Errorf("marshal keywords: %w", err)
	}
	tagsJSON, err := marshalStrings(tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin annotation update: %w", err)
	}
	defer tx.Rollback()

	var (
		content        string
		oldDescription string
		dirty          int
	)
	err = tx.QueryRowContext(ctx,
		`SELECT content, description, dirty FROM notes WHERE id = ?`, id,
	).Scan(&content, &oldDescription, &dirty)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", note.ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("load note %s: %w", id, err)
	}

	if note.EmbedPayload(content, description) != note.EmbedPayload(content, oldDescription) {
		dirty = 1
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE notes SET keywords = ?, tags = ?, description = ?, dirty = ?
		WHERE id = ?
	`, keywordsJSON, tagsJSON, description, dirty, id)
	if err != nil {
		return fmt.Errorf("update annotations: %w", err)
	}
	return tx.Commit()
}

// ReplaceEmbedding stores a re-derived vector and clears the dirty flag.
func (s *NoteStore) ReplaceEmbedding(ctx context.Context, id string, embedding []float64) error {
	embeddingJSON, err := marshalFloats(embedding)
	if err != nil {
		return fmt.Errorf("marshal embedding: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE notes SET embedding = ?, dirty = 0 WHERE id = ?`, embeddingJSON, id)
	if err != nil {
		return fmt.Errorf("replace embedding: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("replace embedding: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", note.ErrNotFound, id)
	}
	return nil
}

// Archive transitions the note to its terminal archived state.
func (s *NoteStore) Archive(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE notes SET archived = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("archive note: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("archive note: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", note.ErrNotFound, id)
	}
	return nil
}

// All returns every stored note ordered by ingestion sequence.
func (s *NoteStore) All(ctx context.Context) ([]*note.Note, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, description, keywords, tags, embedding, created_at, rowid, archived, dirty
		FROM notes ORDER BY rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	var out []*note.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(row rowScanner) (*note.Note, error) {
	var (
		n         note.Note
		keywords  string
		tags      string
		embedding string
		createdAt int64
		seq       int64
		archived  int
		dirty     int
	)
	err := row.Scan(&n.ID, &n.Content, &n.Description, &keywords, &tags,
		&embedding, &createdAt, &seq, &archived, &dirty)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(keywords), &n.Keywords); err != nil {
		return nil, fmt.Errorf("unmarshal keywords: %w", err)
	}
	if err := json.Unmarshal([]byte(tags), &n.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	if err := json.Unmarshal([]byte(embedding), &n.Embedding); err != nil {
		return nil, fmt.Errorf("unmarshal embedding: %w", err)
	}

	n.CreatedAt = fromNanos(createdAt)
	n.Seq = uint64(seq)
	n.Archived = archived != 0
	n.Dirty = dirty != 0
	return &n, nil
}

func marshalStrings(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}
	data, err := json.Marshal(v)
	return string(data), err
}

func marshalFloats(v []float64) (string, error) {
	if v == nil {
		v = []float64{}
	}
	data, err := json.Marshal(v)
	return string(data), err
}
