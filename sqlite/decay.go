package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zero-day-ai/engram/decay"
)

// DecayStore implements decay.Store on SQLite. Updates run in a
// transaction so the read-modify-write is atomic under concurrent
// reinforcement.
type DecayStore struct {
	db *sql.DB
}

// Init creates a record at the strength floor if none exists.
func (s *DecayStore) Init(ctx context.Context, id string, now time.Time) error {
	rec := decay.NewRecord(now)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO decay_records (note_id, strength, last_touch, retrieval_count)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(note_id) DO NOTHING
	`, id, rec.Strength, nanos(rec.LastTouch), rec.RetrievalCount)
	if err != nil {
		return fmt.Errorf("init decay record: %w", err)
	}
	return nil
}

// Get returns the record for a note.
func (s *DecayStore) Get(ctx context.Context, id string) (decay.Record, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx,
		`SELECT strength, last_touch, retrieval_count FROM decay_records WHERE note_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return decay.Record{}, fmt.Errorf("%w: %s", decay.ErrNoRecord, id)
	}
	if err != nil {
		return decay.Record{}, fmt.Errorf("load decay record %s: %w", id, err)
	}
	return rec, nil
}

// Update atomically applies fn to the record.
func (s *DecayStore) Update(ctx context.Context, id string, fn func(*decay.Record) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin decay update: %w", err)
	}
	defer tx.Rollback()

	rec, err := scanRecord(tx.QueryRowContext(ctx,
		`SELECT strength, last_touch, retrieval_count FROM decay_records WHERE note_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", decay.ErrNoRecord, id)
	}
	if err != nil {
		return fmt.Errorf("load decay record %s: %w", id, err)
	}

	if err := fn(&rec); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE decay_records SET strength = ?, last_touch = ?, retrieval_count = ?
		WHERE note_id = ?
	`, rec.Strength, nanos(rec.LastTouch), rec.RetrievalCount, id)
	if err != nil {
		return fmt.Errorf("update decay record: %w", err)
	}
	return tx.Commit()
}

// All returns a snapshot of every record keyed by note id.
func (s *DecayStore) All(ctx context.Context) (map[string]decay.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT note_id, strength, last_touch, retrieval_count FROM decay_records`)
	if err != nil {
		return nil, fmt.Errorf("list decay records: %w", err)
	}
	defer rows.Close()

	out := make(map[string]decay.Record)
	for rows.Next() {
		var (
			id        string
			rec       decay.Record
			lastTouch int64
		)
		if err := rows.Scan(&id, &rec.Strength, &lastTouch, &rec.RetrievalCount); err != nil {
			return nil, fmt.Errorf("scan decay record: %w", err)
		}
		rec.LastTouch = fromNanos(lastTouch)
		out[id] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list decay records: %w", err)
	}
	return out, nil
}

func scanRecord(row rowScanner) (decay.Record, error) {
	var (
		rec       decay.Record
		lastTouch int64
	)
	if err := row.Scan(&rec.Strength, &lastTouch, &rec.RetrievalCount); err != nil {
		return decay.Record{}, err
	}
	rec.LastTouch = fromNanos(lastTouch)
	return rec, nil
}
