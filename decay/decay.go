package decay

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// DefaultArchiveThreshold is the retention level below which a note is
// archived.
const DefaultArchiveThreshold = 0.1

// initialStrength is the floor every record starts at. Strength never drops
// below this, so the retention exponent's denominator is always defined.
const initialStrength = 1.0

// Sentinel errors for decay computations.
var (
	// ErrInvalidTime indicates the current time precedes the record's last
	// touch, which would make elapsed time negative. This points at clock
	// skew or a corrupted record and is surfaced rather than clamped.
	ErrInvalidTime = errors.New("decay: now precedes last touch")

	// ErrInvalidQuality indicates a reinforcement quality factor outside
	// [0,1].
	ErrInvalidQuality = errors.New("decay: quality factor out of range")
)

// Record is the retention state for a single note.
//
// Strength only grows, through reinforcement. Retention is always computed
// fresh from (now - LastTouch, Strength); it is never cached on the record.
type Record struct {
	// Strength is the decay-resistance parameter, >= 1.0.
	Strength float64

	// LastTouch is when the note was last ingested or reinforced.
	LastTouch time.Time

	// RetrievalCount counts reinforcements.
	RetrievalCount int
}

// NewRecord returns a fresh record at the strength floor.
func NewRecord(now time.Time) Record {
	return Record{Strength: initialStrength, LastTouch: now}
}

// Manager computes retention from the forgetting-curve model and applies
// reinforcement updates.
//
// Retention follows R(t) = exp(-dt_days / strength): with strength 1.0 a
// memory falls below the default 0.1 threshold after roughly 2.3 days of
// silence, while a strength of 5.0 stretches that to over 11 days.
type Manager struct {
	// ArchiveThreshold is the retention level below which ShouldArchive
	// reports true. Zero means DefaultArchiveThreshold.
	ArchiveThreshold float64

	// Clock overrides the time source. Nil means time.Now.
	Clock func() time.Time
}

// NewManager creates a Manager with the default archive threshold.
func NewManager() *Manager {
	return &Manager{ArchiveThreshold: DefaultArchiveThreshold}
}

func (m *Manager) now() time.Time {
	if m.Clock != nil {
		return m.Clock()
	}
	return time.Now()
}

func (m *Manager) threshold() float64 {
	if m.ArchiveThreshold <= 0 {
		return DefaultArchiveThreshold
	}
	return m.ArchiveThreshold
}

// Retention computes the record's current retention in [0,1].
//
// It is a pure function of (now - LastTouch, Strength). Returns
// ErrInvalidTime when the clock reads earlier than the record's last touch.
func (m *Manager) Retention(rec Record) (float64, error) {
	return m.RetentionAt(rec, m.now())
}

// RetentionAt computes retention at an explicit point in time.
func (m *Manager) RetentionAt(rec Record, now time.Time) (float64, error) {
	if now.Before(rec.LastTouch) {
		return 0, fmt.Errorf("%w: now=%s last_touch=%s", ErrInvalidTime, now.Format(time.RFC3339), rec.LastTouch.Format(time.RFC3339))
	}
	strength := rec.Strength
	if strength < initialStrength {
		strength = initialStrength
	}
	days := now.Sub(rec.LastTouch).Hours() / 24
	return math.Exp(-days / strength), nil
}

// Reinforce applies a spaced-repetition update after a successful retrieval.
//
// Strength multiplies by (1 + quality), last touch moves to now, and the
// retrieval count increments. quality must be in [0,1]; zero is a legitimate
// no-boost outcome that still refreshes the touch time. The update never
// fires for memories that were retrieved but not used, which is the caller's
// distinction to make.
func (m *Manager) Reinforce(rec *Record, quality float64) error {
	if quality < 0 || quality > 1 {
		return fmt.Errorf("%w: %f must be in [0,1]", ErrInvalidQuality, quality)
	}
	if rec.Strength < initialStrength {
		rec.Strength = initialStrength
	}
	rec.Strength *= 1 + quality
	rec.LastTouch = m.now()
	rec.RetrievalCount++
	return nil
}

// ShouldArchive reports whether the record's retention has dropped below the
// archive threshold. The ACTIVE -> ARCHIVED transition is one-way; callers
// archive the note and never revisit the decision.
func (m *Manager) ShouldArchive(rec Record) (bool, error) {
	r, err := m.Retention(rec)
	if err != nil {
		return false, err
	}
	return r < m.threshold(), nil
}

// Store persists retention records keyed by note id.
//
// Update runs its mutation under the store's synchronization so concurrent
// reinforcements do not lose increments.
type Store interface {
	// Init creates a record at the strength floor if none exists.
	// Re-initializing an existing record is a no-op, matching idempotent
	// ingestion.
	Init(ctx context.Context, id string, now time.Time) error

	// Get returns the record for a note.
	Get(ctx context.Context, id string) (Record, error)

	// Update atomically applies fn to the record. Returns ErrNoRecord if
	// the record does not exist; fn errors abort the update and propagate.
	Update(ctx context.Context, id string, fn func(*Record) error) error

	// All returns a snapshot of every record keyed by note id.
	All(ctx context.Context) (map[string]Record, error)
}

// ErrNoRecord indicates no retention record exists for the note id.
var ErrNoRecord = errors.New("decay: no record for note")
