package decay

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testEpoch = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func newTestManager(now time.Time) *Manager {
	m := NewManager()
	m.Clock = func() time.Time { return now }
	return m
}

func TestRetentionIsStrictlyDecreasing(t *testing.T) {
	m := NewManager()
	rec := NewRecord(testEpoch)

	// For fixed strength, retention strictly decreases with elapsed time.
	previous := math.Inf(1)
	for _, days := range []float64{0, 0.5, 1, 2, 5, 10, 30} {
		at := testEpoch.Add(time.Duration(days * 24 * float64(time.Hour)))
		r, err := m.RetentionAt(rec, at)
		require.NoError(t, err)
		assert.Less(t, r, previous, "retention at %v days should be below the prior reading", days)
		assert.GreaterOrEqual(t, r, 0.0)
		assert.LessOrEqual(t, r, 1.0)
		previous = r
	}
}

func TestRetentionExactValues(t *testing.T) {
	m := NewManager()

	tests := []struct {
		name     string
		strength float64
		days     float64
		want     float64
	}{
		{"fresh note", 1.0, 0, 1.0},
		{"one day at floor strength", 1.0, 1, math.Exp(-1)},
		{"thirty days at floor strength", 1.0, 30, math.Exp(-30)},
		{"thirty days at strength five", 5.0, 30, math.Exp(-6)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := Record{Strength: tt.strength, LastTouch: testEpoch}
			at := testEpoch.Add(time.Duration(tt.days * 24 * float64(time.Hour)))
			r, err := m.RetentionAt(rec, at)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, r, 1e-12)
		})
	}
}

func TestRetentionRejectsTimeBeforeLastTouch(t *testing.T) {
	m := NewManager()
	rec := NewRecord(testEpoch)

	_, err := m.RetentionAt(rec, testEpoch.Add(-time.Second))
	assert.ErrorIs(t, err, ErrInvalidTime)
}

func TestReinforceMultipliesStrengthExactly(t *testing.T) {
	now := testEpoch.Add(72 * time.Hour)
	m := newTestManager(now)

	rec := NewRecord(testEpoch)
	require.NoError(t, m.Reinforce(&rec, 0.8))

	assert.Equal(t, 1.8, rec.Strength)
	assert.Equal(t, now, rec.LastTouch)
	assert.Equal(t, 1, rec.RetrievalCount)

	// Strength compounds across reinforcements.
	require.NoError(t, m.Reinforce(&rec, 0.5))
	assert.InDelta(t, 2.7, rec.Strength, 1e-12)
	assert.Equal(t, 2, rec.RetrievalCount)
}

func TestReinforceZeroQualityIsLegitimate(t *testing.T) {
	now := testEpoch.Add(time.Hour)
	m := newTestManager(now)

	rec := NewRecord(testEpoch)
	require.NoError(t, m.Reinforce(&rec, 0))

	// No boost, but the touch time and count still advance.
	assert.Equal(t, 1.0, rec.Strength)
	assert.Equal(t, now, rec.LastTouch)
	assert.Equal(t, 1, rec.RetrievalCount)
}

func TestReinforceRejectsQualityOutOfRange(t *testing.T) {
	m := newTestManager(testEpoch)

	for _, q := range []float64{-0.1, 1.1, 2.0} {
		rec := NewRecord(testEpoch)
		err := m.Reinforce(&rec, q)
		assert.ErrorIs(t, err, ErrInvalidQuality, "quality %f should be rejected", q)
		assert.Equal(t, 1.0, rec.Strength)
	}
}

func TestStrengthNeverDropsBelowFloor(t *testing.T) {
	m := newTestManager(testEpoch)

	// A corrupted record below the floor is lifted before any use.
	rec := Record{Strength: 0.2, LastTouch: testEpoch}
	require.NoError(t, m.Reinforce(&rec, 0))
	assert.GreaterOrEqual(t, rec.Strength, 1.0)

	r, err := m.RetentionAt(Record{Strength: 0, LastTouch: testEpoch}, testEpoch.Add(24*time.Hour))
	require.NoError(t, err)
	assert.InDelta(t, math.Exp(-1), r, 1e-12)
}

func TestShouldArchiveBoundary(t *testing.T) {
	thirtyDays := testEpoch.Add(30 * 24 * time.Hour)
	m := newTestManager(thirtyDays)

	// strength=1.0 after 30 days: exp(-30) is far below 0.1.
	weak := Record{Strength: 1.0, LastTouch: testEpoch}
	archived, err := m.ShouldArchive(weak)
	require.NoError(t, err)
	assert.True(t, archived)

	// strength=5.0 after the same gap: exp(-6) is still below 0.1,
	// so it archives too. The inequality direction is what matters.
	stronger := Record{Strength: 5.0, LastTouch: testEpoch}
	archivedStronger, err := m.ShouldArchive(stronger)
	require.NoError(t, err)
	weakRetention, err := m.Retention(weak)
	require.NoError(t, err)
	strongRetention, err := m.Retention(stronger)
	require.NoError(t, err)
	assert.Greater(t, strongRetention, weakRetention)
	assert.True(t, archivedStronger)

	// A strength high enough to keep retention above threshold survives.
	durable := Record{Strength: 20.0, LastTouch: testEpoch}
	archived, err = m.ShouldArchive(durable)
	require.NoError(t, err)
	assert.False(t, archived)
}

func TestShouldArchiveFreshNote(t *testing.T) {
	m := newTestManager(testEpoch)
	rec := NewRecord(testEpoch)

	archived, err := m.ShouldArchive(rec)
	require.NoError(t, err)
	assert.False(t, archived)
}

func TestMemoryStoreInitIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Init(ctx, "note:a", testEpoch))

	// Reinforce, then re-init: the record must survive untouched.
	m := newTestManager(testEpoch.Add(time.Hour))
	require.NoError(t, store.Update(ctx, "note:a", func(rec *Record) error {
		return m.Reinforce(rec, 0.8)
	}))
	require.NoError(t, store.Init(ctx, "note:a", testEpoch.Add(48*time.Hour)))

	rec, err := store.Get(ctx, "note:a")
	require.NoError(t, err)
	assert.Equal(t, 1.8, rec.Strength)
}

func TestMemoryStoreUpdateMissingRecord(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	err := store.Update(ctx, "note:missing", func(rec *Record) error { return nil })
	assert.ErrorIs(t, err, ErrNoRecord)

	_, err = store.Get(ctx, "note:missing")
	assert.ErrorIs(t, err, ErrNoRecord)
}

func TestMemoryStoreConcurrentReinforcementLosesNoIncrements(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Init(ctx, "note:a", testEpoch))

	m := newTestManager(testEpoch.Add(time.Hour))

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Update(ctx, "note:a", func(rec *Record) error {
				return m.Reinforce(rec, 0)
			})
		}()
	}
	wg.Wait()

	rec, err := store.Get(ctx, "note:a")
	require.NoError(t, err)
	assert.Equal(t, workers, rec.RetrievalCount)
}
