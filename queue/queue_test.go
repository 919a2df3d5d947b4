package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskValidate(t *testing.T) {
	tests := []struct {
		name    string
		task    Task
		wantErr bool
	}{
		{
			name: "valid link discovery",
			task: NewTask(KindLinkDiscovery, "note:abc"),
		},
		{
			name: "valid metadata refresh",
			task: NewTask(KindMetadataRefresh, "note:abc"),
		},
		{
			name:    "missing id",
			task:    Task{Kind: KindLinkDiscovery, NoteID: "note:abc"},
			wantErr: true,
		},
		{
			name:    "unknown kind",
			task:    Task{ID: "t1", Kind: Kind("reindex"), NoteID: "note:abc"},
			wantErr: true,
		},
		{
			name:    "missing note id",
			task:    Task{ID: "t1", Kind: KindLinkDiscovery},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.task.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewTaskAssignsIdentity(t *testing.T) {
	a := NewTask(KindLinkDiscovery, "note:abc")
	b := NewTask(KindLinkDiscovery, "note:abc")

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.False(t, a.EnqueuedAt.IsZero())
}

func TestChannelQueueFIFO(t *testing.T) {
	q := NewChannelQueue(16)
	defer q.Close()

	ctx := context.Background()
	first := NewTask(KindLinkDiscovery, "note:first")
	second := NewTask(KindMetadataRefresh, "note:second")

	require.NoError(t, q.Enqueue(ctx, first))
	require.NoError(t, q.Enqueue(ctx, second))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	got, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)
}

func TestChannelQueueTryDequeueEmpty(t *testing.T) {
	q := NewChannelQueue(4)
	defer q.Close()

	_, ok, err := q.TryDequeue(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestChannelQueueDequeueBlocksUntilEnqueue(t *testing.T) {
	q := NewChannelQueue(4)
	defer q.Close()

	ctx := context.Background()
	task := NewTask(KindLinkDiscovery, "note:late")

	done := make(chan Task, 1)
	go func() {
		got, err := q.Dequeue(ctx)
		if err == nil {
			done <- got
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Enqueue(ctx, task))

	select {
	case got := <-done:
		assert.Equal(t, task.ID, got.ID)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not observe enqueued task")
	}
}

func TestChannelQueueDequeueHonorsContext(t *testing.T) {
	q := NewChannelQueue(4)
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestChannelQueueClose(t *testing.T) {
	q := NewChannelQueue(4)
	ctx := context.Background()

	buffered := NewTask(KindLinkDiscovery, "note:buffered")
	require.NoError(t, q.Enqueue(ctx, buffered))
	require.NoError(t, q.Close())

	// Buffered tasks drain after close.
	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, buffered.ID, got.ID)

	// Then the closed state surfaces.
	_, err = q.Dequeue(ctx)
	assert.ErrorIs(t, err, ErrClosed)

	err = q.Enqueue(ctx, NewTask(KindLinkDiscovery, "note:rejected"))
	assert.ErrorIs(t, err, ErrClosed)

	// Close is idempotent.
	assert.NoError(t, q.Close())
}

func TestChannelQueueRejectsInvalidTask(t *testing.T) {
	q := NewChannelQueue(4)
	defer q.Close()

	err := q.Enqueue(context.Background(), Task{})
	assert.Error(t, err)
}

func TestChannelQueueFullBuffer(t *testing.T) {
	q := NewChannelQueue(1)
	defer q.Close()

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, NewTask(KindLinkDiscovery, "note:one")))

	err := q.Enqueue(ctx, NewTask(KindLinkDiscovery, "note:two"))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrClosed)
}
