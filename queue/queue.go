package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned by queue operations after Close.
//
// Example:
//
//	if err := q.Enqueue(ctx, task); errors.Is(err, queue.ErrClosed) {
//		// the engine is shutting down; drop the task
//	}
var ErrClosed = errors.New("queue is closed")

// DefaultCapacity bounds the in-memory queue buffer.
const DefaultCapacity = 1024

// Queue is the task transport between note ingestion and the background
// worker. Implementations must be safe for concurrent use.
type Queue interface {
	// Enqueue adds a task to the back of the queue.
	Enqueue(ctx context.Context, task Task) error

	// Dequeue removes and returns the task at the front of the queue,
	// blocking until one is available, the context is cancelled, or the
	// queue is closed.
	Dequeue(ctx context.Context) (Task, error)

	// TryDequeue removes and returns the front task without blocking.
	// The second return is false when the queue is empty.
	TryDequeue(ctx context.Context) (Task, bool, error)

	// Len reports the number of tasks waiting in the queue.
	Len(ctx context.Context) (int, error)

	// Close releases the queue. Tasks already buffered may still be
	// dequeued; new enqueues fail with ErrClosed.
	Close() error
}

// ChannelQueue is an in-process Queue backed by a buffered channel. It is
// the default transport when no Redis queue is configured.
type ChannelQueue struct {
	tasks chan Task
	done  chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewChannelQueue creates an in-process queue. A capacity of zero or less
// uses DefaultCapacity.
func NewChannelQueue(capacity int) *ChannelQueue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &ChannelQueue{
		tasks: make(chan Task, capacity),
		done:  make(chan struct{}),
	}
}

// Enqueue adds a task to the queue. It fails if the buffer is full rather
// than blocking the ingestion path.
func (q *ChannelQueue) Enqueue(ctx context.Context, task Task) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}

	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return ErrClosed
	}

	select {
	case q.tasks <- task:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("queue buffer full (%d tasks)", cap(q.tasks))
	}
}

// Dequeue blocks until a task is available, the context is cancelled, or
// the queue is closed and drained.
func (q *ChannelQueue) Dequeue(ctx context.Context) (Task, error) {
	// Prefer buffered tasks over the closed signal.
	select {
	case task := <-q.tasks:
		return task, nil
	default:
	}

	select {
	case task := <-q.tasks:
		return task, nil
	case <-ctx.Done():
		return Task{}, ctx.Err()
	case <-q.done:
		select {
		case task := <-q.tasks:
			return task, nil
		default:
			return Task{}, ErrClosed
		}
	}
}

// TryDequeue returns the front task without blocking.
func (q *ChannelQueue) TryDequeue(ctx context.Context) (Task, bool, error) {
	select {
	case task := <-q.tasks:
		return task, true, nil
	default:
	}

	select {
	case <-q.done:
		return Task{}, false, ErrClosed
	default:
		return Task{}, false, nil
	}
}

// Len reports the number of buffered tasks.
func (q *ChannelQueue) Len(ctx context.Context) (int, error) {
	return len(q.tasks), nil
}

// Close marks the queue closed. Buffered tasks remain dequeueable.
func (q *ChannelQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	close(q.done)
	return nil
}
