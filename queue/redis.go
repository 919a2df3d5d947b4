package queue

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures the Redis-backed queue.
type RedisOptions struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379")
	URL string

	// Key is the Redis list holding pending tasks (default: "engram:tasks").
	Key string

	// TLS configuration for secure connections
	TLS *tls.Config

	// ConnectTimeout is the maximum time to wait for connection establishment
	ConnectTimeout time.Duration

	// ReadTimeout is the maximum time to wait for read operations
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait for write operations
	WriteTimeout time.Duration

	// BlockInterval bounds each blocking pop so context cancellation is
	// honored between polls (default: 1s).
	BlockInterval time.Duration
}

// RedisQueue implements Queue on a Redis list using go-redis/v9. Tasks are
// pushed with LPUSH and popped with BRPOP, giving FIFO order across any
// number of producer and consumer processes.
type RedisQueue struct {
	client *redis.Client
	key    string
	block  time.Duration

	mu     sync.Mutex
	closed bool
}

// NewRedisQueue creates a Redis-backed queue with the given options.
func NewRedisQueue(opts RedisOptions) (*RedisQueue, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.Key == "" {
		opts.Key = "engram:tasks"
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 30 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.BlockInterval == 0 {
		opts.BlockInterval = time.Second
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	redisOpts.TLSConfig = opts.TLS
	redisOpts.DialTimeout = opts.ConnectTimeout
	redisOpts.ReadTimeout = opts.ReadTimeout
	redisOpts.WriteTimeout = opts.WriteTimeout

	client := redis.NewClient(redisOpts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisQueue{
		client: client,
		key:    opts.Key,
		block:  opts.BlockInterval,
	}, nil
}

// Enqueue adds a task to the back of the queue.
func (q *RedisQueue) Enqueue(ctx context.Context, task Task) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}
	if q.isClosed() {
		return ErrClosed
	}

	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	if err := q.client.LPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("failed to push to queue %s: %w", q.key, err)
	}

	return nil
}

// Dequeue blocks until a task is available or the context is cancelled.
func (q *RedisQueue) Dequeue(ctx context.Context) (Task, error) {
	for {
		if q.isClosed() {
			return Task{}, ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return Task{}, err
		}

		// BRPOP returns [key, value] or redis.Nil on timeout.
		result, err := q.client.BRPop(ctx, q.block, q.key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return Task{}, fmt.Errorf("failed to pop from queue %s: %w", q.key, err)
		}

		if len(result) != 2 {
			return Task{}, fmt.Errorf("unexpected BRPOP result length: %d", len(result))
		}

		var task Task
		if err := json.Unmarshal([]byte(result[1]), &task); err != nil {
			return Task{}, fmt.Errorf("failed to unmarshal task: %w", err)
		}
		return task, nil
	}
}

// TryDequeue pops the front task without blocking.
func (q *RedisQueue) TryDequeue(ctx context.Context) (Task, bool, error) {
	if q.isClosed() {
		return Task{}, false, ErrClosed
	}

	data, err := q.client.RPop(ctx, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Task{}, false, nil
		}
		return Task{}, false, fmt.Errorf("failed to pop from queue %s: %w", q.key, err)
	}

	var task Task
	if err := json.Unmarshal([]byte(data), &task); err != nil {
		return Task{}, false, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	return task, true, nil
}

// Len reports the number of tasks waiting in the queue.
func (q *RedisQueue) Len(ctx context.Context) (int, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue length: %w", err)
	}
	return int(n), nil
}

// Close closes the Redis connection. Tasks remain in Redis for other
// consumers.
func (q *RedisQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	return q.client.Close()
}

func (q *RedisQueue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
