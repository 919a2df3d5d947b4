package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"
)

// Handler processes one task. Returning an error triggers a retry until
// the worker's retry budget is exhausted.
type Handler func(ctx context.Context, task Task) error

// WorkerOptions configures the background worker behavior.
type WorkerOptions struct {
	// BatchSize is how many tasks accumulate before an early flush
	// (default: 8).
	BatchSize int

	// FlushInterval is the maximum time a task waits in the batch buffer
	// before being processed (default: 30s).
	FlushInterval time.Duration

	// PollInterval is how often the worker checks the queue for new tasks
	// (default: 100ms).
	PollInterval time.Duration

	// Concurrency is the number of tasks processed at once (default: 4).
	Concurrency int

	// MaxRetries is how many times a failed task is retried before it is
	// dropped (default: 2).
	MaxRetries int

	// ShutdownTimeout is the time to wait for graceful shutdown
	// (default: 30s).
	ShutdownTimeout time.Duration

	// Logger is the structured logger for worker operations.
	// If nil, slog.Default is used.
	Logger *slog.Logger
}

func (o WorkerOptions) withDefaults() WorkerOptions {
	if o.BatchSize <= 0 {
		o.BatchSize = 8
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = 30 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 100 * time.Millisecond
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	} else if o.MaxRetries == 0 {
		o.MaxRetries = 2
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Worker drains a Queue in batches. Tasks are buffered until either
// BatchSize is reached or FlushInterval elapses, then each task in the
// batch is dispatched to its registered handler with bounded concurrency
// and per-task retries. Tasks whose retries exhaust are dropped with a
// warning; background maintenance must never wedge the queue.
//
// The worker polls rather than blocking on Dequeue so that Flush can make
// a hard guarantee: every task enqueued before the call has been handled
// when Flush returns.
type Worker struct {
	queue  Queue
	opts   WorkerOptions
	logger *slog.Logger

	mu       sync.Mutex
	handlers map[Kind]Handler
	started  bool
	cancel   context.CancelFunc
	loopDone chan struct{}

	flushReq chan chan error

	sem     chan struct{}
	tasksWG sync.WaitGroup
}

// NewWorker creates a worker for the given queue. Handlers are registered
// with Handle before Start.
func NewWorker(q Queue, opts WorkerOptions) *Worker {
	opts = opts.withDefaults()
	return &Worker{
		queue:    q,
		opts:     opts,
		logger:   opts.Logger,
		handlers: make(map[Kind]Handler),
		flushReq: make(chan chan error),
		sem:      make(chan struct{}, opts.Concurrency),
	}
}

// Handle registers the handler for a task kind, replacing any previous
// registration. It must be called before Start.
func (w *Worker) Handle(kind Kind, h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[kind] = h
}

// Start launches the collector loop. It returns an error if the worker is
// already running.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return fmt.Errorf("worker already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.loopDone = make(chan struct{})
	w.started = true

	go w.run(runCtx)

	w.logger.Info("worker started",
		"batch_size", w.opts.BatchSize,
		"flush_interval", w.opts.FlushInterval,
		"concurrency", w.opts.Concurrency,
	)
	return nil
}

// run is the collector loop: accumulate tasks, flush on size or interval.
func (w *Worker) run(ctx context.Context) {
	defer close(w.loopDone)

	interval := time.NewTicker(w.opts.FlushInterval)
	defer interval.Stop()
	poll := time.NewTicker(w.opts.PollInterval)
	defer poll.Stop()

	var pending []Task

	flush := func() {
		if len(pending) == 0 {
			return
		}
		batch := pending
		pending = nil
		w.dispatch(ctx, batch)
		interval.Reset(w.opts.FlushInterval)
	}

	for {
		select {
		case <-ctx.Done():
			if len(pending) > 0 {
				w.logger.Warn("dropping buffered tasks on shutdown", "count", len(pending))
			}
			return

		case <-poll.C:
			closed := w.fill(ctx, &pending)
			if len(pending) >= w.opts.BatchSize {
				flush()
			}
			if closed {
				flush()
				return
			}

		case <-interval.C:
			flush()

		case ack := <-w.flushReq:
			closed, err := w.drain(ctx, &pending)
			flush()
			w.tasksWG.Wait()
			ack <- err
			if closed {
				return
			}
		}
	}
}

// fill moves tasks from the queue into the batch buffer until the buffer
// is full or the queue is empty. Returns true when the queue has closed.
func (w *Worker) fill(ctx context.Context, pending *[]Task) bool {
	for len(*pending) < w.opts.BatchSize {
		task, ok, err := w.queue.TryDequeue(ctx)
		if err != nil {
			if errors.Is(err, ErrClosed) {
				return true
			}
			w.logger.Error("dequeue failed", "error", err)
			return false
		}
		if !ok {
			return false
		}
		*pending = append(*pending, task)
	}
	return false
}

// drain moves every waiting task into the batch buffer regardless of
// batch size. The first return is true when the queue has closed.
func (w *Worker) drain(ctx context.Context, pending *[]Task) (bool, error) {
	for {
		task, ok, err := w.queue.TryDequeue(ctx)
		if err != nil {
			if errors.Is(err, ErrClosed) {
				return true, nil
			}
			return false, fmt.Errorf("drain failed: %w", err)
		}
		if !ok {
			return false, nil
		}
		*pending = append(*pending, task)
	}
}

// dispatch hands each task in the batch to its handler, bounded by the
// concurrency semaphore.
func (w *Worker) dispatch(ctx context.Context, batch []Task) {
	w.logger.Debug("dispatching batch", "size", len(batch))

	for _, task := range batch {
		w.mu.Lock()
		handler := w.handlers[task.Kind]
		w.mu.Unlock()

		if handler == nil {
			w.logger.Warn("no handler registered, dropping task",
				"kind", task.Kind, "task_id", task.ID)
			continue
		}

		w.tasksWG.Add(1)
		go func(task Task) {
			defer w.tasksWG.Done()

			select {
			case w.sem <- struct{}{}:
				defer func() { <-w.sem }()
			case <-ctx.Done():
				w.logger.Debug("task abandoned on shutdown", "task_id", task.ID)
				return
			}

			w.process(ctx, handler, task)
		}(task)
	}
}

// process runs one task through its handler with retries and backoff.
func (w *Worker) process(ctx context.Context, handler Handler, task Task) {
	start := time.Now()

	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= w.opts.MaxRetries; attempt++ {
		task.Attempt = attempt
		attempts++
		lastErr = handler(ctx, task)
		if lastErr == nil {
			w.logger.Debug("task completed",
				"task_id", task.ID,
				"kind", task.Kind,
				"note_id", task.NoteID,
				"attempts", attempts,
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return
		}

		if ctx.Err() != nil {
			break
		}
		if attempt < w.opts.MaxRetries {
			delay := time.Duration(math.Pow(2, float64(attempt))) * 100 * time.Millisecond
			select {
			case <-time.After(delay):
			case <-ctx.Done():
			}
		}
	}

	w.logger.Warn("task dropped after retries",
		"task_id", task.ID,
		"kind", task.Kind,
		"note_id", task.NoteID,
		"attempts", attempts,
		"error", lastErr,
	)
}

// Flush forces an immediate batch flush and blocks until every task that
// was enqueued before the call has been handled. Tasks enqueued while the
// flush is running may or may not be covered.
func (w *Worker) Flush(ctx context.Context) error {
	w.mu.Lock()
	started := w.started
	loopDone := w.loopDone
	w.mu.Unlock()
	if !started {
		return fmt.Errorf("worker not started")
	}

	ack := make(chan error, 1)
	select {
	case w.flushReq <- ack:
	case <-loopDone:
		return fmt.Errorf("worker stopped")
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-ack:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop cancels the collector and waits up to ShutdownTimeout for in-flight
// tasks to finish.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return nil
	}
	w.started = false
	cancel := w.cancel
	loopDone := w.loopDone
	w.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		<-loopDone
		w.tasksWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("worker stopped")
		return nil
	case <-time.After(w.opts.ShutdownTimeout):
		w.logger.Warn("worker shutdown timeout exceeded", "timeout", w.opts.ShutdownTimeout)
		return fmt.Errorf("worker shutdown timed out after %s", w.opts.ShutdownTimeout)
	}
}
