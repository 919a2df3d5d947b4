// Package queue carries background maintenance tasks from note ingestion
// to the worker that processes them.
//
// Ingestion must stay fast: link discovery and metadata refresh happen
// off the caller's path, as tasks pushed through a Queue. Two transports
// are provided:
//
//   - ChannelQueue runs in-process and is the default. Each engine owns
//     its own instance; nothing is shared between engines.
//   - RedisQueue stores tasks in a Redis list (LPUSH/BRPOP), letting a
//     separate worker process drain them.
//
// # Worker
//
// Worker batches tasks to amortize model calls during link discovery: a
// batch flushes when it reaches BatchSize or when FlushInterval elapses,
// whichever comes first. Within a batch, tasks run concurrently up to
// Concurrency, each with retry and exponential backoff. A task that still
// fails after MaxRetries is dropped with a warning rather than blocking
// the queue.
//
//	w := queue.NewWorker(q, queue.WorkerOptions{})
//	w.Handle(queue.KindLinkDiscovery, discoverHandler)
//	w.Handle(queue.KindMetadataRefresh, refreshHandler)
//	_ = w.Start(ctx)
//	defer w.Stop()
//
// Flush drains everything enqueued so far and waits for handlers to
// finish, which gives tests and shutdown paths a deterministic barrier.
package queue
