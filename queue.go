package queuify

import (
	"context"
	"time"
)

// Queue is the capability set shared by every engine. All blocking operations
// are safe to call concurrently from multiple goroutines and from multiple
// processes sharing the same backing store; no method mutates in-process
// shared state beyond the engine's one-time initialization guard.
type Queue[T any] interface {
	// Put enqueues item, blocking while the queue is full. A timeout of 0
	// blocks until ctx is done; a negative timeout is ErrNegativeTimeout.
	// When the timeout elapses, Put returns ErrQueueFull.
	Put(ctx context.Context, item T, timeout time.Duration) error

	// PutNoWait enqueues item or fails immediately with ErrQueueFull.
	PutNoWait(ctx context.Context, item T) error

	// Get dequeues the oldest item, blocking while the queue is empty. The
	// timeout rules match Put; when the timeout elapses, Get returns
	// ErrQueueEmpty. Dequeue is destructive: the item is removed from the
	// store the instant it is returned.
	Get(ctx context.Context, timeout time.Duration) (T, error)

	// GetNoWait dequeues the oldest item or fails immediately with
	// ErrQueueEmpty.
	GetNoWait(ctx context.Context) (T, error)

	// Size returns the approximate number of items in the queue. It is not a
	// linearizable snapshot relative to concurrent mutators: Size() > 0 does
	// not guarantee a subsequent GetNoWait will succeed.
	Size(ctx context.Context) (int, error)

	// Empty reports whether the queue currently holds no items.
	Empty(ctx context.Context) (bool, error)

	// Full reports whether the queue holds MaxSize items. Always false for
	// unbounded queues.
	Full(ctx context.Context) (bool, error)

	// TaskDone marks one formerly dequeued item as fully processed. Calling
	// it more times than items were enqueued returns ErrTaskDoneTooMany.
	TaskDone(ctx context.Context) error

	// Join blocks until every enqueued item has been marked done via
	// TaskDone, or until the queue is deleted. Returns immediately when the
	// unfinished-task count is already zero.
	Join(ctx context.Context) error

	// Delete removes all durable state for the queue and wakes any blocked
	// Join callers.
	Delete(ctx context.Context) error

	// Name returns the queue name.
	Name() string

	// MaxSize returns the capacity bound. 0 means unbounded.
	MaxSize() int
}
