// Package redis implements the queue contract over a shared Redis instance.
// Items live in a list; capacity bounding uses a distributed counting
// semaphore; Join callers wait on a pub/sub channel. All compound mutations
// run as atomic Lua scripts, so independent processes coordinate purely
// through the store.
package redis

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	queuify "github.com/msamsami/queuify"
	"github.com/msamsami/queuify/internal/deadline"
	"github.com/msamsami/queuify/pkg/log"
)

const (
	// semaphoreToken is the interchangeable value representing one unit of
	// spare capacity.
	semaphoreToken = "token"

	noRemainingTasksMsg = "no_remaining_tasks"
	queueDeletedMsg     = "queue_deleted"

	// semaphoreLockTTL bounds how long a crashed initialization winner can
	// block losers: once the lock expires, the next handle to initialize
	// wins it and fills the semaphore. A liveness bound, not a wait forever.
	semaphoreLockTTL = 30 * time.Second
)

var errJoinSubscriptionClosed = errors.New("join subscription closed")

// Options configures a Redis queue.
type Options struct {
	// MaxSize bounds the queue capacity. 0 means unbounded.
	MaxSize int
	// Logger receives engine state transitions. Defaults to a nop logger.
	Logger log.Logger
}

// Queue is a FIFO queue persisted in Redis.
type Queue[T any] struct {
	client  redis.UniversalClient
	name    string
	maxsize int
	codec   queuify.Codec[T]
	logger  log.Logger
	keys    keys

	initialized atomic.Bool
	initMu      sync.Mutex
}

// New creates a queue handle named queueName on client. Durable state is
// primed lazily on first use.
func New[T any](client redis.UniversalClient, queueName string, codec queuify.Codec[T], opts Options) *Queue[T] {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Queue[T]{
		client:  client,
		name:    queueName,
		maxsize: opts.MaxSize,
		codec:   codec,
		logger:  logger.WithComponent("redisqueue").With(log.F("queue", queueName)),
		keys:    keysFor(queueName),
	}
}

// Name returns the queue name.
func (q *Queue[T]) Name() string { return q.name }

// MaxSize returns the capacity bound. 0 means unbounded.
func (q *Queue[T]) MaxSize() int { return q.maxsize }

// Key returns the Redis key holding the item list.
func (q *Queue[T]) Key() string { return q.keys.main }

// ensureInitialized primes the queue's keys exactly once per handle. For a
// bounded queue, whichever process wins the semaphore lock pre-fills the
// semaphore; losers perform a non-consuming blocking pop so they return only
// after the winner has populated at least one token.
func (q *Queue[T]) ensureInitialized(ctx context.Context) error {
	if q.initialized.Load() {
		return nil
	}
	q.initMu.Lock()
	defer q.initMu.Unlock()
	if q.initialized.Load() {
		return nil
	}

	if q.maxsize > 0 {
		if err := q.initializeSemaphore(ctx); err != nil {
			return err
		}
	}
	if err := q.client.SetNX(ctx, q.keys.unfinishedTasks, 0, 0).Err(); err != nil {
		return err
	}
	q.initialized.Store(true)
	q.logger.Debug("queue initialized", log.F("maxsize", q.maxsize))
	return nil
}

func (q *Queue[T]) initializeSemaphore(ctx context.Context) error {
	lockValue := uuid.NewString()
	won, err := q.client.SetNX(ctx, q.keys.semaphoreLock, lockValue, semaphoreLockTTL).Result()
	if err != nil {
		return err
	}
	if won {
		initErr := initializeScript.Run(ctx, q.client,
			[]string{q.keys.main, q.keys.semaphore}, q.maxsize, semaphoreToken).Err()
		releaseErr := releaseLockScript.Run(context.WithoutCancel(ctx), q.client,
			[]string{q.keys.semaphoreLock}, lockValue).Err()
		if initErr != nil {
			return initErr
		}
		return releaseErr
	}

	// Lost the race: wait until the winner has populated the semaphore by
	// popping one token and pushing it straight back.
	res, err := q.client.BRPop(ctx, 0, q.keys.semaphore).Result()
	if err != nil {
		return err
	}
	return q.client.RPush(ctx, q.keys.semaphore, res[1]).Err()
}

// PutNoWait enqueues item or fails with queuify.ErrQueueFull. Capacity check,
// append, and counter increment are one atomic script.
func (q *Queue[T]) PutNoWait(ctx context.Context, item T) error {
	if err := q.ensureInitialized(ctx); err != nil {
		return err
	}
	data, err := q.codec.Encode(item)
	if err != nil {
		return err
	}
	ok, err := putNoWaitScript.Run(ctx, q.client,
		[]string{q.keys.main, q.keys.unfinishedTasks}, data, q.maxsize).Int()
	if err != nil {
		return err
	}
	if ok != 1 {
		return queuify.ErrQueueFull
	}
	return nil
}

// Put enqueues item, blocking while the queue is full. For a bounded queue a
// semaphore token is acquired first and treated as proof of reserved
// capacity; if the enqueue fails afterwards, the token is pushed back before
// the original error propagates.
func (q *Queue[T]) Put(ctx context.Context, item T, timeout time.Duration) error {
	wctx, cancel, err := deadline.Apply(ctx, timeout)
	if err != nil {
		return err
	}
	defer cancel()
	if err := q.ensureInitialized(ctx); err != nil {
		return err
	}
	data, err := q.codec.Encode(item)
	if err != nil {
		return err
	}

	var token string
	haveToken := false
	if q.maxsize > 0 {
		wait, _ := deadline.Remaining(wctx)
		res, err := q.client.BLPop(wctx, wait, q.keys.semaphore).Result()
		if err != nil {
			return q.mapWaitErr(ctx, err, queuify.ErrQueueFull)
		}
		token = res[1]
		haveToken = true
	}

	err = putScript.Run(ctx, q.client, []string{q.keys.main, q.keys.unfinishedTasks}, data).Err()
	if err != nil && haveToken {
		// Return the reserved capacity; the enqueue failure is what the
		// caller needs to see.
		_ = q.client.LPush(context.WithoutCancel(ctx), q.keys.semaphore, token).Err()
	}
	return err
}

// GetNoWait dequeues the oldest item or fails with queuify.ErrQueueEmpty.
// When bounded, the token returns to the semaphore in the same atomic script.
func (q *Queue[T]) GetNoWait(ctx context.Context) (T, error) {
	var zero T
	if err := q.ensureInitialized(ctx); err != nil {
		return zero, err
	}
	data, err := getNoWaitScript.Run(ctx, q.client,
		[]string{q.keys.main, q.keys.semaphore}, q.maxsize, semaphoreToken).Text()
	if err == redis.Nil {
		return zero, queuify.ErrQueueEmpty
	}
	if err != nil {
		return zero, err
	}
	return q.codec.Decode([]byte(data))
}

// Get dequeues the oldest item, blocking while the queue is empty.
func (q *Queue[T]) Get(ctx context.Context, timeout time.Duration) (T, error) {
	var zero T
	wctx, cancel, err := deadline.Apply(ctx, timeout)
	if err != nil {
		return zero, err
	}
	defer cancel()
	if err := q.ensureInitialized(ctx); err != nil {
		return zero, err
	}

	wait, _ := deadline.Remaining(wctx)
	res, err := q.client.BRPop(wctx, wait, q.keys.main).Result()
	if err != nil {
		return zero, q.mapWaitErr(ctx, err, queuify.ErrQueueEmpty)
	}
	if q.maxsize > 0 {
		if err := q.client.LPush(context.WithoutCancel(ctx), q.keys.semaphore, semaphoreToken).Err(); err != nil {
			return zero, err
		}
	}
	return q.codec.Decode([]byte(res[1]))
}

// mapWaitErr turns a blocking-pop expiry into the expected queue condition
// while letting caller cancellation and store failures through unchanged.
func (q *Queue[T]) mapWaitErr(ctx context.Context, err, elapsed error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err == redis.Nil || deadline.Expired(err) {
		return elapsed
	}
	return err
}

// Size returns the current list length. Approximate relative to concurrent
// mutators.
func (q *Queue[T]) Size(ctx context.Context) (int, error) {
	if err := q.ensureInitialized(ctx); err != nil {
		return 0, err
	}
	n, err := q.client.LLen(ctx, q.keys.main).Result()
	return int(n), err
}

// Empty reports whether the queue holds no items.
func (q *Queue[T]) Empty(ctx context.Context) (bool, error) {
	n, err := q.Size(ctx)
	return n == 0, err
}

// Full reports whether the queue holds MaxSize items. Always false for
// unbounded queues.
func (q *Queue[T]) Full(ctx context.Context) (bool, error) {
	if q.maxsize <= 0 {
		return false, nil
	}
	n, err := q.Size(ctx)
	return n >= q.maxsize, err
}

// TaskDone decrements the unfinished-task counter, publishing the
// no-remaining-tasks notification when it reaches zero.
func (q *Queue[T]) TaskDone(ctx context.Context) error {
	if err := q.ensureInitialized(ctx); err != nil {
		return err
	}
	err := taskDoneScript.Run(ctx, q.client,
		[]string{q.keys.unfinishedTasks, q.keys.joinChannel},
		noRemainingTasksMsg, queuify.ErrTaskDoneTooMany.Error()).Err()
	if err != nil && strings.Contains(err.Error(), queuify.ErrTaskDoneTooMany.Error()) {
		return queuify.ErrTaskDoneTooMany
	}
	return err
}

// Join blocks until the unfinished-task counter reaches zero or the queue is
// deleted. The counter is re-checked after subscribing to close the race
// between the initial check and the subscription becoming active.
func (q *Queue[T]) Join(ctx context.Context) error {
	if err := q.ensureInitialized(ctx); err != nil {
		return err
	}
	unfinished, err := q.hasUnfinishedTasks(ctx)
	if err != nil || !unfinished {
		return err
	}

	sub := q.client.Subscribe(ctx, q.keys.joinChannel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}

	unfinished, err = q.hasUnfinishedTasks(ctx)
	if err != nil || !unfinished {
		return err
	}

	return waitJoinSignal(ctx, sub.Channel())
}

// waitJoinSignal blocks until a completion payload arrives on ch. A channel
// closed without ctx being done means the subscription died underneath the
// waiter, which must surface as an error, never as success.
func waitJoinSignal(ctx context.Context, ch <-chan *redis.Message) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				if err := ctx.Err(); err != nil {
					return err
				}
				return errJoinSubscriptionClosed
			}
			if msg.Payload == noRemainingTasksMsg || msg.Payload == queueDeletedMsg {
				return nil
			}
		}
	}
}

func (q *Queue[T]) hasUnfinishedTasks(ctx context.Context) (bool, error) {
	remaining, err := q.client.Get(ctx, q.keys.unfinishedTasks).Int()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return remaining > 0, nil
}

// Delete publishes the deletion notification, then removes every key owned
// by the queue.
func (q *Queue[T]) Delete(ctx context.Context) error {
	if err := q.client.Publish(ctx, q.keys.joinChannel, queueDeletedMsg).Err(); err != nil {
		return err
	}
	if err := q.client.Del(ctx, q.keys.all()...).Err(); err != nil {
		return err
	}
	q.logger.Debug("queue deleted")
	return nil
}

var _ queuify.Queue[string] = (*Queue[string])(nil)
