// Package disk implements the queue contract over a single transactional
// SQLite file. Independent processes share the queue purely through that
// file: every compound mutation runs in one transaction, and blocking
// operations wait by watching the file for external modification.
package disk

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	queuify "github.com/msamsami/queuify"
	"github.com/msamsami/queuify/internal/deadline"
	"github.com/msamsami/queuify/internal/fswatch"
	"github.com/msamsami/queuify/internal/sqlitestore"
	"github.com/msamsami/queuify/pkg/log"
)

// Options configures a disk queue.
type Options struct {
	// MaxSize bounds the queue capacity. 0 means unbounded.
	MaxSize int
	// BusyTimeout is passed through to the SQLite store.
	BusyTimeout time.Duration
	// PollInterval and Debounce tune the default poll-based file watcher.
	PollInterval time.Duration
	Debounce     time.Duration
	// Watch overrides change detection, e.g. with fswatch.NewNotify.
	Watch fswatch.Factory
	// Logger receives engine state transitions. Defaults to a nop logger.
	Logger log.Logger
}

// Queue is a FIFO queue persisted in a SQLite file.
type Queue[T any] struct {
	db      *sqlitestore.DB
	name    string
	maxsize int
	codec   queuify.Codec[T]
	logger  log.Logger
	tables  tables

	pollInterval time.Duration
	debounce     time.Duration
	watchFactory fswatch.Factory

	initialized atomic.Bool
	initMu      sync.Mutex
}

// Open creates a queue handle for queueName inside the file at filePath. The
// file and schema are created lazily on first use; an existing file with a
// mismatched schema is reported as queuify.ErrQueueFileCorrupted.
func Open[T any](filePath, queueName string, codec queuify.Codec[T], opts Options) (*Queue[T], error) {
	db, err := sqlitestore.Open(sqlitestore.Options{Path: filePath, BusyTimeout: opts.BusyTimeout})
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Queue[T]{
		db:           db,
		name:         queueName,
		maxsize:      opts.MaxSize,
		codec:        codec,
		logger:       logger.WithComponent("diskqueue").With(log.F("queue", queueName)),
		tables:       tablesFor(queueName),
		pollInterval: opts.PollInterval,
		debounce:     opts.Debounce,
		watchFactory: opts.Watch,
	}, nil
}

// Close releases the database handle. It does not touch durable state.
func (q *Queue[T]) Close() error { return q.db.Close() }

// Name returns the queue name.
func (q *Queue[T]) Name() string { return q.name }

// MaxSize returns the capacity bound. 0 means unbounded.
func (q *Queue[T]) MaxSize() int { return q.maxsize }

// Path returns the backing file path.
func (q *Queue[T]) Path() string { return q.db.Path() }

// ensureInitialized validates or creates the backing tables exactly once per
// handle. Concurrent first use within one process is serialized by initMu;
// across processes the validate-or-create transaction is idempotent.
func (q *Queue[T]) ensureInitialized(ctx context.Context) error {
	if q.initialized.Load() {
		return nil
	}
	q.initMu.Lock()
	defer q.initMu.Unlock()
	if q.initialized.Load() {
		return nil
	}

	err := q.db.Tx(ctx, func(tx *sql.Tx) error {
		steps := []struct {
			table    string
			expected []column
			create   []string
		}{
			{q.tables.items, itemColumns, []string{createItemsSQL(q.tables.items)}},
			{q.tables.tasks, taskColumns, []string{createTasksSQL(q.tables.tasks), seedTasksSQL(q.tables.tasks)}},
		}
		for _, step := range steps {
			existing, err := tableColumns(ctx, tx, step.table)
			if err != nil {
				return err
			}
			if len(existing) > 0 {
				if !columnsMatch(existing, step.expected) {
					return queuify.ErrQueueFileCorrupted
				}
				continue
			}
			for _, stmt := range step.create {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	q.initialized.Store(true)
	q.logger.Debug("queue initialized", log.F("path", q.db.Path()), log.F("maxsize", q.maxsize))
	return nil
}

func tableColumns(ctx context.Context, tx *sql.Tx, table string) ([]column, error) {
	rows, err := tx.QueryContext(ctx, tableInfoSQL, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []column
	for rows.Next() {
		var c column
		if err := rows.Scan(&c.name, &c.typ, &c.pk); err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

func columnsMatch(existing, expected []column) bool {
	if len(existing) != len(expected) {
		return false
	}
	for i, c := range existing {
		want := expected[i]
		if c.name != want.name || strings.ToUpper(c.typ) != want.typ || c.pk != want.pk {
			return false
		}
	}
	return true
}

// PutNoWait enqueues item or fails with queuify.ErrQueueFull. The capacity
// check, insert, and counter increment share one transaction so concurrent
// producers can never push a bounded queue past its capacity.
func (q *Queue[T]) PutNoWait(ctx context.Context, item T) error {
	if err := q.ensureInitialized(ctx); err != nil {
		return err
	}
	data, err := q.codec.Encode(item)
	if err != nil {
		return err
	}
	return q.db.Tx(ctx, func(tx *sql.Tx) error {
		if q.maxsize > 0 {
			var n int
			if err := tx.QueryRowContext(ctx, countItemsSQL(q.tables.items)).Scan(&n); err != nil {
				return err
			}
			if n >= q.maxsize {
				return queuify.ErrQueueFull
			}
		}
		if _, err := tx.ExecContext(ctx, insertItemSQL(q.tables.items), data); err != nil {
			return err
		}
		return q.bumpTasks(ctx, tx, 1)
	})
}

// GetNoWait dequeues the oldest item or fails with queuify.ErrQueueEmpty.
func (q *Queue[T]) GetNoWait(ctx context.Context) (T, error) {
	var item T
	if err := q.ensureInitialized(ctx); err != nil {
		return item, err
	}
	err := q.db.Tx(ctx, func(tx *sql.Tx) error {
		var id int64
		var data []byte
		err := tx.QueryRowContext(ctx, oldestItemSQL(q.tables.items)).Scan(&id, &data)
		if errors.Is(err, sql.ErrNoRows) {
			return queuify.ErrQueueEmpty
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, deleteItemSQL(q.tables.items), id); err != nil {
			return err
		}
		// Decode inside the transaction: a decode failure rolls the delete
		// back and leaves the item in place.
		item, err = q.codec.Decode(data)
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return item, nil
}

// Put enqueues item, blocking while the queue is full.
func (q *Queue[T]) Put(ctx context.Context, item T, timeout time.Duration) error {
	return q.waitRetry(ctx, timeout, queuify.ErrQueueFull, func(ctx context.Context) error {
		return q.PutNoWait(ctx, item)
	})
}

// Get dequeues the oldest item, blocking while the queue is empty.
func (q *Queue[T]) Get(ctx context.Context, timeout time.Duration) (T, error) {
	var item T
	err := q.waitRetry(ctx, timeout, queuify.ErrQueueEmpty, func(ctx context.Context) error {
		var err error
		item, err = q.GetNoWait(ctx)
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return item, nil
}

// waitRetry runs attempt, and while it keeps failing with retryOn, watches
// the backing file and re-attempts on every change notification. When the
// deadline elapses the watch loop stops and retryOn surfaces to the caller.
func (q *Queue[T]) waitRetry(ctx context.Context, timeout time.Duration, retryOn error, attempt func(context.Context) error) error {
	wctx, cancel, err := deadline.Apply(ctx, timeout)
	if err != nil {
		return err
	}
	defer cancel()

	if err := attempt(ctx); err == nil || !errors.Is(err, retryOn) {
		return err
	}

	watcher, err := q.newWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	for {
		// Re-attempt before waiting: the state may have changed between the
		// previous attempt and the watcher becoming active.
		if err := attempt(ctx); err == nil || !errors.Is(err, retryOn) {
			return err
		}
		select {
		case <-wctx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return retryOn
		case <-watcher.Events():
		}
	}
}

func (q *Queue[T]) newWatcher() (fswatch.Watcher, error) {
	if q.watchFactory != nil {
		return q.watchFactory(q.db.Path())
	}
	return fswatch.NewPoll(q.db.Path(), q.pollInterval, q.debounce), nil
}

// Size returns the current number of items. Approximate relative to
// concurrent mutators.
func (q *Queue[T]) Size(ctx context.Context) (int, error) {
	if err := q.ensureInitialized(ctx); err != nil {
		return 0, err
	}
	var n int
	if err := q.db.QueryRow(ctx, countItemsSQL(q.tables.items)).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
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

// TaskDone decrements the unfinished-task counter. The read and decrement
// share one transaction; an underflow attempt fails without mutating.
func (q *Queue[T]) TaskDone(ctx context.Context) error {
	if err := q.ensureInitialized(ctx); err != nil {
		return err
	}
	return q.db.Tx(ctx, func(tx *sql.Tx) error {
		var n int
		err := tx.QueryRowContext(ctx, readTasksSQL(q.tables.tasks)).Scan(&n)
		if errors.Is(err, sql.ErrNoRows) {
			return queuify.ErrQueueFileCorrupted
		}
		if err != nil {
			return err
		}
		if n <= 0 {
			return queuify.ErrTaskDoneTooMany
		}
		return q.bumpTasks(ctx, tx, -1)
	})
}

func (q *Queue[T]) bumpTasks(ctx context.Context, tx *sql.Tx, delta int) error {
	res, err := tx.ExecContext(ctx, addTasksSQL(q.tables.tasks), delta)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected != 1 {
		return queuify.ErrQueueFileCorrupted
	}
	return nil
}

// Join blocks until the unfinished-task counter reaches zero or the queue is
// deleted, watching the file for changes between checks.
func (q *Queue[T]) Join(ctx context.Context) error {
	if err := q.ensureInitialized(ctx); err != nil {
		return err
	}
	unfinished, err := q.hasUnfinishedTasks(ctx)
	if err != nil || !unfinished {
		return err
	}

	watcher, err := q.newWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	for {
		unfinished, err := q.hasUnfinishedTasks(ctx)
		if err != nil || !unfinished {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-watcher.Events():
		}
	}
}

func (q *Queue[T]) hasUnfinishedTasks(ctx context.Context) (bool, error) {
	var n int
	err := q.db.QueryRow(ctx, readTasksSQL(q.tables.tasks)).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return false, queuify.ErrQueueFileCorrupted
	}
	if err != nil {
		// The counter table vanishing under a waiter means the queue was
		// deleted; that unblocks Join rather than failing it.
		if isMissingTable(err) {
			return false, nil
		}
		return false, err
	}
	return n > 0, nil
}

func isMissingTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}

// Delete drops both tables in one transaction. The resulting file change
// wakes any watchers blocked in Put, Get, or Join.
func (q *Queue[T]) Delete(ctx context.Context) error {
	if err := q.ensureInitialized(ctx); err != nil {
		return err
	}
	err := q.db.Tx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{q.tables.items, q.tables.tasks} {
			if _, err := tx.ExecContext(ctx, dropTableSQL(table)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	q.logger.Debug("queue deleted", log.F("path", q.db.Path()))
	return nil
}

var _ queuify.Queue[string] = (*Queue[string])(nil)
