// Package sqlitestore wraps a single-file SQLite database with the
// transaction helpers the disk queue engine needs. All compound mutations go
// through Tx so a partial effect is never visible to other processes.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Options configures the SQLite store wrapper.
type Options struct {
	// Path is the queue file. Created on first use if absent.
	Path string
	// BusyTimeout bounds how long a statement waits for a lock held by
	// another process before failing with SQLITE_BUSY.
	BusyTimeout time.Duration
}

// DB wraps a SQLite database handle shared by one queue instance.
type DB struct {
	inner *sql.DB
	path  string
}

// Open creates or opens the SQLite file at opts.Path.
func Open(opts Options) (*DB, error) {
	if opts.Path == "" {
		return nil, errors.New("sqlitestore: Options.Path is required")
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = 5 * time.Second
	}

	// _txlock=immediate makes every transaction take the write lock up
	// front, so read-then-write transactions cannot deadlock on upgrade.
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_pragma=busy_timeout(%d)",
		opts.Path, opts.BusyTimeout.Milliseconds())
	inner, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer at a time; a single pooled connection keeps
	// in-process transactions serialized instead of contending on SQLITE_BUSY.
	inner.SetMaxOpenConns(1)

	return &DB{inner: inner, path: opts.Path}, nil
}

// Close closes the database handle.
func (db *DB) Close() error {
	if db == nil || db.inner == nil {
		return nil
	}
	return db.inner.Close()
}

// Path returns the backing file path.
func (db *DB) Path() string { return db.path }

// Tx runs fn inside one transaction, committing on nil and rolling back on
// error. The rollback error is intentionally dropped: the original failure is
// the one that matters to the caller.
func (db *DB) Tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.inner.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// QueryRow runs a single-row query outside any transaction.
func (db *DB) QueryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return db.inner.QueryRowContext(ctx, query, args...)
}

// Query runs a multi-row query outside any transaction.
func (db *DB) Query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return db.inner.QueryContext(ctx, query, args...)
}
