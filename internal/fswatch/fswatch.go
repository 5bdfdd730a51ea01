// Package fswatch detects external modifications to a queue file. The disk
// engine re-attempts its non-blocking operation on every notification instead
// of holding locks while waiting.
//
// The default implementation is a debounced stat poller, which works on any
// filesystem including network mounts. NewNotify provides an inotify-style
// implementation for filesystems with native change events.
package fswatch

import (
	"os"
	"time"
)

// Watcher signals that the watched file may have changed. Events carries at
// most one pending notification; coalescing is intentional, the consumer
// re-checks queue state on every wakeup anyway.
type Watcher interface {
	Events() <-chan struct{}
	Close() error
}

// Factory creates a Watcher for the queue file at path. Engines accept a
// Factory so a runtime's native file-event facility can be substituted
// without changing engine logic.
type Factory func(path string) (Watcher, error)

const (
	// DefaultPollInterval matches the original polling cadence closely
	// enough to keep timed-out waits within the documented tolerance.
	DefaultPollInterval = 10 * time.Millisecond
	// DefaultDebounce coalesces bursts of modifications into one wakeup.
	DefaultDebounce = 10 * time.Millisecond
)

// sidecars returns the SQLite companion files whose modification also means
// the database changed.
func sidecars(path string) []string {
	return []string{path, path + "-journal", path + "-wal"}
}

// fingerprint summarizes the observable state of one file.
type fingerprint struct {
	exists  bool
	size    int64
	modTime time.Time
}

func stat(path string) fingerprint {
	info, err := os.Stat(path)
	if err != nil {
		return fingerprint{}
	}
	return fingerprint{exists: true, size: info.Size(), modTime: info.ModTime()}
}

type pollWatcher struct {
	paths    []string
	interval time.Duration
	debounce time.Duration
	events   chan struct{}
	stop     chan struct{}
	done     chan struct{}
}

// NewPoll returns a Watcher that stats path (and its SQLite sidecar files)
// every interval, emitting one event per debounce window in which any
// fingerprint changed.
func NewPoll(path string, interval, debounce time.Duration) Watcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w := &pollWatcher{
		paths:    sidecars(path),
		interval: interval,
		debounce: debounce,
		events:   make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *pollWatcher) Events() <-chan struct{} { return w.events }

func (w *pollWatcher) Close() error {
	close(w.stop)
	<-w.done
	return nil
}

func (w *pollWatcher) loop() {
	defer close(w.done)

	last := make([]fingerprint, len(w.paths))
	for i, p := range w.paths {
		last[i] = stat(p)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Changes landing inside the debounce window are coalesced into one
	// pending notification, never dropped: a waiter must wake for every
	// burst of modifications or it misses the mutation that freed it.
	var lastEmit time.Time
	pending := false
	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
		}

		for i, p := range w.paths {
			cur := stat(p)
			if cur != last[i] {
				last[i] = cur
				pending = true
			}
		}
		if pending && time.Since(lastEmit) >= w.debounce {
			lastEmit = time.Now()
			pending = false
			w.emit()
		}
	}
}

func (w *pollWatcher) emit() {
	select {
	case w.events <- struct{}{}:
	default:
	}
}
