package fswatch

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

type notifyWatcher struct {
	inner    *fsnotify.Watcher
	names    map[string]struct{}
	debounce time.Duration
	events   chan struct{}
	done     chan struct{}
}

// NewNotify returns a Watcher backed by the platform's native change
// notification facility. It watches the queue file's directory because SQLite
// creates and removes sidecar files rather than modifying a fixed inode set.
func NewNotify(path string, debounce time.Duration) (Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	inner, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := inner.Add(filepath.Dir(path)); err != nil {
		_ = inner.Close()
		return nil, err
	}
	names := make(map[string]struct{}, 3)
	for _, p := range sidecars(path) {
		names[filepath.Base(p)] = struct{}{}
	}
	w := &notifyWatcher{
		inner:    inner,
		names:    names,
		debounce: debounce,
		events:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *notifyWatcher) Events() <-chan struct{} { return w.events }

func (w *notifyWatcher) Close() error {
	err := w.inner.Close()
	<-w.done
	return err
}

func (w *notifyWatcher) loop() {
	defer close(w.done)

	// Events inside the debounce window are coalesced into one deferred
	// emission when the window ends, never dropped.
	flush := time.NewTimer(w.debounce)
	if !flush.Stop() {
		<-flush.C
	}
	defer flush.Stop()

	var lastEmit time.Time
	pending := false
	for {
		select {
		case ev, ok := <-w.inner.Events:
			if !ok {
				return
			}
			if _, watched := w.names[filepath.Base(ev.Name)]; !watched {
				continue
			}
			now := time.Now()
			if now.Sub(lastEmit) >= w.debounce {
				lastEmit = now
				w.emit()
				continue
			}
			if !pending {
				pending = true
				flush.Reset(w.debounce - now.Sub(lastEmit))
			}
		case <-flush.C:
			if pending {
				pending = false
				lastEmit = time.Now()
				w.emit()
			}
		case _, ok := <-w.inner.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *notifyWatcher) emit() {
	select {
	case w.events <- struct{}{}:
	default:
	}
}
