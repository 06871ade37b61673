// Package watcher notifies callers when the session store directory
// changes on disk, so a long-lived client (such as a GUI poll loop) can
// refresh without re-reading the store on a fixed interval.
//
// Grounded on the pack's own fsnotify watcher
// (deepak-highbeam-who-wrote-it/internal/watcher), generalized from its
// recursive multi-root file-event store down to a single flat directory
// of session JSON files, and on the teacher's debounce-before-acting
// shape in internal/polecat.SessionManager's SendKeysDebounced.
package watcher

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces bursts of rapid create/write/remove events
// (a session record is typically rewritten several times in quick
// succession during Create) into a single notification.
const DefaultDebounce = 150 * time.Millisecond

// Watcher observes a session store directory for *.json changes.
type Watcher struct {
	dir      string
	debounce time.Duration
	fsw      *fsnotify.Watcher

	mu      sync.Mutex
	pending bool

	notify chan struct{}
	done   chan struct{}
}

// New creates a Watcher over dir. Call Start to begin watching.
func New(dir string) *Watcher {
	return &Watcher{
		dir:      dir,
		debounce: DefaultDebounce,
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Events returns the channel a caller selects on; it receives a value
// each time one or more debounced *.json changes have settled.
func (w *Watcher) Events() <-chan struct{} {
	return w.notify
}

// Start begins watching w.dir and blocks until ctx is canceled or Stop
// is called. Run it in its own goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return err
	}

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.done:
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(ev.Name, ".json") {
				continue
			}
			w.mu.Lock()
			w.pending = true
			w.mu.Unlock()
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-timerC:
			w.mu.Lock()
			w.pending = false
			w.mu.Unlock()
			select {
			case w.notify <- struct{}{}:
			default:
			}
			timer = nil
			timerC = nil
		case _, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
		}
	}
}

// Stop ends the watch loop and releases the underlying fsnotify handle.
func (w *Watcher) Stop() {
	select {
	case <-w.done:
	default:
		close(w.done)
	}
}

// HasPendingEvents reports whether a debounce timer is currently
// counting down unflushed changes — used by GUI poll-fallback composition
// that doesn't want to block on Events().
func (w *Watcher) HasPendingEvents() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending
}
