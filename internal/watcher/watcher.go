// Package watcher notifies callers when a single file changes on disk.
package watcher

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// DefaultDebounce coalesces bursts of events (editors often write, chmod and
// rename in quick succession).
const DefaultDebounce = 200 * time.Millisecond

// DefaultOps are the operations that trigger a callback.
const DefaultOps = fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename

// ErrStopped is returned by Start after Stop.
var ErrStopped = errors.New("watcher stopped")

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period before the callback fires.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithOps restricts the operations that trigger the callback.
func WithOps(ops fsnotify.Op) Option {
	return func(w *Watcher) { w.ops = ops }
}

// Watcher watches one file through its parent directory, so the file may be
// deleted and recreated without losing the watch.
type Watcher struct {
	onChange func()
	fsw      *fsnotify.Watcher
	timer    *time.Timer
	done     chan struct{}
	path     string
	debounce time.Duration
	ops      fsnotify.Op
	wg       sync.WaitGroup
	mu       sync.Mutex
	started  bool
	stopped  bool
}

// New creates a watcher for path. onChange runs on its own goroutine after
// each debounced burst of matching events.
func New(path string, onChange func(), opts ...Option) (*Watcher, error) {
	if onChange == nil {
		return nil, errors.New("watcher: onChange is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}
	w := &Watcher{
		onChange: onChange,
		path:     abs,
		debounce: DefaultDebounce,
		ops:      DefaultOps,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Path returns the watched file.
func (w *Watcher) Path() string {
	return w.path
}

// Start begins watching. The parent directory must exist.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return ErrStopped
	}
	if w.started {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}

	w.fsw = fsw
	w.started = true
	w.wg.Add(1)
	go w.loop()
	return nil
}

// Stop ends watching and cancels a pending callback. It is safe to call twice.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	close(w.done)
	if w.timer != nil {
		w.timer.Stop()
	}
	fsw := w.fsw
	w.mu.Unlock()

	var err error
	if fsw != nil {
		err = fsw.Close()
	}
	w.wg.Wait()
	return err
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path || ev.Op&w.ops == 0 {
				continue
			}
			log.Debug().Str("path", w.path).Str("op", ev.Op.String()).Msg("File event")
			w.schedule()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Str("path", w.path).Msg("File watcher error")
		}
	}
}

// schedule (re)arms the debounce timer.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.fire)
}

func (w *Watcher) fire() {
	w.mu.Lock()
	stopped := w.stopped
	w.mu.Unlock()
	if !stopped {
		w.onChange()
	}
}
