// Package watcher reports external rewrites of the persisted track store.
package watcher

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	zlog "github.com/rs/zerolog/log"
)

// DefaultDebounce is the quiet period after the last write before an event is emitted.
const DefaultDebounce = 500 * time.Millisecond

// Event reports that the store file changed on disk.
type Event struct {
	Path      string    `json:"path"`
	Removed   bool      `json:"removed"`
	Timestamp time.Time `json:"timestamp"`
}

// Watcher watches the directory of a single file. Watching the directory
// rather than the file keeps working across atomic rename-over writes.
type Watcher struct {
	fsw      *fsnotify.Watcher
	path     string
	debounce time.Duration
	events   chan Event

	mu       sync.Mutex
	timer    *time.Timer
	removed  bool
	running  bool
	stopChan chan struct{}
	done     chan struct{}
}

// New creates a watcher for path. A non-positive debounce uses DefaultDebounce.
func New(path string, debounce time.Duration) (*Watcher, error) {
	if path == "" {
		return nil, errors.New("watch path is required")
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create file watcher")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		_ = fsw.Close()
		return nil, errors.Wrap(err, "failed to resolve watch path")
	}

	return &Watcher{
		fsw:      fsw,
		path:     abs,
		debounce: debounce,
		events:   make(chan Event, 1),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Events returns the channel of debounced change events.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Start begins watching. It returns once the directory watch is installed.
func (w *Watcher) Start(ctx context.Context) error {
	dir := filepath.Dir(w.path)
	if err := w.fsw.Add(dir); err != nil {
		return errors.Wrapf(err, "failed to watch directory %s", dir)
	}

	w.mu.Lock()
	w.running = true
	w.mu.Unlock()

	zlog.Info().Msgf("store watcher started: path=%s", w.path)
	go w.loop(ctx)
	return nil
}

// Stop stops watching and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopChan)
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()

	_ = w.fsw.Close()
	<-w.done
	zlog.Info().Msg("store watcher stopped")
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			zlog.Error().Err(err).Msg("store watcher error")

		case <-w.stopChan:
			return

		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if filepath.Clean(ev.Name) != w.path {
		return
	}
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}

	// A rename-over write shows up as Create on the target, so only a trailing
	// Remove/Rename with no later Create reports the file as gone.
	w.removed = ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.emit)
}

func (w *Watcher) emit() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	event := Event{Path: w.path, Removed: w.removed, Timestamp: time.Now()}
	w.timer = nil
	w.mu.Unlock()

	select {
	case w.events <- event:
		zlog.Debug().Msgf("store change emitted: path=%s removed=%t", event.Path, event.Removed)
	default:
		zlog.Debug().Msgf("store change already pending, dropping: path=%s", event.Path)
	}
}
