// Package observer watches the state directory for task state changes.
package observer

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeCallback receives the IDs of tasks whose state files changed.
type ChangeCallback func(taskIDs []string)

// Watcher monitors a state directory for writes to task state files and
// reports changed task IDs, debounced so a burst of saves produces one
// callback.
type Watcher struct {
	watcher  *fsnotify.Watcher
	stateDir string
	callback ChangeCallback
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer

	cancel context.CancelFunc
}

// NewWatcher creates a watcher for the given state directory. Start must be
// called before events are delivered.
func NewWatcher(stateDir string, callback ChangeCallback) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(stateDir); err != nil {
		fw.Close()
		return nil, err
	}

	return &Watcher{
		watcher:  fw,
		stateDir: stateDir,
		callback: callback,
		debounce: 500 * time.Millisecond,
		pending:  make(map[string]struct{}),
	}, nil
}

// SetDebounce sets the window for batching rapid changes.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounce = d
}

// Start begins delivering callbacks until ctx is canceled or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				w.handleEvent(event)
			case _, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
}

// Stop cancels delivery and closes the underlying watcher.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.watcher.Close()
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	ext := filepath.Ext(event.Name)
	if ext != ".yaml" && ext != ".yml" {
		return
	}
	// Saves are write-to-temp-then-rename, so renames matter as much as
	// writes.
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}

	taskID := strings.TrimSuffix(filepath.Base(event.Name), ext)

	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[taskID] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	pending := w.pending
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	if w.callback == nil || len(pending) == 0 {
		return
	}

	ids := make([]string, 0, len(pending))
	for id := range pending {
		ids = append(ids, id)
	}
	w.callback(ids)
}
