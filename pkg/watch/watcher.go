// Package watch provides spool-directory monitoring for payload files.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher monitors a spool directory and triggers a reshape per payload file.
type Watcher struct {
	watcher  *fsnotify.Watcher
	suffix   string
	files    map[string]*fileState
	mu       sync.RWMutex
	debounce time.Duration
	OnChange func(path string) error
	OnError  func(path string, err error)
}

type fileState struct {
	path         string
	lastModified time.Time
	size         int64
	processing   bool
}

// NewWatcher creates a new spool watcher. Only files whose name ends with
// suffix trigger the callback.
func NewWatcher(suffix string) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Watcher{
		watcher:  fsWatcher,
		suffix:   suffix,
		files:    make(map[string]*fileState),
		debounce: 500 * time.Millisecond,
	}, nil
}

// WatchDir starts watching a spool directory.
func (w *Watcher) WatchDir(dir string) error {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	stat, err := os.Stat(absDir)
	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}
	if !stat.IsDir() {
		return fmt.Errorf("%s is not a directory", absDir)
	}

	if err := w.watcher.Add(absDir); err != nil {
		return fmt.Errorf("failed to watch directory: %w", err)
	}

	return nil
}

// Run starts the watch loop. Blocks until context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	debounceTimers := make(map[string]*time.Timer)
	var timerMu sync.Mutex

	for {
		select {
		case <-ctx.Done():
			w.watcher.Close()
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}

			// Only handle write events
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			absPath, err := filepath.Abs(event.Name)
			if err != nil {
				continue
			}

			if w.suffix != "" && !strings.HasSuffix(absPath, w.suffix) {
				continue
			}

			state := w.trackFile(absPath)

			// Debounce rapid changes
			timerMu.Lock()
			if timer, exists := debounceTimers[absPath]; exists {
				timer.Stop()
			}
			debounceTimers[absPath] = time.AfterFunc(w.debounce, func() {
				w.handleChange(absPath, state)
			})
			timerMu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			if w.OnError != nil {
				w.OnError("", err)
			}
		}
	}
}

// trackFile returns the state record for a path, creating it on first sight.
func (w *Watcher) trackFile(path string) *fileState {
	w.mu.Lock()
	defer w.mu.Unlock()

	if state, ok := w.files[path]; ok {
		return state
	}
	state := &fileState{path: path}
	w.files[path] = state
	return state
}

func (w *Watcher) handleChange(path string, state *fileState) {
	w.mu.Lock()
	if state.processing {
		w.mu.Unlock()
		return
	}
	state.processing = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		state.processing = false
		w.mu.Unlock()
	}()

	// Check if file actually changed
	stat, err := os.Stat(path)
	if err != nil {
		if w.OnError != nil {
			w.OnError(path, err)
		}
		return
	}

	// Compare with last known state
	if stat.ModTime().Equal(state.lastModified) && stat.Size() == state.size {
		return // No actual change
	}

	// Update state
	w.mu.Lock()
	state.lastModified = stat.ModTime()
	state.size = stat.Size()
	w.mu.Unlock()

	// Trigger callback
	if w.OnChange != nil {
		if err := w.OnChange(path); err != nil {
			if w.OnError != nil {
				w.OnError(path, err)
			}
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
