package retrieval

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"deepreport/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// DocumentIndex is the part of the knowledge base the watcher keeps in sync.
type DocumentIndex interface {
	IngestFile(ctx context.Context, path string) (int, error)
	Remove(ctx context.Context, name string) (int, error)
}

// WatchStats counts what a watcher has applied.
type WatchStats struct {
	Ingested int
	Removed  int
	Errors   int
}

// Watcher re-ingests documents in a directory as they change. Rapid
// successive writes to one file are applied once after they settle.
type Watcher struct {
	index    DocumentIndex
	dir      string
	debounce time.Duration
	watcher  *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]time.Time
	stats   WatchStats

	// OnApply, when set, is called after each settled change.
	OnApply func(path string, removed bool, err error)
}

// NewWatcher watches dir for supported documents.
func NewWatcher(index DocumentIndex, dir string, debounce time.Duration) (*Watcher, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("failed to watch %s: not a directory", dir)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{
		index:    index,
		dir:      dir,
		debounce: debounce,
		watcher:  fw,
		pending:  make(map[string]time.Time),
	}, nil
}

// Run applies changes until ctx is cancelled, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	tick := w.debounce / 5
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	logging.Retrieval("Watching %s for document changes", w.dir)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.record(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			logging.RetrievalWarn("Watcher error: %v", err)
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()

		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

// Stats returns a copy of the counters.
func (w *Watcher) Stats() WatchStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) record(event fsnotify.Event) {
	if !IsSupported(event.Name) {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	logging.RetrievalDebug("Watcher: %s %s", event.Op, event.Name)

	w.mu.Lock()
	w.pending[event.Name] = time.Now()
	w.mu.Unlock()
}

// flush applies changes that have been quiet for the debounce window.
func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	var ready []string
	for path, at := range w.pending {
		if now.Sub(at) >= w.debounce {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()

	for _, path := range ready {
		w.apply(ctx, path)
	}
}

// apply ingests path if it still exists and removes its chunks otherwise.
func (w *Watcher) apply(ctx context.Context, path string) {
	var err error
	removed := false
	if _, statErr := os.Stat(path); statErr == nil {
		var n int
		n, err = w.index.IngestFile(ctx, path)
		if err == nil {
			logging.Retrieval("Re-ingested %s: %d chunks", filepath.Base(path), n)
		}
	} else {
		removed = true
		var n int
		n, err = w.index.Remove(ctx, filepath.Base(path))
		if err == nil {
			logging.Retrieval("Removed %s: %d chunks", filepath.Base(path), n)
		}
	}

	w.mu.Lock()
	switch {
	case err != nil:
		w.stats.Errors++
		logging.RetrievalWarn("Failed to apply change to %s: %v", path, err)
	case removed:
		w.stats.Removed++
	default:
		w.stats.Ingested++
	}
	w.mu.Unlock()

	if w.OnApply != nil {
		w.OnApply(path, removed, err)
	}
}
