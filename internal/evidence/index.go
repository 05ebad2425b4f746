// Package evidence manages the ephemeral, task-scoped evidence indexes that
// accumulate filtered retrieval results while a report is being written.
//
// Each task gets its own sqlite file under the manager's directory. An index
// is created when the task starts and purged exactly once when it ends;
// Manager.Open reconstructs a handle from the task id alone so a
// disconnecting consumer can purge without access to the worker's state.
package evidence

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"deepreport/internal/embedding"
	"deepreport/internal/logging"
	"deepreport/internal/store"
	"deepreport/internal/types"
)

// =============================================================================
// MANAGER
// =============================================================================

// Manager creates, reopens and tracks per-task evidence indexes.
type Manager struct {
	dir    string
	engine embedding.EmbeddingEngine

	mu   sync.Mutex
	live map[string]*Index
}

// NewManager creates a manager that stores indexes under dir.
// A nil engine gives keyword-only indexes.
func NewManager(dir string, engine embedding.EmbeddingEngine) *Manager {
	return &Manager{
		dir:    dir,
		engine: engine,
		live:   make(map[string]*Index),
	}
}

// Dir returns the directory holding index files.
func (m *Manager) Dir() string { return m.dir }

func (m *Manager) path(taskID string) (string, error) {
	if taskID == "" || strings.ContainsAny(taskID, `/\`) || taskID == "." || taskID == ".." {
		return "", fmt.Errorf("invalid task id %q", taskID)
	}
	return filepath.Join(m.dir, taskID+".db"), nil
}

// Create opens a fresh index for taskID. A stale file left by an earlier
// crashed run with the same id is discarded first.
func (m *Manager) Create(taskID string) (*Index, error) {
	path, err := m.path(taskID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.live[taskID]; ok {
		return nil, fmt.Errorf("evidence index for task %s already exists", taskID)
	}
	if err := removeDBFiles(path); err != nil {
		logging.EvidenceWarn("Failed to remove stale index %s: %v", path, err)
	}

	vs, err := store.OpenVectorStore(path, m.engine)
	if err != nil {
		return nil, fmt.Errorf("failed to create evidence index: %w", err)
	}

	idx := &Index{taskID: taskID, path: path, mgr: m, vs: vs}
	m.live[taskID] = idx
	logging.Evidence("Created evidence index for task %s at %s", taskID, path)
	return idx, nil
}

// Open returns the live index for taskID, or reconstructs a handle from the
// file on disk. Returns types.ErrIndexPurged when neither exists.
func (m *Manager) Open(taskID string) (*Index, error) {
	path, err := m.path(taskID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if idx, ok := m.live[taskID]; ok {
		return idx, nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, types.ErrIndexPurged
		}
		return nil, err
	}

	vs, err := store.OpenVectorStore(path, m.engine)
	if err != nil {
		return nil, fmt.Errorf("failed to reopen evidence index: %w", err)
	}
	idx := &Index{taskID: taskID, path: path, mgr: m, vs: vs}
	m.live[taskID] = idx
	logging.EvidenceDebug("Reconstructed evidence index handle for task %s", taskID)
	return idx, nil
}

// Exists reports whether an index for taskID is live or on disk.
func (m *Manager) Exists(taskID string) bool {
	path, err := m.path(taskID)
	if err != nil {
		return false
	}
	m.mu.Lock()
	_, ok := m.live[taskID]
	m.mu.Unlock()
	if ok {
		return true
	}
	_, err = os.Stat(path)
	return err == nil
}

// Live returns the number of open index handles.
func (m *Manager) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

func (m *Manager) forget(taskID string, idx *Index) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.live[taskID] == idx {
		delete(m.live, taskID)
	}
}

// =============================================================================
// INDEX
// =============================================================================

// Index is one task's evidence index.
type Index struct {
	taskID string
	path   string
	mgr    *Manager

	mu     sync.Mutex
	vs     *store.VectorStore
	purged bool
}

// TaskID returns the owning task id.
func (i *Index) TaskID() string { return i.taskID }

// Path returns the index file path.
func (i *Index) Path() string { return i.path }

// Add ingests items. Failures are logged and the items dropped; the return
// value is the number of new entries.
func (i *Index) Add(ctx context.Context, items []types.RetrievedItem) int {
	docs := make([]store.Document, 0, len(items))
	for _, it := range items {
		if strings.TrimSpace(it.Content) == "" {
			continue
		}
		docs = append(docs, store.Document{
			Content:  it.Content,
			Title:    it.Title,
			Source:   it.Source,
			URL:      it.URL,
			Filename: it.Filename,
		})
	}
	if len(docs) == 0 {
		return 0
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.purged {
		logging.EvidenceWarn("Add on purged index for task %s dropped %d items", i.taskID, len(docs))
		return 0
	}

	n, err := i.vs.AddDocuments(ctx, docs)
	if err != nil {
		logging.EvidenceWarn("Evidence ingest failed for task %s, dropping %d items: %v", i.taskID, len(docs), err)
		return 0
	}
	logging.EvidenceDebug("Ingested %d/%d items into task %s", n, len(docs), i.taskID)
	return n
}

// Search returns up to k items ranked by relevance. Errors yield an empty
// result.
func (i *Index) Search(ctx context.Context, query string, k int) []types.RetrievedItem {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.purged {
		return nil
	}

	matches, err := i.vs.Search(ctx, query, k)
	if err != nil {
		logging.EvidenceWarn("Evidence search failed for task %s: %v", i.taskID, err)
		return nil
	}

	out := make([]types.RetrievedItem, 0, len(matches))
	for _, m := range matches {
		out = append(out, types.RetrievedItem{
			Content:  m.Content,
			Source:   m.Source,
			Title:    m.Title,
			URL:      m.URL,
			Filename: m.Filename,
			Score:    types.Float64Ptr(m.Relevance),
		})
	}
	return out
}

// Count returns the number of stored items, or 0 once purged.
func (i *Index) Count(ctx context.Context) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.purged {
		return 0
	}
	n, err := i.vs.Count(ctx)
	if err != nil {
		return 0
	}
	return n
}

// Purge closes the index and deletes its file. Calling it again is a no-op.
func (i *Index) Purge() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.purged {
		return nil
	}
	i.purged = true
	i.mgr.forget(i.taskID, i)

	var errs []error
	if err := i.vs.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close: %w", err))
	}
	if err := removeDBFiles(i.path); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("purge evidence index %s: %w", i.taskID, errors.Join(errs...))
	}
	logging.Evidence("Purged evidence index for task %s", i.taskID)
	return nil
}

// removeDBFiles deletes a sqlite file with its WAL and shared-memory siblings.
func removeDBFiles(path string) error {
	var errs []error
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
