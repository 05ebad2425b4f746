// Package retrieval provides the evidence sources the report workflow
// searches: the persistent knowledge base built from local documents and
// web search with optional page enrichment.
package retrieval

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"deepreport/internal/embedding"
	"deepreport/internal/logging"
	"deepreport/internal/store"
	"deepreport/internal/types"

	"golang.org/x/sync/errgroup"
)

// loadParallelism bounds concurrent file loading during ingestion.
const loadParallelism = 4

// KnowledgeBase is the main, persistent document index.
type KnowledgeBase struct {
	vs       *store.VectorStore
	splitter *Splitter
}

// IngestStats summarizes an ingestion run.
type IngestStats struct {
	TotalFiles  int
	LoadedFiles int
	Chunks      int
	NewChunks   int
	FileChunks  map[string]int
	Errors      []string
}

// OpenKnowledgeBase opens the knowledge base stored at path.
func OpenKnowledgeBase(path string, engine embedding.EmbeddingEngine, chunkSize, overlap int) (*KnowledgeBase, error) {
	vs, err := store.OpenVectorStore(path, engine)
	if err != nil {
		return nil, fmt.Errorf("failed to open knowledge base: %w", err)
	}
	return &KnowledgeBase{vs: vs, splitter: NewSplitter(chunkSize, overlap)}, nil
}

// Search implements types.Retriever.
func (kb *KnowledgeBase) Search(ctx context.Context, query string, k int) ([]types.RetrievedItem, error) {
	matches, err := kb.vs.Search(ctx, query, k)
	if err != nil {
		return nil, fmt.Errorf("knowledge base search failed: %w", err)
	}

	items := make([]types.RetrievedItem, 0, len(matches))
	for _, m := range matches {
		items = append(items, types.RetrievedItem{
			Content:  m.Content,
			Source:   types.SourceKnowledgeBase,
			Title:    m.Title,
			Filename: m.Filename,
			Score:    types.Float64Ptr(m.Relevance),
		})
	}
	logging.RetrievalDebug("Knowledge base search %q: %d hits", query, len(items))
	return items, nil
}

type loadedFile struct {
	name   string
	chunks []string
}

// IngestDir loads every supported file directly under dir. Files that fail
// to load are reported in the stats and skipped.
func (kb *KnowledgeBase) IngestDir(ctx context.Context, dir string) (*IngestStats, error) {
	timer := logging.StartTimer(logging.CategoryRetrieval, "IngestDir")
	defer timer.Stop()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read documents directory: %w", err)
	}

	stats := &IngestStats{FileChunks: make(map[string]int)}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		stats.TotalFiles++
		if !IsSupported(e.Name()) {
			logging.RetrievalDebug("Skipping unsupported file %s", e.Name())
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}

	var mu sync.Mutex
	var loaded []loadedFile
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(loadParallelism)
	for _, p := range paths {
		p := p
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			text, err := LoadFile(p)
			mu.Lock()
			defer mu.Unlock()
			name := filepath.Base(p)
			if err != nil {
				stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", name, err))
				return nil
			}
			chunks := kb.splitter.Split(text)
			if len(chunks) == 0 {
				stats.Errors = append(stats.Errors, fmt.Sprintf("%s: empty document", name))
				return nil
			}
			loaded = append(loaded, loadedFile{name: name, chunks: chunks})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	// Insert in name order so chunk ids are stable across runs.
	sort.Slice(loaded, func(i, j int) bool { return loaded[i].name < loaded[j].name })
	sort.Strings(stats.Errors)
	for _, f := range loaded {
		added, err := kb.addChunks(ctx, f.name, f.chunks)
		if err != nil {
			return stats, err
		}
		stats.LoadedFiles++
		stats.Chunks += len(f.chunks)
		stats.NewChunks += added
		stats.FileChunks[f.name] = len(f.chunks)
	}

	logging.Retrieval("Ingested %s: %d/%d files, %d chunks (%d new), %d errors",
		dir, stats.LoadedFiles, stats.TotalFiles, stats.Chunks, stats.NewChunks, len(stats.Errors))
	return stats, nil
}

// IngestFile loads and indexes a single file, replacing any chunks
// previously ingested from a file with the same name.
func (kb *KnowledgeBase) IngestFile(ctx context.Context, path string) (int, error) {
	text, err := LoadFile(path)
	if err != nil {
		return 0, err
	}
	name := filepath.Base(path)
	if _, err := kb.vs.DeleteFilename(ctx, name); err != nil {
		return 0, fmt.Errorf("failed to replace %s: %w", name, err)
	}
	return kb.addChunks(ctx, name, kb.splitter.Split(text))
}

// Remove deletes all chunks ingested from the named file.
func (kb *KnowledgeBase) Remove(ctx context.Context, name string) (int, error) {
	return kb.vs.DeleteFilename(ctx, name)
}

func (kb *KnowledgeBase) addChunks(ctx context.Context, name string, chunks []string) (int, error) {
	docs := make([]store.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = store.Document{
			Content:  c,
			Title:    name,
			Source:   types.SourceKnowledgeBase,
			Filename: name,
		}
	}
	n, err := kb.vs.AddDocuments(ctx, docs)
	if err != nil {
		return 0, fmt.Errorf("failed to index %s: %w", name, err)
	}
	return n, nil
}

// Stats returns the chunk count per file.
func (kb *KnowledgeBase) Stats(ctx context.Context) (map[string]int, error) {
	return kb.vs.Sources(ctx)
}

// Count returns the total number of chunks.
func (kb *KnowledgeBase) Count(ctx context.Context) (int, error) {
	return kb.vs.Count(ctx)
}

// Clear removes every chunk.
func (kb *KnowledgeBase) Clear(ctx context.Context) error {
	logging.Retrieval("Clearing knowledge base %s", kb.vs.Path())
	return kb.vs.Clear(ctx)
}

// Close closes the underlying store.
func (kb *KnowledgeBase) Close() error {
	return kb.vs.Close()
}
