package store

import (
	"context"
	"path/filepath"
	"testing"

	"deepreport/internal/embedding"
)

func openTestStore(t *testing.T, engine embedding.EmbeddingEngine) *VectorStore {
	t.Helper()
	s, err := OpenVectorStore(filepath.Join(t.TempDir(), "kb", "vectors.db"), engine)
	if err != nil {
		t.Fatalf("OpenVectorStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestVectorStore_KeywordOnly(t *testing.T) {
	s := openTestStore(t, nil)
	ctx := context.Background()

	n, err := s.AddDocuments(ctx, []Document{
		{Content: "hello world", Source: "knowledge_base", Filename: "a.txt"},
		{Content: "goodbye moon", Source: "knowledge_base", Filename: "b.txt"},
	})
	if err != nil {
		t.Fatalf("AddDocuments failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 inserted, got %d", n)
	}

	results, err := s.Search(ctx, "hello", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Content != "hello world" {
		t.Errorf("expected 'hello world', got %q", results[0].Content)
	}
	if results[0].Relevance != 1 {
		t.Errorf("expected relevance 1 for full term match, got %f", results[0].Relevance)
	}
}

func TestVectorStore_KeywordRanking(t *testing.T) {
	s := openTestStore(t, nil)
	ctx := context.Background()

	if _, err := s.AddDocuments(ctx, []Document{
		{Content: "Quarterly note on other topics", Source: "evidence"},
		{Content: "Lithium battery chemistry and cathode prices", Source: "evidence"},
		{Content: "Battery recycling capacity", Source: "evidence"},
		{Content: "电池价格持续下降", Source: "evidence"},
	}); err != nil {
		t.Fatalf("AddDocuments failed: %v", err)
	}

	results, err := s.Search(ctx, "the lithium battery chemistry", 2)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Content != "Lithium battery chemistry and cathode prices" {
		t.Errorf("expected the full match first, got %q", results[0].Content)
	}
	if results[0].Relevance != 0.75 {
		t.Errorf("expected relevance 0.75, got %f", results[0].Relevance)
	}
	if results[1].Content != "Battery recycling capacity" {
		t.Errorf("expected the partial match second, got %q", results[1].Content)
	}

	// "the" is not a word of "other".
	results, err = s.Search(ctx, "the", 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no whole-word match, got %d", len(results))
	}

	results, err = s.Search(ctx, "电池价格", 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].Relevance != 1 {
		t.Errorf("expected one CJK substring match, got %+v", results)
	}
}

func TestVectorStore_WithEmbedding(t *testing.T) {
	engine := &MockEmbeddingEngine{Vectors: map[string][]float32{
		"cat":   {1, 0, 0, 0},
		"dog":   {0.9, 0.1, 0, 0},
		"car":   {0, 0, 1, 0},
		"kitty": {1, 0.05, 0, 0},
	}}
	s := openTestStore(t, engine)
	ctx := context.Background()

	if _, err := s.AddDocuments(ctx, []Document{
		{Content: "cat", Source: "web"},
		{Content: "dog", Source: "web"},
		{Content: "car", Source: "web"},
	}); err != nil {
		t.Fatalf("AddDocuments failed: %v", err)
	}

	results, err := s.Search(ctx, "kitty", 2)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Content != "cat" || results[1].Content != "dog" {
		t.Errorf("unexpected ranking: %q, %q", results[0].Content, results[1].Content)
	}
	if results[0].Relevance < results[1].Relevance {
		t.Errorf("relevance not descending: %f < %f", results[0].Relevance, results[1].Relevance)
	}
	if results[0].Relevance < 0 || results[0].Relevance > 1 {
		t.Errorf("relevance out of range: %f", results[0].Relevance)
	}
}

func TestVectorStore_Dedupe(t *testing.T) {
	s := openTestStore(t, embedding.NewHashEngine(32))
	ctx := context.Background()

	doc := Document{Content: "same text", Source: "web", URL: "https://example.com"}
	if n, err := s.AddDocuments(ctx, []Document{doc, doc}); err != nil || n != 1 {
		t.Fatalf("expected 1 insert, got %d (err=%v)", n, err)
	}
	if n, err := s.AddDocuments(ctx, []Document{doc}); err != nil || n != 0 {
		t.Fatalf("expected duplicate to be ignored, got %d (err=%v)", n, err)
	}

	// Same content from a different source is a distinct chunk.
	doc.Source = "knowledge_base"
	if n, err := s.AddDocuments(ctx, []Document{doc}); err != nil || n != 1 {
		t.Fatalf("expected 1 insert for new source, got %d (err=%v)", n, err)
	}

	count, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 chunks, got %d", count)
	}
}

func TestVectorStore_QueryEmbedFailureFallsBack(t *testing.T) {
	s := openTestStore(t, &failingQueryEngine{})
	ctx := context.Background()

	if _, err := s.AddDocuments(ctx, []Document{{Content: "battery supply chain", Source: "web"}}); err != nil {
		t.Fatalf("AddDocuments failed: %v", err)
	}
	results, err := s.Search(ctx, "battery", 3)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected keyword fallback hit, got %d", len(results))
	}
}

func TestVectorStore_EmbedFailureRejectsBatch(t *testing.T) {
	engine := &MockEmbeddingEngine{EmbedFunc: func(ctx context.Context, text string) ([]float32, error) {
		return nil, errMockEmbed
	}}
	s := openTestStore(t, engine)

	if _, err := s.AddDocuments(context.Background(), []Document{{Content: "x"}}); err == nil {
		t.Fatal("expected embed error")
	}
	if n, _ := s.Count(context.Background()); n != 0 {
		t.Errorf("expected no rows after failed add, got %d", n)
	}
}

func TestVectorStore_SourcesDeleteClear(t *testing.T) {
	s := openTestStore(t, embedding.NewHashEngine(16))
	ctx := context.Background()

	_, err := s.AddDocuments(ctx, []Document{
		{Content: "one", Source: "knowledge_base", Filename: "a.md"},
		{Content: "two", Source: "knowledge_base", Filename: "a.md"},
		{Content: "three", Source: "web"},
	})
	if err != nil {
		t.Fatalf("AddDocuments failed: %v", err)
	}

	sources, err := s.Sources(ctx)
	if err != nil {
		t.Fatalf("Sources failed: %v", err)
	}
	if sources["a.md"] != 2 || sources["web"] != 1 {
		t.Errorf("unexpected sources: %v", sources)
	}

	removed, err := s.DeleteFilename(ctx, "a.md")
	if err != nil || removed != 2 {
		t.Fatalf("expected 2 removed, got %d (err=%v)", removed, err)
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if n, _ := s.Count(ctx); n != 0 {
		t.Errorf("expected empty store, got %d", n)
	}
}

func TestVectorStore_Closed(t *testing.T) {
	s := openTestStore(t, nil)
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close should be a no-op: %v", err)
	}
	if _, err := s.Search(context.Background(), "x", 1); err != ErrClosed {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
