// Package embedding provides vector embedding generation for semantic search.
// Supports multiple backends: Ollama (local), Google GenAI (cloud) and an
// offline feature-hashing engine.
package embedding

import (
	"context"
	"fmt"
	"math"
	"sort"

	"deepreport/internal/config"
	"deepreport/internal/logging"
)

// =============================================================================
// EMBEDDING ENGINE INTERFACE
// =============================================================================

// EmbeddingEngine generates vector embeddings for text.
type EmbeddingEngine interface {
	// Embed generates embeddings for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of embeddings
	Dimensions() int

	// Name returns the engine name
	Name() string
}

// TaskAwareEngine is implemented by engines that tune embeddings for
// retrieval queries versus indexed documents.
type TaskAwareEngine interface {
	EmbedWithTask(ctx context.Context, text string, taskType string) ([]float32, error)
	EmbedBatchWithTask(ctx context.Context, texts []string, taskType string) ([][]float32, error)
}

// HealthChecker is an optional interface for engines that can verify the
// backing service before batch work starts.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// =============================================================================
// FACTORY
// =============================================================================

// NewEngine creates an embedding engine based on configuration.
func NewEngine(cfg config.EmbeddingConfig) (EmbeddingEngine, error) {
	timer := logging.StartTimer(logging.CategoryEmbedding, "NewEngine")
	defer timer.Stop()

	logging.Embedding("Creating embedding engine with provider=%s", cfg.Provider)

	var engine EmbeddingEngine
	var err error

	switch cfg.Provider {
	case "ollama":
		engine, err = NewOllamaEngine(cfg.OllamaEndpoint, cfg.OllamaModel)
	case "genai":
		engine, err = NewGenAIEngine(cfg.GenAIAPIKey, cfg.GenAIModel, cfg.TaskType)
	case "hash":
		engine = NewHashEngine(cfg.Dimensions)
	default:
		err = fmt.Errorf("unsupported embedding provider: %s (use 'ollama', 'genai' or 'hash')", cfg.Provider)
	}

	if err != nil {
		logging.Get(logging.CategoryEmbedding).Error("Failed to create embedding engine: %v", err)
		return nil, err
	}

	logging.Embedding("Embedding engine created: name=%s, dimensions=%d", engine.Name(), engine.Dimensions())
	return engine, nil
}

// EmbedQuery embeds a search query, using the retrieval-query task type when
// the engine supports it.
func EmbedQuery(ctx context.Context, engine EmbeddingEngine, text string) ([]float32, error) {
	if ta, ok := engine.(TaskAwareEngine); ok {
		return ta.EmbedWithTask(ctx, text, SelectTaskType(ContentTypeQuery))
	}
	return engine.Embed(ctx, text)
}

// EmbedDocuments embeds texts destined for an index.
func EmbedDocuments(ctx context.Context, engine EmbeddingEngine, texts []string) ([][]float32, error) {
	if ta, ok := engine.(TaskAwareEngine); ok {
		return ta.EmbedBatchWithTask(ctx, texts, SelectTaskType(ContentTypeDocument))
	}
	return engine.EmbedBatch(ctx, texts)
}

// =============================================================================
// COSINE SIMILARITY UTILITY
// =============================================================================

// CosineSimilarity calculates the cosine similarity between two vectors.
// Returns a value between -1 and 1, where 1 means identical, 0 means orthogonal.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vectors must have the same length: %d != %d", len(a), len(b))
	}

	var dotProduct, aMagnitude, bMagnitude float64
	for i := 0; i < len(a); i++ {
		dotProduct += float64(a[i]) * float64(b[i])
		aMagnitude += float64(a[i]) * float64(a[i])
		bMagnitude += float64(b[i]) * float64(b[i])
	}

	if aMagnitude == 0 || bMagnitude == 0 {
		return 0, nil
	}

	return dotProduct / (math.Sqrt(aMagnitude) * math.Sqrt(bMagnitude)), nil
}

// Relevance maps a cosine similarity onto [0, 1].
func Relevance(similarity float64) float64 {
	r := (similarity + 1) / 2
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}

// SimilarityResult represents a similarity search result.
type SimilarityResult struct {
	Index      int
	Similarity float64
}

// FindTopK returns the indices of the top K most similar vectors to the query.
func FindTopK(query []float32, corpus [][]float32, k int) []SimilarityResult {
	if k <= 0 {
		k = 10
	}

	results := make([]SimilarityResult, 0, len(corpus))
	skipped := 0
	for i, vec := range corpus {
		similarity, err := CosineSimilarity(query, vec)
		if err != nil {
			skipped++
			continue
		}
		results = append(results, SimilarityResult{Index: i, Similarity: similarity})
	}

	if skipped > 0 {
		logging.EmbeddingWarn("FindTopK: skipped %d vectors due to dimension mismatch", skipped)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	if len(results) > k {
		results = results[:k]
	}
	return results
}
