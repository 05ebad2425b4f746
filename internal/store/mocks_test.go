package store

import (
	"context"
	"errors"
)

var errMockEmbed = errors.New("mock embed failure")

// MockEmbeddingEngine implements embedding.EmbeddingEngine for testing.
// Vectors come from Vectors when the text is present, otherwise from EmbedFunc,
// otherwise a zero-free default.
type MockEmbeddingEngine struct {
	Vectors   map[string][]float32
	EmbedFunc func(ctx context.Context, text string) ([]float32, error)
	Dims      int
	Calls     int
}

func (m *MockEmbeddingEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	m.Calls++
	if v, ok := m.Vectors[text]; ok {
		return v, nil
	}
	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, text)
	}
	return []float32{0.1, 0.2, 0.3, 0.4}, nil
}

func (m *MockEmbeddingEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := m.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (m *MockEmbeddingEngine) Dimensions() int {
	if m.Dims > 0 {
		return m.Dims
	}
	return 4
}

func (m *MockEmbeddingEngine) Name() string { return "mock-embedding-engine" }

// failingQueryEngine embeds documents but fails on retrieval queries.
type failingQueryEngine struct {
	MockEmbeddingEngine
}

func (f *failingQueryEngine) EmbedWithTask(ctx context.Context, text string, taskType string) ([]float32, error) {
	if taskType == "RETRIEVAL_QUERY" {
		return nil, errMockEmbed
	}
	return f.Embed(ctx, text)
}

func (f *failingQueryEngine) EmbedBatchWithTask(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	return f.EmbedBatch(ctx, texts)
}
