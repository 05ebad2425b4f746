package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// HashEngine is an offline embedding engine using signed feature hashing over
// lower-cased word tokens (and single runes for CJK text). It needs no
// network and is deterministic, which makes it the fallback for air-gapped
// runs and the engine used in tests.
type HashEngine struct {
	dims int
}

// NewHashEngine creates a hashing engine with the given dimensionality.
func NewHashEngine(dims int) *HashEngine {
	if dims <= 0 {
		dims = 256
	}
	return &HashEngine{dims: dims}
}

// Embed generates an L2-normalized embedding for a single text.
func (e *HashEngine) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dims)
	for _, tok := range tokenize(text) {
		h := fnv.New64a()
		h.Write([]byte(tok))
		sum := h.Sum64()
		idx := int(sum % uint64(e.dims))
		if sum&(1<<63) != 0 {
			vec[idx] -= 1
		} else {
			vec[idx] += 1
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		n := float32(math.Sqrt(norm))
		for i := range vec {
			vec[i] /= n
		}
	}
	return vec, nil
}

// EmbedBatch generates embeddings for multiple texts.
func (e *HashEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Dimensions returns the dimensionality of embeddings.
func (e *HashEngine) Dimensions() int { return e.dims }

// Name returns the engine name.
func (e *HashEngine) Name() string { return fmt.Sprintf("hash:%d", e.dims) }

func tokenize(text string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r):
			flush()
			tokens = append(tokens, string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			cur.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}
