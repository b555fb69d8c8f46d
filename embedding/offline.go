package embedding

import (
	"context"
	"hash/fnv"
	"math"
)

// OfflineEmbedder generates deterministic embeddings without a model.
// Each text hashes to a seed that drives a small PRNG; the resulting
// vector is normalized to unit length. Identical text always yields the
// identical vector, which keeps similarity search and caching coherent
// when no embedding model is reachable.
type OfflineEmbedder struct {
	dimensions int
}

// NewOfflineEmbedder creates an offline embedder. Dimensions defaults to
// 384 to match all-MiniLM-L6-v2 deployments.
func NewOfflineEmbedder(dimensions int) *OfflineEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &OfflineEmbedder{dimensions: dimensions}
}

// Embed creates a deterministic unit vector from the text hash.
func (e *OfflineEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, e.dimensions)
	for i := 0; i < e.dimensions; i++ {
		// Linear congruential step, constants from Knuth MMIX
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}

	return Normalize(vec), nil
}

// Dimensions returns the embedding size.
func (e *OfflineEmbedder) Dimensions() int {
	return e.dimensions
}
