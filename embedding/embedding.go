// Package embedding converts text to vectors and ranks candidates by
// cosine similarity.
//
// The Embedder interface is the seam between the engine and whatever
// model backs it:
//   - OfflineEmbedder: deterministic hash-seeded vectors (no model needed)
//   - ONNXEmbedder: local all-MiniLM-L6-v2 via ONNX Runtime (build tag "onnx")
//   - Cached: ristretto-backed wrapper around any of the above
package embedding

import (
	"context"
	"math"
	"sort"
)

// Embedder converts text to vector embeddings.
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}

// CosineSimilarity computes dot(a,b) / (|a|*|b|). Returns 0.0 when either
// vector has zero norm, so a degenerate embedding never divides by zero
// and never errors.
func CosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	for _, v := range a {
		normA += float64(v) * float64(v)
	}
	for _, v := range b {
		normB += float64(v) * float64(v)
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Candidate is one entry scored by Rank.
type Candidate struct {
	ID       string
	Vector   []float32
	Metadata map[string]string
}

// Scored is a candidate with its similarity to the query.
type Scored struct {
	Candidate
	Score float64
}

// Rank scores every candidate against the query vector, sorts descending
// by similarity and truncates to topK. The sort is stable, so ties keep
// their original iteration order. Never returns more than topK results.
func Rank(query []float32, candidates []Candidate, topK int) []Scored {
	scored := make([]Scored, 0, len(candidates))
	for _, c := range candidates {
		scored = append(scored, Scored{
			Candidate: c,
			Score:     CosineSimilarity(query, c.Vector),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if topK >= 0 && len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}

// Normalize scales vec to unit length in place-safe copy. A zero vector
// is returned unchanged.
func Normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}

	norm = float32(math.Sqrt(float64(norm)))
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = v / norm
	}
	return out
}
