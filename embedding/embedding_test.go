package embedding_test

import (
	"context"
	"math"
	"testing"

	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/embedding"
)

func TestCosineSimilarity_SelfIsOne(t *testing.T) {
	v := []float32{0.3, -1.2, 4.5, 0.01}
	got := embedding.CosineSimilarity(v, v)
	if math.Abs(got-1.0) > 1e-6 {
		t.Errorf("expected self-similarity 1.0, got %f", got)
	}
}

func TestCosineSimilarity_ZeroVector(t *testing.T) {
	zero := []float32{0, 0, 0}
	v := []float32{1, 2, 3}

	if got := embedding.CosineSimilarity(zero, v); got != 0.0 {
		t.Errorf("expected 0.0 for zero query, got %f", got)
	}
	if got := embedding.CosineSimilarity(v, zero); got != 0.0 {
		t.Errorf("expected 0.0 for zero candidate, got %f", got)
	}
	if got := embedding.CosineSimilarity(zero, zero); got != 0.0 {
		t.Errorf("expected 0.0 for both zero, got %f", got)
	}
}

func TestCosineSimilarity_Orthogonal(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	if got := embedding.CosineSimilarity(a, b); math.Abs(got) > 1e-6 {
		t.Errorf("expected 0.0 for orthogonal vectors, got %f", got)
	}
}

func TestRank_SortsDescendingAndTruncates(t *testing.T) {
	// Candidates engineered so similarities to the query come out
	// roughly [0.81, 0.45, 0.92]; top 2 must be the 0.92 and 0.81
	// candidates in that order.
	query := []float32{1, 0}
	candidates := []embedding.Candidate{
		{ID: "a", Vector: []float32{0.81, float32(math.Sqrt(1 - 0.81*0.81))}},
		{ID: "b", Vector: []float32{0.45, float32(math.Sqrt(1 - 0.45*0.45))}},
		{ID: "c", Vector: []float32{0.92, float32(math.Sqrt(1 - 0.92*0.92))}},
	}

	ranked := embedding.Rank(query, candidates, 2)
	if len(ranked) != 2 {
		t.Fatalf("expected 2 results, got %d", len(ranked))
	}
	if ranked[0].ID != "c" || ranked[1].ID != "a" {
		t.Errorf("expected order [c a], got [%s %s]", ranked[0].ID, ranked[1].ID)
	}
	if ranked[0].Score < ranked[1].Score {
		t.Errorf("results not sorted descending: %f < %f", ranked[0].Score, ranked[1].Score)
	}
}

func TestRank_FewerCandidatesThanTopK(t *testing.T) {
	query := []float32{1, 0}
	candidates := []embedding.Candidate{{ID: "only", Vector: []float32{1, 0}}}

	ranked := embedding.Rank(query, candidates, 5)
	if len(ranked) != 1 {
		t.Fatalf("expected 1 result, got %d", len(ranked))
	}
}

func TestRank_StableOnTies(t *testing.T) {
	query := []float32{1, 0}
	candidates := []embedding.Candidate{
		{ID: "first", Vector: []float32{2, 0}},
		{ID: "second", Vector: []float32{3, 0}},
	}

	ranked := embedding.Rank(query, candidates, 2)
	if ranked[0].ID != "first" || ranked[1].ID != "second" {
		t.Errorf("tie not broken by original order: [%s %s]", ranked[0].ID, ranked[1].ID)
	}
}

func TestOfflineEmbedder_Deterministic(t *testing.T) {
	ctx := context.Background()
	e := embedding.NewOfflineEmbedder(64)

	a, err := e.Embed(ctx, "the same text")
	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}
	b, err := e.Embed(ctx, "the same text")
	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}

	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embeddings differ at index %d", i)
		}
	}

	c, _ := e.Embed(ctx, "different text")
	if embedding.CosineSimilarity(a, c) > 0.99 {
		t.Error("different texts produced near-identical vectors")
	}
}

func TestOfflineEmbedder_UnitNorm(t *testing.T) {
	e := embedding.NewOfflineEmbedder(384)
	vec, err := e.Embed(context.Background(), "norm check")
	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}
	if len(vec) != 384 {
		t.Fatalf("expected 384 dimensions, got %d", len(vec))
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if math.Abs(math.Sqrt(norm)-1.0) > 1e-4 {
		t.Errorf("expected unit norm, got %f", math.Sqrt(norm))
	}
}

func TestCached_HitsCache(t *testing.T) {
	ctx := context.Background()
	counter := &countingEmbedder{inner: embedding.NewOfflineEmbedder(32)}
	cached, err := embedding.NewCached(counter, nil)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	defer cached.Close()

	first, err := cached.Embed(ctx, "repeated query")
	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}

	// ristretto admits asynchronously, so a hit isn't guaranteed on the
	// second call; the contract under test is that the wrapper always
	// returns the same vector for the same text.
	second, err := cached.Embed(ctx, "repeated query")
	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatal("cached vector differs from original")
		}
	}
	if counter.calls < 1 {
		t.Error("inner embedder was never called")
	}
}

type countingEmbedder struct {
	inner embedding.Embedder
	calls int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	return c.inner.Embed(ctx, text)
}

func (c *countingEmbedder) Dimensions() int { return c.inner.Dimensions() }
