// Package vector defines the similarity-index contract shared by the
// knowledge store and the memory store. An Index is the "native vector
// search" rung of the retrieval fallback ladder; it may be absent or
// failing, and callers must degrade to a manual scan when it is.
package vector

import "context"

// Entry is one indexed item.
type Entry struct {
	ID        string
	Content   string
	Embedding []float32
	Metadata  map[string]string
}

// Result is an entry returned from a query with its cosine similarity
// to the query vector.
type Result struct {
	Entry
	Similarity float64
}

// Index is a similarity index partitioned into named scopes (one per
// character for memories, one shared scope for knowledge).
type Index interface {
	// Add inserts or replaces an entry in a scope.
	Add(ctx context.Context, scope string, entry Entry) error

	// Query returns up to limit entries most similar to the embedding,
	// restricted to exact-match metadata where-clauses, sorted by
	// descending similarity. An empty scope yields an empty result, not
	// an error.
	Query(ctx context.Context, scope string, embedding []float32, limit int, where map[string]string) ([]Result, error)

	// Delete removes an entry by id. Deleting an absent id is a no-op.
	Delete(ctx context.Context, scope, id string) error
}
