// Package chromem backs vector.Index with chromem-go, a pure Go
// embedded vector database.
package chromem

import (
	"context"
	"fmt"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/vector"
)

// Index wraps chromem-go collections, one collection per scope.
type Index struct {
	db          *chromem.DB
	collections map[string]*chromem.Collection
	mu          sync.RWMutex
}

// New creates an empty chromem-backed index.
func New() *Index {
	return &Index{
		db:          chromem.NewDB(),
		collections: make(map[string]*chromem.Collection),
	}
}

// getOrCreateCollection returns the collection for a scope.
func (ix *Index) getOrCreateCollection(scope string) (*chromem.Collection, error) {
	ix.mu.RLock()
	col, exists := ix.collections[scope]
	ix.mu.RUnlock()
	if exists {
		return col, nil
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	// Double-check after acquiring write lock
	if col, exists := ix.collections[scope]; exists {
		return col, nil
	}

	name := sanitizeScope(scope)
	col, err := ix.db.CreateCollection(
		name,
		nil, // no collection metadata
		nil, // no embedding func, we provide embeddings
	)
	if err != nil {
		return nil, fmt.Errorf("create collection %q: %w", name, err)
	}

	ix.collections[scope] = col
	return col, nil
}

// Add inserts or replaces an entry in a scope.
func (ix *Index) Add(ctx context.Context, scope string, entry vector.Entry) error {
	col, err := ix.getOrCreateCollection(scope)
	if err != nil {
		return err
	}

	doc := chromem.Document{
		ID:        entry.ID,
		Content:   entry.Content,
		Embedding: entry.Embedding,
		Metadata:  entry.Metadata,
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	return nil
}

// Query returns up to limit entries by descending similarity.
func (ix *Index) Query(ctx context.Context, scope string, embedding []float32, limit int, where map[string]string) ([]vector.Result, error) {
	col, err := ix.getOrCreateCollection(scope)
	if err != nil {
		return nil, err
	}

	// chromem requires nResults <= collection size
	if count := col.Count(); count < limit {
		limit = count
	}
	if limit <= 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, embedding, limit, where, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	out := make([]vector.Result, 0, len(results))
	for _, r := range results {
		out = append(out, vector.Result{
			Entry: vector.Entry{
				ID:        r.ID,
				Content:   r.Content,
				Embedding: r.Embedding,
				Metadata:  r.Metadata,
			},
			Similarity: float64(r.Similarity),
		})
	}
	return out, nil
}

// Delete removes an entry by id. Unknown ids are ignored.
func (ix *Index) Delete(ctx context.Context, scope, id string) error {
	col, err := ix.getOrCreateCollection(scope)
	if err != nil {
		return err
	}

	if err := col.Delete(ctx, nil, nil, id); err != nil {
		// chromem errors on unknown ids; absence is fine for a cascade delete
		if strings.Contains(err.Error(), "not found") {
			return nil
		}
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// sanitizeScope maps a scope to a valid chromem collection name.
func sanitizeScope(scope string) string {
	if scope == "" {
		return "global"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, scope)
}
