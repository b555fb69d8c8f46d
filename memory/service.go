package memory

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/embedding"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/store"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/vector"
)

// Config holds memory service configuration.
type Config struct {
	// Collection is the memory document collection.
	Collection string

	// EmbeddingsCollection holds the paired embedding records, one per
	// memory, keyed by the memory id.
	EmbeddingsCollection string
}

// DefaultConfig matches the reference deployment.
var DefaultConfig = &Config{
	Collection:           "character_memories",
	EmbeddingsCollection: "memory_embeddings",
}

// Service implements Store on top of a document store, a vector index
// and an embedder. Each character gets its own index scope.
type Service struct {
	db       store.Store
	index    vector.Index
	embedder embedding.Embedder
	config   *Config
}

// NewService creates a memory service. A nil config uses DefaultConfig.
func NewService(db store.Store, index vector.Index, embedder embedding.Embedder, config *Config) *Service {
	if config == nil {
		config = DefaultConfig
	}
	return &Service{db: db, index: index, embedder: embedder, config: config}
}

// CreateMemory stores a memory with its paired embedding record. The
// embedding is generated first so a failed embed never leaves a memory
// without its pair.
func (s *Service) CreateMemory(ctx context.Context, characterID, content, source string, importance int, metadata map[string]interface{}) (string, error) {
	vec, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return "", fmt.Errorf("embed memory: %w", err)
	}

	now := time.Now().UTC()
	doc := store.Document{
		"character_id":  characterID,
		"content":       content,
		"source":        source,
		"importance":    importance,
		"metadata":      metadata,
		"created_at":    now,
		"last_accessed": now,
		"access_count":  int64(0),
	}
	id, err := s.db.Insert(ctx, s.config.Collection, doc)
	if err != nil {
		return "", fmt.Errorf("insert memory: %w", err)
	}

	if _, err := s.db.Insert(ctx, s.config.EmbeddingsCollection, store.Document{
		"id":           id,
		"character_id": characterID,
		"embedding":    vec,
		"created_at":   now,
	}); err != nil {
		return "", fmt.Errorf("insert memory embedding: %w", err)
	}

	if err := s.index.Add(ctx, characterID, vector.Entry{
		ID:        id,
		Content:   content,
		Embedding: vec,
		Metadata:  map[string]string{"character_id": characterID, "source": source},
	}); err != nil {
		// Embedding record is the source of truth; the manual scan
		// still covers an unindexed memory
		log.Printf("[MEMORY] Failed to index memory %s: %v", id, err)
	}

	log.Printf("[MEMORY] Created memory %s for character %s (importance=%d)", id, characterID, importance)
	return id, nil
}

// GetMemory retrieves a memory by id and bumps its access stats. The
// count uses the store's atomic increment so concurrent readers never
// lose updates.
func (s *Service) GetMemory(ctx context.Context, id string) (*Memory, error) {
	doc, err := s.db.FindByID(ctx, s.config.Collection, id)
	if err != nil {
		return nil, err
	}

	if err := s.db.UpdateByID(ctx, s.config.Collection, id, store.Document{
		"last_accessed": time.Now().UTC(),
	}); err != nil {
		log.Printf("[MEMORY] Failed to refresh last_accessed for %s: %v", id, err)
	}
	if err := s.db.Inc(ctx, s.config.Collection, id, "access_count", 1); err != nil {
		log.Printf("[MEMORY] Failed to increment access_count for %s: %v", id, err)
	}

	mem := docToMemory(doc)
	mem.AccessCount++
	mem.LastAccessed = time.Now().UTC()
	return mem, nil
}

// UpdateMemory sets fields on a memory. Identity fields (id,
// character_id, created_at) are never overwritten. A content change
// regenerates the paired embedding record under the same id.
func (s *Service) UpdateMemory(ctx context.Context, id string, updates map[string]interface{}) error {
	safe := make(store.Document, len(updates))
	for k, v := range updates {
		switch k {
		case "id", "character_id", "created_at":
			continue
		}
		safe[k] = v
	}

	if err := s.db.UpdateByID(ctx, s.config.Collection, id, safe); err != nil {
		return err
	}

	content, contentChanged := safe["content"].(string)
	if !contentChanged {
		return nil
	}

	vec, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return fmt.Errorf("re-embed memory: %w", err)
	}
	if err := s.db.UpdateByID(ctx, s.config.EmbeddingsCollection, id, store.Document{
		"embedding": vec,
	}); err != nil {
		return fmt.Errorf("update memory embedding: %w", err)
	}

	doc, err := s.db.FindByID(ctx, s.config.Collection, id)
	if err != nil {
		return err
	}
	mem := docToMemory(doc)
	if err := s.index.Add(ctx, mem.CharacterID, vector.Entry{
		ID:        id,
		Content:   content,
		Embedding: vec,
		Metadata:  map[string]string{"character_id": mem.CharacterID, "source": mem.Source},
	}); err != nil {
		log.Printf("[MEMORY] Failed to reindex memory %s: %v", id, err)
	}
	return nil
}

// DeleteMemory removes a memory, its paired embedding record and its
// index entry. A missing embedding record is tolerated; nothing is left
// orphaned.
func (s *Service) DeleteMemory(ctx context.Context, id string) error {
	doc, err := s.db.FindByID(ctx, s.config.Collection, id)
	if err != nil {
		return err
	}
	characterID, _ := doc["character_id"].(string)

	if err := s.db.DeleteByID(ctx, s.config.Collection, id); err != nil {
		return err
	}
	if err := s.db.DeleteByID(ctx, s.config.EmbeddingsCollection, id); err != nil && err != store.ErrNotFound {
		return fmt.Errorf("delete memory embedding: %w", err)
	}
	if err := s.index.Delete(ctx, characterID, id); err != nil {
		log.Printf("[MEMORY] Failed to remove memory %s from index: %v", id, err)
	}
	return nil
}

// SearchMemories finds memories relevant to the query. Ladder: native
// index query, manual scan over the embedding records, keyword match,
// then the character's most important memories. A rung is abandoned on
// error or empty results; full exhaustion returns nil without error.
func (s *Service) SearchMemories(ctx context.Context, characterID, query string, limit int) ([]*Memory, error) {
	if limit <= 0 {
		limit = 5
	}

	queryVec, embedErr := s.embedder.Embed(ctx, query)
	if embedErr != nil {
		log.Printf("[MEMORY] Query embedding failed: %v, skipping vector rungs", embedErr)
	}

	// Rung 1: native vector index
	if embedErr == nil {
		memories, err := s.queryIndex(ctx, characterID, queryVec, limit)
		if err != nil {
			log.Printf("[MEMORY] Index query failed: %v, falling back to manual scan", err)
		} else if len(memories) > 0 {
			return memories, nil
		}
	}

	// Rung 2: manual scan over the character's embedding records
	if embedErr == nil {
		memories, err := s.manualScan(ctx, characterID, queryVec, limit)
		if err != nil {
			log.Printf("[MEMORY] Manual scan failed: %v, falling back to keyword search", err)
		} else if len(memories) > 0 {
			return memories, nil
		}
	}

	// Rung 3: keyword match on content and topical metadata
	memories, err := s.keywordSearch(ctx, characterID, query, limit)
	if err != nil {
		log.Printf("[MEMORY] Keyword search failed: %v, falling back to most important", err)
	} else if len(memories) > 0 {
		return memories, nil
	}

	// Rung 4: most important memories regardless of relevance
	memories, err = s.CharacterMemories(ctx, characterID, limit, SortByImportance, "")
	if err != nil {
		log.Printf("[MEMORY] Importance fallback failed: %v, returning no memories", err)
		return nil, nil
	}
	return memories, nil
}

// CharacterMemories lists a character's memories sorted by the given
// field (importance when unrecognized), optionally filtered by source.
func (s *Service) CharacterMemories(ctx context.Context, characterID string, limit int, sortBy, source string) ([]*Memory, error) {
	filter := store.Filter{"character_id": characterID}
	if source != "" {
		filter["source"] = source
	}

	sortField := SortByImportance
	switch sortBy {
	case SortByCreatedAt, SortByLastAccessed:
		sortField = sortBy
	}

	docs, err := s.db.Find(ctx, s.config.Collection, filter, &store.Sort{Field: sortField, Descending: true}, limit)
	if err != nil {
		return nil, err
	}

	memories := make([]*Memory, 0, len(docs))
	for _, doc := range docs {
		memories = append(memories, docToMemory(doc))
	}
	return memories, nil
}

func (s *Service) queryIndex(ctx context.Context, characterID string, queryVec []float32, limit int) ([]*Memory, error) {
	results, err := s.index.Query(ctx, characterID, queryVec, limit, map[string]string{"character_id": characterID})
	if err != nil {
		return nil, err
	}

	memories := make([]*Memory, 0, len(results))
	for _, r := range results {
		mem, err := s.GetMemory(ctx, r.ID)
		if err != nil {
			log.Printf("[MEMORY] Indexed memory %s missing from store: %v", r.ID, err)
			continue
		}
		setScore(mem, r.Similarity)
		memories = append(memories, mem)
	}
	return memories, nil
}

func (s *Service) manualScan(ctx context.Context, characterID string, queryVec []float32, limit int) ([]*Memory, error) {
	docs, err := s.db.Find(ctx, s.config.EmbeddingsCollection, store.Filter{"character_id": characterID}, nil, 0)
	if err != nil {
		return nil, err
	}

	candidates := make([]embedding.Candidate, 0, len(docs))
	for _, doc := range docs {
		id, _ := doc["id"].(string)
		vec, _ := doc["embedding"].([]float32)
		if id == "" || len(vec) == 0 {
			continue
		}
		candidates = append(candidates, embedding.Candidate{ID: id, Vector: vec})
	}

	ranked := embedding.Rank(queryVec, candidates, limit)
	memories := make([]*Memory, 0, len(ranked))
	for _, r := range ranked {
		mem, err := s.GetMemory(ctx, r.ID)
		if err != nil {
			log.Printf("[MEMORY] Embedding record %s has no memory: %v", r.ID, err)
			continue
		}
		setScore(mem, r.Score)
		memories = append(memories, mem)
	}
	return memories, nil
}

func (s *Service) keywordSearch(ctx context.Context, characterID, query string, limit int) ([]*Memory, error) {
	docs, err := s.db.Find(ctx, s.config.Collection, store.Filter{"character_id": characterID}, nil, 0)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(query)
	var memories []*Memory
	for _, doc := range docs {
		mem := docToMemory(doc)
		if memoryMatches(mem, needle) {
			memories = append(memories, mem)
			if len(memories) >= limit {
				break
			}
		}
	}
	return memories, nil
}

// memoryMatches checks content plus the topical metadata fields the
// ingestion tooling writes.
func memoryMatches(mem *Memory, needle string) bool {
	if strings.Contains(strings.ToLower(mem.Content), needle) {
		return true
	}
	for _, key := range []string{"topic", "category"} {
		if v, ok := mem.Metadata[key].(string); ok {
			if strings.Contains(strings.ToLower(v), needle) {
				return true
			}
		}
	}
	return false
}

func setScore(mem *Memory, score float64) {
	if mem.Metadata == nil {
		mem.Metadata = make(map[string]interface{})
	}
	mem.Metadata["similarity_score"] = score
}

func docToMemory(doc store.Document) *Memory {
	mem := &Memory{}
	mem.ID, _ = doc["id"].(string)
	mem.CharacterID, _ = doc["character_id"].(string)
	mem.Content, _ = doc["content"].(string)
	mem.Source, _ = doc["source"].(string)
	switch v := doc["importance"].(type) {
	case int:
		mem.Importance = v
	case int64:
		mem.Importance = int(v)
	case float64:
		mem.Importance = int(v)
	}
	if meta, ok := doc["metadata"].(map[string]interface{}); ok {
		mem.Metadata = meta
	}
	if t, ok := doc["created_at"].(time.Time); ok {
		mem.CreatedAt = t
	}
	if t, ok := doc["last_accessed"].(time.Time); ok {
		mem.LastAccessed = t
	}
	switch v := doc["access_count"].(type) {
	case int64:
		mem.AccessCount = v
	case int:
		mem.AccessCount = int64(v)
	case float64:
		mem.AccessCount = int64(v)
	}
	return mem
}
