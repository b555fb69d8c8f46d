// Package knowledge manages the character knowledge base: immutable text
// chunks with embeddings, retrieved by similarity with a layered
// fallback so retrieval degrades instead of failing.
package knowledge

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/embedding"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/store"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/vector"
)

// Chunk is a knowledge chunk with its embedding.
type Chunk struct {
	ID        string                 `json:"id"`
	Source    string                 `json:"source"`
	Content   string                 `json:"content"`
	Embedding []float32              `json:"embedding,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Query asks for chunks similar to a text, optionally restricted by
// exact-match metadata filters applied before scoring.
type Query struct {
	Query          string            `json:"query"`
	TopK           int               `json:"top_k"`
	FilterMetadata map[string]string `json:"filter_metadata,omitempty"`
}

// MetaSimilarityScore is the metadata key carrying the retrieval score.
const MetaSimilarityScore = "similarity_score"

// Config holds knowledge service configuration.
type Config struct {
	// Collection is the document collection name.
	Collection string

	// IndexScope is the vector index scope shared by all chunks.
	IndexScope string
}

// DefaultConfig matches the reference deployment.
var DefaultConfig = &Config{
	Collection: "knowledge_chunks",
	IndexScope: "knowledge",
}

// Service stores and retrieves knowledge chunks.
type Service struct {
	db       store.Store
	index    vector.Index
	embedder embedding.Embedder
	config   *Config
}

// NewService creates a knowledge service. A nil config uses DefaultConfig.
func NewService(db store.Store, index vector.Index, embedder embedding.Embedder, config *Config) *Service {
	if config == nil {
		config = DefaultConfig
	}
	return &Service{db: db, index: index, embedder: embedder, config: config}
}

// StoreChunk stores a chunk, generating its embedding when absent, and
// indexes it for similarity search. Returns the chunk id.
func (s *Service) StoreChunk(ctx context.Context, chunk *Chunk) (string, error) {
	if len(chunk.Embedding) == 0 {
		vec, err := s.embedder.Embed(ctx, chunk.Content)
		if err != nil {
			return "", fmt.Errorf("embed chunk: %w", err)
		}
		chunk.Embedding = vec
	}

	id, err := s.db.Insert(ctx, s.config.Collection, chunkToDoc(chunk))
	if err != nil {
		return "", fmt.Errorf("insert chunk: %w", err)
	}
	chunk.ID = id

	if err := s.index.Add(ctx, s.config.IndexScope, vector.Entry{
		ID:        id,
		Content:   chunk.Content,
		Embedding: chunk.Embedding,
		Metadata:  stringMetadata(chunk.Metadata),
	}); err != nil {
		// The document is the source of truth; the manual scan still
		// finds an unindexed chunk
		log.Printf("[KNOWLEDGE] Failed to index chunk %s: %v", id, err)
	}

	return id, nil
}

// StoreChunksBatch stores multiple chunks, embedding the ones that
// arrive without vectors.
func (s *Service) StoreChunksBatch(ctx context.Context, chunks []*Chunk) ([]string, error) {
	ids := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		id, err := s.StoreChunk(ctx, chunk)
		if err != nil {
			return ids, fmt.Errorf("store chunk #%d: %w", i+1, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// GetChunk retrieves a chunk by id. Returns store.ErrNotFound when absent.
func (s *Service) GetChunk(ctx context.Context, id string) (*Chunk, error) {
	doc, err := s.db.FindByID(ctx, s.config.Collection, id)
	if err != nil {
		return nil, err
	}
	return docToChunk(doc), nil
}

// UpdateChunk overwrites a chunk's fields. A content change regenerates
// the embedding and reindexes the chunk under the same id.
func (s *Service) UpdateChunk(ctx context.Context, chunk *Chunk) error {
	existing, err := s.GetChunk(ctx, chunk.ID)
	if err != nil {
		return err
	}

	if chunk.Content != existing.Content || len(chunk.Embedding) == 0 {
		vec, err := s.embedder.Embed(ctx, chunk.Content)
		if err != nil {
			return fmt.Errorf("embed chunk: %w", err)
		}
		chunk.Embedding = vec
	}

	if err := s.db.UpdateByID(ctx, s.config.Collection, chunk.ID, chunkToDoc(chunk)); err != nil {
		return err
	}

	if err := s.index.Add(ctx, s.config.IndexScope, vector.Entry{
		ID:        chunk.ID,
		Content:   chunk.Content,
		Embedding: chunk.Embedding,
		Metadata:  stringMetadata(chunk.Metadata),
	}); err != nil {
		log.Printf("[KNOWLEDGE] Failed to reindex chunk %s: %v", chunk.ID, err)
	}
	return nil
}

// DeleteChunk removes a chunk and its index entry.
func (s *Service) DeleteChunk(ctx context.Context, id string) error {
	if err := s.db.DeleteByID(ctx, s.config.Collection, id); err != nil {
		return err
	}
	if err := s.index.Delete(ctx, s.config.IndexScope, id); err != nil {
		log.Printf("[KNOWLEDGE] Failed to remove chunk %s from index: %v", id, err)
	}
	return nil
}

// RetrieveSimilar finds the chunks most similar to the query. The
// fallback ladder runs native index query, manual similarity scan,
// keyword match, then an unranked filtered slice; a rung is abandoned on
// error or on empty results and the next one runs. Exhausting every
// rung yields an empty list, never an error.
func (s *Service) RetrieveSimilar(ctx context.Context, query Query) ([]*Chunk, error) {
	if query.TopK <= 0 {
		query.TopK = 5
	}

	queryVec, embedErr := s.embedder.Embed(ctx, query.Query)
	if embedErr != nil {
		log.Printf("[KNOWLEDGE] Query embedding failed: %v, skipping vector rungs", embedErr)
	}

	// Rung 1: native vector index
	if embedErr == nil {
		chunks, err := s.queryIndex(ctx, queryVec, query)
		if err != nil {
			log.Printf("[KNOWLEDGE] Index query failed: %v, falling back to manual scan", err)
		} else if len(chunks) > 0 {
			return chunks, nil
		}
	}

	// Rung 2: manual similarity scan over stored chunks
	if embedErr == nil {
		chunks, err := s.manualScan(ctx, queryVec, query)
		if err != nil {
			log.Printf("[KNOWLEDGE] Manual scan failed: %v, falling back to keyword search", err)
		} else if len(chunks) > 0 {
			return chunks, nil
		}
	}

	// Rung 3: keyword match on content and source
	chunks, err := s.keywordSearch(ctx, query)
	if err != nil {
		log.Printf("[KNOWLEDGE] Keyword search failed: %v, falling back to filtered slice", err)
	} else if len(chunks) > 0 {
		return chunks, nil
	}

	// Rung 4: any chunks in scope, unranked
	chunks, err = s.filteredSlice(ctx, query)
	if err != nil {
		log.Printf("[KNOWLEDGE] Filtered slice failed: %v, returning no chunks", err)
		return nil, nil
	}
	return chunks, nil
}

func (s *Service) queryIndex(ctx context.Context, queryVec []float32, query Query) ([]*Chunk, error) {
	results, err := s.index.Query(ctx, s.config.IndexScope, queryVec, query.TopK, query.FilterMetadata)
	if err != nil {
		return nil, err
	}

	chunks := make([]*Chunk, 0, len(results))
	for _, r := range results {
		chunk, err := s.GetChunk(ctx, r.ID)
		if err != nil {
			log.Printf("[KNOWLEDGE] Indexed chunk %s missing from store: %v", r.ID, err)
			continue
		}
		setScore(chunk, r.Similarity)
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

func (s *Service) manualScan(ctx context.Context, queryVec []float32, query Query) ([]*Chunk, error) {
	docs, err := s.db.Find(ctx, s.config.Collection, metadataFilter(query.FilterMetadata), nil, 0)
	if err != nil {
		return nil, err
	}

	candidates := make([]embedding.Candidate, 0, len(docs))
	byID := make(map[string]*Chunk, len(docs))
	for _, doc := range docs {
		chunk := docToChunk(doc)
		if len(chunk.Embedding) == 0 {
			continue
		}
		candidates = append(candidates, embedding.Candidate{ID: chunk.ID, Vector: chunk.Embedding})
		byID[chunk.ID] = chunk
	}

	ranked := embedding.Rank(queryVec, candidates, query.TopK)
	chunks := make([]*Chunk, 0, len(ranked))
	for _, r := range ranked {
		chunk := byID[r.ID]
		setScore(chunk, r.Score)
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

func (s *Service) keywordSearch(ctx context.Context, query Query) ([]*Chunk, error) {
	docs, err := s.db.Find(ctx, s.config.Collection, metadataFilter(query.FilterMetadata), nil, 0)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(query.Query)
	var chunks []*Chunk
	for _, doc := range docs {
		chunk := docToChunk(doc)
		if strings.Contains(strings.ToLower(chunk.Content), needle) ||
			strings.Contains(strings.ToLower(chunk.Source), needle) {
			chunks = append(chunks, chunk)
			if len(chunks) >= query.TopK {
				break
			}
		}
	}
	return chunks, nil
}

func (s *Service) filteredSlice(ctx context.Context, query Query) ([]*Chunk, error) {
	docs, err := s.db.Find(ctx, s.config.Collection, metadataFilter(query.FilterMetadata), nil, query.TopK)
	if err != nil {
		return nil, err
	}

	chunks := make([]*Chunk, 0, len(docs))
	for _, doc := range docs {
		chunks = append(chunks, docToChunk(doc))
	}
	return chunks, nil
}

func setScore(chunk *Chunk, score float64) {
	if chunk.Metadata == nil {
		chunk.Metadata = make(map[string]interface{})
	}
	chunk.Metadata[MetaSimilarityScore] = score
}

// metadataFilter rewrites metadata keys into the document store's
// dotted-path form.
func metadataFilter(meta map[string]string) store.Filter {
	if len(meta) == 0 {
		return nil
	}
	filter := make(store.Filter, len(meta))
	for k, v := range meta {
		filter["metadata."+k] = v
	}
	return filter
}

// stringMetadata keeps only string-valued metadata for the vector
// index's where-clauses.
func stringMetadata(meta map[string]interface{}) map[string]string {
	if len(meta) == 0 {
		return nil
	}
	out := make(map[string]string)
	for k, v := range meta {
		if str, ok := v.(string); ok {
			out[k] = str
		}
	}
	return out
}

func chunkToDoc(chunk *Chunk) store.Document {
	doc := store.Document{
		"source":  chunk.Source,
		"content": chunk.Content,
	}
	if chunk.ID != "" {
		doc["id"] = chunk.ID
	}
	if len(chunk.Embedding) > 0 {
		doc["embedding"] = chunk.Embedding
	}
	if chunk.Metadata != nil {
		doc["metadata"] = chunk.Metadata
	}
	return doc
}

func docToChunk(doc store.Document) *Chunk {
	chunk := &Chunk{}
	chunk.ID, _ = doc["id"].(string)
	chunk.Source, _ = doc["source"].(string)
	chunk.Content, _ = doc["content"].(string)
	chunk.Embedding, _ = doc["embedding"].([]float32)
	if meta, ok := doc["metadata"].(map[string]interface{}); ok {
		chunk.Metadata = meta
	}
	return chunk
}
