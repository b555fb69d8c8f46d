// Package evaluation scores how well retrieved knowledge supports a
// generated response: precision against the query, recall against an
// expected answer, and a combined relevancy of chunks to both query and
// response.
package evaluation

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/embedding"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/knowledge"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/store"
)

// DefaultThreshold is the similarity above which a chunk counts as
// relevant.
const DefaultThreshold = 0.7

// Request carries one exchange to evaluate. ExpectedResponse is
// optional; recall is only computed when it is present.
type Request struct {
	Query             string             `json:"query"`
	RetrievedChunks   []*knowledge.Chunk `json:"retrieved_chunks"`
	GeneratedResponse string             `json:"generated_response"`
	ExpectedResponse  string             `json:"expected_response,omitempty"`
	ConversationID    string             `json:"conversation_id,omitempty"`
}

// Metrics are the per-exchange scores, each in [0, 1].
type Metrics struct {
	ContextualPrecision float64  `json:"contextual_precision"`
	ContextualRecall    *float64 `json:"contextual_recall,omitempty"`
	ContextualRelevancy float64  `json:"contextual_relevancy"`
	CombinedScore       float64  `json:"combined_score"`
}

// Result is one stored evaluation.
type Result struct {
	ID                string    `json:"id,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
	Query             string    `json:"query"`
	GeneratedResponse string    `json:"generated_response"`
	ExpectedResponse  string    `json:"expected_response,omitempty"`
	ChunkCount        int       `json:"retrieved_chunks_count"`
	ChunkIDs          []string  `json:"retrieved_chunk_ids"`
	Metrics           Metrics   `json:"metrics"`
	ConversationID    string    `json:"conversation_id,omitempty"`
}

// Summary aggregates recent evaluations.
type Summary struct {
	Count         int     `json:"count"`
	AvgPrecision  float64 `json:"avg_contextual_precision"`
	AvgRecall     float64 `json:"avg_contextual_recall"`
	AvgRelevancy  float64 `json:"avg_contextual_relevancy"`
	AvgCombined   float64 `json:"avg_combined_score"`
}

// Config holds evaluator settings.
type Config struct {
	// Collection stores evaluation results; empty disables persistence.
	Collection string

	// Threshold is the relevance cutoff.
	Threshold float64
}

// DefaultConfig matches the reference deployment.
var DefaultConfig = &Config{
	Collection: "rag_evaluations",
	Threshold:  DefaultThreshold,
}

// Evaluator computes retrieval metrics with the shared embedder. A nil
// db keeps results in memory only.
type Evaluator struct {
	db       store.Store
	embedder embedding.Embedder
	config   *Config
}

// NewEvaluator creates an evaluator. A nil config uses DefaultConfig.
func NewEvaluator(db store.Store, embedder embedding.Embedder, config *Config) *Evaluator {
	if config == nil {
		config = DefaultConfig
	}
	return &Evaluator{db: db, embedder: embedder, config: config}
}

// ContextualPrecision is the fraction of retrieved chunks whose
// similarity to the query clears the threshold. Empty retrieval scores
// 0.
func (e *Evaluator) ContextualPrecision(ctx context.Context, chunks []*knowledge.Chunk, query string) (float64, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	queryVec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("embed query: %w", err)
	}

	relevant := 0
	for _, chunk := range chunks {
		vec, err := e.chunkVector(ctx, chunk)
		if err != nil {
			return 0, err
		}
		if embedding.CosineSimilarity(queryVec, vec) >= e.config.Threshold {
			relevant++
		}
	}
	return float64(relevant) / float64(len(chunks)), nil
}

// ContextualRecall checks whether at least one retrieved chunk is
// relevant to the expected response: 1 if so, 0 otherwise.
func (e *Evaluator) ContextualRecall(ctx context.Context, chunks []*knowledge.Chunk, expectedResponse string) (float64, error) {
	if len(chunks) == 0 || expectedResponse == "" {
		return 0, nil
	}
	responseVec, err := e.embedder.Embed(ctx, expectedResponse)
	if err != nil {
		return 0, fmt.Errorf("embed expected response: %w", err)
	}

	for _, chunk := range chunks {
		vec, err := e.chunkVector(ctx, chunk)
		if err != nil {
			return 0, err
		}
		if embedding.CosineSimilarity(responseVec, vec) >= e.config.Threshold {
			return 1, nil
		}
	}
	return 0, nil
}

// ContextualRelevancy averages, over the chunks, the geometric mean of
// each chunk's similarity to the query and to the generated response.
func (e *Evaluator) ContextualRelevancy(ctx context.Context, chunks []*knowledge.Chunk, query, generatedResponse string) (float64, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	queryVec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("embed query: %w", err)
	}
	responseVec, err := e.embedder.Embed(ctx, generatedResponse)
	if err != nil {
		return 0, fmt.Errorf("embed response: %w", err)
	}

	var total float64
	for _, chunk := range chunks {
		vec, err := e.chunkVector(ctx, chunk)
		if err != nil {
			return 0, err
		}
		qs := embedding.CosineSimilarity(queryVec, vec)
		rs := embedding.CosineSimilarity(responseVec, vec)
		if qs > 0 && rs > 0 {
			total += math.Sqrt(qs * rs)
		}
	}
	return total / float64(len(chunks)), nil
}

// Evaluate computes all metrics for one exchange and persists the
// result when a collection is configured.
func (e *Evaluator) Evaluate(ctx context.Context, req Request) (*Result, error) {
	precision, err := e.ContextualPrecision(ctx, req.RetrievedChunks, req.Query)
	if err != nil {
		return nil, err
	}

	var recall *float64
	recallValue := 0.0
	if req.ExpectedResponse != "" {
		recallValue, err = e.ContextualRecall(ctx, req.RetrievedChunks, req.ExpectedResponse)
		if err != nil {
			return nil, err
		}
		recall = &recallValue
	}

	relevancy, err := e.ContextualRelevancy(ctx, req.RetrievedChunks, req.Query, req.GeneratedResponse)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Timestamp:         time.Now().UTC(),
		Query:             req.Query,
		GeneratedResponse: req.GeneratedResponse,
		ExpectedResponse:  req.ExpectedResponse,
		ChunkCount:        len(req.RetrievedChunks),
		ChunkIDs:          chunkIDs(req.RetrievedChunks),
		Metrics: Metrics{
			ContextualPrecision: precision,
			ContextualRecall:    recall,
			ContextualRelevancy: relevancy,
			CombinedScore:       (precision + relevancy + recallValue) / 3,
		},
		ConversationID: req.ConversationID,
	}

	if e.db != nil && e.config.Collection != "" {
		id, err := e.db.Insert(ctx, e.config.Collection, resultToDoc(result))
		if err != nil {
			log.Printf("[EVAL] Failed to store evaluation result: %v", err)
		} else {
			result.ID = id
		}
	}
	return result, nil
}

// Summarize averages the metrics of the most recent stored evaluations.
func (e *Evaluator) Summarize(ctx context.Context, limit int) (*Summary, error) {
	if e.db == nil || e.config.Collection == "" {
		return &Summary{}, nil
	}
	if limit <= 0 {
		limit = 100
	}
	docs, err := e.db.Find(ctx, e.config.Collection, nil, &store.Sort{Field: "timestamp", Descending: true}, limit)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return &Summary{}, nil
	}

	summary := &Summary{Count: len(docs)}
	recallCount := 0
	for _, doc := range docs {
		metrics, _ := doc["metrics"].(map[string]interface{})
		summary.AvgPrecision += asFloat(metrics["contextual_precision"])
		summary.AvgRelevancy += asFloat(metrics["contextual_relevancy"])
		summary.AvgCombined += asFloat(metrics["combined_score"])
		if v, ok := metrics["contextual_recall"]; ok && v != nil {
			summary.AvgRecall += asFloat(v)
			recallCount++
		}
	}
	n := float64(len(docs))
	summary.AvgPrecision /= n
	summary.AvgRelevancy /= n
	summary.AvgCombined /= n
	if recallCount > 0 {
		summary.AvgRecall /= float64(recallCount)
	}
	return summary, nil
}

// chunkVector reuses the stored embedding when present, embedding the
// content otherwise.
func (e *Evaluator) chunkVector(ctx context.Context, chunk *knowledge.Chunk) ([]float32, error) {
	if len(chunk.Embedding) > 0 {
		return chunk.Embedding, nil
	}
	vec, err := e.embedder.Embed(ctx, chunk.Content)
	if err != nil {
		return nil, fmt.Errorf("embed chunk %s: %w", chunk.ID, err)
	}
	return vec, nil
}

func chunkIDs(chunks []*knowledge.Chunk) []string {
	ids := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if c.ID != "" {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

func resultToDoc(r *Result) store.Document {
	metrics := store.Document{
		"contextual_precision": r.Metrics.ContextualPrecision,
		"contextual_relevancy": r.Metrics.ContextualRelevancy,
		"combined_score":       r.Metrics.CombinedScore,
	}
	if r.Metrics.ContextualRecall != nil {
		metrics["contextual_recall"] = *r.Metrics.ContextualRecall
	}
	return store.Document{
		"timestamp":              r.Timestamp,
		"query":                  r.Query,
		"generated_response":     r.GeneratedResponse,
		"expected_response":      r.ExpectedResponse,
		"retrieved_chunks_count": r.ChunkCount,
		"retrieved_chunk_ids":    r.ChunkIDs,
		"metrics":                map[string]interface{}(metrics),
		"conversation_id":        r.ConversationID,
	}
}

func asFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}
