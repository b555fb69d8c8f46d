// Character interaction engine server: knowledge and memory stores,
// the five-stage dialogue pipeline, HTTP API and WebSocket events.
package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/dialogue"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/embedding"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/evaluation"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/knowledge"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/memory"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/pipeline"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/prompt"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/realtime"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/server"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/store/memdb"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/vector/chromem"
)

func main() {
	_ = godotenv.Load()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Embedding provider, wrapped in a cache so repeated queries don't
	// re-embed.
	baseEmbedder, err := newEmbedder()
	if err != nil {
		log.Fatalf("failed to create embedder: %v", err)
	}
	embedder, err := embedding.NewCached(baseEmbedder, nil)
	if err != nil {
		log.Fatalf("failed to create embedding cache: %v", err)
	}
	log.Printf("✅ Embedder ready (%d dimensions)", embedder.Dimensions())

	// Generation provider.
	provider, err := dialogue.NewAnthropicProvider(dialogue.AnthropicConfig{
		Model: os.Getenv("ANTHROPIC_MODEL"),
	})
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	log.Println("✅ Generation provider configured")

	// Stores and index.
	db := memdb.New()
	index := chromem.New()

	knowledgeSvc := knowledge.NewService(db, index, embedder, nil)
	memorySvc := memory.NewService(db, index, embedder, nil)
	promptSvc := prompt.NewService(db, nil)
	conversations := dialogue.NewConversations(db, "")
	evaluator := evaluation.NewEvaluator(db, embedder, nil)

	generator := dialogue.NewGenerator(db, conversations, knowledgeSvc, promptSvc, provider, nil)
	runner := pipeline.NewRunner(db, knowledgeSvc, memorySvc, conversations, promptSvc, provider, nil)
	hub := realtime.NewHub(runner)

	srv := server.New(knowledgeSvc, memorySvc, promptSvc, conversations, generator, runner, evaluator, hub)
	if err := srv.Run(":" + port); err != nil {
		log.Fatal(err)
	}
}
