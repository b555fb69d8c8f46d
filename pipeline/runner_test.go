package pipeline_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/core"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/dialogue"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/knowledge"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/memory"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/pipeline"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/store/memdb"
)

// stubRetriever returns canned chunks or an error.
type stubRetriever struct {
	chunks []*knowledge.Chunk
	err    error
}

func (s *stubRetriever) RetrieveSimilar(ctx context.Context, query knowledge.Query) ([]*knowledge.Chunk, error) {
	return s.chunks, s.err
}

// stubMemories records writes and returns canned search results.
type stubMemories struct {
	memories  []*memory.Memory
	searchErr error
	created   []string
	createErr error
}

func (s *stubMemories) CreateMemory(ctx context.Context, characterID, content, source string, importance int, metadata map[string]interface{}) (string, error) {
	if s.createErr != nil {
		return "", s.createErr
	}
	s.created = append(s.created, content)
	return "mem-1", nil
}

func (s *stubMemories) GetMemory(ctx context.Context, id string) (*memory.Memory, error) {
	return &memory.Memory{ID: id}, nil
}

func (s *stubMemories) SearchMemories(ctx context.Context, characterID, query string, limit int) ([]*memory.Memory, error) {
	return s.memories, s.searchErr
}

func (s *stubMemories) CharacterMemories(ctx context.Context, characterID string, limit int, sortBy, source string) ([]*memory.Memory, error) {
	return s.memories, nil
}

// stubProvider echoes a canned response or fails.
type stubProvider struct {
	response string
	err      error
	prompts  []string
}

func (s *stubProvider) Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64, maxTokens int64) (string, error) {
	s.prompts = append(s.prompts, userPrompt)
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func newRunner(retriever *stubRetriever, memories *stubMemories, provider *stubProvider) *pipeline.Runner {
	db := memdb.New()
	conversations := dialogue.NewConversations(db, "")
	return pipeline.NewRunner(db, retriever, memories, conversations, nil, provider, nil)
}

func TestRun_HappyPath(t *testing.T) {
	retriever := &stubRetriever{chunks: []*knowledge.Chunk{
		{ID: "k1", Source: "wiki", Content: "The suit flies."},
	}}
	memories := &stubMemories{memories: []*memory.Memory{
		{ID: "m1", Content: "User likes flying."},
	}}
	provider := &stubProvider{response: "I can fly, obviously."}

	result := newRunner(retriever, memories, provider).Run(context.Background(),
		pipeline.NewState("Can you fly?", "character_iron_man", "", "", nil))

	if result.Error != "" {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	if result.Response != "I can fly, obviously." {
		t.Errorf("wrong response: %q", result.Response)
	}
	if len(result.KnowledgeUsed) != 1 || result.KnowledgeUsed[0] != "k1" {
		t.Errorf("knowledge ids not extracted: %v", result.KnowledgeUsed)
	}
	if len(result.MemoriesUsed) != 1 || result.MemoriesUsed[0] != "m1" {
		t.Errorf("memory ids not extracted: %v", result.MemoriesUsed)
	}
	if len(memories.created) != 1 {
		t.Fatalf("expected 1 memory written, got %d", len(memories.created))
	}
	if !strings.Contains(memories.created[0], "Can you fly?") || !strings.Contains(memories.created[0], "I can fly, obviously.") {
		t.Errorf("memory content missing exchange: %q", memories.created[0])
	}
}

func TestRun_CompletesDespiteEveryStageFailing(t *testing.T) {
	retriever := &stubRetriever{err: errors.New("knowledge store down")}
	memories := &stubMemories{searchErr: errors.New("memory store down")}
	provider := &stubProvider{err: errors.New("llm down")}

	runner := newRunner(retriever, memories, provider)

	state := pipeline.NewState("hello", "character_thor", "", "", nil)
	state = runner.KnowledgeRetrieval(context.Background(), state)
	state = runner.MemoryRetrieval(context.Background(), state)
	state = runner.ContextAssembly(context.Background(), state)
	state = runner.DialogueGeneration(context.Background(), state)
	state = runner.MemoryIntegration(context.Background(), state)

	if !state.Completed {
		t.Error("pipeline did not reach completed state")
	}
	if state.Error == "" {
		t.Error("expected recorded error")
	}
	if len(memories.created) != 0 {
		t.Error("memory written despite earlier errors")
	}
}

func TestRun_KnowledgeFailureStillProducesSentinelAndResponse(t *testing.T) {
	retriever := &stubRetriever{err: errors.New("knowledge store down")}
	memories := &stubMemories{}
	provider := &stubProvider{response: "I don't have specific information about that in my knowledge base."}

	runner := newRunner(retriever, memories, provider)

	state := pipeline.NewState("Tell me about the suit", "character_iron_man", "", "", nil)
	state = runner.KnowledgeRetrieval(context.Background(), state)
	state = runner.MemoryRetrieval(context.Background(), state)
	state = runner.ContextAssembly(context.Background(), state)

	if state.AssembledContext == "" {
		t.Fatal("assembled context is empty")
	}
	if !strings.Contains(state.AssembledContext, pipeline.NoKnowledgeSentinel) {
		t.Error("assembled context missing the no-knowledge sentinel")
	}

	state = runner.DialogueGeneration(context.Background(), state)
	if state.Response == "" {
		t.Error("dialogue generation returned empty response")
	}
}

func TestRun_ZeroMemoriesCompletes(t *testing.T) {
	retriever := &stubRetriever{chunks: []*knowledge.Chunk{{ID: "k1", Content: "fact"}}}
	memories := &stubMemories{} // no memories at all
	provider := &stubProvider{response: "A fine answer."}

	result := newRunner(retriever, memories, provider).Run(context.Background(),
		pipeline.NewState("hello", "character_new", "", "", nil))

	if result.Error != "" {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	if result.Response == "" {
		t.Error("expected non-empty response with zero memories")
	}
	if len(result.MemoriesUsed) != 0 {
		t.Errorf("expected no memories used, got %v", result.MemoriesUsed)
	}
}

func TestRun_ProviderFailureYieldsApologyAndSkipsMemoryWrite(t *testing.T) {
	retriever := &stubRetriever{chunks: []*knowledge.Chunk{{ID: "k1", Content: "fact"}}}
	memories := &stubMemories{}
	provider := &stubProvider{err: errors.New("llm timeout")}

	runner := newRunner(retriever, memories, provider)

	state := pipeline.NewState("hello", "character_thor", "", "", nil)
	state = runner.KnowledgeRetrieval(context.Background(), state)
	state = runner.MemoryRetrieval(context.Background(), state)
	state = runner.ContextAssembly(context.Background(), state)
	state = runner.DialogueGeneration(context.Background(), state)

	if state.Response != pipeline.Apology {
		t.Errorf("expected apology response, got %q", state.Response)
	}

	state = runner.MemoryIntegration(context.Background(), state)
	if !state.Completed {
		t.Error("pipeline not completed after provider failure")
	}
	if len(memories.created) != 0 {
		t.Error("memory written despite generation failure")
	}

	result := pipeline.Extract(state)
	if result.Response != pipeline.Apology {
		t.Errorf("extracted response not the apology: %q", result.Response)
	}
	if result.Error == "" {
		t.Error("extracted result missing the error indicator")
	}
}

func TestContextAssembly_RendersAllSections(t *testing.T) {
	runner := newRunner(&stubRetriever{}, &stubMemories{}, &stubProvider{})

	state := pipeline.NewState("What next?", "character_iron_man", "", "", nil)
	state.CharacterInfo = core.DefaultCharacter("character_iron_man")
	state.KnowledgeContext = []*knowledge.Chunk{
		{ID: "k1", Source: "wiki", Content: "Arc reactor output is 8 GJ/s.",
			Metadata: map[string]interface{}{"similarity_score": 0.88}},
	}
	state.CharacterMemories = []*memory.Memory{{ID: "m1", Content: "User prefers brevity."}}

	assembled := runner.ContextAssembly(context.Background(), state)
	text := assembled.AssembledContext

	for _, want := range []string{
		"CHARACTER INFORMATION:",
		"KNOWLEDGE CONTEXT:",
		"CHUNK 1: Arc reactor output is 8 GJ/s.",
		"Relevance Score: 0.88",
		"User prefers brevity.",
		"USER INPUT:",
		"What next?",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("assembled context missing %q", want)
		}
	}
}

func TestExtract_ErrorClearsIDLists(t *testing.T) {
	state := pipeline.NewState("q", "character_x", "conv-1", "", nil)
	state.KnowledgeContext = []*knowledge.Chunk{{ID: "k1"}}
	state.Error = "something broke"

	result := pipeline.Extract(state)
	if len(result.KnowledgeUsed) != 0 || len(result.MemoriesUsed) != 0 {
		t.Error("id lists should be empty on error")
	}
	if result.ConversationID != "conv-1" {
		t.Errorf("conversation id lost: %q", result.ConversationID)
	}
}
