package dialogue_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/core"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/dialogue"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/knowledge"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/prompt"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/store/memdb"
)

type stubRetriever struct {
	chunks []*knowledge.Chunk
	err    error
}

func (s *stubRetriever) RetrieveSimilar(ctx context.Context, query knowledge.Query) ([]*knowledge.Chunk, error) {
	return s.chunks, s.err
}

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

// stubVersioner serves canned versions by id and per-character defaults.
type stubVersioner struct {
	versions map[string]*prompt.Version
	defaults map[string]*prompt.Version
}

func (s *stubVersioner) GetVersion(ctx context.Context, id string) (*prompt.Version, error) {
	if v, ok := s.versions[id]; ok {
		return v, nil
	}
	return nil, errors.New("version not found")
}

func (s *stubVersioner) GetDefaultForCharacter(ctx context.Context, characterID string) (*prompt.Version, error) {
	return s.defaults[characterID], nil
}

func TestRender(t *testing.T) {
	out := dialogue.Render("You are {name}. {name} says: {line}", map[string]string{
		"name": "Thor",
		"line": "For Asgard!",
	})
	if out != "You are Thor. Thor says: For Asgard!" {
		t.Errorf("unexpected render: %q", out)
	}

	// Unknown placeholders stay in place
	out = dialogue.Render("hello {missing}", map[string]string{"name": "x"})
	if out != "hello {missing}" {
		t.Errorf("unknown placeholder mangled: %q", out)
	}
}

func TestGenerate_UsesRequestedPromptVersion(t *testing.T) {
	db := memdb.New()
	provider := &stubProvider{response: "Verily."}
	versioner := &stubVersioner{
		versions: map[string]*prompt.Version{
			"v-42": {ID: "v-42", Template: "REQUESTED {user_message}"},
		},
		defaults: map[string]*prompt.Version{
			"character_thor": {Template: "DEFAULT {user_message}"},
		},
	}

	gen := dialogue.NewGenerator(db, dialogue.NewConversations(db, ""), &stubRetriever{}, versioner, provider, nil)
	resp := gen.Generate(context.Background(), core.DialogueRequest{
		CharacterID:     "character_thor",
		UserMessage:     "Greetings",
		PromptVersionID: "v-42",
	})

	if resp.Message.Content != "Verily." {
		t.Errorf("wrong response: %q", resp.Message.Content)
	}
	if len(provider.prompts) != 1 || !strings.HasPrefix(provider.prompts[0], "REQUESTED") {
		t.Errorf("requested version not used: %v", provider.prompts)
	}
}

func TestGenerate_FallsBackToCharacterDefault(t *testing.T) {
	db := memdb.New()
	provider := &stubProvider{response: "Aye."}
	versioner := &stubVersioner{
		defaults: map[string]*prompt.Version{
			"character_thor": {Template: "DEFAULT {user_message}"},
		},
	}

	gen := dialogue.NewGenerator(db, dialogue.NewConversations(db, ""), &stubRetriever{}, versioner, provider, nil)
	gen.Generate(context.Background(), core.DialogueRequest{
		CharacterID: "character_thor",
		UserMessage: "Greetings",
	})

	if len(provider.prompts) != 1 || !strings.HasPrefix(provider.prompts[0], "DEFAULT") {
		t.Errorf("character default not used: %v", provider.prompts)
	}
}

func TestGenerate_HardcodedTemplateWhenNothingConfigured(t *testing.T) {
	db := memdb.New()
	provider := &stubProvider{response: "Indeed."}
	versioner := &stubVersioner{}

	gen := dialogue.NewGenerator(db, dialogue.NewConversations(db, ""), &stubRetriever{}, versioner, provider, nil)
	gen.Generate(context.Background(), core.DialogueRequest{
		CharacterID: "character_unknown",
		UserMessage: "Hello there",
	})

	if len(provider.prompts) != 1 {
		t.Fatalf("expected 1 provider call, got %d", len(provider.prompts))
	}
	p := provider.prompts[0]
	if !strings.Contains(p, "Hello there") {
		t.Errorf("user message missing from prompt: %q", p)
	}
	if !strings.Contains(p, "character_unknown") {
		t.Errorf("fallback character name missing from prompt: %q", p)
	}
	if !strings.Contains(p, "No specific knowledge available.") {
		t.Errorf("empty-knowledge placeholder missing: %q", p)
	}
}

func TestGenerate_ProviderFailureYieldsApology(t *testing.T) {
	db := memdb.New()
	conversations := dialogue.NewConversations(db, "")
	provider := &stubProvider{err: errors.New("llm timeout")}

	gen := dialogue.NewGenerator(db, conversations, &stubRetriever{}, &stubVersioner{}, provider, nil)
	resp := gen.Generate(context.Background(), core.DialogueRequest{
		CharacterID: "character_thor",
		UserMessage: "Greetings",
	})

	if resp.Message.Content != dialogue.Apology {
		t.Errorf("expected apology, got %q", resp.Message.Content)
	}
	if resp.Message.Metadata["error"] == nil {
		t.Error("error diagnostic missing from metadata")
	}

	// A failed generation must not persist a conversation
	convs, _ := conversations.List(context.Background(), "", 10)
	if len(convs) != 0 {
		t.Errorf("conversation persisted despite failure: %d", len(convs))
	}
}

func TestGenerate_CreatesConversationAndPersistsExchange(t *testing.T) {
	ctx := context.Background()
	db := memdb.New()
	conversations := dialogue.NewConversations(db, "")
	provider := &stubProvider{response: "I say, hello."}

	gen := dialogue.NewGenerator(db, conversations, &stubRetriever{}, &stubVersioner{}, provider, nil)
	resp := gen.Generate(ctx, core.DialogueRequest{
		CharacterID: "character_thor",
		UserMessage: "Greetings",
	})

	if resp.ConversationID == "" {
		t.Fatal("no conversation id returned")
	}

	conv, err := conversations.Get(ctx, resp.ConversationID)
	if err != nil {
		t.Fatalf("conversation not persisted: %v", err)
	}
	if len(conv.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(conv.Messages))
	}
	if conv.Messages[0].Role != core.RoleUser || conv.Messages[0].Content != "Greetings" {
		t.Errorf("user message wrong: %+v", conv.Messages[0])
	}
	if conv.Messages[1].Role != core.RoleAssistant || conv.Messages[1].Content != "I say, hello." {
		t.Errorf("assistant message wrong: %+v", conv.Messages[1])
	}

	// A second turn reuses the conversation
	gen.Generate(ctx, core.DialogueRequest{
		CharacterID:    "character_thor",
		UserMessage:    "And again",
		ConversationID: resp.ConversationID,
	})
	conv, _ = conversations.Get(ctx, resp.ConversationID)
	if len(conv.Messages) != 4 {
		t.Errorf("expected 4 messages after second turn, got %d", len(conv.Messages))
	}
}

func TestGenerate_KnowledgeChunksReachPromptAndContextUsed(t *testing.T) {
	db := memdb.New()
	provider := &stubProvider{response: "The reactor, of course."}
	retriever := &stubRetriever{chunks: []*knowledge.Chunk{
		{ID: "k1", Content: "The arc reactor powers the suit."},
	}}

	gen := dialogue.NewGenerator(db, dialogue.NewConversations(db, ""), retriever, &stubVersioner{}, provider, nil)
	resp := gen.Generate(context.Background(), core.DialogueRequest{
		CharacterID: "character_iron_man",
		UserMessage: "What powers the suit?",
	})

	if !strings.Contains(provider.prompts[0], "The arc reactor powers the suit.") {
		t.Errorf("chunk content missing from prompt: %q", provider.prompts[0])
	}
	used, _ := resp.ContextUsed["knowledge_chunks_used"].([]string)
	if len(used) != 1 || used[0] != "k1" {
		t.Errorf("chunk ids not reported: %v", resp.ContextUsed)
	}
}
