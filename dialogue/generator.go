package dialogue

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/core"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/knowledge"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/prompt"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/store"
)

// Apology is the fixed response returned when generation fails. The
// caller always gets a well-formed response; the error rides along in
// message metadata.
const Apology = "I'm sorry, but I'm having trouble responding right now."

// defaultTemplate drives generation when neither a requested version
// nor a character default exists.
const defaultTemplate = "You are {character_name}, {character_description}. " +
	"Respond as this character would, maintaining their personality, " +
	"speaking style, and knowledge. " +
	"Knowledge context: {knowledge_context}. " +
	"Previous conversation: {conversation_history}. " +
	"User message: {user_message}"

// Retriever finds knowledge chunks for context assembly.
type Retriever interface {
	RetrieveSimilar(ctx context.Context, query knowledge.Query) ([]*knowledge.Chunk, error)
}

// GeneratorConfig holds dialogue generation tunables.
type GeneratorConfig struct {
	// CharacterCollection is the character profile collection.
	CharacterCollection string

	// Temperature and MaxTokens are passed to the provider.
	Temperature float64
	MaxTokens   int64

	// KnowledgeTopK caps chunks retrieved per request.
	KnowledgeTopK int

	// HistoryLimit caps conversation messages included in the prompt.
	HistoryLimit int
}

// DefaultGeneratorConfig matches the reference deployment.
var DefaultGeneratorConfig = &GeneratorConfig{
	CharacterCollection: "characters",
	Temperature:         0.7,
	MaxTokens:           300,
	KnowledgeTopK:       3,
	HistoryLimit:        5,
}

// Generator turns a dialogue request into an in-character response:
// resolve the character, gather knowledge and history, fill the prompt
// template, call the provider, persist the exchange.
type Generator struct {
	db            store.Store
	conversations *Conversations
	retriever     Retriever
	prompts       prompt.Versioner
	provider      Provider
	config        *GeneratorConfig
}

// NewGenerator creates a dialogue generator. A nil config uses
// DefaultGeneratorConfig.
func NewGenerator(db store.Store, conversations *Conversations, retriever Retriever, prompts prompt.Versioner, provider Provider, config *GeneratorConfig) *Generator {
	if config == nil {
		config = DefaultGeneratorConfig
	}
	return &Generator{
		db:            db,
		conversations: conversations,
		retriever:     retriever,
		prompts:       prompts,
		provider:      provider,
		config:        config,
	}
}

// Character resolves a character profile, falling back to the
// placeholder profile when the id is unknown.
func (g *Generator) Character(ctx context.Context, characterID string) core.Character {
	doc, err := g.db.FindByID(ctx, g.config.CharacterCollection, characterID)
	if err != nil {
		return core.DefaultCharacter(characterID)
	}
	ch := core.Character{ID: characterID}
	ch.Name, _ = doc["name"].(string)
	ch.Description, _ = doc["description"].(string)
	ch.Personality, _ = doc["personality"].(string)
	if ch.Name == "" {
		ch.Name = characterID
	}
	return ch
}

// Generate produces a dialogue response. It never returns an error:
// failures yield the apology response with the diagnostic in message
// metadata.
func (g *Generator) Generate(ctx context.Context, req core.DialogueRequest) *core.DialogueResponse {
	character := g.Character(ctx, req.CharacterID)

	history := g.history(ctx, req.ConversationID)
	chunks := g.knowledgeChunks(ctx, req, character)

	template := g.resolveTemplate(ctx, req)

	vars := map[string]string{
		"character_name":        character.Name,
		"character_description": character.Description,
		"knowledge_context":     knowledgeContext(chunks),
		"conversation_history":  formatHistory(history),
		"user_message":          req.UserMessage,
	}
	for k, v := range req.Context {
		switch val := v.(type) {
		case string:
			vars[k] = val
		case int, int64, float64, bool:
			vars[k] = fmt.Sprint(val)
		}
	}
	userPrompt := Render(template, vars)

	text, err := g.provider.Complete(ctx, "", userPrompt, g.config.Temperature, g.config.MaxTokens)
	if err != nil {
		log.Printf("[DIALOGUE] Generation failed for %s: %v", req.CharacterID, err)
		return &core.DialogueResponse{
			Message: core.Message{
				Role:    core.RoleAssistant,
				Content: Apology,
				Metadata: map[string]interface{}{
					"error":        err.Error(),
					"character_id": req.CharacterID,
				},
			},
			ConversationID: req.ConversationID,
		}
	}

	conversationID := g.persistExchange(ctx, req, character, text)

	return &core.DialogueResponse{
		Message: core.Message{
			Role:    core.RoleAssistant,
			Content: text,
			Metadata: map[string]interface{}{
				"character":         character.Name,
				"character_id":      req.CharacterID,
				"prompt_version_id": req.PromptVersionID,
			},
		},
		ConversationID: conversationID,
		PromptUsed: map[string]interface{}{
			"template":   template,
			"version_id": versionLabel(req.PromptVersionID),
		},
		ContextUsed: map[string]interface{}{
			"knowledge_chunks_used": chunkIDs(chunks),
		},
	}
}

// resolveTemplate walks the template priority ladder: the requested
// version, the character's default, then the hardcoded template.
func (g *Generator) resolveTemplate(ctx context.Context, req core.DialogueRequest) string {
	if g.prompts == nil {
		return defaultTemplate
	}
	if req.PromptVersionID != "" {
		v, err := g.prompts.GetVersion(ctx, req.PromptVersionID)
		if err != nil {
			log.Printf("[DIALOGUE] Prompt version %s unavailable: %v", req.PromptVersionID, err)
		} else if v != nil && v.Template != "" {
			return v.Template
		}
	}

	v, err := g.prompts.GetDefaultForCharacter(ctx, req.CharacterID)
	if err != nil {
		log.Printf("[DIALOGUE] Default prompt lookup failed for %s: %v", req.CharacterID, err)
	} else if v != nil && v.Template != "" {
		return v.Template
	}

	return defaultTemplate
}

func (g *Generator) history(ctx context.Context, conversationID string) []core.Message {
	if conversationID == "" {
		return nil
	}
	msgs, err := g.conversations.RecentMessages(ctx, conversationID, g.config.HistoryLimit)
	if err != nil {
		log.Printf("[DIALOGUE] History lookup failed for %s: %v", conversationID, err)
		return nil
	}
	return msgs
}

func (g *Generator) knowledgeChunks(ctx context.Context, req core.DialogueRequest, character core.Character) []*knowledge.Chunk {
	query := req.UserMessage + " Context: Character is " + character.Name + "."

	filter := map[string]string{}
	if name := core.DisplayNameFromID(req.CharacterID); name != "" {
		filter["character"] = name
	} else if character.Name != "" {
		filter["character"] = character.Name
	}

	chunks, err := g.retriever.RetrieveSimilar(ctx, knowledge.Query{
		Query:          query,
		TopK:           g.config.KnowledgeTopK,
		FilterMetadata: filter,
	})
	if err != nil {
		log.Printf("[DIALOGUE] Knowledge retrieval failed for %s: %v", req.CharacterID, err)
		return nil
	}
	return chunks
}

// persistExchange records the user and assistant messages, creating the
// conversation first when the request didn't carry one. Persistence
// failures are logged, never surfaced; the generated text still
// reaches the caller.
func (g *Generator) persistExchange(ctx context.Context, req core.DialogueRequest, character core.Character, text string) string {
	conversationID := req.ConversationID
	if conversationID == "" {
		id, err := g.conversations.Create(ctx, []string{req.CharacterID, "user"}, map[string]interface{}{
			"source": "dialogue_generation",
		})
		if err != nil {
			log.Printf("[DIALOGUE] Failed to create conversation: %v", err)
			return ""
		}
		conversationID = id
	}

	userMsg := core.Message{
		Role:    core.RoleUser,
		Content: req.UserMessage,
		Metadata: map[string]interface{}{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	}
	assistantMsg := core.Message{
		Role:    core.RoleAssistant,
		Content: text,
		Metadata: map[string]interface{}{
			"character":    character.Name,
			"character_id": req.CharacterID,
		},
	}
	if err := g.conversations.AddMessage(ctx, conversationID, userMsg); err != nil {
		log.Printf("[DIALOGUE] Failed to persist user message: %v", err)
	}
	if err := g.conversations.AddMessage(ctx, conversationID, assistantMsg); err != nil {
		log.Printf("[DIALOGUE] Failed to persist assistant message: %v", err)
	}
	return conversationID
}

// Render substitutes {name} placeholders; unknown placeholders are left
// as-is.
func Render(template string, vars map[string]string) string {
	out := template
	for k, v := range vars {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	return out
}

func knowledgeContext(chunks []*knowledge.Chunk) string {
	if len(chunks) == 0 {
		return "No specific knowledge available."
	}
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		parts = append(parts, c.Content)
	}
	return strings.Join(parts, "\n")
}

func formatHistory(msgs []core.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		role := m.Role
		if role != "" {
			role = strings.ToUpper(role[:1]) + role[1:]
		}
		b.WriteString(role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
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

func versionLabel(id string) string {
	if id == "" {
		return "default"
	}
	return id
}
