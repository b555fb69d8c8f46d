package pipeline

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/core"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/dialogue"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/knowledge"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/memory"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/prompt"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/store"
)

// Apology is the fixed response surfaced when a run records an error.
const Apology = "I'm sorry, I'm having trouble responding right now."

// NoKnowledgeSentinel replaces the knowledge block when retrieval came
// back empty. Downstream it instructs the model to decline instead of
// improvising.
const NoKnowledgeSentinel = "NO KNOWLEDGE CHUNKS AVAILABLE. Inform the user you don't have specific information about their query in your knowledge base."

// systemPrompt pins generation to the supplied knowledge.
const systemPrompt = "You are a character in a dialogue system. You MUST ONLY use the knowledge provided in the user's message to answer questions. DO NOT use your pre-trained knowledge. If the knowledge doesn't contain information to answer the question, say you don't have that information."

// generationTemplate is the hardcoded template used when no stored
// version applies.
const generationTemplate = `You are {character_name}, {character_description}.
Respond in character with the personality: {character_personality}.

EXTREMELY IMPORTANT INSTRUCTIONS:
1. You MUST ONLY use the knowledge provided below to answer the user's question.
2. If the knowledge doesn't contain information to answer the question, say "I don't have specific information about that in my knowledge base."
3. DO NOT use your pre-trained knowledge to answer questions about the character or their universe.
4. ONLY respond based on the knowledge context provided.
5. DO NOT MAKE UP ANY INFORMATION that is not explicitly provided in the knowledge context.
6. If you're unsure about something, say you don't have that information rather than guessing.

KNOWLEDGE CONTEXT:
{knowledge_context}

{conversation_history}
User: {user_input}
{character_name}:`

// Config holds pipeline tunables.
type Config struct {
	// CharacterCollection is the character profile collection.
	CharacterCollection string

	// KnowledgeTopK caps chunks per request; MemoryLimit caps memories;
	// HistoryLimit caps conversation messages in the prompt.
	KnowledgeTopK int
	MemoryLimit   int
	HistoryLimit  int

	// Temperature and MaxTokens are passed to the provider. Generation
	// runs cold so the model sticks to the supplied knowledge.
	Temperature float64
	MaxTokens   int64

	// ConversationImportance is assigned to every memory written by the
	// integration stage.
	ConversationImportance int
}

// DefaultConfig matches the reference deployment.
var DefaultConfig = &Config{
	CharacterCollection:    "characters",
	KnowledgeTopK:          5,
	MemoryLimit:            3,
	HistoryLimit:           5,
	Temperature:            0.2,
	MaxTokens:              300,
	ConversationImportance: 5,
}

// Runner executes the five-stage pipeline for one request at a time;
// concurrent requests each get their own state and share only the
// injected services.
type Runner struct {
	db            store.Store
	retriever     dialogue.Retriever
	memories      memory.Store
	conversations *dialogue.Conversations
	prompts       prompt.Versioner
	provider      dialogue.Provider
	config        *Config
}

// NewRunner creates a pipeline runner. A nil config uses DefaultConfig;
// a nil prompts always generates with the hardcoded template.
func NewRunner(db store.Store, retriever dialogue.Retriever, memories memory.Store, conversations *dialogue.Conversations, prompts prompt.Versioner, provider dialogue.Provider, config *Config) *Runner {
	if config == nil {
		config = DefaultConfig
	}
	return &Runner{
		db:            db,
		retriever:     retriever,
		memories:      memories,
		conversations: conversations,
		prompts:       prompts,
		provider:      provider,
		config:        config,
	}
}

// Run executes all five stages in order and extracts the result. Every
// run reaches a completed terminal state in exactly five transitions
// regardless of how many stages degrade.
func (r *Runner) Run(ctx context.Context, state State) *Result {
	state = r.KnowledgeRetrieval(ctx, state)
	state = r.MemoryRetrieval(ctx, state)
	state = r.ContextAssembly(ctx, state)
	state = r.DialogueGeneration(ctx, state)
	state = r.MemoryIntegration(ctx, state)
	return Extract(state)
}

// KnowledgeRetrieval resolves the character profile, fetches relevant
// knowledge chunks and loads recent conversation history. Failure
// downgrades to an empty knowledge list and the placeholder profile.
func (r *Runner) KnowledgeRetrieval(ctx context.Context, state State) State {
	state.CharacterInfo = r.character(ctx, state.CharacterID)

	query := state.UserInput + " Context: Character is " + state.CharacterInfo.Name + "."

	filter := map[string]string{}
	if name := core.DisplayNameFromID(state.CharacterID); name != "" {
		filter["character"] = name
	} else if state.CharacterInfo.Name != "" {
		filter["character"] = state.CharacterInfo.Name
	}

	chunks, err := r.retriever.RetrieveSimilar(ctx, knowledge.Query{
		Query:          query,
		TopK:           r.config.KnowledgeTopK,
		FilterMetadata: filter,
	})
	if err != nil {
		log.Printf("[PIPELINE] Knowledge retrieval failed for %s: %v", state.CharacterID, err)
		state.setError(fmt.Sprintf("knowledge retrieval error: %v", err))
		state.KnowledgeContext = nil
	} else {
		state.KnowledgeContext = chunks
	}

	if state.ConversationID != "" {
		history, err := r.conversations.RecentMessages(ctx, state.ConversationID, r.config.HistoryLimit)
		if err != nil {
			log.Printf("[PIPELINE] History lookup failed for %s: %v", state.ConversationID, err)
		} else {
			state.ConversationHistory = history
		}
	}

	return state
}

// MemoryRetrieval searches the character's memories by relevance to the
// user input. The store's own fallback ladder already ends in the
// highest-importance slice, so an empty result here means the character
// genuinely has no memories.
func (r *Runner) MemoryRetrieval(ctx context.Context, state State) State {
	memories, err := r.memories.SearchMemories(ctx, state.CharacterID, state.UserInput, r.config.MemoryLimit)
	if err != nil {
		log.Printf("[PIPELINE] Memory retrieval failed for %s: %v", state.CharacterID, err)
		state.setError(fmt.Sprintf("memory retrieval error: %v", err))
		state.CharacterMemories = nil
		return state
	}
	state.CharacterMemories = memories
	return state
}

// ContextAssembly renders the working fields into one text block. Pure
// with respect to the stores; cannot fail short of a programming error.
func (r *Runner) ContextAssembly(ctx context.Context, state State) State {
	var b strings.Builder

	b.WriteString("CHARACTER INFORMATION:\n")
	b.WriteString("Character: " + state.CharacterInfo.Name + "\n")
	b.WriteString("Description: " + state.CharacterInfo.Description + "\n")
	b.WriteString("Personality: " + state.CharacterInfo.Personality + "\n")
	b.WriteString("\nKNOWLEDGE CONTEXT:\n")
	b.WriteString(knowledgeText(state.KnowledgeContext))

	if len(state.CharacterMemories) > 0 {
		b.WriteString("\nCharacter memories:\n")
		for _, mem := range state.CharacterMemories {
			b.WriteString("- " + mem.Content + "\n")
		}
	}

	if len(state.ConversationHistory) > 0 {
		b.WriteString("\nPrevious conversation:\n")
		for _, msg := range state.ConversationHistory {
			b.WriteString(capitalize(msg.Role) + ": " + msg.Content + "\n")
		}
	}

	b.WriteString("\nUSER INPUT:\n")
	b.WriteString(state.UserInput)
	b.WriteString("\n")

	state.AssembledContext = b.String()
	return state
}

// DialogueGeneration fills the prompt template with the assembled
// context and calls the provider. Provider failure yields the fixed
// apology as the response text and records the error.
func (r *Runner) DialogueGeneration(ctx context.Context, state State) State {
	userPrompt := dialogue.Render(r.resolveTemplate(ctx, state), map[string]string{
		"character_name":        state.CharacterInfo.Name,
		"character_description": state.CharacterInfo.Description,
		"character_personality": state.CharacterInfo.Personality,
		"knowledge_context":     state.AssembledContext,
		"conversation_history":  historyText(state.ConversationHistory),
		"user_input":            state.UserInput,
	})

	text, err := r.provider.Complete(ctx, systemPrompt, userPrompt, r.config.Temperature, r.config.MaxTokens)
	if err != nil {
		log.Printf("[PIPELINE] Generation failed for %s: %v", state.CharacterID, err)
		state.setError(fmt.Sprintf("dialogue generation error: %v", err))
		state.Response = Apology
		return state
	}
	state.Response = text
	return state
}

// MemoryIntegration writes a memory summarizing the exchange. Skipped
// when an earlier stage recorded an error or no response was produced;
// always marks the run complete.
func (r *Runner) MemoryIntegration(ctx context.Context, state State) State {
	state.Completed = true

	if state.Error != "" {
		log.Printf("[PIPELINE] Skipping memory integration: %s", state.Error)
		return state
	}
	if state.Response == "" {
		state.setError("no response to store in memory")
		return state
	}

	content := fmt.Sprintf("User asked: '%s'. I responded: '%s'", state.UserInput, state.Response)
	id, err := r.memories.CreateMemory(ctx, state.CharacterID, content, memory.SourceConversation, r.config.ConversationImportance, map[string]interface{}{
		"conversation_id": state.ConversationID,
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		log.Printf("[PIPELINE] Memory write failed for %s: %v", state.CharacterID, err)
		state.setError(fmt.Sprintf("memory integration error: %v", err))
		return state
	}

	mem, err := r.memories.GetMemory(ctx, id)
	if err != nil {
		log.Printf("[PIPELINE] Failed to read back memory %s: %v", id, err)
		return state
	}
	state.UpdatedMemory = mem
	return state
}

// resolveTemplate walks the priority ladder: explicitly requested
// version, character default, hardcoded template.
func (r *Runner) resolveTemplate(ctx context.Context, state State) string {
	if r.prompts == nil {
		return generationTemplate
	}
	if state.PromptVersionID != "" {
		v, err := r.prompts.GetVersion(ctx, state.PromptVersionID)
		if err != nil {
			log.Printf("[PIPELINE] Prompt version %s unavailable: %v", state.PromptVersionID, err)
		} else if v != nil && v.Template != "" {
			return v.Template
		}
	}
	v, err := r.prompts.GetDefaultForCharacter(ctx, state.CharacterID)
	if err != nil {
		log.Printf("[PIPELINE] Default prompt lookup failed for %s: %v", state.CharacterID, err)
	} else if v != nil && v.Template != "" {
		return v.Template
	}
	return generationTemplate
}

func (r *Runner) character(ctx context.Context, characterID string) core.Character {
	doc, err := r.db.FindByID(ctx, r.config.CharacterCollection, characterID)
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

func knowledgeText(chunks []*knowledge.Chunk) string {
	if len(chunks) == 0 {
		return NoKnowledgeSentinel
	}
	var b strings.Builder
	b.WriteString("RELEVANT KNOWLEDGE CHUNKS (USE ONLY THIS INFORMATION):\n\n")
	for i, chunk := range chunks {
		score := "N/A"
		if v, ok := chunk.Metadata[knowledge.MetaSimilarityScore]; ok {
			score = fmt.Sprint(v)
		}
		fmt.Fprintf(&b, "CHUNK %d: %s\nSource: %s\nRelevance Score: %s\n\n", i+1, chunk.Content, chunk.Source, score)
	}
	return b.String()
}

func historyText(msgs []core.Message) string {
	var b strings.Builder
	for _, msg := range msgs {
		b.WriteString(capitalize(msg.Role) + ": " + msg.Content + "\n")
	}
	return b.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
