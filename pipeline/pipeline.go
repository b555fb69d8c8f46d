// Package pipeline orchestrates the five-stage dialogue flow: knowledge
// retrieval, memory retrieval, context assembly, dialogue generation
// and memory integration. Stages never abort the run; a failing stage
// downgrades its output to a safe default, records the reason in the
// state's error field, and hands off to the next stage.
package pipeline

import (
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/core"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/knowledge"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/memory"
)

// Stage names, in execution order.
const (
	StageKnowledgeRetrieval = "knowledge_retrieval"
	StageMemoryRetrieval    = "memory_retrieval"
	StageContextAssembly    = "context_assembly"
	StageDialogueGeneration = "dialogue_generation"
	StageMemoryIntegration  = "memory_integration"
)

// State is the record threaded through the stages. Each stage receives
// the previous state by value and returns an updated copy; nothing is
// shared across requests.
type State struct {
	// Input fields, populated before the first stage.
	UserInput       string
	CharacterID     string
	ConversationID  string
	PromptVersionID string
	Context         map[string]interface{}

	// Working fields, filled by the retrieval and assembly stages.
	KnowledgeContext    []*knowledge.Chunk
	CharacterMemories   []*memory.Memory
	CharacterInfo       core.Character
	ConversationHistory []core.Message
	AssembledContext    string

	// Output fields.
	Response      string
	UpdatedMemory *memory.Memory
	Completed     bool
	Error         string
}

// NewState builds the initial state for a request.
func NewState(userInput, characterID, conversationID, promptVersionID string, context map[string]interface{}) State {
	if context == nil {
		context = map[string]interface{}{}
	}
	return State{
		UserInput:       userInput,
		CharacterID:     characterID,
		ConversationID:  conversationID,
		PromptVersionID: promptVersionID,
		Context:         context,
	}
}

// setError records a stage failure without clobbering an earlier one;
// the first error is the one worth diagnosing.
func (s *State) setError(msg string) {
	if s.Error == "" {
		s.Error = msg
	}
}

// Result is what the boundary layer extracts from a finished run.
type Result struct {
	Response       string         `json:"response"`
	ConversationID string         `json:"conversation_id,omitempty"`
	KnowledgeUsed  []string       `json:"knowledge_used"`
	MemoriesUsed   []string       `json:"memories_used"`
	UpdatedMemory  *memory.Memory `json:"updated_memory,omitempty"`
	Error          string         `json:"error,omitempty"`
}

// Extract turns a terminal state into a Result. On error the response
// is the fixed apology and the id lists are empty; the diagnostic rides
// in the Error field, never in the message text.
func Extract(state State) *Result {
	if state.Error != "" {
		return &Result{
			Response:       Apology,
			ConversationID: state.ConversationID,
			KnowledgeUsed:  []string{},
			MemoriesUsed:   []string{},
			Error:          state.Error,
		}
	}

	knowledgeUsed := make([]string, 0, len(state.KnowledgeContext))
	for _, chunk := range state.KnowledgeContext {
		if chunk.ID != "" {
			knowledgeUsed = append(knowledgeUsed, chunk.ID)
		}
	}
	memoriesUsed := make([]string, 0, len(state.CharacterMemories))
	for _, mem := range state.CharacterMemories {
		if mem.ID != "" {
			memoriesUsed = append(memoriesUsed, mem.ID)
		}
	}

	return &Result{
		Response:       state.Response,
		ConversationID: state.ConversationID,
		KnowledgeUsed:  knowledgeUsed,
		MemoriesUsed:   memoriesUsed,
		UpdatedMemory:  state.UpdatedMemory,
	}
}
