package core

import "time"

// Message roles within a conversation.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is a single message in a conversation.
type Message struct {
	Role     string                 `json:"role"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Conversation is an ordered exchange between a player and one or more
// characters. Messages are append-only; the pipeline never deletes a
// conversation.
type Conversation struct {
	ID             string                 `json:"id"`
	ParticipantIDs []string               `json:"participant_ids"`
	Messages       []Message              `json:"messages"`
	IsActive       bool                   `json:"is_active"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// Character is a playable character profile. The profile feeds prompt
// assembly; the knowledge base behind it lives in the knowledge store.
type Character struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Personality string `json:"personality"`
}

// DefaultCharacter returns the placeholder profile used when a character
// cannot be resolved. Dialogue still works against it; the knowledge
// filter just matches nothing.
func DefaultCharacter(characterID string) Character {
	return Character{
		ID:          characterID,
		Name:        characterID,
		Description: "A fictional character",
		Personality: "Friendly and helpful",
	}
}

// DialogueRequest asks a character to respond to a user message.
type DialogueRequest struct {
	CharacterID     string                 `json:"character_id"`
	UserMessage     string                 `json:"user_message"`
	ConversationID  string                 `json:"conversation_id,omitempty"`
	PromptVersionID string                 `json:"prompt_version_id,omitempty"`
	Context         map[string]interface{} `json:"context,omitempty"`
}

// DialogueResponse is the answer to a DialogueRequest. The caller always
// receives a well-formed response; on failure Message carries the fixed
// apology and Message.Metadata["error"] the diagnostic reason.
type DialogueResponse struct {
	Message        Message                `json:"message"`
	ConversationID string                 `json:"conversation_id"`
	PromptUsed     map[string]interface{} `json:"prompt_used,omitempty"`
	ContextUsed    map[string]interface{} `json:"context_used,omitempty"`
}
