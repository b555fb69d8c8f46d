// Package memory manages character-scoped long-term memories. Every
// live memory owns exactly one paired embedding record under the same
// id; create, content update, and delete keep the pair in sync. Reads
// track access (count and timestamp) so importance-style queries can
// reflect usage.
package memory

import (
	"context"
	"time"
)

// Sources a memory can originate from.
const (
	SourceConversation = "conversation"
	SourceWiki         = "wiki"
)

// Memory is a single character memory record.
type Memory struct {
	ID           string                 `json:"id"`
	CharacterID  string                 `json:"character_id"`
	Content      string                 `json:"content"`
	Source       string                 `json:"source"`
	Importance   int                    `json:"importance"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	LastAccessed time.Time              `json:"last_accessed"`
	AccessCount  int64                  `json:"access_count"`
}

// Fields CharacterMemories can sort by.
const (
	SortByImportance   = "importance"
	SortByCreatedAt    = "created_at"
	SortByLastAccessed = "last_accessed"
)

// Store is the memory storage interface the pipeline depends on.
// Implemented by Service; test doubles implement it directly.
type Store interface {
	// CreateMemory stores a memory and its embedding record, returning
	// the memory id.
	CreateMemory(ctx context.Context, characterID, content, source string, importance int, metadata map[string]interface{}) (string, error)

	// GetMemory retrieves a memory by id and records the access.
	GetMemory(ctx context.Context, id string) (*Memory, error)

	// SearchMemories finds memories relevant to the query via the
	// retrieval fallback ladder. Never errors; exhaustion yields nil.
	SearchMemories(ctx context.Context, characterID, query string, limit int) ([]*Memory, error)

	// CharacterMemories lists a character's memories sorted by the given
	// field, optionally filtered by source.
	CharacterMemories(ctx context.Context, characterID string, limit int, sortBy, source string) ([]*Memory, error)
}
