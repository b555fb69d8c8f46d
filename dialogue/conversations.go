// Package dialogue manages conversations and turns assembled context
// into in-character responses via a completion provider.
package dialogue

import (
	"context"
	"fmt"
	"time"

	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/core"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/store"
)

// Conversations persists conversations and their append-only message
// logs.
type Conversations struct {
	db         store.Store
	collection string
}

// NewConversations creates a conversation store over the given
// collection; an empty name uses "conversations".
func NewConversations(db store.Store, collection string) *Conversations {
	if collection == "" {
		collection = "conversations"
	}
	return &Conversations{db: db, collection: collection}
}

// Create starts a conversation between the given participants.
func (c *Conversations) Create(ctx context.Context, participantIDs []string, metadata map[string]interface{}) (string, error) {
	now := time.Now().UTC()
	id, err := c.db.Insert(ctx, c.collection, store.Document{
		"participant_ids": participantIDs,
		"messages":        []core.Message{},
		"is_active":       true,
		"metadata":        metadata,
		"created_at":      now,
		"updated_at":      now,
	})
	if err != nil {
		return "", fmt.Errorf("insert conversation: %w", err)
	}
	return id, nil
}

// Get retrieves a conversation by id.
func (c *Conversations) Get(ctx context.Context, id string) (*core.Conversation, error) {
	doc, err := c.db.FindByID(ctx, c.collection, id)
	if err != nil {
		return nil, err
	}
	return docToConversation(doc), nil
}

// List returns conversations a participant belongs to, newest first.
func (c *Conversations) List(ctx context.Context, participantID string, limit int) ([]*core.Conversation, error) {
	docs, err := c.db.Find(ctx, c.collection, nil, &store.Sort{Field: "updated_at", Descending: true}, 0)
	if err != nil {
		return nil, err
	}

	var conversations []*core.Conversation
	for _, doc := range docs {
		conv := docToConversation(doc)
		if participantID != "" && !contains(conv.ParticipantIDs, participantID) {
			continue
		}
		conversations = append(conversations, conv)
		if limit > 0 && len(conversations) >= limit {
			break
		}
	}
	return conversations, nil
}

// AddMessage appends a message to a conversation and bumps its
// updated_at. The append is atomic in the store, so concurrent writers
// to the same conversation never lose messages.
func (c *Conversations) AddMessage(ctx context.Context, id string, msg core.Message) error {
	if err := c.db.Push(ctx, c.collection, id, "messages", msg); err != nil {
		return err
	}
	return c.db.UpdateByID(ctx, c.collection, id, store.Document{
		"updated_at": time.Now().UTC(),
	})
}

// RecentMessages returns the last limit messages of a conversation in
// order.
func (c *Conversations) RecentMessages(ctx context.Context, id string, limit int) ([]core.Message, error) {
	conv, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	msgs := conv.Messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

// Close marks a conversation inactive.
func (c *Conversations) Close(ctx context.Context, id string) error {
	return c.db.UpdateByID(ctx, c.collection, id, store.Document{
		"is_active":  false,
		"updated_at": time.Now().UTC(),
	})
}

func docToConversation(doc store.Document) *core.Conversation {
	conv := &core.Conversation{}
	conv.ID, _ = doc["id"].(string)
	switch v := doc["participant_ids"].(type) {
	case []string:
		conv.ParticipantIDs = v
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok {
				conv.ParticipantIDs = append(conv.ParticipantIDs, s)
			}
		}
	}
	switch v := doc["messages"].(type) {
	case []core.Message:
		conv.Messages = v
	case []interface{}:
		for _, item := range v {
			if m, ok := item.(core.Message); ok {
				conv.Messages = append(conv.Messages, m)
			}
		}
	}
	conv.IsActive, _ = doc["is_active"].(bool)
	if meta, ok := doc["metadata"].(map[string]interface{}); ok {
		conv.Metadata = meta
	}
	if t, ok := doc["created_at"].(time.Time); ok {
		conv.CreatedAt = t
	}
	if t, ok := doc["updated_at"].(time.Time); ok {
		conv.UpdatedAt = t
	}
	return conv
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
