package dialogue_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/core"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/dialogue"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/store"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/store/memdb"
)

func TestConversations_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	conversations := dialogue.NewConversations(memdb.New(), "")

	id, err := conversations.Create(ctx, []string{"character_thor", "user"}, map[string]interface{}{"source": "test"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	conv, err := conversations.Get(ctx, id)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !conv.IsActive {
		t.Error("new conversation not active")
	}
	if len(conv.ParticipantIDs) != 2 {
		t.Errorf("participants lost: %v", conv.ParticipantIDs)
	}
	if len(conv.Messages) != 0 {
		t.Errorf("new conversation not empty: %d messages", len(conv.Messages))
	}
}

func TestConversations_AddMessageAppends(t *testing.T) {
	ctx := context.Background()
	conversations := dialogue.NewConversations(memdb.New(), "")

	id, _ := conversations.Create(ctx, []string{"character_thor", "user"}, nil)

	for i := 0; i < 3; i++ {
		msg := core.Message{Role: core.RoleUser, Content: fmt.Sprintf("message %d", i)}
		if err := conversations.AddMessage(ctx, id, msg); err != nil {
			t.Fatalf("add failed: %v", err)
		}
	}

	conv, _ := conversations.Get(ctx, id)
	if len(conv.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(conv.Messages))
	}
	if conv.Messages[2].Content != "message 2" {
		t.Errorf("message order broken: %q", conv.Messages[2].Content)
	}
}

func TestConversations_ConcurrentAppendsLoseNothing(t *testing.T) {
	ctx := context.Background()
	conversations := dialogue.NewConversations(memdb.New(), "")

	id, _ := conversations.Create(ctx, []string{"character_thor", "user"}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			msg := core.Message{Role: core.RoleUser, Content: fmt.Sprintf("m%d", n)}
			if err := conversations.AddMessage(ctx, id, msg); err != nil {
				t.Errorf("add failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	conv, _ := conversations.Get(ctx, id)
	if len(conv.Messages) != 50 {
		t.Errorf("lost updates: wrote 50 messages, conversation has %d", len(conv.Messages))
	}
}

func TestConversations_GetReturnsIsolatedMessages(t *testing.T) {
	ctx := context.Background()
	conversations := dialogue.NewConversations(memdb.New(), "")

	id, _ := conversations.Create(ctx, []string{"character_thor", "user"}, nil)
	conversations.AddMessage(ctx, id, core.Message{
		Role:     core.RoleUser,
		Content:  "original",
		Metadata: map[string]interface{}{"key": "value"},
	})

	conv, _ := conversations.Get(ctx, id)
	conv.Messages[0].Content = "tampered"
	conv.Messages[0].Metadata["key"] = "tampered"

	again, _ := conversations.Get(ctx, id)
	if again.Messages[0].Content != "original" {
		t.Error("mutating a returned message leaked into the store")
	}
	if again.Messages[0].Metadata["key"] != "value" {
		t.Error("mutating returned message metadata leaked into the store")
	}
}

func TestConversations_RecentMessagesReturnsLastN(t *testing.T) {
	ctx := context.Background()
	conversations := dialogue.NewConversations(memdb.New(), "")

	id, _ := conversations.Create(ctx, []string{"character_thor", "user"}, nil)
	for i := 0; i < 7; i++ {
		conversations.AddMessage(ctx, id, core.Message{Role: core.RoleUser, Content: fmt.Sprintf("m%d", i)})
	}

	msgs, err := conversations.RecentMessages(ctx, id, 5)
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	if len(msgs) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(msgs))
	}
	if msgs[0].Content != "m2" || msgs[4].Content != "m6" {
		t.Errorf("wrong window: first %q last %q", msgs[0].Content, msgs[4].Content)
	}
}

func TestConversations_ListFiltersByParticipant(t *testing.T) {
	ctx := context.Background()
	conversations := dialogue.NewConversations(memdb.New(), "")

	conversations.Create(ctx, []string{"character_thor", "user"}, nil)
	conversations.Create(ctx, []string{"character_iron_man", "user"}, nil)

	thor, err := conversations.List(ctx, "character_thor", 0)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(thor) != 1 {
		t.Errorf("expected 1 conversation for thor, got %d", len(thor))
	}

	all, _ := conversations.List(ctx, "", 0)
	if len(all) != 2 {
		t.Errorf("expected 2 conversations, got %d", len(all))
	}
}

func TestConversations_Close(t *testing.T) {
	ctx := context.Background()
	conversations := dialogue.NewConversations(memdb.New(), "")

	id, _ := conversations.Create(ctx, []string{"character_thor", "user"}, nil)
	if err := conversations.Close(ctx, id); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	conv, _ := conversations.Get(ctx, id)
	if conv.IsActive {
		t.Error("closed conversation still active")
	}
}

func TestConversations_GetNotFound(t *testing.T) {
	conversations := dialogue.NewConversations(memdb.New(), "")
	_, err := conversations.Get(context.Background(), "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
