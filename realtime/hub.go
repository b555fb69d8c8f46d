package realtime

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/pipeline"
)

// Handler processes an inbound event. Handlers run before the built-in
// chat and proximity handling.
type Handler func(ctx context.Context, event *Event) error

// Dialoguer runs the dialogue pipeline for chat events. Satisfied by
// pipeline.Runner.
type Dialoguer interface {
	Run(ctx context.Context, state pipeline.State) *pipeline.Result
}

// Hub tracks connected clients and routes events between them. Writes
// to a single connection are serialized; a failed write drops the
// connection.
type Hub struct {
	dialoguer Dialoguer

	mu       sync.RWMutex
	conns    map[string]*client
	handlers map[string][]Handler
}

type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	infoMu sync.Mutex
	info   *Connection
}

// NewHub creates a hub. A nil dialoguer disables chat responses.
func NewHub(dialoguer Dialoguer) *Hub {
	return &Hub{
		dialoguer: dialoguer,
		conns:     make(map[string]*client),
		handlers:  make(map[string][]Handler),
	}
}

// Connect registers a connection and returns its client id, generating
// one when the caller didn't supply it.
func (h *Hub) Connect(conn *websocket.Conn, clientID, userID string, metadata map[string]interface{}) string {
	if clientID == "" {
		clientID = uuid.New().String()
	}
	now := time.Now().UTC()

	h.mu.Lock()
	h.conns[clientID] = &client{
		conn: conn,
		info: &Connection{
			ClientID:     clientID,
			UserID:       userID,
			Metadata:     metadata,
			ConnectedAt:  now,
			LastActivity: now,
		},
	}
	h.mu.Unlock()

	log.Printf("[REALTIME] Client %s connected", clientID)
	return clientID
}

// Disconnect removes a client from the registry and closes its
// connection. Unknown ids are a no-op.
func (h *Hub) Disconnect(clientID string) {
	h.mu.Lock()
	c, ok := h.conns[clientID]
	delete(h.conns, clientID)
	h.mu.Unlock()

	if ok {
		c.conn.Close()
		log.Printf("[REALTIME] Client %s disconnected", clientID)
	}
}

// SendEvent delivers an event to one client. A write failure drops the
// connection and reports false.
func (h *Hub) SendEvent(clientID string, event *Event) bool {
	h.mu.RLock()
	c, ok := h.conns[clientID]
	h.mu.RUnlock()
	if !ok {
		return false
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	c.writeMu.Lock()
	err := c.conn.WriteJSON(event)
	c.writeMu.Unlock()
	if err != nil {
		log.Printf("[REALTIME] Write to %s failed: %v", clientID, err)
		h.Disconnect(clientID)
		return false
	}

	h.touch(clientID)
	return true
}

// BroadcastEvent sends an event to every connected client except the
// excluded ids, returning the ids that received it.
func (h *Hub) BroadcastEvent(event *Event, exclude []string) []string {
	excluded := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}

	h.mu.RLock()
	ids := make([]string, 0, len(h.conns))
	for id := range h.conns {
		if !excluded[id] {
			ids = append(ids, id)
		}
	}
	h.mu.RUnlock()

	var sent []string
	for _, id := range ids {
		if h.SendEvent(id, event) {
			sent = append(sent, id)
		}
	}
	return sent
}

// RegisterHandler attaches a handler to an event type. Multiple
// handlers run in registration order.
func (h *Hub) RegisterHandler(eventType string, handler Handler) {
	h.mu.Lock()
	h.handlers[eventType] = append(h.handlers[eventType], handler)
	h.mu.Unlock()
}

// ConnectionInfo returns a snapshot of a client's registration, or nil
// if unknown. Mutating the snapshot does not affect the registry.
func (h *Hub) ConnectionInfo(clientID string) *Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if c, ok := h.conns[clientID]; ok {
		return c.snapshot()
	}
	return nil
}

// ConnectionsByMetadata finds registrations whose metadata matches the
// given key and value, returned as snapshots.
func (h *Hub) ConnectionsByMetadata(key string, value interface{}) []*Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var matches []*Connection
	for _, c := range h.conns {
		if v, ok := c.info.Metadata[key]; ok && v == value {
			matches = append(matches, c.snapshot())
		}
	}
	return matches
}

func (c *client) snapshot() *Connection {
	c.infoMu.Lock()
	info := *c.info
	c.infoMu.Unlock()
	return &info
}

// Listen reads events from a connection until it closes, dispatching
// each one. Malformed events get an error event back instead of killing
// the connection.
func (h *Hub) Listen(ctx context.Context, clientID string) {
	h.mu.RLock()
	c, ok := h.conns[clientID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	defer h.Disconnect(clientID)

	for {
		var event Event
		if err := c.conn.ReadJSON(&event); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[REALTIME] Read from %s failed: %v", clientID, err)
			}
			return
		}

		if event.SenderID == "" {
			event.SenderID = clientID
		}

		if err := h.HandleEvent(ctx, &event); err != nil {
			h.SendEvent(clientID, &Event{
				EventType: EventError,
				Data: map[string]interface{}{
					"message": fmt.Sprintf("error processing event: %v", err),
				},
			})
		}
	}
}

// HandleEvent dispatches an inbound event to registered handlers and
// the built-in chat/proximity handling.
func (h *Hub) HandleEvent(ctx context.Context, event *Event) error {
	h.touch(event.SenderID)

	h.mu.RLock()
	handlers := h.handlers[event.EventType]
	h.mu.RUnlock()
	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			return err
		}
	}

	switch event.EventType {
	case EventChat:
		return h.handleChat(ctx, event)
	case EventProximity:
		h.handleProximity(event)
	}
	return nil
}

// handleChat runs the pipeline for each targeted character and sends
// the responses back to the sender. Non-private messages are also
// forwarded to the other targets.
func (h *Hub) handleChat(ctx context.Context, event *Event) error {
	message, _ := event.Data["message"].(map[string]interface{})
	if message == nil {
		return fmt.Errorf("chat event missing message")
	}
	content, _ := message["content"].(string)
	conversationID, _ := event.Data["conversation_id"].(string)
	extraContext, _ := event.Data["context"].(map[string]interface{})

	if h.dialoguer != nil {
		for _, characterID := range event.TargetIDs {
			result := h.dialoguer.Run(ctx, pipeline.NewState(content, characterID, conversationID, "", extraContext))

			if event.SenderID != "" {
				h.SendEvent(event.SenderID, &Event{
					EventType: EventChat,
					Data: map[string]interface{}{
						"message": map[string]interface{}{
							"role":    "assistant",
							"content": result.Response,
						},
						"conversation_id": result.ConversationID,
						"knowledge_used":  result.KnowledgeUsed,
						"memories_used":   result.MemoriesUsed,
					},
					SenderID:  characterID,
					TargetIDs: []string{event.SenderID},
				})
			}
		}
	}

	if private, _ := event.Data["private"].(bool); !private {
		for _, targetID := range event.TargetIDs {
			if targetID != event.SenderID {
				h.SendEvent(targetID, event)
			}
		}
	}
	return nil
}

// handleProximity notifies a player when a character comes in range.
func (h *Hub) handleProximity(event *Event) {
	withinRange, _ := event.Data["is_within_range"].(bool)
	characterID, _ := event.Data["character_id"].(string)
	playerID, _ := event.Data["player_id"].(string)
	if !withinRange || characterID == "" || playerID == "" {
		return
	}

	h.SendEvent(playerID, &Event{
		EventType: EventCharacterProximity,
		Data: map[string]interface{}{
			"character_id":    characterID,
			"is_within_range": true,
			"distance":        event.Data["distance"],
			"location":        event.Data["location"],
		},
		SenderID:  characterID,
		TargetIDs: []string{playerID},
	})
}

func (h *Hub) touch(clientID string) {
	if clientID == "" {
		return
	}
	h.mu.RLock()
	c, ok := h.conns[clientID]
	h.mu.RUnlock()
	if ok {
		c.infoMu.Lock()
		c.info.LastActivity = time.Now().UTC()
		c.infoMu.Unlock()
	}
}
