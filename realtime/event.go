// Package realtime delivers structured events over WebSocket
// connections: chat events drive the dialogue pipeline, proximity
// events trigger character notifications, anything else goes to
// registered handlers. The connection registry is in-memory only and
// rebuilt from scratch on restart.
package realtime

import (
	"time"
)

// Event types with built-in handling.
const (
	EventChat               = "chat"
	EventProximity          = "proximity"
	EventCharacterProximity = "character_proximity"
	EventError              = "error"
)

// Event is the wire format for both directions.
type Event struct {
	EventType string                 `json:"event_type"`
	Data      map[string]interface{} `json:"data"`
	SenderID  string                 `json:"sender_id,omitempty"`
	TargetIDs []string               `json:"target_ids,omitempty"`
	Timestamp time.Time              `json:"timestamp,omitempty"`
}

// Connection describes one registered client.
type Connection struct {
	ClientID     string                 `json:"client_id"`
	UserID       string                 `json:"user_id,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	ConnectedAt  time.Time              `json:"connected_at"`
	LastActivity time.Time              `json:"last_activity"`
}
