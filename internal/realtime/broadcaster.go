package realtime

import (
	"time"
)

// Broadcaster is the chat service's event sink: it stamps events and
// publishes them to the realtime node for observers. A nil node makes all
// publishes no-ops, so the server can run without the observer stream.
type Broadcaster struct {
	node *Node
}

// NewBroadcaster creates a broadcaster over the given node
func NewBroadcaster(node *Node) *Broadcaster {
	return &Broadcaster{node: node}
}

// Publish stamps and forwards an event to the realtime node
func (b *Broadcaster) Publish(eventType string, payload map[string]any) {
	if payload == nil {
		payload = make(map[string]any)
	}

	// Add timestamp if not present
	if _, ok := payload["timestamp"]; !ok {
		payload["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
	}

	if b.node != nil {
		b.node.Publish(eventType, payload)
	}
}

// PublishConversationEvent publishes an event scoped to a conversation
func (b *Broadcaster) PublishConversationEvent(eventType, conversationID string, payload map[string]any) {
	if payload == nil {
		payload = make(map[string]any)
	}
	payload["conversation_id"] = conversationID
	b.Publish(eventType, payload)
}

// PublishPresenceEvent publishes an online/offline transition
func (b *Broadcaster) PublishPresenceEvent(userID string, online bool) {
	b.Publish("presence.changed", map[string]any{
		"user_id": userID,
		"online":  online,
	})
}
