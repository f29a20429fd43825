package realtime

import (
	"testing"

	"github.com/tomharwin/kestrel/internal/db"
)

func testNode(t *testing.T, roles map[string]string) *Node {
	t.Helper()
	node, err := NewNode(Config{
		RoleLookup: func(userID string) string {
			if r, ok := roles[userID]; ok {
				return r
			}
			return db.RoleUser
		},
	})
	if err != nil {
		t.Fatalf("failed to create node: %v", err)
	}
	return node
}

func TestCanSubscribe(t *testing.T) {
	node := testNode(t, map[string]string{"admin-1": db.RoleAdmin})

	tests := []struct {
		name    string
		userID  string
		channel string
		want    bool
	}{
		{"own user channel", "user-1", "user:user-1", true},
		{"other user channel", "user-1", "user:user-2", false},
		{"user denied system", "user-1", "system", false},
		{"admin allowed system", "admin-1", "system", true},
		{"user denied conversation", "user-1", "conversation:conv-1", false},
		{"admin allowed conversation", "admin-1", "conversation:conv-1", true},
		{"invalid format", "user-1", "noseparator", false},
		{"unknown type", "user-1", "task:t-1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := node.canSubscribe(tt.userID, tt.channel); got != tt.want {
				t.Errorf("canSubscribe(%q, %q) = %v, want %v", tt.userID, tt.channel, got, tt.want)
			}
		})
	}
}

func TestRouteEvent(t *testing.T) {
	t.Run("message event reaches conversation and participants", func(t *testing.T) {
		channels := routeEvent("chat.message.created", map[string]any{
			"conversation_id": "conv-1",
			"user_id":         "user-1",
			"admin_id":        "admin-1",
		})
		want := map[string]bool{
			"system":              true,
			"conversation:conv-1": true,
			"user:user-1":         true,
			"user:admin-1":        true,
		}
		if len(channels) != len(want) {
			t.Fatalf("expected %d channels, got %v", len(want), channels)
		}
		for _, ch := range channels {
			if !want[ch] {
				t.Errorf("unexpected channel %s", ch)
			}
		}
	})

	t.Run("presence event reaches system and user", func(t *testing.T) {
		channels := routeEvent("presence.changed", map[string]any{
			"user_id": "user-1",
			"online":  true,
		})
		if len(channels) != 2 || channels[0] != "system" || channels[1] != "user:user-1" {
			t.Errorf("unexpected channels: %v", channels)
		}
	})

	t.Run("unknown event only reaches system", func(t *testing.T) {
		channels := routeEvent("something.else", map[string]any{})
		if len(channels) != 1 || channels[0] != "system" {
			t.Errorf("unexpected channels: %v", channels)
		}
	})
}

func TestBroadcasterNilNode(t *testing.T) {
	b := NewBroadcaster(nil)

	// Should not panic, and should stamp the payload
	payload := map[string]any{"user_id": "user-1"}
	b.Publish("presence.changed", payload)

	if _, ok := payload["timestamp"]; !ok {
		t.Error("expected timestamp to be added")
	}
}

func TestBroadcasterPreservesTimestamp(t *testing.T) {
	b := NewBroadcaster(nil)

	existing := "2025-06-15T10:30:00.000000000Z"
	payload := map[string]any{"timestamp": existing}
	b.Publish("chat.message.created", payload)

	if payload["timestamp"] != existing {
		t.Error("expected existing timestamp to be preserved")
	}
}
