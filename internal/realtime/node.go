// Package realtime provides the observer-facing event stream: a Centrifuge
// node that fans chat and presence events out on channels for dashboard
// clients, alongside the point-to-point chat hub.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/centrifugal/centrifuge"

	"github.com/tomharwin/kestrel/internal/db"
)

// RoleLookup resolves a user ID to their role for channel authorization.
type RoleLookup func(userID string) string

// Node wraps a Centrifuge node for real-time event streaming
type Node struct {
	node *centrifuge.Node
	role RoleLookup
	logf func(format string, args ...any)
}

// Config holds configuration for the realtime node
type Config struct {
	// ClientQueueMaxSize is the max bytes to buffer per client before disconnect (default 2MB)
	ClientQueueMaxSize int
	// ClientChannelLimit is max channels per client (default 128)
	ClientChannelLimit int
	// RoleLookup authorizes channel subscriptions. Defaults to treating
	// everyone as an end-user.
	RoleLookup RoleLookup
	// Logf is the logging function.
	Logf func(format string, args ...any)
}

// NewNode creates a new Centrifuge node with the given configuration
func NewNode(cfg Config) (*Node, error) {
	if cfg.ClientQueueMaxSize == 0 {
		cfg.ClientQueueMaxSize = 2 * 1024 * 1024 // 2MB
	}
	if cfg.ClientChannelLimit == 0 {
		cfg.ClientChannelLimit = 128
	}
	if cfg.RoleLookup == nil {
		cfg.RoleLookup = func(string) string { return db.RoleUser }
	}
	if cfg.Logf == nil {
		cfg.Logf = func(format string, args ...any) {}
	}

	node, err := centrifuge.New(centrifuge.Config{
		LogLevel:           centrifuge.LogLevelInfo,
		ClientQueueMaxSize: cfg.ClientQueueMaxSize,
		ClientChannelLimit: cfg.ClientChannelLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create centrifuge node: %w", err)
	}

	n := &Node{node: node, role: cfg.RoleLookup, logf: cfg.Logf}
	n.setupHandlers()

	return n, nil
}

// setupHandlers configures the Centrifuge event handlers
func (n *Node) setupHandlers() {
	// OnConnecting is called before the client is fully connected
	// Credentials are set via HTTP middleware context before this
	n.node.OnConnecting(func(ctx context.Context, e centrifuge.ConnectEvent) (centrifuge.ConnectReply, error) {
		cred, ok := centrifuge.GetCredentials(ctx)
		if !ok {
			return centrifuge.ConnectReply{}, centrifuge.ErrorUnauthorized
		}

		n.logf("realtime: client connecting: user=%s", cred.UserID)

		// Return credentials and auto-subscribe to the user's personal channel
		return centrifuge.ConnectReply{
			Credentials: cred,
			Subscriptions: map[string]centrifuge.SubscribeOptions{
				"user:" + cred.UserID: {},
			},
		}, nil
	})

	// OnConnect is called after successful connection - set up client handlers here
	n.node.OnConnect(func(client *centrifuge.Client) {
		n.logf("realtime: client connected: user=%s", client.UserID())

		client.OnSubscribe(func(e centrifuge.SubscribeEvent, cb centrifuge.SubscribeCallback) {
			if !n.canSubscribe(client.UserID(), e.Channel) {
				cb(centrifuge.SubscribeReply{}, centrifuge.ErrorPermissionDenied)
				return
			}
			cb(centrifuge.SubscribeReply{}, nil)
		})

		client.OnDisconnect(func(e centrifuge.DisconnectEvent) {
			n.logf("realtime: client disconnected: user=%s reason=%s", client.UserID(), e.Reason)
		})
	})
}

// Run starts the Centrifuge node
func (n *Node) Run() error {
	return n.node.Run()
}

// Shutdown gracefully stops the node
func (n *Node) Shutdown(ctx context.Context) error {
	return n.node.Shutdown(ctx)
}

// WebSocketHandler returns an HTTP handler for WebSocket connections
func (n *Node) WebSocketHandler() http.Handler {
	return centrifuge.NewWebsocketHandler(n.node, centrifuge.WebsocketConfig{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	})
}

// Publish sends an event to the appropriate channel(s)
func (n *Node) Publish(eventType string, payload map[string]any) error {
	// Add event metadata
	payload["type"] = eventType
	payload["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	for _, channel := range routeEvent(eventType, payload) {
		if _, err := n.node.Publish(channel, data); err != nil {
			n.logf("realtime: failed to publish to %s: %v", channel, err)
		}
	}

	return nil
}

// PublishToChannel sends data directly to a specific channel
func (n *Node) PublishToChannel(channel string, data []byte) error {
	_, err := n.node.Publish(channel, data)
	return err
}

// canSubscribe checks if a user can subscribe to a channel.
// End-users only see their own user channel; admins additionally see
// conversation channels and the system firehose.
func (n *Node) canSubscribe(userID, channel string) bool {
	isAdmin := n.role(userID) == db.RoleAdmin

	if channel == "system" {
		return isAdmin
	}

	parts := strings.SplitN(channel, ":", 2)
	if len(parts) != 2 {
		// Invalid channel format
		return false
	}

	switch parts[0] {
	case "user":
		return parts[1] == userID
	case "conversation":
		return isAdmin
	default:
		return false
	}
}

// routeEvent determines which channel(s) an event should be published to
func routeEvent(eventType string, payload map[string]any) []string {
	// All events reach the admin firehose
	channels := []string{"system"}

	switch {
	case strings.HasPrefix(eventType, "chat."):
		if convID, ok := payload["conversation_id"].(string); ok && convID != "" {
			channels = append(channels, "conversation:"+convID)
		}
		// Both participants see their own message activity
		if userID, ok := payload["user_id"].(string); ok && userID != "" {
			channels = append(channels, "user:"+userID)
		}
		if adminID, ok := payload["admin_id"].(string); ok && adminID != "" {
			channels = append(channels, "user:"+adminID)
		}

	case strings.HasPrefix(eventType, "presence."):
		if userID, ok := payload["user_id"].(string); ok && userID != "" {
			channels = append(channels, "user:"+userID)
		}
	}

	return channels
}
