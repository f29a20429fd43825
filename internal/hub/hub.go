// Package hub implements the server side of the chat socket: one persistent
// WebSocket per user carrying RPC-style invocations and server-pushed events.
package hub

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/tomharwin/kestrel/internal/chat"
	"github.com/tomharwin/kestrel/internal/wire"
)

// Hub tracks connected clients by user ID and routes pushes to them.
type Hub struct {
	service *chat.Service
	logf    func(format string, args ...any)

	mu      sync.RWMutex
	clients map[string]*Client
}

// New creates a hub over the given chat service and registers itself as the
// service's pusher.
func New(service *chat.Service) *Hub {
	h := &Hub{
		service: service,
		logf:    log.Printf,
		clients: make(map[string]*Client),
	}
	service.SetPusher(h)
	return h
}

// SetLogf overrides the logging function.
func (h *Hub) SetLogf(logf func(format string, args ...any)) {
	h.logf = logf
}

// register adds a client; a second connection for the same user replaces the
// first, which is closed.
func (h *Hub) register(c *Client) {
	h.mu.Lock()
	old := h.clients[c.userID]
	h.clients[c.userID] = c
	h.mu.Unlock()

	if old != nil {
		h.logf("hub: replacing connection for %s", c.userID)
		old.close()
	}
}

// unregister removes a client if it is still the user's current connection.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if h.clients[c.userID] == c {
		delete(h.clients, c.userID)
	}
	h.mu.Unlock()
}

// PushToUser delivers an event frame to the user's connection, if any.
// Offline users are skipped; a full send buffer drops the connection.
func (h *Hub) PushToUser(userID, event string, payload any) {
	frame, err := wire.NewEvent(event, payload)
	if err != nil {
		h.logf("hub: failed to build %s event: %v", event, err)
		return
	}
	data, err := json.Marshal(frame)
	if err != nil {
		h.logf("hub: failed to marshal %s event: %v", event, err)
		return
	}

	h.mu.RLock()
	c := h.clients[userID]
	h.mu.RUnlock()
	if c == nil {
		return
	}

	select {
	case c.send <- data:
	default:
		// Client buffer full, drop the connection
		h.logf("hub: send buffer full for %s, closing", userID)
		c.close()
	}
}

// ConnectedUsers returns the number of live connections.
func (h *Hub) ConnectedUsers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
