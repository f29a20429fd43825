package hub

import (
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/tomharwin/kestrel/internal/auth"
)

// Handler upgrades authenticated HTTP requests to hub connections.
type Handler struct {
	hub         *Hub
	tokenConfig *auth.TokenConfig
	upgrader    websocket.Upgrader
	logf        func(format string, args ...any)
}

// NewHandler creates the upgrade handler for the hub endpoint.
func NewHandler(h *Hub, tokenConfig *auth.TokenConfig) *Handler {
	return &Handler{
		hub:         h,
		tokenConfig: tokenConfig,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logf: log.Printf,
	}
}

// ServeHTTP authenticates the request, upgrades it and starts the pumps.
// The token comes from the Authorization header or, for browser WebSocket
// clients that cannot set headers, the access_token query parameter.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := ""
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		token = strings.TrimPrefix(authHeader, "Bearer ")
	}
	if token == "" {
		token = r.URL.Query().Get("access_token")
	}
	if token == "" {
		http.Error(w, "Unauthorized: missing token", http.StatusUnauthorized)
		return
	}

	claims, err := auth.ValidateAccessToken(token, h.tokenConfig)
	if err != nil {
		http.Error(w, "Unauthorized: invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logf("hub: upgrade failed for %s: %v", claims.UserID, err)
		return
	}

	client := newClient(h.hub, conn, claims.UserID, claims.Role, claims.ExpiresAt.Time)
	h.hub.register(client)
	h.hub.service.HandleConnect(claims.UserID)

	go client.writePump()
	go client.readPump()
}
