// Package chat provides HTTP handlers for the chat snapshot endpoints.
package chat

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tomharwin/kestrel/internal/api/middleware"
	chatsvc "github.com/tomharwin/kestrel/internal/chat"
)

// Handler handles chat-related HTTP requests.
type Handler struct {
	service *chatsvc.Service
}

// New creates a new chat handler.
func New(service *chatsvc.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers all chat routes on the given group.
// All routes require authentication.
//   - GET  /chat/admins
//   - GET  /chat/conversations
//   - GET  /chat/conversations/:id/messages
//   - POST /chat/conversations/:id/read
//   - GET  /chat/unread
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/chat/admins", h.HandleListAdmins)
	g.GET("/chat/conversations", h.HandleListConversations)
	g.GET("/chat/conversations/:id/messages", h.HandleListMessages)
	g.POST("/chat/conversations/:id/read", h.HandleMarkRead)
	g.GET("/chat/unread", h.HandleUnread)
}

// HandleListAdmins returns the admin roster for the "start a conversation"
// list. GET /api/v1/chat/admins
func (h *Handler) HandleListAdmins(c echo.Context) error {
	admins, err := h.service.Admins()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{
		"admins": admins,
		"count":  len(admins),
	})
}

// HandleListConversations returns the viewer's conversation summaries.
// GET /api/v1/chat/conversations
func (h *Handler) HandleListConversations(c echo.Context) error {
	conversations, err := h.service.Conversations(middleware.GetUserID(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{
		"conversations": conversations,
		"count":         len(conversations),
	})
}

// HandleListMessages returns the full message list for one conversation.
// GET /api/v1/chat/conversations/:id/messages
func (h *Handler) HandleListMessages(c echo.Context) error {
	messages, err := h.service.Messages(middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		return chatError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"messages": messages,
		"count":    len(messages),
	})
}

// HandleMarkRead marks a conversation read for the viewer.
// POST /api/v1/chat/conversations/:id/read
func (h *Handler) HandleMarkRead(c echo.Context) error {
	if err := h.service.MarkAsRead(middleware.GetUserID(c), c.Param("id")); err != nil {
		return chatError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleUnread returns the viewer's total unread count.
// GET /api/v1/chat/unread
func (h *Handler) HandleUnread(c echo.Context) error {
	count, err := h.service.Unread(middleware.GetUserID(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"count": count})
}

// chatError maps domain errors to HTTP status codes.
func chatError(err error) error {
	switch {
	case errors.Is(err, chatsvc.ErrConversationNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, chatsvc.ErrNotParticipant):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
