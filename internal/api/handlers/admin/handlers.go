// Package admin provides HTTP handlers for the admin-only user directory.
package admin

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tomharwin/kestrel/internal/chat"
	"github.com/tomharwin/kestrel/internal/db"
	"github.com/tomharwin/kestrel/internal/wire"
)

// Handler handles admin directory HTTP requests.
type Handler struct {
	db       *db.DB
	presence *chat.Presence
}

// New creates a new admin handler.
func New(database *db.DB, presence *chat.Presence) *Handler {
	return &Handler{db: database, presence: presence}
}

// RegisterRoutes registers admin routes on the given group. The group must
// already enforce the admin role.
//   - GET /admin/users
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/admin/users", h.HandleListUsers)
}

// HandleListUsers returns every account with its presence state, for the
// support-agent directory view. GET /api/v1/admin/users
func (h *Handler) HandleListUsers(c echo.Context) error {
	users, err := h.db.ListUsers()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	out := make([]wire.UserInfo, 0, len(users))
	for _, user := range users {
		out = append(out, wire.UserInfo{
			ID:     user.ID,
			Name:   user.Name,
			Role:   user.Role,
			Online: h.presence.IsOnline(user.ID),
		})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"users": out,
		"count": len(out),
	})
}
