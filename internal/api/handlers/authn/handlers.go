// Package authn provides HTTP handlers for login and token refresh.
package authn

import (
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/tomharwin/kestrel/internal/auth"
	"github.com/tomharwin/kestrel/internal/db"
	"github.com/tomharwin/kestrel/internal/wire"
)

// Login attempts per client IP.
const (
	loginRate  = rate.Limit(1) // sustained per second
	loginBurst = 5
)

// Handler handles authentication HTTP requests.
type Handler struct {
	db          *db.DB
	tokenConfig *auth.TokenConfig

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New creates a new authentication handler.
func New(database *db.DB, tokenConfig *auth.TokenConfig) *Handler {
	return &Handler{
		db:          database,
		tokenConfig: tokenConfig,
		limiters:    make(map[string]*rate.Limiter),
	}
}

// RegisterRoutes registers authentication routes on the given group.
//   - POST /auth/login
//   - POST /auth/refresh
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/auth/login", h.HandleLogin)
	g.POST("/auth/refresh", h.HandleRefresh)
}

// HandleLogin verifies credentials and issues a token pair.
// POST /api/v1/auth/login
func (h *Handler) HandleLogin(c echo.Context) error {
	if !h.allow(c.RealIP()) {
		return echo.NewHTTPError(http.StatusTooManyRequests, "too many login attempts")
	}

	var req wire.LoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Name == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name and password are required")
	}

	user, err := h.db.GetUserByName(req.Name)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	// Same error for unknown user and wrong password
	if user == nil || auth.CheckPassword(user.PasswordHash, req.Password) != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}

	resp, err := h.issueTokens(user)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if err := h.db.UpdateUserLastLogin(user.ID); err != nil {
		// Non-fatal; the login itself succeeded
		c.Logger().Warnf("failed to update last login for %s: %v", user.ID, err)
	}

	return c.JSON(http.StatusOK, resp)
}

// HandleRefresh exchanges a refresh token for a new token pair.
// POST /api/v1/auth/refresh
func (h *Handler) HandleRefresh(c echo.Context) error {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	claims, err := auth.ValidateToken(req.RefreshToken, h.tokenConfig)
	if err != nil || claims.Kind != auth.KindRefresh {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid refresh token")
	}

	user, err := h.db.GetUserByID(claims.UserID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if user == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "unknown user")
	}

	resp, err := h.issueTokens(user)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) issueTokens(user *db.User) (*wire.LoginResponse, error) {
	token, err := auth.GenerateToken(user.ID, user.Role, h.tokenConfig)
	if err != nil {
		return nil, err
	}
	refresh, err := auth.GenerateRefreshToken(user.ID, user.Role, h.tokenConfig)
	if err != nil {
		return nil, err
	}

	return &wire.LoginResponse{
		Token:        token,
		RefreshToken: refresh,
		User: wire.UserInfo{
			ID:   user.ID,
			Name: user.Name,
			Role: user.Role,
		},
	}, nil
}

// allow rate-limits login attempts per client IP.
func (h *Handler) allow(ip string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	limiter, ok := h.limiters[ip]
	if !ok {
		limiter = rate.NewLimiter(loginRate, loginBurst)
		h.limiters[ip] = limiter
	}
	return limiter.Allow()
}
