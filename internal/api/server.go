// Package api assembles the HTTP surface: REST endpoints, the chat hub
// socket and the realtime observer socket.
package api

import (
	"context"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	adminapi "github.com/tomharwin/kestrel/internal/api/handlers/admin"
	"github.com/tomharwin/kestrel/internal/api/handlers/authn"
	chatapi "github.com/tomharwin/kestrel/internal/api/handlers/chat"
	"github.com/tomharwin/kestrel/internal/api/middleware"
	"github.com/tomharwin/kestrel/internal/auth"
	"github.com/tomharwin/kestrel/internal/chat"
	"github.com/tomharwin/kestrel/internal/db"
	"github.com/tomharwin/kestrel/internal/hub"
	"github.com/tomharwin/kestrel/internal/realtime"
)

// Server represents the API server
type Server struct {
	echo        *echo.Echo
	db          *db.DB
	service     *chat.Service
	hub         *hub.Hub
	node        *realtime.Node
	addr        string
	tokenConfig *auth.TokenConfig
	logf        func(format string, args ...any)
}

// Config holds server configuration
type Config struct {
	Addr        string            // e.g., ":8080"
	TokenConfig *auth.TokenConfig // JWT configuration
	// DisableRealtime turns the observer node off (tests, minimal deploys)
	DisableRealtime bool
}

// NewServer creates a new API server
func NewServer(database *db.DB, cfg Config) (*Server, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())

	service := chat.NewService(database)
	chatHub := hub.New(service)

	s := &Server{
		echo:        e,
		db:          database,
		service:     service,
		hub:         chatHub,
		addr:        cfg.Addr,
		tokenConfig: cfg.TokenConfig,
		logf:        log.Printf,
	}

	if !cfg.DisableRealtime {
		node, err := realtime.NewNode(realtime.Config{
			RoleLookup: s.lookupRole,
			Logf:       log.Printf,
		})
		if err != nil {
			return nil, err
		}
		s.node = node
		service.SetEventSink(realtime.NewBroadcaster(node))
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up all HTTP routes
func (s *Server) registerRoutes() {
	// Chat hub socket
	hubHandler := hub.NewHandler(s.hub, s.tokenConfig)
	s.echo.GET("/hubs/chat", echo.WrapHandler(hubHandler))

	// Realtime observer socket
	if s.node != nil {
		validator := realtime.NewJWTValidator(s.tokenConfig)
		wsHandler := realtime.AuthMiddleware(validator)(s.node.WebSocketHandler())
		s.echo.GET("/realtime", echo.WrapHandler(wsHandler))
	}

	// REST API
	api := s.echo.Group("/api/v1")

	authn.New(s.db, s.tokenConfig).RegisterRoutes(api)

	authed := api.Group("", middleware.JWTAuth(s.tokenConfig))
	chatapi.New(s.service).RegisterRoutes(authed)

	admins := authed.Group("", middleware.RequireAdmin())
	adminapi.New(s.db, s.service.Presence()).RegisterRoutes(admins)

	// Health check
	s.echo.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{
			"status":      "ok",
			"connections": s.hub.ConnectedUsers(),
		})
	})
}

// Service exposes the chat service (used by the CLI's local tooling).
func (s *Server) Service() *chat.Service {
	return s.service
}

// Start runs the realtime node and the HTTP listener. Blocks until the
// listener stops.
func (s *Server) Start() error {
	if s.node != nil {
		if err := s.node.Run(); err != nil {
			return err
		}
	}
	s.logf("api: listening on %s", s.addr)
	return s.echo.Start(s.addr)
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.node != nil {
		if err := s.node.Shutdown(ctx); err != nil {
			s.logf("api: realtime shutdown: %v", err)
		}
	}
	return s.echo.Shutdown(ctx)
}

// lookupRole resolves a user's role for realtime channel authorization.
func (s *Server) lookupRole(userID string) string {
	user, err := s.db.GetUserByID(userID)
	if err != nil || user == nil {
		return db.RoleUser
	}
	return user.Role
}
