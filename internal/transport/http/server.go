// Package http exposes the chat service over REST (admin API), a health
// probe and the player-facing WebSocket endpoint.
package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/werchat/werchat/internal/auth"
	"github.com/werchat/werchat/internal/config"
	"github.com/werchat/werchat/internal/core"
	"github.com/werchat/werchat/internal/session"
)

// Deps bundles everything the HTTP layer serves.
type Deps struct {
	Registry *core.Registry
	Players  *core.PlayerStateStore
	Router   *core.Router
	Hub      *session.Hub
	Auth     *auth.Service
	Log      *zerolog.Logger
}

// NewServer builds the HTTP server with all routes registered.
func NewServer(deps Deps, cfg config.Config) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), LoggerMiddleware(deps.Log))

	engine.GET("/health", healthHandler)
	engine.POST("/api/login", NewAuthHandlers(deps.Auth, deps.Log).Login)
	engine.GET("/ws", NewWSHandler(deps, deps.Log).Handle)

	channels := NewChannelHandlers(deps.Registry, deps.Players, deps.Log)
	players := NewPlayerHandlers(deps.Registry, deps.Players, deps.Log)
	chat := NewChatHandlers(deps.Router, deps.Log)

	api := engine.Group("/api", AuthMiddleware(deps.Auth, deps.Log))
	{
		api.GET("/channels", channels.List)
		api.POST("/channels", channels.Create)
		api.GET("/channels/:name", channels.Get)
		api.PATCH("/channels/:name", channels.Update)
		api.DELETE("/channels/:name", channels.Delete)
		api.POST("/channels/:name/rename", channels.Rename)
		api.POST("/channels/:name/default", channels.MakeDefault)

		api.POST("/channels/:name/members", channels.AddMember)
		api.DELETE("/channels/:name/members/:player", channels.RemoveMember)
		api.POST("/channels/:name/bans", channels.Ban)
		api.DELETE("/channels/:name/bans/:player", channels.Unban)
		api.POST("/channels/:name/mutes", channels.Mute)
		api.DELETE("/channels/:name/mutes/:player", channels.Unmute)
		api.POST("/channels/:name/moderators", channels.AddModerator)
		api.DELETE("/channels/:name/moderators/:player", channels.RemoveModerator)

		api.GET("/players/:id", players.Get)
		api.PATCH("/players/:id", players.Update)
		api.POST("/players/:id/focus", players.Focus)
		api.POST("/players/:id/channels", players.JoinChannel)
		api.DELETE("/players/:id/channels/:channel", players.LeaveChannel)
		api.POST("/players/:id/ignores", players.Ignore)
		api.DELETE("/players/:id/ignores/:target", players.Unignore)

		api.POST("/chat", chat.Relay)
		api.POST("/chat/pm", chat.PrivateMessage)
	}

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           engine,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
