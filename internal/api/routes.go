package api

import (
	"log"

	"github.com/gin-gonic/gin"

	"github.com/hanakoi/backend/internal/api/handlers"
	"github.com/hanakoi/backend/internal/auth"
	"github.com/hanakoi/backend/internal/config"
	"github.com/hanakoi/backend/internal/identity"
	"github.com/hanakoi/backend/internal/middleware"
	"github.com/hanakoi/backend/internal/session"
	"github.com/hanakoi/backend/internal/ws"
)

// Deps bundles everything the routes need
type Deps struct {
	Cfg      *config.Config
	Players  *identity.PlayerStore
	Sessions *identity.SessionStore
	Games    *session.GameStore
	Repo     *session.Repository
	Handoff  *auth.Handoff
	WS       *ws.Handler
	Gateway  *ws.Manager
}

// SetupRoutes configures all API routes
func SetupRoutes(router *gin.Engine, d Deps) {
	router.Use(middleware.CORSMiddleware(d.Cfg))

	if d.Cfg.Environment != "production" {
		router.Use(func(c *gin.Context) {
			c.Header("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
			c.Header("Pragma", "no-cache")
			c.Next()
		})
		log.Println("[DEV MODE] No-cache headers enabled for all routes")
	}

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", handlers.HealthCheck)

		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", handlers.Register(d.Cfg, d.Players, d.Sessions))
			authGroup.POST("/login", handlers.Login(d.Cfg, d.Players, d.Sessions))
			authGroup.POST("/guest", handlers.Guest(d.Cfg, d.Players, d.Sessions))
			authGroup.POST("/logout", middleware.RequireSession(d.Sessions), handlers.Logout(d.Sessions, d.Gateway))
		}

		player := v1.Group("/player")
		{
			player.GET("/me", middleware.RequireSession(d.Sessions), handlers.Me(d.Players))
			player.GET("/:id/stats", handlers.PlayerStats(d.Repo))
		}

		v1.GET("/game/:id", middleware.RequireSession(d.Sessions), handlers.GameRecord(d.Repo))

		v1.POST("/handoff", middleware.RequireSession(d.Sessions), handlers.MintHandoff(d.Handoff, d.Games))

		v1.GET("/ws", middleware.WebSocketCORSCheck(d.Cfg), d.WS.Serve)
	}
}
