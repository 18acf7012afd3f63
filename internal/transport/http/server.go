package http

import (
	"context"

	"github.com/gin-gonic/gin"

	"streamchat/internal/app"
	"streamchat/internal/transport/http/handler"
	"streamchat/internal/transport/http/middleware"
)

type RouterDeps struct {
	GinMode      string
	JWTSecret    string
	ChatService  *app.ChatService
	Limiter      middleware.Limiter
	HealthChecks map[string]func(ctx context.Context) error
}

// NewRouter wires the API surface. The rate limiter runs before
// authentication so an over-limit request never has its credential
// evaluated.
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.GinMode != "" {
		gin.SetMode(deps.GinMode)
	}
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(deps.HealthChecks)
	router.GET("/healthz", healthHandler.Check)

	chatHandler := handler.NewChatHandler(deps.ChatService)

	api := router.Group("/api")
	if deps.Limiter != nil {
		api.Use(middleware.RateLimit(deps.Limiter))
	}
	api.Use(middleware.AuthJWT(deps.JWTSecret))
	api.POST("/chat", chatHandler.SendChat)
	api.GET("/chats", chatHandler.ListChats)
	api.POST("/chats/new", chatHandler.NewChat)
	api.GET("/chats/:id", chatHandler.GetChat)

	return router
}
