// README: API gateway; registers HTTP routes and delegates to the
// conversation engine.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mapchat/internal/http/handlers"
	"mapchat/internal/http/middleware"
)

type ServerDeps struct {
	Chat handlers.ChatService
}

type Server struct {
	chat handlers.ChatService
}

func NewServer(deps ServerDeps) *Server {
	return &Server{chat: deps.Chat}
}

func (s *Server) Routes() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.Logging(), middleware.Recovery())

	chatHandler := handlers.NewChatHandler(s.chat)
	r.POST("/api/chat", chatHandler.Chat)
	r.POST("/api/chat/stream", chatHandler.Stream)
	r.GET("/api/chat/history", chatHandler.History)
	r.POST("/api/chat/reset", chatHandler.Reset)

	routeHandler := handlers.NewRouteHandler(s.chat)
	r.GET("/api/route", routeHandler.Get)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	return r
}
