// README: Route handler (current route snapshot for the map UI).
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type RouteHandler struct {
	chat ChatService
}

func NewRouteHandler(chat ChatService) *RouteHandler {
	return &RouteHandler{chat: chat}
}

// Get handles GET /api/route.
func (h *RouteHandler) Get(c *gin.Context) {
	writeJSON(c, http.StatusOK, h.chat.State().Snapshot())
}
