// README: Chat handler (conversation turns, streaming, history, reset).
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"mapchat/internal/modules/conversation"
)

// turnTimeout bounds one conversation turn, including geocoding, routing
// and map data fetches.
const turnTimeout = 120 * time.Second

// ChatService is the slice of the conversation engine the HTTP surface
// needs.
type ChatService interface {
	HandleTurn(ctx context.Context, query string) conversation.Reply
	StreamTurn(ctx context.Context, query string, emit func(conversation.StreamEvent) error) error
	State() *conversation.State
}

type ChatHandler struct {
	chat ChatService
}

func NewChatHandler(chat ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

type chatReq struct {
	Message string `json:"message"`
}

// Chat handles POST /api/chat.
func (h *ChatHandler) Chat(c *gin.Context) {
	var req chatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		writeError(c, http.StatusBadRequest, "missing message")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), turnTimeout)
	defer cancel()

	writeJSON(c, http.StatusOK, h.chat.HandleTurn(ctx, req.Message))
}

// Stream handles POST /api/chat/stream as server-sent events.
func (h *ChatHandler) Stream(c *gin.Context) {
	var req chatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		writeError(c, http.StatusBadRequest, "missing message")
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	ctx, cancel := context.WithTimeout(c.Request.Context(), turnTimeout)
	defer cancel()

	err := h.chat.StreamTurn(ctx, req.Message, func(ev conversation.StreamEvent) error {
		payload, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := c.Writer.WriteString("data: " + string(payload) + "\n\n"); err != nil {
			return err
		}
		c.Writer.Flush()
		return nil
	})
	if err != nil {
		// Headers are already out: best we can do is a final error event.
		payload, _ := json.Marshal(conversation.StreamEvent{Error: "stream aborted"})
		_, _ = c.Writer.WriteString("data: " + string(payload) + "\n\n")
		c.Writer.Flush()
	}
}

// History handles GET /api/chat/history.
func (h *ChatHandler) History(c *gin.Context) {
	messages := h.chat.State().History(0)
	if messages == nil {
		messages = []conversation.Message{}
	}
	writeJSON(c, http.StatusOK, gin.H{"messages": messages})
}

type resetReq struct {
	KeepRoute *bool `json:"keep_route"`
}

// Reset handles POST /api/chat/reset. Omitting keep_route preserves the
// route and its cached data; only the dialogue is cleared.
func (h *ChatHandler) Reset(c *gin.Context) {
	var req resetReq
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "invalid json")
			return
		}
	}
	keepRoute := true
	if req.KeepRoute != nil {
		keepRoute = *req.KeepRoute
	}
	h.chat.State().Reset(keepRoute)
	writeJSON(c, http.StatusOK, gin.H{"status": "reset"})
}
