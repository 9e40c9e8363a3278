package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/assist-service/internal/gemini"
)

type Replier interface {
	Reply(ctx context.Context, message string, history []gemini.Content) (string, error)
}

type ChatHandler struct {
	svc Replier
	log *slog.Logger
}

func NewChatHandler(svc Replier, log *slog.Logger) *ChatHandler {
	return &ChatHandler{svc: svc, log: orDefault(log).With("component", "chat_handler")}
}

type chatRequest struct {
	Message string           `json:"message"`
	History []gemini.Content `json:"history"`
}

func (h *ChatHandler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	out, err := h.svc.Reply(c.Request.Context(), req.Message, req.History)
	if err != nil {
		writeError(c, h.log, err, "assistant unavailable, try again later")
		return
	}
	c.JSON(http.StatusOK, gin.H{"response": out})
}
