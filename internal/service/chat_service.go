package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/psds-microservice/assist-service/internal/errs"
	"github.com/psds-microservice/assist-service/internal/gemini"
)

const chatInstruction = `Você é o assistente de suporte de uma operação de entregas.
Ajude motoristas e administradores com dúvidas sobre chamados de apoio,
rotas e procedimentos. Responda em português do Brasil, de forma breve.`

type Chatter interface {
	Chat(ctx context.Context, system, message string, history []gemini.Content) (string, error)
}

type ChatService struct {
	client  Chatter
	timeout time.Duration
	log     *slog.Logger
}

func NewChatService(client Chatter, timeout time.Duration, log *slog.Logger) *ChatService {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &ChatService{client: client, timeout: timeout, log: log.With("component", "chat")}
}

// Reply answers message in the context of history. Collaborator failures
// come back as errs.ErrUpstream.
func (s *ChatService) Reply(ctx context.Context, message string, history []gemini.Content) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", validationError("message is required")
	}
	for _, h := range history {
		if h.Role != "user" && h.Role != "model" {
			return "", validationError("history role %q must be user or model", h.Role)
		}
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	out, err := s.client.Chat(ctx, chatInstruction, message, history)
	if err != nil {
		if errors.Is(err, gemini.ErrInvalidRole) {
			return "", fmt.Errorf("%w: %v", errs.ErrValidation, err)
		}
		s.log.Error("chat completion failed", "error", err)
		return "", fmt.Errorf("%w: %v", errs.ErrUpstream, err)
	}
	return out, nil
}
