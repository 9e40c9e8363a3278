package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/psds-microservice/assist-service/internal/errs"
	"github.com/psds-microservice/assist-service/internal/gemini"
)

type stubChatter struct {
	reply   string
	err     error
	system  string
	history []gemini.Content
}

func (c *stubChatter) Chat(_ context.Context, system, _ string, history []gemini.Content) (string, error) {
	c.system, c.history = system, history
	return c.reply, c.err
}

func TestChatReply(t *testing.T) {
	c := &stubChatter{reply: "Siga para o hub H1."}
	svc := NewChatService(c, time.Second, nil)
	history := []gemini.Content{
		{Role: "user", Parts: []gemini.Part{{Text: "oi"}}},
		{Role: "model", Parts: []gemini.Part{{Text: "olá"}}},
	}
	got, err := svc.Reply(context.Background(), "para onde vou?", history)
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if got != "Siga para o hub H1." {
		t.Errorf("reply = %q", got)
	}
	if c.system == "" || len(c.history) != 2 {
		t.Errorf("system = %q, history = %d", c.system, len(c.history))
	}
}

func TestChatReplyErrors(t *testing.T) {
	tests := []struct {
		name    string
		chatter *stubChatter
		message string
		history []gemini.Content
		want    error
	}{
		{"empty message", &stubChatter{}, "  ", nil, errs.ErrValidation},
		{"bad role", &stubChatter{}, "oi", []gemini.Content{{Role: "system"}}, errs.ErrValidation},
		{"upstream failure", &stubChatter{err: errors.New("503")}, "oi", nil, errs.ErrUpstream},
		{"upstream rejects role", &stubChatter{err: gemini.ErrInvalidRole}, "oi", nil, errs.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewChatService(tt.chatter, time.Second, nil).Reply(context.Background(), tt.message, tt.history)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}
