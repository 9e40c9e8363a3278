// Package gemini adapts the Google Gen AI SDK to the two calls the service
// makes: single-turn generation and support chat.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

const DefaultAPIVersion = "v1beta"

var (
	ErrEmptyResponse = errors.New("gemini: response has no text")
	ErrInvalidRole   = errors.New("gemini: history role must be user or model")
)

type Config struct {
	// BaseURL overrides the SDK endpoint; empty keeps the public Gemini API.
	BaseURL    string
	APIVersion string
	Model      string
	APIKey     string
	Timeout    time.Duration
}

// Client calls models.generateContent through the Gen AI SDK.
type Client struct {
	sdk   *genai.Client
	model string
}

func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	sdk, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    strings.TrimRight(cfg.BaseURL, "/"),
			APIVersion: cfg.APIVersion,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	return &Client{sdk: sdk, model: cfg.Model}, nil
}

type Part struct {
	Text string `json:"text"`
}

// Content is one conversation turn as carried by the chat endpoint. Role is
// "user" or "model".
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

func (c Content) sdk() *genai.Content {
	out := &genai.Content{Role: c.Role, Parts: make([]*genai.Part, 0, len(c.Parts))}
	for _, p := range c.Parts {
		out.Parts = append(out.Parts, &genai.Part{Text: p.Text})
	}
	return out
}

// Generate sends a single-turn prompt.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.sdk.Models.GenerateContent(ctx, c.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("gemini: generate: %w", err)
	}
	return responseText(resp)
}

// Chat continues a conversation with a new user message.
func (c *Client) Chat(ctx context.Context, system, message string, history []Content) (string, error) {
	turns := make([]*genai.Content, 0, len(history))
	for _, h := range history {
		if h.Role != "user" && h.Role != "model" {
			return "", fmt.Errorf("%w: %q", ErrInvalidRole, h.Role)
		}
		turns = append(turns, h.sdk())
	}
	var cfg *genai.GenerateContentConfig
	if system != "" {
		cfg = &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: system}}},
		}
	}
	chat, err := c.sdk.Chats.Create(ctx, c.model, cfg, turns)
	if err != nil {
		return "", fmt.Errorf("gemini: chat: %w", err)
	}
	resp, err := chat.SendMessage(ctx, genai.Part{Text: message})
	if err != nil {
		return "", fmt.Errorf("gemini: chat: %w", err)
	}
	return responseText(resp)
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyResponse
	}
	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil {
			sb.WriteString(p.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
