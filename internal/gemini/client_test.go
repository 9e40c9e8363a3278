package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type wirePart struct {
	Text string `json:"text"`
}

type wireContent struct {
	Role  string     `json:"role"`
	Parts []wirePart `json:"parts"`
}

type wireRequest struct {
	Contents          []wireContent `json:"contents"`
	SystemInstruction *wireContent  `json:"systemInstruction"`
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	c, err := NewClient(context.Background(), Config{
		BaseURL: server.URL,
		Model:   "gemini-test",
		APIKey:  "secret",
		Timeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func decodeRequest(t *testing.T, r *http.Request) wireRequest {
	t.Helper()
	if !strings.HasSuffix(r.URL.Path, "/models/gemini-test:generateContent") {
		t.Errorf("path = %q", r.URL.Path)
	}
	if r.Header.Get("x-goog-api-key") != "secret" {
		t.Errorf("api key header = %q", r.Header.Get("x-goog-api-key"))
	}
	var req wireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		t.Errorf("decode: %v", err)
	}
	return req
}

func TestGenerate(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		if len(req.Contents) != 1 || req.Contents[0].Parts[0].Text != "pneu furado" {
			t.Errorf("contents = %+v", req.Contents)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":" Pneu furado "},{"text":"na BR-101."}]}}]}`))
	})

	got, err := client.Generate(context.Background(), "pneu furado")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "Pneu furado na BR-101." {
		t.Errorf("Generate = %q", got)
	}
}

func TestGenerateErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		is     error
	}{
		{"bad request", http.StatusBadRequest, `{"error":{"code":400,"message":"invalid argument","status":"INVALID_ARGUMENT"}}`, nil},
		{"no candidates", http.StatusOK, `{"candidates":[]}`, ErrEmptyResponse},
		{"blank text", http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"  "}]}}]}`, ErrEmptyResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			_, err := client.Generate(context.Background(), "x")
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Errorf("err = %v, want %v", err, tt.is)
			}
		})
	}
}

func TestChatSendsHistoryAndSystem(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		if req.SystemInstruction == nil || len(req.SystemInstruction.Parts) == 0 || req.SystemInstruction.Parts[0].Text != "sys" {
			t.Errorf("system instruction = %+v", req.SystemInstruction)
		}
		if len(req.Contents) != 3 {
			t.Errorf("contents len = %d, want 3", len(req.Contents))
			return
		}
		if first := req.Contents[0]; first.Role != "user" || first.Parts[0].Text != "oi" {
			t.Errorf("first turn = %+v", first)
		}
		if last := req.Contents[2]; last.Role != "user" || last.Parts[0].Text != "e agora?" {
			t.Errorf("last turn = %+v", last)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"Aguarde o suporte."}]}}]}`))
	})

	history := []Content{
		{Role: "user", Parts: []Part{{Text: "oi"}}},
		{Role: "model", Parts: []Part{{Text: "olá"}}},
	}
	got, err := client.Chat(context.Background(), "sys", "e agora?", history)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got != "Aguarde o suporte." {
		t.Errorf("Chat = %q", got)
	}
}

func TestChatRejectsUnknownRole(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request sent for invalid history")
	})
	_, err := client.Chat(context.Background(), "", "hi", []Content{{Role: "system", Parts: []Part{{Text: "x"}}}})
	if !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("err = %v, want ErrInvalidRole", err)
	}
}
