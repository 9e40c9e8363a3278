package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

type stubGenerator struct {
	out    string
	err    error
	prompt string
}

func (g *stubGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.prompt = prompt
	return g.out, g.err
}

type slowGenerator struct{}

func (slowGenerator) Generate(ctx context.Context, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestDescribe(t *testing.T) {
	long := strings.Repeat("ç", 250)
	tests := []struct {
		name   string
		gen    TextGenerator
		prompt string
		want   string
	}{
		{"generated text", &stubGenerator{out: "  Motor travado na rota R1.  "}, "motor", "Motor travado na rota R1."},
		{"generator error falls back", &stubGenerator{err: errors.New("quota")}, "pneu furado", "pneu furado"},
		{"empty generation falls back", &stubGenerator{out: "   "}, "pneu furado", "pneu furado"},
		{"nil generator falls back", nil, " sem sinal ", "sem sinal"},
		{"fallback is clipped", &stubGenerator{err: errors.New("down")}, long, strings.Repeat("ç", MaxDescriptionLength)},
		{"generated text is clipped", &stubGenerator{out: long}, "x", strings.Repeat("ç", MaxDescriptionLength)},
		{"empty prompt", &stubGenerator{out: "never"}, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDescriptionGenerator(tt.gen, time.Second, nil)
			got := d.Describe(context.Background(), tt.prompt)
			if got != tt.want {
				t.Errorf("Describe = %q, want %q", got, tt.want)
			}
			if n := utf8.RuneCountInString(got); n > MaxDescriptionLength {
				t.Errorf("len = %d runes", n)
			}
		})
	}
}

func TestDescribeWrapsPrompt(t *testing.T) {
	g := &stubGenerator{out: "ok"}
	NewDescriptionGenerator(g, time.Second, nil).Describe(context.Background(), "caminhão quebrado")
	if !strings.Contains(g.prompt, "Chamado: caminhão quebrado") {
		t.Errorf("generator prompt = %q", g.prompt)
	}
}

func TestDescribeFallbackIsDeterministic(t *testing.T) {
	d := NewDescriptionGenerator(slowGenerator{}, 20*time.Millisecond, nil)
	a := d.Describe(context.Background(), "entrega atrasada no hub H2")
	b := d.Describe(context.Background(), "entrega atrasada no hub H2")
	if a != b || a != "entrega atrasada no hub H2" {
		t.Errorf("fallbacks = %q, %q", a, b)
	}
}

func TestClip(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"abc", 5, "abc"},
		{"abcdef", 3, "abc"},
		{"ab cd", 3, "ab"},
		{"ãéíõú", 2, "ãé"},
		{"abc", 0, ""},
	}
	for _, tt := range tests {
		if got := Clip(tt.in, tt.max); got != tt.want {
			t.Errorf("Clip(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
