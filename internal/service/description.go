package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxDescriptionLength caps every description, generated or fallback, in runes.
const MaxDescriptionLength = 200

const descriptionInstruction = `Você é um assistente de suporte logístico.
Escreva uma descrição curta e objetiva (no máximo duas frases, sem saudações)
para o chamado de apoio abaixo, em português do Brasil.

Chamado: %s`

// TextGenerator is the external generative-language collaborator.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Describer turns raw input into a ticket description and never fails.
type Describer interface {
	Describe(ctx context.Context, prompt string) string
}

type DescriptionGenerator struct {
	gen     TextGenerator
	timeout time.Duration
	log     *slog.Logger
}

func NewDescriptionGenerator(gen TextGenerator, timeout time.Duration, log *slog.Logger) *DescriptionGenerator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &DescriptionGenerator{gen: gen, timeout: timeout, log: log.With("component", "description")}
}

// Describe asks the generator for a description of prompt. On any failure
// it returns prompt itself, clipped.
func (d *DescriptionGenerator) Describe(ctx context.Context, prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" || d.gen == nil {
		return Clip(prompt, MaxDescriptionLength)
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	out, err := d.gen.Generate(ctx, fmt.Sprintf(descriptionInstruction, prompt))
	if err != nil {
		d.log.Warn("generation failed, using fallback", "error", err)
		return Clip(prompt, MaxDescriptionLength)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return Clip(prompt, MaxDescriptionLength)
	}
	return Clip(out, MaxDescriptionLength)
}

// Clip trims s and cuts it to at most max runes.
func Clip(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:max]))
}
