package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// defaultGeneratorSystem grounds the model in the supplied passages only.
const defaultGeneratorSystem = `You answer questions using only the provided context passages. If the context does not contain the answer, say so plainly instead of guessing. Keep answers concise and operational.`

// Generator produces grounded answers via chat completion.
type Generator struct {
	chat   *ChatClient
	system string
}

// NewGenerator creates the answer-generation collaborator. An empty
// systemPrompt falls back to the default grounded-answering prompt.
func NewGenerator(chat *ChatClient, systemPrompt string) *Generator {
	if systemPrompt == "" {
		systemPrompt = defaultGeneratorSystem
	}
	return &Generator{chat: chat, system: systemPrompt}
}

// Generate implements domain.Generator.
func (g *Generator) Generate(ctx context.Context, prompt string) (domain.GenerationResult, error) {
	text, usage, err := g.chat.complete(ctx, "generate", g.system, prompt)
	if err != nil {
		return domain.GenerationResult{}, fmt.Errorf("generate: %w: %w", domain.ErrGenerationUnavailable, err)
	}

	return domain.GenerationResult{
		Text:             strings.TrimSpace(text),
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
	}, nil
}
