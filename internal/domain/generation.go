package domain

import "context"

// Generator is the answer-generation contract. Implementations report provider
// failures as ErrGenerationUnavailable.
type Generator interface {
	Generate(ctx context.Context, prompt string) (GenerationResult, error)
}

// GenerationResult carries the generated text and token usage.
type GenerationResult struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}
