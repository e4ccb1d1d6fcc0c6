package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// maxPassageChars bounds prompt growth; longer passages are truncated for
// scoring, never dropped.
const maxPassageChars = 2000

const crossEncoderSystem = `You score how relevant each passage is to the query.
Respond with a strict JSON array of numbers between 0.0 and 1.0, one per passage, in the given order. No other text.`

// CrossEncoder scores query-passage pairs with the chat model.
type CrossEncoder struct {
	chat *ChatClient
}

// NewCrossEncoder creates the rerank-scoring collaborator.
func NewCrossEncoder(chat *ChatClient) *CrossEncoder {
	return &CrossEncoder{chat: chat}
}

// CrossEncoderScore implements domain.CrossEncoderScorer. The result is
// index-aligned with passages; a count mismatch from the model is an error.
func (ce *CrossEncoder) CrossEncoderScore(ctx context.Context, query string, passages []string) ([]float64, error) {
	if len(passages) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Query: %s\n\nPassages:\n", query)
	for i, p := range passages {
		if len(p) > maxPassageChars {
			p = p[:maxPassageChars]
		}
		fmt.Fprintf(&sb, "%d. %s\n", i+1, p)
	}

	out, _, err := ce.chat.complete(ctx, "rerank", crossEncoderSystem, sb.String())
	if err != nil {
		return nil, fmt.Errorf("cross-encoder score: %w: %w", domain.ErrRerankerUnavailable, err)
	}

	scores, err := parseScores(out, len(passages))
	if err != nil {
		return nil, fmt.Errorf("cross-encoder response: %w: %w", domain.ErrRerankerUnavailable, err)
	}
	return scores, nil
}

func parseScores(out string, want int) ([]float64, error) {
	var scores []float64
	if err := json.Unmarshal([]byte(extractJSONArray(out)), &scores); err != nil {
		return nil, fmt.Errorf("parse scores: %w", err)
	}
	if len(scores) != want {
		return nil, fmt.Errorf("got %d scores for %d passages", len(scores), want)
	}
	for i, s := range scores {
		scores[i] = math.Max(0, math.Min(1, s))
	}
	return scores, nil
}
