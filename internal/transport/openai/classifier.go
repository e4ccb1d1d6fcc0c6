package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

const classifierSystem = `You classify user queries for a retrieval pipeline over operational knowledge bases.
Respond with strict JSON only, without code fences:
{"needs_retrieval": true|false, "target_bases": ["..."], "confidence": 0.0-1.0, "reasoning": "..."}
Greetings, thanks and small talk do not need retrieval. Questions about procedures, systems or facts do. target_bases must be a subset of the available bases.`

// Classifier asks the model whether a query needs retrieval and over which
// knowledge bases.
type Classifier struct {
	chat *ChatClient
}

// NewClassifier creates the routing collaborator.
func NewClassifier(chat *ChatClient) *Classifier {
	return &Classifier{chat: chat}
}

// Classify implements domain.RouteClassifier.
func (c *Classifier) Classify(ctx context.Context, query string, bases []string) (domain.Classification, error) {
	user := fmt.Sprintf("Available knowledge bases: %s\n\nQuery: %s", strings.Join(bases, ", "), query)

	out, _, err := c.chat.complete(ctx, "route", classifierSystem, user)
	if err != nil {
		return domain.Classification{}, fmt.Errorf("classify query: %w: %w", domain.ErrClassifierUnavailable, err)
	}

	var dto struct {
		NeedsRetrieval bool     `json:"needs_retrieval"`
		TargetBases    []string `json:"target_bases"`
		Confidence     float64  `json:"confidence"`
		Reasoning      string   `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(out)), &dto); err != nil {
		return domain.Classification{}, fmt.Errorf("parse classification: %w: %w", domain.ErrClassifierUnavailable, err)
	}

	return domain.Classification{
		NeedsRetrieval: dto.NeedsRetrieval,
		TargetBases:    dto.TargetBases,
		Confidence:     dto.Confidence,
		Reasoning:      dto.Reasoning,
	}, nil
}
