package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

const expanderSystem = `You rewrite search queries for a retrieval system over operational documentation. Return only the rewrites, one per line, with no commentary.`

// Expander produces semantically diverse query rewrites.
type Expander struct {
	chat *ChatClient
}

// NewExpander creates the query-expansion collaborator.
func NewExpander(chat *ChatClient) *Expander {
	return &Expander{chat: chat}
}

// ExpandQuery implements domain.QueryExpander. The returned slice never
// contains the original query; case-insensitive duplicates of it are dropped.
func (e *Expander) ExpandQuery(ctx context.Context, text string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}

	user := fmt.Sprintf(`Generate %d alternative search queries for the following query.
Each alternative should capture a different aspect or phrasing of the same information need.
Return only the queries, one per line.

Original query: %s`, n, text)

	out, _, err := e.chat.complete(ctx, "expand", expanderSystem, user)
	if err != nil {
		return nil, fmt.Errorf("expand query: %w: %w", domain.ErrExpansionUnavailable, err)
	}

	original := strings.ToLower(strings.TrimSpace(text))
	var variants []string
	for _, line := range parseNumberedLines(out) {
		if strings.ToLower(line) == original {
			continue
		}
		variants = append(variants, line)
		if len(variants) == n {
			break
		}
	}
	return variants, nil
}
