package ragdex

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// Hit is a typed passage backing an answer.
type Hit[T any] struct {
	Item       T
	CrossScore float64
	Position   int
}

// TypedAnswer pairs the generated answer text with passages decoded into T.
type TypedAnswer[T any] struct {
	Text    string
	Hits    []Hit[T]
	Cached  bool
	Partial bool
}

// AskBuilder is a fluent builder for typed ask requests.
type AskBuilder[T any] struct {
	tb *TypedBase[T]

	question string
	topK     int
	alpha    *float64
	noCache  bool
	filters  []FilterCondition
}

// Where adds a tag filter condition (exact match).
func (b *AskBuilder[T]) Where(key, value string) *AskBuilder[T] {
	b.filters = append(b.filters, FilterCondition{Key: key, Match: value})
	return b
}

// WhereRange adds a numeric range filter condition.
func (b *AskBuilder[T]) WhereRange(key string, r RangeFilter) *AskBuilder[T] {
	b.filters = append(b.filters, FilterCondition{Key: key, Range: &r})
	return b
}

// TopK sets the number of passages in the final answer.
func (b *AskBuilder[T]) TopK(n int) *AskBuilder[T] {
	b.topK = n
	return b
}

// Alpha overrides the vector/lexical fusion split for this request.
func (b *AskBuilder[T]) Alpha(a float64) *AskBuilder[T] {
	b.alpha = &a
	return b
}

// NoCache bypasses answer and retrieval cache reads for this request.
func (b *AskBuilder[T]) NoCache() *AskBuilder[T] {
	b.noCache = true
	return b
}

// Do runs the full pipeline and returns the answer with typed passages.
func (b *AskBuilder[T]) Do(ctx context.Context) (TypedAnswer[T], error) {
	opts := &AskOptions{
		Bases:   []string{b.tb.name},
		TopK:    b.topK,
		Alpha:   b.alpha,
		NoCache: b.noCache,
	}
	if len(b.filters) > 0 {
		opts.Filters = FilterExpression{Must: b.filters}
	}

	ans, err := b.tb.client.Ask(ctx, b.question, opts)
	if err != nil {
		return TypedAnswer[T]{}, fmt.Errorf("ask %q: %w", b.tb.name, err)
	}
	return b.toTyped(ans), nil
}

// toTyped decodes passages into T. Passage doc IDs are base-qualified;
// the version role is filled from the answer's source versions.
func (b *AskBuilder[T]) toTyped(ans Answer) TypedAnswer[T] {
	hits := make([]Hit[T], 0, len(ans.Passages))
	for _, p := range ans.Passages {
		_, id, ok := domain.SplitDocRef(p.DocID)
		if !ok {
			id = p.DocID
		}
		doc := Document{
			ID:       id,
			Content:  p.Content,
			Version:  ans.SourceVersions[p.DocID],
			Tags:     p.Tags,
			Numerics: p.Numerics,
		}
		item, ok := b.tb.meta.fromDocument(doc).(T)
		if !ok {
			continue
		}
		hits = append(hits, Hit[T]{
			Item:       item,
			CrossScore: p.CrossScore,
			Position:   p.Position,
		})
	}
	return TypedAnswer[T]{
		Text:    ans.Text,
		Hits:    hits,
		Cached:  ans.Cached,
		Partial: ans.Partial,
	}
}
