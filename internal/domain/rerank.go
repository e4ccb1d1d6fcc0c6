package domain

import "context"

// CrossEncoderScorer scores query-passage pairs with a pairwise relevance
// model. The returned slice is index-aligned with passages. Implementations
// report provider failures as ErrRerankerUnavailable, which callers treat as
// non-fatal.
type CrossEncoderScorer interface {
	CrossEncoderScore(ctx context.Context, query string, passages []string) ([]float64, error)
}
