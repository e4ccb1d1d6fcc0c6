// Package expand turns one query into a weighted list of retrieval variants.
// Expansion is recall insurance, never a hard dependency: the original query
// always survives, so a dead expander only narrows retrieval back to the
// single-query behavior.
package expand

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// DefaultDecay is the per-variant weight decay. Variant i carries weight
// decay^i, the original carries 1.0.
const DefaultDecay = 0.7

// Variant is one retrieval query with its fusion weight. The original query
// is always first with weight 1.0.
type Variant struct {
	Text   string
	Weight float64
}

// Service wraps a QueryExpander with weights and soft degradation.
type Service struct {
	expander domain.QueryExpander
	n        int
	decay    float64
	logger   *zap.Logger
}

// New creates an expansion service producing up to n variants beyond the
// original. n <= 0 disables expansion entirely; a non-positive decay falls
// back to DefaultDecay.
func New(expander domain.QueryExpander, n int, decay float64, logger *zap.Logger) *Service {
	if decay <= 0 {
		decay = DefaultDecay
	}
	return &Service{expander: expander, n: n, decay: decay, logger: logger}
}

// Expand returns the weighted variant list for a query. The boolean reports
// degradation: true means the expander failed or produced nothing usable and
// only the original query is returned. Disabled expansion (n <= 0 or nil
// expander) is not a degradation, just the configured behavior.
func (s *Service) Expand(ctx context.Context, text string) ([]Variant, bool) {
	original := []Variant{{Text: text, Weight: 1.0}}

	if s.n <= 0 || s.expander == nil {
		return original, false
	}

	rewrites, err := s.expander.ExpandQuery(ctx, text, s.n)
	if err != nil {
		s.logger.Warn("Query expansion failed, retrieving with the original only",
			zap.Error(err),
		)
		return original, true
	}
	if len(rewrites) == 0 {
		s.logger.Debug("Query expansion produced no usable variants")
		return original, true
	}

	variants := original
	for i, rewrite := range rewrites {
		variants = append(variants, Variant{
			Text:   rewrite,
			Weight: math.Pow(s.decay, float64(i+1)),
		})
	}

	s.logger.Debug("Query expanded",
		zap.Int("variants", len(variants)-1),
	)
	return variants, false
}
