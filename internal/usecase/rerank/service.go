// Package rerank reorders fused candidates with a cross-encoder before
// generation. Reranking is quality insurance on top of an already reasonable
// fused order, so every failure path falls back to that order instead of
// failing the request.
package rerank

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/answer"
	"github.com/kailas-cloud/ragdex/internal/domain/fusion"
	"github.com/kailas-cloud/ragdex/internal/metrics"
)

// DefaultMaxCandidates bounds how many candidates are sent to the
// cross-encoder. Scoring cost grows linearly with candidate count while
// gains past the top fused results do not.
const DefaultMaxCandidates = 50

// Service wraps a CrossEncoderScorer with the candidate bound and the
// fused-order fallback.
type Service struct {
	scorer        domain.CrossEncoderScorer
	maxCandidates int
	logger        *zap.Logger
}

// New creates a rerank service. A non-positive maxCandidates falls back to
// DefaultMaxCandidates.
func New(scorer domain.CrossEncoderScorer, maxCandidates int, logger *zap.Logger) *Service {
	if maxCandidates <= 0 {
		maxCandidates = DefaultMaxCandidates
	}
	return &Service{scorer: scorer, maxCandidates: maxCandidates, logger: logger}
}

// Rerank scores the fused candidates against the query and returns the top-K
// passages in cross-encoder order, positions 1-based. The boolean reports
// degradation: true means the scorer failed (or none is configured) and the
// passages are the top-K of the fused order instead, carrying fused scores.
// Given identical inputs and scores the output ordering is deterministic:
// score descending, doc ID ascending.
func (s *Service) Rerank(
	ctx context.Context, queryText string, fused []fusion.Fused, topK int,
) ([]answer.Passage, bool) {
	if len(fused) == 0 {
		return nil, false
	}
	if len(fused) > s.maxCandidates {
		fused = fused[:s.maxCandidates]
	}

	if s.scorer == nil {
		return FusedOrder(fused, topK), true
	}

	texts := make([]string, len(fused))
	for i, f := range fused {
		texts[i] = f.Content()
	}

	scores, err := s.scorer.CrossEncoderScore(ctx, queryText, texts)
	if err != nil || len(scores) != len(fused) {
		s.logger.Warn("Cross-encoder scoring failed, keeping fused order",
			zap.Int("candidates", len(fused)),
			zap.Error(err),
		)
		metrics.RerankOutcomesTotal.WithLabelValues("degraded").Inc()
		return FusedOrder(fused, topK), true
	}

	ranked := make([]scored, len(fused))
	for i, f := range fused {
		ranked[i] = scored{fused: f, score: scores[i]}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].fused.DocID() < ranked[j].fused.DocID()
	})

	if topK > 0 && len(ranked) > topK {
		ranked = ranked[:topK]
	}

	out := make([]answer.Passage, 0, len(ranked))
	for _, r := range ranked {
		p, err := answer.NewPassage(
			r.fused.DocID(), r.fused.Content(), r.fused.Tags(), r.fused.Numerics(),
			r.score, len(out)+1,
		)
		if err != nil {
			continue // unreachable for fused input, guards hydrated data
		}
		out = append(out, p)
	}

	metrics.RerankOutcomesTotal.WithLabelValues("scored").Inc()
	return out, false
}

type scored struct {
	fused fusion.Fused
	score float64
}

// FusedOrder converts the top-K of the fused list into passages with
// synthetic 1-based positions, carrying fused scores in place of
// cross-encoder scores.
func FusedOrder(fused []fusion.Fused, topK int) []answer.Passage {
	if topK > 0 && len(fused) > topK {
		fused = fused[:topK]
	}
	out := make([]answer.Passage, 0, len(fused))
	for _, f := range fused {
		p, err := answer.NewPassage(f.DocID(), f.Content(), f.Tags(), f.Numerics(), f.Score(), len(out)+1)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out
}
