// Package retrieval runs the hybrid fan-out: every query variant against the
// lexical and vector index of every target base, concurrently, then fuses the
// rankings into one candidate list. A single dead source degrades the result;
// only all sources dead at once fails it.
package retrieval

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/candidate"
	"github.com/kailas-cloud/ragdex/internal/domain/fusion"
	"github.com/kailas-cloud/ragdex/internal/domain/query/filter"
	"github.com/kailas-cloud/ragdex/internal/metrics"
	"github.com/kailas-cloud/ragdex/internal/usecase/expand"
)

// DefaultMaxConcurrency caps parallel variant retrieval so a wide expansion
// cannot stampede the index backend.
const DefaultMaxConcurrency = 5

// Result is the outcome of one hybrid retrieval. Fused doc IDs are qualified
// refs ("base/doc_id"), so documents from different bases never collide.
// Degraded lists the sources ("lexical", "vector") that had failures but were
// compensated by the other.
type Result struct {
	Fused    []fusion.Fused
	Degraded []string
}

// Service fans retrieval out over variants, bases and sources.
type Service struct {
	searcher       Searcher
	embedder       Embedder
	rrfK           int
	maxConcurrency int
	logger         *zap.Logger
}

// New creates a retrieval service. Non-positive rrfK and maxConcurrency fall
// back to fusion.DefaultK and DefaultMaxConcurrency.
func New(searcher Searcher, embedder Embedder, rrfK, maxConcurrency int, logger *zap.Logger) *Service {
	if rrfK <= 0 {
		rrfK = fusion.DefaultK
	}
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultMaxConcurrency
	}
	return &Service{
		searcher:       searcher,
		embedder:       embedder,
		rrfK:           rrfK,
		maxConcurrency: maxConcurrency,
		logger:         logger,
	}
}

// Retrieve runs every variant over every base, fuses per variant with the
// alpha split (vector weight = alpha), then merges across variants with the
// variant weights. Returns ErrRetrievalFailed only when every source leg
// failed, and ErrNoResults when every leg ran clean and matched nothing.
func (s *Service) Retrieve(
	ctx context.Context, bases []string, variants []expand.Variant,
	topK int, alpha float64, filters filter.Expression,
) (Result, error) {
	if len(bases) == 0 {
		return Result{}, fmt.Errorf("retrieve: no target bases")
	}
	if len(variants) == 0 {
		return Result{}, fmt.Errorf("retrieve: no query variants")
	}

	lexicalOK := s.searcher.SupportsTextSearch(ctx)
	lexWeight, vecWeight := fusion.HybridWeights(alpha)

	variantLists := make([]fusion.VariantList, len(variants))
	tallies := make([]tally, len(variants))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(len(variants), s.maxConcurrency))
	for i, v := range variants {
		i, v := i, v
		g.Go(func() error {
			items, t := s.retrieveVariant(gctx, bases, v.Text, topK, lexWeight, vecWeight, filters, lexicalOK)
			variantLists[i] = fusion.VariantList{Weight: v.Weight, Items: items}
			tallies[i] = t
			return nil // source failures degrade, they never abort the group
		})
	}
	_ = g.Wait()

	var total tally
	for _, t := range tallies {
		total.lexLegs += t.lexLegs
		total.lexFailed += t.lexFailed
		total.vecLegs += t.vecLegs
		total.vecFailed += t.vecFailed
	}

	if total.lexFailed+total.vecFailed == total.lexLegs+total.vecLegs {
		return Result{}, fmt.Errorf("all retrieval sources failed: %w", domain.ErrRetrievalFailed)
	}

	merged := fusion.Merge(variantLists, s.rrfK)
	if len(merged) == 0 {
		// With failures in the mix an empty result proves nothing; only a
		// clean empty sweep means the corpus has no match.
		if total.lexFailed+total.vecFailed > 0 {
			return Result{}, fmt.Errorf("retrieval incomplete with no candidates: %w", domain.ErrRetrievalFailed)
		}
		return Result{}, domain.ErrNoResults
	}

	var degraded []string
	if total.lexFailed > 0 || !lexicalOK {
		degraded = append(degraded, "lexical")
	}
	if total.vecFailed > 0 {
		degraded = append(degraded, "vector")
	}

	s.logger.Debug("Hybrid retrieval complete",
		zap.Int("variants", len(variants)),
		zap.Int("bases", len(bases)),
		zap.Int("fused", len(merged)),
		zap.Strings("degraded", degraded),
	)
	return Result{Fused: merged, Degraded: degraded}, nil
}

// tally counts source legs per variant. A leg is one (base, source) search;
// legs that could not run (embedding down) count as failed.
type tally struct {
	lexLegs, lexFailed int
	vecLegs, vecFailed int
}

type leg struct {
	baseName string
	source   candidate.Source
}

// retrieveVariant embeds one variant, runs its legs concurrently and fuses
// the per-leg rankings with the alpha weights.
func (s *Service) retrieveVariant(
	ctx context.Context, bases []string, text string,
	topK int, lexWeight, vecWeight float64, filters filter.Expression, lexicalOK bool,
) ([]fusion.Fused, tally) {
	var t tally

	var vector []float32
	emb, err := s.embedder.Embed(ctx, text)
	if err != nil || len(emb.Embedding) == 0 {
		// Lexical legs still run; the variant just loses its vector side.
		s.logger.Warn("Variant embedding failed, skipping vector legs",
			zap.Error(err),
		)
		t.vecLegs += len(bases)
		t.vecFailed += len(bases)
	} else {
		vector = emb.Embedding
		domain.UsageFromContext(ctx).AddTokens(emb.TotalTokens)
	}

	var legs []leg
	for _, baseName := range bases {
		if lexicalOK {
			legs = append(legs, leg{baseName, candidate.Lexical})
		}
		if vector != nil {
			legs = append(legs, leg{baseName, candidate.Vector})
		}
	}

	items := make([][]candidate.Candidate, len(legs))
	errs := make([]error, len(legs))

	var wg sync.WaitGroup
	for i, l := range legs {
		i, l := i, l
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch l.source {
			case candidate.Lexical:
				items[i], errs[i] = s.searcher.SearchLexical(ctx, l.baseName, text, topK, filters)
			case candidate.Vector:
				items[i], errs[i] = s.searcher.SearchVector(ctx, l.baseName, vector, topK, filters)
			}
		}()
	}
	wg.Wait()

	lists := make([]fusion.List, 0, len(legs))
	for i, l := range legs {
		weight := vecWeight
		if l.source == candidate.Lexical {
			weight = lexWeight
			t.lexLegs++
		} else {
			t.vecLegs++
		}

		if errs[i] != nil {
			if l.source == candidate.Lexical {
				t.lexFailed++
			} else {
				t.vecFailed++
			}
			metrics.RetrievalSourceErrorsTotal.WithLabelValues(string(l.source)).Inc()
			s.logger.Warn("Retrieval source failed",
				zap.String("base", l.baseName),
				zap.String("source", string(l.source)),
				zap.Error(errs[i]),
			)
			continue
		}

		metrics.RetrievalCandidatesTotal.WithLabelValues(string(l.source)).Add(float64(len(items[i])))
		lists = append(lists, fusion.List{Weight: weight, Items: qualify(l.baseName, items[i])})
	}

	return fusion.Fuse(lists, s.rrfK), t
}

// qualify rewrites candidate doc IDs into base-qualified refs.
func qualify(baseName string, items []candidate.Candidate) []candidate.Candidate {
	out := make([]candidate.Candidate, 0, len(items))
	for _, c := range items {
		qc, err := candidate.New(domain.DocRef(baseName, c.DocID()), c.Source(), c.Rank(), c.RawScore())
		if err != nil {
			continue
		}
		out = append(out, qc.WithPayload(c.Content(), c.Version(), c.Tags(), c.Numerics()))
	}
	return out
}
