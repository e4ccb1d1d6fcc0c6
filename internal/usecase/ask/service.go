// Package ask orchestrates the answer pipeline: routing, cache lookups, query
// expansion, hybrid retrieval, reranking and generation. Every stage runs
// under its own timeout inside one overall deadline; soft stages degrade in
// place, and only base resolution, retrieval collapse and direct generation
// can fail the request.
package ask

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/answer"
	"github.com/kailas-cloud/ragdex/internal/domain/base"
	domcache "github.com/kailas-cloud/ragdex/internal/domain/cache"
	"github.com/kailas-cloud/ragdex/internal/domain/fusion"
	"github.com/kailas-cloud/ragdex/internal/domain/query"
	"github.com/kailas-cloud/ragdex/internal/domain/query/filter"
	droute "github.com/kailas-cloud/ragdex/internal/domain/route"
	"github.com/kailas-cloud/ragdex/internal/metrics"
	"github.com/kailas-cloud/ragdex/internal/usecase/expand"
	"github.com/kailas-cloud/ragdex/internal/usecase/rerank"
	"github.com/kailas-cloud/ragdex/internal/usecase/retrieval"
)

// Timeouts bounds each pipeline stage plus the request as a whole. The
// overall deadline wins: when it expires the remaining stages are skipped and
// the answer is returned partial instead of hanging.
type Timeouts struct {
	Route    time.Duration
	Expand   time.Duration
	Retrieve time.Duration
	Rerank   time.Duration
	Generate time.Duration
	Overall  time.Duration
}

// DefaultTimeouts returns the default stage budgets.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Route:    2 * time.Second,
		Expand:   3 * time.Second,
		Retrieve: 5 * time.Second,
		Rerank:   5 * time.Second,
		Generate: 10 * time.Second,
		Overall:  15 * time.Second,
	}
}

// Config tunes the pipeline. Alpha is the vector weight in hybrid fusion.
// RRFK is part of the retrieval cache key and must match the retriever's
// fusion constant, or cached and freshly computed lists would diverge.
type Config struct {
	Alpha    float64
	RRFK     int
	Timeouts Timeouts
	TTL      domcache.TTLPolicy
}

// Service runs one ask request end to end.
type Service struct {
	bases     BaseReader
	router    Router
	expander  Expander
	retriever Retriever
	reranker  Reranker
	generator domain.Generator
	cache     Cache
	cfg       Config
	logger    *zap.Logger
}

// New creates the ask orchestrator. A nil generator degrades every answer to
// extractive; zero config fields fall back to defaults.
func New(
	bases BaseReader,
	router Router,
	expander Expander,
	retriever Retriever,
	reranker Reranker,
	generator domain.Generator,
	cache Cache,
	cfg Config,
	logger *zap.Logger,
) *Service {
	if cfg.RRFK <= 0 {
		cfg.RRFK = fusion.DefaultK
	}
	d := DefaultTimeouts()
	if cfg.Timeouts.Route <= 0 {
		cfg.Timeouts.Route = d.Route
	}
	if cfg.Timeouts.Expand <= 0 {
		cfg.Timeouts.Expand = d.Expand
	}
	if cfg.Timeouts.Retrieve <= 0 {
		cfg.Timeouts.Retrieve = d.Retrieve
	}
	if cfg.Timeouts.Rerank <= 0 {
		cfg.Timeouts.Rerank = d.Rerank
	}
	if cfg.Timeouts.Generate <= 0 {
		cfg.Timeouts.Generate = d.Generate
	}
	if cfg.Timeouts.Overall <= 0 {
		cfg.Timeouts.Overall = d.Overall
	}
	if cfg.TTL == (domcache.TTLPolicy{}) {
		cfg.TTL = domcache.DefaultTTLPolicy()
	}
	return &Service{
		bases:     bases,
		router:    router,
		expander:  expander,
		retriever: retriever,
		reranker:  reranker,
		generator: generator,
		cache:     cache,
		cfg:       cfg,
		logger:    logger,
	}
}

// Ask answers one query. Degraded and partial outcomes return a flagged
// answer with a nil error; ErrBaseNotFound, ErrRetrievalFailed, ErrNoResults
// and direct-generation failures are the only error returns.
func (s *Service) Ask(ctx context.Context, q query.Query) (answer.Answer, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeouts.Overall)
	defer cancel()

	known, classes, err := s.resolveBases(ctx, q.Bases())
	if err != nil {
		metrics.PipelineRequestsTotal.WithLabelValues("error").Inc()
		return answer.Answer{}, err
	}

	decision, routeDegraded := s.routeStage(ctx, q.Text(), known)
	if !decision.NeedsRetrieval() {
		return s.answerDirect(ctx, q.Text(), decision.Reasoning())
	}

	targets := decision.TargetBases()
	if len(targets) == 0 {
		targets = known
	}
	if len(targets) == 0 {
		metrics.PipelineRequestsTotal.WithLabelValues("error").Inc()
		return answer.Answer{}, fmt.Errorf("no knowledge bases configured: %w", domain.ErrNoResults)
	}

	var degraded []string
	if routeDegraded {
		degraded = append(degraded, answer.StageRoute)
	}

	alpha := s.cfg.Alpha
	if q.Alpha() != nil {
		alpha = *q.Alpha()
	}

	answerKey := domcache.AnswerKey(targets, q.Text())
	if q.NoCache() {
		metrics.CacheOperationsTotal.WithLabelValues(string(domcache.NamespaceAnswer), "bypass").Inc()
	} else if a, ok := s.cachedAnswer(ctx, answerKey); ok {
		metrics.PipelineRequestsTotal.WithLabelValues("ok").Inc()
		return a, nil
	}

	retrievalKey := domcache.RetrievalKey(
		targets, q.Text(), q.TopK(), q.Filters().Fingerprint(), alpha, s.cfg.RRFK)

	var fused []fusion.Fused
	var cachedRetrieval bool
	if q.NoCache() {
		metrics.CacheOperationsTotal.WithLabelValues(string(domcache.NamespaceRetrieval), "bypass").Inc()
	} else {
		fused, cachedRetrieval = s.cachedFused(ctx, retrievalKey)
	}

	if !cachedRetrieval {
		variants, expandDegraded := s.expandStage(ctx, q.Text())
		if expandDegraded {
			degraded = append(degraded, answer.StageExpand)
		}

		result, err := s.retrieveStage(ctx, targets, variants, q.TopK(), alpha, q.Filters())
		if err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return s.finishPartial(nil, nil, q.TopK(), false, degraded,
					[]string{answer.StageRerank, answer.StageGenerate})
			}
			metrics.PipelineStageErrorsTotal.WithLabelValues(answer.StageRetrieve, "fatal").Inc()
			metrics.PipelineRequestsTotal.WithLabelValues("error").Inc()
			return answer.Answer{}, err
		}
		fused = result.Fused
		degraded = append(degraded, result.Degraded...)

		// Repopulated even on a no-cache request, so the next one warms up.
		s.cacheFused(ctx, retrievalKey, fused)
	}

	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.Canceled) {
			metrics.PipelineRequestsTotal.WithLabelValues("error").Inc()
			return answer.Answer{}, err
		}
		return s.finishPartial(fused, nil, q.TopK(), false, degraded,
			[]string{answer.StageRerank, answer.StageGenerate})
	}

	passages, rerankDegraded := s.rerankStage(ctx, q.Text(), fused, q.TopK())
	if rerankDegraded {
		degraded = append(degraded, answer.StageRerank)
	}

	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.Canceled) {
			metrics.PipelineRequestsTotal.WithLabelValues("error").Inc()
			return answer.Answer{}, err
		}
		return s.finishPartial(fused, passages, q.TopK(), !rerankDegraded, degraded,
			[]string{answer.StageGenerate})
	}

	text, genDegraded := s.generateStage(ctx, q.Text(), passages)
	if genDegraded {
		degraded = append(degraded, answer.StageGenerate)
	}

	a := answer.New(text, passages)
	if rerankDegraded {
		a = a.WithoutRerank()
	}
	for _, stage := range degraded {
		a = a.WithDegradedStage(stage)
	}
	a = a.WithSourceVersions(passageVersions(fused, passages))

	// An extractive stopgap is not worth serving for a full TTL; only clean
	// generations enter the answer cache.
	if !genDegraded {
		s.cacheAnswer(ctx, answerKey, a, s.answerTTL(targets, classes))
	}

	metrics.PipelineRequestsTotal.WithLabelValues("ok").Inc()
	return a, nil
}

// resolveBases validates explicitly requested bases against the store, or
// falls back to every known base. The class map drives the answer-cache TTL.
func (s *Service) resolveBases(ctx context.Context, requested []string) ([]string, map[string]base.ContentClass, error) {
	all, err := s.bases.List(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list bases: %w", err)
	}

	classes := make(map[string]base.ContentClass, len(all))
	names := make([]string, 0, len(all))
	for _, b := range all {
		names = append(names, b.Name())
		classes[b.Name()] = b.ContentClass()
	}

	if len(requested) == 0 {
		return names, classes, nil
	}
	for _, name := range requested {
		if _, ok := classes[name]; !ok {
			return nil, nil, fmt.Errorf("base %q: %w", name, domain.ErrBaseNotFound)
		}
	}
	return requested, classes, nil
}

// answerDirect generates without retrieval. There is no extractive fallback
// here, so generation failure is the request's failure.
func (s *Service) answerDirect(ctx context.Context, question, reasoning string) (answer.Answer, error) {
	sctx, cancel := context.WithTimeout(ctx, s.cfg.Timeouts.Generate)
	defer cancel()
	defer stageTimer(answer.StageGenerate)()

	if s.generator == nil {
		metrics.PipelineRequestsTotal.WithLabelValues("error").Inc()
		return answer.Answer{}, fmt.Errorf("direct answer: %w", domain.ErrGenerationUnavailable)
	}

	result, err := s.generator.Generate(sctx, question)
	if err != nil {
		metrics.PipelineStageErrorsTotal.WithLabelValues(answer.StageGenerate, "fatal").Inc()
		metrics.PipelineRequestsTotal.WithLabelValues("error").Inc()
		return answer.Answer{}, fmt.Errorf("direct answer: %w", err)
	}

	s.logger.Debug("Answered without retrieval", zap.String("reasoning", reasoning))
	metrics.PipelineRequestsTotal.WithLabelValues("ok").Inc()
	return answer.New(result.Text, nil).WithoutRetrieval(), nil
}

func (s *Service) routeStage(ctx context.Context, text string, known []string) (droute.Decision, bool) {
	sctx, cancel := context.WithTimeout(ctx, s.cfg.Timeouts.Route)
	defer cancel()
	defer stageTimer(answer.StageRoute)()

	decision, degraded := s.router.Route(sctx, text, known)
	if degraded {
		metrics.PipelineStageErrorsTotal.WithLabelValues(answer.StageRoute, "degraded").Inc()
	}
	return decision, degraded
}

func (s *Service) expandStage(ctx context.Context, text string) ([]expand.Variant, bool) {
	sctx, cancel := context.WithTimeout(ctx, s.cfg.Timeouts.Expand)
	defer cancel()
	defer stageTimer(answer.StageExpand)()

	variants, degraded := s.expander.Expand(sctx, text)
	if degraded {
		metrics.PipelineStageErrorsTotal.WithLabelValues(answer.StageExpand, "degraded").Inc()
	}
	return variants, degraded
}

func (s *Service) retrieveStage(
	ctx context.Context, targets []string, variants []expand.Variant,
	topK int, alpha float64, filters filter.Expression,
) (retrieval.Result, error) {
	sctx, cancel := context.WithTimeout(ctx, s.cfg.Timeouts.Retrieve)
	defer cancel()
	defer stageTimer(answer.StageRetrieve)()

	return s.retriever.Retrieve(sctx, targets, variants, topK, alpha, filters)
}

func (s *Service) rerankStage(ctx context.Context, text string, fused []fusion.Fused, topK int) ([]answer.Passage, bool) {
	sctx, cancel := context.WithTimeout(ctx, s.cfg.Timeouts.Rerank)
	defer cancel()
	defer stageTimer(answer.StageRerank)()

	passages, degraded := s.reranker.Rerank(sctx, text, fused, topK)
	if degraded {
		metrics.PipelineStageErrorsTotal.WithLabelValues(answer.StageRerank, "degraded").Inc()
	}
	return passages, degraded
}

// generateStage produces the answer text, falling back to the top passage
// verbatim when generation is unavailable.
func (s *Service) generateStage(ctx context.Context, question string, passages []answer.Passage) (string, bool) {
	sctx, cancel := context.WithTimeout(ctx, s.cfg.Timeouts.Generate)
	defer cancel()
	defer stageTimer(answer.StageGenerate)()

	if s.generator == nil {
		metrics.PipelineStageErrorsTotal.WithLabelValues(answer.StageGenerate, "degraded").Inc()
		return extractive(passages), true
	}

	result, err := s.generator.Generate(sctx, buildPrompt(question, passages))
	if err != nil {
		s.logger.Warn("Generation failed, answering extractively", zap.Error(err))
		metrics.PipelineStageErrorsTotal.WithLabelValues(answer.StageGenerate, "degraded").Inc()
		return extractive(passages), true
	}
	return result.Text, false
}

// finishPartial wraps up once the overall deadline has expired: whatever is
// ranked so far becomes the answer, with the never-run stages listed as
// skipped. Partial answers are not cached.
func (s *Service) finishPartial(
	fused []fusion.Fused, passages []answer.Passage, topK int,
	reranked bool, degraded, skipped []string,
) (answer.Answer, error) {
	for _, stage := range skipped {
		metrics.PipelineStageErrorsTotal.WithLabelValues(stage, "skipped").Inc()
	}
	if passages == nil {
		passages = rerank.FusedOrder(fused, topK)
	}

	a := answer.New(extractive(passages), passages)
	if !reranked {
		a = a.WithoutRerank()
	}
	for _, stage := range degraded {
		a = a.WithDegradedStage(stage)
	}
	a = a.WithSourceVersions(passageVersions(fused, passages)).AsPartial(skipped)

	s.logger.Warn("Overall deadline expired, returning partial answer",
		zap.Int("passages", len(passages)),
		zap.Strings("skipped", skipped))
	metrics.PipelineRequestsTotal.WithLabelValues("partial").Inc()
	return a, nil
}

// cachedAnswer decodes an answer-cache hit. Decode failures degrade to a miss.
func (s *Service) cachedAnswer(ctx context.Context, key string) (answer.Answer, bool) {
	data, ok := s.cache.Get(ctx, domcache.NamespaceAnswer, key)
	if !ok {
		return answer.Answer{}, false
	}
	a, err := decodeAnswer(data)
	if err != nil {
		s.logger.Warn("Ignoring undecodable cached answer", zap.Error(err))
		return answer.Answer{}, false
	}
	s.logger.Debug("Answer cache hit")
	return a.FromCache(), true
}

func (s *Service) cacheAnswer(ctx context.Context, key string, a answer.Answer, ttl time.Duration) {
	data, err := encodeAnswer(a)
	if err != nil {
		s.logger.Warn("Failed to encode answer for cache", zap.Error(err))
		return
	}
	s.cache.Set(ctx, domcache.NamespaceAnswer, key, data, ttl, a.SourceVersions())
}

// cachedFused decodes a retrieval-cache hit, letting the pipeline jump
// straight to reranking.
func (s *Service) cachedFused(ctx context.Context, key string) ([]fusion.Fused, bool) {
	data, ok := s.cache.Get(ctx, domcache.NamespaceRetrieval, key)
	if !ok {
		return nil, false
	}
	fused, err := decodeFused(data)
	if err != nil || len(fused) == 0 {
		s.logger.Warn("Ignoring undecodable cached retrieval", zap.Error(err))
		return nil, false
	}
	s.logger.Debug("Retrieval cache hit", zap.Int("fused", len(fused)))
	return fused, true
}

// cacheFused stores the fused list tagged with every contributing document
// version, so any document change invalidates it.
func (s *Service) cacheFused(ctx context.Context, key string, fused []fusion.Fused) {
	data, err := encodeFused(fused)
	if err != nil {
		s.logger.Warn("Failed to encode retrieval result for cache", zap.Error(err))
		return
	}
	refs := make(map[string]int, len(fused))
	for _, f := range fused {
		refs[f.DocID()] = f.Version()
	}
	s.cache.Set(ctx, domcache.NamespaceRetrieval, key, data, s.cfg.TTL.Retrieval, refs)
}

// answerTTL picks the answer-cache lifetime: the most volatile target base
// bounds the whole answer.
func (s *Service) answerTTL(targets []string, classes map[string]base.ContentClass) time.Duration {
	var ttl time.Duration
	for _, name := range targets {
		t := s.cfg.TTL.AnswerTTL(classes[name])
		if ttl == 0 || t < ttl {
			ttl = t
		}
	}
	if ttl == 0 {
		ttl = s.cfg.TTL.AnswerTTL(base.ClassDefault)
	}
	return ttl
}

// passageVersions maps each passage's doc ref to the version observed at
// retrieval time. This set tags the answer-cache entry.
func passageVersions(fused []fusion.Fused, passages []answer.Passage) map[string]int {
	byRef := make(map[string]int, len(fused))
	for _, f := range fused {
		byRef[f.DocID()] = f.Version()
	}
	versions := make(map[string]int, len(passages))
	for _, p := range passages {
		if v, ok := byRef[p.DocID()]; ok {
			versions[p.DocID()] = v
		}
	}
	return versions
}

// stageTimer observes a stage duration when the returned func runs.
func stageTimer(stage string) func() {
	start := time.Now()
	return func() {
		metrics.PipelineStageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}
