// Package ragdex provides an embedded client for the ragdex retrieval
// pipeline: hybrid search with RRF fusion, LLM re-ranking and versioned
// caching over Valkey or Redis, without going through the HTTP API.
//
//	client, _ := ragdex.New(
//	    ragdex.WithValkey("localhost:6379", ""),
//	    ragdex.WithOpenAI(os.Getenv("OPENAI_API_KEY"), "https://api.openai.com/v1"),
//	)
//	defer client.Close()
//
//	client.Bases().Ensure(ctx, "runbooks", ragdex.WithContentClass(ragdex.ClassStatic))
//	client.Documents("runbooks").Upsert(ctx, ragdex.Document{ID: "pod-crash", Content: "..."})
//	ans, _ := client.Ask(ctx, "why is the pod crashlooping?", nil)
//
// Without WithOpenAI the client still runs: routing falls back to rules,
// retrieval is lexical-only and answers are extracted passages.
package ragdex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/db"
	dbRedis "github.com/kailas-cloud/ragdex/internal/db/redis"
	dbValkey "github.com/kailas-cloud/ragdex/internal/db/valkey"
	"github.com/kailas-cloud/ragdex/internal/domain"
	domcache "github.com/kailas-cloud/ragdex/internal/domain/cache"
	"github.com/kailas-cloud/ragdex/internal/metrics"
	baserepo "github.com/kailas-cloud/ragdex/internal/repository/base"
	budgetrepo "github.com/kailas-cloud/ragdex/internal/repository/budget"
	cacherepo "github.com/kailas-cloud/ragdex/internal/repository/cache"
	documentrepo "github.com/kailas-cloud/ragdex/internal/repository/document"
	"github.com/kailas-cloud/ragdex/internal/repository/embcache"
	retrievalrepo "github.com/kailas-cloud/ragdex/internal/repository/retrieval"
	openaiT "github.com/kailas-cloud/ragdex/internal/transport/openai"
	askuc "github.com/kailas-cloud/ragdex/internal/usecase/ask"
	baseuc "github.com/kailas-cloud/ragdex/internal/usecase/base"
	batchuc "github.com/kailas-cloud/ragdex/internal/usecase/batch"
	documentuc "github.com/kailas-cloud/ragdex/internal/usecase/document"
	embeddinguc "github.com/kailas-cloud/ragdex/internal/usecase/embedding"
	expanduc "github.com/kailas-cloud/ragdex/internal/usecase/expand"
	rerankuc "github.com/kailas-cloud/ragdex/internal/usecase/rerank"
	retrievaluc "github.com/kailas-cloud/ragdex/internal/usecase/retrieval"
	routeuc "github.com/kailas-cloud/ragdex/internal/usecase/route"
)

const (
	defaultReadinessTimeout = 10 * time.Second

	defaultProvider        = "openai"
	defaultGenerationModel = "Qwen3-32B"
	defaultUtilityModel    = "Qwen3-8B"
)

// Client is the ragdex embedded entry point.
type Client struct {
	store    db.Store
	cache    *cacherepo.Manager
	askSvc   *askuc.Service
	baseSvc  *baseuc.Service
	docSvc   *documentuc.Service
	batchSvc *batchuc.Service
}

// New creates a ragdex Client and connects to the database.
func New(opts ...Option) (*Client, error) {
	cfg := defaultClientConfig()
	for _, o := range opts {
		o(cfg)
	}

	if len(cfg.addrs) == 0 {
		return nil, errors.New("ragdex: database address required (use WithValkey or WithRedis)")
	}

	store, err := createStore(cfg)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("ragdex: database not ready: %w", err)
	}

	return wireClient(ctx, store, cfg)
}

func createStore(cfg *clientConfig) (db.Store, error) {
	switch cfg.driver {
	case "valkey":
		s, err := dbValkey.NewStore(dbValkey.Config{
			Addrs:    cfg.addrs,
			Password: cfg.password,
		})
		if err != nil {
			return nil, fmt.Errorf("ragdex: create valkey store: %w", err)
		}
		return s, nil
	case "redis":
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.addrs,
			Password: cfg.password,
		})
		if err != nil {
			return nil, fmt.Errorf("ragdex: create redis store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("ragdex: unknown driver %q", cfg.driver)
	}
}

func wireClient(ctx context.Context, store db.Store, cfg *clientConfig) (*Client, error) {
	logger := cfg.logger

	baseRepo := baserepo.New(store, cfg.vectorDimensions)
	if cfg.hnswM > 0 || cfg.hnswEFConstruct > 0 {
		baseRepo = baseRepo.WithHNSW(baserepo.HNSWConfig{
			M:           cfg.hnswM,
			EFConstruct: cfg.hnswEFConstruct,
		})
	}
	docRepo := documentrepo.New(store)
	retrRepo := retrievalrepo.New(store)
	cacheMgr := cacherepo.New(store, docRepo, logger).WithDisabled(cfg.cacheDisabled)

	// Single BudgetTracker shared by the embedders, chat client and usage.
	var budget *embeddinguc.BudgetTracker
	if cfg.dailyTokenLimit > 0 || cfg.monthlyTokenLimit > 0 {
		action := embeddinguc.BudgetActionWarn
		if cfg.budgetReject {
			action = embeddinguc.BudgetActionReject
		}
		budget = embeddinguc.NewBudgetTracker(
			defaultProvider, cfg.dailyTokenLimit, cfg.monthlyTokenLimit, action, logger,
		)
		budget.WithStore(ctx, budgetrepo.New(store, budgetrepo.DefaultDailyTTL, budgetrepo.DefaultMonthTTL))
	}

	// Pass nil interface (not typed nil pointer!) if budget is not configured.
	// Go gotcha: (*BudgetTracker)(nil) wrapped in BudgetChecker != nil.
	var budgetChecker embeddinguc.BudgetChecker
	var usage openaiT.UsageRecorder
	if budget != nil {
		budgetChecker = budget
		usage = budget
	}

	ttl := domcache.DefaultTTLPolicy()

	// Collaborators: real when an OpenAI-compatible provider is configured,
	// noop/rule fallbacks otherwise.
	var docEmbedder, queryEmbedder domain.Embedder
	var generator domain.Generator
	var expander domain.QueryExpander
	var scorer domain.CrossEncoderScorer
	var classifier routeuc.Classifier

	if cfg.openaiKey != "" || cfg.openaiBaseURL != "" {
		docEmbedder = buildEmbedder(cfg, cfg.documentInstruction, cacheMgr, ttl.Embedding, budgetChecker, logger)
		queryEmbedder = buildEmbedder(cfg, cfg.queryInstruction, cacheMgr, ttl.Embedding, budgetChecker, logger)

		genModel := cfg.generationModel
		if genModel == "" {
			genModel = defaultGenerationModel
		}
		utilModel := cfg.utilityModel
		if utilModel == "" {
			utilModel = defaultUtilityModel
		}

		genChat := openaiT.NewChatClient(&openaiT.ChatConfig{
			APIKey:   cfg.openaiKey,
			BaseURL:  cfg.openaiBaseURL,
			Model:    genModel,
			Provider: defaultProvider,
			Usage:    usage,
			Logger:   logger,
		})
		// Отдельный клиент под дешёвую модель: expand/route/rerank
		utilChat := openaiT.NewChatClient(&openaiT.ChatConfig{
			APIKey:   cfg.openaiKey,
			BaseURL:  cfg.openaiBaseURL,
			Model:    utilModel,
			Provider: defaultProvider,
			Usage:    usage,
			Logger:   logger,
		})

		generator = openaiT.NewGenerator(genChat, "")
		expander = openaiT.NewExpander(utilChat)
		scorer = openaiT.NewCrossEncoder(utilChat)
		classifier = openaiT.NewClassifier(utilChat)
	} else {
		noop := noopEmbedder{}
		docEmbedder = noop
		queryEmbedder = noop
		classifier = routeuc.NewRuleClassifier()
	}

	routeSvc := routeuc.New(classifier, cfg.confidenceThreshold, logger)
	expandSvc := expanduc.New(expander, cfg.numVariants, cfg.variantDecay, logger)
	retrieveSvc := retrievaluc.New(retrRepo, queryEmbedder, cfg.rrfK, cfg.maxConcurrency, logger)
	rerankSvc := rerankuc.New(scorer, cfg.rerankCandidates, logger)

	askSvc := askuc.New(
		baseRepo, routeSvc, expandSvc, retrieveSvc, rerankSvc, generator, cacheMgr,
		askuc.Config{Alpha: cfg.alpha, RRFK: cfg.rrfK, TTL: ttl},
		logger,
	)

	docSvc := documentuc.New(docRepo, baseRepo, docEmbedder, cacheMgr)
	baseSvc := baseuc.New(baseRepo, docSvc, cfg.vectorDimensions, logger)
	batchSvc := batchuc.New(docRepo, docRepo, baseRepo, asBatchEmbedder(docEmbedder), cacheMgr)
	if cfg.maxBatchSize > 0 {
		batchSvc = batchSvc.WithMaxBatchSize(cfg.maxBatchSize)
	}

	return &Client{
		store:    store,
		cache:    cacheMgr,
		askSvc:   askSvc,
		baseSvc:  baseSvc,
		docSvc:   docSvc,
		batchSvc: batchSvc,
	}, nil
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instrumented -> Instruction
func buildEmbedder(
	cfg *clientConfig,
	instruction string,
	cache *cacherepo.Manager,
	ttl time.Duration,
	budget embeddinguc.BudgetChecker,
	logger *zap.Logger,
) domain.Embedder {
	base := openaiT.NewEmbedder(&openaiT.Config{
		APIKey:     cfg.openaiKey,
		BaseURL:    cfg.openaiBaseURL,
		Model:      cfg.embeddingModel,
		Dimensions: cfg.vectorDimensions,
		Provider:   defaultProvider,
		Logger:     logger,
	})

	var embedder domain.Embedder = embcache.New(base, cache, embcache.Config{
		Model:       cfg.embeddingModel,
		Instruction: instruction,
		TTL:         ttl,
	}, metrics.EmbeddingCacheTotal, logger)

	embedder = embeddinguc.NewInstrumentedEmbedder(
		embedder, defaultProvider, cfg.embeddingModel, budget, logger,
	)

	// Instruction prefix (outermost — cache key includes instruction)
	if instruction != "" {
		return domain.NewInstructionEmbedder(embedder, instruction)
	}

	return embedder
}

// Close releases all resources.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
}

// Ping checks database connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Bases returns the knowledge base management service.
func (c *Client) Bases() *BaseService {
	return &BaseService{svc: c.baseSvc}
}

// Documents returns the document service for a given base.
func (c *Client) Documents(base string) *DocumentService {
	return &DocumentService{
		base:     base,
		docSvc:   c.docSvc,
		batchSvc: c.batchSvc,
	}
}

// Invalidate drops every cache entry tagged with the given document and
// returns how many entries were removed.
func (c *Client) Invalidate(ctx context.Context, base, docID string) int {
	return c.cache.Invalidate(ctx, base, docID)
}

// asBatchEmbedder unwraps batch support from the embedder chain; the
// sequential fallback covers chains without it.
func asBatchEmbedder(e domain.Embedder) batchuc.BatchEmbedder {
	if be, ok := e.(batchuc.BatchEmbedder); ok {
		return be
	}
	return seqBatchEmbedder{inner: e}
}

type seqBatchEmbedder struct {
	inner domain.Embedder
}

func (s seqBatchEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	return domain.BatchFallback(ctx, s.inner, texts)
}

// noopEmbedder produces empty embeddings (used when no provider is
// configured). Writes land lexical-only; vector retrieval legs are skipped.
type noopEmbedder struct{}

func (noopEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{}, nil
}

func (noopEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	return domain.BatchEmbeddingResult{Embeddings: make([][]float32, len(texts))}, nil
}
