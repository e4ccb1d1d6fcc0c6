package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/config"
	"github.com/kailas-cloud/ragdex/internal/db"
	dbRedis "github.com/kailas-cloud/ragdex/internal/db/redis"
	dbValkey "github.com/kailas-cloud/ragdex/internal/db/valkey"
	"github.com/kailas-cloud/ragdex/internal/domain"
	domcache "github.com/kailas-cloud/ragdex/internal/domain/cache"
	logpkg "github.com/kailas-cloud/ragdex/internal/logger"
	"github.com/kailas-cloud/ragdex/internal/metrics"
	baserepo "github.com/kailas-cloud/ragdex/internal/repository/base"
	budgetrepo "github.com/kailas-cloud/ragdex/internal/repository/budget"
	cacherepo "github.com/kailas-cloud/ragdex/internal/repository/cache"
	documentrepo "github.com/kailas-cloud/ragdex/internal/repository/document"
	"github.com/kailas-cloud/ragdex/internal/repository/embcache"
	retrievalrepo "github.com/kailas-cloud/ragdex/internal/repository/retrieval"
	chiTransport "github.com/kailas-cloud/ragdex/internal/transport/chi"
	openaiT "github.com/kailas-cloud/ragdex/internal/transport/openai"
	askuc "github.com/kailas-cloud/ragdex/internal/usecase/ask"
	baseuc "github.com/kailas-cloud/ragdex/internal/usecase/base"
	batchuc "github.com/kailas-cloud/ragdex/internal/usecase/batch"
	documentuc "github.com/kailas-cloud/ragdex/internal/usecase/document"
	embeddinguc "github.com/kailas-cloud/ragdex/internal/usecase/embedding"
	expanduc "github.com/kailas-cloud/ragdex/internal/usecase/expand"
	healthuc "github.com/kailas-cloud/ragdex/internal/usecase/health"
	rerankuc "github.com/kailas-cloud/ragdex/internal/usecase/rerank"
	retrievaluc "github.com/kailas-cloud/ragdex/internal/usecase/retrieval"
	routeuc "github.com/kailas-cloud/ragdex/internal/usecase/route"
	usageuc "github.com/kailas-cloud/ragdex/internal/usecase/usage"
	"github.com/kailas-cloud/ragdex/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting ragdex API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	// Create database store based on driver
	var store db.Store
	switch cfg.Database.Driver {
	case "valkey":
		store, err = dbValkey.NewStore(dbValkey.Config{
			Addrs:    cfg.Database.Addrs,
			Password: cfg.Database.Password,
		})
	case "redis":
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Password: cfg.Database.Password,
		})
	default:
		logger.Fatal("Unknown database driver", zap.String("driver", cfg.Database.Driver))
	}
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	// Wait for database to be ready
	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterPipelineMetrics()
	metrics.RegisterLLMMetrics()
	metrics.RegisterHTTPMetrics()

	// Take the first vectorizer config
	var vecCfg config.VectorizerConfig
	var provName string
	for _, vc := range cfg.Embedding.Vectorizers {
		vecCfg = vc
		provName = vc.Provider
		break
	}
	provCfg := cfg.Providers[provName]

	// Single BudgetTracker shared by the embedders, chat clients and usage.
	var budget *embeddinguc.BudgetTracker
	budgetCfg := provCfg.Budget
	if budgetCfg.DailyTokenLimit > 0 || budgetCfg.MonthlyTokenLimit > 0 {
		action := embeddinguc.BudgetActionWarn
		if budgetCfg.Action == "reject" {
			action = embeddinguc.BudgetActionReject
		}
		budget = embeddinguc.NewBudgetTracker(
			provName, budgetCfg.DailyTokenLimit, budgetCfg.MonthlyTokenLimit, action, logger,
		)
		// Connect persistence store — loads current counters from DB.
		budgetStore := budgetrepo.New(store, budgetrepo.DefaultDailyTTL, budgetrepo.DefaultMonthTTL)
		budget.WithStore(ctx, budgetStore)
	}

	// Pass nil interface (not typed nil pointer!) if budget is not configured.
	// Go gotcha: (*BudgetTracker)(nil) wrapped in BudgetChecker != nil.
	var budgetChecker embeddinguc.BudgetChecker
	var usageRec openaiT.UsageRecorder
	if budget != nil {
		budgetChecker = budget
		usageRec = budget
	}

	// Create repositories (domain-native, no adapters)
	vectorDim := vecCfg.Dimensions
	if vectorDim == 0 {
		vectorDim = domain.DefaultVectorConfig().Dimensions
	}

	baseRepo := baserepo.New(store, vectorDim).WithHNSW(baserepo.HNSWConfig{
		M:           cfg.Index.HNSWM,
		EFConstruct: cfg.Index.HNSWEFConstruct,
	})
	docRepo := documentrepo.New(store)
	retrRepo := retrievalrepo.New(store)
	cacheMgr := cacherepo.New(store, docRepo, logger).WithDisabled(cfg.Cache.Disabled)

	ttl := ttlPolicy(cfg.Cache)

	docEmbedder := buildEmbedder(
		provName, provCfg, vecCfg, vecCfg.DocumentInstruction,
		cacheMgr, ttl.Embedding, budgetChecker, logger,
	)
	queryEmbedder := buildEmbedder(
		provName, provCfg, vecCfg, vecCfg.QueryInstruction,
		cacheMgr, ttl.Embedding, budgetChecker, logger,
	)
	logger.Info("Embedders created",
		zap.String("provider", provName),
		zap.String("model", vecCfg.Model),
		zap.Int("dimensions", vecCfg.Dimensions),
	)

	// Chat collaborators: generation, expansion, routing and rerank scoring.
	var generator domain.Generator
	var expander domain.QueryExpander
	var scorer domain.CrossEncoderScorer
	var classifier routeuc.Classifier
	var llmChecker healthuc.LLMChecker

	if cfg.LLM.Provider != "" {
		llmProv := cfg.Providers[cfg.LLM.Provider]

		genChat := openaiT.NewChatClient(&openaiT.ChatConfig{
			APIKey:   llmProv.APIKey,
			BaseURL:  llmProv.BaseURL,
			Model:    cfg.LLM.GenerationModel,
			Provider: cfg.LLM.Provider,
			Usage:    usageRec,
			Logger:   logger,
		})
		// Отдельный клиент под дешёвую модель: expand/route/rerank
		utilChat := openaiT.NewChatClient(&openaiT.ChatConfig{
			APIKey:   llmProv.APIKey,
			BaseURL:  llmProv.BaseURL,
			Model:    cfg.LLM.UtilityModel,
			Provider: cfg.LLM.Provider,
			Usage:    usageRec,
			Logger:   logger,
		})

		generator = openaiT.NewGenerator(genChat, "")
		expander = openaiT.NewExpander(utilChat)
		scorer = openaiT.NewCrossEncoder(utilChat)
		classifier = openaiT.NewClassifier(utilChat)
		llmChecker = utilChat

		logger.Info("LLM collaborators created",
			zap.String("provider", cfg.LLM.Provider),
			zap.String("generation_model", cfg.LLM.GenerationModel),
			zap.String("utility_model", cfg.LLM.UtilityModel),
		)
	}
	if classifier == nil || cfg.Router.UseRules {
		classifier = routeuc.NewRuleClassifier()
	}

	// Pipeline stage services
	routeSvc := routeuc.New(classifier, cfg.Router.ConfidenceThreshold, logger)
	expandSvc := expanduc.New(expander, cfg.Pipeline.NumVariants, cfg.Pipeline.VariantDecay, logger)
	retrieveSvc := retrievaluc.New(retrRepo, queryEmbedder,
		cfg.Pipeline.RRFK, cfg.Pipeline.MaxConcurrentRetrievals, logger)
	rerankSvc := rerankuc.New(scorer, cfg.Pipeline.RerankCandidates, logger)

	askSvc := askuc.New(
		baseRepo, routeSvc, expandSvc, retrieveSvc, rerankSvc, generator, cacheMgr,
		askuc.Config{
			Alpha:    cfg.Pipeline.Alpha,
			RRFK:     cfg.Pipeline.RRFK,
			Timeouts: stageTimeouts(cfg.Pipeline),
			TTL:      ttl,
		},
		logger,
	)

	docSvc := documentuc.New(docRepo, baseRepo, docEmbedder, cacheMgr).
		WithPagination(cfg.Index.DefaultPageSize, cfg.Index.MaxPageSize)
	baseSvc := baseuc.New(baseRepo, docSvc, vectorDim, logger)
	batchSvc := batchuc.New(docRepo, docRepo, baseRepo, batchCapable(docEmbedder), cacheMgr).
		WithMaxBatchSize(cfg.Index.MaxBatchSize)

	// Usage service — reads from shared BudgetTracker
	var budgetReader usageuc.BudgetReader
	if budget != nil {
		budgetReader = budget
	}
	usageSvc := usageuc.New(budgetReader, budgetCfg.CostPerMillionTokens)

	// Health service
	healthSvc := healthuc.New(store, llmChecker)

	// Create chi server
	server := chiTransport.NewServer(askSvc, baseSvc, docSvc, batchSvc, cacheMgr, usageSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instrumented -> Instruction
func buildEmbedder(
	provName string,
	provCfg config.ProviderConfig,
	vecCfg config.VectorizerConfig,
	instruction string,
	cache *cacherepo.Manager,
	ttl time.Duration,
	budget embeddinguc.BudgetChecker,
	logger *zap.Logger,
) domain.Embedder {
	// Base provider (with transport metrics built-in)
	base := openaiT.NewEmbedder(&openaiT.Config{
		APIKey:     provCfg.APIKey,
		BaseURL:    provCfg.BaseURL,
		Model:      vecCfg.Model,
		Dimensions: vecCfg.Dimensions,
		Provider:   provName,
		Logger:     logger,
	})

	// Cached
	var embedder domain.Embedder = embcache.New(base, cache, embcache.Config{
		Model:       vecCfg.Model,
		Instruction: instruction,
		TTL:         ttl,
	}, metrics.EmbeddingCacheTotal, logger)

	// Instrumented (budget + metrics)
	embedder = embeddinguc.NewInstrumentedEmbedder(
		embedder, provName, vecCfg.Model, budget, logger,
	)

	// Instruction prefix (outermost — cache key includes instruction)
	if instruction != "" {
		return domain.NewInstructionEmbedder(embedder, instruction)
	}

	return embedder
}

// batchCapable unwraps batch support from the embedder chain; the sequential
// fallback embeds one text at a time.
func batchCapable(e domain.Embedder) batchuc.BatchEmbedder {
	if be, ok := e.(batchuc.BatchEmbedder); ok {
		return be
	}
	return seqEmbedder{inner: e}
}

type seqEmbedder struct {
	inner domain.Embedder
}

func (s seqEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	return domain.BatchFallback(ctx, s.inner, texts)
}

func ttlPolicy(c config.CacheConfig) domcache.TTLPolicy {
	return domcache.TTLPolicy{
		Embedding:      time.Duration(c.EmbeddingTTLSec) * time.Second,
		Retrieval:      time.Duration(c.RetrievalTTLSec) * time.Second,
		AnswerStatic:   time.Duration(c.AnswerStaticTTLSec) * time.Second,
		AnswerDefault:  time.Duration(c.AnswerDefaultTTLSec) * time.Second,
		AnswerVolatile: time.Duration(c.AnswerVolatileTTLSec) * time.Second,
	}
}

func stageTimeouts(p config.PipelineConfig) askuc.Timeouts {
	return askuc.Timeouts{
		Route:    time.Duration(p.RouteTimeoutSec) * time.Second,
		Expand:   time.Duration(p.ExpandTimeoutSec) * time.Second,
		Retrieve: time.Duration(p.RetrieveTimeoutSec) * time.Second,
		Rerank:   time.Duration(p.RerankTimeoutSec) * time.Second,
		Generate: time.Duration(p.GenerateTimeoutSec) * time.Second,
		Overall:  time.Duration(p.OverallTimeoutSec) * time.Second,
	}
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
