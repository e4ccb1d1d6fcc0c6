package ragdex

import (
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/usecase/route"
)

// Option configures the Client.
type Option func(*clientConfig)

type clientConfig struct {
	driver   string // "valkey" or "redis"
	addrs    []string
	password string

	openaiKey     string
	openaiBaseURL string

	embeddingModel      string
	vectorDimensions    int
	documentInstruction string
	queryInstruction    string

	generationModel string
	utilityModel    string

	alpha               float64
	rrfK                int
	numVariants         int
	variantDecay        float64
	maxConcurrency      int
	rerankCandidates    int
	confidenceThreshold float64

	dailyTokenLimit   int64
	monthlyTokenLimit int64
	budgetReject      bool

	hnswM           int
	hnswEFConstruct int
	maxBatchSize    int
	cacheDisabled   bool

	logger *zap.Logger
}

// defaultClientConfig seeds the tunables so options only override.
func defaultClientConfig() *clientConfig {
	pipe := domain.DefaultPipelineConfig()
	vec := domain.DefaultVectorConfig()
	return &clientConfig{
		embeddingModel:      vec.Model,
		vectorDimensions:    vec.Dimensions,
		documentInstruction: vec.DocumentInstruction,
		queryInstruction:    vec.QueryInstruction,
		alpha:               pipe.Alpha,
		rrfK:                pipe.RRFK,
		numVariants:         pipe.NumVariants,
		variantDecay:        pipe.VariantDecay,
		maxConcurrency:      pipe.MaxConcurrentRetrievals,
		rerankCandidates:    pipe.RerankCandidates,
		confidenceThreshold: route.DefaultConfidenceThreshold,
		logger:              zap.NewNop(),
	}
}

// WithValkey configures the client to connect to a Valkey instance with the
// valkey-search module.
func WithValkey(addr, password string) Option {
	return func(c *clientConfig) {
		c.driver = "valkey"
		c.addrs = []string{addr}
		c.password = password
	}
}

// WithRedis configures the client to connect to a Redis 8+ instance.
func WithRedis(addr, password string) Option {
	return func(c *clientConfig) {
		c.driver = "redis"
		c.addrs = []string{addr}
		c.password = password
	}
}

// WithOpenAI configures the OpenAI-compatible provider behind the embedder
// and the chat collaborators (generation, expansion, routing, rerank
// scoring). Without it the client runs rule-routed, lexical-only and answers
// extractively.
func WithOpenAI(apiKey, baseURL string) Option {
	return func(c *clientConfig) {
		c.openaiKey = apiKey
		c.openaiBaseURL = baseURL
	}
}

// WithEmbeddingModel overrides the embedding model and vector dimensions.
// Defaults to Qwen3-Embedding-8B at 1024 dimensions.
func WithEmbeddingModel(model string, dimensions int) Option {
	return func(c *clientConfig) {
		if model != "" {
			c.embeddingModel = model
		}
		if dimensions > 0 {
			c.vectorDimensions = dimensions
		}
	}
}

// WithChatModels overrides the chat models: generation answers questions,
// utility handles expansion, routing and rerank scoring.
func WithChatModels(generation, utility string) Option {
	return func(c *clientConfig) {
		if generation != "" {
			c.generationModel = generation
		}
		if utility != "" {
			c.utilityModel = utility
		}
	}
}

// WithAlpha sets the vector weight in hybrid fusion: weight_vector = alpha,
// weight_lexical = 1 - alpha. Must be within [0, 1]; out-of-range values are
// ignored.
func WithAlpha(alpha float64) Option {
	return func(c *clientConfig) {
		if alpha >= 0 && alpha <= 1 {
			c.alpha = alpha
		}
	}
}

// WithRRFK sets the reciprocal-rank-fusion smoothing constant. Default 60.
func WithRRFK(k int) Option {
	return func(c *clientConfig) {
		if k > 0 {
			c.rrfK = k
		}
	}
}

// WithExpansion sets how many query variants are generated beyond the
// original and their geometric weight decay. n = 0 disables expansion;
// decay <= 0 keeps the default 0.7.
func WithExpansion(n int, decay float64) Option {
	return func(c *clientConfig) {
		c.numVariants = n
		if decay > 0 && decay <= 1 {
			c.variantDecay = decay
		}
	}
}

// WithBudget caps provider token consumption per UTC day and month
// (0 = unlimited). When reject is true, requests over budget fail instead of
// logging a warning.
func WithBudget(dailyTokens, monthlyTokens int64, reject bool) Option {
	return func(c *clientConfig) {
		c.dailyTokenLimit = dailyTokens
		c.monthlyTokenLimit = monthlyTokens
		c.budgetReject = reject
	}
}

// WithHNSW configures HNSW index parameters for newly created bases.
// Defaults: M=32, EFConstruct=400.
func WithHNSW(m, efConstruct int) Option {
	return func(c *clientConfig) {
		c.hnswM = m
		c.hnswEFConstruct = efConstruct
	}
}

// WithMaxBatchSize sets the maximum number of items per batch operation.
// Default: 100.
func WithMaxBatchSize(size int) Option {
	return func(c *clientConfig) {
		c.maxBatchSize = size
	}
}

// WithoutCache disables the embedding, retrieval and answer caches. Every
// request computes fresh; invalidation hooks become no-ops.
func WithoutCache() Option {
	return func(c *clientConfig) {
		c.cacheDisabled = true
	}
}

// WithLogger enables structured logging for pipeline operations.
// Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *clientConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithExpansionDecayDisabled is a convenience for equal-weight variant
// fusion: every variant counts the same as the original query.
func WithExpansionDecayDisabled() Option {
	return func(c *clientConfig) {
		c.variantDecay = 1.0
	}
}
