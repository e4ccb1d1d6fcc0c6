package embcache

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	domcache "github.com/kailas-cloud/ragdex/internal/domain/cache"
)

// manager is the consumer interface for the shared cache (ISP).
type manager interface {
	Get(ctx context.Context, ns domcache.Namespace, key string) ([]byte, bool)
	Set(ctx context.Context, ns domcache.Namespace, key string, value []byte, ttl time.Duration, refs map[string]int)
}

// Config identifies the vector space for key derivation and sets entry TTL.
// Model and instruction are part of the cache key: the same text embedded
// under a different model or instruction is a different vector.
type Config struct {
	Model       string
	Instruction string
	TTL         time.Duration
}

// CachedEmbedder serves embeddings from the embedding cache namespace before
// calling the provider. Vectors are stored as raw little-endian float32.
type CachedEmbedder struct {
	inner       domain.Embedder
	cache       manager
	model       string
	instruction string
	ttl         time.Duration
	cacheTotal  *prometheus.CounterVec
	logger      *zap.Logger
}

// New creates a caching decorator.
// cacheTotal is a counter vec with label "result" ("hit"/"miss"), passed explicitly.
func New(
	inner domain.Embedder,
	cache manager,
	cfg Config,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *CachedEmbedder {
	return &CachedEmbedder{
		inner:       inner,
		cache:       cache,
		model:       cfg.Model,
		instruction: cfg.Instruction,
		ttl:         cfg.TTL,
		cacheTotal:  cacheTotal,
		logger:      logger,
	}
}

// Embed returns a cached embedding or calls the inner embedder.
// Cache hit: TotalTokens = 0 (no real tokens consumed).
// Cache miss: full EmbeddingResult from inner.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	key := domcache.EmbeddingKey(text, c.model, c.instruction)

	if data, ok := c.cache.Get(ctx, domcache.NamespaceEmbedding, key); ok {
		vec, err := bytesToVector(data)
		if err == nil {
			c.incCache("hit")
			return domain.EmbeddingResult{Embedding: vec}, nil
		}
		c.logger.Warn("Failed to parse cached embedding", zap.String("key", key), zap.Error(err))
	}

	c.incCache("miss")

	result, err := c.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", err)
	}

	c.cache.Set(ctx, domcache.NamespaceEmbedding, key, vectorToCacheBytes(result.Embedding), c.ttl, nil)
	return result, nil
}

// BatchEmbed resolves each text through the cache and embeds only the misses
// in a single inner call. Token usage reflects the misses alone.
func (c *CachedEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	embeddings := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var missIdx []int

	for i, text := range texts {
		keys[i] = domcache.EmbeddingKey(text, c.model, c.instruction)
		if data, ok := c.cache.Get(ctx, domcache.NamespaceEmbedding, keys[i]); ok {
			vec, err := bytesToVector(data)
			if err == nil {
				c.incCache("hit")
				embeddings[i] = vec
				continue
			}
			c.logger.Warn("Failed to parse cached embedding", zap.String("key", keys[i]), zap.Error(err))
		}
		c.incCache("miss")
		missIdx = append(missIdx, i)
	}

	if len(missIdx) == 0 {
		return domain.BatchEmbeddingResult{Embeddings: embeddings}, nil
	}

	missTexts := make([]string, len(missIdx))
	for j, i := range missIdx {
		missTexts[j] = texts[i]
	}

	res, err := c.embedBatch(ctx, missTexts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed misses: %w", err)
	}
	if len(res.Embeddings) != len(missIdx) {
		return domain.BatchEmbeddingResult{}, fmt.Errorf(
			"batch embed returned %d vectors for %d texts", len(res.Embeddings), len(missIdx))
	}

	for j, i := range missIdx {
		embeddings[i] = res.Embeddings[j]
		c.cache.Set(ctx, domcache.NamespaceEmbedding, keys[i], vectorToCacheBytes(res.Embeddings[j]), c.ttl, nil)
	}

	return domain.BatchEmbeddingResult{
		Embeddings:   embeddings,
		PromptTokens: res.PromptTokens,
		TotalTokens:  res.TotalTokens,
	}, nil
}

func (c *CachedEmbedder) embedBatch(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if be, ok := c.inner.(domain.BatchEmbedder); ok {
		return be.BatchEmbed(ctx, texts)
	}
	return domain.BatchFallback(ctx, c.inner, texts)
}

func (c *CachedEmbedder) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

func vectorToCacheBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) ([]float32, error) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding cache data: len=%d (not multiple of 4)", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
