package embcache

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	domcache "github.com/kailas-cloud/ragdex/internal/domain/cache"
)

type mockEmbedder struct {
	result      domain.EmbeddingResult
	err         error
	batchResult domain.BatchEmbeddingResult
	batchErr    error
	batchCalls  int
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	return m.result, m.err
}

func (m *mockEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	m.batchCalls++
	if m.batchErr != nil {
		return domain.BatchEmbeddingResult{}, m.batchErr
	}
	if m.batchResult.Embeddings != nil {
		return m.batchResult, nil
	}
	// Авто-генерация
	embeddings := make([][]float32, len(texts))
	for i := range texts {
		embeddings[i] = m.result.Embedding
	}
	return domain.BatchEmbeddingResult{
		Embeddings:   embeddings,
		PromptTokens: m.result.PromptTokens * len(texts),
		TotalTokens:  m.result.TotalTokens * len(texts),
	}, nil
}

// mockManager implements the consumer interface for tests.
type mockManager struct {
	getFn func(ctx context.Context, ns domcache.Namespace, key string) ([]byte, bool)
	setFn func(ctx context.Context, ns domcache.Namespace, key string, value []byte, ttl time.Duration, refs map[string]int)
}

func (m *mockManager) Get(ctx context.Context, ns domcache.Namespace, key string) ([]byte, bool) {
	if m.getFn != nil {
		return m.getFn(ctx, ns, key)
	}
	return nil, false
}

func (m *mockManager) Set(ctx context.Context, ns domcache.Namespace, key string, value []byte, ttl time.Duration, refs map[string]int) {
	if m.setFn != nil {
		m.setFn(ctx, ns, key, value, ttl, refs)
	}
}

func newTestCachedEmbedder(t *testing.T, inner *mockEmbedder) (*CachedEmbedder, *mockManager) {
	t.Helper()
	mm := &mockManager{}
	cfg := Config{Model: "test-model", Instruction: "query", TTL: 7 * 24 * time.Hour}
	ce := New(inner, mm, cfg, nil, zap.NewNop())
	return ce, mm
}
