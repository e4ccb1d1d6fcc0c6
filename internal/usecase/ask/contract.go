package ask

import (
	"context"
	"time"

	"github.com/kailas-cloud/ragdex/internal/domain/answer"
	"github.com/kailas-cloud/ragdex/internal/domain/base"
	domcache "github.com/kailas-cloud/ragdex/internal/domain/cache"
	"github.com/kailas-cloud/ragdex/internal/domain/fusion"
	"github.com/kailas-cloud/ragdex/internal/domain/query/filter"
	droute "github.com/kailas-cloud/ragdex/internal/domain/route"
	"github.com/kailas-cloud/ragdex/internal/usecase/expand"
	"github.com/kailas-cloud/ragdex/internal/usecase/retrieval"
)

// BaseReader lists the known knowledge bases (ISP).
type BaseReader interface {
	List(ctx context.Context) ([]base.Base, error)
}

// Router decides whether and where to retrieve. The boolean reports that the
// safe default (retrieve everywhere) was applied.
type Router interface {
	Route(ctx context.Context, queryText string, knownBases []string) (droute.Decision, bool)
}

// Expander produces weighted query variants, original first. The boolean
// reports degradation to the original-only list.
type Expander interface {
	Expand(ctx context.Context, text string) ([]expand.Variant, bool)
}

// Retriever runs the hybrid fan-out and fusion over the target bases.
type Retriever interface {
	Retrieve(
		ctx context.Context, bases []string, variants []expand.Variant,
		topK int, alpha float64, filters filter.Expression,
	) (retrieval.Result, error)
}

// Reranker orders fused candidates into final passages. The boolean reports
// fallback to the fused order.
type Reranker interface {
	Rerank(ctx context.Context, queryText string, fused []fusion.Fused, topK int) ([]answer.Passage, bool)
}

// Cache is the consumer interface for the shared response cache (ISP).
type Cache interface {
	Get(ctx context.Context, ns domcache.Namespace, key string) ([]byte, bool)
	Set(ctx context.Context, ns domcache.Namespace, key string, value []byte, ttl time.Duration, refs map[string]int)
}
