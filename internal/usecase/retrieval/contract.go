package retrieval

import (
	"context"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/candidate"
	"github.com/kailas-cloud/ragdex/internal/domain/query/filter"
)

// Searcher defines the index contract for retrieval operations. An empty
// candidate list with nil error means the index matched nothing; backend
// failures wrap domain.ErrIndexUnavailable.
type Searcher interface {
	SearchLexical(
		ctx context.Context, baseName string,
		text string, topK int, filters filter.Expression,
	) ([]candidate.Candidate, error)

	SearchVector(
		ctx context.Context, baseName string,
		vector []float32, topK int, filters filter.Expression,
	) ([]candidate.Candidate, error)

	SupportsTextSearch(ctx context.Context) bool
}

// Embedder vectorizes variant text for the vector legs.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
