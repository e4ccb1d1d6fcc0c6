package document

import (
	"context"

	"github.com/kailas-cloud/ragdex/internal/domain"
	dombase "github.com/kailas-cloud/ragdex/internal/domain/base"
	domdoc "github.com/kailas-cloud/ragdex/internal/domain/document"
	"github.com/kailas-cloud/ragdex/internal/domain/document/patch"
)

// Repository defines the storage contract for versioned documents. Write
// methods take an expected version for optimistic concurrency; pass
// domain.SkipVersionCheck to write unconditionally. They return the version
// the write landed at (Delete returns the version the document held).
type Repository interface {
	Upsert(ctx context.Context, baseName string, doc *domdoc.Document, expectedVersion int) (version int, err error)
	Get(ctx context.Context, baseName, id string) (domdoc.Document, error)
	List(ctx context.Context, baseName, cursor string, limit int) (
		docs []domdoc.Document, nextCursor string, err error,
	)
	Delete(ctx context.Context, baseName, id string) (lastVersion int, err error)
	Patch(ctx context.Context, baseName, id string, p patch.Patch, newVector []float32, expectedVersion int) (
		version int, err error,
	)
	Count(ctx context.Context, baseName string) (int, error)
}

// BaseReader reads knowledge bases for existence and schema validation.
type BaseReader interface {
	Get(ctx context.Context, name string) (dombase.Base, error)
}

// Embedder vectorizes text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Invalidator drops cache entries tagged with a document whose version
// moved, returning how many entries it dropped.
type Invalidator interface {
	OnVersionBump(ctx context.Context, baseName, docID string, oldVersion int) int
}
