package batch

import (
	"context"

	"github.com/kailas-cloud/ragdex/internal/domain"
	dombase "github.com/kailas-cloud/ragdex/internal/domain/base"
	domdoc "github.com/kailas-cloud/ragdex/internal/domain/document"
)

// DocumentUpserter writes one document at its next version.
type DocumentUpserter interface {
	Upsert(ctx context.Context, baseName string, doc *domdoc.Document, expectedVersion int) (version int, err error)
}

// DocumentDeleter removes a document, returning the version it held.
type DocumentDeleter interface {
	Delete(ctx context.Context, baseName, id string) (lastVersion int, err error)
}

// BaseReader reads knowledge bases for existence and schema checks.
type BaseReader interface {
	Get(ctx context.Context, name string) (dombase.Base, error)
}

// BatchEmbedder vectorizes many texts in a single provider call.
type BatchEmbedder interface {
	BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error)
}

// Invalidator drops cache entries tagged with a document whose version moved.
type Invalidator interface {
	OnVersionBump(ctx context.Context, baseName, docID string, oldVersion int) int
}
