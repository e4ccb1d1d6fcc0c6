package batch

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/base/field"
	dombatch "github.com/kailas-cloud/ragdex/internal/domain/batch"
	domdoc "github.com/kailas-cloud/ragdex/internal/domain/document"
)

// MaxBatchSize is the maximum number of items per batch request.
const MaxBatchSize = 100

// Service handles batch document operations with per-item error reporting.
// Content is vectorized through one batch embedding call for the whole
// request; writes and invalidations then happen per item.
type Service struct {
	docs         DocumentUpserter
	del          DocumentDeleter
	bases        BaseReader
	embed        BatchEmbedder
	inv          Invalidator
	maxBatchSize int
}

// New creates a batch service. inv may be nil when cache invalidation is
// not wired.
func New(
	docs DocumentUpserter, del DocumentDeleter,
	bases BaseReader, embed BatchEmbedder, inv Invalidator,
) *Service {
	return &Service{
		docs: docs, del: del,
		bases: bases, embed: embed, inv: inv,
		maxBatchSize: MaxBatchSize,
	}
}

// WithMaxBatchSize configures the maximum batch size.
func (s *Service) WithMaxBatchSize(size int) *Service {
	if size > 0 {
		s.maxBatchSize = size
	}
	return s
}

// Upsert creates or updates documents in batch.
func (s *Service) Upsert(ctx context.Context, baseName string, items []domdoc.Document) []dombatch.Result {
	results := make([]dombatch.Result, len(items))

	if len(items) > s.maxBatchSize {
		for i, item := range items {
			results[i] = dombatch.NewError(
				item.ID(),
				fmt.Errorf("batch size exceeds %d: %w", s.maxBatchSize, domain.ErrInvalidSchema),
			)
		}
		return results
	}

	b, err := s.bases.Get(ctx, baseName)
	if err != nil {
		for i, item := range items {
			results[i] = dombatch.NewError(item.ID(), fmt.Errorf("get base: %w", err))
		}
		return results
	}

	fieldTypes := make(map[string]field.Type)
	for _, f := range b.Fields() {
		fieldTypes[f.Name()] = f.FieldType()
	}

	// Validate up front; only valid items go to the embedding provider.
	valid := make([]int, 0, len(items))
	texts := make([]string, 0, len(items))
	for i := range items {
		if err := validateItemFields(&items[i], fieldTypes); err != nil {
			results[i] = dombatch.NewError(items[i].ID(), err)
			continue
		}
		valid = append(valid, i)
		texts = append(texts, items[i].Content())
	}
	if len(valid) == 0 {
		return results
	}

	embedded, err := s.embed.BatchEmbed(ctx, texts)
	if err != nil {
		for _, i := range valid {
			results[i] = dombatch.NewError(items[i].ID(), fmt.Errorf("vectorize: %w", err))
		}
		return results
	}
	domain.UsageFromContext(ctx).AddTokens(embedded.TotalTokens)

	if len(embedded.Embeddings) != len(valid) {
		for _, i := range valid {
			results[i] = dombatch.NewError(
				items[i].ID(),
				fmt.Errorf("embedding count mismatch: got %d, want %d: %w",
					len(embedded.Embeddings), len(valid), domain.ErrEmbeddingUnavailable),
			)
		}
		return results
	}

	for j, i := range valid {
		// Empty vectors pass through: no provider wired, lexical-only write.
		vec := embedded.Embeddings[j]
		if len(vec) > 0 && b.VectorDim() > 0 && len(vec) != b.VectorDim() {
			results[i] = dombatch.NewError(
				items[i].ID(),
				fmt.Errorf("vector dimension mismatch: got %d, want %d: %w",
					len(vec), b.VectorDim(), domain.ErrVectorDimMismatch),
			)
			continue
		}
		items[i].SetVector(vec)

		version, err := s.docs.Upsert(ctx, baseName, &items[i], domain.SkipVersionCheck)
		if err != nil {
			results[i] = dombatch.NewError(items[i].ID(), fmt.Errorf("upsert: %w", err))
			continue
		}
		s.invalidate(ctx, baseName, items[i].ID(), version-1)
		results[i] = dombatch.NewOK(items[i].ID(), version)
	}

	return results
}

// Delete removes documents by ID in batch.
func (s *Service) Delete(ctx context.Context, baseName string, ids []string) []dombatch.Result {
	results := make([]dombatch.Result, len(ids))

	if len(ids) > s.maxBatchSize {
		for i, id := range ids {
			results[i] = dombatch.NewError(id, fmt.Errorf("batch size exceeds %d: %w", s.maxBatchSize, domain.ErrInvalidSchema))
		}
		return results
	}

	if _, err := s.bases.Get(ctx, baseName); err != nil {
		for i, id := range ids {
			results[i] = dombatch.NewError(id, fmt.Errorf("get base: %w", err))
		}
		return results
	}

	for i, id := range ids {
		lastVersion, err := s.del.Delete(ctx, baseName, id)
		if err != nil {
			results[i] = dombatch.NewError(id, fmt.Errorf("delete: %w", err))
			continue
		}
		s.invalidate(ctx, baseName, id, lastVersion)
		results[i] = dombatch.NewOK(id, lastVersion)
	}

	return results
}

func (s *Service) invalidate(ctx context.Context, baseName, docID string, oldVersion int) {
	if s.inv == nil {
		return
	}
	s.inv.OnVersionBump(ctx, baseName, docID, oldVersion)
}

func validateItemFields(doc *domdoc.Document, fieldTypes map[string]field.Type) error {
	for k := range doc.Tags() {
		ft, ok := fieldTypes[k]
		if !ok {
			return fmt.Errorf("unknown field %q: %w", k, domain.ErrInvalidSchema)
		}
		if ft != field.Tag {
			return fmt.Errorf("field %q is %s, not tag: %w", k, ft, domain.ErrInvalidSchema)
		}
	}
	for k := range doc.Numerics() {
		ft, ok := fieldTypes[k]
		if !ok {
			return fmt.Errorf("unknown field %q: %w", k, domain.ErrInvalidSchema)
		}
		if ft != field.Numeric {
			return fmt.Errorf("field %q is %s, not numeric: %w", k, ft, domain.ErrInvalidSchema)
		}
	}
	return nil
}
