package document

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/ragdex/internal/domain"
	dombase "github.com/kailas-cloud/ragdex/internal/domain/base"
	"github.com/kailas-cloud/ragdex/internal/domain/base/field"
	domdoc "github.com/kailas-cloud/ragdex/internal/domain/document"
	"github.com/kailas-cloud/ragdex/internal/domain/document/patch"
)

// Service handles document CRUD with automatic vectorization, optimistic
// concurrency and proactive cache invalidation on every accepted write.
type Service struct {
	repo            Repository
	bases           BaseReader
	embedder        Embedder
	inv             Invalidator
	defaultPageSize int
	maxPageSize     int
}

// New creates a document service. inv may be nil when cache invalidation is
// not wired.
func New(repo Repository, bases BaseReader, embedder Embedder, inv Invalidator) *Service {
	return &Service{
		repo:            repo,
		bases:           bases,
		embedder:        embedder,
		inv:             inv,
		defaultPageSize: 20,
		maxPageSize:     100,
	}
}

// WithPagination configures page size limits.
func (s *Service) WithPagination(defaultPageSize, maxPageSize int) *Service {
	if defaultPageSize > 0 {
		s.defaultPageSize = defaultPageSize
	}
	if maxPageSize > 0 {
		s.maxPageSize = maxPageSize
	}
	return s
}

// Upsert creates or updates a document with automatic vectorization.
// Returns the created flag and the version the write landed at. The cache
// entries tagged with the document are dropped after the write succeeds.
func (s *Service) Upsert(
	ctx context.Context, baseName string, doc *domdoc.Document, expectedVersion int,
) (bool, int, error) {
	b, err := s.bases.Get(ctx, baseName)
	if err != nil {
		return false, 0, fmt.Errorf("get base: %w", err)
	}

	if err := validateSchemaFields(keysStr(doc.Tags()), keysFloat(doc.Numerics()), b.Fields()); err != nil {
		return false, 0, err
	}

	result, err := s.embedder.Embed(ctx, doc.Content())
	if err != nil {
		return false, 0, fmt.Errorf("vectorize document: %w", err)
	}

	domain.UsageFromContext(ctx).AddTokens(result.TotalTokens)

	// An empty embedding means no vector provider is wired: the document is
	// stored lexical-only and never enters the vector index.
	if len(result.Embedding) > 0 {
		if err := checkDim(len(result.Embedding), b); err != nil {
			return false, 0, err
		}
		doc.SetVector(result.Embedding)
	}

	version, err := s.repo.Upsert(ctx, baseName, doc, expectedVersion)
	if err != nil {
		return false, 0, fmt.Errorf("upsert document: %w", err)
	}

	s.invalidate(ctx, baseName, doc.ID(), version-1)
	return version == 1, version, nil
}

// Get retrieves a document by base and ID.
func (s *Service) Get(ctx context.Context, baseName, id string) (domdoc.Document, error) {
	if _, err := s.bases.Get(ctx, baseName); err != nil {
		return domdoc.Document{}, fmt.Errorf("get base: %w", err)
	}

	doc, err := s.repo.Get(ctx, baseName, id)
	if err != nil {
		return domdoc.Document{}, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

// List returns a paginated list of documents.
func (s *Service) List(
	ctx context.Context, baseName, cursor string, limit int,
) ([]domdoc.Document, string, error) {
	if _, err := s.bases.Get(ctx, baseName); err != nil {
		return nil, "", fmt.Errorf("get base: %w", err)
	}

	if limit <= 0 {
		limit = s.defaultPageSize
	}
	if limit > s.maxPageSize {
		limit = s.maxPageSize
	}

	docs, nextCursor, err := s.repo.List(ctx, baseName, cursor, limit)
	if err != nil {
		return nil, "", fmt.Errorf("list documents: %w", err)
	}
	return docs, nextCursor, nil
}

// Delete removes a document and drops the cache entries tagged with its
// last stored version.
func (s *Service) Delete(ctx context.Context, baseName, id string) error {
	if _, err := s.bases.Get(ctx, baseName); err != nil {
		return fmt.Errorf("get base: %w", err)
	}

	lastVersion, err := s.repo.Delete(ctx, baseName, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}

	s.invalidate(ctx, baseName, id, lastVersion)
	return nil
}

// Patch applies a partial update to a document, re-vectorizing when the
// content changes, and returns the updated document at its new version.
func (s *Service) Patch(
	ctx context.Context, baseName, id string, p patch.Patch, expectedVersion int,
) (domdoc.Document, error) {
	b, err := s.bases.Get(ctx, baseName)
	if err != nil {
		return domdoc.Document{}, fmt.Errorf("get base: %w", err)
	}

	if err := validateSchemaFields(keysPtrStr(p.Tags()), keysPtrFloat(p.Numerics()), b.Fields()); err != nil {
		return domdoc.Document{}, err
	}

	var newVector []float32
	if p.HasContent() {
		result, embedErr := s.embedder.Embed(ctx, *p.Content())
		if embedErr != nil {
			return domdoc.Document{}, fmt.Errorf("vectorize updated content: %w", embedErr)
		}
		domain.UsageFromContext(ctx).AddTokens(result.TotalTokens)
		if len(result.Embedding) > 0 {
			if err := checkDim(len(result.Embedding), b); err != nil {
				return domdoc.Document{}, err
			}
			newVector = result.Embedding
		}
	}

	version, err := s.repo.Patch(ctx, baseName, id, p, newVector, expectedVersion)
	if err != nil {
		return domdoc.Document{}, fmt.Errorf("patch document: %w", err)
	}

	s.invalidate(ctx, baseName, id, version-1)

	updated, err := s.repo.Get(ctx, baseName, id)
	if err != nil {
		return domdoc.Document{}, fmt.Errorf("get patched document: %w", err)
	}
	return updated, nil
}

// Count returns the number of documents in a base.
func (s *Service) Count(ctx context.Context, baseName string) (int, error) {
	if _, err := s.bases.Get(ctx, baseName); err != nil {
		return 0, fmt.Errorf("get base: %w", err)
	}
	count, err := s.repo.Count(ctx, baseName)
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return count, nil
}

func (s *Service) invalidate(ctx context.Context, baseName, docID string, oldVersion int) {
	if s.inv == nil {
		return
	}
	s.inv.OnVersionBump(ctx, baseName, docID, oldVersion)
}

func checkDim(got int, b dombase.Base) error {
	if b.VectorDim() > 0 && got != b.VectorDim() {
		return fmt.Errorf(
			"vector dimension mismatch: got %d, want %d: %w",
			got, b.VectorDim(), domain.ErrVectorDimMismatch,
		)
	}
	return nil
}

func validateSchemaFields(tagKeys, numericKeys []string, fields []field.Field) error {
	fieldTypes := make(map[string]field.Type)
	for _, f := range fields {
		fieldTypes[f.Name()] = f.FieldType()
	}

	for _, k := range tagKeys {
		ft, ok := fieldTypes[k]
		if !ok {
			return fmt.Errorf(
				"unknown field %q (not in base schema): %w",
				k, domain.ErrInvalidSchema,
			)
		}
		if ft != field.Tag {
			return fmt.Errorf(
				"field %q is %s, not tag: %w",
				k, ft, domain.ErrInvalidSchema,
			)
		}
	}

	for _, k := range numericKeys {
		ft, ok := fieldTypes[k]
		if !ok {
			return fmt.Errorf(
				"unknown field %q (not in base schema): %w",
				k, domain.ErrInvalidSchema,
			)
		}
		if ft != field.Numeric {
			return fmt.Errorf(
				"field %q is %s, not numeric: %w",
				k, ft, domain.ErrInvalidSchema,
			)
		}
	}

	return nil
}

func keysStr(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func keysFloat(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func keysPtrStr(m map[string]*string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func keysPtrFloat(m map[string]*float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
