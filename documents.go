package ragdex

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/ragdex/internal/domain"
	dombatch "github.com/kailas-cloud/ragdex/internal/domain/batch"
	domdoc "github.com/kailas-cloud/ragdex/internal/domain/document"
	"github.com/kailas-cloud/ragdex/internal/domain/document/patch"
	batchuc "github.com/kailas-cloud/ragdex/internal/usecase/batch"
	documentuc "github.com/kailas-cloud/ragdex/internal/usecase/document"
)

// Document is a knowledge base document.
type Document struct {
	ID      string
	Content string
	// Version is assigned by the store on every write; ignored on input.
	Version  int
	Tags     map[string]string
	Numerics map[string]float64
}

// DocumentPatch is a partial document update.
// Nil fields are unchanged. A nil value in Tags/Numerics means delete that key.
type DocumentPatch struct {
	Content  *string
	Tags     map[string]*string
	Numerics map[string]*float64
}

// BatchResult is the outcome of one item in a batch operation. Version is
// the version the write landed at (or the last version a delete removed).
type BatchResult struct {
	ID      string
	OK      bool
	Version int
	Err     error
}

// ListResult is a paginated list of documents.
type ListResult struct {
	Documents  []Document
	NextCursor string
}

// DocumentService manages documents within a single knowledge base.
type DocumentService struct {
	base     string
	docSvc   *documentuc.Service
	batchSvc *batchuc.Service
}

// Upsert creates or updates a document, vectorizing its content. Returns the
// created flag and the version the write landed at. Cache entries built from
// the previous version are dropped.
func (s *DocumentService) Upsert(ctx context.Context, doc Document) (bool, int, error) {
	return s.upsert(ctx, doc, domain.SkipVersionCheck)
}

// UpsertIfVersion is Upsert with optimistic concurrency: the write only
// happens when the stored version equals expectedVersion (0 = the document
// must not exist yet). A mismatch fails with ErrVersionConflict.
func (s *DocumentService) UpsertIfVersion(
	ctx context.Context, doc Document, expectedVersion int,
) (bool, int, error) {
	if expectedVersion < 0 {
		return false, 0, fmt.Errorf("upsert: expected version must be >= 0")
	}
	return s.upsert(ctx, doc, expectedVersion)
}

func (s *DocumentService) upsert(ctx context.Context, doc Document, expectedVersion int) (bool, int, error) {
	d, err := toInternalDocument(doc)
	if err != nil {
		return false, 0, fmt.Errorf("upsert: %w", err)
	}
	created, version, err := s.docSvc.Upsert(ctx, s.base, &d, expectedVersion)
	if err != nil {
		return false, 0, fmt.Errorf("upsert: %w", err)
	}
	return created, version, nil
}

// Get retrieves a document by ID.
func (s *DocumentService) Get(ctx context.Context, id string) (Document, error) {
	d, err := s.docSvc.Get(ctx, s.base, id)
	if err != nil {
		return Document{}, fmt.Errorf("get document: %w", err)
	}
	return fromInternalDocument(d), nil
}

// List returns a paginated list of documents.
func (s *DocumentService) List(
	ctx context.Context, cursor string, limit int,
) (ListResult, error) {
	docs, next, err := s.docSvc.List(ctx, s.base, cursor, limit)
	if err != nil {
		return ListResult{}, fmt.Errorf("list documents: %w", err)
	}
	out := make([]Document, len(docs))
	for i, d := range docs {
		out[i] = fromInternalDocument(d)
	}
	return ListResult{Documents: out, NextCursor: next}, nil
}

// Delete removes a document by ID and drops the cache entries built from it.
func (s *DocumentService) Delete(ctx context.Context, id string) error {
	if err := s.docSvc.Delete(ctx, s.base, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// Patch applies a partial update, re-vectorizing when the content changes.
func (s *DocumentService) Patch(
	ctx context.Context, id string, p DocumentPatch,
) (Document, error) {
	dp, err := toInternalPatch(p)
	if err != nil {
		return Document{}, fmt.Errorf("patch: %w", err)
	}
	d, err := s.docSvc.Patch(ctx, s.base, id, dp, domain.SkipVersionCheck)
	if err != nil {
		return Document{}, fmt.Errorf("patch: %w", err)
	}
	return fromInternalDocument(d), nil
}

// Count returns the number of documents in the base.
func (s *DocumentService) Count(ctx context.Context) (int, error) {
	n, err := s.docSvc.Count(ctx, s.base)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// BatchUpsert creates or updates documents in batch: one embedding call for
// all contents, per-item write status.
func (s *DocumentService) BatchUpsert(
	ctx context.Context, docs []Document,
) ([]BatchResult, error) {
	items := make([]domdoc.Document, len(docs))
	for i, d := range docs {
		var err error
		items[i], err = toInternalDocument(d)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
	}
	results := s.batchSvc.Upsert(ctx, s.base, items)
	return fromBatchResults(results), nil
}

// BatchDelete removes documents by IDs.
func (s *DocumentService) BatchDelete(
	ctx context.Context, ids []string,
) []BatchResult {
	results := s.batchSvc.Delete(ctx, s.base, ids)
	return fromBatchResults(results)
}

func toInternalDocument(d Document) (domdoc.Document, error) {
	doc, err := domdoc.New(d.ID, d.Content, d.Tags, d.Numerics)
	if err != nil {
		return domdoc.Document{}, fmt.Errorf("validate document: %w", err)
	}
	return doc, nil
}

func fromInternalDocument(d domdoc.Document) Document {
	return Document{
		ID:       d.ID(),
		Content:  d.Content(),
		Version:  d.Version(),
		Tags:     d.Tags(),
		Numerics: d.Numerics(),
	}
}

func toInternalPatch(p DocumentPatch) (patch.Patch, error) {
	pp, err := patch.New(p.Content, p.Tags, p.Numerics)
	if err != nil {
		return patch.Patch{}, fmt.Errorf("validate patch: %w", err)
	}
	return pp, nil
}

func fromBatchResults(results []dombatch.Result) []BatchResult {
	out := make([]BatchResult, len(results))
	for i, r := range results {
		out[i] = BatchResult{
			ID:      r.ID(),
			OK:      r.Status() == dombatch.StatusOK,
			Version: r.Version(),
			Err:     r.Err(),
		}
	}
	return out
}
