package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/kailas-cloud/ragdex/internal/db"
	"github.com/kailas-cloud/ragdex/internal/domain"
	domdoc "github.com/kailas-cloud/ragdex/internal/domain/document"
	"github.com/kailas-cloud/ragdex/internal/domain/document/patch"
)

// store is the consumer interface for documents (ISP).
type store interface {
	JSONSet(ctx context.Context, key, path string, data []byte) error
	JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error)
	Del(ctx context.Context, key string) error
	SearchList(ctx context.Context, index, query string, offset, limit int, fields []string) (*db.SearchResult, error)
	SearchCount(ctx context.Context, index, query string) (int, error)
}

// Repo implements usecase/document.Repository.
type Repo struct {
	store store
}

// New creates a document repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// Upsert writes a document and returns the version it was stored at.
// The stored version is always currentVersion+1 (1 for a new document).
// expectedVersion >= 0 enables optimistic concurrency: a mismatch against
// the current version fails with a VersionConflictError and writes nothing.
func (r *Repo) Upsert(
	ctx context.Context, baseName string, doc *domdoc.Document, expectedVersion int,
) (int, error) {
	current, err := r.CurrentVersion(ctx, baseName, doc.ID())
	if err != nil {
		return 0, fmt.Errorf("current version %s: %w", doc.ID(), err)
	}
	if expectedVersion >= 0 && expectedVersion != current {
		return 0, domain.NewVersionConflict(current)
	}

	versioned := doc.WithVersion(current + 1)
	data, err := json.Marshal(buildJSONDoc(&versioned))
	if err != nil {
		return 0, fmt.Errorf("marshal document: %w", err)
	}

	key := docKey(baseName, doc.ID())
	if err := r.store.JSONSet(ctx, key, "$", data); err != nil {
		return 0, fmt.Errorf("json.set %s: %w", key, err)
	}

	return versioned.Version(), nil
}

// Get returns a document by ID.
func (r *Repo) Get(ctx context.Context, baseName, id string) (domdoc.Document, error) {
	key := docKey(baseName, id)
	raw, err := r.store.JSONGet(ctx, key, "$")
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domdoc.Document{}, domain.ErrDocumentNotFound
		}
		return domdoc.Document{}, fmt.Errorf("json.get %s: %w", key, err)
	}
	return parseJSONGetResult(id, raw)
}

// CurrentVersion returns the stored version of a document, 0 when the
// document does not exist. Reads only $.__version, not the full document.
func (r *Repo) CurrentVersion(ctx context.Context, baseName, id string) (int, error) {
	key := docKey(baseName, id)
	raw, err := r.store.JSONGet(ctx, key, "$.__version")
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("json.get version %s: %w", key, err)
	}
	return parseVersionResult(raw)
}

// List returns documents with cursor-based pagination via FT.SEARCH.
func (r *Repo) List(ctx context.Context, baseName, cursor string, limit int) (
	[]domdoc.Document, string, error,
) {
	if limit <= 0 {
		limit = 20
	}

	offset := 0
	if cursor != "" {
		parsed, err := strconv.Atoi(cursor)
		if err != nil {
			return nil, "", fmt.Errorf("invalid cursor %q: %w: %w", cursor, domain.ErrInvalidSchema, err)
		}
		offset = parsed
	}

	idxName := indexName(baseName)
	fetchCount := limit + 1

	result, err := r.store.SearchList(ctx, idxName, "*", offset, fetchCount, []string{"$"})
	if err != nil {
		return nil, "", fmt.Errorf("search list %s: %w", baseName, err)
	}

	if result == nil || result.Total == 0 {
		return nil, "", nil
	}

	docs := make([]domdoc.Document, 0, limit)
	for i, entry := range result.Entries {
		if i >= limit {
			break
		}
		docID := extractDocID(entry.Key, baseName)
		jsonStr := entry.Fields["$"]
		if jsonStr == "" {
			docs = append(docs, domdoc.Reconstruct(docID, "", nil, nil, nil, 0))
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(jsonStr), &m); err != nil {
			docs = append(docs, domdoc.Reconstruct(docID, "", nil, nil, nil, 0))
			continue
		}
		docs = append(docs, parseDocMap(docID, m))
	}

	var nextCursor string
	if len(result.Entries) > limit {
		nextCursor = strconv.Itoa(offset + limit)
	}

	return docs, nextCursor, nil
}

// Count returns the number of documents in a base.
func (r *Repo) Count(ctx context.Context, baseName string) (int, error) {
	n, err := r.store.SearchCount(ctx, indexName(baseName), "*")
	if err != nil {
		return 0, fmt.Errorf("search count %s: %w", baseName, err)
	}
	return n, nil
}

// Delete removes a document and returns the version it held, so callers
// can invalidate cache entries tagged with it.
func (r *Repo) Delete(ctx context.Context, baseName, id string) (int, error) {
	current, err := r.CurrentVersion(ctx, baseName, id)
	if err != nil {
		return 0, fmt.Errorf("current version %s: %w", id, err)
	}
	if current == 0 {
		return 0, domain.ErrDocumentNotFound
	}

	key := docKey(baseName, id)
	if err := r.store.Del(ctx, key); err != nil {
		return 0, fmt.Errorf("del %s: %w", key, err)
	}
	return current, nil
}

// Patch performs a partial update: JSON.GET, merge fields, bump the
// version, JSON.SET. Returns the new version. expectedVersion works as
// in Upsert; the document must exist.
func (r *Repo) Patch(
	ctx context.Context, baseName, id string, p patch.Patch,
	newVector []float32, expectedVersion int,
) (int, error) {
	key := docKey(baseName, id)

	raw, err := r.store.JSONGet(ctx, key, "$")
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return 0, domain.ErrDocumentNotFound
		}
		return 0, fmt.Errorf("json.get %s: %w", key, err)
	}

	var docs []map[string]any
	if err := json.Unmarshal(raw, &docs); err != nil {
		return 0, fmt.Errorf("unmarshal for patch: %w", err)
	}
	if len(docs) == 0 {
		return 0, domain.ErrDocumentNotFound
	}

	current := docs[0]
	currentVersion := versionFromMap(current)
	if expectedVersion >= 0 && expectedVersion != currentVersion {
		return 0, domain.NewVersionConflict(currentVersion)
	}

	applyPatchFields(current, p, newVector)
	next := currentVersion + 1
	current["__version"] = next

	data, err := json.Marshal(current)
	if err != nil {
		return 0, fmt.Errorf("marshal patched doc: %w", err)
	}

	if err := r.store.JSONSet(ctx, key, "$", data); err != nil {
		return 0, fmt.Errorf("json.set %s: %w", key, err)
	}
	return next, nil
}

func docKey(base, id string) string {
	return fmt.Sprintf("%s%s:%s", domain.KeyPrefix, base, id)
}

func indexName(base string) string {
	return fmt.Sprintf("%s%s:idx", domain.KeyPrefix, base)
}

func extractDocID(key, base string) string {
	prefix := fmt.Sprintf("%s%s:", domain.KeyPrefix, base)
	return strings.TrimPrefix(key, prefix)
}

// applyPatchFields merges patch fields into the current JSON map in-place.
func applyPatchFields(current map[string]any, p patch.Patch, newVector []float32) {
	if p.HasContent() {
		current["__content"] = *p.Content()
	}
	for k, v := range p.Tags() {
		if v == nil {
			delete(current, k)
		} else {
			current[k] = *v
		}
	}
	for k, v := range p.Numerics() {
		if v == nil {
			delete(current, k)
		} else {
			current[k] = *v
		}
	}
	if newVector != nil {
		current["__vector"] = newVector
	}
}
