package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/kailas-cloud/ragdex/internal/db"
	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/candidate"
	"github.com/kailas-cloud/ragdex/internal/domain/query/filter"
)

// store is the consumer interface for retrieval (ISP).
type store interface {
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchBM25(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error)
	SupportsTextSearch(ctx context.Context) bool
}

// Repo implements the retrieval side of usecase/retrieval: one method per
// index leg, each returning rank-ordered candidates for fusion.
type Repo struct {
	store store
}

// New creates a retrieval repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// SupportsTextSearch proxies the capability check from the store.
func (r *Repo) SupportsTextSearch(ctx context.Context) bool {
	return r.store.SupportsTextSearch(ctx)
}

// SearchVector runs KNN similarity search. Candidates come back in the
// source's own order with zero-based ranks; an empty slice with nil error
// means the index matched nothing. Backend errors wrap ErrIndexUnavailable.
func (r *Repo) SearchVector(
	ctx context.Context, baseName string,
	vector []float32, topK int, filters filter.Expression,
) ([]candidate.Candidate, error) {
	q := &db.KNNQuery{
		IndexName: indexName(baseName),
		Filters:   filters,
		Vector:    vector,
		K:         topK,
		// $ pulls the stored document so passages carry their metadata;
		// __vector_score must be returned or the driver cannot surface
		// scores. The flat fields cover engines that do not resolve $.
		ReturnFields: []string{"$", "__content", "__version", "__vector_score"},
	}

	sr, err := r.store.SearchKNN(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("vector search %s: %w: %w", baseName, domain.ErrIndexUnavailable, err)
	}

	return parseCandidates(sr, baseName, candidate.Vector), nil
}

// SearchLexical runs BM25 keyword search. Fails fast with
// ErrKeywordSearchNotSupported when the backend has no TEXT fields, so the
// pipeline can degrade to vector-only without a round trip.
func (r *Repo) SearchLexical(
	ctx context.Context, baseName string,
	text string, topK int, filters filter.Expression,
) ([]candidate.Candidate, error) {
	if !r.store.SupportsTextSearch(ctx) {
		return nil, domain.ErrKeywordSearchNotSupported
	}

	q := &db.TextQuery{
		IndexName:    indexName(baseName),
		Query:        text,
		Filters:      filters,
		TopK:         topK,
		ReturnFields: []string{"$", "__content", "__version"},
	}

	sr, err := r.store.SearchBM25(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("lexical search %s: %w: %w", baseName, domain.ErrIndexUnavailable, err)
	}

	return parseCandidates(sr, baseName, candidate.Lexical), nil
}

// parseCandidates converts db.SearchResult entries into candidates, rank
// assigned from slice position.
func parseCandidates(sr *db.SearchResult, baseName string, source candidate.Source) []candidate.Candidate {
	if sr == nil || sr.Total == 0 {
		return nil
	}

	prefix := fmt.Sprintf("%s%s:", domain.KeyPrefix, baseName)
	out := make([]candidate.Candidate, 0, len(sr.Entries))

	for i, entry := range sr.Entries {
		docID := strings.TrimPrefix(entry.Key, prefix)
		c, err := candidate.New(docID, source, i, entry.Score)
		if err != nil {
			continue // malformed row, skip
		}

		content, version, tags, numerics := parsePayload(entry.Fields)
		out = append(out, c.WithPayload(content, version, tags, numerics))
	}

	return out
}

// parsePayload extracts the document payload from returned fields. A "$"
// field holds the full stored JSON; otherwise the payload is assembled from
// flat fields, unknown ones classified as numeric or tag by value.
func parsePayload(fields map[string]string) (string, int, map[string]string, map[string]float64) {
	if raw, ok := fields["$"]; ok && raw != "" {
		var m map[string]any
		if err := json.Unmarshal([]byte(raw), &m); err == nil {
			return payloadFromDoc(m)
		}
	}

	var content string
	version := 0
	var tags map[string]string
	var numerics map[string]float64

	for k, v := range fields {
		switch k {
		case "__content":
			content = v
		case "__version":
			if n, err := strconv.Atoi(v); err == nil {
				version = n
			}
		case "$", "__vector", "__vector_score":
			// handled elsewhere or not part of the payload
		default:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				if numerics == nil {
					numerics = make(map[string]float64)
				}
				numerics[k] = f
			} else {
				if tags == nil {
					tags = make(map[string]string)
				}
				tags[k] = v
			}
		}
	}

	return content, version, tags, numerics
}

// payloadFromDoc extracts the payload from a decoded JSON document. The
// field types are unambiguous here: JSON strings are tags, numbers are
// numerics.
func payloadFromDoc(m map[string]any) (string, int, map[string]string, map[string]float64) {
	var content string
	version := 0
	var tags map[string]string
	var numerics map[string]float64

	for k, v := range m {
		switch k {
		case "__content":
			if s, ok := v.(string); ok {
				content = s
			}
		case "__version":
			if f, ok := v.(float64); ok {
				version = int(f)
			}
		case "__vector":
			// never part of the payload
		default:
			switch typed := v.(type) {
			case string:
				if tags == nil {
					tags = make(map[string]string)
				}
				tags[k] = typed
			case float64:
				if numerics == nil {
					numerics = make(map[string]float64)
				}
				numerics[k] = typed
			}
		}
	}

	return content, version, tags, numerics
}

func indexName(base string) string {
	return fmt.Sprintf("%s%s:idx", domain.KeyPrefix, base)
}
