package valkey

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kailas-cloud/ragdex/internal/db"
)

// SearchKNN runs a KNN vector similarity search via FT.SEARCH.
func (s *Store) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	cmd := s.B().Arbitrary("FT.SEARCH").Args(q.Args()...).Build()
	raw, err := s.Do(ctx, cmd).ToArray()
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Key: q.IndexName, Err: err}
	}

	return db.ParseKNNReply(raw)
}

// SearchBM25 runs a BM25 text search via FT.SEARCH. Valkey-search does not
// score TEXT fields; callers are expected to check SupportsTextSearch first.
func (s *Store) SearchBM25(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	cmd := s.B().Arbitrary("FT.SEARCH").Args(q.Args()...).Build()
	raw, err := s.Do(ctx, cmd).ToArray()
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Key: q.IndexName, Err: err}
	}

	return db.ParseBM25Reply(raw)
}

// SearchList performs paginated search. Valkey-search does not support bare
// FT.SEARCH without KNN, so query="*" falls back to SCAN + JSON.GET.
func (s *Store) SearchList(
	ctx context.Context, index, query string, offset, limit int, fields []string,
) (*db.SearchResult, error) {
	if query == "*" {
		return s.scanList(ctx, index, offset, limit, fields)
	}

	args := db.ListArgs(index, query, offset, limit, fields)

	cmd := s.B().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.Do(ctx, cmd).ToArray()
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Key: index, Err: err}
	}

	return db.ParseListReply(raw)
}

// SearchCount returns document count. Falls back to SCAN for query="*"
// because valkey-search does not support bare FT.SEARCH without KNN.
func (s *Store) SearchCount(ctx context.Context, index, query string) (int, error) {
	if query == "*" {
		return s.scanCount(ctx, index)
	}

	cmd := s.B().Arbitrary("FT.SEARCH").Args(index, query, "LIMIT", "0", "0").Build()
	raw, err := s.Do(ctx, cmd).ToArray()
	if err != nil {
		return 0, &db.Error{Op: db.OpSearch, Key: index, Err: err}
	}
	return db.ParseCountReply(raw)
}

// scanList implements listing via SCAN + JSON.GET for valkey-search
// which does not support bare FT.SEARCH without KNN.
func (s *Store) scanList(
	ctx context.Context, index string, offset, limit int, fields []string,
) (*db.SearchResult, error) {
	prefix := indexToKeyPrefix(index)
	keys, err := s.Scan(ctx, prefix+"*")
	if err != nil {
		return nil, fmt.Errorf("scan for list: %w", err)
	}

	sort.Strings(keys) // deterministic ordering

	total := len(keys)
	if offset >= total {
		return &db.SearchResult{Total: total}, nil
	}

	end := offset + limit
	if end > total {
		end = total
	}
	pageKeys := keys[offset:end]

	entries := make([]db.SearchEntry, 0, len(pageKeys))
	for _, key := range pageKeys {
		paths := fields
		if len(paths) == 0 {
			paths = []string{"$"}
		}
		raw, err := s.JSONGet(ctx, key, paths...)
		if err != nil {
			continue // key may have been deleted between SCAN and GET
		}
		entries = append(entries, db.SearchEntry{
			Key:    key,
			Fields: map[string]string{"$": string(raw)},
		})
	}

	return &db.SearchResult{Total: total, Entries: entries}, nil
}

func (s *Store) scanCount(ctx context.Context, index string) (int, error) {
	prefix := indexToKeyPrefix(index)
	keys, err := s.Scan(ctx, prefix+"*")
	if err != nil {
		return 0, fmt.Errorf("scan for count: %w", err)
	}
	return len(keys), nil
}

// indexToKeyPrefix converts index name to a SCAN prefix.
// "ragdex:myBase:idx" -> "ragdex:myBase:"
func indexToKeyPrefix(index string) string {
	if strings.HasSuffix(index, ":idx") {
		return index[:len(index)-3]
	}
	return index + ":"
}
