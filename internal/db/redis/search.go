package redis

import (
	"context"

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

// SearchBM25 runs a BM25 text search via FT.SEARCH.
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

// SearchList performs paginated search via FT.SEARCH.
func (s *Store) SearchList(
	ctx context.Context, index, query string, offset, limit int, fields []string,
) (*db.SearchResult, error) {
	args := db.ListArgs(index, query, offset, limit, fields)

	cmd := s.B().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.Do(ctx, cmd).ToArray()
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Key: index, Err: err}
	}

	return db.ParseListReply(raw)
}

// SearchCount returns document count via FT.SEARCH with LIMIT 0 0.
func (s *Store) SearchCount(ctx context.Context, index, query string) (int, error) {
	cmd := s.B().Arbitrary("FT.SEARCH").Args(index, query, "LIMIT", "0", "0").Build()
	raw, err := s.Do(ctx, cmd).ToArray()
	if err != nil {
		return 0, &db.Error{Op: db.OpSearch, Key: index, Err: err}
	}
	return db.ParseCountReply(raw)
}
