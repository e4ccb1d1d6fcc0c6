package valkey

import (
	"context"

	"github.com/kailas-cloud/ragdex/internal/db"
)

// CreateIndex creates an FT index from the given definition. TEXT fields
// are accepted for schema parity even though valkey-search will not score them.
func (s *Store) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	args, err := def.CreateArgs()
	if err != nil {
		return err
	}

	cmd := s.B().Arbitrary("FT.CREATE").Args(args...).Build()
	if err := s.Do(ctx, cmd).Error(); err != nil {
		if db.IsServerErr(err, "index already exists") {
			return db.ErrIndexExists
		}
		return &db.Error{Op: db.OpCreateIndex, Key: def.Name, Err: err}
	}
	return nil
}

// DropIndex removes an FT index by name.
func (s *Store) DropIndex(ctx context.Context, name string) error {
	cmd := s.B().Arbitrary("FT.DROPINDEX").Args(name).Build()
	if err := s.Do(ctx, cmd).Error(); err != nil {
		if db.IsServerErr(err, "unknown index name") {
			return db.ErrIndexNotFound
		}
		return &db.Error{Op: db.OpDropIndex, Key: name, Err: err}
	}
	return nil
}

// IndexExists probes index existence via FT.INFO; "unknown index name" means absent.
func (s *Store) IndexExists(ctx context.Context, name string) (bool, error) {
	cmd := s.B().Arbitrary("FT.INFO").Args(name).Build()
	if err := s.Do(ctx, cmd).Error(); err != nil {
		if db.IsServerErr(err, "unknown index name") {
			return false, nil
		}
		return false, &db.Error{Op: db.OpIndexInfo, Key: name, Err: err}
	}
	return true, nil
}

// SupportsTextSearch returns false: valkey-search has no TEXT fields or BM25
// scoring, so callers must skip the lexical leg and rely on vector ranking alone.
func (s *Store) SupportsTextSearch(_ context.Context) bool {
	return false
}
