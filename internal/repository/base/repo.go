package base

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/kailas-cloud/ragdex/internal/db"
	"github.com/kailas-cloud/ragdex/internal/domain"
	dombase "github.com/kailas-cloud/ragdex/internal/domain/base"
)

// store is the consumer interface for knowledge bases (ISP).
//
//nolint:interfacebloat // base repo needs hash + index management operations
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SupportsTextSearch(ctx context.Context) bool
}

// HNSWConfig HNSW index parameters.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

// Repo implements usecase/base.Repository.
type Repo struct {
	store            store
	defaultVectorDim int
	hnsw             HNSWConfig
}

// New creates a knowledge base repository.
func New(s store, defaultVectorDim int) *Repo {
	return &Repo{store: s, defaultVectorDim: defaultVectorDim, hnsw: HNSWConfig{M: 32, EFConstruct: 400}}
}

// WithHNSW configures HNSW index parameters.
func (r *Repo) WithHNSW(cfg HNSWConfig) *Repo {
	if cfg.M > 0 {
		r.hnsw.M = cfg.M
	}
	if cfg.EFConstruct > 0 {
		r.hnsw.EFConstruct = cfg.EFConstruct
	}
	return r
}

// Create stores a base: HSET metadata then FT.CREATE index.
// On FT.CREATE failure, rolls back the HSET via DEL.
func (r *Repo) Create(ctx context.Context, b dombase.Base) error {
	name := b.Name()

	metaKey := metaKey(name)
	exists, err := r.store.Exists(ctx, metaKey)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return domain.ErrAlreadyExists
	}

	// Prepare index definition and hash data before writes
	indexDef, err := buildIndex(name, b.Fields(), b.VectorDim(), r.store.SupportsTextSearch(ctx), r.hnsw)
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}
	hashData, err := baseToHash(b)
	if err != nil {
		return err
	}

	// Step 1: HSET metadata
	if err := r.store.HSet(ctx, metaKey, hashData); err != nil {
		return fmt.Errorf("hset base %s: %w", name, err)
	}

	// FT.CREATE failed: roll back the HSET
	if err := r.store.CreateIndex(ctx, indexDef); err != nil {
		cleanupErr := r.store.Del(ctx, metaKey)
		return errors.Join(err, cleanupErr)
	}

	return nil
}

// Get retrieves a base by name.
func (r *Repo) Get(ctx context.Context, name string) (dombase.Base, error) {
	m, err := r.store.HGetAll(ctx, metaKey(name))
	if err != nil {
		return dombase.Base{}, fmt.Errorf("hgetall base %s: %w", name, err)
	}
	if len(m) == 0 {
		return dombase.Base{}, domain.ErrBaseNotFound
	}

	return baseFromHash(m, r.defaultVectorDim)
}

// List returns all bases sorted by CreatedAt.
func (r *Repo) List(ctx context.Context) ([]dombase.Base, error) {
	keys, err := r.store.Scan(ctx, metaKey("*"))
	if err != nil {
		return nil, fmt.Errorf("scan bases: %w", err)
	}
	if len(keys) == 0 {
		return []dombase.Base{}, nil
	}

	results, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("hgetall multi bases: %w", err)
	}

	bases := make([]dombase.Base, 0, len(results))
	for i, m := range results {
		if len(m) == 0 {
			continue
		}
		b, err := baseFromHash(m, r.defaultVectorDim)
		if err != nil {
			return nil, fmt.Errorf("parse base %s: %w", keys[i], err)
		}
		bases = append(bases, b)
	}

	sort.Slice(bases, func(i, j int) bool {
		return bases[i].CreatedAt() < bases[j].CreatedAt()
	})

	return bases, nil
}

// Delete removes a base: backup metadata, DEL hash, FT.DROPINDEX (rollback HSET on error).
func (r *Repo) Delete(ctx context.Context, name string) error {
	metaKey := metaKey(name)

	// Backup metadata
	metaBackup, err := r.store.HGetAll(ctx, metaKey)
	if err != nil {
		return fmt.Errorf("hgetall base %s: %w", name, err)
	}
	if len(metaBackup) == 0 {
		return domain.ErrBaseNotFound
	}

	// Check index exists
	idxName := indexName(name)
	idxExists, err := r.store.IndexExists(ctx, idxName)
	if err != nil {
		return fmt.Errorf("check index exists: %w", err)
	}
	if !idxExists {
		return domain.ErrBaseNotFound
	}

	// Step 1: DEL metadata
	if err := r.store.Del(ctx, metaKey); err != nil {
		return fmt.Errorf("del base %s: %w", name, err)
	}

	// FT.DROPINDEX failed: restore the metadata
	if err := r.store.DropIndex(ctx, idxName); err != nil {
		cleanupErr := r.store.HSet(ctx, metaKey, metaBackup)
		return errors.Join(err, cleanupErr)
	}

	return nil
}

// PurgeDocuments deletes every document key under a base's prefix and
// returns how many were removed. Used by forced base deletion; the FT index
// must be dropped separately.
func (r *Repo) PurgeDocuments(ctx context.Context, name string) (int, error) {
	keys, err := r.store.Scan(ctx, basePrefix(name)+"*")
	if err != nil {
		return 0, fmt.Errorf("scan documents %s: %w", name, err)
	}

	purged := 0
	for _, key := range keys {
		if err := r.store.Del(ctx, key); err != nil {
			return purged, fmt.Errorf("del %s: %w", key, err)
		}
		purged++
	}
	return purged, nil
}

// Key patterns: ragdex:base:{name}, ragdex:{name}:idx, ragdex:{name}:

func metaKey(name string) string {
	return fmt.Sprintf("%sbase:%s", domain.KeyPrefix, name)
}

func indexName(name string) string {
	return fmt.Sprintf("%s%s:idx", domain.KeyPrefix, name)
}

func basePrefix(name string) string {
	return fmt.Sprintf("%s%s:", domain.KeyPrefix, name)
}
