// Package cache implements the three-namespace response cache (embedding,
// retrieval, answer) with version-tagged invalidation. Entries are
// create-or-delete, never updated in place, and every failure is soft: a
// broken cache degrades to a miss, it never fails the request.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/db"
	"github.com/kailas-cloud/ragdex/internal/domain"
	domcache "github.com/kailas-cloud/ragdex/internal/domain/cache"
	"github.com/kailas-cloud/ragdex/internal/metrics"
)

// tagIndexTTL bounds how long a tag index can outlive its members. It must
// exceed the longest tagged entry TTL (answer static, 24h); orphaned fields
// after index expiry are covered by the lazy version check on read.
const tagIndexTTL = 25 * time.Hour

// store is the consumer interface for the cache backend (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HDel(ctx context.Context, key string, fields ...string) error
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}

// VersionReader resolves the current stored version of a document.
// A deleted or never-written document reports version 0.
type VersionReader interface {
	CurrentVersion(ctx context.Context, baseName, id string) (int, error)
}

// Manager is the cache facade used by the pipeline stages.
type Manager struct {
	store    store
	versions VersionReader
	logger   *zap.Logger
	disabled bool
}

// New creates a cache manager over the given backend.
func New(s store, versions VersionReader, logger *zap.Logger) *Manager {
	return &Manager{store: s, versions: versions, logger: logger}
}

// WithDisabled returns a copy that bypasses the backend entirely: every Get
// reports a bypass and every Set is a no-op.
func (m *Manager) WithDisabled(disabled bool) *Manager {
	cp := *m
	cp.disabled = disabled
	return &cp
}

// Get returns the cached payload for a key, or reports a miss. A hit is only
// reported after the entry passes the version check against the document
// store; a stale entry is deleted on the spot (lazy invalidation).
func (m *Manager) Get(ctx context.Context, ns domcache.Namespace, key string) ([]byte, bool) {
	if m.disabled {
		m.incOp(ns, "bypass")
		return nil, false
	}

	storageKey := entryKey(ns, key)

	data, err := m.store.Get(ctx, storageKey)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			m.logger.Warn("Cache read failed", zap.String("key", storageKey), zap.Error(err))
		}
		m.incOp(ns, "miss")
		return nil, false
	}

	entry, err := unmarshalEntry(data)
	if err != nil {
		m.logger.Warn("Dropping corrupt cache entry", zap.String("key", storageKey), zap.Error(err))
		if delErr := m.store.Del(ctx, storageKey); delErr != nil {
			m.logger.Warn("Failed to delete corrupt cache entry", zap.String("key", storageKey), zap.Error(delErr))
		}
		m.incOp(ns, "miss")
		return nil, false
	}

	// The backend evicts on TTL by itself; this guards backends that do not.
	if entry.Expired(time.Now()) {
		m.dropEntry(ctx, storageKey, entry.SourceDocVersions())
		m.incOp(ns, "miss")
		return nil, false
	}

	if len(entry.SourceDocVersions()) > 0 {
		current, err := m.resolveVersions(ctx, entry.SourceDocVersions())
		if err != nil {
			// Freshness cannot be proven, so serve a miss. The entry stays:
			// the next read may reach the document store again.
			m.logger.Warn("Cache version check failed", zap.String("key", storageKey), zap.Error(err))
			m.incOp(ns, "miss")
			return nil, false
		}
		if entry.Stale(current) {
			m.dropEntry(ctx, storageKey, entry.SourceDocVersions())
			metrics.CacheInvalidationsTotal.WithLabelValues("lazy").Inc()
			m.incOp(ns, "stale")
			return nil, false
		}
	}

	m.incOp(ns, "hit")
	return entry.Value(), true
}

// Set stores a payload under a key with the given TTL, tagged with the
// source document versions it was built from (refs map "base/docID" to the
// version used). Any previous entry under the key is deleted first, so
// concurrent readers see either the old complete entry or a miss.
func (m *Manager) Set(ctx context.Context, ns domcache.Namespace, key string, value []byte, ttl time.Duration, refs map[string]int) {
	if m.disabled {
		return
	}

	storageKey := entryKey(ns, key)

	entry, err := domcache.New(storageKey, value, ttl, refs)
	if err != nil {
		m.logger.Warn("Refusing invalid cache entry", zap.String("key", storageKey), zap.Error(err))
		return
	}

	data, err := marshalEntry(entry)
	if err != nil {
		m.logger.Warn("Failed to encode cache entry", zap.String("key", storageKey), zap.Error(err))
		return
	}

	if err := m.store.Del(ctx, storageKey); err != nil {
		m.logger.Warn("Failed to clear cache entry before write", zap.String("key", storageKey), zap.Error(err))
		return
	}
	if err := m.store.SetWithTTL(ctx, storageKey, data, ttl); err != nil {
		m.logger.Warn("Failed to write cache entry", zap.String("key", storageKey), zap.Error(err))
		return
	}

	m.indexTags(ctx, storageKey, refs)
}

// OnVersionBump proactively drops every cache entry tagged with the given
// document, then drops the tag index itself. Returns the number of entries
// dropped. Failures only log; the document write that triggered the bump
// has already succeeded.
func (m *Manager) OnVersionBump(ctx context.Context, baseName, docID string, oldVersion int) int {
	dropped := m.dropTagged(ctx, baseName, docID, "proactive")

	m.logger.Debug("Invalidated cache entries for document",
		zap.String("base", baseName),
		zap.String("doc_id", docID),
		zap.Int("old_version", oldVersion),
		zap.Int("dropped", dropped))

	return dropped
}

// Invalidate drops every cache entry tagged with the given document on an
// operator's explicit request. Same mechanics as OnVersionBump, counted
// separately.
func (m *Manager) Invalidate(ctx context.Context, baseName, docID string) int {
	dropped := m.dropTagged(ctx, baseName, docID, "manual")

	m.logger.Info("Manually invalidated cache entries",
		zap.String("base", baseName),
		zap.String("doc_id", docID),
		zap.Int("dropped", dropped))

	return dropped
}

func (m *Manager) dropTagged(ctx context.Context, baseName, docID, mechanism string) int {
	if m.disabled {
		return 0
	}

	tk := tagKey(baseName, docID)

	members, err := m.store.HGetAll(ctx, tk)
	if err != nil {
		m.logger.Warn("Failed to read cache tag index", zap.String("tag", tk), zap.Error(err))
		return 0
	}
	if len(members) == 0 {
		return 0
	}

	dropped := 0
	for cacheKey := range members {
		if err := m.store.Del(ctx, cacheKey); err != nil {
			m.logger.Warn("Failed to drop tagged cache entry", zap.String("key", cacheKey), zap.Error(err))
			continue
		}
		dropped++
	}
	if dropped > 0 {
		metrics.CacheInvalidationsTotal.WithLabelValues(mechanism).Add(float64(dropped))
	}

	if err := m.store.Del(ctx, tk); err != nil {
		m.logger.Warn("Failed to drop cache tag index", zap.String("tag", tk), zap.Error(err))
	}

	return dropped
}

// dropEntry removes an entry and untags it from every reverse index it was
// registered in.
func (m *Manager) dropEntry(ctx context.Context, storageKey string, refs map[string]int) {
	if err := m.store.Del(ctx, storageKey); err != nil {
		m.logger.Warn("Failed to drop cache entry", zap.String("key", storageKey), zap.Error(err))
		return
	}
	for ref := range refs {
		baseName, docID, ok := domain.SplitDocRef(ref)
		if !ok {
			continue
		}
		if err := m.store.HDel(ctx, tagKey(baseName, docID), storageKey); err != nil {
			m.logger.Warn("Failed to untag cache entry", zap.String("key", storageKey), zap.Error(err))
		}
	}
}

// indexTags registers the entry key in the reverse index of every tagged
// document and re-arms each index TTL. All indexes are written in one
// pipelined round; an answer entry tags every document it cites.
func (m *Manager) indexTags(ctx context.Context, storageKey string, refs map[string]int) {
	writes := make([]db.HashSetItem, 0, len(refs))
	for ref := range refs {
		baseName, docID, ok := domain.SplitDocRef(ref)
		if !ok {
			continue
		}
		writes = append(writes, db.HashSetItem{
			Key:    tagKey(baseName, docID),
			Fields: map[string]string{storageKey: "1"},
		})
	}
	if len(writes) == 0 {
		return
	}

	if err := m.store.HSetMulti(ctx, writes); err != nil {
		m.logger.Warn("Failed to index cache tags", zap.String("key", storageKey), zap.Error(err))
	}

	// Arming TTL on a key the write skipped is a no-op, so no per-key bookkeeping.
	for _, w := range writes {
		if err := m.store.Expire(ctx, w.Key, tagIndexTTL, false); err != nil {
			m.logger.Warn("Failed to set cache tag TTL", zap.String("tag", w.Key), zap.Error(err))
		}
	}
}

// resolveVersions looks up the current version of every tagged document.
// A ref that cannot be split stays absent from the result, which the
// staleness predicate reads as version 0.
func (m *Manager) resolveVersions(ctx context.Context, refs map[string]int) (map[string]int, error) {
	current := make(map[string]int, len(refs))
	for ref := range refs {
		baseName, docID, ok := domain.SplitDocRef(ref)
		if !ok {
			continue
		}
		v, err := m.versions.CurrentVersion(ctx, baseName, docID)
		if err != nil {
			return nil, fmt.Errorf("current version %s: %w", ref, err)
		}
		current[ref] = v
	}
	return current, nil
}

func (m *Manager) incOp(ns domcache.Namespace, result string) {
	metrics.CacheOperationsTotal.WithLabelValues(string(ns), result).Inc()
}
