package cache

import (
	"fmt"
	"time"

	"github.com/kailas-cloud/ragdex/internal/domain/base"
)

// Namespace separates the three independent caches. Keys never collide across
// namespaces because the namespace is part of the storage key.
type Namespace string

// Cache namespace constants.
const (
	// NamespaceEmbedding caches query embeddings. Embeddings of fixed text
	// never change, so entries live for days.
	NamespaceEmbedding Namespace = "emb"
	// NamespaceRetrieval caches fused candidate lists, tagged with source
	// document versions.
	NamespaceRetrieval Namespace = "ret"
	// NamespaceAnswer caches final answers, tagged the same way.
	NamespaceAnswer Namespace = "ans"
)

// IsValid checks if the namespace is one of the supported values.
func (n Namespace) IsValid() bool {
	return n == NamespaceEmbedding || n == NamespaceRetrieval || n == NamespaceAnswer
}

// TTLPolicy holds per-namespace entry lifetimes. Answer TTL depends on the
// content class of the base the answer was drawn from.
type TTLPolicy struct {
	Embedding      time.Duration
	Retrieval      time.Duration
	AnswerStatic   time.Duration
	AnswerDefault  time.Duration
	AnswerVolatile time.Duration
}

// DefaultTTLPolicy returns the default lifetimes.
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		Embedding:      7 * 24 * time.Hour,
		Retrieval:      4 * time.Hour,
		AnswerStatic:   24 * time.Hour,
		AnswerDefault:  15 * time.Minute,
		AnswerVolatile: 30 * time.Second,
	}
}

// AnswerTTL returns the answer-cache lifetime for a content class.
func (p TTLPolicy) AnswerTTL(class base.ContentClass) time.Duration {
	switch class {
	case base.ClassStatic:
		return p.AnswerStatic
	case base.ClassVolatile:
		return p.AnswerVolatile
	default:
		return p.AnswerDefault
	}
}

// Entry is the stored cache envelope (immutable value object). Entries are
// create-or-delete, never updated in place: a rewrite under the same key
// deletes first, so concurrent readers see either the old complete entry or
// a miss, never a half-written state.
type Entry struct {
	key               string
	value             []byte
	createdAt         int64
	ttl               time.Duration
	sourceDocVersions map[string]int
}

// New validates and creates an Entry stamped with the current time.
func New(key string, value []byte, ttl time.Duration, sourceDocVersions map[string]int) (Entry, error) {
	if key == "" {
		return Entry{}, fmt.Errorf("cache key is required")
	}
	if len(value) == 0 {
		return Entry{}, fmt.Errorf("cache value is required")
	}
	if ttl <= 0 {
		return Entry{}, fmt.Errorf("cache TTL must be positive, got %v", ttl)
	}
	return Entry{
		key:               key,
		value:             value,
		createdAt:         time.Now().UnixMilli(),
		ttl:               ttl,
		sourceDocVersions: sourceDocVersions,
	}, nil
}

// Reconstruct creates an Entry without validation (storage hydration).
func Reconstruct(key string, value []byte, createdAt int64, ttl time.Duration, sourceDocVersions map[string]int) Entry {
	return Entry{key: key, value: value, createdAt: createdAt, ttl: ttl, sourceDocVersions: sourceDocVersions}
}

// Key returns the full storage key.
func (e Entry) Key() string { return e.key }

// Value returns the cached payload.
func (e Entry) Value() []byte { return e.value }

// CreatedAt returns the creation timestamp (unix millis).
func (e Entry) CreatedAt() int64 { return e.createdAt }

// TTL returns the entry lifetime.
func (e Entry) TTL() time.Duration { return e.ttl }

// SourceDocVersions returns the (doc ID, version) tags this entry was built
// from. Empty for the embedding namespace.
func (e Entry) SourceDocVersions() map[string]int { return e.sourceDocVersions }

// Stale reports whether any tagged document version no longer matches the
// given current versions. A tagged document now absent (current version 0)
// counts as stale. This is the lazy-invalidation predicate; the proactive
// hook is the primary mechanism and this is the safety net behind it.
func (e Entry) Stale(current map[string]int) bool {
	for id, v := range e.sourceDocVersions {
		if current[id] != v {
			return true
		}
	}
	return false
}

// Expired reports whether the entry outlived its TTL at the given instant.
// The backend evicts on TTL on its own; this guards against backends without
// eviction and makes expiry testable.
func (e Entry) Expired(now time.Time) bool {
	return now.UnixMilli() >= e.createdAt+e.ttl.Milliseconds()
}
