package cache

import (
	"fmt"

	"github.com/kailas-cloud/ragdex/internal/domain"
	domcache "github.com/kailas-cloud/ragdex/internal/domain/cache"
)

// entryKey is the full storage key for a cache entry. The namespace is part
// of the key, so the three caches never collide even for equal hashes.
func entryKey(ns domcache.Namespace, hash string) string {
	return fmt.Sprintf("%scache:%s:%s", domain.KeyPrefix, ns, hash)
}

// tagKey is the reverse index from a document to the cache entries built on
// it. One hash per (base, document); fields are entry storage keys.
func tagKey(baseName, docID string) string {
	return fmt.Sprintf("%scache:tag:%s:%s", domain.KeyPrefix, baseName, docID)
}
