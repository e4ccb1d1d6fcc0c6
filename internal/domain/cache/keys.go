package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"github.com/kailas-cloud/ragdex/internal/domain/query"
)

// keySeparator joins canonical key parts before hashing. NUL cannot appear
// in any part, so distinct part lists never collide.
const keySeparator = "\x00"

func hashKey(parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, keySeparator)))
	return hex.EncodeToString(h[:])
}

// EmbeddingKey derives the embedding-cache key. Model and instruction are
// part of the identity: the same text embedded under a different instruction
// is a different vector.
func EmbeddingKey(text, model, instruction string) string {
	return hashKey(query.Normalize(text), model, instruction)
}

// RetrievalKey derives the retrieval-cache key from everything that shapes
// the fused candidate list.
func RetrievalKey(bases []string, queryText string, topK int, filterFingerprint string, alpha float64, rrfK int) string {
	return hashKey(
		canonicalBases(bases),
		query.Normalize(queryText),
		strconv.Itoa(topK),
		filterFingerprint,
		strconv.FormatFloat(alpha, 'g', -1, 64),
		strconv.Itoa(rrfK),
	)
}

// AnswerKey derives the answer-cache key.
func AnswerKey(bases []string, queryText string) string {
	return hashKey(canonicalBases(bases), query.Normalize(queryText))
}

// canonicalBases orders base names so the key does not depend on how the
// caller happened to list them.
func canonicalBases(bases []string) string {
	sorted := make([]string, len(bases))
	copy(sorted, bases)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}
