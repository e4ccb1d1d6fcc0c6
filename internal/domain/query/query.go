package query

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/ragdex/internal/domain/query/filter"
)

// Query parameter limits.
const (
	// MaxTextLength is the maximum allowed question length.
	MaxTextLength = 4096
	DefaultTopK   = 10
	// MaxTopK is capped by how many candidates the cross-encoder stage accepts.
	MaxTopK = 50
)

// Query is a validated ask request. Transient, created per request.
type Query struct {
	text    string
	bases   []string
	topK    int
	alpha   *float64
	filters filter.Expression
	noCache bool
}

// New validates and normalizes ask parameters.
// Defaults: topK=10. Alpha nil means "use configured default"; when set it
// must be within [0, 1]. Empty bases defers base selection to the router.
func New(
	text string,
	bases []string,
	topK int,
	alpha *float64,
	filters filter.Expression,
	noCache bool,
) (Query, error) {
	if strings.TrimSpace(text) == "" {
		return Query{}, fmt.Errorf("query text is required")
	}
	if len(text) > MaxTextLength {
		return Query{}, fmt.Errorf("query too long (max %d chars)", MaxTextLength)
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}
	if alpha != nil && (*alpha < 0 || *alpha > 1) {
		return Query{}, fmt.Errorf("alpha must be between 0 and 1")
	}

	return Query{
		text:    text,
		bases:   bases,
		topK:    topK,
		alpha:   alpha,
		filters: filters,
		noCache: noCache,
	}, nil
}

// Text returns the raw question text.
func (q *Query) Text() string { return q.text }

// Bases returns the explicitly requested knowledge bases. Empty means the
// router decides.
func (q *Query) Bases() []string { return q.bases }

// TopK returns the number of passages requested in the final answer.
func (q *Query) TopK() int { return q.topK }

// Alpha returns the per-request fusion weight override, or nil.
func (q *Query) Alpha() *float64 { return q.alpha }

// Filters returns the metadata pre-filter expression.
func (q *Query) Filters() filter.Expression { return q.filters }

// NoCache reports whether answer and retrieval cache reads are bypassed.
// Writes still happen so the next request warms up.
func (q *Query) NoCache() bool { return q.noCache }

// Normalize canonicalizes text for cache key derivation: lowercased with
// whitespace runs collapsed to single spaces. Two questions differing only in
// casing or spacing share one cache entry.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
