package domain

import "context"

// QueryExpander produces semantically diverse rewrites of a query.
// The original query is never part of the returned slice; callers prepend it
// themselves. Implementations report provider failures as
// ErrExpansionUnavailable, which callers treat as non-fatal.
type QueryExpander interface {
	ExpandQuery(ctx context.Context, text string, n int) ([]string, error)
}
