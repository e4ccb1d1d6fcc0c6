package domain

import "context"

// RouteClassifier decides whether a query needs retrieval and over which of
// the given knowledge bases. Implementations report provider failures as
// ErrClassifierUnavailable, which callers treat as non-fatal.
type RouteClassifier interface {
	Classify(ctx context.Context, query string, bases []string) (Classification, error)
}

// Classification is the raw classifier output before the router applies its
// confidence threshold and safe defaults.
type Classification struct {
	NeedsRetrieval bool
	TargetBases    []string
	Confidence     float64
	Reasoning      string
}
