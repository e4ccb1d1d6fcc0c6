package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists signals a duplicate resource.
	ErrAlreadyExists = errors.New("already exists")
	// ErrInvalidSchema signals an invalid schema definition.
	ErrInvalidSchema = errors.New("invalid schema")
	// ErrDocumentNotFound signals a missing document.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrBaseNotFound signals a missing knowledge base.
	ErrBaseNotFound = errors.New("knowledge base not found")
	// ErrBaseNotEmpty signals a delete of a base that still holds documents.
	ErrBaseNotEmpty = errors.New("knowledge base not empty")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")

	// ErrVersionConflict signals an optimistic locking conflict.
	ErrVersionConflict = errors.New("version conflict")
	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrEmbeddingQuotaExceeded signals an exhausted embedding budget.
	ErrEmbeddingQuotaExceeded = errors.New("embedding quota exceeded")
	// ErrNotImplemented signals an unimplemented feature.
	ErrNotImplemented = errors.New("not implemented")
	// ErrKeywordSearchNotSupported signals that the backend lacks keyword search.
	ErrKeywordSearchNotSupported = errors.New("keyword search not supported by backend")
)

// Collaborator unavailability. One sentinel per external dependency; the
// orchestrator decides per stage whether the failure is fatal or degradable.
var (
	// ErrIndexUnavailable signals that a lexical or vector index backend is down
	// or timed out. Distinct from an empty result set, which is not an error.
	ErrIndexUnavailable = errors.New("index unavailable")
	// ErrEmbeddingUnavailable signals an embedding provider failure.
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")
	// ErrGenerationUnavailable signals an answer-generation provider failure.
	ErrGenerationUnavailable = errors.New("generation provider unavailable")
	// ErrExpansionUnavailable signals a query-expansion provider failure.
	ErrExpansionUnavailable = errors.New("expansion provider unavailable")
	// ErrClassifierUnavailable signals a route-classifier failure.
	ErrClassifierUnavailable = errors.New("classifier unavailable")
	// ErrRerankerUnavailable signals a cross-encoder scorer failure.
	ErrRerankerUnavailable = errors.New("reranker unavailable")
)

// Retrieval outcomes.
var (
	// ErrRetrievalFailed signals that every retrieval path failed. Surfaced
	// only when no partial candidate set could be gathered at all.
	ErrRetrievalFailed = errors.New("retrieval failed")
	// ErrNoResults signals that retrieval ran and matched nothing. A valid
	// outcome, kept separate from ErrRetrievalFailed so callers can tell
	// "nothing relevant exists" apart from "service down".
	ErrNoResults = errors.New("no results found")
)

// SkipVersionCheck is the expected-version value that disables optimistic
// concurrency on document writes.
const SkipVersionCheck = -1

// VersionConflictError wraps ErrVersionConflict with the current document version.
type VersionConflictError struct {
	CurrentVersion int
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("%s: current version is %d", ErrVersionConflict.Error(), e.CurrentVersion)
}

func (e *VersionConflictError) Unwrap() error { return ErrVersionConflict }

// NewVersionConflict creates a version conflict error.
func NewVersionConflict(currentVersion int) error {
	return &VersionConflictError{CurrentVersion: currentVersion}
}
