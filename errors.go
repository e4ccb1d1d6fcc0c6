package ragdex

import "github.com/kailas-cloud/ragdex/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrNotFound               = domain.ErrNotFound
	ErrAlreadyExists          = domain.ErrAlreadyExists
	ErrInvalidSchema          = domain.ErrInvalidSchema
	ErrBaseNotFound           = domain.ErrBaseNotFound
	ErrBaseNotEmpty           = domain.ErrBaseNotEmpty
	ErrDocumentNotFound       = domain.ErrDocumentNotFound
	ErrVectorDimMismatch      = domain.ErrVectorDimMismatch
	ErrVersionConflict        = domain.ErrVersionConflict
	ErrRateLimited            = domain.ErrRateLimited
	ErrEmbeddingQuotaExceeded = domain.ErrEmbeddingQuotaExceeded
	ErrRetrievalFailed        = domain.ErrRetrievalFailed
	ErrNoResults              = domain.ErrNoResults
	ErrGenerationUnavailable  = domain.ErrGenerationUnavailable
)
