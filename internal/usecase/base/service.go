package base

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	dombase "github.com/kailas-cloud/ragdex/internal/domain/base"
	"github.com/kailas-cloud/ragdex/internal/domain/base/field"
)

// Service handles knowledge base CRUD operations.
type Service struct {
	repo      Repository
	docs      DocumentCounter
	vectorDim int
	logger    *zap.Logger
}

// New creates a knowledge base service. vectorDim is the embedding dimension
// every base's vector index is created with.
func New(repo Repository, docs DocumentCounter, vectorDim int, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, docs: docs, vectorDim: vectorDim, logger: logger}
}

// Create validates and stores a new base with its search index.
func (s *Service) Create(
	ctx context.Context, name, description string, class dombase.ContentClass, fields []field.Field,
) (dombase.Base, error) {
	b, err := dombase.New(name, description, class, fields, s.vectorDim)
	if err != nil {
		return dombase.Base{}, fmt.Errorf("validate base: %w: %w", domain.ErrInvalidSchema, err)
	}

	if err := s.repo.Create(ctx, b); err != nil {
		return dombase.Base{}, fmt.Errorf("create base: %w", err)
	}

	s.logger.Info("Created knowledge base",
		zap.String("base", name),
		zap.String("content_class", string(b.ContentClass())),
		zap.Int("fields", len(fields)))
	return b, nil
}

// Get retrieves a base by name.
func (s *Service) Get(ctx context.Context, name string) (dombase.Base, error) {
	b, err := s.repo.Get(ctx, name)
	if err != nil {
		return dombase.Base{}, fmt.Errorf("get base: %w", err)
	}
	return b, nil
}

// List returns all bases.
func (s *Service) List(ctx context.Context) ([]dombase.Base, error) {
	bases, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list bases: %w", err)
	}
	return bases, nil
}

// Delete removes a base. A base that still holds documents is rejected
// unless force is set, in which case its documents are purged first.
func (s *Service) Delete(ctx context.Context, name string, force bool) error {
	count, err := s.docs.Count(ctx, name)
	if err != nil {
		return fmt.Errorf("count documents: %w", err)
	}
	if count > 0 && !force {
		return fmt.Errorf("base %q holds %d documents: %w", name, count, domain.ErrBaseNotEmpty)
	}

	// Purge before dropping the index; the scan does not depend on it, but
	// orphaned JSON keys after a successful delete would never be reclaimed.
	if count > 0 {
		purged, err := s.repo.PurgeDocuments(ctx, name)
		if err != nil {
			return fmt.Errorf("purge documents: %w", err)
		}
		s.logger.Info("Purged documents for forced base delete",
			zap.String("base", name),
			zap.Int("purged", purged))
	}

	if err := s.repo.Delete(ctx, name); err != nil {
		return fmt.Errorf("delete base: %w", err)
	}

	s.logger.Info("Deleted knowledge base", zap.String("base", name))
	return nil
}
