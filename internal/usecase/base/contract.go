package base

import (
	"context"

	dombase "github.com/kailas-cloud/ragdex/internal/domain/base"
)

// Repository defines the storage contract for knowledge bases.
type Repository interface {
	Create(ctx context.Context, b dombase.Base) error
	Get(ctx context.Context, name string) (dombase.Base, error)
	List(ctx context.Context) ([]dombase.Base, error)
	Delete(ctx context.Context, name string) error
	PurgeDocuments(ctx context.Context, name string) (int, error)
}

// DocumentCounter reports how many documents a base holds.
type DocumentCounter interface {
	Count(ctx context.Context, baseName string) (int, error)
}
