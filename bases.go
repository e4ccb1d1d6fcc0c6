package ragdex

import (
	"context"
	"errors"
	"fmt"

	"github.com/kailas-cloud/ragdex/internal/domain"
	dombase "github.com/kailas-cloud/ragdex/internal/domain/base"
	"github.com/kailas-cloud/ragdex/internal/domain/base/field"
	baseuc "github.com/kailas-cloud/ragdex/internal/usecase/base"
)

// ContentClass drives the answer-cache lifetime for a base: static content
// caches for hours, volatile content for seconds.
type ContentClass string

// Content class constants.
const (
	ClassStatic   ContentClass = "static"
	ClassDefault  ContentClass = "default"
	ClassVolatile ContentClass = "volatile"
)

// FieldType defines the type of a base metadata field.
type FieldType string

// Field type constants.
const (
	FieldTag     FieldType = "tag"
	FieldNumeric FieldType = "numeric"
)

// FieldInfo represents a base field definition.
type FieldInfo struct {
	Name string
	Type FieldType
}

// BaseInfo represents knowledge base metadata.
type BaseInfo struct {
	Name         string
	Description  string
	ContentClass ContentClass
	Fields       []FieldInfo
	VectorDim    int
	CreatedAt    int64
}

// BaseOption configures knowledge base creation.
type BaseOption func(*baseConfig)

type baseConfig struct {
	description string
	class       ContentClass
	fields      []FieldInfo
}

// WithDescription sets the base description shown to the router.
func WithDescription(desc string) BaseOption {
	return func(c *baseConfig) {
		c.description = desc
	}
}

// WithContentClass sets the content class. Default: ClassDefault.
func WithContentClass(class ContentClass) BaseOption {
	return func(c *baseConfig) {
		c.class = class
	}
}

// WithField adds a filterable metadata field to the base schema.
func WithField(name string, ft FieldType) BaseOption {
	return func(c *baseConfig) {
		c.fields = append(c.fields, FieldInfo{Name: name, Type: ft})
	}
}

// BaseService manages knowledge bases.
type BaseService struct {
	svc *baseuc.Service
}

// Create creates a new knowledge base with its search index.
func (s *BaseService) Create(
	ctx context.Context, name string, opts ...BaseOption,
) (BaseInfo, error) {
	cfg := &baseConfig{class: ClassDefault}
	for _, o := range opts {
		o(cfg)
	}

	fields, err := toInternalFields(cfg.fields)
	if err != nil {
		return BaseInfo{}, fmt.Errorf("create base: %w", err)
	}

	b, err := s.svc.Create(ctx, name, cfg.description, dombase.ContentClass(cfg.class), fields)
	if err != nil {
		return BaseInfo{}, fmt.Errorf("create base: %w", err)
	}
	return fromInternalBase(b), nil
}

// Ensure creates a knowledge base if it does not exist.
// If it already exists, returns its info.
func (s *BaseService) Ensure(
	ctx context.Context, name string, opts ...BaseOption,
) (BaseInfo, error) {
	info, err := s.Create(ctx, name, opts...)
	if err == nil {
		return info, nil
	}
	if !errors.Is(err, domain.ErrAlreadyExists) {
		return BaseInfo{}, fmt.Errorf("ensure base: %w", err)
	}

	existing, err := s.svc.Get(ctx, name)
	if err != nil {
		return BaseInfo{}, fmt.Errorf("ensure base: %w", err)
	}
	return fromInternalBase(existing), nil
}

// Get retrieves knowledge base metadata by name.
func (s *BaseService) Get(ctx context.Context, name string) (BaseInfo, error) {
	b, err := s.svc.Get(ctx, name)
	if err != nil {
		return BaseInfo{}, fmt.Errorf("get base: %w", err)
	}
	return fromInternalBase(b), nil
}

// List returns all knowledge bases.
func (s *BaseService) List(ctx context.Context) ([]BaseInfo, error) {
	bases, err := s.svc.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list bases: %w", err)
	}
	out := make([]BaseInfo, len(bases))
	for i, b := range bases {
		out[i] = fromInternalBase(b)
	}
	return out, nil
}

// Delete removes an empty knowledge base. With force it removes the base
// together with all its documents.
func (s *BaseService) Delete(ctx context.Context, name string, force bool) error {
	if err := s.svc.Delete(ctx, name, force); err != nil {
		return fmt.Errorf("delete base: %w", err)
	}
	return nil
}

func toInternalFields(fields []FieldInfo) ([]field.Field, error) {
	out := make([]field.Field, len(fields))
	for i, f := range fields {
		var err error
		out[i], err = field.New(f.Name, field.Type(f.Type))
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
	}
	return out, nil
}

func fromInternalBase(b dombase.Base) BaseInfo {
	fields := make([]FieldInfo, len(b.Fields()))
	for i, f := range b.Fields() {
		fields[i] = FieldInfo{Name: f.Name(), Type: FieldType(f.FieldType())}
	}
	return BaseInfo{
		Name:         b.Name(),
		Description:  b.Description(),
		ContentClass: ContentClass(b.ContentClass()),
		Fields:       fields,
		VectorDim:    b.VectorDim(),
		CreatedAt:    b.CreatedAt(),
	}
}
