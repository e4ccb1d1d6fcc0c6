package base

import (
	"fmt"
	"regexp"
	"time"

	"github.com/kailas-cloud/ragdex/internal/domain/base/field"
)

var (
	nameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	// "base" and "cache" collide with the ragdex:base: and ragdex:cache:
	// key prefixes.
	reservedNames = map[string]bool{"base": true, "cache": true}
)

// MaxDescriptionLength bounds the free-text base description.
const MaxDescriptionLength = 512

// ContentClass describes how fast a base's content goes stale. It drives the
// answer-cache TTL: static procedure docs can be cached for a day, volatile
// runbooks for seconds.
type ContentClass string

const (
	// ClassStatic is for content that effectively never changes.
	ClassStatic ContentClass = "static"
	// ClassDefault is the middle ground for ordinary documentation.
	ClassDefault ContentClass = "default"
	// ClassVolatile is for fast-changing content such as live runbooks.
	ClassVolatile ContentClass = "volatile"
)

// IsValid checks if the content class is supported.
func (c ContentClass) IsValid() bool {
	return c == ClassStatic || c == ClassDefault || c == ClassVolatile
}

// Base is the knowledge base aggregate (immutable value object). A base owns
// a set of versioned documents plus the lexical and vector indexes over them.
type Base struct {
	name         string
	description  string
	contentClass ContentClass
	fields       []field.Field
	vectorDim    int
	createdAt    int64
	revision     int
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("base name is required")
	}
	if len(name) > 64 {
		return fmt.Errorf("base name too long (max 64)")
	}
	if !nameRegex.MatchString(name) {
		return fmt.Errorf("base name must be alphanumeric with underscores and hyphens")
	}
	if reservedNames[name] {
		return fmt.Errorf("base name %q is reserved", name)
	}
	return nil
}

func validateFields(fields []field.Field) error {
	if len(fields) > 64 {
		return fmt.Errorf("too many fields (max 64)")
	}
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if seen[f.Name()] {
			return fmt.Errorf("duplicate field name: %s", f.Name())
		}
		seen[f.Name()] = true
	}
	return nil
}

// New validates and creates a Base.
// Name: ^[a-zA-Z0-9_-]+$, 1-64 chars. Fields: unique names, max 64. VectorDim: > 0.
func New(name, description string, class ContentClass, fields []field.Field, vectorDim int) (Base, error) {
	if class == "" {
		class = ClassDefault
	}
	if !class.IsValid() {
		return Base{}, fmt.Errorf("invalid content class: %q", class)
	}
	if err := validateName(name); err != nil {
		return Base{}, err
	}
	if len(description) > MaxDescriptionLength {
		return Base{}, fmt.Errorf("description too long (max %d)", MaxDescriptionLength)
	}
	if vectorDim <= 0 {
		return Base{}, fmt.Errorf("vector dimension must be positive")
	}
	if err := validateFields(fields); err != nil {
		return Base{}, err
	}

	return Base{
		name:         name,
		description:  description,
		contentClass: class,
		fields:       fields,
		vectorDim:    vectorDim,
		createdAt:    time.Now().UnixMilli(),
		revision:     1,
	}, nil
}

// Reconstruct creates a Base without validation (storage hydration).
func Reconstruct(
	name, description string, class ContentClass, fields []field.Field,
	vectorDim int, createdAt int64, revision int,
) Base {
	if class == "" {
		class = ClassDefault
	}
	return Base{
		name:         name,
		description:  description,
		contentClass: class,
		fields:       fields,
		vectorDim:    vectorDim,
		createdAt:    createdAt,
		revision:     revision,
	}
}

// Name returns the base name.
func (b Base) Name() string { return b.name }

// Description returns the free-text description shown to the route classifier.
func (b Base) Description() string { return b.description }

// ContentClass returns the staleness class.
func (b Base) ContentClass() ContentClass { return b.contentClass }

// Fields returns the indexed metadata field definitions.
func (b Base) Fields() []field.Field { return b.fields }

// VectorDim returns the vector dimension.
func (b Base) VectorDim() int { return b.vectorDim }

// CreatedAt returns the creation timestamp (unix millis).
func (b Base) CreatedAt() int64 { return b.createdAt }

// Revision returns the optimistic concurrency version.
func (b Base) Revision() int { return b.revision }

// HasField checks if a field with the given name and type exists.
func (b Base) HasField(name string, ft field.Type) bool {
	for _, f := range b.fields {
		if f.Name() == name && f.FieldType() == ft {
			return true
		}
	}
	return false
}

// FieldByName looks up a field by name.
func (b Base) FieldByName(name string) (field.Field, bool) {
	for _, f := range b.fields {
		if f.Name() == name {
			return f, true
		}
	}
	return field.Field{}, false
}
