package ragdex

import (
	"context"
	"fmt"
)

// TypedBase is a generic, schema-first handle over a knowledge base.
// Schema is inferred from T's struct tags at construction time:
//
//	type Runbook struct {
//	    ID       string `ragdex:"id,id"`
//	    Body     string `ragdex:"body,content"`
//	    Service  string `ragdex:"service,tag"`
//	    Severity int    `ragdex:"severity,numeric"`
//	    Version  int    `ragdex:"version,version"`
//	}
type TypedBase[T any] struct {
	name   string
	client *Client
	meta   *schemaMeta
}

// NewBase creates a typed handle for the given knowledge base name.
// T must be a struct with ragdex tags. Schema is parsed once and cached.
func NewBase[T any](client *Client, name string) (*TypedBase[T], error) {
	meta, err := parseSchema[T]()
	if err != nil {
		return nil, fmt.Errorf("new base %q: %w", name, err)
	}
	return &TypedBase[T]{name: name, client: client, meta: meta}, nil
}

// Ensure creates the base if it does not exist (idempotent). Filterable
// fields come from T's tags; extra options add description or content class.
func (tb *TypedBase[T]) Ensure(ctx context.Context, opts ...BaseOption) error {
	all := append(tb.meta.baseOptions(), opts...)
	if _, err := tb.client.Bases().Ensure(ctx, tb.name, all...); err != nil {
		return fmt.Errorf("ensure %q: %w", tb.name, err)
	}
	return nil
}

// Upsert creates or updates a single item. Returns the created flag and the
// version the write landed at.
func (tb *TypedBase[T]) Upsert(ctx context.Context, item T) (bool, int, error) {
	return tb.client.Documents(tb.name).Upsert(ctx, tb.meta.toDocument(item))
}

// UpsertBatch creates or updates items in batch.
func (tb *TypedBase[T]) UpsertBatch(
	ctx context.Context, items []T,
) ([]BatchResult, error) {
	docs := make([]Document, len(items))
	for i, item := range items {
		docs[i] = tb.meta.toDocument(item)
	}
	return tb.client.Documents(tb.name).BatchUpsert(ctx, docs)
}

// Get retrieves a typed item by ID.
func (tb *TypedBase[T]) Get(ctx context.Context, id string) (T, error) {
	doc, err := tb.client.Documents(tb.name).Get(ctx, id)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("get: %w", err)
	}
	item, ok := tb.meta.fromDocument(doc).(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("get: type assertion failed")
	}
	return item, nil
}

// Delete removes an item by ID.
func (tb *TypedBase[T]) Delete(ctx context.Context, id string) error {
	return tb.client.Documents(tb.name).Delete(ctx, id)
}

// Count returns the number of items in the base.
func (tb *TypedBase[T]) Count(ctx context.Context) (int, error) {
	return tb.client.Documents(tb.name).Count(ctx)
}

// Ask returns a fluent ask builder scoped to this base.
func (tb *TypedBase[T]) Ask(question string) *AskBuilder[T] {
	return &AskBuilder[T]{tb: tb, question: question}
}
