package cache

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/db"
	domcache "github.com/kailas-cloud/ragdex/internal/domain/cache"
)

// mockStore implements store with overridable behavior.
type mockStore struct {
	getFn       func(ctx context.Context, key string) ([]byte, error)
	setTTLFn    func(ctx context.Context, key string, value []byte, ttl time.Duration) error
	delFn       func(ctx context.Context, key string) error
	hsetMultiFn func(ctx context.Context, items []db.HashSetItem) error
	hgetAllFn   func(ctx context.Context, key string) (map[string]string, error)
	hdelFn      func(ctx context.Context, key string, fields ...string) error
	expireFn    func(ctx context.Context, key string, ttl time.Duration, nx bool) error
}

func (m *mockStore) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	return nil, db.ErrKeyNotFound
}

func (m *mockStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if m.setTTLFn != nil {
		return m.setTTLFn(ctx, key, value, ttl)
	}
	return nil
}

func (m *mockStore) Del(ctx context.Context, key string) error {
	if m.delFn != nil {
		return m.delFn(ctx, key)
	}
	return nil
}

func (m *mockStore) HSetMulti(ctx context.Context, items []db.HashSetItem) error {
	if m.hsetMultiFn != nil {
		return m.hsetMultiFn(ctx, items)
	}
	return nil
}

func (m *mockStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if m.hgetAllFn != nil {
		return m.hgetAllFn(ctx, key)
	}
	return map[string]string{}, nil
}

func (m *mockStore) HDel(ctx context.Context, key string, fields ...string) error {
	if m.hdelFn != nil {
		return m.hdelFn(ctx, key, fields...)
	}
	return nil
}

func (m *mockStore) Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error {
	if m.expireFn != nil {
		return m.expireFn(ctx, key, ttl, nx)
	}
	return nil
}

// mockVersions implements VersionReader.
type mockVersions struct {
	currentVersionFn func(ctx context.Context, baseName, id string) (int, error)
}

func (m *mockVersions) CurrentVersion(ctx context.Context, baseName, id string) (int, error) {
	if m.currentVersionFn != nil {
		return m.currentVersionFn(ctx, baseName, id)
	}
	return 0, nil
}

func newTestManager() (*Manager, *mockStore, *mockVersions) {
	ms := &mockStore{}
	mv := &mockVersions{}
	return New(ms, mv, zap.NewNop()), ms, mv
}

// storedEntry builds the raw envelope bytes for an entry as Set would have
// written them.
func storedEntry(t *testing.T, key string, value []byte, ttl time.Duration, refs map[string]int) []byte {
	t.Helper()
	e, err := domcache.New(key, value, ttl, refs)
	if err != nil {
		t.Fatalf("build entry: %v", err)
	}
	data, err := marshalEntry(e)
	if err != nil {
		t.Fatalf("marshal entry: %v", err)
	}
	return data
}
