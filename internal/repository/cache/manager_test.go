package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/ragdex/internal/db"
	domcache "github.com/kailas-cloud/ragdex/internal/domain/cache"
)

// --- Get ---

func TestGet_Hit(t *testing.T) {
	m, ms, _ := newTestManager()

	var gotKey string
	ms.getFn = func(_ context.Context, key string) ([]byte, error) {
		gotKey = key
		return storedEntry(t, key, []byte(`{"answer":"42"}`), time.Hour, nil), nil
	}

	value, ok := m.Get(context.Background(), domcache.NamespaceAnswer, "abc123")

	if !ok {
		t.Fatal("expected hit")
	}
	if gotKey != "ragdex:cache:ans:abc123" {
		t.Errorf("storage key = %q", gotKey)
	}
	if string(value) != `{"answer":"42"}` {
		t.Errorf("value = %q", value)
	}
}

func TestGet_MissOnAbsentKey(t *testing.T) {
	m, _, _ := newTestManager()

	value, ok := m.Get(context.Background(), domcache.NamespaceRetrieval, "missing")

	if ok {
		t.Fatal("expected miss")
	}
	if value != nil {
		t.Errorf("value = %q, want nil", value)
	}
}

func TestGet_BackendError_IsMiss(t *testing.T) {
	m, ms, _ := newTestManager()
	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return nil, errors.New("connection refused")
	}

	if _, ok := m.Get(context.Background(), domcache.NamespaceAnswer, "k"); ok {
		t.Fatal("expected miss on backend error")
	}
}

func TestGet_CorruptEntry_DeletedAndMiss(t *testing.T) {
	m, ms, _ := newTestManager()
	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return []byte("not json"), nil
	}
	var deleted string
	ms.delFn = func(_ context.Context, key string) error {
		deleted = key
		return nil
	}

	if _, ok := m.Get(context.Background(), domcache.NamespaceAnswer, "k"); ok {
		t.Fatal("expected miss on corrupt entry")
	}
	if deleted != "ragdex:cache:ans:k" {
		t.Errorf("deleted = %q, want the corrupt key", deleted)
	}
}

func TestGet_ExpiredEntry_IsMiss(t *testing.T) {
	m, ms, _ := newTestManager()

	ms.getFn = func(_ context.Context, key string) ([]byte, error) {
		expired := domcache.Reconstruct(
			key, []byte("v"), time.Now().Add(-2*time.Hour).UnixMilli(), time.Hour, nil)
		return marshalEntry(expired)
	}
	delCalled := false
	ms.delFn = func(_ context.Context, _ string) error {
		delCalled = true
		return nil
	}

	if _, ok := m.Get(context.Background(), domcache.NamespaceAnswer, "k"); ok {
		t.Fatal("expected miss on expired entry")
	}
	if !delCalled {
		t.Error("expired entry was not deleted")
	}
}

func TestGet_VersionsMatch_IsHit(t *testing.T) {
	m, ms, mv := newTestManager()

	ms.getFn = func(_ context.Context, key string) ([]byte, error) {
		return storedEntry(t, key, []byte("cached"), time.Hour, map[string]int{"kb/doc-1": 3}), nil
	}
	mv.currentVersionFn = func(_ context.Context, baseName, id string) (int, error) {
		if baseName != "kb" || id != "doc-1" {
			t.Errorf("version lookup for %s/%s", baseName, id)
		}
		return 3, nil
	}

	value, ok := m.Get(context.Background(), domcache.NamespaceRetrieval, "k")

	if !ok {
		t.Fatal("expected hit when versions match")
	}
	if string(value) != "cached" {
		t.Errorf("value = %q", value)
	}
}

func TestGet_StaleVersion_LazilyInvalidated(t *testing.T) {
	m, ms, mv := newTestManager()

	ms.getFn = func(_ context.Context, key string) ([]byte, error) {
		return storedEntry(t, key, []byte("cached"), time.Hour, map[string]int{"kb/doc-1": 3}), nil
	}
	mv.currentVersionFn = func(_ context.Context, _, _ string) (int, error) {
		return 4, nil
	}

	var deleted []string
	ms.delFn = func(_ context.Context, key string) error {
		deleted = append(deleted, key)
		return nil
	}
	var untagged string
	ms.hdelFn = func(_ context.Context, key string, fields ...string) error {
		untagged = key
		if len(fields) != 1 || fields[0] != "ragdex:cache:ret:k" {
			t.Errorf("HDel fields = %v", fields)
		}
		return nil
	}

	if _, ok := m.Get(context.Background(), domcache.NamespaceRetrieval, "k"); ok {
		t.Fatal("expected miss on stale entry")
	}
	if len(deleted) != 1 || deleted[0] != "ragdex:cache:ret:k" {
		t.Errorf("deleted = %v, want the stale entry", deleted)
	}
	if untagged != "ragdex:cache:tag:kb:doc-1" {
		t.Errorf("untagged = %q", untagged)
	}
}

func TestGet_DeletedDocument_IsStale(t *testing.T) {
	m, ms, mv := newTestManager()

	ms.getFn = func(_ context.Context, key string) ([]byte, error) {
		return storedEntry(t, key, []byte("cached"), time.Hour, map[string]int{"kb/gone": 2}), nil
	}
	mv.currentVersionFn = func(_ context.Context, _, _ string) (int, error) {
		return 0, nil
	}

	if _, ok := m.Get(context.Background(), domcache.NamespaceAnswer, "k"); ok {
		t.Fatal("expected miss when a tagged document no longer exists")
	}
}

func TestGet_VersionCheckError_MissKeepsEntry(t *testing.T) {
	m, ms, mv := newTestManager()

	ms.getFn = func(_ context.Context, key string) ([]byte, error) {
		return storedEntry(t, key, []byte("cached"), time.Hour, map[string]int{"kb/doc-1": 3}), nil
	}
	mv.currentVersionFn = func(_ context.Context, _, _ string) (int, error) {
		return 0, errors.New("store down")
	}
	delCalled := false
	ms.delFn = func(_ context.Context, _ string) error {
		delCalled = true
		return nil
	}

	if _, ok := m.Get(context.Background(), domcache.NamespaceAnswer, "k"); ok {
		t.Fatal("expected miss when freshness cannot be proven")
	}
	if delCalled {
		t.Error("entry must survive a failed version check")
	}
}

func TestGet_Disabled_Bypasses(t *testing.T) {
	m, ms, _ := newTestManager()
	getCalled := false
	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		getCalled = true
		return nil, nil
	}

	if _, ok := m.WithDisabled(true).Get(context.Background(), domcache.NamespaceAnswer, "k"); ok {
		t.Fatal("expected bypass")
	}
	if getCalled {
		t.Error("disabled manager must not touch the backend")
	}
}

// --- Set ---

func TestSet_WritesEnvelopeWithTTL(t *testing.T) {
	m, ms, _ := newTestManager()

	var calls []string
	ms.delFn = func(_ context.Context, key string) error {
		calls = append(calls, "del "+key)
		return nil
	}
	var written []byte
	var writtenTTL time.Duration
	ms.setTTLFn = func(_ context.Context, key string, value []byte, ttl time.Duration) error {
		calls = append(calls, "set "+key)
		written = value
		writtenTTL = ttl
		return nil
	}

	m.Set(context.Background(), domcache.NamespaceRetrieval, "k1", []byte("payload"), 4*time.Hour, nil)

	if len(calls) != 2 || calls[0] != "del ragdex:cache:ret:k1" || calls[1] != "set ragdex:cache:ret:k1" {
		t.Fatalf("calls = %v, want delete before write", calls)
	}
	if writtenTTL != 4*time.Hour {
		t.Errorf("ttl = %v", writtenTTL)
	}

	entry, err := unmarshalEntry(written)
	if err != nil {
		t.Fatalf("unmarshal written entry: %v", err)
	}
	if string(entry.Value()) != "payload" {
		t.Errorf("stored value = %q", entry.Value())
	}
	if entry.TTL() != 4*time.Hour {
		t.Errorf("stored ttl = %v", entry.TTL())
	}
}

func TestSet_TagsSourceDocuments(t *testing.T) {
	m, ms, _ := newTestManager()

	rounds := 0
	tagged := map[string]map[string]string{}
	ms.hsetMultiFn = func(_ context.Context, items []db.HashSetItem) error {
		rounds++
		for _, it := range items {
			tagged[it.Key] = it.Fields
		}
		return nil
	}
	expired := map[string]time.Duration{}
	ms.expireFn = func(_ context.Context, key string, ttl time.Duration, nx bool) error {
		if nx {
			t.Error("tag index TTL must be re-armed unconditionally")
		}
		expired[key] = ttl
		return nil
	}

	refs := map[string]int{"kb/doc-1": 2, "runbooks/doc-9": 5}
	m.Set(context.Background(), domcache.NamespaceAnswer, "k1", []byte("payload"), time.Minute, refs)

	if rounds != 1 {
		t.Errorf("tag writes took %d rounds, want 1 pipelined call", rounds)
	}
	if len(tagged) != 2 {
		t.Fatalf("tagged %d indexes, want 2", len(tagged))
	}
	for _, tk := range []string{"ragdex:cache:tag:kb:doc-1", "ragdex:cache:tag:runbooks:doc-9"} {
		fields, ok := tagged[tk]
		if !ok {
			t.Fatalf("tag index %s not written", tk)
		}
		if fields["ragdex:cache:ans:k1"] != "1" {
			t.Errorf("tag index %s fields = %v", tk, fields)
		}
		if expired[tk] != tagIndexTTL {
			t.Errorf("tag index %s ttl = %v", tk, expired[tk])
		}
	}
}

func TestSet_EmptyValue_Refused(t *testing.T) {
	m, ms, _ := newTestManager()
	setCalled := false
	ms.setTTLFn = func(_ context.Context, _ string, _ []byte, _ time.Duration) error {
		setCalled = true
		return nil
	}

	m.Set(context.Background(), domcache.NamespaceAnswer, "k", nil, time.Minute, nil)

	if setCalled {
		t.Error("empty value must not be written")
	}
}

func TestSet_WriteError_SkipsTagging(t *testing.T) {
	m, ms, _ := newTestManager()
	ms.setTTLFn = func(_ context.Context, _ string, _ []byte, _ time.Duration) error {
		return errors.New("backend down")
	}
	hsetCalled := false
	ms.hsetMultiFn = func(_ context.Context, _ []db.HashSetItem) error {
		hsetCalled = true
		return nil
	}

	m.Set(context.Background(), domcache.NamespaceAnswer, "k", []byte("v"), time.Minute,
		map[string]int{"kb/doc-1": 1})

	if hsetCalled {
		t.Error("tag index must not reference an entry that was never written")
	}
}

func TestSet_Disabled_NoWrites(t *testing.T) {
	m, ms, _ := newTestManager()
	setCalled := false
	ms.setTTLFn = func(_ context.Context, _ string, _ []byte, _ time.Duration) error {
		setCalled = true
		return nil
	}

	m.WithDisabled(true).Set(context.Background(), domcache.NamespaceAnswer, "k", []byte("v"), time.Minute, nil)

	if setCalled {
		t.Error("disabled manager must not write")
	}
}

// --- OnVersionBump ---

func TestOnVersionBump_DropsTaggedEntries(t *testing.T) {
	m, ms, _ := newTestManager()

	ms.hgetAllFn = func(_ context.Context, key string) (map[string]string, error) {
		if key != "ragdex:cache:tag:kb:doc-1" {
			t.Errorf("tag key = %q", key)
		}
		return map[string]string{
			"ragdex:cache:ret:aaa": "1",
			"ragdex:cache:ans:bbb": "1",
		}, nil
	}
	deleted := map[string]bool{}
	ms.delFn = func(_ context.Context, key string) error {
		deleted[key] = true
		return nil
	}

	dropped := m.OnVersionBump(context.Background(), "kb", "doc-1", 3)

	if dropped != 2 {
		t.Errorf("dropped = %d, want 2", dropped)
	}
	for _, key := range []string{"ragdex:cache:ret:aaa", "ragdex:cache:ans:bbb", "ragdex:cache:tag:kb:doc-1"} {
		if !deleted[key] {
			t.Errorf("%s was not deleted", key)
		}
	}
}

func TestOnVersionBump_EmptyTagSet(t *testing.T) {
	m, ms, _ := newTestManager()
	delCalled := false
	ms.delFn = func(_ context.Context, _ string) error {
		delCalled = true
		return nil
	}

	if dropped := m.OnVersionBump(context.Background(), "kb", "doc-1", 1); dropped != 0 {
		t.Errorf("dropped = %d, want 0", dropped)
	}
	if delCalled {
		t.Error("nothing to delete for an empty tag set")
	}
}

func TestOnVersionBump_TagIndexReadError(t *testing.T) {
	m, ms, _ := newTestManager()
	ms.hgetAllFn = func(_ context.Context, _ string) (map[string]string, error) {
		return nil, errors.New("backend down")
	}

	if dropped := m.OnVersionBump(context.Background(), "kb", "doc-1", 1); dropped != 0 {
		t.Errorf("dropped = %d, want 0", dropped)
	}
}

func TestOnVersionBump_PartialDeleteFailure(t *testing.T) {
	m, ms, _ := newTestManager()

	ms.hgetAllFn = func(_ context.Context, _ string) (map[string]string, error) {
		return map[string]string{
			"ragdex:cache:ret:good": "1",
			"ragdex:cache:ret:bad":  "1",
		}, nil
	}
	ms.delFn = func(_ context.Context, key string) error {
		if key == "ragdex:cache:ret:bad" {
			return errors.New("transient")
		}
		return nil
	}

	if dropped := m.OnVersionBump(context.Background(), "kb", "doc-1", 1); dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
}

func TestOnVersionBump_Disabled(t *testing.T) {
	m, ms, _ := newTestManager()
	hgetCalled := false
	ms.hgetAllFn = func(_ context.Context, _ string) (map[string]string, error) {
		hgetCalled = true
		return nil, nil
	}

	if dropped := m.WithDisabled(true).OnVersionBump(context.Background(), "kb", "doc-1", 1); dropped != 0 {
		t.Errorf("dropped = %d, want 0", dropped)
	}
	if hgetCalled {
		t.Error("disabled manager must not touch the backend")
	}
}

func TestInvalidate_DropsTaggedEntries(t *testing.T) {
	m, ms, _ := newTestManager()

	ms.hgetAllFn = func(_ context.Context, key string) (map[string]string, error) {
		if key != "ragdex:cache:tag:kb:doc-9" {
			t.Errorf("tag key = %q", key)
		}
		return map[string]string{"ragdex:cache:ans:ccc": "1"}, nil
	}
	deleted := map[string]bool{}
	ms.delFn = func(_ context.Context, key string) error {
		deleted[key] = true
		return nil
	}

	if dropped := m.Invalidate(context.Background(), "kb", "doc-9"); dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
	if !deleted["ragdex:cache:ans:ccc"] || !deleted["ragdex:cache:tag:kb:doc-9"] {
		t.Error("entry and tag index should both be deleted")
	}
}

func TestInvalidate_Disabled(t *testing.T) {
	m, ms, _ := newTestManager()
	hgetCalled := false
	ms.hgetAllFn = func(_ context.Context, _ string) (map[string]string, error) {
		hgetCalled = true
		return nil, nil
	}

	if dropped := m.WithDisabled(true).Invalidate(context.Background(), "kb", "doc-9"); dropped != 0 {
		t.Errorf("dropped = %d, want 0", dropped)
	}
	if hgetCalled {
		t.Error("disabled manager must not touch the backend")
	}
}
