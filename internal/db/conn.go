package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/rueidis"
)

// Conn wraps a rueidis client with the connectivity, hash, JSON and
// key-value primitives every backend speaks identically. Drivers embed
// it and add their FT command surface on top.
type Conn struct {
	client rueidis.Client
}

// NewConn wraps an established rueidis client.
func NewConn(client rueidis.Client) Conn {
	return Conn{client: client}
}

// Do executes a built command.
func (c Conn) Do(ctx context.Context, cmd rueidis.Completed) rueidis.RedisResult {
	return c.client.Do(ctx, cmd)
}

// B returns the command builder.
func (c Conn) B() rueidis.Builder {
	return c.client.B()
}

// Ping checks connectivity.
func (c Conn) Ping(ctx context.Context) error {
	cmd := c.B().Ping().Build()
	if err := c.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close shuts down the client.
func (c Conn) Close() {
	c.client.Close()
}

// WaitForReady polls Ping until the store responds or timeout expires.
func (c Conn) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for database: %w", ctx.Err())
		case <-ticker.C:
			if err := c.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}

// --- Hash operations ---

// HSet sets hash fields.
func (c Conn) HSet(ctx context.Context, key string, fields map[string]string) error {
	cmd := c.B().Hset().Key(key).FieldValue()
	for k, v := range fields {
		cmd = cmd.FieldValue(k, v)
	}
	if err := c.Do(ctx, cmd.Build()).Error(); err != nil {
		return &Error{Op: OpHSet, Key: key, Err: err}
	}
	return nil
}

// HSetMulti stores multiple hashes in a single DoMulti round-trip.
func (c Conn) HSetMulti(ctx context.Context, items []HashSetItem) error {
	if len(items) == 0 {
		return nil
	}

	cmds := make([]rueidis.Completed, len(items))
	for i, item := range items {
		cmd := c.B().Hset().Key(item.Key).FieldValue()
		for k, v := range item.Fields {
			cmd = cmd.FieldValue(k, v)
		}
		cmds[i] = cmd.Build()
	}

	results := c.client.DoMulti(ctx, cmds...)
	for i, res := range results {
		if err := res.Error(); err != nil {
			return &Error{Op: OpHSet, Key: items[i].Key, Err: err}
		}
	}
	return nil
}

// HGetAll returns all fields of a hash.
func (c Conn) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	cmd := c.B().Hgetall().Key(key).Build()
	m, err := c.Do(ctx, cmd).AsStrMap()
	if err != nil {
		return nil, &Error{Op: OpHGetAll, Key: key, Err: err}
	}
	return m, nil
}

// HGetAllMulti fetches all fields for multiple hashes in a single DoMulti round-trip.
func (c Conn) HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	cmds := make([]rueidis.Completed, len(keys))
	for i, key := range keys {
		cmds[i] = c.B().Hgetall().Key(key).Build()
	}

	results := c.client.DoMulti(ctx, cmds...)
	out := make([]map[string]string, len(results))

	for i, res := range results {
		m, err := res.AsStrMap()
		if err != nil {
			return nil, &Error{Op: OpHGetAll, Key: keys[i], Err: err}
		}
		out[i] = m
	}

	return out, nil
}

// HDel removes specific fields from a hash.
func (c Conn) HDel(ctx context.Context, key string, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	cmd := c.B().Hdel().Key(key).Field(fields...).Build()
	if err := c.Do(ctx, cmd).Error(); err != nil {
		return &Error{Op: OpHDel, Key: key, Err: err}
	}
	return nil
}

// Del deletes a key.
func (c Conn) Del(ctx context.Context, key string) error {
	cmd := c.B().Del().Key(key).Build()
	if err := c.Do(ctx, cmd).Error(); err != nil {
		return &Error{Op: OpDel, Key: key, Err: err}
	}
	return nil
}

// Exists checks if a key exists.
func (c Conn) Exists(ctx context.Context, key string) (bool, error) {
	cmd := c.B().Exists().Key(key).Build()
	count, err := c.Do(ctx, cmd).AsInt64()
	if err != nil {
		return false, &Error{Op: OpExists, Key: key, Err: err}
	}
	return count > 0, nil
}

// Scan iterates keys matching a pattern.
func (c Conn) Scan(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	var cursor uint64

	for {
		cmd := c.B().Scan().Cursor(cursor).Match(pattern).Count(100).Build()
		res, err := c.Do(ctx, cmd).AsScanEntry()
		if err != nil {
			return nil, &Error{Op: OpScan, Key: pattern, Err: err}
		}
		keys = append(keys, res.Elements...)
		cursor = res.Cursor
		if cursor == 0 {
			break
		}
	}

	return keys, nil
}

// --- JSON operations ---

// JSONSet stores a JSON document at the given key and path.
func (c Conn) JSONSet(ctx context.Context, key, path string, data []byte) error {
	cmd := c.B().Arbitrary("JSON.SET").Keys(key).Args(path, string(data)).Build()
	if err := c.Do(ctx, cmd).Error(); err != nil {
		return &Error{Op: OpJSONSet, Key: key, Err: err}
	}
	return nil
}

// JSONGet retrieves a JSON document by key and optional paths.
func (c Conn) JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error) {
	args := make([]string, len(paths))
	copy(args, paths)

	cmd := c.B().Arbitrary("JSON.GET").Keys(key).Args(args...).Build()
	raw, err := c.Do(ctx, cmd).ToString()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, ErrKeyNotFound
		}
		return nil, &Error{Op: OpJSONGet, Key: key, Err: err}
	}
	if raw == "" {
		return nil, ErrKeyNotFound
	}
	return []byte(raw), nil
}

// --- Key-value operations ---

// Get retrieves a value by key.
func (c Conn) Get(ctx context.Context, key string) ([]byte, error) {
	cmd := c.B().Get().Key(key).Build()
	data, err := c.Do(ctx, cmd).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, ErrKeyNotFound
		}
		return nil, &Error{Op: OpGet, Key: key, Err: err}
	}
	return data, nil
}

// Set stores a value at the given key.
func (c Conn) Set(ctx context.Context, key string, value []byte) error {
	cmd := c.B().Set().Key(key).Value(string(value)).Build()
	if err := c.Do(ctx, cmd).Error(); err != nil {
		return &Error{Op: OpSet, Key: key, Err: err}
	}
	return nil
}

// SetWithTTL stores a value with an expiration.
func (c Conn) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	cmd := c.B().Set().Key(key).Value(string(value)).Ex(ttl).Build()
	if err := c.Do(ctx, cmd).Error(); err != nil {
		return &Error{Op: OpSet, Key: key, Err: err}
	}
	return nil
}

// IncrBy atomically increments a key by the given amount.
func (c Conn) IncrBy(ctx context.Context, key string, val int64) error {
	cmd := c.B().Incrby().Key(key).Increment(val).Build()
	if err := c.Do(ctx, cmd).Error(); err != nil {
		return &Error{Op: OpIncrBy, Key: key, Err: err}
	}
	return nil
}

// Expire sets TTL on a key. When nx=true, sets TTL only if the key has no expiry yet (EXPIRE NX).
func (c Conn) Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error {
	var cmd rueidis.Completed
	if nx {
		cmd = c.B().Expire().Key(key).Seconds(int64(ttl.Seconds())).Nx().Build()
	} else {
		cmd = c.B().Expire().Key(key).Seconds(int64(ttl.Seconds())).Build()
	}
	if err := c.Do(ctx, cmd).Error(); err != nil {
		return &Error{Op: OpExpire, Key: key, Err: err}
	}
	return nil
}

// IsServerErr checks if err is a server error containing substr.
// Matching is case-insensitive: valkey-search capitalizes its error
// messages differently from RediSearch.
func IsServerErr(err error, substr string) bool {
	re, ok := rueidis.IsRedisErr(err)
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(re.Error()), strings.ToLower(substr))
}
