package valkey

import (
	"github.com/redis/rueidis"

	"github.com/kailas-cloud/ragdex/internal/db"
)

// NewStoreForTest creates a Store with the provided rueidis client (test-only).
func NewStoreForTest(c rueidis.Client) *Store {
	return &Store{Conn: db.NewConn(c)}
}
