package cache

import (
	"encoding/json"
	"fmt"
	"time"

	domcache "github.com/kailas-cloud/ragdex/internal/domain/cache"
)

// entryDTO is the stored JSON envelope for a cache entry.
type entryDTO struct {
	Key               string         `json:"key"`
	Value             []byte         `json:"value"`
	CreatedAt         int64          `json:"created_at"`
	TTLSeconds        int64          `json:"ttl_seconds"`
	SourceDocVersions map[string]int `json:"source_doc_versions,omitempty"`
}

func marshalEntry(e domcache.Entry) ([]byte, error) {
	dto := entryDTO{
		Key:               e.Key(),
		Value:             e.Value(),
		CreatedAt:         e.CreatedAt(),
		TTLSeconds:        int64(e.TTL().Seconds()),
		SourceDocVersions: e.SourceDocVersions(),
	}
	data, err := json.Marshal(dto)
	if err != nil {
		return nil, fmt.Errorf("marshal cache entry: %w", err)
	}
	return data, nil
}

func unmarshalEntry(data []byte) (domcache.Entry, error) {
	var dto entryDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return domcache.Entry{}, fmt.Errorf("unmarshal cache entry: %w", err)
	}
	if len(dto.Value) == 0 {
		return domcache.Entry{}, fmt.Errorf("cache entry has empty value")
	}
	return domcache.Reconstruct(
		dto.Key,
		dto.Value,
		dto.CreatedAt,
		time.Duration(dto.TTLSeconds)*time.Second,
		dto.SourceDocVersions,
	), nil
}
