package db

import "github.com/kailas-cloud/ragdex/internal/domain/query/filter"

// KNNQuery describes one KNN request against an FT index.
type KNNQuery struct {
	IndexName     string
	Filters       filter.Expression
	Vector        []float32
	K             int
	ReturnFields  []string
	IncludeVector bool
}

// TextQuery describes one BM25 lexical request against an FT index.
type TextQuery struct {
	IndexName    string
	Query        string
	Filters      filter.Expression
	TopK         int
	ReturnFields []string
}

// SearchResult is the parsed FT.SEARCH reply.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is one hit: its key, engine score and requested fields.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
