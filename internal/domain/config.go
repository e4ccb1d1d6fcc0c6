package domain

import "strings"

// KeyPrefix namespaces every key this service writes to the storage backend.
const KeyPrefix = "ragdex:"

// DocRef qualifies a document ID with its knowledge base. Refs identify
// documents across bases in fused results, answer passages and cache tags.
// Safe to split because document IDs may not contain "/".
func DocRef(baseName, docID string) string {
	return baseName + "/" + docID
}

// SplitDocRef splits a qualified document ref into base name and doc ID.
func SplitDocRef(ref string) (baseName, docID string, ok bool) {
	return strings.Cut(ref, "/")
}

// VectorConfig holds internal vectorization settings, not exposed to clients.
type VectorConfig struct {
	Model               string
	Dimensions          int
	ContextWindowTokens int
	DistanceMetric      string
	Algorithm           string
	DocumentInstruction string
	QueryInstruction    string
	MaxDocumentSizeKB   int
}

// DefaultVectorConfig returns the default configuration tuned for Qwen3-Embedding-8B.
func DefaultVectorConfig() VectorConfig {
	return VectorConfig{
		Model:               "Qwen3-Embedding-8B",
		Dimensions:          1024,
		ContextWindowTokens: 41000,
		DistanceMetric:      "cosine",
		Algorithm:           "hnsw",
		DocumentInstruction: "Represent this document for semantic search",
		QueryInstruction:    "Represent this query for retrieving similar documents",
		MaxDocumentSizeKB:   164,
	}
}

// PipelineConfig holds the tunable knobs of the ask pipeline. Zero values are
// replaced by defaults at load time, so a partially filled struct is usable.
type PipelineConfig struct {
	// RRFK is the reciprocal-rank-fusion smoothing constant. Must be > 0.
	RRFK int
	// Alpha weights vector vs lexical contributions: weight_vector = alpha,
	// weight_lexical = 1 - alpha. Range [0, 1].
	Alpha float64
	// NumVariants is how many query variants the expander requests on top of
	// the original query.
	NumVariants int
	// VariantDecay is the geometric per-variant weight decay. Variant i
	// (original = 0) carries weight VariantDecay^i.
	VariantDecay float64
	// MaxConcurrentRetrievals caps parallel variant retrieval fan-out.
	MaxConcurrentRetrievals int
	// RerankCandidates bounds how many fused candidates reach the
	// cross-encoder.
	RerankCandidates int
}

// DefaultPipelineConfig returns the pipeline defaults.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		RRFK:                    60,
		Alpha:                   0.6,
		NumVariants:             2,
		VariantDecay:            0.7,
		MaxConcurrentRetrievals: 5,
		RerankCandidates:        50,
	}
}
