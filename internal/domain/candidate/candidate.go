package candidate

import "fmt"

// Source identifies which index produced a candidate.
type Source string

// Candidate source constants.
const (
	// Lexical marks candidates from keyword (BM25) search.
	Lexical Source = "lexical"
	// Vector marks candidates from embedding KNN search.
	Vector Source = "vector"
)

// IsValid checks if the source is one of the supported values.
func (s Source) IsValid() bool {
	return s == Lexical || s == Vector
}

// Candidate is one retrieval hit from a single source (immutable value
// object). Rank is the zero-based position in that source's own ordering;
// fusion is rank-based because raw scores from different sources are not
// comparable.
type Candidate struct {
	docID    string
	source   Source
	rank     int
	rawScore float64
	content  string
	version  int
	tags     map[string]string
	numerics map[string]float64
}

// New validates and creates a Candidate.
func New(docID string, source Source, rank int, rawScore float64) (Candidate, error) {
	if docID == "" {
		return Candidate{}, fmt.Errorf("candidate doc ID is required")
	}
	if !source.IsValid() {
		return Candidate{}, fmt.Errorf("invalid candidate source: %q", source)
	}
	if rank < 0 {
		return Candidate{}, fmt.Errorf("candidate rank must be >= 0, got %d", rank)
	}
	return Candidate{docID: docID, source: source, rank: rank, rawScore: rawScore}, nil
}

// WithPayload returns a copy carrying the document content, its stored
// version and metadata, so downstream stages need no second fetch.
func (c Candidate) WithPayload(content string, version int, tags map[string]string, numerics map[string]float64) Candidate {
	c.content = content
	c.version = version
	c.tags = tags
	c.numerics = numerics
	return c
}

// DocID returns the document identifier.
func (c Candidate) DocID() string { return c.docID }

// Source returns the producing index.
func (c Candidate) Source() Source { return c.source }

// Rank returns the zero-based position in the source's own ordering.
func (c Candidate) Rank() int { return c.rank }

// RawScore returns the source-native score. Kept for logging only; never
// compared across sources.
func (c Candidate) RawScore() float64 { return c.rawScore }

// Content returns the document content, if the source supplied it.
func (c Candidate) Content() string { return c.content }

// Version returns the document version at retrieval time. Cache entries tag
// it so a later write invalidates them.
func (c Candidate) Version() int { return c.version }

// Tags returns the tag metadata fields.
func (c Candidate) Tags() map[string]string { return c.tags }

// Numerics returns the numeric metadata fields.
func (c Candidate) Numerics() map[string]float64 { return c.numerics }
