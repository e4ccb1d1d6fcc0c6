package answer

import "fmt"

// Stage names reported in degraded/skipped lists. Part of the response
// contract, so callers can assert on them.
const (
	StageRoute    = "route"
	StageExpand   = "expand"
	StageRetrieve = "retrieve"
	StageRerank   = "rerank"
	StageGenerate = "generate"
)

// Passage is one supporting passage in the final answer, ordered by
// cross-encoder score descending with ties broken by doc ID.
type Passage struct {
	docID      string
	content    string
	tags       map[string]string
	numerics   map[string]float64
	crossScore float64
	position   int
}

// NewPassage validates and creates a Passage. Position is 1-based.
func NewPassage(
	docID, content string, tags map[string]string, numerics map[string]float64,
	crossScore float64, position int,
) (Passage, error) {
	if docID == "" {
		return Passage{}, fmt.Errorf("passage doc ID is required")
	}
	if position < 1 {
		return Passage{}, fmt.Errorf("passage position must be >= 1, got %d", position)
	}
	return Passage{
		docID: docID, content: content, tags: tags, numerics: numerics,
		crossScore: crossScore, position: position,
	}, nil
}

// DocID returns the source document identifier.
func (p Passage) DocID() string { return p.docID }

// Content returns the passage text.
func (p Passage) Content() string { return p.content }

// Tags returns the tag metadata fields.
func (p Passage) Tags() map[string]string { return p.tags }

// Numerics returns the numeric metadata fields.
func (p Passage) Numerics() map[string]float64 { return p.numerics }

// CrossScore returns the cross-encoder relevance score. When the rerank stage
// degraded this holds the fused score instead; check Answer.Reranked.
func (p Passage) CrossScore() float64 { return p.crossScore }

// Position returns the 1-based position in the final ordering.
func (p Passage) Position() int { return p.position }

// Answer is the final ask response aggregate (immutable value object).
// Modifier methods return copies, so a cached Answer is never mutated by a
// later reader.
type Answer struct {
	text             string
	passages         []Passage
	reranked         bool
	cached           bool
	partial          bool
	retrievalSkipped bool
	degradedStages   []string
	skippedStages    []string
	sourceVersions   map[string]int
}

// New creates an Answer with cross-encoder ordering assumed intact.
func New(text string, passages []Passage) Answer {
	return Answer{text: text, passages: passages, reranked: true}
}

// Reconstruct creates an Answer without validation (cache hydration).
func Reconstruct(
	text string, passages []Passage, reranked, cached, partial bool,
	degraded, skipped []string, sourceVersions map[string]int,
) Answer {
	return Answer{
		text: text, passages: passages, reranked: reranked, cached: cached,
		partial: partial, degradedStages: degraded, skippedStages: skipped,
		sourceVersions: sourceVersions,
	}
}

// Text returns the generated answer text.
func (a Answer) Text() string { return a.text }

// Passages returns the supporting passages in final order.
func (a Answer) Passages() []Passage { return a.passages }

// Reranked reports whether cross-encoder ordering was applied. False means
// the fused order was returned unchanged.
func (a Answer) Reranked() bool { return a.reranked }

// Cached reports whether this answer came from the answer cache.
func (a Answer) Cached() bool { return a.cached }

// Partial reports whether the overall deadline expired before all stages ran.
func (a Answer) Partial() bool { return a.partial }

// RetrievalSkipped reports whether the router decided the query needed no
// retrieval at all. Such answers carry no passages and are never cached.
func (a Answer) RetrievalSkipped() bool { return a.retrievalSkipped }

// DegradedStages lists stages that fell back to a weaker strategy.
func (a Answer) DegradedStages() []string { return a.degradedStages }

// SkippedStages lists stages skipped because the deadline expired.
func (a Answer) SkippedStages() []string { return a.skippedStages }

// SourceVersions returns the document versions this answer was built from.
// Cache entries are tagged with exactly this set.
func (a Answer) SourceVersions() map[string]int { return a.sourceVersions }

// WithoutRerank marks the answer as returned in fused order.
func (a Answer) WithoutRerank() Answer {
	a.reranked = false
	return a
}

// WithoutRetrieval marks the answer as generated directly, with no retrieval
// behind it. Nothing was reranked either.
func (a Answer) WithoutRetrieval() Answer {
	a.retrievalSkipped = true
	a.reranked = false
	return a
}

// WithDegradedStage records a stage that fell back.
func (a Answer) WithDegradedStage(stage string) Answer {
	degraded := make([]string, 0, len(a.degradedStages)+1)
	degraded = append(degraded, a.degradedStages...)
	a.degradedStages = append(degraded, stage)
	return a
}

// AsPartial marks the answer as produced under an expired deadline.
func (a Answer) AsPartial(skipped []string) Answer {
	a.partial = true
	a.skippedStages = skipped
	return a
}

// FromCache marks the answer as an answer-cache hit.
func (a Answer) FromCache() Answer {
	a.cached = true
	return a
}

// WithSourceVersions attaches the document version snapshot.
func (a Answer) WithSourceVersions(versions map[string]int) Answer {
	a.sourceVersions = versions
	return a
}
