// Package fusion implements weighted Reciprocal Rank Fusion. Fusion is
// rank-based rather than score-based so lexical and vector scores never need
// to be comparable; given identical inputs the output ordering is fully
// deterministic.
package fusion

import (
	"sort"

	"github.com/kailas-cloud/ragdex/internal/domain/candidate"
)

// DefaultK is the default smoothing constant. K must stay positive to avoid
// a division singularity at rank zero.
const DefaultK = 60

// HybridWeights splits a single alpha knob into per-source weights:
// weight_vector = alpha, weight_lexical = 1 - alpha.
func HybridWeights(alpha float64) (lexical, vector float64) {
	return 1 - alpha, alpha
}

// List is one ranked candidate list entering fusion, with its weight.
type List struct {
	Weight float64
	Items  []candidate.Candidate
}

// VariantList is one query variant's already-fused list entering the
// cross-variant merge, with its weight.
type VariantList struct {
	Weight float64
	Items  []Fused
}

// Fused is one document's combined ranking across sources (immutable value
// object). Ranks holds the zero-based position the document held in each
// contributing source.
type Fused struct {
	docID    string
	score    float64
	ranks    map[candidate.Source]int
	content  string
	version  int
	tags     map[string]string
	numerics map[string]float64
}

// Reconstruct creates a Fused without computation (cache hydration).
func Reconstruct(
	docID string, score float64, ranks map[candidate.Source]int,
	content string, version int, tags map[string]string, numerics map[string]float64,
) Fused {
	return Fused{
		docID: docID, score: score, ranks: ranks,
		content: content, version: version, tags: tags, numerics: numerics,
	}
}

// DocID returns the document identifier.
func (f Fused) DocID() string { return f.docID }

// Score returns the fused score.
func (f Fused) Score() float64 { return f.score }

// Ranks returns the zero-based rank per contributing source.
func (f Fused) Ranks() map[candidate.Source]int { return f.ranks }

// RankIn returns the document's rank in the given source, if it contributed.
func (f Fused) RankIn(src candidate.Source) (int, bool) {
	r, ok := f.ranks[src]
	return r, ok
}

// Content returns the document content carried through from retrieval.
func (f Fused) Content() string { return f.content }

// Version returns the document version observed at retrieval time.
func (f Fused) Version() int { return f.version }

// Tags returns the tag metadata fields.
func (f Fused) Tags() map[string]string { return f.tags }

// Numerics returns the numeric metadata fields.
func (f Fused) Numerics() map[string]float64 { return f.numerics }

// Fuse combines ranked candidate lists with weighted reciprocal rank fusion:
// for every document, score = sum over lists of weight / (k + rank), where
// rank is the zero-based position in that list. Documents absent from a list
// contribute nothing for it. Output is ordered by score descending, ties
// broken by doc ID ascending. Pure function, no external calls.
func Fuse(lists []List, k int) []Fused {
	if k <= 0 {
		k = DefaultK
	}
	acc := make(map[string]*Fused)
	for _, list := range lists {
		seen := make(map[string]bool, len(list.Items))
		for pos, c := range list.Items {
			id := c.DocID()
			// Duplicate IDs inside one list keep their best (first) rank.
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true

			f, ok := acc[id]
			if !ok {
				f = &Fused{docID: id, ranks: make(map[candidate.Source]int)}
				acc[id] = f
			}
			f.score += list.Weight / float64(k+pos)
			if prev, ok := f.ranks[c.Source()]; !ok || pos < prev {
				f.ranks[c.Source()] = pos
			}
			if f.content == "" && c.Content() != "" {
				f.content = c.Content()
				f.version = c.Version()
				f.tags = c.Tags()
				f.numerics = c.Numerics()
			}
		}
	}
	return sorted(acc)
}

// Merge combines per-variant fused lists with the same reciprocal rank
// formula. A document matched by several variants keeps a single entry whose
// contributions sum; its rank map keeps the best rank per source.
func Merge(lists []VariantList, k int) []Fused {
	if k <= 0 {
		k = DefaultK
	}
	acc := make(map[string]*Fused)
	for _, list := range lists {
		seen := make(map[string]bool, len(list.Items))
		for pos, item := range list.Items {
			if item.docID == "" || seen[item.docID] {
				continue
			}
			seen[item.docID] = true

			f, ok := acc[item.docID]
			if !ok {
				f = &Fused{docID: item.docID, ranks: make(map[candidate.Source]int)}
				acc[item.docID] = f
			}
			f.score += list.Weight / float64(k+pos)
			for src, r := range item.ranks {
				if prev, ok := f.ranks[src]; !ok || r < prev {
					f.ranks[src] = r
				}
			}
			if f.content == "" && item.content != "" {
				f.content = item.content
				f.version = item.version
				f.tags = item.tags
				f.numerics = item.numerics
			}
		}
	}
	return sorted(acc)
}

func sorted(acc map[string]*Fused) []Fused {
	out := make([]Fused, 0, len(acc))
	for _, f := range acc {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].docID < out[j].docID
	})
	return out
}
