package ragdex

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/ragdex/internal/domain/answer"
	"github.com/kailas-cloud/ragdex/internal/domain/query"
	"github.com/kailas-cloud/ragdex/internal/domain/query/filter"
)

// AskOptions configures one ask request.
type AskOptions struct {
	// Bases restricts retrieval to the named knowledge bases. Empty lets the
	// router decide over every known base.
	Bases []string
	// TopK is the number of passages in the final answer (default 10, max 50).
	TopK int
	// Alpha overrides the configured vector/lexical fusion split for this
	// request. Nil keeps the client default.
	Alpha *float64
	// Filters pre-filter candidates by metadata before fusion.
	Filters FilterExpression
	// NoCache bypasses answer and retrieval cache reads. Writes still happen
	// so the next request is warm.
	NoCache bool
}

// Answer is the outcome of one ask request.
type Answer struct {
	Text             string
	Passages         []Passage
	Reranked         bool
	Cached           bool
	Partial          bool
	RetrievalSkipped bool
	DegradedStages   []string
	SkippedStages    []string
	// SourceVersions maps "base/doc_id" to the document version the answer
	// was built from.
	SourceVersions map[string]int
}

// Passage is one retrieved passage backing an answer, in final rank order.
type Passage struct {
	DocID      string
	Content    string
	Tags       map[string]string
	Numerics   map[string]float64
	CrossScore float64
	Position   int
}

// FilterExpression is a set of must/should/must_not filter conditions.
type FilterExpression struct {
	Must    []FilterCondition
	Should  []FilterCondition
	MustNot []FilterCondition
}

// FilterCondition is a single filter clause.
type FilterCondition struct {
	Key   string
	Match string       // non-empty for tag match
	Range *RangeFilter // non-nil for numeric range
}

// RangeFilter defines numeric range boundaries.
type RangeFilter struct {
	GT  *float64
	GTE *float64
	LT  *float64
	LTE *float64
}

// Ask runs the full pipeline for one question: routing, expansion, hybrid
// retrieval with RRF fusion, re-ranking and answer generation. Degraded
// stages never fail the call; only unusable outcomes (unknown base, all
// retrieval sources down, no matching documents) return an error.
func (c *Client) Ask(ctx context.Context, question string, opts *AskOptions) (Answer, error) {
	if opts == nil {
		opts = &AskOptions{}
	}

	filters, err := toInternalFilters(opts.Filters)
	if err != nil {
		return Answer{}, fmt.Errorf("ask: %w", err)
	}

	q, err := query.New(question, opts.Bases, opts.TopK, opts.Alpha, filters, opts.NoCache)
	if err != nil {
		return Answer{}, fmt.Errorf("ask: %w", err)
	}

	ans, err := c.askSvc.Ask(ctx, q)
	if err != nil {
		return Answer{}, fmt.Errorf("ask: %w", err)
	}
	return fromInternalAnswer(ans), nil
}

func toInternalFilters(fe FilterExpression) (filter.Expression, error) {
	must, err := toConditions(fe.Must)
	if err != nil {
		return filter.Expression{}, fmt.Errorf("filter must: %w", err)
	}
	should, err := toConditions(fe.Should)
	if err != nil {
		return filter.Expression{}, fmt.Errorf("filter should: %w", err)
	}
	mustNot, err := toConditions(fe.MustNot)
	if err != nil {
		return filter.Expression{}, fmt.Errorf("filter must_not: %w", err)
	}
	expr, err := filter.NewExpression(must, should, mustNot)
	if err != nil {
		return filter.Expression{}, fmt.Errorf("filter expression: %w", err)
	}
	return expr, nil
}

func toConditions(conds []FilterCondition) ([]filter.Condition, error) {
	if len(conds) == 0 {
		return nil, nil
	}
	out := make([]filter.Condition, len(conds))
	for i, c := range conds {
		var err error
		if c.Range != nil {
			r, rerr := filter.NewRangeFilter(
				c.Range.GT, c.Range.GTE, c.Range.LT, c.Range.LTE,
			)
			if rerr != nil {
				return nil, fmt.Errorf("filter %q: %w", c.Key, rerr)
			}
			out[i], err = filter.NewRange(c.Key, r)
		} else {
			out[i], err = filter.NewMatch(c.Key, c.Match)
		}
		if err != nil {
			return nil, fmt.Errorf("filter %q: %w", c.Key, err)
		}
	}
	return out, nil
}

func fromInternalAnswer(a answer.Answer) Answer {
	passages := make([]Passage, len(a.Passages()))
	for i, p := range a.Passages() {
		passages[i] = Passage{
			DocID:      p.DocID(),
			Content:    p.Content(),
			Tags:       p.Tags(),
			Numerics:   p.Numerics(),
			CrossScore: p.CrossScore(),
			Position:   p.Position(),
		}
	}
	return Answer{
		Text:             a.Text(),
		Passages:         passages,
		Reranked:         a.Reranked(),
		Cached:           a.Cached(),
		Partial:          a.Partial(),
		RetrievalSkipped: a.RetrievalSkipped(),
		DegradedStages:   a.DegradedStages(),
		SkippedStages:    a.SkippedStages(),
		SourceVersions:   a.SourceVersions(),
	}
}
