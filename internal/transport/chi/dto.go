package chi

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/answer"
	dombase "github.com/kailas-cloud/ragdex/internal/domain/base"
	"github.com/kailas-cloud/ragdex/internal/domain/base/field"
	dombatch "github.com/kailas-cloud/ragdex/internal/domain/batch"
	domdoc "github.com/kailas-cloud/ragdex/internal/domain/document"
	"github.com/kailas-cloud/ragdex/internal/domain/document/patch"
	"github.com/kailas-cloud/ragdex/internal/domain/query/filter"
)

// ErrorCode identifies an error class in the response envelope.
type ErrorCode string

// Error envelope codes.
const (
	CodeBadRequest         ErrorCode = "bad_request"
	CodeUnauthorized       ErrorCode = "unauthorized"
	CodeValidationFailed   ErrorCode = "validation_failed"
	CodeBaseNotFound       ErrorCode = "base_not_found"
	CodeDocumentNotFound   ErrorCode = "document_not_found"
	CodeBaseAlreadyExists  ErrorCode = "base_already_exists"
	CodeBaseNotEmpty       ErrorCode = "base_not_empty"
	CodeVersionConflict    ErrorCode = "version_conflict"
	CodeVectorDimMismatch  ErrorCode = "vector_dim_mismatch"
	CodeRateLimited        ErrorCode = "rate_limited"
	CodeQuotaExceeded      ErrorCode = "embedding_quota_exceeded"
	CodeEmbeddingProvider  ErrorCode = "embedding_provider_error"
	CodeGenerationFailed   ErrorCode = "generation_unavailable"
	CodeRetrievalFailed    ErrorCode = "retrieval_failed"
	CodeNoResults          ErrorCode = "no_results"
	CodeKeywordUnsupported ErrorCode = "keyword_search_not_supported"
	CodeInternalError      ErrorCode = "internal_error"
)

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Code           ErrorCode `json:"code"`
	Message        string    `json:"message"`
	CurrentVersion *int      `json:"current_version,omitempty"`
}

// AskRequest is the question payload. Base and Bases are merged; both empty
// defers base selection to the router.
type AskRequest struct {
	Query   string            `json:"query"`
	Base    string            `json:"base,omitempty"`
	Bases   []string          `json:"bases,omitempty"`
	TopK    *int              `json:"top_k,omitempty"`
	Alpha   *float64          `json:"alpha,omitempty"`
	Filters *FilterExpression `json:"filters,omitempty"`
	NoCache bool              `json:"no_cache,omitempty"`
}

func (r AskRequest) effectiveBases() []string {
	if r.Base == "" {
		return r.Bases
	}
	return append([]string{r.Base}, r.Bases...)
}

// FilterExpression mirrors the domain filter tree on the wire.
type FilterExpression struct {
	Must    []FilterCondition `json:"must,omitempty"`
	Should  []FilterCondition `json:"should,omitempty"`
	MustNot []FilterCondition `json:"must_not,omitempty"`
}

// FilterCondition carries exactly one of Match or Range.
type FilterCondition struct {
	Key   string       `json:"key"`
	Match *string      `json:"match,omitempty"`
	Range *RangeFilter `json:"range,omitempty"`
}

// RangeFilter is a numeric range with optional bounds.
type RangeFilter struct {
	Gt  *float64 `json:"gt,omitempty"`
	Gte *float64 `json:"gte,omitempty"`
	Lt  *float64 `json:"lt,omitempty"`
	Lte *float64 `json:"lte,omitempty"`
}

// PassageDTO is one cited passage in an answer.
type PassageDTO struct {
	Base     string             `json:"base"`
	DocID    string             `json:"doc_id"`
	Content  string             `json:"content"`
	Score    float64            `json:"score"`
	Position int                `json:"position"`
	Tags     map[string]string  `json:"tags,omitempty"`
	Numerics map[string]float64 `json:"numerics,omitempty"`
}

// SourceRef names a document version an answer was built from.
type SourceRef struct {
	Base    string `json:"base"`
	DocID   string `json:"doc_id"`
	Version int    `json:"version"`
}

// AskResponse is the answer payload. Code is set only for the no-results
// outcome, which is a 200 by contract.
type AskResponse struct {
	ID               string       `json:"id"`
	Answer           string       `json:"answer"`
	Passages         []PassageDTO `json:"passages"`
	Sources          []SourceRef  `json:"sources,omitempty"`
	Reranked         bool         `json:"reranked"`
	Cached           bool         `json:"cached"`
	Partial          bool         `json:"partial,omitempty"`
	RetrievalSkipped bool         `json:"retrieval_skipped,omitempty"`
	DegradedStages   []string     `json:"degraded_stages,omitempty"`
	SkippedStages    []string     `json:"skipped_stages,omitempty"`
	Code             ErrorCode    `json:"code,omitempty"`
}

// FieldDefinition declares one metadata field in a base schema.
type FieldDefinition struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// CreateBaseRequest creates a knowledge base.
type CreateBaseRequest struct {
	Name         string            `json:"name"`
	Description  string            `json:"description,omitempty"`
	ContentClass string            `json:"content_class,omitempty"`
	Fields       []FieldDefinition `json:"fields,omitempty"`
}

// BaseResponse describes a knowledge base.
type BaseResponse struct {
	Name             string            `json:"name"`
	Description      string            `json:"description,omitempty"`
	ContentClass     string            `json:"content_class"`
	Fields           []FieldDefinition `json:"fields,omitempty"`
	VectorDimensions int               `json:"vector_dimensions,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	Revision         int               `json:"revision"`
	DocumentCount    *int              `json:"document_count,omitempty"`
}

// BaseListResponse is a cursor page of bases.
type BaseListResponse struct {
	Items      []BaseResponse `json:"items"`
	HasMore    bool           `json:"has_more"`
	NextCursor *string        `json:"next_cursor,omitempty"`
}

// UpsertDocumentRequest is a full document write.
type UpsertDocumentRequest struct {
	Content  string             `json:"content"`
	Tags     map[string]string  `json:"tags,omitempty"`
	Numerics map[string]float64 `json:"numerics,omitempty"`
}

// PatchDocumentRequest is a partial document update; a null tag or numeric
// deletes the field.
type PatchDocumentRequest struct {
	Content  *string             `json:"content,omitempty"`
	Tags     map[string]*string  `json:"tags,omitempty"`
	Numerics map[string]*float64 `json:"numerics,omitempty"`
}

// DocumentResponse describes a stored document.
type DocumentResponse struct {
	ID       string             `json:"id"`
	Content  string             `json:"content"`
	Version  int                `json:"version"`
	Tags     map[string]string  `json:"tags,omitempty"`
	Numerics map[string]float64 `json:"numerics,omitempty"`
}

// DocumentListResponse is a cursor page of documents.
type DocumentListResponse struct {
	Items      []DocumentResponse `json:"items"`
	HasMore    bool               `json:"has_more"`
	NextCursor *string            `json:"next_cursor,omitempty"`
}

// BatchUpsertItem is one document in a bulk write.
type BatchUpsertItem struct {
	ID       string             `json:"id"`
	Content  string             `json:"content"`
	Tags     map[string]string  `json:"tags,omitempty"`
	Numerics map[string]float64 `json:"numerics,omitempty"`
}

// BatchUpsertRequest is a bulk document write.
type BatchUpsertRequest struct {
	Documents []BatchUpsertItem `json:"documents"`
}

// BatchDeleteRequest is a bulk document delete.
type BatchDeleteRequest struct {
	IDs []string `json:"ids"`
}

// BatchResultItem is the per-item outcome of a bulk operation.
type BatchResultItem struct {
	ID      string         `json:"id"`
	Status  string         `json:"status"`
	Version int            `json:"version,omitempty"`
	Error   *ErrorResponse `json:"error,omitempty"`
}

// BatchResponse summarizes a bulk operation.
type BatchResponse struct {
	Items     []BatchResultItem `json:"items"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
}

// InvalidateRequest drops every cache entry tagged with a document.
type InvalidateRequest struct {
	Base  string `json:"base"`
	DocID string `json:"doc_id"`
}

// InvalidateResponse reports how many entries were dropped.
type InvalidateResponse struct {
	Dropped int `json:"dropped"`
}

// UsageMetrics is the consumption half of a usage report.
type UsageMetrics struct {
	Tokens           int  `json:"tokens"`
	CostMillidollars *int `json:"cost_millidollars,omitempty"`
}

// BudgetStatus is the remaining-budget half of a usage report.
type BudgetStatus struct {
	TokensLimit     int        `json:"tokens_limit"`
	TokensRemaining int        `json:"tokens_remaining"`
	IsExhausted     bool       `json:"is_exhausted"`
	ResetsAt        *time.Time `json:"resets_at,omitempty"`
}

// UsageResponse is the token usage and budget report.
type UsageResponse struct {
	Period        string       `json:"period"`
	Provider      string       `json:"provider,omitempty"`
	PeriodStartAt *time.Time   `json:"period_start_at,omitempty"`
	PeriodEndAt   *time.Time   `json:"period_end_at,omitempty"`
	Usage         UsageMetrics `json:"usage"`
	Budget        BudgetStatus `json:"budget"`
}

// HealthResponse reports per-component health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func answerToDTO(a answer.Answer) AskResponse {
	passages := make([]PassageDTO, len(a.Passages()))
	for i, p := range a.Passages() {
		baseName, docID, ok := domain.SplitDocRef(p.DocID())
		if !ok {
			docID = p.DocID()
		}
		passages[i] = PassageDTO{
			Base:     baseName,
			DocID:    docID,
			Content:  p.Content(),
			Score:    p.CrossScore(),
			Position: p.Position(),
			Tags:     p.Tags(),
			Numerics: p.Numerics(),
		}
	}

	var sources []SourceRef
	for ref, version := range a.SourceVersions() {
		baseName, docID, ok := domain.SplitDocRef(ref)
		if !ok {
			continue
		}
		sources = append(sources, SourceRef{Base: baseName, DocID: docID, Version: version})
	}
	sort.Slice(sources, func(i, j int) bool {
		if sources[i].Base != sources[j].Base {
			return sources[i].Base < sources[j].Base
		}
		return sources[i].DocID < sources[j].DocID
	})

	return AskResponse{
		ID:               uuid.NewString(),
		Answer:           a.Text(),
		Passages:         passages,
		Sources:          sources,
		Reranked:         a.Reranked(),
		Cached:           a.Cached(),
		Partial:          a.Partial(),
		RetrievalSkipped: a.RetrievalSkipped(),
		DegradedStages:   a.DegradedStages(),
		SkippedStages:    a.SkippedStages(),
	}
}

// noResultsResponse is the 200 envelope for a query that matched nothing.
func noResultsResponse() AskResponse {
	return AskResponse{
		ID:       uuid.NewString(),
		Passages: []PassageDTO{},
		Code:     CodeNoResults,
	}
}

func filtersFromDTO(f *FilterExpression) (filter.Expression, error) {
	if f == nil {
		return filter.Expression{}, nil
	}

	must, err := conditionsFromDTO(f.Must)
	if err != nil {
		return filter.Expression{}, err
	}
	should, err := conditionsFromDTO(f.Should)
	if err != nil {
		return filter.Expression{}, err
	}
	mustNot, err := conditionsFromDTO(f.MustNot)
	if err != nil {
		return filter.Expression{}, err
	}

	expr, err := filter.NewExpression(must, should, mustNot)
	if err != nil {
		return filter.Expression{}, fmt.Errorf("new expression: %w", err)
	}
	return expr, nil
}

func conditionsFromDTO(cs []FilterCondition) ([]filter.Condition, error) {
	if len(cs) == 0 {
		return nil, nil
	}
	out := make([]filter.Condition, 0, len(cs))
	for _, c := range cs {
		cond, err := conditionFromDTO(c)
		if err != nil {
			return nil, err
		}
		out = append(out, cond)
	}
	return out, nil
}

func conditionFromDTO(c FilterCondition) (filter.Condition, error) {
	if c.Match != nil && c.Range != nil {
		return filter.Condition{},
			fmt.Errorf("filter condition for %q must have match or range, not both", c.Key)
	}
	if c.Match != nil {
		cond, err := filter.NewMatch(c.Key, *c.Match)
		if err != nil {
			return filter.Condition{}, fmt.Errorf("match filter: %w", err)
		}
		return cond, nil
	}
	if c.Range != nil {
		rf, err := filter.NewRangeFilter(c.Range.Gt, c.Range.Gte, c.Range.Lt, c.Range.Lte)
		if err != nil {
			return filter.Condition{}, fmt.Errorf("range filter: %w", err)
		}
		cond, err := filter.NewRange(c.Key, rf)
		if err != nil {
			return filter.Condition{}, fmt.Errorf("range condition: %w", err)
		}
		return cond, nil
	}
	return filter.Condition{}, fmt.Errorf("filter condition for %q must have match or range", c.Key)
}

func baseToDTO(b dombase.Base) BaseResponse {
	var fields []FieldDefinition
	if len(b.Fields()) > 0 {
		fields = make([]FieldDefinition, len(b.Fields()))
		for i, f := range b.Fields() {
			fields[i] = FieldDefinition{Name: f.Name(), Type: string(f.FieldType())}
		}
	}

	return BaseResponse{
		Name:             b.Name(),
		Description:      b.Description(),
		ContentClass:     string(b.ContentClass()),
		Fields:           fields,
		VectorDimensions: b.VectorDim(),
		CreatedAt:        time.UnixMilli(b.CreatedAt()).UTC(),
		Revision:         b.Revision(),
	}
}

func fieldsFromDTO(ff []FieldDefinition) ([]field.Field, error) {
	if len(ff) == 0 {
		return nil, nil
	}
	fields := make([]field.Field, len(ff))
	for i, f := range ff {
		fld, err := field.New(f.Name, field.Type(f.Type))
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		fields[i] = fld
	}
	return fields, nil
}

func documentToDTO(doc *domdoc.Document) DocumentResponse {
	var tags map[string]string
	if len(doc.Tags()) > 0 {
		tags = doc.Tags()
	}

	var numerics map[string]float64
	if len(doc.Numerics()) > 0 {
		numerics = doc.Numerics()
	}

	return DocumentResponse{
		ID:       doc.ID(),
		Content:  doc.Content(),
		Version:  doc.Version(),
		Tags:     tags,
		Numerics: numerics,
	}
}

func documentFromUpsert(id string, req UpsertDocumentRequest) (domdoc.Document, error) {
	doc, err := domdoc.New(id, req.Content, req.Tags, req.Numerics)
	if err != nil {
		return domdoc.Document{}, fmt.Errorf("build document: %w", err)
	}
	return doc, nil
}

func batchItemToDoc(item BatchUpsertItem) (domdoc.Document, error) {
	doc, err := domdoc.New(item.ID, item.Content, item.Tags, item.Numerics)
	if err != nil {
		return domdoc.Document{}, fmt.Errorf("build batch item: %w", err)
	}
	return doc, nil
}

func patchFromDTO(req PatchDocumentRequest) (patch.Patch, error) {
	p, err := patch.New(req.Content, req.Tags, req.Numerics)
	if err != nil {
		return patch.Patch{}, fmt.Errorf("build patch: %w", err)
	}
	return p, nil
}

func batchResultToDTO(r dombatch.Result) BatchResultItem {
	item := BatchResultItem{
		ID:      r.ID(),
		Status:  string(r.Status()),
		Version: r.Version(),
	}
	if r.Err() != nil {
		item.Error = &ErrorResponse{
			Code:    batchErrorCode(r.Err()),
			Message: safeDomainMessage(r.Err()),
		}
	}
	return item
}
