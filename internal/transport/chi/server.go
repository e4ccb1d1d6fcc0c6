package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	dombase "github.com/kailas-cloud/ragdex/internal/domain/base"
	dombatch "github.com/kailas-cloud/ragdex/internal/domain/batch"
	domdoc "github.com/kailas-cloud/ragdex/internal/domain/document"
	"github.com/kailas-cloud/ragdex/internal/domain/query"
	domusage "github.com/kailas-cloud/ragdex/internal/domain/usage"
	logpkg "github.com/kailas-cloud/ragdex/internal/logger"
	askuc "github.com/kailas-cloud/ragdex/internal/usecase/ask"
	baseuc "github.com/kailas-cloud/ragdex/internal/usecase/base"
	batchuc "github.com/kailas-cloud/ragdex/internal/usecase/batch"
	documentuc "github.com/kailas-cloud/ragdex/internal/usecase/document"
	healthuc "github.com/kailas-cloud/ragdex/internal/usecase/health"
	usageuc "github.com/kailas-cloud/ragdex/internal/usecase/usage"
)

const maxBatchSize = 100

// CacheInvalidator drops cache entries tagged with a document on demand.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, baseName, docID string) int
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server exposes the ask pipeline and the knowledge base management API
// over chi.
type Server struct {
	ask           *askuc.Service
	bases         *baseuc.Service
	documents     *documentuc.Service
	batch         *batchuc.Service
	cache         CacheInvalidator
	usage         *usageuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. cache may be nil when the cache is
// not wired; the invalidation endpoint then reports zero drops.
func NewServer(
	ask *askuc.Service,
	bases *baseuc.Service,
	documents *documentuc.Service,
	batch *batchuc.Service,
	cache CacheInvalidator,
	usage *usageuc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		ask:       ask,
		bases:     bases,
		documents: documents,
		batch:     batch,
		cache:     cache,
		usage:     usage,
		health:    health,
		logger:    logger,
	}
	s.errorHandlers = []errorHandler{
		versionConflictHandler,
		sentinelHandler(domain.ErrBaseNotFound, http.StatusNotFound, CodeBaseNotFound),
		sentinelHandler(domain.ErrDocumentNotFound, http.StatusNotFound, CodeDocumentNotFound),
		sentinelHandler(domain.ErrAlreadyExists, http.StatusConflict, CodeBaseAlreadyExists),
		sentinelHandler(domain.ErrBaseNotEmpty, http.StatusConflict, CodeBaseNotEmpty),
		sentinelHandler(domain.ErrVectorDimMismatch, http.StatusBadRequest, CodeVectorDimMismatch),
		sentinelHandler(domain.ErrInvalidSchema, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, CodeRateLimited),
		sentinelHandler(domain.ErrEmbeddingQuotaExceeded, http.StatusPaymentRequired, CodeQuotaExceeded),
		sentinelHandler(domain.ErrEmbeddingUnavailable, http.StatusBadGateway, CodeEmbeddingProvider),
		sentinelHandler(domain.ErrGenerationUnavailable, http.StatusBadGateway, CodeGenerationFailed),
		sentinelHandler(domain.ErrRetrievalFailed, http.StatusBadGateway, CodeRetrievalFailed),
		sentinelHandler(domain.ErrKeywordSearchNotSupported,
			http.StatusNotImplemented, CodeKeywordUnsupported),
	}
	return s
}

// Routes mounts every API route on the given router.
func (s *Server) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/ask", s.Ask)

		r.Route("/bases", func(r chi.Router) {
			r.Post("/", s.CreateBase)
			r.Get("/", s.ListBases)
			r.Route("/{base}", func(r chi.Router) {
				r.Get("/", s.GetBase)
				r.Delete("/", s.DeleteBase)
				r.Route("/documents", func(r chi.Router) {
					r.Get("/", s.ListDocuments)
					r.Post("/batch", s.BatchUpsert)
					r.Delete("/batch", s.BatchDelete)
					r.Put("/{id}", s.UpsertDocument)
					r.Get("/{id}", s.GetDocument)
					r.Patch("/{id}", s.PatchDocument)
					r.Delete("/{id}", s.DeleteDocument)
				})
			})
		})

		r.Post("/cache/invalidate", s.InvalidateCache)
		r.Get("/usage", s.GetUsage)
	})

	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// Ask handles POST /api/v1/ask.
func (s *Server) Ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	filters, err := filtersFromDTO(req.Filters)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return
	}

	q, err := query.New(req.Query, req.effectiveBases(), derefInt(req.TopK), req.Alpha, filters, req.NoCache)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	a, err := s.ask.Ask(ctx, q)
	if err != nil {
		// An empty match set is a valid outcome, not an error status.
		if errors.Is(err, domain.ErrNoResults) {
			setUsageHeaders(w, usage)
			writeJSON(w, http.StatusOK, noResultsResponse())
			return
		}
		s.handleDomainError(w, r, err)
		return
	}

	setUsageHeaders(w, usage)
	writeJSON(w, http.StatusOK, answerToDTO(a))
}

// CreateBase handles POST /api/v1/bases.
func (s *Server) CreateBase(w http.ResponseWriter, r *http.Request) {
	var req CreateBaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.Name == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "Base name is required")
		return
	}

	fields, err := fieldsFromDTO(req.Fields)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return
	}

	b, err := s.bases.Create(r.Context(), req.Name, req.Description,
		dombase.ContentClass(req.ContentClass), fields)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, baseToDTO(b))
}

// ListBases handles GET /api/v1/bases.
func (s *Server) ListBases(w http.ResponseWriter, r *http.Request) {
	bases, err := s.bases.List(r.Context())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	items := make([]BaseResponse, len(bases))
	for i, b := range bases {
		items[i] = baseToDTO(b)
	}

	writeJSON(w, http.StatusOK, paginateBases(items, r.URL.Query().Get("cursor"), queryLimit(r, 20)))
}

func paginateBases(items []BaseResponse, cursor string, limit int) BaseListResponse {
	startIdx := 0
	if cursor != "" {
		for i, item := range items {
			if item.Name == cursor {
				startIdx = i + 1
				break
			}
		}
	}

	end := startIdx + limit
	if end > len(items) {
		end = len(items)
	}

	page := items[startIdx:end]
	hasMore := end < len(items)

	resp := BaseListResponse{
		Items:   page,
		HasMore: hasMore,
	}
	if hasMore && len(page) > 0 {
		c := page[len(page)-1].Name
		resp.NextCursor = &c
	}
	return resp
}

// GetBase handles GET /api/v1/bases/{base}.
func (s *Server) GetBase(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "base")

	b, err := s.bases.Get(r.Context(), name)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	resp := baseToDTO(b)

	count, err := s.documents.Count(r.Context(), name)
	if err == nil {
		resp.DocumentCount = &count
	}

	w.Header().Set("ETag", strconv.Quote(strconv.Itoa(b.Revision())))
	writeJSON(w, http.StatusOK, resp)
}

// DeleteBase handles DELETE /api/v1/bases/{base}. ?force=true also deletes
// the documents a non-empty base still holds.
func (s *Server) DeleteBase(w http.ResponseWriter, r *http.Request) {
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	if err := s.bases.Delete(r.Context(), chi.URLParam(r, "base"), force); err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UpsertDocument handles PUT /api/v1/bases/{base}/documents/{id}. An
// If-Match header makes the write conditional on the current version.
func (s *Server) UpsertDocument(w http.ResponseWriter, r *http.Request) {
	baseName := chi.URLParam(r, "base")
	id := chi.URLParam(r, "id")

	var req UpsertDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	expectedVersion, err := parseIfMatch(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	doc, err := documentFromUpsert(id, req)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	created, version, err := s.documents.Upsert(ctx, baseName, &doc, expectedVersion)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		w.Header().Set("Location", fmt.Sprintf("/api/v1/bases/%s/documents/%s", baseName, id))
	}
	w.Header().Set("ETag", strconv.Quote(strconv.Itoa(version)))
	setUsageHeaders(w, usage)

	stored := doc.WithVersion(version)
	writeJSON(w, status, documentToDTO(&stored))
}

// GetDocument handles GET /api/v1/bases/{base}/documents/{id}.
func (s *Server) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.documents.Get(r.Context(), chi.URLParam(r, "base"), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	w.Header().Set("ETag", strconv.Quote(strconv.Itoa(doc.Version())))
	writeJSON(w, http.StatusOK, documentToDTO(&doc))
}

// DeleteDocument handles DELETE /api/v1/bases/{base}/documents/{id}.
func (s *Server) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.documents.Delete(r.Context(), chi.URLParam(r, "base"), chi.URLParam(r, "id")); err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListDocuments handles GET /api/v1/bases/{base}/documents.
func (s *Server) ListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, nextCursor, err := s.documents.List(
		r.Context(), chi.URLParam(r, "base"), r.URL.Query().Get("cursor"), queryLimit(r, 0))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	items := make([]DocumentResponse, len(docs))
	for i, d := range docs {
		items[i] = documentToDTO(&d)
	}

	resp := DocumentListResponse{
		Items:   items,
		HasMore: nextCursor != "",
	}
	if nextCursor != "" {
		resp.NextCursor = &nextCursor
	}

	writeJSON(w, http.StatusOK, resp)
}

// PatchDocument handles PATCH /api/v1/bases/{base}/documents/{id}.
func (s *Server) PatchDocument(w http.ResponseWriter, r *http.Request) {
	var req PatchDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	expectedVersion, err := parseIfMatch(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	p, err := patchFromDTO(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	doc, err := s.documents.Patch(ctx, chi.URLParam(r, "base"), chi.URLParam(r, "id"), p, expectedVersion)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	w.Header().Set("ETag", strconv.Quote(strconv.Itoa(doc.Version())))
	setUsageHeaders(w, usage)
	writeJSON(w, http.StatusOK, documentToDTO(&doc))
}

// BatchUpsert handles POST /api/v1/bases/{base}/documents/batch.
func (s *Server) BatchUpsert(w http.ResponseWriter, r *http.Request) {
	var req BatchUpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if len(req.Documents) == 0 || len(req.Documents) > maxBatchSize {
		writeError(w, http.StatusBadRequest, CodeValidationFailed,
			fmt.Sprintf("documents count must be between 1 and %d", maxBatchSize))
		return
	}

	docs := make([]domdoc.Document, 0, len(req.Documents))
	for _, item := range req.Documents {
		doc, err := batchItemToDoc(item)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
			return
		}
		docs = append(docs, doc)
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	results := s.batch.Upsert(ctx, chi.URLParam(r, "base"), docs)

	setUsageHeaders(w, usage)
	writeJSON(w, http.StatusOK, batchResponse(results))
}

// BatchDelete handles DELETE /api/v1/bases/{base}/documents/batch.
func (s *Server) BatchDelete(w http.ResponseWriter, r *http.Request) {
	var req BatchDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if len(req.IDs) == 0 || len(req.IDs) > maxBatchSize {
		writeError(w, http.StatusBadRequest, CodeValidationFailed,
			fmt.Sprintf("ids count must be between 1 and %d", maxBatchSize))
		return
	}

	results := s.batch.Delete(r.Context(), chi.URLParam(r, "base"), req.IDs)

	writeJSON(w, http.StatusOK, batchResponse(results))
}

func batchResponse(results []dombatch.Result) BatchResponse {
	succeeded, failed := 0, 0
	items := make([]BatchResultItem, len(results))
	for i, res := range results {
		items[i] = batchResultToDTO(res)
		if res.Status() == dombatch.StatusOK {
			succeeded++
		} else {
			failed++
		}
	}

	return BatchResponse{
		Items:     items,
		Succeeded: succeeded,
		Failed:    failed,
	}
}

// InvalidateCache handles POST /api/v1/cache/invalidate. The base must
// exist; the document does not have to, so entries tagged with an already
// deleted document can still be flushed.
func (s *Server) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	var req InvalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.Base == "" || req.DocID == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "base and doc_id are required")
		return
	}

	if _, err := s.bases.Get(r.Context(), req.Base); err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	dropped := 0
	if s.cache != nil {
		dropped = s.cache.Invalidate(r.Context(), req.Base, req.DocID)
	}

	writeJSON(w, http.StatusOK, InvalidateResponse{Dropped: dropped})
}

// GetUsage handles GET /api/v1/usage.
func (s *Server) GetUsage(w http.ResponseWriter, r *http.Request) {
	period := domusage.PeriodMonth
	switch r.URL.Query().Get("period") {
	case "day":
		period = domusage.PeriodDay
	case "total":
		period = domusage.PeriodTotal
	}

	report := s.usage.GetReport(r.Context(), period)

	resp := UsageResponse{
		Period:   string(report.Period()),
		Provider: report.Provider(),
		Usage: UsageMetrics{
			Tokens: report.Metrics().Tokens(),
		},
		Budget: BudgetStatus{
			TokensLimit:     report.Budget().TokensLimit(),
			TokensRemaining: report.Budget().TokensRemaining(),
			IsExhausted:     report.Budget().IsExhausted(),
		},
	}

	if cost := report.Metrics().CostMillidollars(); cost > 0 {
		resp.Usage.CostMillidollars = &cost
	}

	if report.PeriodStart() > 0 {
		start := time.UnixMilli(report.PeriodStart()).UTC()
		end := time.UnixMilli(report.PeriodEnd()).UTC()
		resp.PeriodStartAt = &start
		resp.PeriodEndAt = &end
	}

	if report.Budget().ResetsAt() > 0 {
		resetsAt := time.UnixMilli(report.Budget().ResetsAt()).UTC()
		resp.Budget.ResetsAt = &resetsAt
	}

	writeJSON(w, http.StatusOK, resp)
}

// HealthCheck handles GET /health. Only a total outage is a 503; a degraded
// pipeline still serves requests.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// parseIfMatch extracts the expected document version from an If-Match
// header. Absent or "*" means an unconditional write.
func parseIfMatch(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.Header.Get("If-Match"))
	if raw == "" || raw == "*" {
		return domain.SkipVersionCheck, nil
	}
	if unq, err := strconv.Unquote(raw); err == nil {
		raw = unq
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0, fmt.Errorf("if-match must be a positive version number")
	}
	return v, nil
}

func queryLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func setUsageHeaders(w http.ResponseWriter, usage *domain.TokenUsage) {
	if usage == nil || !usage.Used {
		return
	}
	w.Header().Set("X-Embedding-Tokens", strconv.Itoa(usage.EmbeddingTokens))
	if usage.GenerationTokens > 0 {
		w.Header().Set("X-Generation-Tokens", strconv.Itoa(usage.GenerationTokens))
	}
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrBaseNotFound,
		domain.ErrDocumentNotFound,
		domain.ErrAlreadyExists,
		domain.ErrBaseNotEmpty,
		domain.ErrVersionConflict,
		domain.ErrVectorDimMismatch,
		domain.ErrInvalidSchema,
		domain.ErrRateLimited,
		domain.ErrEmbeddingQuotaExceeded,
		domain.ErrEmbeddingUnavailable,
		domain.ErrGenerationUnavailable,
		domain.ErrRetrievalFailed,
		domain.ErrKeywordSearchNotSupported,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// versionConflictHandler handles ErrVersionConflict with ETag header and extra fields.
func versionConflictHandler(w http.ResponseWriter, err error, msg string) bool {
	if !errors.Is(err, domain.ErrVersionConflict) {
		return false
	}
	var vce *domain.VersionConflictError
	if errors.As(err, &vce) {
		w.Header().Set("ETag", strconv.Quote(strconv.Itoa(vce.CurrentVersion)))
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Code:           CodeVersionConflict,
			Message:        msg,
			CurrentVersion: &vce.CurrentVersion,
		})
		return true
	}
	writeError(w, http.StatusConflict, CodeVersionConflict, msg)
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	// Request-scoped logger carries request_id, so error lines correlate
	// with the canonical http_request line.
	log := logpkg.FromContext(r.Context(), s.logger)
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func batchErrorCode(err error) ErrorCode {
	switch {
	case errors.Is(err, domain.ErrBaseNotFound):
		return CodeBaseNotFound
	case errors.Is(err, domain.ErrDocumentNotFound):
		return CodeDocumentNotFound
	case errors.Is(err, domain.ErrVectorDimMismatch):
		return CodeVectorDimMismatch
	case errors.Is(err, domain.ErrInvalidSchema):
		return CodeValidationFailed
	case errors.Is(err, domain.ErrEmbeddingQuotaExceeded):
		return CodeQuotaExceeded
	case errors.Is(err, domain.ErrEmbeddingUnavailable):
		return CodeEmbeddingProvider
	case errors.Is(err, domain.ErrRateLimited):
		return CodeRateLimited
	default:
		return CodeInternalError
	}
}
