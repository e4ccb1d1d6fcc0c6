package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/answer"
	dombase "github.com/kailas-cloud/ragdex/internal/domain/base"
	domcache "github.com/kailas-cloud/ragdex/internal/domain/cache"
	domdoc "github.com/kailas-cloud/ragdex/internal/domain/document"
	"github.com/kailas-cloud/ragdex/internal/domain/document/patch"
	"github.com/kailas-cloud/ragdex/internal/domain/fusion"
	"github.com/kailas-cloud/ragdex/internal/domain/query/filter"
	droute "github.com/kailas-cloud/ragdex/internal/domain/route"
	askuc "github.com/kailas-cloud/ragdex/internal/usecase/ask"
	baseuc "github.com/kailas-cloud/ragdex/internal/usecase/base"
	batchuc "github.com/kailas-cloud/ragdex/internal/usecase/batch"
	documentuc "github.com/kailas-cloud/ragdex/internal/usecase/document"
	"github.com/kailas-cloud/ragdex/internal/usecase/expand"
	healthuc "github.com/kailas-cloud/ragdex/internal/usecase/health"
	"github.com/kailas-cloud/ragdex/internal/usecase/rerank"
	"github.com/kailas-cloud/ragdex/internal/usecase/retrieval"
	usageuc "github.com/kailas-cloud/ragdex/internal/usecase/usage"
)

// --- Fakes ---

// fakeDocStore is an in-memory document repository keyed by qualified ref.
// Writes record the expected version they were called with.
type fakeDocStore struct {
	docs         map[string]domdoc.Document
	upsertErr    error
	failID       string
	failErr      error
	lastExpected int
}

func (f *fakeDocStore) Upsert(_ context.Context, baseName string, doc *domdoc.Document, expectedVersion int) (int, error) {
	f.lastExpected = expectedVersion
	if f.upsertErr != nil {
		return 0, f.upsertErr
	}
	if f.failErr != nil && doc.ID() == f.failID {
		return 0, f.failErr
	}
	ref := domain.DocRef(baseName, doc.ID())
	version := 1
	if cur, ok := f.docs[ref]; ok {
		version = cur.Version() + 1
	}
	f.docs[ref] = doc.WithVersion(version)
	return version, nil
}

func (f *fakeDocStore) Get(_ context.Context, baseName, id string) (domdoc.Document, error) {
	doc, ok := f.docs[domain.DocRef(baseName, id)]
	if !ok {
		return domdoc.Document{}, domain.ErrDocumentNotFound
	}
	return doc, nil
}

func (f *fakeDocStore) List(_ context.Context, baseName, _ string, _ int) ([]domdoc.Document, string, error) {
	refs := make([]string, 0, len(f.docs))
	for ref := range f.docs {
		if strings.HasPrefix(ref, baseName+"/") {
			refs = append(refs, ref)
		}
	}
	sort.Strings(refs)
	out := make([]domdoc.Document, 0, len(refs))
	for _, ref := range refs {
		out = append(out, f.docs[ref])
	}
	return out, "", nil
}

func (f *fakeDocStore) Delete(_ context.Context, baseName, id string) (int, error) {
	ref := domain.DocRef(baseName, id)
	doc, ok := f.docs[ref]
	if !ok {
		return 0, domain.ErrDocumentNotFound
	}
	delete(f.docs, ref)
	return doc.Version(), nil
}

func (f *fakeDocStore) Patch(_ context.Context, baseName, id string, p patch.Patch, _ []float32, expectedVersion int) (int, error) {
	f.lastExpected = expectedVersion
	ref := domain.DocRef(baseName, id)
	doc, ok := f.docs[ref]
	if !ok {
		return 0, domain.ErrDocumentNotFound
	}
	content := doc.Content()
	if p.HasContent() {
		content = *p.Content()
	}
	updated, err := domdoc.New(id, content, doc.Tags(), doc.Numerics())
	if err != nil {
		return 0, err
	}
	version := doc.Version() + 1
	f.docs[ref] = updated.WithVersion(version)
	return version, nil
}

func (f *fakeDocStore) Count(_ context.Context, baseName string) (int, error) {
	n := 0
	for ref := range f.docs {
		if strings.HasPrefix(ref, baseName+"/") {
			n++
		}
	}
	return n, nil
}

// fakeBaseStore is an in-memory base repository. Purges reach through to
// the document store, the way both repositories share one database.
type fakeBaseStore struct {
	bases   map[string]dombase.Base
	docs    *fakeDocStore
	listErr error
}

func (f *fakeBaseStore) Create(_ context.Context, b dombase.Base) error {
	if _, ok := f.bases[b.Name()]; ok {
		return domain.ErrAlreadyExists
	}
	f.bases[b.Name()] = b
	return nil
}

func (f *fakeBaseStore) Get(_ context.Context, name string) (dombase.Base, error) {
	b, ok := f.bases[name]
	if !ok {
		return dombase.Base{}, domain.ErrBaseNotFound
	}
	return b, nil
}

func (f *fakeBaseStore) List(_ context.Context) ([]dombase.Base, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	names := make([]string, 0, len(f.bases))
	for name := range f.bases {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]dombase.Base, 0, len(names))
	for _, name := range names {
		out = append(out, f.bases[name])
	}
	return out, nil
}

func (f *fakeBaseStore) Delete(_ context.Context, name string) error {
	if _, ok := f.bases[name]; !ok {
		return domain.ErrBaseNotFound
	}
	delete(f.bases, name)
	return nil
}

func (f *fakeBaseStore) PurgeDocuments(_ context.Context, name string) (int, error) {
	purged := 0
	for ref := range f.docs.docs {
		if strings.HasPrefix(ref, name+"/") {
			delete(f.docs.docs, ref)
			purged++
		}
	}
	return purged, nil
}

type fakeRouter struct {
	decision droute.Decision
	degraded bool
}

func (f *fakeRouter) Route(context.Context, string, []string) (droute.Decision, bool) {
	return f.decision, f.degraded
}

type fakeExpander struct{}

func (fakeExpander) Expand(_ context.Context, text string) ([]expand.Variant, bool) {
	return []expand.Variant{{Text: text, Weight: 1.0}}, false
}

type fakeRetriever struct {
	result retrieval.Result
	err    error
	calls  int
}

func (f *fakeRetriever) Retrieve(
	_ context.Context, _ []string, _ []expand.Variant, _ int, _ float64, _ filter.Expression,
) (retrieval.Result, error) {
	f.calls++
	return f.result, f.err
}

// fakeReranker keeps the fused order, reporting a clean rerank.
type fakeReranker struct{}

func (fakeReranker) Rerank(_ context.Context, _ string, fused []fusion.Fused, topK int) ([]answer.Passage, bool) {
	return rerank.FusedOrder(fused, topK), false
}

type fakeGenerator struct {
	text string
	err  error
}

func (f *fakeGenerator) Generate(context.Context, string) (domain.GenerationResult, error) {
	if f.err != nil {
		return domain.GenerationResult{}, f.err
	}
	return domain.GenerationResult{Text: f.text, TotalTokens: 12}, nil
}

// fakeAskCache keeps entries between requests so caching is observable.
type fakeAskCache struct {
	entries map[string][]byte
}

func (f *fakeAskCache) Get(_ context.Context, ns domcache.Namespace, key string) ([]byte, bool) {
	v, ok := f.entries[string(ns)+"|"+key]
	return v, ok
}

func (f *fakeAskCache) Set(_ context.Context, ns domcache.Namespace, key string, value []byte, _ time.Duration, _ map[string]int) {
	f.entries[string(ns)+"|"+key] = value
}

// fakeEmbedder returns empty embeddings: the lexical-only mode with no
// vector provider wired.
type fakeEmbedder struct{}

func (fakeEmbedder) Embed(context.Context, string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{}, nil
}

type fakeBatchEmbedder struct{}

func (fakeBatchEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	return domain.BatchEmbeddingResult{Embeddings: make([][]float32, len(texts))}, nil
}

type fakeInvalidator struct {
	dropped int
	bumps   int
}

func (f *fakeInvalidator) OnVersionBump(context.Context, string, string, int) int {
	f.bumps++
	return 0
}

func (f *fakeInvalidator) Invalidate(context.Context, string, string) int {
	return f.dropped
}

type fakePinger struct{ err error }

func (f *fakePinger) Ping(context.Context) error { return f.err }

type fakeLLM struct{ err error }

func (f *fakeLLM) HealthCheck(context.Context) error { return f.err }

type fakeBudget struct {
	daily, monthly         int64
	dailyUsed, monthlyUsed int64
}

func (f *fakeBudget) Provider() string    { return "openai" }
func (f *fakeBudget) DailyLimit() int64   { return f.daily }
func (f *fakeBudget) MonthlyLimit() int64 { return f.monthly }
func (f *fakeBudget) DailyUsed() int64    { return f.dailyUsed }
func (f *fakeBudget) MonthlyUsed() int64  { return f.monthlyUsed }

// --- Harness ---

// testEnv wires real services over the fakes, mirroring the composition in
// cmd/ragdex.
type testEnv struct {
	baseStore *fakeBaseStore
	docStore  *fakeDocStore
	router    *fakeRouter
	retriever *fakeRetriever
	generator domain.Generator
	inv       *fakeInvalidator
	budget    usageuc.BudgetReader
	costPerM  float64
	db        *fakePinger
	llm       healthuc.LLMChecker
	noCache   bool
}

func newTestEnv() *testEnv {
	docs := &fakeDocStore{docs: map[string]domdoc.Document{}}
	return &testEnv{
		baseStore: &fakeBaseStore{bases: map[string]dombase.Base{}, docs: docs},
		docStore:  docs,
		router:    &fakeRouter{decision: droute.New(true, nil, "retrieval")},
		retriever: &fakeRetriever{},
		inv:       &fakeInvalidator{},
		db:        &fakePinger{},
	}
}

func (e *testEnv) seedBase(name string, class dombase.ContentClass, revision int) {
	e.baseStore.bases[name] = dombase.Reconstruct(name, "", class, nil, 4, 1700000000000, revision)
}

func (e *testEnv) seedDoc(baseName, id, content string, version int) {
	doc, err := domdoc.New(id, content, nil, nil)
	if err != nil {
		panic(err)
	}
	e.docStore.docs[domain.DocRef(baseName, id)] = doc.WithVersion(version)
}

func (e *testEnv) handler() http.Handler {
	logger := zap.NewNop()
	baseSvc := baseuc.New(e.baseStore, e.docStore, 4, logger)
	docSvc := documentuc.New(e.docStore, e.baseStore, fakeEmbedder{}, e.inv)
	batchSvc := batchuc.New(e.docStore, e.docStore, e.baseStore, fakeBatchEmbedder{}, e.inv)
	askSvc := askuc.New(
		e.baseStore, e.router, fakeExpander{}, e.retriever, fakeReranker{},
		e.generator, &fakeAskCache{entries: map[string][]byte{}}, askuc.Config{}, logger)
	usageSvc := usageuc.New(e.budget, e.costPerM)
	healthSvc := healthuc.New(e.db, e.llm)

	var inv CacheInvalidator
	if !e.noCache {
		inv = e.inv
	}
	srv := NewServer(askSvc, baseSvc, docSvc, batchSvc, inv, usageSvc, healthSvc, logger)
	r := chi.NewRouter()
	srv.Routes(r)
	return r
}

func jsonReq(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp
}

func testFused() []fusion.Fused {
	return []fusion.Fused{
		fusion.Reconstruct("kb/doc-1", 0.032, nil,
			"Restart the pod with kubectl rollout restart.", 3,
			map[string]string{"service": "kubernetes"}, nil),
		fusion.Reconstruct("kb/doc-2", 0.027, nil,
			"Check events with kubectl describe pod.", 1, nil, nil),
	}
}

// --- Ask ---

func TestAsk_ExtractiveAnswer(t *testing.T) {
	env := newTestEnv()
	env.seedBase("kb", dombase.ClassDefault, 1)
	env.retriever.result = retrieval.Result{Fused: testFused()}
	// nil generator: the pipeline degrades to the top passage verbatim

	rr := serve(env.handler(), jsonReq(http.MethodPost, "/api/v1/ask",
		`{"query": "how do I fix a crashlooping pod?", "base": "kb"}`))

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d (%s)", rr.Code, http.StatusOK, rr.Body.String())
	}

	var resp AskResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Answer != "Restart the pod with kubectl rollout restart." {
		t.Errorf("answer: got %q", resp.Answer)
	}
	if len(resp.Passages) != 2 {
		t.Fatalf("passages: got %d, want 2", len(resp.Passages))
	}
	p := resp.Passages[0]
	if p.Base != "kb" || p.DocID != "doc-1" || p.Position != 1 {
		t.Errorf("top passage: got %+v", p)
	}
	if p.Tags["service"] != "kubernetes" {
		t.Errorf("passage tags: got %v", p.Tags)
	}
	if !resp.Reranked || resp.Cached {
		t.Errorf("flags: reranked=%v cached=%v", resp.Reranked, resp.Cached)
	}
	if len(resp.DegradedStages) != 1 || resp.DegradedStages[0] != answer.StageGenerate {
		t.Errorf("degraded stages: got %v", resp.DegradedStages)
	}
	want := []SourceRef{{Base: "kb", DocID: "doc-1", Version: 3}, {Base: "kb", DocID: "doc-2", Version: 1}}
	if len(resp.Sources) != 2 || resp.Sources[0] != want[0] || resp.Sources[1] != want[1] {
		t.Errorf("sources: got %v, want %v", resp.Sources, want)
	}
}

func TestAsk_CachedOnSecondRequest(t *testing.T) {
	env := newTestEnv()
	env.seedBase("kb", dombase.ClassDefault, 1)
	env.retriever.result = retrieval.Result{Fused: testFused()}
	env.generator = &fakeGenerator{text: "Run kubectl rollout restart."}

	h := env.handler()
	body := `{"query": "how do I fix a crashlooping pod?", "base": "kb"}`

	first := serve(h, jsonReq(http.MethodPost, "/api/v1/ask", body))
	if first.Code != http.StatusOK {
		t.Fatalf("first status: got %d (%s)", first.Code, first.Body.String())
	}
	var resp AskResponse
	if err := json.NewDecoder(first.Body).Decode(&resp); err != nil {
		t.Fatalf("decode first response: %v", err)
	}
	if resp.Cached {
		t.Error("first answer must not be cached")
	}

	second := serve(h, jsonReq(http.MethodPost, "/api/v1/ask", body))
	if err := json.NewDecoder(second.Body).Decode(&resp); err != nil {
		t.Fatalf("decode second response: %v", err)
	}
	if !resp.Cached {
		t.Error("second answer must come from cache")
	}
	if resp.Answer != "Run kubectl rollout restart." {
		t.Errorf("cached answer: got %q", resp.Answer)
	}
	if env.retriever.calls != 1 {
		t.Errorf("retriever calls: got %d, want 1", env.retriever.calls)
	}
}

func TestAsk_DirectAnswer(t *testing.T) {
	env := newTestEnv()
	env.seedBase("kb", dombase.ClassDefault, 1)
	env.router.decision = droute.New(false, nil, "greeting, no retrieval needed")
	env.generator = &fakeGenerator{text: "Hello! Ask me about your runbooks."}

	rr := serve(env.handler(), jsonReq(http.MethodPost, "/api/v1/ask", `{"query": "hi"}`))

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d (%s)", rr.Code, rr.Body.String())
	}
	var resp AskResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.RetrievalSkipped {
		t.Error("retrieval_skipped must be set")
	}
	if len(resp.Passages) != 0 {
		t.Errorf("passages: got %d, want 0", len(resp.Passages))
	}
	if env.retriever.calls != 0 {
		t.Errorf("retriever calls: got %d, want 0", env.retriever.calls)
	}
}

func TestAsk_DirectAnswerWithoutGenerator_502(t *testing.T) {
	env := newTestEnv()
	env.seedBase("kb", dombase.ClassDefault, 1)
	env.router.decision = droute.New(false, nil, "greeting")

	rr := serve(env.handler(), jsonReq(http.MethodPost, "/api/v1/ask", `{"query": "hi"}`))

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadGateway)
	}
	if resp := decodeError(t, rr); resp.Code != CodeGenerationFailed {
		t.Errorf("code: got %s, want %s", resp.Code, CodeGenerationFailed)
	}
}

func TestAsk_NoResults_200(t *testing.T) {
	env := newTestEnv()
	env.seedBase("kb", dombase.ClassDefault, 1)
	env.retriever.err = fmt.Errorf("hybrid fan-out: %w", domain.ErrNoResults)

	rr := serve(env.handler(), jsonReq(http.MethodPost, "/api/v1/ask",
		`{"query": "anything about quantum gardening?"}`))

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	var resp AskResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Code != CodeNoResults {
		t.Errorf("code: got %s, want %s", resp.Code, CodeNoResults)
	}
	if resp.Answer != "" || len(resp.Passages) != 0 {
		t.Errorf("no-results body: answer=%q passages=%d", resp.Answer, len(resp.Passages))
	}
}

func TestAsk_UnknownBase_404(t *testing.T) {
	env := newTestEnv()
	env.seedBase("kb", dombase.ClassDefault, 1)

	rr := serve(env.handler(), jsonReq(http.MethodPost, "/api/v1/ask",
		`{"query": "anything", "base": "ghost"}`))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
	if resp := decodeError(t, rr); resp.Code != CodeBaseNotFound {
		t.Errorf("code: got %s, want %s", resp.Code, CodeBaseNotFound)
	}
}

func TestAsk_BlankQuery_400(t *testing.T) {
	env := newTestEnv()
	env.seedBase("kb", dombase.ClassDefault, 1)

	rr := serve(env.handler(), jsonReq(http.MethodPost, "/api/v1/ask", `{"query": "   "}`))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
	if resp := decodeError(t, rr); resp.Code != CodeValidationFailed {
		t.Errorf("code: got %s, want %s", resp.Code, CodeValidationFailed)
	}
}

func TestAsk_FilterWithMatchAndRange_400(t *testing.T) {
	env := newTestEnv()
	env.seedBase("kb", dombase.ClassDefault, 1)

	body := `{
		"query": "restart",
		"filters": {"must": [{"key": "year", "match": "2026", "range": {"gte": 2026}}]}
	}`
	rr := serve(env.handler(), jsonReq(http.MethodPost, "/api/v1/ask", body))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
	if resp := decodeError(t, rr); resp.Code != CodeValidationFailed {
		t.Errorf("code: got %s, want %s", resp.Code, CodeValidationFailed)
	}
}

func TestAsk_MalformedBody_400(t *testing.T) {
	env := newTestEnv()

	rr := serve(env.handler(), jsonReq(http.MethodPost, "/api/v1/ask", `{"query": `))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
	if resp := decodeError(t, rr); resp.Code != CodeBadRequest {
		t.Errorf("code: got %s, want %s", resp.Code, CodeBadRequest)
	}
}

func TestAsk_StoreFailure_500(t *testing.T) {
	env := newTestEnv()
	env.baseStore.listErr = errors.New("dial tcp: connection refused")

	rr := serve(env.handler(), jsonReq(http.MethodPost, "/api/v1/ask", `{"query": "anything"}`))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusInternalServerError)
	}
	resp := decodeError(t, rr)
	if resp.Code != CodeInternalError {
		t.Errorf("code: got %s, want %s", resp.Code, CodeInternalError)
	}
	// Driver errors never leak to the client.
	if strings.Contains(resp.Message, "dial tcp") {
		t.Errorf("message leaks internals: %q", resp.Message)
	}
}

// --- Bases ---

func TestCreateBase_201(t *testing.T) {
	env := newTestEnv()

	body := `{"name": "runbooks", "content_class": "static", "fields": [{"name": "service", "type": "tag"}]}`
	rr := serve(env.handler(), jsonReq(http.MethodPost, "/api/v1/bases", body))

	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d (%s)", rr.Code, rr.Body.String())
	}
	var resp BaseResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Name != "runbooks" || resp.ContentClass != "static" {
		t.Errorf("base: got %+v", resp)
	}
	if resp.Revision != 1 {
		t.Errorf("revision: got %d, want 1", resp.Revision)
	}
	if len(resp.Fields) != 1 || resp.Fields[0].Name != "service" {
		t.Errorf("fields: got %v", resp.Fields)
	}
}

func TestCreateBase_Duplicate_409(t *testing.T) {
	env := newTestEnv()
	env.seedBase("runbooks", dombase.ClassStatic, 1)

	rr := serve(env.handler(), jsonReq(http.MethodPost, "/api/v1/bases", `{"name": "runbooks"}`))

	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusConflict)
	}
	if resp := decodeError(t, rr); resp.Code != CodeBaseAlreadyExists {
		t.Errorf("code: got %s, want %s", resp.Code, CodeBaseAlreadyExists)
	}
}

func TestCreateBase_InvalidName_400(t *testing.T) {
	env := newTestEnv()
	h := env.handler()

	for _, body := range []string{
		`{"name": ""}`,
		`{"name": "has spaces"}`,
		`{"name": "cache"}`,
	} {
		rr := serve(h, jsonReq(http.MethodPost, "/api/v1/bases", body))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: got %d, want %d", body, rr.Code, http.StatusBadRequest)
		}
	}
}

func TestGetBase_ETagAndDocumentCount(t *testing.T) {
	env := newTestEnv()
	env.seedBase("kb", dombase.ClassDefault, 3)
	env.seedDoc("kb", "doc-1", "first", 1)
	env.seedDoc("kb", "doc-2", "second", 1)

	rr := serve(env.handler(), httptest.NewRequest(http.MethodGet, "/api/v1/bases/kb", http.NoBody))

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d (%s)", rr.Code, rr.Body.String())
	}
	if etag := rr.Header().Get("ETag"); etag != `"3"` {
		t.Errorf("etag: got %s, want %q", etag, `"3"`)
	}
	var resp BaseResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.DocumentCount == nil || *resp.DocumentCount != 2 {
		t.Errorf("document count: got %v, want 2", resp.DocumentCount)
	}
}

func TestGetBase_NotFound_404(t *testing.T) {
	env := newTestEnv()

	rr := serve(env.handler(), httptest.NewRequest(http.MethodGet, "/api/v1/bases/ghost", http.NoBody))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestListBases_Pagination(t *testing.T) {
	env := newTestEnv()
	env.seedBase("kb-a", dombase.ClassDefault, 1)
	env.seedBase("kb-b", dombase.ClassDefault, 1)
	env.seedBase("kb-c", dombase.ClassDefault, 1)
	h := env.handler()

	rr := serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/bases?limit=2", http.NoBody))
	var page BaseListResponse
	if err := json.NewDecoder(rr.Body).Decode(&page); err != nil {
		t.Fatalf("decode first page: %v", err)
	}
	if len(page.Items) != 2 || page.Items[0].Name != "kb-a" || page.Items[1].Name != "kb-b" {
		t.Fatalf("first page: got %+v", page.Items)
	}
	if !page.HasMore || page.NextCursor == nil || *page.NextCursor != "kb-b" {
		t.Fatalf("first page cursor: has_more=%v cursor=%v", page.HasMore, page.NextCursor)
	}

	rr = serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/bases?limit=2&cursor=kb-b", http.NoBody))
	page = BaseListResponse{}
	if err := json.NewDecoder(rr.Body).Decode(&page); err != nil {
		t.Fatalf("decode second page: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].Name != "kb-c" {
		t.Fatalf("second page: got %+v", page.Items)
	}
	if page.HasMore || page.NextCursor != nil {
		t.Errorf("second page cursor: has_more=%v cursor=%v", page.HasMore, page.NextCursor)
	}
}

func TestDeleteBase_NotEmpty_409(t *testing.T) {
	env := newTestEnv()
	env.seedBase("kb", dombase.ClassDefault, 1)
	env.seedDoc("kb", "doc-1", "first", 1)

	rr := serve(env.handler(), httptest.NewRequest(http.MethodDelete, "/api/v1/bases/kb", http.NoBody))

	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusConflict)
	}
	if resp := decodeError(t, rr); resp.Code != CodeBaseNotEmpty {
		t.Errorf("code: got %s, want %s", resp.Code, CodeBaseNotEmpty)
	}
}

func TestDeleteBase_Force_204(t *testing.T) {
	env := newTestEnv()
	env.seedBase("kb", dombase.ClassDefault, 1)
	env.seedDoc("kb", "doc-1", "first", 1)
	env.seedDoc("kb", "doc-2", "second", 1)

	rr := serve(env.handler(),
		httptest.NewRequest(http.MethodDelete, "/api/v1/bases/kb?force=true", http.NoBody))

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusNoContent)
	}
	if _, ok := env.baseStore.bases["kb"]; ok {
		t.Error("base must be gone after delete")
	}
	if len(env.docStore.docs) != 0 {
		t.Errorf("documents must be purged, %d left", len(env.docStore.docs))
	}
}

// --- Documents ---

func TestUpsertDocument_Created_201(t *testing.T) {
	env := newTestEnv()
	env.seedBase("kb", dombase.ClassDefault, 1)

	rr := serve(env.handler(), jsonReq(http.MethodPut, "/api/v1/bases/kb/documents/doc-1",
		`{"content": "Restart the pod."}`))

	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d (%s)", rr.Code, rr.Body.String())
	}
	if loc := rr.Header().Get("Location"); loc != "/api/v1/bases/kb/documents/doc-1" {
		t.Errorf("location: got %s", loc)
	}
	if etag := rr.Header().Get("ETag"); etag != `"1"` {
		t.Errorf("etag: got %s, want %q", etag, `"1"`)
	}
	if env.docStore.lastExpected != domain.SkipVersionCheck {
		t.Errorf("expected version: got %d, want %d", env.docStore.lastExpected, domain.SkipVersionCheck)
	}
	var resp DocumentResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != "doc-1" || resp.Version != 1 {
		t.Errorf("document: got %+v", resp)
	}
}

func TestUpsertDocument_IfMatch_200(t *testing.T) {
	env := newTestEnv()
	env.seedBase("kb", dombase.ClassDefault, 1)
	env.seedDoc("kb", "doc-1", "old content", 3)

	req := jsonReq(http.MethodPut, "/api/v1/bases/kb/documents/doc-1", `{"content": "new content"}`)
	req.Header.Set("If-Match", `"3"`)
	rr := serve(env.handler(), req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d (%s)", rr.Code, rr.Body.String())
	}
	if env.docStore.lastExpected != 3 {
		t.Errorf("expected version: got %d, want 3", env.docStore.lastExpected)
	}
	if etag := rr.Header().Get("ETag"); etag != `"4"` {
		t.Errorf("etag: got %s, want %q", etag, `"4"`)
	}
}

func TestUpsertDocument_BadIfMatch_400(t *testing.T) {
	env := newTestEnv()
	env.seedBase("kb", dombase.ClassDefault, 1)

	req := jsonReq(http.MethodPut, "/api/v1/bases/kb/documents/doc-1", `{"content": "text"}`)
	req.Header.Set("If-Match", "latest")
	rr := serve(env.handler(), req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
	if resp := decodeError(t, rr); resp.Code != CodeBadRequest {
		t.Errorf("code: got %s, want %s", resp.Code, CodeBadRequest)
	}
}

func TestUpsertDocument_VersionConflict_409(t *testing.T) {
	env := newTestEnv()
	env.seedBase("kb", dombase.ClassDefault, 1)
	env.docStore.upsertErr = domain.NewVersionConflict(7)

	req := jsonReq(http.MethodPut, "/api/v1/bases/kb/documents/doc-1", `{"content": "text"}`)
	req.Header.Set("If-Match", `"5"`)
	rr := serve(env.handler(), req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusConflict)
	}
	if etag := rr.Header().Get("ETag"); etag != `"7"` {
		t.Errorf("etag: got %s, want %q", etag, `"7"`)
	}
	resp := decodeError(t, rr)
	if resp.Code != CodeVersionConflict {
		t.Errorf("code: got %s, want %s", resp.Code, CodeVersionConflict)
	}
	if resp.CurrentVersion == nil || *resp.CurrentVersion != 7 {
		t.Errorf("current version: got %v, want 7", resp.CurrentVersion)
	}
}

func TestGetDocument_ETag(t *testing.T) {
	env := newTestEnv()
	env.seedBase("kb", dombase.ClassDefault, 1)
	env.seedDoc("kb", "doc-1", "Restart the pod.", 2)

	rr := serve(env.handler(),
		httptest.NewRequest(http.MethodGet, "/api/v1/bases/kb/documents/doc-1", http.NoBody))

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d (%s)", rr.Code, rr.Body.String())
	}
	if etag := rr.Header().Get("ETag"); etag != `"2"` {
		t.Errorf("etag: got %s, want %q", etag, `"2"`)
	}
}

func TestGetDocument_NotFound_404(t *testing.T) {
	env := newTestEnv()
	env.seedBase("kb", dombase.ClassDefault, 1)

	rr := serve(env.handler(),
		httptest.NewRequest(http.MethodGet, "/api/v1/bases/kb/documents/ghost", http.NoBody))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
	if resp := decodeError(t, rr); resp.Code != CodeDocumentNotFound {
		t.Errorf("code: got %s, want %s", resp.Code, CodeDocumentNotFound)
	}
}

func TestListDocuments(t *testing.T) {
	env := newTestEnv()
	env.seedBase("kb", dombase.ClassDefault, 1)
	env.seedDoc("kb", "doc-1", "first", 1)
	env.seedDoc("kb", "doc-2", "second", 1)

	rr := serve(env.handler(),
		httptest.NewRequest(http.MethodGet, "/api/v1/bases/kb/documents", http.NoBody))

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d (%s)", rr.Code, rr.Body.String())
	}
	var resp DocumentListResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Items) != 2 || resp.Items[0].ID != "doc-1" {
		t.Errorf("items: got %+v", resp.Items)
	}
	if resp.HasMore {
		t.Error("has_more must be false")
	}
}

func TestPatchDocument_200(t *testing.T) {
	env := newTestEnv()
	env.seedBase("kb", dombase.ClassDefault, 1)
	env.seedDoc("kb", "doc-1", "old content", 1)

	req := jsonReq(http.MethodPatch, "/api/v1/bases/kb/documents/doc-1", `{"content": "new content"}`)
	req.Header.Set("If-Match", "1")
	rr := serve(env.handler(), req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d (%s)", rr.Code, rr.Body.String())
	}
	if env.docStore.lastExpected != 1 {
		t.Errorf("expected version: got %d, want 1", env.docStore.lastExpected)
	}
	if etag := rr.Header().Get("ETag"); etag != `"2"` {
		t.Errorf("etag: got %s, want %q", etag, `"2"`)
	}
	var resp DocumentResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Content != "new content" || resp.Version != 2 {
		t.Errorf("document: got %+v", resp)
	}
}

func TestPatchDocument_EmptyPatch_400(t *testing.T) {
	env := newTestEnv()
	env.seedBase("kb", dombase.ClassDefault, 1)

	rr := serve(env.handler(), jsonReq(http.MethodPatch, "/api/v1/bases/kb/documents/doc-1", `{}`))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
	if resp := decodeError(t, rr); resp.Code != CodeValidationFailed {
		t.Errorf("code: got %s, want %s", resp.Code, CodeValidationFailed)
	}
}

func TestDeleteDocument_204(t *testing.T) {
	env := newTestEnv()
	env.seedBase("kb", dombase.ClassDefault, 1)
	env.seedDoc("kb", "doc-1", "content", 2)

	rr := serve(env.handler(),
		httptest.NewRequest(http.MethodDelete, "/api/v1/bases/kb/documents/doc-1", http.NoBody))

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusNoContent)
	}
	if len(env.docStore.docs) != 0 {
		t.Error("document must be gone")
	}
	if env.inv.bumps != 1 {
		t.Errorf("invalidation bumps: got %d, want 1", env.inv.bumps)
	}
}

// --- Batch ---

func TestBatchUpsert_MixedResults(t *testing.T) {
	env := newTestEnv()
	env.seedBase("kb", dombase.ClassDefault, 1)
	env.docStore.failID = "bad"
	env.docStore.failErr = domain.ErrVectorDimMismatch

	body := `{"documents": [
		{"id": "good", "content": "first"},
		{"id": "bad", "content": "second"}
	]}`
	rr := serve(env.handler(), jsonReq(http.MethodPost, "/api/v1/bases/kb/documents/batch", body))

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d (%s)", rr.Code, rr.Body.String())
	}
	var resp BatchResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Succeeded != 1 || resp.Failed != 1 {
		t.Fatalf("totals: succeeded=%d failed=%d", resp.Succeeded, resp.Failed)
	}
	if resp.Items[0].ID != "good" || resp.Items[0].Status != "ok" || resp.Items[0].Version != 1 {
		t.Errorf("item 0: got %+v", resp.Items[0])
	}
	if resp.Items[1].Status != "error" || resp.Items[1].Error == nil ||
		resp.Items[1].Error.Code != CodeVectorDimMismatch {
		t.Errorf("item 1: got %+v", resp.Items[1])
	}
	if env.inv.bumps != 1 {
		t.Errorf("invalidation bumps: got %d, want 1", env.inv.bumps)
	}
}

func TestBatchUpsert_TooLarge_400(t *testing.T) {
	env := newTestEnv()
	env.seedBase("kb", dombase.ClassDefault, 1)

	docs := make([]BatchUpsertItem, maxBatchSize+1)
	for i := range docs {
		docs[i] = BatchUpsertItem{ID: fmt.Sprintf("doc-%d", i), Content: "text"}
	}
	raw, err := json.Marshal(BatchUpsertRequest{Documents: docs})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	rr := serve(env.handler(), httptest.NewRequest(
		http.MethodPost, "/api/v1/bases/kb/documents/batch", bytes.NewReader(raw)))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
	if resp := decodeError(t, rr); resp.Code != CodeValidationFailed {
		t.Errorf("code: got %s, want %s", resp.Code, CodeValidationFailed)
	}
}

func TestBatchUpsert_Empty_400(t *testing.T) {
	env := newTestEnv()
	env.seedBase("kb", dombase.ClassDefault, 1)

	rr := serve(env.handler(), jsonReq(http.MethodPost, "/api/v1/bases/kb/documents/batch",
		`{"documents": []}`))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestBatchDelete_MixedResults(t *testing.T) {
	env := newTestEnv()
	env.seedBase("kb", dombase.ClassDefault, 1)
	env.seedDoc("kb", "doc-1", "content", 2)

	rr := serve(env.handler(), jsonReq(http.MethodDelete, "/api/v1/bases/kb/documents/batch",
		`{"ids": ["doc-1", "ghost"]}`))

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d (%s)", rr.Code, rr.Body.String())
	}
	var resp BatchResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Succeeded != 1 || resp.Failed != 1 {
		t.Fatalf("totals: succeeded=%d failed=%d", resp.Succeeded, resp.Failed)
	}
	if resp.Items[0].Status != "ok" || resp.Items[0].Version != 2 {
		t.Errorf("item 0: got %+v", resp.Items[0])
	}
	if resp.Items[1].Error == nil || resp.Items[1].Error.Code != CodeDocumentNotFound {
		t.Errorf("item 1: got %+v", resp.Items[1])
	}
}

// --- Cache invalidation ---

func TestInvalidateCache_200(t *testing.T) {
	env := newTestEnv()
	env.seedBase("kb", dombase.ClassDefault, 1)
	env.inv.dropped = 3

	rr := serve(env.handler(), jsonReq(http.MethodPost, "/api/v1/cache/invalidate",
		`{"base": "kb", "doc_id": "doc-1"}`))

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d (%s)", rr.Code, rr.Body.String())
	}
	var resp InvalidateResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Dropped != 3 {
		t.Errorf("dropped: got %d, want 3", resp.Dropped)
	}
}

func TestInvalidateCache_UnknownBase_404(t *testing.T) {
	env := newTestEnv()

	rr := serve(env.handler(), jsonReq(http.MethodPost, "/api/v1/cache/invalidate",
		`{"base": "ghost", "doc_id": "doc-1"}`))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestInvalidateCache_MissingFields_400(t *testing.T) {
	env := newTestEnv()
	env.seedBase("kb", dombase.ClassDefault, 1)

	rr := serve(env.handler(), jsonReq(http.MethodPost, "/api/v1/cache/invalidate",
		`{"base": "kb"}`))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestInvalidateCache_NoCacheWired(t *testing.T) {
	env := newTestEnv()
	env.seedBase("kb", dombase.ClassDefault, 1)
	env.inv.dropped = 3
	env.noCache = true

	rr := serve(env.handler(), jsonReq(http.MethodPost, "/api/v1/cache/invalidate",
		`{"base": "kb", "doc_id": "doc-1"}`))

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d (%s)", rr.Code, rr.Body.String())
	}
	var resp InvalidateResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Dropped != 0 {
		t.Errorf("dropped without cache: got %d, want 0", resp.Dropped)
	}
}

// --- Usage ---

func TestGetUsage_Day(t *testing.T) {
	env := newTestEnv()
	env.budget = &fakeBudget{daily: 10_000_000, monthly: 300_000_000, dailyUsed: 4_000_000}
	env.costPerM = 2.0

	rr := serve(env.handler(),
		httptest.NewRequest(http.MethodGet, "/api/v1/usage?period=day", http.NoBody))

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d (%s)", rr.Code, rr.Body.String())
	}
	var resp UsageResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Period != "day" || resp.Provider != "openai" {
		t.Errorf("header: period=%s provider=%s", resp.Period, resp.Provider)
	}
	if resp.Usage.Tokens != 4_000_000 {
		t.Errorf("tokens: got %d", resp.Usage.Tokens)
	}
	if resp.Usage.CostMillidollars == nil || *resp.Usage.CostMillidollars != 8000 {
		t.Errorf("cost: got %v, want 8000", resp.Usage.CostMillidollars)
	}
	if resp.Budget.TokensLimit != 10_000_000 || resp.Budget.TokensRemaining != 6_000_000 {
		t.Errorf("budget: got %+v", resp.Budget)
	}
	if resp.Budget.IsExhausted {
		t.Error("budget must not be exhausted")
	}
	if resp.Budget.ResetsAt == nil {
		t.Error("resets_at must be set for a day period")
	}
}

func TestGetUsage_NoBudget(t *testing.T) {
	env := newTestEnv()

	rr := serve(env.handler(), httptest.NewRequest(http.MethodGet, "/api/v1/usage", http.NoBody))

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d (%s)", rr.Code, rr.Body.String())
	}
	var resp UsageResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Period != "month" {
		t.Errorf("default period: got %s, want month", resp.Period)
	}
	if resp.Budget.TokensLimit != 0 || resp.Budget.IsExhausted {
		t.Errorf("unlimited budget: got %+v", resp.Budget)
	}
	if resp.Budget.TokensRemaining != -1 {
		t.Errorf("unlimited budget remaining: got %d, want -1", resp.Budget.TokensRemaining)
	}
}

// --- Health ---

func TestHealth_OK_200(t *testing.T) {
	env := newTestEnv()

	rr := serve(env.handler(), httptest.NewRequest(http.MethodGet, "/health", http.NoBody))

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	var resp HealthResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "ok" || resp.Checks["database"] != "ok" {
		t.Errorf("report: got %+v", resp)
	}
}

func TestHealth_LLMDown_Degraded200(t *testing.T) {
	env := newTestEnv()
	env.llm = &fakeLLM{err: errors.New("model gateway timeout")}

	rr := serve(env.handler(), httptest.NewRequest(http.MethodGet, "/health", http.NoBody))

	if rr.Code != http.StatusOK {
		t.Fatalf("degraded must stay %d, got %d", http.StatusOK, rr.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "degraded" || resp.Checks["llm"] != "error" {
		t.Errorf("report: got %+v", resp)
	}
}

func TestHealth_DBDown_503(t *testing.T) {
	env := newTestEnv()
	env.db.err = errors.New("connection refused")

	rr := serve(env.handler(), httptest.NewRequest(http.MethodGet, "/health", http.NoBody))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
	var resp HealthResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "error" {
		t.Errorf("status: got %s, want error", resp.Status)
	}
}

// --- Helpers ---

func TestParseIfMatch(t *testing.T) {
	tests := []struct {
		header  string
		want    int
		wantErr bool
	}{
		{"", domain.SkipVersionCheck, false},
		{"*", domain.SkipVersionCheck, false},
		{"3", 3, false},
		{`"7"`, 7, false},
		{" 12 ", 12, false},
		{"0", 0, true},
		{"-2", 0, true},
		{"latest", 0, true},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPut, "/api/v1/bases/kb/documents/d", http.NoBody)
		if tt.header != "" {
			req.Header.Set("If-Match", tt.header)
		}

		got, err := parseIfMatch(req)
		if tt.wantErr {
			if err == nil {
				t.Errorf("%q: expected error", tt.header)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: unexpected error: %v", tt.header, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%q: got %d, want %d", tt.header, got, tt.want)
		}
	}
}

func TestQueryLimit(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 20},
		{"?limit=5", 5},
		{"?limit=0", 20},
		{"?limit=abc", 20},
		{"?limit=-3", 20},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/bases"+tt.query, http.NoBody)
		if got := queryLimit(req, 20); got != tt.want {
			t.Errorf("%q: got %d, want %d", tt.query, got, tt.want)
		}
	}
}
