package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/kbchat/internal/domain"
	domchat "github.com/kailas-cloud/kbchat/internal/domain/chat"
	"github.com/kailas-cloud/kbchat/internal/domain/knowledge"
	chatuc "github.com/kailas-cloud/kbchat/internal/usecase/chat"
	healthuc "github.com/kailas-cloud/kbchat/internal/usecase/health"
	"github.com/kailas-cloud/kbchat/internal/usecase/ingest"
	knowledgeuc "github.com/kailas-cloud/kbchat/internal/usecase/knowledge"
)

// --- Mocks ---

type mockKnowledge struct {
	ingestFn func(ctx context.Context, req knowledgeuc.IngestRequest) (ingest.Result, error)
	entries  []knowledge.Entry
	listErr  error
	deleteFn func(ctx context.Context, ns string) (int, error)
}

func (m *mockKnowledge) Ingest(ctx context.Context, req knowledgeuc.IngestRequest) (ingest.Result, error) {
	return m.ingestFn(ctx, req)
}

func (m *mockKnowledge) List() ([]knowledge.Entry, error) { return m.entries, m.listErr }

func (m *mockKnowledge) Delete(ctx context.Context, ns string) (int, error) {
	return m.deleteFn(ctx, ns)
}

type mockGenerator struct {
	tokens []string
	err    error
}

func (m *mockGenerator) Stream(ctx context.Context, _ domchat.Completion, tokens chan<- string) error {
	for _, t := range m.tokens {
		select {
		case tokens <- t:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return m.err
}

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(context.Context) healthuc.Report { return m.report }

func newTestRouter(t *testing.T, k KnowledgeService, gen chatuc.Generator, h HealthService, opts Options) http.Handler {
	t.Helper()
	chatSvc := chatuc.New(chatuc.Deps{Generator: gen}, chatuc.Options{DefaultModel: "gpt-3.5-turbo"}, nil)
	if k == nil {
		k = &mockKnowledge{}
	}
	if h == nil {
		h = &mockHealth{report: healthuc.Report{Status: healthuc.Healthy}}
	}
	return NewRouter(NewServer(k, chatSvc, h, opts, zap.NewNop()), zap.NewNop())
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

// --- Ingest ---

func TestIngest_Success(t *testing.T) {
	var got knowledgeuc.IngestRequest
	k := &mockKnowledge{ingestFn: func(_ context.Context, req knowledgeuc.IngestRequest) (ingest.Result, error) {
		got = req
		return ingest.Result{Success: true, Code: 200, Message: ingest.MessageSuccess, Chunks: 3}, nil
	}}
	h := newTestRouter(t, k, &mockGenerator{}, nil, Options{})

	rec := do(t, h, http.MethodPost, "/api/ingest",
		`{"file":{"url":"/uploads/a.txt","name":"a.txt"},"knowledgeName":"A","chunkSize":500,"chunkOverlap":20}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body)
	}
	resp := decode[ingestResponse](t, rec)
	if !resp.Success || resp.Code != 200 || resp.Message != ingest.MessageSuccess || resp.Chunks != 3 {
		t.Errorf("unexpected response %+v", resp)
	}
	if got.File.URL != "/uploads/a.txt" || got.KnowledgeName != "A" || got.ChunkSize != 500 || got.ChunkSizeOverlap != 20 {
		t.Errorf("unexpected request %+v", got)
	}
}

func TestIngest_OverlapFieldPrecedence(t *testing.T) {
	var got knowledgeuc.IngestRequest
	k := &mockKnowledge{ingestFn: func(_ context.Context, req knowledgeuc.IngestRequest) (ingest.Result, error) {
		got = req
		return ingest.Result{Success: true, Code: 200}, nil
	}}
	h := newTestRouter(t, k, &mockGenerator{}, nil, Options{})

	do(t, h, http.MethodPost, "/api/ingest", `{"file":{"url":"a"},"chunkSizeOverlap":7,"chunkOverlap":9}`)
	if got.ChunkSizeOverlap != 7 {
		t.Errorf("overlap = %d, want 7", got.ChunkSizeOverlap)
	}
}

func TestIngest_FailuresAnswer500(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"missing upload", &domain.IngestionError{Stage: "load", Err: domain.ErrNotFound}, msgUploadNotFound},
		{"malformed", &domain.IngestionError{Stage: "split", Err: domain.NewMalformedInput("bad")}, ingest.MessageFailure},
		{"embedding", &domain.IngestionError{Stage: "embed", Err: domain.ErrEmbeddingProviderError}, ingest.MessageFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := &mockKnowledge{ingestFn: func(context.Context, knowledgeuc.IngestRequest) (ingest.Result, error) {
				return ingest.Result{Code: 500, Message: ingest.MessageFailure}, tt.err
			}}
			rec := do(t, newTestRouter(t, k, &mockGenerator{}, nil, Options{}), http.MethodPost, "/api/ingest", `{"file":{"url":"x"}}`)
			if rec.Code != http.StatusInternalServerError {
				t.Fatalf("status = %d", rec.Code)
			}
			resp := decode[ingestResponse](t, rec)
			if resp.Success || resp.Code != 500 || resp.Message != tt.wantMsg {
				t.Errorf("unexpected response %+v", resp)
			}
		})
	}
}

func TestIngest_InvalidBody(t *testing.T) {
	rec := do(t, newTestRouter(t, nil, &mockGenerator{}, nil, Options{}), http.MethodPost, "/api/ingest", `{`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if resp := decode[ErrorResponse](t, rec); resp.Error != codeBadRequest || resp.Success {
		t.Errorf("unexpected response %+v", resp)
	}
}

// --- Knowledge list / delete ---

func TestListKnowledge(t *testing.T) {
	k := &mockKnowledge{entries: []knowledge.Entry{{Namespace: "doc1", KnowledgeName: "Doc"}}}
	rec := do(t, newTestRouter(t, k, &mockGenerator{}, nil, Options{}), http.MethodGet, "/api/knowledge-list", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decode[listResponse](t, rec)
	if !resp.Success || len(resp.Data) != 1 || resp.Data[0].Namespace != "doc1" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestListKnowledge_EmptyIsArray(t *testing.T) {
	rec := do(t, newTestRouter(t, &mockKnowledge{}, &mockGenerator{}, nil, Options{}), http.MethodGet, "/api/knowledge-list", "")
	if !strings.Contains(rec.Body.String(), `"data":[]`) {
		t.Errorf("body = %s", rec.Body)
	}
}

func TestListKnowledge_Error(t *testing.T) {
	k := &mockKnowledge{listErr: errors.New("corrupt file")}
	rec := do(t, newTestRouter(t, k, &mockGenerator{}, nil, Options{}), http.MethodGet, "/api/knowledge-list", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if resp := decode[ErrorResponse](t, rec); resp.Message != "internal error" {
		t.Errorf("internal details leaked: %+v", resp)
	}
}

func TestDeleteKnowledge(t *testing.T) {
	var gotNS string
	k := &mockKnowledge{deleteFn: func(_ context.Context, ns string) (int, error) {
		gotNS = ns
		return 2, nil
	}}
	rec := do(t, newTestRouter(t, k, &mockGenerator{}, nil, Options{}), http.MethodDelete, "/api/knowledge/doc1.txt", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if gotNS != "doc1.txt" {
		t.Errorf("namespace = %q", gotNS)
	}
	if resp := decode[deleteResponse](t, rec); !resp.Success || resp.Removed != 2 {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestDeleteKnowledge_ErrorMapping(t *testing.T) {
	tests := []struct {
		err      error
		status   int
		wantCode string
	}{
		{domain.ErrInvalidRequest, http.StatusBadRequest, codeBadRequest},
		{domain.ErrNotFound, http.StatusNotFound, codeNotFound},
		{errors.New("boom"), http.StatusInternalServerError, codeInternal},
	}
	for _, tt := range tests {
		k := &mockKnowledge{deleteFn: func(context.Context, string) (int, error) { return 0, tt.err }}
		rec := do(t, newTestRouter(t, k, &mockGenerator{}, nil, Options{}), http.MethodDelete, "/api/knowledge/x", "")
		if rec.Code != tt.status {
			t.Errorf("%v: status = %d, want %d", tt.err, rec.Code, tt.status)
		}
		if resp := decode[ErrorResponse](t, rec); resp.Error != tt.wantCode {
			t.Errorf("%v: code = %q", tt.err, resp.Error)
		}
	}
}

// --- Chat ---

func TestChat_StreamsTokens(t *testing.T) {
	h := newTestRouter(t, nil, &mockGenerator{tokens: []string{"Hel", "lo", " world"}}, nil, Options{})
	rec := do(t, h, http.MethodPost, "/api/chat", `{"messages":[{"role":"user","content":"hi"}]}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/octet-stream" {
		t.Errorf("content type = %q", ct)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-store" {
		t.Errorf("cache control = %q", cc)
	}
	if rec.Body.String() != "Hello world" {
		t.Errorf("body = %q", rec.Body.String())
	}
	if !rec.Flushed {
		t.Error("expected flushed response")
	}
}

func TestChat_UpstreamErrorBeforeFirstToken(t *testing.T) {
	upstream := &domain.UpstreamModelError{
		Message: "Incorrect API key provided",
		Type:    "invalid_request_error",
		Code:    "invalid_api_key",
		Status:  401,
	}
	h := newTestRouter(t, nil, &mockGenerator{err: upstream}, nil, Options{})
	rec := do(t, h, http.MethodPost, "/api/chat", `{"messages":[{"role":"user","content":"hi"}]}`)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decode[chatErrorResponse](t, rec)
	if resp.Error.Message != upstream.Message || resp.Error.Type != upstream.Type || resp.Error.Code != upstream.Code {
		t.Errorf("unexpected error %+v", resp.Error)
	}
}

func TestChat_ErrorAfterFirstTokenClosesStream(t *testing.T) {
	h := newTestRouter(t, nil, &mockGenerator{tokens: []string{"par", "tial"}, err: &domain.UpstreamModelError{Message: "cut"}}, nil, Options{})
	rec := do(t, h, http.MethodPost, "/api/chat", `{"messages":[{"role":"user","content":"hi"}]}`)

	if rec.Code != http.StatusOK || rec.Body.String() != "partial" {
		t.Errorf("status %d body %q", rec.Code, rec.Body.String())
	}
}

func TestChat_InvalidRequest(t *testing.T) {
	h := newTestRouter(t, nil, &mockGenerator{}, nil, Options{})
	for _, body := range []string{`{`, `{"messages":[]}`, `{"messages":[{"role":"robot","content":"x"}]}`} {
		rec := do(t, h, http.MethodPost, "/api/chat", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d", body, rec.Code)
			continue
		}
		if resp := decode[chatErrorResponse](t, rec); resp.Error.Type != "invalid_request_error" {
			t.Errorf("%s: unexpected error %+v", body, resp.Error)
		}
	}
}

func TestChat_RetrievalFailure(t *testing.T) {
	h := newTestRouter(t, nil, &mockGenerator{}, nil, Options{})
	rec := do(t, h, http.MethodPost, "/api/chat", `{"messages":[{"role":"user","content":"/g news"}]}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if resp := decode[chatErrorResponse](t, rec); resp.Error.Code != codeSearch {
		t.Errorf("unexpected error %+v", resp.Error)
	}
}

// --- Upload ---

func multipartBody(t *testing.T, filename, contentType, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := make(map[string][]string)
	hdr["Content-Disposition"] = []string{`form-data; name="file"; filename="` + filename + `"`}
	if contentType != "" {
		hdr["Content-Type"] = []string{contentType}
	}
	part, err := mw.CreatePart(hdr)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := io.WriteString(part, content); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func TestUpload_StoresFile(t *testing.T) {
	dir := t.TempDir()
	h := newTestRouter(t, nil, &mockGenerator{}, nil, Options{UploadDir: dir})

	body, ct := multipartBody(t, "Notes.TXT", "text/plain", "hello")
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body)
	}
	resp := decode[uploadResponse](t, rec)
	if !resp.Success || !strings.HasPrefix(resp.URL, UploadURLPrefix) || !strings.HasSuffix(resp.URL, ".txt") {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Data.Name != "Notes.TXT" || resp.Data.Size != 5 {
		t.Errorf("unexpected data %+v", resp.Data)
	}
	stored, err := os.ReadFile(filepath.Join(dir, filepath.Base(resp.URL)))
	if err != nil || string(stored) != "hello" {
		t.Errorf("stored %q, %v", stored, err)
	}
}

func TestUpload_MissingFile(t *testing.T) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("other", "x")
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	newTestRouter(t, nil, &mockGenerator{}, nil, Options{UploadDir: t.TempDir()}).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestUpload_TooLarge(t *testing.T) {
	body, ct := multipartBody(t, "big.txt", "text/plain", strings.Repeat("x", 4096))
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	newTestRouter(t, nil, &mockGenerator{}, nil, Options{UploadDir: t.TempDir(), MaxUploadSize: 1024}).ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d body %s", rec.Code, rec.Body)
	}
}

func TestUploadExtension(t *testing.T) {
	tests := []struct {
		filename, contentType, want string
	}{
		{"a.PDF", "", ".pdf"},
		{"blob", "text/plain; charset=utf-8", ".txt"},
		{"blob", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", ".docx"},
		{"blob", "", ""},
		{"blob", "not a type", ""},
	}
	for _, tt := range tests {
		if got := uploadExtension(tt.filename, tt.contentType); got != tt.want {
			t.Errorf("uploadExtension(%q, %q) = %q, want %q", tt.filename, tt.contentType, got, tt.want)
		}
	}
}

// --- Health, metrics, middleware ---

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		status healthuc.Status
		want   int
	}{
		{healthuc.Healthy, http.StatusOK},
		{healthuc.Degraded, http.StatusServiceUnavailable},
		{healthuc.Unhealthy, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		h := &mockHealth{report: healthuc.Report{Status: tt.status, Checks: map[string]healthuc.CheckResult{"database": healthuc.CheckOK}}}
		rec := do(t, newTestRouter(t, nil, &mockGenerator{}, h, Options{}), http.MethodGet, "/health", "")
		if rec.Code != tt.want {
			t.Errorf("%s: status = %d", tt.status, rec.Code)
		}
		if r := decode[healthuc.Report](t, rec); r.Status != tt.status || r.Checks["database"] != healthuc.CheckOK {
			t.Errorf("unexpected report %+v", r)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	rec := do(t, newTestRouter(t, nil, &mockGenerator{}, nil, Options{}), http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Errorf("status %d", rec.Code)
	}
}

func TestRequestLogger_SetsRequestID(t *testing.T) {
	rec := do(t, newTestRouter(t, nil, &mockGenerator{}, nil, Options{}), http.MethodGet, "/health", "")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
}

func TestJSONRecoverer(t *testing.T) {
	h := JSONRecoverer(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if resp := decode[ErrorResponse](t, rec); resp.Error != codeInternal {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestUnknownRoute(t *testing.T) {
	rec := do(t, newTestRouter(t, nil, &mockGenerator{}, nil, Options{}), http.MethodGet, "/api/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
}
