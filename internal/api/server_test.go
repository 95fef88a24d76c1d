package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"resumerag/internal/api"
	"resumerag/internal/cache"
	"resumerag/internal/domain/query"
	"resumerag/internal/domain/retrieval"
	"resumerag/internal/ingest"
)

type stubEmbedder struct{}

func (e *stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if strings.Contains(strings.ToLower(text), "python") {
			out[i] = []float32{1, 0, 0}
		} else {
			out[i] = []float32{0, 0, 1}
		}
	}
	return out, nil
}

func (e *stubEmbedder) Dims() int { return 3 }

type stubGenerator struct{}

func (g *stubGenerator) Generate(ctx context.Context, prompt query.Prompt) (<-chan string, <-chan error) {
	tokenCh := make(chan string, 4)
	errCh := make(chan error, 1)
	go func() {
		defer close(tokenCh)
		defer close(errCh)
		for _, tok := range []string{"Alice ", "knows ", "Python."} {
			tokenCh <- tok
		}
	}()
	return tokenCh, errCh
}

type stubSource struct {
	docs []retrieval.Document
}

func (s *stubSource) Load(ctx context.Context) ([]retrieval.Document, error) {
	return s.docs, nil
}

func newTestServer(t *testing.T) http.Handler {
	t.Helper()

	cfg := *retrieval.DefaultConfig()
	cfg.EmbeddingDims = 3
	cfg.SnapshotPath = ""

	corpus := retrieval.NewCorpus()
	snap, err := retrieval.BuildSnapshot([]retrieval.Chunk{
		{ID: "alice.pdf_chunk_0", DocID: "alice.pdf", Filename: "alice.pdf",
			Content: "Python developer with Django experience", Vector: []float32{1, 0, 0}},
	}, corpus.NextGeneration(), &cfg)
	if err != nil {
		t.Fatalf("BuildSnapshot failed: %v", err)
	}
	corpus.Publish(snap)

	retriever, err := retrieval.NewRetriever(corpus, &stubEmbedder{}, &cfg)
	if err != nil {
		t.Fatalf("NewRetriever failed: %v", err)
	}

	layer, err := cache.New(cache.Config{}, nil)
	if err != nil {
		t.Fatalf("cache.New failed: %v", err)
	}

	engine, err := query.NewEngine(retriever, &stubGenerator{}, layer, cfg)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	source := &stubSource{docs: []retrieval.Document{{
		ID: "alice.pdf", Filename: "alice.pdf",
		Content: "Python developer with Django experience",
	}}}
	ingestor, err := ingest.NewIngestor(corpus, &stubEmbedder{}, source, layer, nil, cfg)
	if err != nil {
		t.Fatalf("NewIngestor failed: %v", err)
	}

	return api.NewServer(nil, engine, retriever, ingestor, corpus, nil).Handler()
}

// TestHealthEndpoint 健康检查
func TestHealthEndpoint(t *testing.T) {
	handler := newTestServer(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("unexpected health body: %s", rec.Body.String())
	}
}

// TestQuerySync 同步问答：完整答案 + 指标
func TestQuerySync(t *testing.T) {
	handler := newTestServer(t)

	body := strings.NewReader(`{"question": "Who knows Python?"}`)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/query/sync", body))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data struct {
			SessionID string        `json:"session_id"`
			Answer    string        `json:"answer"`
			ChunkIDs  []string      `json:"chunk_ids"`
			Metrics   query.Metrics `json:"metrics"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp.Data.Answer != "Alice knows Python." {
		t.Errorf("unexpected answer: %q", resp.Data.Answer)
	}
	if resp.Data.SessionID == "" {
		t.Error("expected session id")
	}
	if len(resp.Data.ChunkIDs) == 0 {
		t.Error("expected chunk ids")
	}
}

// TestQueryStreamSSE 流式问答：token 事件 + done 事件
func TestQueryStreamSSE(t *testing.T) {
	handler := newTestServer(t)

	body := strings.NewReader(`{"question": "Who knows Python?"}`)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/query", body))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected SSE content type, got %q", ct)
	}

	out := rec.Body.String()
	if !strings.Contains(out, "event: token") {
		t.Errorf("expected token events, got: %s", out)
	}
	if !strings.Contains(out, "event: done") {
		t.Errorf("expected done event, got: %s", out)
	}
	if !strings.Contains(out, "chunk_ids") {
		t.Errorf("expected chunk ids in done event, got: %s", out)
	}
}

// TestQueryValidation 空问题 400
func TestQueryValidation(t *testing.T) {
	handler := newTestServer(t)

	for _, body := range []string{`{}`, `{"question": "  "}`, `not json`} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/query/sync", strings.NewReader(body)))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: expected 400, got %d", body, rec.Code)
		}
	}
}

// TestSearchEndpoint 裸检索返回命中块与得分
func TestSearchEndpoint(t *testing.T) {
	handler := newTestServer(t)

	body := strings.NewReader(`{"query": "python developer", "top_k": 3}`)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/search", body))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data struct {
			Hits []struct {
				ChunkID    string  `json:"chunk_id"`
				Filename   string  `json:"filename"`
				FusedScore float64 `json:"fused_score"`
				Rank       int     `json:"rank"`
			} `json:"hits"`
			Generation uint64 `json:"generation"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if len(resp.Data.Hits) == 0 {
		t.Fatal("expected hits")
	}
	if resp.Data.Hits[0].ChunkID != "alice.pdf_chunk_0" || resp.Data.Hits[0].Filename != "alice.pdf" {
		t.Errorf("unexpected top hit: %+v", resp.Data.Hits[0])
	}
	if resp.Data.Generation == 0 {
		t.Error("expected snapshot generation in response")
	}
}

// TestReindexEndpoint 重建接口返回统计
func TestReindexEndpoint(t *testing.T) {
	handler := newTestServer(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/resumes/reindex", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data retrieval.ReindexResult `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp.Data.Documents != 1 || resp.Data.Chunks == 0 {
		t.Errorf("unexpected reindex result: %+v", resp.Data)
	}
}

// TestListResumesSnapshotFallback 无登记库时从快照归纳清单
func TestListResumesSnapshotFallback(t *testing.T) {
	handler := newTestServer(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/resumes", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "alice.pdf") {
		t.Errorf("expected alice.pdf in listing, got: %s", rec.Body.String())
	}
}
