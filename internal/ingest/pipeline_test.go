package ingest_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"resumerag/internal/cache"
	"resumerag/internal/domain/retrieval"
	"resumerag/internal/ingest"
)

type staticSource struct {
	docs []retrieval.Document
}

func (s *staticSource) Load(ctx context.Context) ([]retrieval.Document, error) {
	return s.docs, nil
}

type constEmbedder struct{}

func (e *constEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (e *constEmbedder) Dims() int { return 3 }

func ingestConfig(tmp string) retrieval.Config {
	cfg := *retrieval.DefaultConfig()
	cfg.EmbeddingDims = 3
	cfg.ChunkSize = 50
	cfg.ChunkOverlap = 10
	cfg.SnapshotPath = filepath.Join(tmp, "snapshot.json")
	return cfg
}

func makeDoc(filename, content string) retrieval.Document {
	return retrieval.Document{
		ID:         filename,
		Filename:   filename,
		Content:    content,
		Chars:      utf8.RuneCountInString(content),
		IngestedAt: time.Now(),
	}
}

// TestReindexBuildsAndPublishes 重建后快照可检索，代数递增
func TestReindexBuildsAndPublishes(t *testing.T) {
	cfg := ingestConfig(t.TempDir())
	corpus := retrieval.NewCorpus()
	source := &staticSource{docs: []retrieval.Document{
		makeDoc("alice.pdf", "Skills:\nPython, Django, Flask and backend development experience"),
	}}

	ing, err := ingest.NewIngestor(corpus, &constEmbedder{}, source, nil, nil, cfg)
	if err != nil {
		t.Fatalf("NewIngestor failed: %v", err)
	}

	result, err := ing.Reindex(context.Background())
	if err != nil {
		t.Fatalf("Reindex failed: %v", err)
	}
	if result.Documents != 1 {
		t.Errorf("expected 1 document, got %d", result.Documents)
	}
	if result.Chunks == 0 {
		t.Error("expected chunks to be produced")
	}
	if result.Generation != 1 {
		t.Errorf("expected generation 1, got %d", result.Generation)
	}

	snap := corpus.Snapshot()
	if snap == nil || snap.Len() != result.Chunks {
		t.Fatalf("published snapshot inconsistent with result: %+v", result)
	}

	// chunk id 以文件名为前缀
	for _, chunk := range snap.Chunks() {
		if !strings.HasPrefix(chunk.ID, "alice.pdf_chunk_") {
			t.Errorf("unexpected chunk id %q", chunk.ID)
		}
		if len(chunk.Vector) != 3 {
			t.Errorf("chunk %s: missing vector", chunk.ID)
		}
	}

	// 二次重建代数递增
	result2, err := ing.Reindex(context.Background())
	if err != nil {
		t.Fatalf("second Reindex failed: %v", err)
	}
	if result2.Generation != 2 {
		t.Errorf("expected generation 2, got %d", result2.Generation)
	}
}

// TestReindexLabelsSections 小节标签写到覆盖区间内的 chunk
func TestReindexLabelsSections(t *testing.T) {
	cfg := ingestConfig(t.TempDir())
	cfg.ChunkSize = 40
	cfg.ChunkOverlap = 8
	corpus := retrieval.NewCorpus()
	source := &staticSource{docs: []retrieval.Document{
		makeDoc("bob.txt", "Skills\nGo, Kubernetes, Terraform, CI/CD pipelines, observability tooling and more"),
	}}

	ing, err := ingest.NewIngestor(corpus, &constEmbedder{}, source, nil, nil, cfg)
	if err != nil {
		t.Fatalf("NewIngestor failed: %v", err)
	}
	if _, err := ing.Reindex(context.Background()); err != nil {
		t.Fatalf("Reindex failed: %v", err)
	}

	labelled := 0
	for _, chunk := range corpus.Snapshot().Chunks() {
		if chunk.Section == "skills" {
			labelled++
		}
	}
	if labelled == 0 {
		t.Error("expected at least one chunk labelled with skills section")
	}
}

// TestReindexPersistsSnapshot 重建落盘，新进程可恢复
func TestReindexPersistsSnapshot(t *testing.T) {
	cfg := ingestConfig(t.TempDir())
	corpus := retrieval.NewCorpus()
	source := &staticSource{docs: []retrieval.Document{
		makeDoc("alice.pdf", "Python developer with data engineering background"),
	}}

	ing, err := ingest.NewIngestor(corpus, &constEmbedder{}, source, nil, nil, cfg)
	if err != nil {
		t.Fatalf("NewIngestor failed: %v", err)
	}
	if _, err := ing.Reindex(context.Background()); err != nil {
		t.Fatalf("Reindex failed: %v", err)
	}

	if _, err := os.Stat(cfg.SnapshotPath); err != nil {
		t.Fatalf("snapshot not persisted: %v", err)
	}

	// 新语料 + 新 ingestor 模拟重启
	fresh := retrieval.NewCorpus()
	ing2, err := ingest.NewIngestor(fresh, &constEmbedder{}, source, nil, nil, cfg)
	if err != nil {
		t.Fatalf("NewIngestor failed: %v", err)
	}
	if err := ing2.Restore(); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	snap := fresh.Snapshot()
	if snap == nil || snap.Len() == 0 {
		t.Fatal("expected restored snapshot")
	}
	if snap.Generation() != 1 {
		t.Errorf("expected restored generation 1, got %d", snap.Generation())
	}
}

// TestReindexInvalidatesAnswers 语料变更后旧答案失效，向量缓存保留
func TestReindexInvalidatesAnswers(t *testing.T) {
	cfg := ingestConfig(t.TempDir())
	layer, err := cache.New(cache.Config{}, nil)
	if err != nil {
		t.Fatalf("cache.New failed: %v", err)
	}
	ctx := context.Background()

	layer.PutAnswer(ctx, "q1", cache.AnswerEntry{Answer: "stale answer"})
	layer.PutVector(ctx, "emb1", []float32{1, 0, 0})

	corpus := retrieval.NewCorpus()
	source := &staticSource{docs: []retrieval.Document{
		makeDoc("alice.pdf", "Python developer"),
	}}
	ing, err := ingest.NewIngestor(corpus, &constEmbedder{}, source, layer, nil, cfg)
	if err != nil {
		t.Fatalf("NewIngestor failed: %v", err)
	}
	if _, err := ing.Reindex(ctx); err != nil {
		t.Fatalf("Reindex failed: %v", err)
	}

	if _, ok := layer.GetAnswer(ctx, "q1"); ok {
		t.Error("expected answers invalidated after reindex")
	}
	if _, ok := layer.GetVector(ctx, "emb1"); !ok {
		t.Error("expected embedding cache to survive reindex")
	}
}

// TestReindexEmptySource 空目录产生空快照而非错误
func TestReindexEmptySource(t *testing.T) {
	cfg := ingestConfig(t.TempDir())
	corpus := retrieval.NewCorpus()
	ing, err := ingest.NewIngestor(corpus, &constEmbedder{}, &staticSource{}, nil, nil, cfg)
	if err != nil {
		t.Fatalf("NewIngestor failed: %v", err)
	}

	result, err := ing.Reindex(context.Background())
	if err != nil {
		t.Fatalf("Reindex failed: %v", err)
	}
	if result.Documents != 0 || result.Chunks != 0 {
		t.Errorf("expected empty result, got %+v", result)
	}
	if corpus.Snapshot() == nil {
		t.Error("expected empty snapshot to be published")
	}
}
