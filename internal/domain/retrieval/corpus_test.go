package retrieval_test

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"resumerag/internal/domain/retrieval"
)

func testConfig() *retrieval.Config {
	cfg := retrieval.DefaultConfig()
	cfg.EmbeddingDims = 3
	return cfg
}

func testChunk(id string, vec []float32, content string) retrieval.Chunk {
	return retrieval.Chunk{
		ID:       id,
		DocID:    "doc",
		Filename: "doc.txt",
		Content:  content,
		Vector:   vec,
	}
}

// TestBuildSnapshot 快照同时构建两类索引
func TestBuildSnapshot(t *testing.T) {
	chunks := []retrieval.Chunk{
		testChunk("doc_chunk_0", []float32{1, 0, 0}, "golang backend developer"),
		testChunk("doc_chunk_1", []float32{0, 1, 0}, "python data engineer"),
	}

	snap, err := retrieval.BuildSnapshot(chunks, 1, testConfig())
	if err != nil {
		t.Fatalf("BuildSnapshot failed: %v", err)
	}
	if snap.Len() != 2 {
		t.Errorf("expected 2 chunks, got %d", snap.Len())
	}
	if snap.Generation() != 1 {
		t.Errorf("expected generation 1, got %d", snap.Generation())
	}
	if snap.VectorIndex().Len() != 2 || snap.KeywordIndex().Len() != 2 {
		t.Errorf("indexes not fully built: vector=%d keyword=%d",
			snap.VectorIndex().Len(), snap.KeywordIndex().Len())
	}

	chunk, ok := snap.Chunk("doc_chunk_1")
	if !ok {
		t.Fatal("chunk doc_chunk_1 not found")
	}
	if chunk.Content != "python data engineer" {
		t.Errorf("unexpected content: %q", chunk.Content)
	}
}

// TestBuildSnapshotDimensionMismatch 维度不符的向量使整次构建失败
func TestBuildSnapshotDimensionMismatch(t *testing.T) {
	chunks := []retrieval.Chunk{
		testChunk("doc_chunk_0", []float32{1, 0}, "golang"),
	}
	if _, err := retrieval.BuildSnapshot(chunks, 1, testConfig()); err == nil {
		t.Fatal("expected error for dimension mismatch")
	}
}

// TestCorpusPublish 发布后读取到新快照，代数对齐
func TestCorpusPublish(t *testing.T) {
	corpus := retrieval.NewCorpus()
	if corpus.Snapshot() != nil {
		t.Fatal("fresh corpus should have nil snapshot")
	}

	gen := corpus.NextGeneration()
	snap, err := retrieval.BuildSnapshot([]retrieval.Chunk{
		testChunk("doc_chunk_0", []float32{1, 0, 0}, "golang developer"),
	}, gen, testConfig())
	if err != nil {
		t.Fatalf("BuildSnapshot failed: %v", err)
	}
	corpus.Publish(snap)

	got := corpus.Snapshot()
	if got == nil || got.Generation() != gen {
		t.Fatalf("expected published snapshot with generation %d, got %v", gen, got)
	}
	if next := corpus.NextGeneration(); next != gen+1 {
		t.Errorf("expected next generation %d, got %d", gen+1, next)
	}
}

// TestCorpusConcurrentPublishAndRead 重建与读并发：
// 读方要么看到旧快照要么看到新快照，绝不会看到半成品
func TestCorpusConcurrentPublishAndRead(t *testing.T) {
	corpus := retrieval.NewCorpus()
	cfg := testConfig()

	first, err := retrieval.BuildSnapshot([]retrieval.Chunk{
		testChunk("doc_chunk_0", []float32{1, 0, 0}, "golang"),
	}, corpus.NextGeneration(), cfg)
	if err != nil {
		t.Fatalf("BuildSnapshot failed: %v", err)
	}
	corpus.Publish(first)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	// 10 个读者持续抓快照并做一致性检查
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := corpus.Snapshot()
				if snap == nil {
					t.Error("snapshot became nil after first publish")
					return
				}
				// 同一快照内三个视图的数量必须一致
				if snap.Len() != snap.VectorIndex().Len() || snap.Len() != snap.KeywordIndex().Len() {
					t.Errorf("inconsistent snapshot: chunks=%d vector=%d keyword=%d",
						snap.Len(), snap.VectorIndex().Len(), snap.KeywordIndex().Len())
					return
				}
			}
		}()
	}

	// 写者连续重建发布
	for r := 0; r < 20; r++ {
		unlock := corpus.LockRebuild()
		gen := corpus.NextGeneration()
		var chunks []retrieval.Chunk
		for i := 0; i <= r; i++ {
			chunks = append(chunks, testChunk(
				fmt.Sprintf("doc_chunk_%d", i),
				[]float32{float32(i), 1, 0},
				fmt.Sprintf("content number %d", i),
			))
		}
		snap, err := retrieval.BuildSnapshot(chunks, gen, cfg)
		if err != nil {
			unlock()
			t.Fatalf("rebuild %d failed: %v", r, err)
		}
		corpus.Publish(snap)
		unlock()
	}

	close(stop)
	wg.Wait()

	final := corpus.Snapshot()
	if final.Len() != 20 {
		t.Errorf("expected final snapshot with 20 chunks, got %d", final.Len())
	}
}

// TestSnapshotPersistenceRoundTrip 落盘再恢复，索引完整重建
func TestSnapshotPersistenceRoundTrip(t *testing.T) {
	cfg := testConfig()
	path := filepath.Join(t.TempDir(), "index", "snapshot.json")

	snap, err := retrieval.BuildSnapshot([]retrieval.Chunk{
		testChunk("doc_chunk_0", []float32{1, 0, 0}, "golang backend developer"),
		testChunk("doc_chunk_1", []float32{0, 1, 0}, "python data engineer"),
	}, 7, cfg)
	if err != nil {
		t.Fatalf("BuildSnapshot failed: %v", err)
	}

	if err := retrieval.SaveSnapshot(path, snap); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	loaded, err := retrieval.LoadSnapshot(path, cfg)
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected snapshot, got nil")
	}
	if loaded.Generation() != 7 {
		t.Errorf("expected generation 7, got %d", loaded.Generation())
	}
	if loaded.Len() != 2 {
		t.Errorf("expected 2 chunks, got %d", loaded.Len())
	}

	// 倒排从 chunk 文本重建，关键词查询立即可用
	results := loaded.KeywordIndex().Query(retrieval.Tokenize("python"), 5)
	if len(results) != 1 || results[0].ChunkID != "doc_chunk_1" {
		t.Errorf("keyword query on restored snapshot failed: %v", results)
	}

	// 向量索引同样可用
	vres, err := loaded.VectorIndex().Query([]float32{1, 0, 0}, 1)
	if err != nil {
		t.Fatalf("vector query on restored snapshot failed: %v", err)
	}
	if len(vres) != 1 || vres[0].ChunkID != "doc_chunk_0" {
		t.Errorf("unexpected vector result: %v", vres)
	}
}

// TestLoadSnapshotMissingFile 文件不存在返回 (nil, nil)
func TestLoadSnapshotMissingFile(t *testing.T) {
	snap, err := retrieval.LoadSnapshot(filepath.Join(t.TempDir(), "absent.json"), testConfig())
	if err != nil {
		t.Fatalf("expected nil error for missing file, got %v", err)
	}
	if snap != nil {
		t.Fatal("expected nil snapshot for missing file")
	}
}
