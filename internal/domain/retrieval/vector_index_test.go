package retrieval_test

import (
	"errors"
	"math"
	"testing"

	"resumerag/internal/domain/retrieval"
)

// TestVectorIndexOrdering 相似度降序返回
func TestVectorIndexOrdering(t *testing.T) {
	idx := retrieval.NewVectorIndex(3)
	mustAdd(t, idx, "c1", []float32{1, 0, 0})
	mustAdd(t, idx, "c2", []float32{0, 1, 0})
	mustAdd(t, idx, "c3", []float32{1, 1, 0})

	results, err := idx.Query([]float32{1, 0, 0}, 3)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].ChunkID != "c1" {
		t.Errorf("expected c1 first, got %s", results[0].ChunkID)
	}
	if results[1].ChunkID != "c3" {
		t.Errorf("expected c3 second, got %s", results[1].ChunkID)
	}
	if results[0].Score < results[1].Score || results[1].Score < results[2].Score {
		t.Errorf("scores not descending: %v", results)
	}
}

// TestVectorIndexNormalization 入索引与查询向量均做 L2 归一化，
// 量纲不同但方向相同的向量得分一致
func TestVectorIndexNormalization(t *testing.T) {
	idx := retrieval.NewVectorIndex(2)
	mustAdd(t, idx, "c1", []float32{100, 0})
	mustAdd(t, idx, "c2", []float32{0, 0.001})

	results, err := idx.Query([]float32{3, 0}, 2)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if math.Abs(results[0].Score-1.0) > 1e-6 {
		t.Errorf("expected cosine 1.0 for aligned vectors, got %f", results[0].Score)
	}
	if math.Abs(results[1].Score) > 1e-6 {
		t.Errorf("expected cosine 0.0 for orthogonal vectors, got %f", results[1].Score)
	}
}

// TestVectorIndexDimensionMismatch 维度不符返回 ErrDimensionMismatch
func TestVectorIndexDimensionMismatch(t *testing.T) {
	idx := retrieval.NewVectorIndex(3)
	if err := idx.Add("c1", []float32{1, 0}); !errors.Is(err, retrieval.ErrDimensionMismatch) {
		t.Errorf("Add: expected ErrDimensionMismatch, got %v", err)
	}
	if _, err := idx.Query([]float32{1, 0}, 1); !errors.Is(err, retrieval.ErrDimensionMismatch) {
		t.Errorf("Query: expected ErrDimensionMismatch, got %v", err)
	}
}

// TestVectorIndexKBound 结果数不超过 k，k 超过条目数时全量返回
func TestVectorIndexKBound(t *testing.T) {
	idx := retrieval.NewVectorIndex(2)
	mustAdd(t, idx, "c1", []float32{1, 0})
	mustAdd(t, idx, "c2", []float32{0, 1})
	mustAdd(t, idx, "c3", []float32{1, 1})

	results, _ := idx.Query([]float32{1, 1}, 2)
	if len(results) != 2 {
		t.Errorf("expected 2 results, got %d", len(results))
	}
	results, _ = idx.Query([]float32{1, 1}, 10)
	if len(results) != 3 {
		t.Errorf("expected all 3 results, got %d", len(results))
	}
}

// TestVectorIndexTieBreak 同分按 chunk id 升序
func TestVectorIndexTieBreak(t *testing.T) {
	idx := retrieval.NewVectorIndex(2)
	mustAdd(t, idx, "c2", []float32{1, 0})
	mustAdd(t, idx, "c1", []float32{1, 0})

	results, _ := idx.Query([]float32{1, 0}, 2)
	if results[0].ChunkID != "c1" || results[1].ChunkID != "c2" {
		t.Errorf("expected tie broken by ascending id, got %s, %s", results[0].ChunkID, results[1].ChunkID)
	}
}

// TestVectorIndexEmpty 空索引返回空结果
func TestVectorIndexEmpty(t *testing.T) {
	idx := retrieval.NewVectorIndex(2)
	results, err := idx.Query([]float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected empty results, got %d", len(results))
	}
}

func mustAdd(t *testing.T, idx *retrieval.VectorIndex, id string, vec []float32) {
	t.Helper()
	if err := idx.Add(id, vec); err != nil {
		t.Fatalf("Add %s failed: %v", id, err)
	}
}
