package retrieval

import (
	"fmt"
	"math"
	"sort"
)

// VectorIndex 内存平铺向量索引。
// 相似度 = L2 归一化向量的内积（等价余弦相似度）。
// 只支持追加；更新唯一路径是整体重建后原子换入新快照。
type VectorIndex struct {
	dims    int
	ids     []string
	vectors [][]float32
}

// NewVectorIndex 创建固定维度的向量索引。
func NewVectorIndex(dims int) *VectorIndex {
	return &VectorIndex{dims: dims}
}

// Add 追加一条 chunk 向量。维度不符返回 ErrDimensionMismatch。
// 入索引前做 L2 归一化，查询时内积即余弦相似度。
func (idx *VectorIndex) Add(chunkID string, vector []float32) error {
	if len(vector) != idx.dims {
		return fmt.Errorf("%w: index dims %d, vector dims %d (chunk %s)",
			ErrDimensionMismatch, idx.dims, len(vector), chunkID)
	}
	idx.ids = append(idx.ids, chunkID)
	idx.vectors = append(idx.vectors, normalizeVector(vector))
	return nil
}

// Query 返回至多 k 条结果，按相似度降序，
// 同分按 chunk id 升序保证确定性。
func (idx *VectorIndex) Query(vector []float32, k int) ([]ScoredChunk, error) {
	if len(vector) != idx.dims {
		return nil, fmt.Errorf("%w: index dims %d, query dims %d",
			ErrDimensionMismatch, idx.dims, len(vector))
	}
	if k <= 0 || len(idx.ids) == 0 {
		return nil, nil
	}

	query := normalizeVector(vector)
	results := make([]ScoredChunk, len(idx.ids))
	for i, vec := range idx.vectors {
		results[i] = ScoredChunk{ChunkID: idx.ids[i], Score: dotProduct(query, vec)}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Dims 返回索引的固定维度。
func (idx *VectorIndex) Dims() int {
	return idx.dims
}

// Len 返回条目数。
func (idx *VectorIndex) Len() int {
	return len(idx.ids)
}

func dotProduct(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// normalizeVector L2 归一化，零向量原样返回。
func normalizeVector(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return vec
	}
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}
