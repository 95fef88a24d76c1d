package retrieval

import (
	"fmt"
	"math"
	"sort"
)

// HybridScorer 双路得分融合。
// 向量相似度与词法相关度量纲不可比，必须各自检索、
// 各自 min-max 归一化到 [0,1] 后再加权合并。
type HybridScorer struct {
	vectorWeight  float64
	keywordWeight float64
}

// NewHybridScorer 创建融合器。权重之和必须为 1.0，否则 ErrConfiguration。
func NewHybridScorer(vectorWeight, keywordWeight float64) (*HybridScorer, error) {
	if math.Abs(vectorWeight+keywordWeight-1.0) > 1e-9 {
		return nil, fmt.Errorf("%w: fusion weights %.3f + %.3f must sum to 1.0",
			ErrConfiguration, vectorWeight, keywordWeight)
	}
	return &HybridScorer{vectorWeight: vectorWeight, keywordWeight: keywordWeight}, nil
}

// Fuse 合并两路候选，返回按融合分降序的前 k 条。
// 某路缺席的 chunk 该项贡献为 0；同分按 chunk id 升序。
// 两路均为空时返回空列表而非错误。
func (s *HybridScorer) Fuse(vector, keyword []ScoredChunk, k int) []FusedCandidate {
	if len(vector) == 0 && len(keyword) == 0 {
		return nil
	}

	normVector := minMaxNormalize(vector)
	normKeyword := minMaxNormalize(keyword)

	merged := make(map[string]*FusedCandidate, len(vector)+len(keyword))
	for _, sc := range vector {
		merged[sc.ChunkID] = &FusedCandidate{ChunkID: sc.ChunkID, VectorScore: normVector[sc.ChunkID]}
	}
	for _, sc := range keyword {
		cand, ok := merged[sc.ChunkID]
		if !ok {
			cand = &FusedCandidate{ChunkID: sc.ChunkID}
			merged[sc.ChunkID] = cand
		}
		cand.KeywordScore = normKeyword[sc.ChunkID]
	}

	results := make([]FusedCandidate, 0, len(merged))
	for _, cand := range merged {
		cand.FusedScore = s.vectorWeight*cand.VectorScore + s.keywordWeight*cand.KeywordScore
		results = append(results, *cand)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].FusedScore != results[j].FusedScore {
			return results[i].FusedScore > results[j].FusedScore
		}
		return results[i].ChunkID < results[j].ChunkID
	})

	if k > 0 && len(results) > k {
		results = results[:k]
	}
	for i := range results {
		results[i].Rank = i + 1
	}
	return results
}

// minMaxNormalize 列表内 min-max 归一化到 [0,1]。
// 零量程（全部同分）时整列映射为 1.0。
func minMaxNormalize(list []ScoredChunk) map[string]float64 {
	if len(list) == 0 {
		return nil
	}
	lo, hi := list[0].Score, list[0].Score
	for _, sc := range list[1:] {
		if sc.Score < lo {
			lo = sc.Score
		}
		if sc.Score > hi {
			hi = sc.Score
		}
	}

	norm := make(map[string]float64, len(list))
	span := hi - lo
	for _, sc := range list {
		if span == 0 {
			norm[sc.ChunkID] = 1.0
		} else {
			norm[sc.ChunkID] = (sc.Score - lo) / span
		}
	}
	return norm
}
