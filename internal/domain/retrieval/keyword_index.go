package retrieval

import (
	"math"
	"sort"
)

// posting 倒排表项：chunk id + 词频。
type posting struct {
	chunkID string
	tf      int
}

// KeywordIndex 内存倒排索引，BM25 打分。
// 每个语料快照构建一次，构建后只读。
type KeywordIndex struct {
	k1 float64
	b  float64

	postings map[string][]posting // token → 按 chunk id 升序的 posting
	docLen   map[string]int       // chunk id → token 数
	totalLen int
	docs     int
}

// NewKeywordIndex 创建 BM25 关键词索引。
func NewKeywordIndex(k1, b float64) *KeywordIndex {
	if k1 <= 0 {
		k1 = 1.5
	}
	if b < 0 || b > 1 {
		b = 0.75
	}
	return &KeywordIndex{
		k1:       k1,
		b:        b,
		postings: make(map[string][]posting),
		docLen:   make(map[string]int),
	}
}

// Add 将 chunk 的 token 序列加入索引。
// 按 chunk id 升序调用可保证 posting 有序；乱序调用由 Query 端排序兜底。
func (idx *KeywordIndex) Add(chunkID string, tokens []string) {
	tf := make(map[string]int, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}
	for token, count := range tf {
		idx.postings[token] = append(idx.postings[token], posting{chunkID: chunkID, tf: count})
	}
	idx.docLen[chunkID] = len(tokens)
	idx.totalLen += len(tokens)
	idx.docs++
}

// Query 对查询 token 做 BM25 打分，返回至多 k 条，
// 按分数降序，同分按 chunk id 升序。
// 停用词过滤后为空的查询返回空结果而非错误。
func (idx *KeywordIndex) Query(tokens []string, k int) []ScoredChunk {
	if len(tokens) == 0 || idx.docs == 0 || k <= 0 {
		return nil
	}

	avgLen := float64(idx.totalLen) / float64(idx.docs)
	n := float64(idx.docs)

	scores := make(map[string]float64)
	for _, token := range tokens {
		plist, ok := idx.postings[token]
		if !ok {
			continue // 索引外的查询词贡献为零
		}
		df := float64(len(plist))
		// 非负 IDF 变体，保证分数可用于 min-max 归一化
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))

		for _, p := range plist {
			tf := float64(p.tf)
			dl := float64(idx.docLen[p.chunkID])
			denom := tf + idx.k1*(1-idx.b+idx.b*dl/avgLen)
			scores[p.chunkID] += idf * tf * (idx.k1 + 1) / denom
		}
	}

	if len(scores) == 0 {
		return nil
	}

	results := make([]ScoredChunk, 0, len(scores))
	for chunkID, score := range scores {
		results = append(results, ScoredChunk{ChunkID: chunkID, Score: score})
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
	return results
}

// Len 返回已索引的 chunk 数。
func (idx *KeywordIndex) Len() int {
	return idx.docs
}
