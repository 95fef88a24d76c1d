package retrieval

import "time"

// Document 已摄取的简历文档。按 filename 全量替换，入库后不可变。
type Document struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	Content    string    `json:"content"`
	Chars      int       `json:"chars"`
	IngestedAt time.Time `json:"ingested_at"`
}

// Chunk 文档分块，检索与索引的基本单元。
// 向量在 Embedding 完成后附加，此后不再变更。
type Chunk struct {
	ID       string    `json:"id"` // docID + "_chunk_" + seq
	DocID    string    `json:"doc_id"`
	Filename string    `json:"filename"`
	Section  string    `json:"section,omitempty"`
	Seq      int       `json:"seq"`
	Start    int       `json:"start"` // 在原文中的起始 rune 偏移
	Content  string    `json:"content"`
	Tokens   int       `json:"tokens"`
	Vector   []float32 `json:"vector,omitempty"`
}

// ScoredChunk 单路检索结果（向量或关键词）。
type ScoredChunk struct {
	ChunkID string  `json:"chunk_id"`
	Score   float64 `json:"score"`
}

// FusedCandidate 融合后的候选，仅存活于单次查询。
type FusedCandidate struct {
	ChunkID      string  `json:"chunk_id"`
	VectorScore  float64 `json:"vector_score"`
	KeywordScore float64 `json:"keyword_score"`
	FusedScore   float64 `json:"fused_score"`
	Rank         int     `json:"rank"`
}

// SearchResult 混合检索结果。
type SearchResult struct {
	Candidates []FusedCandidate `json:"candidates"`
	Generation uint64           `json:"generation"`
	ElapsedMs  int64            `json:"elapsed_ms"`
}

// ReindexResult 重建索引结果。
type ReindexResult struct {
	Documents  int    `json:"documents"`
	Chunks     int    `json:"chunks"`
	Generation uint64 `json:"generation"`
	ElapsedMs  int64  `json:"elapsed_ms"`
}
