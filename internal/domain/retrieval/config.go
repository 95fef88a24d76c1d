package retrieval

import (
	"crypto/sha256"
	"fmt"
	"math"
)

// Config 检索模块配置
type Config struct {
	// Chunker 配置
	ChunkSize    int `json:"chunk_size"`    // 每块最大字符数
	ChunkOverlap int `json:"chunk_overlap"` // 块间重叠字符数

	// 融合权重，二者之和必须为 1.0
	VectorWeight  float64 `json:"vector_weight"`
	KeywordWeight float64 `json:"keyword_weight"`

	// 检索配置
	TopK       int `json:"top_k"`       // 最终返回条数
	CandidateN int `json:"candidate_n"` // 每路候选条数（> TopK）

	// BM25 参数
	BM25K1 float64 `json:"bm25_k1"`
	BM25B  float64 `json:"bm25_b"`

	// Embedding
	EmbeddingModel     string `json:"embedding_model"`
	EmbeddingDims      int    `json:"embedding_dims"`
	EmbeddingBatchSize int    `json:"embedding_batch_size"`
	EmbedConcurrency   int    `json:"embed_concurrency"` // 并发批次上限
	EmbedMaxRetries    int    `json:"embed_max_retries"`

	// 上下文拼装预算（字符）
	ContextBudget int `json:"context_budget"`

	// 持久化
	SnapshotPath string `json:"snapshot_path"`
	ResumeDir    string `json:"resume_dir"`
}

// DefaultConfig 默认配置（产品调优参数，均可通过环境变量覆盖）
func DefaultConfig() *Config {
	return &Config{
		ChunkSize:          800,
		ChunkOverlap:       200,
		VectorWeight:       0.7,
		KeywordWeight:      0.3,
		TopK:               5,
		CandidateN:         20,
		BM25K1:             1.5,
		BM25B:              0.75,
		EmbeddingModel:     "text-embedding-3-small",
		EmbeddingDims:      1536,
		EmbeddingBatchSize: 64,
		EmbedConcurrency:   4,
		EmbedMaxRetries:    3,
		ContextBudget:      6000,
		SnapshotPath:       "data/index/snapshot.json",
		ResumeDir:          "data/resumes",
	}
}

// Validate 校验配置，违反约束返回 ErrConfiguration
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", ErrConfiguration, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap %d must be in [0, chunk_size %d)", ErrConfiguration, c.ChunkOverlap, c.ChunkSize)
	}
	if math.Abs(c.VectorWeight+c.KeywordWeight-1.0) > 1e-9 {
		return fmt.Errorf("%w: vector_weight %.3f + keyword_weight %.3f must sum to 1.0",
			ErrConfiguration, c.VectorWeight, c.KeywordWeight)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("%w: top_k must be positive, got %d", ErrConfiguration, c.TopK)
	}
	if c.CandidateN < c.TopK {
		return fmt.Errorf("%w: candidate_n %d must be >= top_k %d", ErrConfiguration, c.CandidateN, c.TopK)
	}
	if c.EmbeddingDims <= 0 {
		return fmt.Errorf("%w: embedding_dims must be positive, got %d", ErrConfiguration, c.EmbeddingDims)
	}
	return nil
}

// Version 检索配置指纹。参与答案缓存 key，
// 任何调优变更都会隐式失效旧答案。
func (c *Config) Version() string {
	raw := fmt.Sprintf("v1|%d|%d|%.4f|%.4f|%d|%d|%.2f|%.2f|%s|%d|%d",
		c.ChunkSize, c.ChunkOverlap,
		c.VectorWeight, c.KeywordWeight,
		c.TopK, c.CandidateN,
		c.BM25K1, c.BM25B,
		c.EmbeddingModel, c.EmbeddingDims,
		c.ContextBudget,
	)
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", sum[:8])
}
