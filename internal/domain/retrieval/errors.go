package retrieval

import "errors"

var (
	// ErrConfiguration 调用方配置错误，立即返回，不重试
	ErrConfiguration = errors.New("configuration error")

	// ErrEmbeddingProvider Embedding 服务瞬时失败，有限重试后上抛
	ErrEmbeddingProvider = errors.New("embedding provider error")

	// ErrEmbeddingQuota Embedding 配额耗尽，当前批次致命，不重试
	ErrEmbeddingQuota = errors.New("embedding quota exhausted")

	// ErrDimensionMismatch 向量维度与索引不一致，需要重建索引
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrRetrievalFailed 检索阶段失败（重试耗尽后的终态）
	ErrRetrievalFailed = errors.New("retrieval failed")

	// ErrGenerationStream 生成流中途失败，已发送的 token 不回收
	ErrGenerationStream = errors.New("generation stream error")
)
