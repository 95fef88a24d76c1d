package retrieval

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	applog "resumerag/internal/platform/log"
)

// ── Embedder 接口 ──────────────────────────────────────────────

// Embedder 向量生成接口
type Embedder interface {
	// Embed 将文本列表转为向量，顺序与输入一致
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Dims 返回向量维度
	Dims() int
}

// Fingerprint 文本指纹：归一化（压缩空白 + trim）后取 SHA-256。
// 作为 Embedding 缓存 key，同一文本在同一模型下向量稳定。
func Fingerprint(text string) string {
	normalized := strings.Join(strings.Fields(text), " ")
	sum := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", sum)
}

// ── OpenAI 兼容 Embedder 实现 ─────────────────────────────────

// OpenAIEmbedder 调用 OpenAI 兼容 /v1/embeddings API。
// 超过批次上限的请求自动拆分并按序拼接；
// 瞬时失败指数退避重试（有限次数），配额耗尽不重试。
type OpenAIEmbedder struct {
	baseURL    string
	apiKey     string
	model      string
	dims       int
	batchSize  int
	maxRetries int
	client     *http.Client
}

// OpenAIEmbedderConfig 配置
type OpenAIEmbedderConfig struct {
	BaseURL    string // e.g. https://api.openai.com/v1
	APIKey     string
	Model      string // e.g. text-embedding-3-small
	Dims       int
	BatchSize  int // 单次上游请求的文本条数上限
	MaxRetries int // 瞬时失败的重试上限
	Timeout    time.Duration
}

// NewOpenAIEmbedder 创建 OpenAI 兼容 Embedder
func NewOpenAIEmbedder(cfg OpenAIEmbedderConfig) *OpenAIEmbedder {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Dims <= 0 {
		cfg.Dims = 1536
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	return &OpenAIEmbedder{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dims:       cfg.Dims,
		batchSize:  cfg.BatchSize,
		maxRetries: cfg.MaxRetries,
		client:     &http.Client{Timeout: cfg.Timeout},
	}
}

// Dims 返回向量维度
func (e *OpenAIEmbedder) Dims() int {
	return e.dims
}

// Embed 批量生成向量。内部按 batchSize 拆分，结果按输入顺序拼接。
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	all := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += e.batchSize {
		end := i + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := e.embedBatchWithRetry(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w", i, end, err)
		}
		all = append(all, vectors...)
	}
	return all, nil
}

// embedBatchWithRetry 瞬时失败按指数退避重试；
// 配额错误与维度错误立即上抛。
func (e *OpenAIEmbedder) embedBatchWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	backoff := 500 * time.Millisecond
	const maxBackoff = 8 * time.Second

	var lastErr error
	for attempt := 0; attempt < e.maxRetries; attempt++ {
		vectors, err := e.embedBatch(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		lastErr = err

		if !isRetryable(err) || ctx.Err() != nil {
			return nil, err
		}

		if attempt < e.maxRetries-1 {
			applog.Warn("[Embedder] Transient failure, retrying",
				"attempt", attempt+1,
				"backoff_ms", backoff.Milliseconds(),
				"error", err,
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
			}
		}
	}
	return nil, lastErr
}

func isRetryable(err error) bool {
	// 配额与维度问题重试无益
	return !errors.Is(err, ErrEmbeddingQuota) && !errors.Is(err, ErrDimensionMismatch)
}

// ── 内部请求/响应结构 ──────────────────────────────────────────

type embeddingRequest struct {
	Input          []string `json:"input"`
	Model          string   `json:"model"`
	Dimensions     int      `json:"dimensions,omitempty"`
	EncodingFormat string   `json:"encoding_format,omitempty"`
}

type embeddingResponse struct {
	Data []embeddingData `json:"data"`
}

type embeddingData struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

// embedBatch 单批次请求
func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()

	reqBody := embeddingRequest{
		Input:          texts,
		Model:          e.model,
		EncodingFormat: "float",
	}
	if strings.Contains(e.model, "embedding-3") {
		reqBody.Dimensions = e.dims
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", e.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingProvider, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrEmbeddingProvider, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		// fallthrough to parse
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: API status %d: %s", ErrEmbeddingQuota, resp.StatusCode, string(respBody))
	default:
		return nil, fmt.Errorf("%w: API status %d: %s", ErrEmbeddingProvider, resp.StatusCode, string(respBody))
	}

	var embResp embeddingResponse
	if err := json.Unmarshal(respBody, &embResp); err != nil {
		return nil, fmt.Errorf("%w: parse response: %v", ErrEmbeddingProvider, err)
	}

	// 按 index 归位保证顺序
	vectors := make([][]float32, len(texts))
	for _, d := range embResp.Data {
		if d.Index >= 0 && d.Index < len(vectors) {
			vectors[d.Index] = d.Embedding
		}
	}
	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("%w: missing embedding for text index %d", ErrEmbeddingProvider, i)
		}
		if len(v) != e.dims {
			return nil, fmt.Errorf("%w: expected dims %d, got %d", ErrDimensionMismatch, e.dims, len(v))
		}
		vectors[i] = normalizeVector(v)
	}

	applog.Debug("[Embedder] Batch embedded",
		"count", len(texts),
		"dims", e.dims,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return vectors, nil
}
