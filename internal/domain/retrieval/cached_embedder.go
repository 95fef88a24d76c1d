package retrieval

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	applog "resumerag/internal/platform/log"
)

// EmbeddingCache Embedding 缓存端口（由 cache 层实现）。
// key = 归一化文本指纹，向量对固定模型永久有效。
type EmbeddingCache interface {
	GetVector(ctx context.Context, key string) ([]float32, bool)
	PutVector(ctx context.Context, key string, vector []float32)
}

// CachedEmbedder 带缓存的 Embedder 包装。
// 所有出站文本先查缓存，只有 miss 才发往上游；
// 多个未命中批次并发发送，受并发上限约束（背压排队）。
type CachedEmbedder struct {
	inner       Embedder
	cache       EmbeddingCache
	batchSize   int
	concurrency int
}

// NewCachedEmbedder 创建缓存包装。cache 为 nil 时退化为直通。
func NewCachedEmbedder(inner Embedder, cache EmbeddingCache, batchSize, concurrency int) *CachedEmbedder {
	if batchSize <= 0 {
		batchSize = 64
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &CachedEmbedder{
		inner:       inner,
		cache:       cache,
		batchSize:   batchSize,
		concurrency: concurrency,
	}
}

// Dims 返回向量维度
func (e *CachedEmbedder) Dims() int {
	return e.inner.Dims()
}

// Embed 缓存命中跳过远程调用，miss 批量上游后回填缓存。
// 即使调用方随后取消查询，已算出的向量仍然有效并保留在缓存中。
func (e *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int

	if e.cache != nil {
		for i, text := range texts {
			if vec, ok := e.cache.GetVector(ctx, Fingerprint(text)); ok {
				vectors[i] = vec
				continue
			}
			missTexts = append(missTexts, text)
			missIdx = append(missIdx, i)
		}
	} else {
		missTexts = texts
		missIdx = make([]int, len(texts))
		for i := range texts {
			missIdx[i] = i
		}
	}

	if len(missTexts) == 0 {
		return vectors, nil
	}
	applog.Debug("[Embedder/Cache] Embedding uncached texts",
		"total", len(texts),
		"misses", len(missTexts),
	)

	// 未命中部分分批并发上游，SetLimit 提供背压
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for start := 0; start < len(missTexts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(missTexts) {
			end = len(missTexts)
		}
		batch := missTexts[start:end]
		indices := missIdx[start:end]

		g.Go(func() error {
			got, err := e.inner.Embed(gctx, batch)
			if err != nil {
				return err
			}
			if len(got) != len(batch) {
				return fmt.Errorf("%w: expected %d vectors, got %d", ErrEmbeddingProvider, len(batch), len(got))
			}
			for i, vec := range got {
				vectors[indices[i]] = vec
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// 回填缓存。脱离查询 ctx：查询被取消不影响已算出向量的有效性
	if e.cache != nil {
		writeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		for _, i := range missIdx {
			e.cache.PutVector(writeCtx, Fingerprint(texts[i]), vectors[i])
		}
	}

	return vectors, nil
}
