package retrieval

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	applog "resumerag/internal/platform/log"
)

// Retriever 混合检索引擎。
// 两路检索（向量 + 关键词）对同一快照并发执行，
// 汇合后才进入融合 —— fan-out/fan-in，不是流水线。
type Retriever struct {
	corpus   *Corpus
	embedder Embedder
	scorer   *HybridScorer
	cfg      *Config
}

// NewRetriever 创建检索引擎。配置非法返回 ErrConfiguration。
func NewRetriever(corpus *Corpus, embedder Embedder, cfg *Config) (*Retriever, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	scorer, err := NewHybridScorer(cfg.VectorWeight, cfg.KeywordWeight)
	if err != nil {
		return nil, err
	}
	return &Retriever{
		corpus:   corpus,
		embedder: embedder,
		scorer:   scorer,
		cfg:      cfg,
	}, nil
}

// Corpus 返回底层语料。
func (r *Retriever) Corpus() *Corpus {
	return r.corpus
}

// Config 返回检索配置。
func (r *Retriever) Config() *Config {
	return r.cfg
}

// Search 混合检索：并发取两路候选各 CandidateN 条，汇合后融合出前 k 条。
// 返回结果所基于的快照，供调用方在同一快照上取 chunk 文本。
// 空语料返回空结果而非错误。
func (r *Retriever) Search(ctx context.Context, query string, k int) ([]FusedCandidate, *Snapshot, error) {
	if k <= 0 {
		k = r.cfg.TopK
	}
	snap := r.corpus.Snapshot()
	if snap == nil || snap.Len() == 0 {
		return nil, snap, nil
	}

	start := time.Now()

	var vectorResults, keywordResults []ScoredChunk
	g, gctx := errgroup.WithContext(ctx)

	// 向量路：embed query（挂起点，缓存命中则无远程调用）→ 索引查询
	g.Go(func() error {
		vecs, err := r.embedder.Embed(gctx, []string{query})
		if err != nil {
			return fmt.Errorf("%w: embed query: %w", ErrRetrievalFailed, err)
		}
		results, err := snap.VectorIndex().Query(vecs[0], r.cfg.CandidateN)
		if err != nil {
			return fmt.Errorf("%w: vector query: %w", ErrRetrievalFailed, err)
		}
		vectorResults = results
		return nil
	})

	// 关键词路：内存索引查询，同步不挂起
	g.Go(func() error {
		keywordResults = snap.KeywordIndex().Query(Tokenize(query), r.cfg.CandidateN)
		return nil
	})

	// 融合要求两路都完成：join 后才合并
	if err := g.Wait(); err != nil {
		return nil, snap, err
	}

	fused := r.scorer.Fuse(vectorResults, keywordResults, k)

	applog.Debug("[Retrieval] Hybrid search done",
		"query", query,
		"vector_count", len(vectorResults),
		"keyword_count", len(keywordResults),
		"fused_count", len(fused),
		"generation", snap.Generation(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return fused, snap, nil
}
