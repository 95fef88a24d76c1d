package ingest

import (
	"context"
	"fmt"
	"time"

	"resumerag/internal/cache"
	"resumerag/internal/db/postgres"
	"resumerag/internal/domain/retrieval"
	applog "resumerag/internal/platform/log"
)

// Ingestor 索引重建流水线：读源、分块、嵌入、构建快照、
// 原子换入、落盘、失效答案缓存。单写者，重建期间查询
// 继续走旧快照。
type Ingestor struct {
	corpus   *retrieval.Corpus
	chunker  *retrieval.Chunker
	embedder retrieval.Embedder
	source   Source
	cache    *cache.Layer            // 可为 nil
	resumes  *postgres.ResumeStore   // 可为 nil，简历登记降级关闭
	cfg      retrieval.Config
}

func NewIngestor(corpus *retrieval.Corpus, embedder retrieval.Embedder, source Source, cacheLayer *cache.Layer, resumes *postgres.ResumeStore, cfg retrieval.Config) (*Ingestor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	chunker, err := retrieval.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	return &Ingestor{
		corpus:   corpus,
		chunker:  chunker,
		embedder: embedder,
		source:   source,
		cache:    cacheLayer,
		resumes:  resumes,
		cfg:      cfg,
	}, nil
}

// Reindex 全量重建索引并发布新快照。
// 任一环节失败则整次重建作废，当前快照保持不变。
func (ing *Ingestor) Reindex(ctx context.Context) (*retrieval.ReindexResult, error) {
	unlock := ing.corpus.LockRebuild()
	defer unlock()

	start := time.Now()

	docs, err := ing.source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load resumes: %w", err)
	}
	applog.Info("[Ingest] Loaded resumes", "count", len(docs))

	// ── 登记与分块 ──
	var chunks []retrieval.Chunk
	for i := range docs {
		doc := &docs[i]
		if ing.resumes != nil {
			if err := ing.resumes.Upsert(ctx, doc); err != nil {
				applog.Warn("[Ingest] Failed to register resume", "file", doc.Filename, "error", err)
			}
		}

		spans := detectSections(doc.Content)
		// chunk id 以文件名为前缀，重建之间保持稳定
		docChunks := ing.chunker.Split(doc.Filename, doc.Filename, doc.Content)
		for j := range docChunks {
			docChunks[j].Section = sectionAt(spans, docChunks[j].Start)
		}
		chunks = append(chunks, docChunks...)
	}

	// ── 嵌入 ──
	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, ch := range chunks {
			texts[i] = ch.Content
		}
		vectors, err := ing.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed chunks: %w", err)
		}
		for i := range chunks {
			chunks[i].Vector = vectors[i]
		}
	}

	// ── 构建并发布快照 ──
	snap, err := retrieval.BuildSnapshot(chunks, ing.corpus.NextGeneration(), &ing.cfg)
	if err != nil {
		return nil, fmt.Errorf("build snapshot: %w", err)
	}
	ing.corpus.Publish(snap)

	if ing.cfg.SnapshotPath != "" {
		if err := retrieval.SaveSnapshot(ing.cfg.SnapshotPath, snap); err != nil {
			// 落盘失败不回滚已发布的内存快照
			applog.Error("[Ingest] Failed to persist snapshot", "path", ing.cfg.SnapshotPath, "error", err)
		}
	}

	// 语料已变，旧答案不再可信；embedding 缓存按内容寻址，保留
	if ing.cache != nil {
		ing.cache.InvalidateAnswers(ctx)
	}

	result := &retrieval.ReindexResult{
		Documents:  len(docs),
		Chunks:     len(chunks),
		Generation: snap.Generation(),
		ElapsedMs:  time.Since(start).Milliseconds(),
	}
	applog.Info("[Ingest] Reindex complete",
		"documents", result.Documents,
		"chunks", result.Chunks,
		"generation", result.Generation,
		"elapsed_ms", result.ElapsedMs)
	return result, nil
}

// Restore 启动时从磁盘快照恢复语料，无快照时为空语料。
func (ing *Ingestor) Restore() error {
	if ing.cfg.SnapshotPath == "" {
		return nil
	}
	snap, err := retrieval.LoadSnapshot(ing.cfg.SnapshotPath, &ing.cfg)
	if err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}
	if snap == nil {
		applog.Info("[Ingest] No snapshot on disk, starting with empty corpus")
		return nil
	}
	ing.corpus.Publish(snap)
	applog.Info("[Ingest] Restored snapshot", "generation", snap.Generation(), "chunks", snap.Len())
	return nil
}
