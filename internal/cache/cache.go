package cache

import (
	"context"
	"encoding/json"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"

	applog "resumerag/internal/platform/log"
)

// 命名空间：key 空间与过期策略相互独立。
const (
	NamespaceEmbedding = "emb" // 文本指纹 → 向量，永不过期
	NamespaceAnswer    = "ans" // 问题指纹 → 完整答案，TTL 控制新鲜度
)

// Store 外部持久缓存端口（跨进程重启共享，支持 TTL）。
// 读失败按 miss 处理，写失败吞掉并记日志 —— 正确性不依赖缓存。
type Store interface {
	Get(ctx context.Context, namespace, key string) ([]byte, bool)
	Set(ctx context.Context, namespace, key string, value []byte, ttl time.Duration)
	Invalidate(ctx context.Context, namespace string)
}

// AnswerEntry 答案缓存条目。
type AnswerEntry struct {
	Answer       string    `json:"answer"`
	ChunkIDs     []string  `json:"chunk_ids"`
	SearchMs     int64     `json:"search_ms"`
	FirstTokenMs int64     `json:"first_token_ms"`
	TotalMs      int64     `json:"total_ms"`
	CachedAt     time.Time `json:"cached_at"`
}

// Config 缓存层配置。
type Config struct {
	EmbeddingCapacity int           // 进程内向量条目上限
	AnswerCapacity    int           // 进程内答案条目上限
	AnswerTTL         time.Duration // 答案新鲜度上限，两级一致
}

// Layer 两级缓存：进程内 LRU 快路径 + 外部持久存储。
// 读：先进程内，再外部，外部命中回填进程内；写：两级直写。
type Layer struct {
	embeddings *lru.Cache[string, []float32]
	answers    *expirable.LRU[string, AnswerEntry]
	store      Store // 可为 nil（无外部缓存模式）
	answerTTL  time.Duration
}

// New 创建缓存层。store 为 nil 时仅保留进程内一级。
func New(cfg Config, store Store) (*Layer, error) {
	if cfg.EmbeddingCapacity <= 0 {
		cfg.EmbeddingCapacity = 4096
	}
	if cfg.AnswerCapacity <= 0 {
		cfg.AnswerCapacity = 256
	}
	if cfg.AnswerTTL <= 0 {
		cfg.AnswerTTL = time.Hour
	}

	embeddings, err := lru.New[string, []float32](cfg.EmbeddingCapacity)
	if err != nil {
		return nil, err
	}
	answers := expirable.NewLRU[string, AnswerEntry](cfg.AnswerCapacity, nil, cfg.AnswerTTL)

	return &Layer{
		embeddings: embeddings,
		answers:    answers,
		store:      store,
		answerTTL:  cfg.AnswerTTL,
	}, nil
}

// ── Embedding 缓存（无 TTL）───────────────────────────────────

// GetVector 读向量。进程内 miss 时查外部存储并回填。
func (l *Layer) GetVector(ctx context.Context, key string) ([]float32, bool) {
	if vec, ok := l.embeddings.Get(key); ok {
		return vec, true
	}
	if l.store == nil {
		return nil, false
	}
	data, ok := l.store.Get(ctx, NamespaceEmbedding, key)
	if !ok {
		return nil, false
	}
	var vec []float32
	if err := json.Unmarshal(data, &vec); err != nil {
		applog.Warn("[Cache] Corrupted embedding entry, treating as miss", "key", key, "error", err)
		return nil, false
	}
	l.embeddings.Add(key, vec) // 外部命中晋升到进程内
	return vec, true
}

// PutVector 两级直写。向量对固定模型稳定，不设 TTL。
func (l *Layer) PutVector(ctx context.Context, key string, vector []float32) {
	l.embeddings.Add(key, vector)
	if l.store == nil {
		return
	}
	data, err := json.Marshal(vector)
	if err != nil {
		return
	}
	l.store.Set(ctx, NamespaceEmbedding, key, data, 0)
}

// ── 答案缓存（TTL 受控）──────────────────────────────────────

// GetAnswer 读完整答案。TTL 过期的条目一律视为缺失，不会悄悄返回。
func (l *Layer) GetAnswer(ctx context.Context, key string) (AnswerEntry, bool) {
	if entry, ok := l.answers.Get(key); ok {
		if l.fresh(entry) {
			return entry, true
		}
		l.answers.Remove(key)
	}
	if l.store == nil {
		return AnswerEntry{}, false
	}
	data, ok := l.store.Get(ctx, NamespaceAnswer, key)
	if !ok {
		return AnswerEntry{}, false
	}
	var entry AnswerEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		applog.Warn("[Cache] Corrupted answer entry, treating as miss", "key", key, "error", err)
		return AnswerEntry{}, false
	}
	if !l.fresh(entry) {
		return AnswerEntry{}, false
	}
	l.answers.Add(key, entry)
	return entry, true
}

// PutAnswer 两级直写，条目从写入起按 TTL 过期。
func (l *Layer) PutAnswer(ctx context.Context, key string, entry AnswerEntry) {
	if entry.CachedAt.IsZero() {
		entry.CachedAt = time.Now()
	}
	l.answers.Add(key, entry)
	if l.store == nil {
		return
	}
	data, err := json.Marshal(&entry)
	if err != nil {
		return
	}
	l.store.Set(ctx, NamespaceAnswer, key, data, l.answerTTL)
}

// InvalidateAnswers 语料重建后清空答案缓存（两级）。
// Embedding 缓存保留：文本 → 向量与语料版本无关。
func (l *Layer) InvalidateAnswers(ctx context.Context) {
	l.answers.Purge()
	if l.store != nil {
		l.store.Invalidate(ctx, NamespaceAnswer)
	}
	applog.Info("[Cache] Answer cache invalidated")
}

// fresh 外部存储按自身 TTL 过期；进程内条目再查一次写入时间，
// 保证跨层晋升后也不会超过答案 TTL。
func (l *Layer) fresh(entry AnswerEntry) bool {
	if entry.CachedAt.IsZero() {
		return true
	}
	return time.Since(entry.CachedAt) < l.answerTTL
}
