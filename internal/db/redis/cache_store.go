package redisdb

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	applog "resumerag/internal/platform/log"
)

// CacheStore Redis 实现的外部持久缓存（cache.Store）。
// 读失败按 miss 处理，写失败吞掉并记日志：缓存不可用只降级为全量计算。
type CacheStore struct {
	redis  *redis.Client
	prefix string
}

// NewCacheStore 创建 Redis 缓存存储。
func NewCacheStore(rdb *redis.Client) *CacheStore {
	return &CacheStore{
		redis:  rdb,
		prefix: "resumerag:cache:",
	}
}

// Get 读取。任何错误（含 key 不存在）都按 miss 返回。
func (s *CacheStore) Get(ctx context.Context, namespace, key string) ([]byte, bool) {
	data, err := s.redis.Get(ctx, s.key(namespace, key)).Bytes()
	if err != nil {
		if err != redis.Nil {
			applog.Warn("[Cache/Redis] Read failed, treating as miss", "namespace", namespace, "error", err)
		}
		return nil, false
	}
	return data, true
}

// Set 写入。ttl <= 0 表示永不过期。写失败不影响调用方。
func (s *CacheStore) Set(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) {
	if ttl < 0 {
		ttl = 0
	}
	if err := s.redis.Set(ctx, s.key(namespace, key), value, ttl).Err(); err != nil {
		applog.Warn("[Cache/Redis] Write failed, ignored", "namespace", namespace, "error", err)
	}
}

// Invalidate 按命名空间批量删除（SCAN + DEL）。
func (s *CacheStore) Invalidate(ctx context.Context, namespace string) {
	pattern := s.prefix + namespace + ":*"
	iter := s.redis.Scan(ctx, 0, pattern, 500).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		applog.Warn("[Cache/Redis] Scan failed during invalidation", "namespace", namespace, "error", err)
		return
	}
	if len(keys) > 0 {
		if err := s.redis.Del(ctx, keys...).Err(); err != nil {
			applog.Warn("[Cache/Redis] Delete failed during invalidation", "namespace", namespace, "error", err)
			return
		}
		applog.Info("[Cache/Redis] Invalidated", "namespace", namespace, "keys_deleted", len(keys))
	}
}

func (s *CacheStore) key(namespace, key string) string {
	return s.prefix + namespace + ":" + key
}
