package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisEntryStore 基于 Redis 的缓存条目后端，适合多进程共享缓存元数据。
// 负载文件仍在共享文件系统上，这里只存条目记录。
type RedisEntryStore struct {
	client *redis.Client
	prefix string
}

// NewRedisEntryStore 创建 Redis 条目存储。prefix 为空时用 "eagent"。
func NewRedisEntryStore(client *redis.Client, prefix string) *RedisEntryStore {
	if prefix == "" {
		prefix = "eagent"
	}
	return &RedisEntryStore{client: client, prefix: prefix}
}

func (r *RedisEntryStore) entryKey(stage, cacheKey string) string {
	return fmt.Sprintf("%s:cache_entry:%s:%s", r.prefix, stage, cacheKey)
}

func (r *RedisEntryStore) stageKey(stage string) string {
	return fmt.Sprintf("%s:cache_stage:%s", r.prefix, stage)
}

func (r *RedisEntryStore) stagesKey() string {
	return fmt.Sprintf("%s:cache_stages", r.prefix)
}

func (r *RedisEntryStore) GetCacheEntry(stage, cacheKey string) (*CacheEntryRecord, error) {
	ctx := context.Background()
	raw, err := r.client.Get(ctx, r.entryKey(stage, cacheKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get cache entry: %w", err)
	}
	var entry CacheEntryRecord
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("decode cache entry: %w", err)
	}
	return &entry, nil
}

func (r *RedisEntryStore) PutCacheEntry(entry CacheEntryRecord) error {
	ctx := context.Background()
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.entryKey(entry.Stage, entry.CacheKey), raw, 0)
	pipe.SAdd(ctx, r.stageKey(entry.Stage), entry.CacheKey)
	pipe.SAdd(ctx, r.stagesKey(), entry.Stage)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis put cache entry: %w", err)
	}
	return nil
}

func (r *RedisEntryStore) TouchCacheEntry(stage, cacheKey string) error {
	entry, err := r.GetCacheEntry(stage, cacheKey)
	if err != nil || entry == nil {
		return err
	}
	now := time.Now().UTC()
	entry.LastAccessed = &now
	return r.PutCacheEntry(*entry)
}

func (r *RedisEntryStore) DeleteCacheEntry(stage, cacheKey string) error {
	ctx := context.Background()
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.entryKey(stage, cacheKey))
	pipe.SRem(ctx, r.stageKey(stage), cacheKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis delete cache entry: %w", err)
	}
	return nil
}

func (r *RedisEntryStore) CacheStats() ([]CacheStat, error) {
	ctx := context.Background()
	stages, err := r.client.SMembers(ctx, r.stagesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list stages: %w", err)
	}
	stats := make([]CacheStat, 0, len(stages))
	for _, stage := range stages {
		count, err := r.client.SCard(ctx, r.stageKey(stage)).Result()
		if err != nil {
			return nil, fmt.Errorf("redis count stage %s: %w", stage, err)
		}
		if count > 0 {
			stats = append(stats, CacheStat{Stage: stage, Count: count})
		}
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Stage < stats[j].Stage })
	return stats, nil
}

func (r *RedisEntryStore) CacheEntriesOlderThan(cutoff time.Time) ([]CacheEntryRecord, error) {
	ctx := context.Background()
	stages, err := r.client.SMembers(ctx, r.stagesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list stages: %w", err)
	}
	var old []CacheEntryRecord
	for _, stage := range stages {
		keys, err := r.client.SMembers(ctx, r.stageKey(stage)).Result()
		if err != nil {
			return nil, fmt.Errorf("redis list stage %s: %w", stage, err)
		}
		for _, cacheKey := range keys {
			entry, err := r.GetCacheEntry(stage, cacheKey)
			if err != nil {
				return nil, err
			}
			if entry != nil && entry.CreatedAt.Before(cutoff) {
				old = append(old, *entry)
			}
		}
	}
	return old, nil
}
