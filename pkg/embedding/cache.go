package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"docqa-go/pkg/log"
	"docqa-go/pkg/vector"

	"github.com/go-redis/redis/v8"
)

// cachedClient stores vectors in Redis so re-uploading the same document does not pay for embeddings twice.
type cachedClient struct {
	inner Client
	rdb   *redis.Client
	ttl   time.Duration
}

// NewCachedClient wraps inner with a Redis-backed cache. Redis failures degrade to direct calls.
func NewCachedClient(inner Client, rdb *redis.Client, ttl time.Duration) Client {
	return &cachedClient{inner: inner, rdb: rdb, ttl: ttl}
}

func (c *cachedClient) Model() string { return c.inner.Model() }

func (c *cachedClient) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("embedding:%s:%s", c.inner.Model(), hex.EncodeToString(sum[:]))
}

func (c *cachedClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.CreateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *cachedClient) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = c.key(t)
	}

	out := make([][]float32, len(texts))
	var missIdx []int
	vals, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		log.Warnf("[EmbeddingCache] 读取 Redis 缓存失败, 直接调用模型: %v", err)
		vals = make([]interface{}, len(texts))
	}
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			missIdx = append(missIdx, i)
			continue
		}
		vec, decErr := vector.Decode([]byte(s))
		if decErr != nil || len(vec) == 0 {
			missIdx = append(missIdx, i)
			continue
		}
		out[i] = vec
	}
	log.Infof("[EmbeddingCache] 命中 %d/%d", len(texts)-len(missIdx), len(texts))
	if len(missIdx) == 0 {
		return out, nil
	}

	missing := make([]string, len(missIdx))
	for j, i := range missIdx {
		missing[j] = texts[i]
	}
	vecs, err := c.inner.CreateEmbeddings(ctx, missing)
	if err != nil {
		return nil, err
	}

	pipe := c.rdb.Pipeline()
	for j, i := range missIdx {
		out[i] = vecs[j]
		pipe.Set(ctx, keys[i], vector.Encode(vecs[j]), c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		log.Warnf("[EmbeddingCache] 写入 Redis 缓存失败: %v", err)
	}
	return out, nil
}
