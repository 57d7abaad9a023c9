package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"docqa-go/internal/model"

	"github.com/go-redis/redis/v8"
)

const (
	// 每个文档保留的最大问答条数
	historyLimit = 20
	historyTTL   = 7 * 24 * time.Hour
)

// ConversationRepository 按文档记录问答历史。
type ConversationRepository interface {
	Append(ctx context.Context, documentID uint, record model.ChatRecord) error
	History(ctx context.Context, documentID uint) ([]model.ChatRecord, error)
	Delete(ctx context.Context, documentID uint) error
}

type redisConversationRepository struct {
	redisClient *redis.Client
}

// NewConversationRepository 创建一个基于 Redis 的 ConversationRepository 实例。
func NewConversationRepository(redisClient *redis.Client) ConversationRepository {
	return &redisConversationRepository{redisClient: redisClient}
}

func conversationKey(documentID uint) string {
	return fmt.Sprintf("conversation:doc:%d", documentID)
}

// Append 在列表尾部追加一条记录，只保留最近 historyLimit 条。
func (r *redisConversationRepository) Append(ctx context.Context, documentID uint, record model.ChatRecord) error {
	jsonData, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal chat record: %w", err)
	}
	key := conversationKey(documentID)
	pipe := r.redisClient.TxPipeline()
	pipe.RPush(ctx, key, jsonData)
	pipe.LTrim(ctx, key, -historyLimit, -1)
	pipe.Expire(ctx, key, historyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append chat record: %w", err)
	}
	return nil
}

// History 按时间顺序返回文档的问答历史。
func (r *redisConversationRepository) History(ctx context.Context, documentID uint) ([]model.ChatRecord, error) {
	items, err := r.redisClient.LRange(ctx, conversationKey(documentID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get chat history: %w", err)
	}
	records := make([]model.ChatRecord, 0, len(items))
	for _, item := range items {
		var rec model.ChatRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal chat record: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (r *redisConversationRepository) Delete(ctx context.Context, documentID uint) error {
	return r.redisClient.Del(ctx, conversationKey(documentID)).Err()
}

// memoryConversationRepository 在未配置 Redis 时使用，进程退出后历史丢失。
type memoryConversationRepository struct {
	mu      sync.Mutex
	records map[uint][]model.ChatRecord
}

// NewMemoryConversationRepository 创建一个进程内的 ConversationRepository 实例。
func NewMemoryConversationRepository() ConversationRepository {
	return &memoryConversationRepository{records: map[uint][]model.ChatRecord{}}
}

func (r *memoryConversationRepository) Append(ctx context.Context, documentID uint, record model.ChatRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := append(r.records[documentID], record)
	if len(list) > historyLimit {
		list = list[len(list)-historyLimit:]
	}
	r.records[documentID] = list
	return nil
}

func (r *memoryConversationRepository) History(ctx context.Context, documentID uint) ([]model.ChatRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.ChatRecord, len(r.records[documentID]))
	copy(out, r.records[documentID])
	return out, nil
}

func (r *memoryConversationRepository) Delete(ctx context.Context, documentID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, documentID)
	return nil
}
