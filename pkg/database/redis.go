package database

import (
	"context"

	"docqa-go/internal/config"
	"docqa-go/pkg/log"

	"github.com/go-redis/redis/v8"
)

// RDB 为 nil 表示未配置 Redis。
var RDB *redis.Client

// InitRedis 初始化 Redis 客户端连接。未配置地址时跳过。
func InitRedis(cfg config.RedisConfig) {
	if cfg.Addr == "" {
		log.Info("未配置 Redis, 跳过初始化")
		return
	}
	RDB = redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// 测试连接
	if err := RDB.Ping(context.Background()).Err(); err != nil {
		log.Fatal("failed to connect to redis", err)
	}

	log.Info("Redis client connected successfully")
}
