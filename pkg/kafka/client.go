// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"docqa-go/internal/config"
	"docqa-go/pkg/log"
	"docqa-go/pkg/retry"
	"docqa-go/pkg/tasks"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
)

// TaskProcessor defines the interface for any service that can process a task.
// This decouples the Kafka consumer from the concrete pipeline implementation.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.IngestTask) error
	// Abandon 在任务重试耗尽、offset 即将提交时调用，用于清理暂存数据。
	Abandon(ctx context.Context, task tasks.IngestTask, cause error)
}

func brokers(cfg config.KafkaConfig) []string {
	var out []string
	for _, b := range strings.Split(cfg.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Producer 将文档处理任务写入 Kafka。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokers(cfg)...),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	log.Info("Kafka 生产者初始化成功")
	return &Producer{writer: w}
}

// Enqueue 发送一个文档处理任务到 Kafka。
func (p *Producer) Enqueue(ctx context.Context, task tasks.IngestTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.FileMD5),
		Value: taskBytes,
	})
}

func (p *Producer) Close() error { return p.writer.Close() }

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer 消费文档处理任务。失败的任务在拉取下一条消息之前按指数退避原地重试，
// 失败次数记录在 Redis 的 kafka:attempts:<md5> 中，进程重启后继续累计；
// 达到上限后放弃任务并提交 offset。
type Consumer struct {
	reader        messageReader
	processor     TaskProcessor
	rdb           *redis.Client
	maxAttempts   int64
	retryInterval time.Duration

	// Redis 未配置时使用的进程内计数
	mu       sync.Mutex
	attempts map[string]int64
}

// NewConsumer 创建一个消费者。rdb 可以为 nil。
func NewConsumer(cfg config.KafkaConfig, processor TaskProcessor, rdb *redis.Client) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers(cfg),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return newConsumer(r, processor, rdb, cfg.MaxAttempts)
}

func newConsumer(r messageReader, processor TaskProcessor, rdb *redis.Client, maxAttempts int) *Consumer {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Consumer{
		reader:        r,
		processor:     processor,
		rdb:           rdb,
		maxAttempts:   int64(maxAttempts),
		retryInterval: time.Second,
		attempts:      map[string]int64{},
	}
}

// Run 持续拉取消息直到 ctx 被取消。
func (c *Consumer) Run(ctx context.Context) error {
	log.Info("Kafka 消费者已启动")
	defer func() {
		if err := c.reader.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error("从 Kafka 读取消息失败", err)
			return err
		}
		log.Infof("收到 Kafka 消息: offset %d", m.Offset)

		if c.handle(ctx, m) {
			if err := c.reader.CommitMessages(ctx, m); err != nil {
				log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
			}
		}
	}
}

// handle 处理单条消息并返回是否应提交 offset。
// 只有 ctx 被取消时返回 false，此时消息会在重启后重新投递。
func (c *Consumer) handle(ctx context.Context, m kafka.Message) bool {
	var task tasks.IngestTask
	if err := json.Unmarshal(m.Value, &task); err != nil {
		// 消息格式错误，直接提交，避免阻塞队列
		log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
		return true
	}

	log.Infof("开始处理文档任务: MD5=%s, FileName=%s", task.FileMD5, task.FileName)
	policy := retry.Policy{MaxRetries: int(c.maxAttempts) - 1, InitialInterval: c.retryInterval}
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		err := c.processor.Process(ctx, task)
		if err == nil {
			return nil
		}
		attempts := c.incrAttempts(ctx, task.FileMD5)
		log.Errorf("处理文档任务失败(第 %d 次): MD5=%s, Error: %v", attempts, task.FileMD5, err)
		if attempts >= c.maxAttempts {
			return retry.Permanent(err)
		}
		return err
	})
	if err == nil {
		log.Infof("文档任务处理成功: MD5=%s", task.FileMD5)
		c.resetAttempts(ctx, task.FileMD5)
		return true
	}
	if ctx.Err() != nil {
		log.Warnf("消费者停止, 文档任务未完成: MD5=%s", task.FileMD5)
		return false
	}

	log.Errorf("文档任务多次失败(>=%d)，提交 offset 终止重试: MD5=%s", c.maxAttempts, task.FileMD5)
	c.processor.Abandon(ctx, task, err)
	c.resetAttempts(ctx, task.FileMD5)
	return true
}

func attemptsKey(fileMD5 string) string {
	return fmt.Sprintf("kafka:attempts:%s", fileMD5)
}

// incrAttempts 累加失败次数。Redis 不可用时退回进程内计数。
func (c *Consumer) incrAttempts(ctx context.Context, fileMD5 string) int64 {
	if c.rdb != nil {
		key := attemptsKey(fileMD5)
		attempts, err := c.rdb.Incr(ctx, key).Result()
		if err == nil {
			_ = c.rdb.Expire(ctx, key, 24*time.Hour).Err()
			return attempts
		}
		log.Errorf("记录任务失败次数出错, 改用进程内计数: %v", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts[fileMD5]++
	return c.attempts[fileMD5]
}

func (c *Consumer) resetAttempts(ctx context.Context, fileMD5 string) {
	c.mu.Lock()
	delete(c.attempts, fileMD5)
	c.mu.Unlock()
	if c.rdb == nil {
		return
	}
	if err := c.rdb.Del(ctx, attemptsKey(fileMD5)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		log.Warnf("清理任务失败计数出错: %v", err)
	}
}
