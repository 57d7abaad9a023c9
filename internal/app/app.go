// Package app 负责按配置组装所有依赖，供 HTTP 服务与命令行共用。
package app

import (
	"context"
	"fmt"
	"io"

	"docqa-go/internal/config"
	"docqa-go/internal/model"
	"docqa-go/internal/pipeline"
	"docqa-go/internal/repository"
	"docqa-go/internal/service"
	"docqa-go/internal/session"
	"docqa-go/internal/vectorstore"
	"docqa-go/internal/vectorstore/elastic"
	"docqa-go/internal/vectorstore/local"
	"docqa-go/internal/vectorstore/qdrant"
	"docqa-go/pkg/database"
	"docqa-go/pkg/embedding"
	"docqa-go/pkg/es"
	"docqa-go/pkg/kafka"
	"docqa-go/pkg/llm"
	"docqa-go/pkg/log"
	"docqa-go/pkg/pdf"
	"docqa-go/pkg/storage"
	"docqa-go/pkg/tika"
)

// App 持有一次进程生命周期内的全部依赖。模型客户端只创建一次，每次提问复用。
type App struct {
	Config    config.Config
	Session   *session.Session
	Documents service.DocumentService
	Chat      service.ChatService
	Search    service.SearchService
	History   service.ConversationService

	// 仅在 ingest.mode=async 时非空
	Consumer *kafka.Consumer

	closers []func() error
}

// Options 控制组装过程中的可选部分。
type Options struct {
	// StartConsumer 为 false 时即使是异步模式也不创建 Kafka 消费者（例如命令行只负责投递任务）。
	StartConsumer bool
}

// New 按配置组装依赖并恢复上一次已建立索引的文档。
func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	a := &App{Config: cfg}

	// 1. 数据库与 Redis
	db, err := database.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}
	a.closers = append(a.closers, func() error { return database.Close(db) })
	if err := db.AutoMigrate(&model.DocumentRecord{}); err != nil {
		a.Close()
		return nil, fmt.Errorf("迁移数据库失败: %w", err)
	}
	database.InitRedis(cfg.Database.Redis)

	// 2. 模型客户端
	embedder, err := embedding.NewClient(ctx, cfg.Embedding)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("初始化 embedding 客户端失败: %w", err)
	}
	a.addCloser(embedder)
	if cfg.Embedding.Cache && database.RDB != nil {
		embedder = embedding.NewCachedClient(embedder, database.RDB, cfg.Embedding.CacheTTL)
		log.Info("已启用 Redis 向量缓存")
	}
	llmClient, err := llm.NewClient(ctx, cfg.LLM)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("初始化 LLM 客户端失败: %w", err)
	}
	a.addCloser(llmClient)

	// 3. 文档解析与向量存储
	var extractor pipeline.Extractor
	switch cfg.Ingest.Extractor {
	case "tika":
		extractor = tika.NewClient(cfg.Tika)
	default:
		extractor = pdf.NewExtractor()
	}
	ingestor := pipeline.NewIngestor(extractor, cfg.Ingest)

	store, err := a.newStore(cfg, embedder)
	if err != nil {
		a.Close()
		return nil, err
	}

	// 4. 异步模式下的对象存储与任务队列
	var objects service.ObjectStore
	var queue service.TaskQueue
	if cfg.Ingest.Mode == "async" {
		minioClient, err := storage.NewClient(ctx, cfg.MinIO)
		if err != nil {
			a.Close()
			return nil, err
		}
		producer := kafka.NewProducer(cfg.Kafka)
		a.closers = append(a.closers, producer.Close)
		objects, queue = minioClient, producer
	}

	// 5. Service 与会话
	docRepo := repository.NewDocumentRepository(db)
	a.Session = session.New()
	a.Documents = service.NewDocumentService(ingestor, store, docRepo, objects, queue)
	conversationRepo := repository.NewMemoryConversationRepository()
	if database.RDB != nil {
		conversationRepo = repository.NewConversationRepository(database.RDB)
	}
	a.History = service.NewConversationService(conversationRepo)
	a.Chat = service.NewChatService(llmClient, cfg.LLM.Prompt, cfg.Retrieval, a.History)
	a.Search = service.NewSearchService(cfg.Retrieval)

	if objects != nil && opts.StartConsumer {
		processor := service.NewTaskProcessor(objects, a.Documents, a.Session)
		a.Consumer = kafka.NewConsumer(cfg.Kafka, processor, database.RDB)
	}

	if err := a.Documents.Restore(ctx, a.Session); err != nil {
		log.Warnf("恢复上一次的文档失败: %v", err)
	}
	a.closers = append(a.closers, func() error {
		if idx := a.Session.Index(); idx != nil {
			return idx.Close()
		}
		return nil
	})
	log.Infof("初始化完成, store: %s, extractor: %s, mode: %s", store.Backend(), cfg.Ingest.Extractor, cfg.Ingest.Mode)
	return a, nil
}

func (a *App) newStore(cfg config.Config, embedder embedding.Client) (vectorstore.Store, error) {
	switch cfg.Store.Backend {
	case "elasticsearch":
		esClient, err := es.NewClient(cfg.Elasticsearch)
		if err != nil {
			return nil, fmt.Errorf("初始化 Elasticsearch 客户端失败: %w", err)
		}
		return elastic.NewStore(esClient, embedder, cfg.Elasticsearch.IndexPrefix), nil
	case "qdrant":
		qc, err := qdrant.NewClient(cfg.Qdrant)
		if err != nil {
			return nil, fmt.Errorf("初始化 Qdrant 客户端失败: %w", err)
		}
		a.closers = append(a.closers, qc.Close)
		return qdrant.NewStore(qc, embedder, cfg.Qdrant.CollectionPrefix), nil
	default:
		return local.NewStore(cfg.Store.PersistDir, embedder), nil
	}
}

// addCloser 在 v 持有连接（实现 io.Closer）时登记释放函数。
func (a *App) addCloser(v any) {
	if c, ok := v.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}
}

// Close 按创建的逆序释放资源。
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warnf("释放资源失败: %v", err)
		}
	}
	a.closers = nil
	if database.RDB != nil {
		_ = database.RDB.Close()
		database.RDB = nil
	}
}
