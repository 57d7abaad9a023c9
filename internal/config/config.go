// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// DefaultSystemPrompt 是问答链的默认系统提示，{context} 会被替换为检索到的文档片段。
const DefaultSystemPrompt = `You are a knowledgeable expert. Your task is to answer questions based on the provided documents.
If the answer is not clearly stated in the documents, use your knowledge in combination with the documents.
Clearly indicate which parts come from the documents and which parts are from your knowledge (if any).
Your answers should be clear and accurate.

{context}`

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Tika          TikaConfig          `mapstructure:"tika"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Qdrant        QdrantConfig        `mapstructure:"qdrant"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Ingest        IngestConfig        `mapstructure:"ingest"`
	Retrieval     RetrievalConfig     `mapstructure:"retrieval"`
	Store         StoreConfig         `mapstructure:"store"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	Driver string      `mapstructure:"driver"` // sqlite | mysql
	DSN    string      `mapstructure:"dsn"`
	Redis  RedisConfig `mapstructure:"redis"`
}

// RedisConfig 存储 Redis 的配置。Addr 为空表示不启用。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers     string `mapstructure:"brokers"`
	Topic       string `mapstructure:"topic"`
	GroupID     string `mapstructure:"group_id"`
	MaxAttempts int    `mapstructure:"max_attempts"`
}

// TikaConfig 存储 Tika 服务器相关的配置。
type TikaConfig struct {
	ServerURL string        `mapstructure:"server_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses   string `mapstructure:"addresses"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	IndexPrefix string `mapstructure:"index_prefix"`
}

// QdrantConfig 存储 Qdrant 相关的配置。
type QdrantConfig struct {
	Host             string `mapstructure:"host"`
	Port             int    `mapstructure:"port"`
	APIKey           string `mapstructure:"api_key"`
	UseTLS           bool   `mapstructure:"use_tls"`
	CollectionPrefix string `mapstructure:"collection_prefix"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	Provider   string        `mapstructure:"provider"` // gemini | openai
	APIKey     string        `mapstructure:"api_key"`
	APIKeyEnv  string        `mapstructure:"api_key_env"`
	BaseURL    string        `mapstructure:"base_url"`
	Model      string        `mapstructure:"model"`
	Dimensions int           `mapstructure:"dimensions"`
	BatchSize  int           `mapstructure:"batch_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
	Cache      bool          `mapstructure:"cache"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl"`
}

// LLMConfig 存储大语言模型相关的配置。
type LLMConfig struct {
	Provider   string              `mapstructure:"provider"` // gemini | openai | anthropic
	APIKey     string              `mapstructure:"api_key"`
	APIKeyEnv  string              `mapstructure:"api_key_env"`
	BaseURL    string              `mapstructure:"base_url"`
	Model      string              `mapstructure:"model"`
	Timeout    time.Duration       `mapstructure:"timeout"`
	MaxRetries int                 `mapstructure:"max_retries"`
	Generation LLMGenerationConfig `mapstructure:"generation"`
	Prompt     LLMPromptConfig     `mapstructure:"prompt"`
}

// LLMGenerationConfig 配置生成相关参数。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// LLMPromptConfig 配置系统提示模板。System 中必须包含 {context} 占位符。
type LLMPromptConfig struct {
	System       string `mapstructure:"system"`
	Separator    string `mapstructure:"separator"`
	NoResultText string `mapstructure:"no_result_text"`
}

// IngestConfig 配置文档解析与切分。
type IngestConfig struct {
	ChunkSize      int    `mapstructure:"chunk_size"`
	ChunkOverlap   int    `mapstructure:"chunk_overlap"`
	Extractor      string `mapstructure:"extractor"` // native | tika
	Mode           string `mapstructure:"mode"`      // sync | async
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes"`
}

// RetrievalConfig 配置检索参数。
type RetrievalConfig struct {
	TopK     int     `mapstructure:"top_k"`
	MinScore float64 `mapstructure:"min_score"`
}

// StoreConfig 配置向量索引后端。
type StoreConfig struct {
	Backend    string `mapstructure:"backend"` // local | elasticsearch | qdrant
	PersistDir string `mapstructure:"persist_dir"`
}

// setDefaults 为所有配置项设置默认值，配置文件可以只覆盖其中一部分。
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8081")
	v.SetDefault("server.mode", "debug")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "data/docqa.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("kafka.topic", "docqa-ingest")
	v.SetDefault("kafka.group_id", "docqa-go-consumer")
	v.SetDefault("kafka.max_attempts", 3)

	v.SetDefault("tika.timeout", 60*time.Second)

	v.SetDefault("elasticsearch.index_prefix", "docqa")
	v.SetDefault("qdrant.host", "localhost")
	v.SetDefault("qdrant.port", 6334)
	v.SetDefault("qdrant.collection_prefix", "docqa")

	v.SetDefault("minio.bucket_name", "docqa-staging")

	v.SetDefault("embedding.provider", "gemini")
	v.SetDefault("embedding.api_key_env", "GOOGLE_API_KEY")
	v.SetDefault("embedding.model", "models/text-embedding-004")
	v.SetDefault("embedding.batch_size", 32)
	v.SetDefault("embedding.timeout", 30*time.Second)
	v.SetDefault("embedding.max_retries", 0)
	v.SetDefault("embedding.cache_ttl", 24*time.Hour)

	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.api_key_env", "GOOGLE_API_KEY")
	v.SetDefault("llm.model", "gemini-1.5-pro")
	v.SetDefault("llm.timeout", 120*time.Second)
	v.SetDefault("llm.max_retries", 0)
	v.SetDefault("llm.generation.temperature", 0.3)
	v.SetDefault("llm.generation.max_tokens", 5000)
	v.SetDefault("llm.prompt.system", DefaultSystemPrompt)
	v.SetDefault("llm.prompt.separator", "\n\n")

	v.SetDefault("ingest.chunk_size", 1000)
	v.SetDefault("ingest.chunk_overlap", 200)
	v.SetDefault("ingest.extractor", "native")
	v.SetDefault("ingest.mode", "sync")
	v.SetDefault("ingest.max_upload_bytes", int64(50<<20))

	v.SetDefault("retrieval.top_k", 10)
	v.SetDefault("retrieval.min_score", 0.0)

	v.SetDefault("store.backend", "local")
	v.SetDefault("store.persist_dir", "vector_store")
}

// Load 读取配置文件并返回配置。configPath 为空或文件不存在时只使用默认值与环境变量。
// 环境变量以 DOCQA_ 为前缀，例如 DOCQA_LLM_MODEL 覆盖 llm.model。
func Load(configPath string) (Config, error) {
	// .env 中的凭证（GOOGLE_API_KEY 等）在读取配置前注入进程环境
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("DOCQA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return Config{}, fmt.Errorf("读取配置文件失败: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	cfg.resolveCredentials()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = cfg
}

// resolveCredentials 在未显式配置 api_key 时从环境变量读取凭证。
func (c *Config) resolveCredentials() {
	if c.Embedding.APIKey == "" && c.Embedding.APIKeyEnv != "" {
		c.Embedding.APIKey = os.Getenv(c.Embedding.APIKeyEnv)
	}
	if c.LLM.APIKey == "" && c.LLM.APIKeyEnv != "" {
		c.LLM.APIKey = os.Getenv(c.LLM.APIKeyEnv)
	}
}

// Validate 检查互相依赖的配置项。
func (c *Config) Validate() error {
	if c.Ingest.ChunkSize <= 0 {
		return fmt.Errorf("ingest.chunk_size 必须为正数, 当前为 %d", c.Ingest.ChunkSize)
	}
	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("ingest.chunk_overlap 必须在 [0, chunk_size) 内, 当前为 %d", c.Ingest.ChunkOverlap)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k 必须为正数, 当前为 %d", c.Retrieval.TopK)
	}
	if !strings.Contains(c.LLM.Prompt.System, "{context}") {
		return fmt.Errorf("llm.prompt.system 必须包含 {context} 占位符")
	}
	switch c.Store.Backend {
	case "local", "elasticsearch", "qdrant":
	default:
		return fmt.Errorf("未知的 store.backend: %s", c.Store.Backend)
	}
	switch c.Ingest.Mode {
	case "sync", "async":
	default:
		return fmt.Errorf("未知的 ingest.mode: %s", c.Ingest.Mode)
	}
	if c.Ingest.Mode == "async" && (c.Kafka.Brokers == "" || c.MinIO.Endpoint == "") {
		return fmt.Errorf("ingest.mode=async 需要配置 kafka.brokers 与 minio.endpoint")
	}
	return nil
}
