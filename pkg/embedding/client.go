// Package embedding provides clients for hosted embedding models.
package embedding

import (
	"context"
	"fmt"

	"docqa-go/internal/config"
	"docqa-go/pkg/errs"
	"docqa-go/pkg/log"
	"docqa-go/pkg/retry"
)

// Client defines the interface for an embedding client.
// CreateEmbeddings returns exactly one vector per input, in input order.
type Client interface {
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// batchEmbedder is implemented by the provider-specific clients: one remote call per batch.
type batchEmbedder interface {
	embedBatch(ctx context.Context, texts []string) ([][]float32, error)
	name() string
}

// NewClient creates a new embedding client based on the provider in the config.
func NewClient(ctx context.Context, cfg config.EmbeddingConfig) (Client, error) {
	var be batchEmbedder
	var err error
	switch cfg.Provider {
	case "", "gemini":
		be, err = newGeminiEmbedder(ctx, cfg)
	case "openai":
		be = newOpenAIEmbedder(cfg)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	log.Infof("[EmbeddingClient] 初始化完成, provider: %s, model: %s", be.name(), cfg.Model)
	return newBatchingClient(be, cfg), nil
}

// batchingClient splits requests into provider-sized batches and applies the retry policy.
type batchingClient struct {
	inner     batchEmbedder
	model     string
	batchSize int
	policy    retry.Policy
}

func newBatchingClient(inner batchEmbedder, cfg config.EmbeddingConfig) *batchingClient {
	size := cfg.BatchSize
	if size <= 0 {
		size = 32
	}
	return &batchingClient{
		inner:     inner,
		model:     cfg.Model,
		batchSize: size,
		policy:    retry.Policy{Timeout: cfg.Timeout, MaxRetries: cfg.MaxRetries},
	}
}

func (c *batchingClient) Model() string { return c.model }

// CreateEmbedding returns the vector for a single text.
func (c *batchingClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.CreateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// CreateEmbeddings embeds texts batch by batch.
func (c *batchingClient) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	const op = "embedding.CreateEmbeddings"
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]
		log.Infof("[EmbeddingClient] 开始调用 Embedding API, provider: %s, model: %s, batch: %d-%d/%d", c.inner.name(), c.model, start+1, end, len(texts))

		var vecs [][]float32
		err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
			var callErr error
			vecs, callErr = c.inner.embedBatch(ctx, batch)
			return callErr
		})
		if err != nil {
			log.Errorf("[EmbeddingClient] 调用 Embedding API 失败, error: %v", err)
			return nil, errs.E(errs.KindEmbeddingService, op, err)
		}
		if len(vecs) != len(batch) {
			return nil, errs.Ef(errs.KindEmbeddingService, op, "expected %d embeddings, got %d", len(batch), len(vecs))
		}
		for i, v := range vecs {
			if len(v) == 0 {
				return nil, errs.Ef(errs.KindEmbeddingService, op, "received empty embedding for input %d", start+i)
			}
		}
		out = append(out, vecs...)
	}
	log.Infof("[EmbeddingClient] 成功获取 %d 个向量, 维度: %d", len(out), len(out[0]))
	return out, nil
}

// Close releases provider resources when the provider holds a connection.
func (c *batchingClient) Close() error {
	if closer, ok := c.inner.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
