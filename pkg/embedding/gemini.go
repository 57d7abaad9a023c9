package embedding

import (
	"context"
	"errors"
	"fmt"

	"docqa-go/internal/config"
	"docqa-go/pkg/retry"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// geminiBatchLimit is the maximum number of requests accepted by batchEmbedContents.
const geminiBatchLimit = 100

// geminiEmbedder uses the Google Generative AI embedding models (e.g. text-embedding-004).
type geminiEmbedder struct {
	client *genai.Client
	model  *genai.EmbeddingModel
}

func newGeminiEmbedder(ctx context.Context, cfg config.EmbeddingConfig) (*geminiEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini embedding requires an API key (embedding.api_key or $" + cfg.APIKeyEnv + ")")
	}
	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(cfg.BaseURL))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &geminiEmbedder{client: client, model: client.EmbeddingModel(cfg.Model)}, nil
}

func (e *geminiEmbedder) name() string { return "gemini" }

func (e *geminiEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += geminiBatchLimit {
		end := start + geminiBatchLimit
		if end > len(texts) {
			end = len(texts)
		}
		batch := e.model.NewBatch()
		for _, t := range texts[start:end] {
			batch.AddContent(genai.Text(t))
		}
		rsp, err := e.model.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, classifyGeminiError(err)
		}
		for _, emb := range rsp.Embeddings {
			if emb == nil {
				out = append(out, nil)
				continue
			}
			out = append(out, emb.Values)
		}
	}
	return out, nil
}

// Close releases the underlying gRPC connection.
func (e *geminiEmbedder) Close() error {
	return e.client.Close()
}

// classifyGeminiError marks client-side failures (bad request, auth) as permanent so they are not retried.
func classifyGeminiError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return retry.ForStatus(apiErr.Code, err)
	}
	return err
}
