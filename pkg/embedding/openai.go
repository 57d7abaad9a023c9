package embedding

import (
	"context"
	"errors"

	"docqa-go/internal/config"
	"docqa-go/pkg/retry"

	"github.com/sashabaranov/go-openai"
)

// openAIEmbedder talks to any OpenAI-compatible /embeddings endpoint.
type openAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
}

func newOpenAIEmbedder(cfg config.EmbeddingConfig) *openAIEmbedder {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return &openAIEmbedder{
		client:     openai.NewClientWithConfig(oc),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}
}

func (e *openAIEmbedder) name() string { return "openai" }

func (e *openAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	rsp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(e.model),
		Dimensions: e.dimensions,
	})
	if err != nil {
		return nil, classifyOpenAIError(err)
	}

	out := make([][]float32, len(texts))
	for i, d := range rsp.Data {
		idx := d.Index
		if idx < 0 || idx >= len(out) {
			idx = i
		}
		out[idx] = d.Embedding
	}
	return out, nil
}

// classifyOpenAIError marks client-side failures (bad request, auth) as permanent so they are not retried.
func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		return retry.ForStatus(apiErr.HTTPStatusCode, err)
	case errors.As(err, &reqErr):
		return retry.ForStatus(reqErr.HTTPStatusCode, err)
	}
	return err
}
