package llm

import (
	"context"
	"errors"

	"docqa-go/internal/config"
	"docqa-go/pkg/retry"

	"github.com/sashabaranov/go-openai"
)

// openAIProvider calls any OpenAI-compatible chat completions API (OpenAI, DeepSeek, ...).
type openAIProvider struct {
	client *openai.Client
	model  string
}

func newOpenAIProvider(cfg config.LLMConfig) *openAIProvider {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return &openAIProvider{client: openai.NewClientWithConfig(oc), model: cfg.Model}
}

func (p *openAIProvider) name() string { return "openai" }

func (p *openAIProvider) generate(ctx context.Context, messages []Message, gen GenerationParams) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	if gen.Temperature != nil {
		req.Temperature = float32(*gen.Temperature)
	}
	if gen.TopP != nil {
		req.TopP = float32(*gen.TopP)
	}
	if gen.MaxTokens != nil {
		req.MaxTokens = *gen.MaxTokens
	}

	rsp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	if len(rsp.Choices) == 0 {
		return "", errors.New("no choices in chat completion response")
	}
	return rsp.Choices[0].Message.Content, nil
}

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
