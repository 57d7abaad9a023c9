package llm

import (
	"context"
	"errors"
	"strings"

	"docqa-go/internal/config"
	"docqa-go/pkg/retry"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicDefaultMaxTokens = 4096

type anthropicProvider struct {
	client *anthropic.Client
	model  string
}

func newAnthropicProvider(cfg config.LLMConfig) *anthropicProvider {
	opts := []anthropicopt.RequestOption{anthropicopt.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, anthropicopt.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)
	return &anthropicProvider{client: &client, model: cfg.Model}
}

func (p *anthropicProvider) name() string { return "anthropic" }

func (p *anthropicProvider) generate(ctx context.Context, messages []Message, gen GenerationParams) (string, error) {
	sys, turns := splitSystem(messages)

	maxTokens := int64(anthropicDefaultMaxTokens)
	if gen.MaxTokens != nil {
		maxTokens = int64(*gen.MaxTokens)
	}
	req := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: maxTokens,
		Messages:  make([]anthropic.MessageParam, 0, len(turns)),
	}
	if sys != "" {
		req.System = []anthropic.TextBlockParam{{Text: sys}}
	}
	if gen.Temperature != nil {
		req.Temperature = anthropic.Float(*gen.Temperature)
	}
	if gen.TopP != nil {
		req.TopP = anthropic.Float(*gen.TopP)
	}
	for _, m := range turns {
		if m.Role == RoleAssistant {
			req.Messages = append(req.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
			continue
		}
		req.Messages = append(req.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
	}

	rsp, err := p.client.Messages.New(ctx, req)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", retry.ForStatus(apiErr.StatusCode, err)
		}
		return "", err
	}

	var b strings.Builder
	for _, content := range rsp.Content {
		if text, ok := content.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(text.Text)
		}
	}
	if b.Len() == 0 {
		return "", errors.New("no response from anthropic")
	}
	return b.String(), nil
}
