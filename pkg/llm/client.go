// Package llm provides clients for hosted large language models.
package llm

import (
	"context"
	"fmt"
	"strings"

	"docqa-go/internal/config"
	"docqa-go/pkg/errs"
	"docqa-go/pkg/log"
	"docqa-go/pkg/retry"
)

// 消息角色
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message 表示一条角色消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationParams 控制生成行为，nil 字段使用配置中的默认值。
type GenerationParams struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Client defines the interface for an LLM client.
type Client interface {
	// Generate 以 role-based 消息调用模型并返回完整的回答文本。
	Generate(ctx context.Context, messages []Message, gen *GenerationParams) (string, error)
	Model() string
}

// provider 是各厂商 SDK 的最小适配层，gen 已经与默认值合并。
type provider interface {
	generate(ctx context.Context, messages []Message, gen GenerationParams) (string, error)
	name() string
}

// NewClient creates a new LLM client based on the provider in the config.
func NewClient(ctx context.Context, cfg config.LLMConfig) (Client, error) {
	var p provider
	var err error
	switch cfg.Provider {
	case "", "gemini":
		p, err = newGeminiProvider(ctx, cfg)
	case "openai", "deepseek":
		p = newOpenAIProvider(cfg)
	case "anthropic":
		p = newAnthropicProvider(cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	log.Infof("[LLMClient] 初始化完成, provider: %s, model: %s", p.name(), cfg.Model)
	return &client{
		provider: p,
		model:    cfg.Model,
		defaults: cfg.Generation,
		policy:   retry.Policy{Timeout: cfg.Timeout, MaxRetries: cfg.MaxRetries},
	}, nil
}

type client struct {
	provider provider
	model    string
	defaults config.LLMGenerationConfig
	policy   retry.Policy
}

func (c *client) Model() string { return c.model }

// Close 在 provider 持有连接时释放它。
func (c *client) Close() error {
	if closer, ok := c.provider.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// Generate 合并生成参数（传参优先生效），并把所有远程失败归类为 GenerationServiceError。
func (c *client) Generate(ctx context.Context, messages []Message, gen *GenerationParams) (string, error) {
	const op = "llm.Generate"
	params := c.mergeParams(gen)
	log.Infof("[LLMClient] 开始调用模型, provider: %s, model: %s, messages: %d", c.provider.name(), c.model, len(messages))

	var answer string
	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		var callErr error
		answer, callErr = c.provider.generate(ctx, messages, params)
		return callErr
	})
	if err != nil {
		log.Errorf("[LLMClient] 调用模型失败: %v", err)
		return "", errs.E(errs.KindGenerationService, op, err)
	}
	if strings.TrimSpace(answer) == "" {
		return "", errs.Ef(errs.KindGenerationService, op, "model %s returned an empty answer", c.model)
	}
	log.Infof("[LLMClient] 模型调用成功, 回答长度: %d", len(answer))
	return answer, nil
}

func (c *client) mergeParams(gen *GenerationParams) GenerationParams {
	var out GenerationParams
	if gen != nil {
		out = *gen
	}
	if out.Temperature == nil {
		t := c.defaults.Temperature
		out.Temperature = &t
	}
	if out.TopP == nil && c.defaults.TopP != 0 {
		p := c.defaults.TopP
		out.TopP = &p
	}
	if out.MaxTokens == nil && c.defaults.MaxTokens != 0 {
		m := c.defaults.MaxTokens
		out.MaxTokens = &m
	}
	return out
}

// splitSystem 把 system 消息与对话消息分开，供只接受单独 system 字段的 SDK 使用。
func splitSystem(messages []Message) (string, []Message) {
	var sys []string
	rest := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			sys = append(sys, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(sys, "\n\n"), rest
}
