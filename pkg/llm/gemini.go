package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"docqa-go/internal/config"
	"docqa-go/pkg/retry"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// geminiProvider uses the Google Generative AI SDK. The system message becomes the
// model's system instruction; the remaining turns form the chat history.
type geminiProvider struct {
	client *genai.Client
	model  string
}

func newGeminiProvider(ctx context.Context, cfg config.LLMConfig) (*geminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini generation requires an API key (llm.api_key or $" + cfg.APIKeyEnv + ")")
	}
	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(cfg.BaseURL))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &geminiProvider{client: client, model: cfg.Model}, nil
}

func (p *geminiProvider) name() string { return "gemini" }

func (p *geminiProvider) generate(ctx context.Context, messages []Message, gen GenerationParams) (string, error) {
	sys, turns := splitSystem(messages)
	if len(turns) == 0 {
		return "", errors.New("no user message to send")
	}

	model := p.client.GenerativeModel(p.model)
	if sys != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(sys)}}
	}
	if gen.Temperature != nil {
		model.SetTemperature(float32(*gen.Temperature))
	}
	if gen.TopP != nil {
		model.SetTopP(float32(*gen.TopP))
	}
	if gen.MaxTokens != nil {
		model.SetMaxOutputTokens(int32(*gen.MaxTokens))
	}

	cs := model.StartChat()
	for _, m := range turns[:len(turns)-1] {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		cs.History = append(cs.History, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(m.Content)}})
	}

	rsp, err := cs.SendMessage(ctx, genai.Text(turns[len(turns)-1].Content))
	if err != nil {
		return "", classifyGeminiError(err)
	}
	if len(rsp.Candidates) == 0 || rsp.Candidates[0].Content == nil || len(rsp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("no response from gemini")
	}

	var b strings.Builder
	for _, part := range rsp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String(), nil
}

// Close releases the underlying connection.
func (p *geminiProvider) Close() error {
	return p.client.Close()
}

// classifyGeminiError marks client-side failures (bad request, auth) as permanent so they are not retried.
func classifyGeminiError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return retry.ForStatus(apiErr.Code, err)
	}
	return err
}
