package ai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go/v2"
	openaiopt "github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
)

// Model defaults. FIXBOT_MODEL overrides the configured model at runtime.
const (
	DefaultAnthropicModel = "claude-sonnet-4-5-20250929"
	DefaultOpenAIModel    = "gpt-4.1-mini"
	defaultMaxTokens      = 4096
)

// ErrUnavailable is returned by providers that cannot answer at all.
var ErrUnavailable = errors.New("model provider unavailable")

// Request is one chat-style completion call.
type Request struct {
	System    string
	Prompt    string
	MaxTokens int
}

// Provider is a chat completion backend.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

// ProviderConfig selects and configures a provider.
type ProviderConfig struct {
	Kind    string // "anthropic", "openai" or "none"
	APIKey  string
	Model   string
	BaseURL string // optional endpoint override
}

// NewProvider builds the provider named by cfg.Kind. An empty API key falls
// back to the provider's conventional environment variable; if that is empty
// too the result is a NoopProvider so the engine runs on rules alone.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	model := cfg.Model
	if env := os.Getenv("FIXBOT_MODEL"); env != "" {
		model = env
	}
	switch strings.ToLower(cfg.Kind) {
	case "", "anthropic":
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv("ANTHROPIC_API_KEY")
		}
		if key == "" {
			return NoopProvider{Reason: "ANTHROPIC_API_KEY not set"}, nil
		}
		return NewAnthropicProvider(key, model, cfg.BaseURL), nil
	case "openai":
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv("OPENAI_API_KEY")
		}
		if key == "" {
			return NoopProvider{Reason: "OPENAI_API_KEY not set"}, nil
		}
		return NewOpenAIProvider(key, model, cfg.BaseURL), nil
	case "none":
		return NoopProvider{Reason: "model disabled"}, nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Kind)
	}
}

// AnthropicProvider calls the Anthropic Messages API.
type AnthropicProvider struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicProvider creates a provider. SDK-level retries are disabled;
// Client owns retry policy.
func NewAnthropicProvider(apiKey, model, baseURL string) *AnthropicProvider {
	if model == "" {
		model = DefaultAnthropicModel
	}
	opts := []anthropicopt.RequestOption{
		anthropicopt.WithAPIKey(apiKey),
		anthropicopt.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, anthropicopt.WithBaseURL(baseURL))
	}
	client := anthropic.NewClient(opts...)
	return &AnthropicProvider{client: &client, model: model}
}

// Name implements Provider.
func (p *AnthropicProvider) Name() string { return "anthropic:" + p.model }

// Complete implements Provider.
func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

// OpenAIProvider calls the OpenAI Chat Completions API.
type OpenAIProvider struct {
	client openai.Client
	model  string
}

// NewOpenAIProvider creates a provider.
func NewOpenAIProvider(apiKey, model, baseURL string) *OpenAIProvider {
	if model == "" {
		model = DefaultOpenAIModel
	}
	opts := []openaiopt.RequestOption{
		openaiopt.WithAPIKey(apiKey),
		openaiopt.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, openaiopt.WithBaseURL(baseURL))
	}
	return &OpenAIProvider{client: openai.NewClient(opts...), model: model}
}

// Name implements Provider.
func (p *OpenAIProvider) Name() string { return "openai:" + p.model }

// Complete implements Provider.
func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:               shared.ChatModel(p.model),
		Messages:            messages,
		MaxCompletionTokens: openai.Int(int64(maxTokens)),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// NoopProvider never answers. It keeps the engine on its rule table when no
// model is configured.
type NoopProvider struct {
	Reason string
}

// Name implements Provider.
func (p NoopProvider) Name() string { return "none" }

// Complete implements Provider.
func (p NoopProvider) Complete(context.Context, Request) (string, error) {
	if p.Reason != "" {
		return "", fmt.Errorf("%w: %s", ErrUnavailable, p.Reason)
	}
	return "", ErrUnavailable
}
