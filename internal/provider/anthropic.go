package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
)

// AnthropicProvider implements Provider on top of the Anthropic SDK.
type AnthropicProvider struct {
	config       ProviderConfig
	defaultModel string
	client       anthropic.Client
	logger       *zap.Logger
}

// NewAnthropicProvider creates a new Anthropic provider. Retries are left to
// the Chain so a failing provider hands over quickly.
func NewAnthropicProvider(cfg ProviderConfig, logger *zap.Logger) *AnthropicProvider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	cfg = applyTypeDefaults(cfg)

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(strings.TrimRight(cfg.Endpoint, "/") + "/"),
		option.WithRequestTimeout(timeout),
		option.WithMaxRetries(0),
	}
	return &AnthropicProvider{
		config:       cfg,
		defaultModel: defaultModelFor(cfg),
		client:       anthropic.NewClient(opts...),
		logger:       logger,
	}
}

func (p *AnthropicProvider) ID() string           { return p.config.ID }
func (p *AnthropicProvider) Name() string         { return p.config.Name }
func (p *AnthropicProvider) Type() string         { return TypeAnthropic }
func (p *AnthropicProvider) DefaultModel() string { return p.defaultModel }

func (p *AnthropicProvider) ValidateModel(model string) error {
	return validateModel(p.config, model)
}

// Chat sends a messages request. System messages are lifted into the
// top-level system prompt.
func (p *AnthropicProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if len(req.Stop) > 0 {
		params.StopSequences = req.Stop
	}
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			params.System = append(params.System, anthropic.TextBlockParam{Text: m.Content})
		case "assistant":
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic messages: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if v, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(v.Text)
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("empty response from provider %s", p.config.ID)
	}

	in, out := int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens)
	return &ChatResponse{
		ID:           resp.ID,
		Model:        string(resp.Model),
		Provider:     p.config.ID,
		Content:      strings.TrimSpace(text.String()),
		FinishReason: string(resp.StopReason),
		Usage:        Usage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out},
	}, nil
}

// ListModels returns the static catalog; model discovery is not needed for
// the fixed prompt set this service sends.
func (p *AnthropicProvider) ListModels(_ context.Context) ([]Model, error) {
	return Catalog(TypeAnthropic, p.config.ID), nil
}

// HealthCheck issues a one-token request against the default model.
func (p *AnthropicProvider) HealthCheck(ctx context.Context) error {
	if p.config.APIKey == "" {
		return fmt.Errorf("provider %s: no API key configured", p.config.ID)
	}
	_, err := p.Chat(ctx, &ChatRequest{
		Messages:  []Message{User("ping")},
		MaxTokens: 1,
	})
	return err
}
