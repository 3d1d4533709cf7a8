package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// OpenAIProvider implements Provider for OpenAI-compatible chat APIs.
// Groq and Perplexity both speak this protocol.
type OpenAIProvider struct {
	config       ProviderConfig
	defaultModel string
	client       *http.Client
	logger       *zap.Logger
}

// NewOpenAIProvider creates a new OpenAI-compatible provider.
func NewOpenAIProvider(cfg ProviderConfig, logger *zap.Logger) *OpenAIProvider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	cfg = applyTypeDefaults(cfg)
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	return &OpenAIProvider{
		config:       cfg,
		defaultModel: defaultModelFor(cfg),
		client:       &http.Client{Timeout: timeout},
		logger:       logger,
	}
}

func (p *OpenAIProvider) ID() string           { return p.config.ID }
func (p *OpenAIProvider) Name() string         { return p.config.Name }
func (p *OpenAIProvider) Type() string         { return p.config.Type }
func (p *OpenAIProvider) DefaultModel() string { return p.defaultModel }

// ValidateModel reports whether the provider is expected to serve model.
func (p *OpenAIProvider) ValidateModel(model string) error {
	return validateModel(p.config, model)
}

// Chat sends a non-streaming chat completion request.
func (p *OpenAIProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	wire := *req
	if wire.Model == "" {
		wire.Model = p.defaultModel
	}

	body, err := json.Marshal(&wire)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.config.Endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(respBody))
	}

	var oaiResp openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&oaiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(oaiResp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from provider %s", p.config.ID)
	}

	choice := oaiResp.Choices[0]
	model := oaiResp.Model
	if model == "" {
		model = wire.Model
	}
	return &ChatResponse{
		ID:           oaiResp.ID,
		Model:        model,
		Provider:     p.config.ID,
		Content:      strings.TrimSpace(choice.Message.Content),
		FinishReason: choice.FinishReason,
		Usage:        oaiResp.Usage,
	}, nil
}

type openAIChatResponse struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []openAIChoice `json:"choices"`
	Usage   Usage          `json:"usage"`
}

type openAIChoice struct {
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// ListModels queries the /models endpoint. Perplexity has none, so the
// static catalog is returned for it and for any endpoint that 404s.
func (p *OpenAIProvider) ListModels(ctx context.Context) ([]Model, error) {
	if p.config.Type == TypePerplexity {
		return Catalog(p.config.Type, p.config.ID), nil
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		p.config.Endpoint+"/models", nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Catalog(p.config.Type, p.config.ID), nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list models: status %d", resp.StatusCode)
	}

	var result struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode models: %w", err)
	}

	known := make(map[string]Model)
	for _, m := range Catalog(p.config.Type, p.config.ID) {
		known[m.ID] = m
	}
	models := make([]Model, 0, len(result.Data))
	for _, d := range result.Data {
		if m, ok := known[d.ID]; ok {
			models = append(models, m)
			continue
		}
		models = append(models, Model{ID: d.ID, Name: d.ID, Provider: p.config.ID})
	}
	return models, nil
}

// HealthCheck verifies the provider is reachable.
func (p *OpenAIProvider) HealthCheck(ctx context.Context) error {
	if p.config.APIKey == "" {
		return fmt.Errorf("provider %s: no API key configured", p.config.ID)
	}
	_, err := p.ListModels(ctx)
	return err
}
