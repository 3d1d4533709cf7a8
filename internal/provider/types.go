package provider

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNoProviders is returned by a Chain with nothing registered.
	ErrNoProviders = errors.New("no generation providers configured")
	// ErrUnknownModel is returned when a model name fails validation.
	ErrUnknownModel = errors.New("unknown model")
)

// Provider defines the interface for text-generation backends.
type Provider interface {
	ID() string
	Name() string
	Type() string
	DefaultModel() string
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	ListModels(ctx context.Context) ([]Model, error)
	HealthCheck(ctx context.Context) error
	ValidateModel(model string) error
}

// ChatRequest represents a request to a generation provider.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	TopP        float64   `json:"top_p,omitempty"`
	Stop        []string  `json:"stop,omitempty"`
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse represents a response from a generation provider.
type ChatResponse struct {
	ID           string `json:"id"`
	Model        string `json:"model"`
	Provider     string `json:"provider"`
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason"`
	Usage        Usage  `json:"usage"`
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Model describes an available model.
type Model struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Provider       string `json:"provider"`
	Description    string `json:"description,omitempty"`
	MaxTokens      int    `json:"max_tokens"`
	RecommendedFor string `json:"recommended_for,omitempty"`
}

// ProviderConfig holds configuration for a provider instance.
type ProviderConfig struct {
	ID       string        `json:"id"`
	Type     string        `json:"type"`
	Name     string        `json:"name"`
	Endpoint string        `json:"endpoint"`
	APIKey   string        `json:"api_key"`
	Models   []string      `json:"models,omitempty"`
	Timeout  time.Duration `json:"timeout,omitempty"`
}

// System and User build the two-message prompt used throughout the service.
func System(content string) Message { return Message{Role: "system", Content: content} }
func User(content string) Message   { return Message{Role: "user", Content: content} }
