package generation

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/agri-assist/internal/intent"
	"github.com/nidhogg/agri-assist/internal/metrics"
	"github.com/nidhogg/agri-assist/internal/provider"
	"github.com/nidhogg/agri-assist/internal/retrieval"
)

// Result statuses.
const (
	StatusSuccess  = "success"
	StatusFallback = "fallback"
)

const (
	fallbackModel    = "fallback"
	fallbackProvider = "local"
)

// ErrEmptyResponse is returned by Direct when the backend answers with no text.
var ErrEmptyResponse = errors.New("empty generation response")

// Backend is the provider chain as seen by the client.
type Backend interface {
	Chat(ctx context.Context, req *provider.ChatRequest, prefer string) (*provider.ChatResponse, error)
}

// Options holds default sampling settings.
type Options struct {
	Temperature float64
	MaxTokens   int
}

// Request carries per-call overrides. Zero values use the defaults.
type Request struct {
	Provider string `json:"llm_provider,omitempty"`
	Model    string `json:"llm_model,omitempty"`
	// Kind selects subtask-specific instructions.
	Kind string `json:"kind,omitempty"`
}

// Result is a generated (or locally degraded) answer.
type Result struct {
	Status      string          `json:"status"`
	Response    string          `json:"response"`
	ContextUsed int             `json:"context_used"`
	Intent      intent.Category `json:"intent,omitempty"`
	Model       string          `json:"model"`
	Provider    string          `json:"provider"`
	Usage       provider.Usage  `json:"usage"`
	Error       string          `json:"error,omitempty"`
}

// DirectRequest is an untemplated prompt pair.
type DirectRequest struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
	Provider    string
	Model       string
}

// Client turns a query and its context into an answer through the
// generation backend. Backend failures degrade to a local answer.
type Client struct {
	backend Backend
	opts    Options
	logger  *zap.Logger
}

// NewClient creates a client. backend may be nil, in which case every
// answer is a local fallback.
func NewClient(backend Backend, opts Options, logger *zap.Logger) *Client {
	if opts.Temperature <= 0 {
		opts.Temperature = 0.3
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 500
	}
	return &Client{backend: backend, opts: opts, logger: logger}
}

// Generate answers query with the given classification and context. It
// never fails: backend errors produce a fallback Result.
func (c *Client) Generate(ctx context.Context, query string, cls intent.Classification, docs []retrieval.Document, req Request) Result {
	start := time.Now()
	resp, err := c.chat(ctx, &provider.ChatRequest{
		Model: req.Model,
		Messages: []provider.Message{
			provider.System(systemPrompt(cls.Category, req.Kind)),
			provider.User(userPrompt(query, cls, docs)),
		},
		Temperature: c.opts.Temperature,
		MaxTokens:   c.opts.MaxTokens,
	}, req.Provider)
	if err != nil {
		c.logger.Warn("generation unavailable, using fallback",
			zap.String("intent", string(cls.Category)), zap.Error(err))
		metrics.ObserveGeneration(fallbackProvider, StatusFallback, start)
		return Result{
			Status:      StatusFallback,
			Response:    fallbackText(docs),
			ContextUsed: len(docs),
			Intent:      cls.Category,
			Model:       fallbackModel,
			Provider:    fallbackProvider,
			Error:       err.Error(),
		}
	}
	metrics.ObserveGeneration(resp.Provider, StatusSuccess, start)
	return Result{
		Status:      StatusSuccess,
		Response:    resp.Content,
		ContextUsed: len(docs),
		Intent:      cls.Category,
		Model:       resp.Model,
		Provider:    resp.Provider,
		Usage:       resp.Usage,
	}
}

// Direct sends an arbitrary prompt pair. Unlike Generate it returns the
// backend error so callers can retry.
func (c *Client) Direct(ctx context.Context, req DirectRequest) (Result, error) {
	if req.MaxTokens <= 0 {
		req.MaxTokens = c.opts.MaxTokens
	}
	if req.Temperature <= 0 {
		req.Temperature = c.opts.Temperature
	}
	start := time.Now()
	resp, err := c.chat(ctx, &provider.ChatRequest{
		Model:       req.Model,
		Messages:    []provider.Message{provider.System(req.System), provider.User(req.User)},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}, req.Provider)
	if err != nil {
		metrics.ObserveGeneration(fallbackProvider, "error", start)
		return Result{}, err
	}
	metrics.ObserveGeneration(resp.Provider, StatusSuccess, start)
	return Result{
		Status:   StatusSuccess,
		Response: resp.Content,
		Model:    resp.Model,
		Provider: resp.Provider,
		Usage:    resp.Usage,
	}, nil
}

// Complete satisfies intent.Completer.
func (c *Client) Complete(ctx context.Context, system, user string, temperature float64, maxTokens int) (*provider.ChatResponse, error) {
	return c.chat(ctx, &provider.ChatRequest{
		Messages:    []provider.Message{provider.System(system), provider.User(user)},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}, "")
}

func (c *Client) chat(ctx context.Context, req *provider.ChatRequest, prefer string) (*provider.ChatResponse, error) {
	if c.backend == nil {
		return nil, provider.ErrNoProviders
	}
	resp, err := c.backend.Chat(ctx, req, prefer)
	if err != nil {
		return nil, err
	}
	if resp.Content == "" {
		return nil, ErrEmptyResponse
	}
	return resp, nil
}
