package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// Provider generates vector embeddings from text.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Config holds embedding provider configuration.
type Config struct {
	Provider  string `json:"provider"` // "api" or "ollama"
	Endpoint  string `json:"endpoint"`
	Model     string `json:"model"`
	APIKey    string `json:"api_key"`
	Dimension int    `json:"dimension"`
}

// New builds a provider from cfg.Provider.
func New(cfg Config) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "api", "openai":
		return NewAPIProvider(cfg), nil
	case "ollama", "local":
		return NewOllamaProvider(cfg), nil
	default:
		return nil, fmt.Errorf("embedding: unsupported provider %q", cfg.Provider)
	}
}

// httpEmbedder holds what both providers share: the endpoint, the client and
// the dimension learned from the first response.
type httpEmbedder struct {
	endpoint  string
	model     string
	apiKey    string
	configDim int
	seenDim   atomic.Int64
	client    *http.Client
}

func (e *httpEmbedder) init(cfg Config) {
	e.endpoint = strings.TrimRight(cfg.Endpoint, "/")
	e.model = cfg.Model
	e.apiKey = cfg.APIKey
	e.configDim = cfg.Dimension
	e.client = &http.Client{Timeout: 30 * time.Second}
}

func (e *httpEmbedder) post(ctx context.Context, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("embedding: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("embedding: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("embedding: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("embedding: API returned status %d: %s", resp.StatusCode, string(respBody))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("embedding: decode response: %w", err)
	}
	return nil
}

func (e *httpEmbedder) observe(vectors [][]float32) {
	if len(vectors) > 0 && len(vectors[0]) > 0 {
		e.seenDim.CompareAndSwap(0, int64(len(vectors[0])))
	}
}

// Dimension returns the dimension seen in the first response, or the
// configured one before any call succeeded.
func (e *httpEmbedder) Dimension() int {
	if d := e.seenDim.Load(); d > 0 {
		return int(d)
	}
	return e.configDim
}
