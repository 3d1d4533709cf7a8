package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newOpenAIServer(t *testing.T, status int, content string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization = %q", got)
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			w.Write([]byte(`{"error":"unavailable"}`))
			return
		}
		var req ChatRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":    "chatcmpl-1",
			"model": req.Model,
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": content}, "finish_reason": "stop"},
			},
			"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestOpenAIProviderChat(t *testing.T) {
	srv, _ := newOpenAIServer(t, http.StatusOK, " Tomato prices are steady. ")
	p := NewOpenAIProvider(ProviderConfig{ID: "groq", Type: TypeGroq, Endpoint: srv.URL, APIKey: "test-key"}, zap.NewNop())

	resp, err := p.Chat(context.Background(), &ChatRequest{Messages: []Message{User("price?")}})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "Tomato prices are steady." {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.Model != "llama-3.1-8b-instant" {
		t.Errorf("model = %q, want groq default", resp.Model)
	}
	if resp.Provider != "groq" {
		t.Errorf("provider = %q", resp.Provider)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("usage = %d, want 15", resp.Usage.TotalTokens)
	}
}

func TestOpenAIProviderAPIError(t *testing.T) {
	srv, _ := newOpenAIServer(t, http.StatusServiceUnavailable, "")
	p := NewOpenAIProvider(ProviderConfig{ID: "groq", Type: TypeGroq, Endpoint: srv.URL, APIKey: "test-key"}, zap.NewNop())

	_, err := p.Chat(context.Background(), &ChatRequest{Messages: []Message{User("x")}})
	if err == nil || !strings.Contains(err.Error(), "API error 503") {
		t.Fatalf("err = %v, want API error 503", err)
	}
}

func TestValidateModel(t *testing.T) {
	p := NewOpenAIProvider(ProviderConfig{ID: "pplx", Type: TypePerplexity}, zap.NewNop())
	if err := p.ValidateModel("sonar-pro"); err != nil {
		t.Errorf("sonar-pro rejected: %v", err)
	}
	if err := p.ValidateModel("llama-3.1-8b-instant"); !errors.Is(err, ErrUnknownModel) {
		t.Errorf("err = %v, want ErrUnknownModel", err)
	}

	limited := NewOpenAIProvider(ProviderConfig{ID: "g", Type: TypeGroq, Models: []string{"gemma2-9b-it"}}, zap.NewNop())
	if err := limited.ValidateModel("llama-3.1-8b-instant"); !errors.Is(err, ErrUnknownModel) {
		t.Errorf("allow-list not enforced: %v", err)
	}
	if limited.DefaultModel() != "gemma2-9b-it" {
		t.Errorf("default model = %q", limited.DefaultModel())
	}
}

func TestPerplexityListModelsUsesCatalog(t *testing.T) {
	p := NewOpenAIProvider(ProviderConfig{ID: "pplx", Type: TypePerplexity}, zap.NewNop())
	models, err := p.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(models) == 0 || models[0].Provider != "pplx" {
		t.Errorf("models = %+v", models)
	}
}

func TestChainFallsBack(t *testing.T) {
	bad, badCalls := newOpenAIServer(t, http.StatusInternalServerError, "")
	good, _ := newOpenAIServer(t, http.StatusOK, "from perplexity")

	chain := NewChain(ChainOptions{Budget: 5 * time.Second}, zap.NewNop())
	chain.Register(NewOpenAIProvider(ProviderConfig{ID: "groq", Type: TypeGroq, Endpoint: bad.URL, APIKey: "test-key"}, zap.NewNop()), 0)
	chain.Register(NewOpenAIProvider(ProviderConfig{ID: "pplx", Type: TypePerplexity, Endpoint: good.URL, APIKey: "test-key"}, zap.NewNop()), 0)

	resp, err := chain.Chat(context.Background(), &ChatRequest{Model: "gemma2-9b-it", Messages: []Message{User("x")}}, "")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Provider != "pplx" || resp.Content != "from perplexity" {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Model != "sonar-pro" {
		t.Errorf("fallback model = %q, want provider default", resp.Model)
	}
	if badCalls.Load() != 1 {
		t.Errorf("primary calls = %d, want 1", badCalls.Load())
	}
}

func TestChainPreferMovesProviderFirst(t *testing.T) {
	groq, groqCalls := newOpenAIServer(t, http.StatusOK, "groq")
	pplx, _ := newOpenAIServer(t, http.StatusOK, "pplx")

	chain := NewChain(ChainOptions{}, zap.NewNop())
	chain.Register(NewOpenAIProvider(ProviderConfig{ID: "groq", Type: TypeGroq, Endpoint: groq.URL, APIKey: "test-key"}, zap.NewNop()), 0)
	chain.Register(NewOpenAIProvider(ProviderConfig{ID: "pplx", Type: TypePerplexity, Endpoint: pplx.URL, APIKey: "test-key"}, zap.NewNop()), 0)

	resp, err := chain.Chat(context.Background(), &ChatRequest{Messages: []Message{User("x")}}, "pplx")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "pplx" {
		t.Errorf("content = %q, want preferred provider", resp.Content)
	}
	if groqCalls.Load() != 0 {
		t.Errorf("groq called %d times", groqCalls.Load())
	}
}

func TestChainBreakerOpens(t *testing.T) {
	bad, calls := newOpenAIServer(t, http.StatusBadGateway, "")
	chain := NewChain(ChainOptions{MaxFailures: 2, OpenFor: time.Minute}, zap.NewNop())
	chain.Register(NewOpenAIProvider(ProviderConfig{ID: "groq", Type: TypeGroq, Endpoint: bad.URL, APIKey: "test-key"}, zap.NewNop()), 0)

	for i := 0; i < 4; i++ {
		if _, err := chain.Chat(context.Background(), &ChatRequest{Messages: []Message{User("x")}}, ""); err == nil {
			t.Fatal("expected failure")
		}
	}
	if calls.Load() != 2 {
		t.Errorf("upstream calls = %d, want 2 before breaker opened", calls.Load())
	}
	if chain.Available() {
		t.Error("chain reports available with every breaker open")
	}
	if st := chain.Status(); st[0].Breaker != "open" {
		t.Errorf("breaker = %q, want open", st[0].Breaker)
	}
}

func TestChainEmpty(t *testing.T) {
	chain := NewChain(ChainOptions{}, zap.NewNop())
	if _, err := chain.Chat(context.Background(), &ChatRequest{}, ""); !errors.Is(err, ErrNoProviders) {
		t.Fatalf("err = %v, want ErrNoProviders", err)
	}
}

func TestAnthropicProviderChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		if _, ok := body["system"]; !ok {
			t.Error("system prompt not lifted to top level")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-haiku-latest",
			"content":[{"type":"text","text":"Irrigate every 4 days."}],
			"stop_reason":"end_turn","usage":{"input_tokens":12,"output_tokens":6}}`))
	}))
	defer srv.Close()

	p := NewAnthropicProvider(ProviderConfig{ID: "claude", Type: TypeAnthropic, Endpoint: srv.URL, APIKey: "k"}, zap.NewNop())
	resp, err := p.Chat(context.Background(), &ChatRequest{
		Messages:  []Message{System("You are an agronomist."), User("When to water wheat?")},
		MaxTokens: 100,
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "Irrigate every 4 days." {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 18 {
		t.Errorf("tokens = %d, want 18", resp.Usage.TotalTokens)
	}
}

func TestNewRejectsUnknownType(t *testing.T) {
	if _, err := New(ProviderConfig{Type: "carrier-pigeon"}, zap.NewNop()); err == nil {
		t.Fatal("expected error")
	}
}
