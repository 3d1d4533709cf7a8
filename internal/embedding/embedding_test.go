package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAPIProviderEmbed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/embeddings", func(w http.ResponseWriter, r *http.Request) {
		var req apiRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "bge-small" {
			t.Errorf("model = %q", req.Model)
		}
		// Reversed order exercises index placement.
		json.NewEncoder(w).Encode(apiResponse{Data: []apiEmbeddingData{
			{Index: 1, Embedding: []float32{0.4, 0.5, 0.6}},
			{Index: 0, Embedding: []float32{0.1, 0.2, 0.3}},
		}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := NewAPIProvider(Config{Endpoint: srv.URL + "/", Model: "bge-small"})
	vectors, err := p.Embed(context.Background(), []string{"paddy price", "rain outlook"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("got %d vectors, want 2", len(vectors))
	}
	if vectors[0][0] != 0.1 || vectors[1][0] != 0.4 {
		t.Errorf("vectors out of order: %v", vectors)
	}
	if p.Dimension() != 3 {
		t.Errorf("got dimension %d, want 3", p.Dimension())
	}
}

func TestAPIProviderEmbed_Empty(t *testing.T) {
	p := NewAPIProvider(Config{Endpoint: "http://unused", Dimension: 128})
	vectors, err := p.Embed(context.Background(), []string{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vectors != nil {
		t.Errorf("expected nil for empty input, got %v", vectors)
	}
	if d := p.Dimension(); d != 128 {
		t.Errorf("got dimension %d, want configured default 128", d)
	}
}

func TestAPIProviderEmbed_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewAPIProvider(Config{Endpoint: srv.URL}).Embed(context.Background(), []string{"x"})
	if err == nil || !strings.Contains(err.Error(), "status 429") {
		t.Fatalf("err = %v, want status 429", err)
	}
}

func TestOllamaProviderEmbed(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("path = %s", r.URL.Path)
		}
		calls++
		json.NewEncoder(w).Encode(ollamaResponse{Embedding: []float32{1, 2}})
	}))
	defer srv.Close()

	p := NewOllamaProvider(Config{Endpoint: srv.URL, Model: "nomic-embed-text"})
	vectors, err := p.Embed(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 3 || calls != 3 {
		t.Errorf("got %d vectors over %d calls, want 3/3", len(vectors), calls)
	}
	if p.Dimension() != 2 {
		t.Errorf("got dimension %d, want 2", p.Dimension())
	}
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	if _, err := New(Config{Provider: "word2vec"}); err == nil {
		t.Fatal("expected error")
	}
}
