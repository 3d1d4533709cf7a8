package embedding

import "context"

// OllamaProvider implements Provider against Ollama's /api/embeddings, which
// takes one prompt per request.
type OllamaProvider struct {
	httpEmbedder
}

// NewOllamaProvider creates a new OllamaProvider from the given Config.
func NewOllamaProvider(cfg Config) *OllamaProvider {
	p := &OllamaProvider{}
	p.init(cfg)
	return p
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (p *OllamaProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	embeddings := make([][]float32, 0, len(texts))
	for _, text := range texts {
		var result ollamaResponse
		if err := p.post(ctx, "/api/embeddings", ollamaRequest{Model: p.model, Prompt: text}, &result); err != nil {
			return nil, err
		}
		embeddings = append(embeddings, result.Embedding)
	}
	p.observe(embeddings)
	return embeddings, nil
}
