package provider

import (
	"fmt"
	"strings"
)

// Provider types understood by New.
const (
	TypeGroq       = "groq"
	TypePerplexity = "perplexity"
	TypeOpenAI     = "openai"
	TypeAnthropic  = "anthropic"
)

type typeDefaults struct {
	endpoint string
	model    string
	name     string
}

var defaultsByType = map[string]typeDefaults{
	TypeGroq:       {endpoint: "https://api.groq.com/openai/v1", model: "llama-3.1-8b-instant", name: "Groq"},
	TypePerplexity: {endpoint: "https://api.perplexity.ai", model: "sonar-pro", name: "Perplexity"},
	TypeOpenAI:     {endpoint: "https://api.openai.com/v1", model: "gpt-4o-mini", name: "OpenAI"},
	TypeAnthropic:  {endpoint: "https://api.anthropic.com", model: "claude-3-5-haiku-latest", name: "Anthropic"},
}

// catalog lists the models each provider type is known to serve.
var catalog = map[string][]Model{
	TypeGroq: {
		{ID: "llama-3.1-8b-instant", Name: "Llama 3.1 8B Instant", Description: "Fast, instruction-tuned version of Llama 3.1 8B", MaxTokens: 4096, RecommendedFor: "Fast inference with good accuracy"},
		{ID: "gemma2-9b-it", Name: "Gemma2 9B IT", Description: "Google's efficient model", MaxTokens: 8192, RecommendedFor: "General tasks, good performance/cost ratio"},
		{ID: "openai/gpt-oss-120b", Name: "OpenAI GPT OSS 120B", Description: "Open source GPT-style 120B parameter model", MaxTokens: 10240, RecommendedFor: "Large context, deep reasoning tasks"},
		{ID: "deepseek-r1-distill-llama-70b", Name: "DeepSeek R1 Distilled Llama 70B", Description: "Distilled, efficient 70B Llama variant from DeepSeek", MaxTokens: 8192, RecommendedFor: "High quality reasoning with fewer resources"},
		{ID: "compound-beta", Name: "Compound Beta", Description: "Experimental multi-model ensemble system", MaxTokens: 4096, RecommendedFor: "Research and experimental applications"},
	},
	TypePerplexity: {
		{ID: "sonar-pro", Name: "Sonar Pro", Description: "Perplexity's advanced search-grounded model", MaxTokens: 8000, RecommendedFor: "Answers that benefit from fresh web data"},
		{ID: "sonar", Name: "Sonar", Description: "Lightweight search-grounded model", MaxTokens: 4000, RecommendedFor: "Quick factual lookups"},
		{ID: "sonar-reasoning", Name: "Sonar Reasoning", Description: "Search-grounded chain-of-thought model", MaxTokens: 8000, RecommendedFor: "Multi-step reasoning"},
	},
	TypeOpenAI: {
		{ID: "gpt-4o-mini", Name: "GPT-4o mini", Description: "Small, fast general model", MaxTokens: 16384, RecommendedFor: "Cost-efficient generation"},
		{ID: "gpt-4o", Name: "GPT-4o", Description: "Flagship multimodal model", MaxTokens: 16384, RecommendedFor: "High quality answers"},
	},
	TypeAnthropic: {
		{ID: "claude-3-5-haiku-latest", Name: "Claude 3.5 Haiku", Description: "Fast Claude model", MaxTokens: 8192, RecommendedFor: "Low-latency answers"},
		{ID: "claude-sonnet-4-20250514", Name: "Claude Sonnet 4", Description: "Balanced Claude model", MaxTokens: 8192, RecommendedFor: "Detailed planning summaries"},
	},
}

// Catalog returns the known models for a provider type, tagged with providerID.
func Catalog(providerType, providerID string) []Model {
	models := catalog[strings.ToLower(providerType)]
	out := make([]Model, len(models))
	for i, m := range models {
		m.Provider = providerID
		out[i] = m
	}
	return out
}

// validateModel accepts a model when it appears in the configured allow-list
// or, with no allow-list, in the type catalog.
func validateModel(cfg ProviderConfig, model string) error {
	if model == "" {
		return nil
	}
	if len(cfg.Models) > 0 {
		for _, m := range cfg.Models {
			if m == model {
				return nil
			}
		}
		return fmt.Errorf("%w %q for provider %s", ErrUnknownModel, model, cfg.ID)
	}
	known := catalog[strings.ToLower(cfg.Type)]
	if len(known) == 0 {
		return nil
	}
	for _, m := range known {
		if m.ID == model {
			return nil
		}
	}
	return fmt.Errorf("%w %q for provider %s", ErrUnknownModel, model, cfg.ID)
}

func applyTypeDefaults(cfg ProviderConfig) ProviderConfig {
	d, ok := defaultsByType[strings.ToLower(cfg.Type)]
	if !ok {
		d = defaultsByType[TypeOpenAI]
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = d.endpoint
	}
	if cfg.Name == "" {
		cfg.Name = d.name
	}
	if cfg.ID == "" {
		cfg.ID = strings.ToLower(cfg.Type)
	}
	return cfg
}

func defaultModelFor(cfg ProviderConfig) string {
	if len(cfg.Models) > 0 {
		return cfg.Models[0]
	}
	if d, ok := defaultsByType[strings.ToLower(cfg.Type)]; ok {
		return d.model
	}
	return defaultsByType[TypeOpenAI].model
}
