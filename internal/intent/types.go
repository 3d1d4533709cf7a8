package intent

import (
	"context"

	"github.com/nidhogg/agri-assist/internal/provider"
)

// Subtask is one self-contained question produced by decomposition.
type Subtask struct {
	Description string   `json:"description"`
	Category    Category `json:"intent_type"`
	Query       string   `json:"query"`
	Priority    int      `json:"priority"`
	Kind        string   `json:"kind,omitempty"`
}

// Subtask kinds select specialized prompt templates.
const (
	KindMarketOutlook  = "market_outlook"
	KindWeatherOutlook = "weather_outlook"
	KindCropOutlook    = "crop_outlook"
)

// Classification is the immutable result of Classify.
type Classification struct {
	Category        Category  `json:"intent"`
	Confidence      float64   `json:"confidence"`
	KeywordsMatched []string  `json:"keywords_matched"`
	Crop            string    `json:"crop,omitempty"`
	Location        string    `json:"location,omitempty"`
	Complexity      float64   `json:"complexity_score"`
	Decomposed      bool      `json:"requires_workflow"`
	Subtasks        []Subtask `json:"subtasks,omitempty"`
	Model           string    `json:"model_used"`
	Provider        string    `json:"provider_used"`
}

// Completer is the part of the generation backend the resolver calls.
type Completer interface {
	Complete(ctx context.Context, system, user string, temperature float64, maxTokens int) (*provider.ChatResponse, error)
}
