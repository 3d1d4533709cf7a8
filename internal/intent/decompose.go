package intent

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

const decomposeSystemPrompt = `You are an agricultural planning assistant for Bargarh district, Odisha, India.
Break the farmer's question into %d to %d independent subtasks that together answer it.

Each subtask must have:
- "description": a short human-readable title
- "intent": one of market_prices, irrigation_planning, pest_control, crop_recommendations, weather_insights, government_schemes, fertilizer_guidance, seasonal_planning, general_farming
- "query": a complete question that can be answered on its own
- "priority": integer, 1 is answered first

Respond with JSON only, in the form {"subtasks": [...]}.`

var errMalformed = errors.New("malformed decomposition")

type rawSubtask struct {
	Description string      `json:"description"`
	Intent      string      `json:"intent"`
	IntentType  string      `json:"intent_type"`
	Query       string      `json:"query"`
	Priority    json.Number `json:"priority"`
	Kind        string      `json:"kind"`
}

// parseSubtasks extracts subtasks from a model reply. The reply may wrap the
// JSON in prose or code fences, and may be a bare array.
func parseSubtasks(reply string, minN, maxN int) ([]Subtask, error) {
	var raw []rawSubtask

	if start, end := strings.Index(reply, "{"), strings.LastIndex(reply, "}"); start >= 0 && end > start {
		var wrapper struct {
			Subtasks []rawSubtask `json:"subtasks"`
		}
		if err := json.Unmarshal([]byte(reply[start:end+1]), &wrapper); err == nil {
			raw = wrapper.Subtasks
		}
	}
	if raw == nil {
		if start, end := strings.Index(reply, "["), strings.LastIndex(reply, "]"); start >= 0 && end > start {
			if err := json.Unmarshal([]byte(reply[start:end+1]), &raw); err != nil {
				return nil, fmt.Errorf("%w: %v", errMalformed, err)
			}
		}
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: no JSON found", errMalformed)
	}

	out := make([]Subtask, 0, len(raw))
	for i, r := range raw {
		name := r.Intent
		if name == "" {
			name = r.IntentType
		}
		cat, ok := ParseCategory(name)
		if !ok || cat == Unknown {
			continue
		}
		query := strings.TrimSpace(r.Query)
		if query == "" {
			continue
		}
		desc := strings.TrimSpace(r.Description)
		if desc == "" {
			desc = query
		}
		prio, err := r.Priority.Int64()
		if err != nil || prio <= 0 {
			prio = int64(i + 1)
		}
		kind := r.Kind
		if kind == "" {
			kind = kindFor(cat)
		}
		out = append(out, Subtask{
			Description: desc,
			Category:    cat,
			Query:       query,
			Priority:    int(prio),
			Kind:        kind,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	if len(out) > maxN {
		out = out[:maxN]
	}
	if len(out) < minN {
		return nil, fmt.Errorf("%w: %d usable subtasks, need %d", errMalformed, len(out), minN)
	}
	return out, nil
}

func kindFor(c Category) string {
	switch c {
	case MarketPrices:
		return KindMarketOutlook
	case WeatherInsights:
		return KindWeatherOutlook
	case CropRecommendations:
		return KindCropOutlook
	default:
		return ""
	}
}

// FallbackSubtasks is the fixed market / weather / crop plan used when remote
// decomposition is unavailable.
func FallbackSubtasks(query string) []Subtask {
	return []Subtask{
		{
			Description: "Analyze market prices and trends",
			Category:    MarketPrices,
			Query:       fmt.Sprintf("What are the current market prices and expected price trends relevant to: %s", query),
			Priority:    1,
			Kind:        KindMarketOutlook,
		},
		{
			Description: "Review weather outlook",
			Category:    WeatherInsights,
			Query:       fmt.Sprintf("What weather conditions and forecast should a farmer consider for: %s", query),
			Priority:    2,
			Kind:        KindWeatherOutlook,
		},
		{
			Description: "Recommend suitable crops",
			Category:    CropRecommendations,
			Query:       fmt.Sprintf("Which crops and varieties are most suitable given: %s", query),
			Priority:    3,
			Kind:        KindCropOutlook,
		},
	}
}
