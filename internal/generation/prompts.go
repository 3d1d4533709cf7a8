package generation

import (
	"fmt"
	"strings"

	"github.com/nidhogg/agri-assist/internal/intent"
	"github.com/nidhogg/agri-assist/internal/realtime"
	"github.com/nidhogg/agri-assist/internal/retrieval"
)

const basePrompt = "You are an expert agricultural assistant specifically designed for farmers in Bargarh district of Odisha, India. You have deep knowledge of local farming practices, market conditions, and agricultural challenges unique to this region."

const defaultInstruction = "Provide general agricultural advice relevant to Bargarh district of Odisha."

var categoryInstructions = map[intent.Category]string{
	intent.MarketPrices:        "Focus on providing current market prices from Bargarh mandis (Attabira, Bargarh, Godabhaga, Sohela, Padampur), price trends, and buying/selling advice specific to Bargarh district. Include specific price figures from local markets when available.",
	intent.PestControl:         "Provide practical pest and disease management advice tailored to Bargarh's climate and common crops (paddy, maize, cotton, vegetables). Include both prevention and treatment options suitable for local conditions.",
	intent.CropRecommendations: "Give crop selection and farming technique recommendations based on Bargarh's soil types, climate, and water availability. Consider local market demand and traditional farming practices.",
	intent.IrrigationPlanning:  "Provide water management and irrigation scheduling advice considering Bargarh's rainfall patterns, river systems (Mahanadi, Jira), and local irrigation infrastructure.",
	intent.WeatherInsights:     "Offer weather-related farming guidance and crop protection advice specific to Bargarh's tropical climate, monsoon patterns, and seasonal variations.",
	intent.GovernmentSchemes:   "Explain government agricultural schemes, subsidies, and application processes available to farmers in Bargarh district, including Odisha-specific programs.",
	intent.FertilizerGuidance:  "Provide soil nutrition and fertilizer application guidance based on Bargarh's soil characteristics and common crop requirements in the region.",
	intent.SeasonalPlanning:    "Give seasonal farming advice and crop calendar guidance specific to Bargarh's agricultural seasons and local farming traditions.",
}

// kindInstructions refine the prompt for workflow subtasks.
var kindInstructions = map[string]string{
	intent.KindMarketOutlook:  "This answer is the market part of a larger farming plan. Describe the expected price direction for the crops involved over the planning horizon, the best selling windows, and which Bargarh mandis to target.",
	intent.KindWeatherOutlook: "This answer is the weather part of a larger farming plan. Summarize the expected rainfall and temperature over the planning horizon and what they mean for sowing, irrigation and field operations.",
	intent.KindCropOutlook:    "This answer is the crop-choice part of a larger farming plan. Recommend crops and varieties for the coming season that fit Bargarh's soils, expected weather and market demand.",
}

const instructions = `Instructions:
- Use simple, clear language that Bargarh farmers can understand.
- Provide practical, actionable advice specific to Bargarh district conditions
- Include specific details from local context when available
- Reference local markets, mandis, and agricultural practices in Bargarh
- If context is insufficient, acknowledge limitations but try to provide general guidance for the region
- Keep responses concise but informative
- Consider local farming traditions and practices of Bargarh district`

const (
	noContextText       = "No specific context available for this query type in Bargarh district."
	noRelevantText      = "No relevant context found for this query type."
	noDataFallback      = "I don't have specific information for your query about Bargarh district. This type of query doesn't have available data in our system. Please consult with local agricultural experts or visit the nearest Krishi Vigyan Kendra in Bargarh for assistance."
	fallbackLead        = "Based on available information for Bargarh district: "
	fallbackExcerptSize = 300
	maxContextDocs      = 3
	minReferenceScore   = 0.1
)

var weatherLabels = map[string]string{
	realtime.DataTypeLive:     "LIVE WEATHER DATA",
	realtime.DataTypeForecast: "7-DAY WEATHER FORECAST",
	realtime.DataTypeHistory:  "PAST 7 DAYS WEATHER HISTORY",
}

func systemPrompt(c intent.Category, kind string) string {
	instr, ok := categoryInstructions[c]
	if !ok {
		instr = defaultInstruction
	}
	var b strings.Builder
	b.WriteString(basePrompt)
	b.WriteString("\n\n")
	b.WriteString(instr)
	if k, ok := kindInstructions[kind]; ok {
		b.WriteString("\n\n")
		b.WriteString(k)
	}
	b.WriteString("\n\n")
	b.WriteString(instructions)
	return b.String()
}

// contextText renders the top documents. Weather snapshots are always kept
// and labelled by type; other passages need a minimum relevance.
func contextText(docs []retrieval.Document) string {
	if len(docs) == 0 {
		return noContextText
	}
	var parts []string
	for i, d := range docs[:min(len(docs), maxContextDocs)] {
		if label, ok := weatherLabels[d.Metadata["data_type"]]; ok {
			parts = append(parts, label+": "+d.Text)
			continue
		}
		if d.Score > minReferenceScore {
			parts = append(parts, fmt.Sprintf("Reference %d: %s", i+1, d.Text))
		}
	}
	if len(parts) == 0 {
		return noRelevantText
	}
	return strings.Join(parts, "\n\n")
}

func userPrompt(query string, c intent.Classification, docs []retrieval.Document) string {
	lines := []string{
		"Question: " + query,
		"",
		"Intent: " + string(c.Category),
	}
	if c.Crop != "" {
		lines = append(lines, "Crop: "+c.Crop)
	}
	if c.Location != "" {
		lines = append(lines, "Location: "+c.Location)
	}
	lines = append(lines,
		"",
		"Available Context:",
		contextText(docs),
		"",
		"Please provide a helpful response based on the context above.",
	)
	return strings.Join(lines, "\n")
}

// fallbackText excerpts the most relevant document, or explains that no
// data is available.
func fallbackText(docs []retrieval.Document) string {
	if len(docs) == 0 {
		return noDataFallback
	}
	best := docs[0]
	for _, d := range docs[1:] {
		if d.Score > best.Score {
			best = d
		}
	}
	return fallbackLead + truncate(best.Text, fallbackExcerptSize) + "..."
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
