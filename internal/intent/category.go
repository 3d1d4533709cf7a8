package intent

import "strings"

// Category is the intent label assigned to a query.
type Category string

const (
	MarketPrices        Category = "market_prices"
	IrrigationPlanning  Category = "irrigation_planning"
	PestControl         Category = "pest_control"
	CropRecommendations Category = "crop_recommendations"
	WeatherInsights     Category = "weather_insights"
	GovernmentSchemes   Category = "government_schemes"
	FertilizerGuidance  Category = "fertilizer_guidance"
	SeasonalPlanning    Category = "seasonal_planning"
	GeneralFarming      Category = "general_farming"
	Unknown             Category = "unknown"
	WorkflowComplex     Category = "workflow_complex"
)

// CategoryInfo describes a category for listings.
type CategoryInfo struct {
	Name        Category `json:"name"`
	Description string   `json:"description"`
}

var descriptions = []CategoryInfo{
	{MarketPrices, "Questions about crop prices, rates, market values"},
	{IrrigationPlanning, "Questions about watering and irrigation systems"},
	{PestControl, "Questions about pests, diseases, and plant protection"},
	{CropRecommendations, "Questions about crop selection and varieties"},
	{WeatherInsights, "Questions about weather and climate conditions"},
	{GovernmentSchemes, "Questions about subsidies and government support"},
	{FertilizerGuidance, "Questions about fertilizers and soil nutrition"},
	{SeasonalPlanning, "Questions about planting and harvest timing"},
	{GeneralFarming, "General farming advice and cultivation practices"},
	{Unknown, "Unrecognized or non-agricultural queries"},
	{WorkflowComplex, "Multi-part planning queries answered through a stepped workflow"},
}

// Categories returns every category with its description.
func Categories() []CategoryInfo {
	out := make([]CategoryInfo, len(descriptions))
	copy(out, descriptions)
	return out
}

// Valid reports whether c is a member of the enumeration.
func (c Category) Valid() bool {
	for _, d := range descriptions {
		if d.Name == c {
			return true
		}
	}
	return false
}

// ParseCategory normalizes free text from a remote classifier ("Market-Prices",
// "pest control") and maps it onto the enumeration.
func ParseCategory(s string) (Category, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(s, "\"'`.")
	s = strings.NewReplacer("-", "_", " ", "_").Replace(s)
	c := Category(s)
	if c == WorkflowComplex || !c.Valid() {
		return "", false
	}
	return c, true
}
