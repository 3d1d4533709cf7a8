package intent

// entry is one scored vocabulary set.
type entry struct {
	keywords []string
	phrases  []string
}

// lexicon is iterated in classifiable order so ties resolve the same way
// every run.
var lexicon = []struct {
	category Category
	entry
}{
	{MarketPrices, entry{
		keywords: []string{"price", "rate", "cost", "selling", "buying", "market", "mandi", "wholesale", "retail", "value", "worth"},
		phrases:  []string{"market price", "current rate", "today price", "selling price", "market rate", "price today"},
	}},
	{IrrigationPlanning, entry{
		keywords: []string{"water", "irrigation", "watering", "drip", "sprinkler", "flood irrigation", "schedule", "timing"},
		phrases:  []string{"water schedule", "irrigation plan", "watering time", "water management", "irrigation system"},
	}},
	{PestControl, entry{
		keywords: []string{"pest", "insect", "disease", "fungus", "virus", "control", "spray", "pesticide", "treatment", "infection"},
		phrases:  []string{"pest control", "disease management", "insect attack", "plant disease", "crop protection"},
	}},
	{CropRecommendations, entry{
		keywords: []string{"crop", "variety", "seed", "cultivar", "recommend", "suggest", "best", "suitable", "grow"},
		phrases:  []string{"which crop", "best variety", "crop suggestion", "what to grow", "suitable crop"},
	}},
	{WeatherInsights, entry{
		keywords: []string{"weather", "rain", "temperature", "humidity", "wind", "forecast", "climate", "season"},
		phrases:  []string{"weather forecast", "rain prediction", "weather update", "climate condition"},
	}},
	{GovernmentSchemes, entry{
		keywords: []string{"scheme", "subsidy", "government", "policy", "loan", "insurance", "benefit", "support"},
		phrases:  []string{"government scheme", "subsidy available", "farmer scheme", "agricultural policy"},
	}},
	{FertilizerGuidance, entry{
		keywords: []string{"fertilizer", "nutrient", "nitrogen", "phosphorus", "potassium", "urea", "compost", "manure"},
		phrases:  []string{"fertilizer recommendation", "nutrient management", "soil nutrition", "fertilizer schedule"},
	}},
	{SeasonalPlanning, entry{
		keywords: []string{"season", "timing", "calendar", "schedule", "planting", "harvesting", "sowing", "kharif", "rabi"},
		phrases:  []string{"planting time", "harvest season", "crop calendar", "seasonal plan", "farming schedule"},
	}},
	{GeneralFarming, entry{
		keywords: []string{"farming", "agriculture", "cultivation", "farm", "field", "soil", "harvest", "produce", "yield"},
		phrases:  []string{"farming advice", "agricultural help", "general farming", "crop cultivation", "farm management"},
	}},
}

var crops = []string{
	"tomato", "potato", "onion", "wheat", "rice", "maize", "sugarcane", "cotton",
	"soybean", "mustard", "groundnut", "chilli", "brinjal", "cauliflower", "cabbage",
}

var locations = []string{
	"karnataka", "maharashtra", "uttar pradesh", "punjab", "haryana", "gujarat",
	"rajasthan", "madhya pradesh", "andhra pradesh", "telangana", "tamil nadu",
	"odisha", "bargarh",
}

// planningTerms signal that a query asks for coordination across topics.
var planningTerms = []string{
	"plan", "planning", "strategy", "schedule", "roadmap", "considering",
	"coordinate", "optimize", "overall", "complete", "comprehensive", "step by step",
}

// coordinationMarkers join several asks into one sentence.
var coordinationMarkers = []string{"considering", "along with", "and also", "as well as", "together with"}
