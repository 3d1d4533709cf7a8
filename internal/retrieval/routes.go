package retrieval

import "github.com/nidhogg/agri-assist/internal/intent"

// Source names of the agricultural knowledge buckets.
const (
	MarketData     = "market_prediction_data"
	CropGuidance   = "crop_guidance_data"
	PestControl    = "pest_control_data"
	SchemesData    = "government_schemes_data"
	SoilHealthData = "soil_health_data"
)

// Sentinel primaries in the route table.
const (
	allSources   = "*"
	realtimeOnly = "realtime"
)

// route says where a category's context comes from. extra sources and the
// real-time overlay are prepended only when primary produced results.
type route struct {
	primary  string
	extra    []string
	realtime bool
}

var routes = map[intent.Category]route{
	intent.MarketPrices:        {primary: MarketData},
	intent.IrrigationPlanning:  {primary: CropGuidance, realtime: true},
	intent.PestControl:         {primary: PestControl, realtime: true},
	intent.CropRecommendations: {primary: CropGuidance, realtime: true},
	intent.WeatherInsights:     {primary: realtimeOnly},
	intent.GovernmentSchemes:   {primary: SchemesData},
	intent.FertilizerGuidance:  {primary: CropGuidance, extra: []string{SoilHealthData}, realtime: true},
	intent.SeasonalPlanning:    {primary: CropGuidance},
	intent.GeneralFarming:      {primary: allSources},
	intent.Unknown:             {primary: MarketData},
	intent.WorkflowComplex:     {primary: allSources},
}

// enrichQuery appends entity-specific terms that pull the right passages
// for categories whose buckets are keyed by crop or region.
func enrichQuery(query string, c intent.Classification) string {
	switch c.Category {
	case intent.PestControl:
		if c.Crop != "" {
			return query + " " + c.Crop + " pest disease control management"
		}
	case intent.IrrigationPlanning:
		if c.Crop != "" {
			return query + " " + c.Crop + " irrigation schedule water management"
		}
	case intent.CropRecommendations:
		if c.Location != "" {
			return query + " " + c.Location + " soil climate suitable crops"
		}
	}
	return query
}
