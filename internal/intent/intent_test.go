package intent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nidhogg/agri-assist/internal/provider"
)

// scriptedCompleter answers by system prompt so one fake can serve the
// complexity, classification and decomposition calls.
type scriptedCompleter struct {
	classify  string
	decompose string
	rating    string
	err       error
	calls     int
}

func (s *scriptedCompleter) Complete(_ context.Context, system, _ string, _ float64, _ int) (*provider.ChatResponse, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	reply := s.classify
	switch system {
	case complexitySystemPrompt:
		reply = s.rating
	case classifySystemPrompt:
		reply = s.classify
	default:
		reply = s.decompose
	}
	return &provider.ChatResponse{Content: reply, Model: "llama-3.1-8b-instant", Provider: "groq"}, nil
}

func newResolver(c Completer) *Resolver {
	return NewResolver(c, DefaultOptions(), zap.NewNop())
}

func TestMarketQueryLocal(t *testing.T) {
	r := newResolver(nil)
	c := r.Classify(context.Background(), "What is the price of tomato today in the district market")

	assert.Equal(t, MarketPrices, c.Category)
	assert.Greater(t, c.Confidence, 0.1)
	assert.Contains(t, c.KeywordsMatched, "price")
	assert.Contains(t, c.KeywordsMatched, "market")
	assert.Equal(t, "tomato", c.Crop)
	assert.Equal(t, "keyword_based", c.Model)
	assert.False(t, c.Decomposed)
	assert.Less(t, c.Complexity, 0.7)
}

func TestPlanningQueryDecomposesWithFallback(t *testing.T) {
	r := newResolver(&scriptedCompleter{err: errors.New("backend down")})
	c := r.Classify(context.Background(), "Plan my farming for the next 3 months considering prices, weather, and crop choices")

	require.Equal(t, WorkflowComplex, c.Category)
	assert.True(t, c.Decomposed)
	assert.GreaterOrEqual(t, c.Complexity, 0.7)
	require.Len(t, c.Subtasks, 3)

	wantCats := []Category{MarketPrices, WeatherInsights, CropRecommendations}
	for i, st := range c.Subtasks {
		assert.Equal(t, wantCats[i], st.Category)
		assert.Equal(t, i+1, st.Priority)
		assert.Contains(t, st.Query, "Plan my farming")
	}
}

func TestClassifyAlwaysInEnumeration(t *testing.T) {
	r := newResolver(nil)
	for _, q := range []string{
		"",
		"???",
		"hello there",
		"How much urea and compost for my wheat field?",
		"Is there a government subsidy for drip irrigation in Punjab?",
		"Plan a comprehensive strategy for the coming season considering pest control, fertilizer and market rates",
	} {
		c := r.Classify(context.Background(), q)
		assert.True(t, c.Category.Valid(), "category %q for %q", c.Category, q)
		assert.GreaterOrEqual(t, c.Confidence, 0.0)
		assert.LessOrEqual(t, c.Confidence, 1.0)
	}
}

func TestLowScoreDefaultsToGeneralFarming(t *testing.T) {
	c := ClassifyLocal("hello there friend")
	assert.Equal(t, GeneralFarming, c.Category)
	assert.Equal(t, 0.0, c.Confidence)
}

func TestRemoteClassificationAccepted(t *testing.T) {
	r := newResolver(&scriptedCompleter{classify: "Pest-Control", rating: "0.1"})
	c := r.Classify(context.Background(), "my leaves have spots")

	assert.Equal(t, PestControl, c.Category)
	assert.Equal(t, 0.9, c.Confidence)
	assert.Equal(t, "groq", c.Provider)
}

func TestRemoteClassificationUnrecognizedFallsBack(t *testing.T) {
	r := newResolver(&scriptedCompleter{classify: "astrology"})
	c := r.Classify(context.Background(), "What is the market rate for onion in Maharashtra?")

	assert.Equal(t, MarketPrices, c.Category)
	assert.Equal(t, "local", c.Provider)
	assert.Equal(t, "maharashtra", c.Location)
}

func TestSkipDecomposition(t *testing.T) {
	r := newResolver(nil)
	c := r.Classify(context.Background(),
		"Plan my farming for the next 3 months considering prices, weather, and crop choices",
		SkipDecomposition())
	assert.NotEqual(t, WorkflowComplex, c.Category)
	assert.Empty(t, c.Subtasks)
}

func TestRemoteComplexityRating(t *testing.T) {
	opts := DefaultOptions()
	opts.RemoteComplexity = true
	r := NewResolver(&scriptedCompleter{rating: "Score: 0.95", classify: "unknown"}, opts, zap.NewNop())
	assert.Equal(t, 0.95, r.ComplexityScore(context.Background(), "short"))

	r = NewResolver(&scriptedCompleter{rating: "very complex"}, opts, zap.NewNop())
	assert.Equal(t, LocalComplexity("short", 25), r.ComplexityScore(context.Background(), "short"))
}

func TestDecomposeParsesRemotePlan(t *testing.T) {
	reply := "Here is the plan:\n```json\n" + `{"subtasks": [
		{"description": "Weather", "intent": "weather_insights", "query": "What is the rain outlook?", "priority": 2},
		{"description": "Prices", "intent": "market_prices", "query": "What will paddy sell for?", "priority": 1},
		{"description": "Seeds", "intent": "crop_recommendations", "query": "Which paddy variety?", "priority": 3},
		{"description": "Bogus", "intent": "astrology", "query": "Stars?", "priority": 4}
	]}` + "\n```"
	r := newResolver(&scriptedCompleter{decompose: reply})

	subtasks := r.Decompose(context.Background(), "plan")
	require.Len(t, subtasks, 3)
	assert.Equal(t, MarketPrices, subtasks[0].Category)
	assert.Equal(t, KindMarketOutlook, subtasks[0].Kind)
	assert.Equal(t, WeatherInsights, subtasks[1].Category)
	assert.Equal(t, 3, subtasks[2].Priority)
}

func TestDecomposeTruncatesToMax(t *testing.T) {
	reply := `[
		{"description": "a", "intent": "market_prices", "query": "q1", "priority": 1},
		{"description": "b", "intent": "weather_insights", "query": "q2", "priority": 2},
		{"description": "c", "intent": "pest_control", "query": "q3", "priority": 3},
		{"description": "d", "intent": "fertilizer_guidance", "query": "q4", "priority": 4},
		{"description": "e", "intent": "seasonal_planning", "query": "q5", "priority": 5},
		{"description": "f", "intent": "government_schemes", "query": "q6", "priority": 6}
	]`
	subtasks, err := parseSubtasks(reply, 3, 5)
	require.NoError(t, err)
	assert.Len(t, subtasks, 5)
}

func TestDecomposeMalformedFallsBack(t *testing.T) {
	for _, reply := range []string{"no json here", `{"subtasks": []}`, `{"subtasks": [{"intent": "market_prices", "query": "q"}]}`} {
		r := newResolver(&scriptedCompleter{decompose: reply})
		subtasks := r.Decompose(context.Background(), "plan my season")
		require.Len(t, subtasks, 3, "reply %q", reply)
		assert.Equal(t, MarketPrices, subtasks[0].Category)
	}
}

func TestParseCategory(t *testing.T) {
	c, ok := ParseCategory(" \"Crop Recommendations\". ")
	assert.True(t, ok)
	assert.Equal(t, CropRecommendations, c)

	_, ok = ParseCategory("workflow_complex")
	assert.False(t, ok)
}

func TestPreprocessAndEntities(t *testing.T) {
	p := Preprocess("  Best CHILLI price, in Tamil-Nadu?! ")
	assert.Equal(t, "best chilli price in tamil nadu", p)
	crop, loc := ExtractEntities(p)
	assert.Equal(t, "chilli", crop)
	assert.Equal(t, "tamil nadu", loc)
}

func TestLocalComplexityBounds(t *testing.T) {
	assert.Equal(t, 0.0, LocalComplexity("", 25))
	long := "plan strategy schedule considering price weather pest fertilizer scheme crop season for the next 6 months along with every detail of my farm and the whole village cooperative"
	assert.LessOrEqual(t, LocalComplexity(long, 25), 1.0)
	assert.GreaterOrEqual(t, LocalComplexity(long, 25), 0.7)
}
