package generation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nidhogg/agri-assist/internal/intent"
	"github.com/nidhogg/agri-assist/internal/provider"
	"github.com/nidhogg/agri-assist/internal/realtime"
	"github.com/nidhogg/agri-assist/internal/retrieval"
)

type fakeBackend struct {
	reply  string
	err    error
	got    *provider.ChatRequest
	prefer string
}

func (f *fakeBackend) Chat(_ context.Context, req *provider.ChatRequest, prefer string) (*provider.ChatResponse, error) {
	f.got, f.prefer = req, prefer
	if f.err != nil {
		return nil, f.err
	}
	return &provider.ChatResponse{Content: f.reply, Model: "llama-3.1-8b-instant", Provider: "groq"}, nil
}

func doc(text string, score float64, meta map[string]string) retrieval.Document {
	if meta == nil {
		meta = map[string]string{}
	}
	return retrieval.Document{Text: text, Score: score, Metadata: meta}
}

func TestGenerateSuccess(t *testing.T) {
	be := &fakeBackend{reply: "Sell tomatoes at Attabira this week."}
	c := NewClient(be, Options{}, zap.NewNop())

	cls := intent.Classification{Category: intent.MarketPrices, Crop: "tomato", Location: "odisha"}
	res := c.Generate(context.Background(), "tomato price?", cls,
		[]retrieval.Document{doc("Tomato 1200/qtl at Attabira", 0.8, nil)},
		Request{Provider: "perplexity", Model: "sonar-pro"})

	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, "Sell tomatoes at Attabira this week.", res.Response)
	assert.Equal(t, 1, res.ContextUsed)
	assert.Equal(t, "groq", res.Provider)
	assert.Equal(t, intent.MarketPrices, res.Intent)

	require.NotNil(t, be.got)
	assert.Equal(t, "perplexity", be.prefer)
	assert.Equal(t, "sonar-pro", be.got.Model)
	assert.Equal(t, 0.3, be.got.Temperature)
	assert.Equal(t, 500, be.got.MaxTokens)
	require.Len(t, be.got.Messages, 2)
	assert.Contains(t, be.got.Messages[0].Content, "Bargarh mandis")
	user := be.got.Messages[1].Content
	assert.Contains(t, user, "Question: tomato price?")
	assert.Contains(t, user, "Intent: market_prices")
	assert.Contains(t, user, "Crop: tomato")
	assert.Contains(t, user, "Location: odisha")
	assert.Contains(t, user, "Reference 1: Tomato 1200/qtl at Attabira")
}

func TestGenerateFallbackExcerpt(t *testing.T) {
	c := NewClient(&fakeBackend{err: errors.New("503 from upstream")}, Options{}, zap.NewNop())

	long := strings.Repeat("paddy ", 80)
	res := c.Generate(context.Background(), "q", intent.Classification{Category: intent.CropRecommendations},
		[]retrieval.Document{doc("weak match", 0.2, nil), doc(long, 0.85, nil)}, Request{})

	assert.Equal(t, StatusFallback, res.Status)
	assert.Equal(t, "fallback", res.Model)
	assert.Equal(t, "local", res.Provider)
	assert.True(t, strings.HasPrefix(res.Response, "Based on available information for Bargarh district: paddy"))
	assert.True(t, strings.HasSuffix(res.Response, "..."))
	assert.Len(t, res.Response, len(fallbackLead)+300+3)
	assert.Contains(t, res.Error, "503")
}

func TestGenerateFallbackNoContext(t *testing.T) {
	c := NewClient(nil, Options{}, zap.NewNop())
	res := c.Generate(context.Background(), "q", intent.Classification{Category: intent.Unknown}, nil, Request{})
	assert.Equal(t, StatusFallback, res.Status)
	assert.Contains(t, res.Response, "Krishi Vigyan Kendra")
	assert.Equal(t, 0, res.ContextUsed)
}

func TestGenerateEmptyReplyFallsBack(t *testing.T) {
	c := NewClient(&fakeBackend{reply: ""}, Options{}, zap.NewNop())
	res := c.Generate(context.Background(), "q", intent.Classification{Category: intent.PestControl},
		[]retrieval.Document{doc("neem oil spray", 0.5, nil)}, Request{})
	assert.Equal(t, StatusFallback, res.Status)
	assert.Contains(t, res.Response, "neem oil spray")
}

func TestContextText(t *testing.T) {
	docs := []retrieval.Document{
		doc("29°C humid", 1, map[string]string{"data_type": realtime.DataTypeLive}),
		doc("irrelevant", 0.05, nil),
		doc("light showers", 1, map[string]string{"data_type": realtime.DataTypeForecast}),
		doc("fourth is dropped", 0.9, nil),
	}
	got := contextText(docs)
	assert.Equal(t, "LIVE WEATHER DATA: 29°C humid\n\n7-DAY WEATHER FORECAST: light showers", got)

	assert.Equal(t, noRelevantText, contextText([]retrieval.Document{doc("x", 0.1, nil)}))
	assert.Equal(t, noContextText, contextText(nil))
}

func TestSystemPromptSelection(t *testing.T) {
	p := systemPrompt(intent.Unknown, "")
	assert.Contains(t, p, defaultInstruction)
	assert.Contains(t, p, "Instructions:")

	p = systemPrompt(intent.WeatherInsights, intent.KindWeatherOutlook)
	assert.Contains(t, p, "monsoon patterns")
	assert.Contains(t, p, "weather part of a larger farming plan")
}

func TestDirect(t *testing.T) {
	be := &fakeBackend{reply: "Summary"}
	c := NewClient(be, Options{Temperature: 0.3, MaxTokens: 500}, zap.NewNop())

	res, err := c.Direct(context.Background(), DirectRequest{System: "sys", User: "usr", MaxTokens: 800})
	require.NoError(t, err)
	assert.Equal(t, "Summary", res.Response)
	assert.Equal(t, 800, be.got.MaxTokens)
	assert.Equal(t, "sys", be.got.Messages[0].Content)

	be.err = errors.New("timeout")
	_, err = c.Direct(context.Background(), DirectRequest{System: "s", User: "u"})
	assert.EqualError(t, err, "timeout")

	_, err = NewClient(nil, Options{}, zap.NewNop()).Direct(context.Background(), DirectRequest{})
	assert.ErrorIs(t, err, provider.ErrNoProviders)
}

func TestCompleteImplementsCompleter(t *testing.T) {
	var _ intent.Completer = (*Client)(nil)

	be := &fakeBackend{reply: "market_prices"}
	resp, err := NewClient(be, Options{}, zap.NewNop()).Complete(context.Background(), "s", "u", 0.1, 20)
	require.NoError(t, err)
	assert.Equal(t, "market_prices", resp.Content)
	assert.Equal(t, 0.1, be.got.Temperature)
	assert.Equal(t, 20, be.got.MaxTokens)
}
