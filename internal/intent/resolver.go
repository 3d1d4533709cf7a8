package intent

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/agri-assist/internal/metrics"
)

const classifySystemPrompt = `You are an expert agricultural assistant specializing in Bargarh district of Odisha, India. Classify the user's query into one of these categories:

- market_prices: Questions about crop prices, rates, market values, buying/selling prices in Bargarh mandis (Attabira, Bargarh, Godabhaga, Sohela, Padampur)
- irrigation_planning: Questions about watering, irrigation systems, water management, scheduling for Bargarh's climate and river systems
- pest_control: Questions about pests, diseases, insects, plant protection, spraying, treatment for Bargarh's common crops
- crop_recommendations: Questions about which crops to grow, varieties, seed selection, suitability for Bargarh's soil and climate
- weather_insights: Questions about weather, rainfall, temperature, climate, forecasts specific to Bargarh district
- government_schemes: Questions about subsidies, policies, loans, insurance, government support available in Bargarh district
- fertilizer_guidance: Questions about fertilizers, nutrients, soil nutrition, compost, manure for Bargarh's soil types
- seasonal_planning: Questions about planting time, harvest season, crop calendar, timing for Bargarh's agricultural seasons
- general_farming: General farming advice, cultivation practices, farm management for Bargarh district
- unknown: Queries not related to agriculture or unclear intent

Rules:
1. Return only the category name (e.g., "market_prices")
2. If the query is not agricultural or unclear, return "unknown"`

const complexitySystemPrompt = `You rate farming questions by how much multi-step planning they need.
Return only a number between 0 and 1. Near 0: a single direct question. Near 1: a plan that combines several topics such as prices, weather and crop choice over a time horizon.`

// remoteConfidence is the confidence assigned to a recognized remote label.
const remoteConfidence = 0.9

var numberRe = regexp.MustCompile(`\d*\.?\d+`)

// Options tunes the resolver.
type Options struct {
	Remote              bool
	RemoteComplexity    bool
	ComplexityThreshold float64
	AcceptConfidence    float64
	MinSubtasks         int
	MaxSubtasks         int
	MaxWords            int
}

// DefaultOptions returns the stock thresholds with remote calls enabled.
func DefaultOptions() Options {
	return Options{
		Remote:              true,
		ComplexityThreshold: 0.7,
		AcceptConfidence:    0.7,
		MinSubtasks:         3,
		MaxSubtasks:         5,
		MaxWords:            25,
	}
}

// Resolver classifies queries and decomposes complex ones. Every remote call
// has a local fallback, so no method returns an error.
type Resolver struct {
	completer Completer
	opts      Options
	logger    *zap.Logger
}

// NewResolver creates a resolver. completer may be nil for keyword-only use.
func NewResolver(completer Completer, opts Options, logger *zap.Logger) *Resolver {
	d := DefaultOptions()
	if opts.ComplexityThreshold <= 0 {
		opts.ComplexityThreshold = d.ComplexityThreshold
	}
	if opts.AcceptConfidence <= 0 {
		opts.AcceptConfidence = d.AcceptConfidence
	}
	if opts.MinSubtasks <= 0 {
		opts.MinSubtasks = d.MinSubtasks
	}
	if opts.MaxSubtasks < opts.MinSubtasks {
		opts.MaxSubtasks = opts.MinSubtasks
	}
	if opts.MaxWords <= 0 {
		opts.MaxWords = d.MaxWords
	}
	return &Resolver{completer: completer, opts: opts, logger: logger}
}

// ClassifyOption adjusts a single Classify call.
type ClassifyOption func(*classifyConfig)

type classifyConfig struct {
	skipDecomposition bool
}

// SkipDecomposition classifies the category only. Workflow steps use it so a
// subtask never decomposes again.
func SkipDecomposition() ClassifyOption {
	return func(c *classifyConfig) { c.skipDecomposition = true }
}

// Classify assigns a category to query. Queries scoring at or above the
// complexity threshold become WorkflowComplex with their subtasks attached.
func (r *Resolver) Classify(ctx context.Context, query string, opts ...ClassifyOption) Classification {
	var cc classifyConfig
	for _, o := range opts {
		o(&cc)
	}
	start := time.Now()

	if !cc.skipDecomposition {
		score := r.ComplexityScore(ctx, query)
		if score >= r.opts.ComplexityThreshold {
			crop, location := ExtractEntities(Preprocess(query))
			c := Classification{
				Category:        WorkflowComplex,
				Confidence:      score,
				KeywordsMatched: []string{},
				Crop:            crop,
				Location:        location,
				Complexity:      score,
				Decomposed:      true,
				Subtasks:        r.Decompose(ctx, query),
				Model:           "complexity_scorer",
				Provider:        "local",
			}
			r.logger.Info("query routed to workflow",
				zap.Float64("complexity", score), zap.Int("subtasks", len(c.Subtasks)))
			metrics.ObserveClassify(string(c.Category), "workflow", start)
			return c
		}
		c := r.classifyCategory(ctx, query, start)
		c.Complexity = score
		return c
	}
	return r.classifyCategory(ctx, query, start)
}

func (r *Resolver) classifyCategory(ctx context.Context, query string, start time.Time) Classification {
	if c, ok := r.classifyRemote(ctx, query); ok && c.Confidence > r.opts.AcceptConfidence {
		metrics.ObserveClassify(string(c.Category), "remote", start)
		return c
	}
	c := ClassifyLocal(query)
	metrics.ObserveClassify(string(c.Category), "keyword", start)
	return c
}

func (r *Resolver) classifyRemote(ctx context.Context, query string) (Classification, bool) {
	if !r.opts.Remote || r.completer == nil {
		return Classification{}, false
	}
	user := fmt.Sprintf("Classify this agricultural query: %q\n\nReturn only the category name from the list above.", query)
	resp, err := r.completer.Complete(ctx, classifySystemPrompt, user, 0.1, 20)
	if err != nil {
		r.logger.Warn("remote classification unavailable, using keywords", zap.Error(err))
		return Classification{}, false
	}
	cat, ok := ParseCategory(resp.Content)
	if !ok {
		r.logger.Warn("remote classifier returned unrecognized intent", zap.String("reply", resp.Content))
		return Classification{}, false
	}
	crop, location := ExtractEntities(Preprocess(query))
	return Classification{
		Category:        cat,
		Confidence:      remoteConfidence,
		KeywordsMatched: []string{string(cat)},
		Crop:            crop,
		Location:        location,
		Model:           resp.Model,
		Provider:        resp.Provider,
	}, true
}

// ComplexityScore returns a score in [0,1]. A remote rating is used when
// enabled and parseable; otherwise the local heuristic decides.
func (r *Resolver) ComplexityScore(ctx context.Context, query string) float64 {
	if r.opts.RemoteComplexity && r.completer != nil {
		resp, err := r.completer.Complete(ctx, complexitySystemPrompt, query, 0.0, 8)
		if err == nil {
			if m := numberRe.FindString(resp.Content); m != "" {
				if v, perr := strconv.ParseFloat(m, 64); perr == nil && v >= 0 && v <= 1 {
					return v
				}
			}
			r.logger.Warn("unparseable complexity rating", zap.String("reply", resp.Content))
		} else {
			r.logger.Warn("remote complexity scoring unavailable", zap.Error(err))
		}
	}
	return LocalComplexity(query, r.opts.MaxWords)
}

// Decompose splits query into MinSubtasks..MaxSubtasks ordered subtasks. It
// never returns an empty list.
func (r *Resolver) Decompose(ctx context.Context, query string) []Subtask {
	if r.opts.Remote && r.completer != nil {
		system := fmt.Sprintf(decomposeSystemPrompt, r.opts.MinSubtasks, r.opts.MaxSubtasks)
		resp, err := r.completer.Complete(ctx, system, query, 0.2, 800)
		if err == nil {
			subtasks, perr := parseSubtasks(resp.Content, r.opts.MinSubtasks, r.opts.MaxSubtasks)
			if perr == nil {
				return subtasks
			}
			r.logger.Warn("decomposition malformed, using fallback plan", zap.Error(perr))
		} else {
			r.logger.Warn("remote decomposition unavailable, using fallback plan", zap.Error(err))
		}
	}
	return FallbackSubtasks(query)
}
