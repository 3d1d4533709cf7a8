package retrieval

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nidhogg/agri-assist/internal/intent"
	"github.com/nidhogg/agri-assist/internal/knowledge"
	"github.com/nidhogg/agri-assist/internal/metrics"
	"github.com/nidhogg/agri-assist/internal/realtime"
)

// Document is a retrieved passage with its relevance in [0,1].
type Document struct {
	Text     string            `json:"document"`
	Score    float64           `json:"similarity_score"`
	Metadata map[string]string `json:"metadata"`
	Source   string            `json:"source"`
}

// Envelope is the result of Retrieve. Error is set instead of returning a
// Go error; Context is then empty or holds whatever could be fetched.
type Envelope struct {
	Context      []Document `json:"context"`
	SourcesUsed  []string   `json:"sources_used"`
	QueryUsed    string     `json:"query_used"`
	TotalResults int        `json:"total_results"`
	Error        string     `json:"error,omitempty"`
}

// SourceLabel joins the sources used into one display string.
func (e Envelope) SourceLabel() string {
	return strings.Join(e.SourcesUsed, ",")
}

// Options tunes the router.
type Options struct {
	DefaultSource string
	TopK          int
	AugmentLimit  int
}

// Router picks knowledge sources for a classified query, merges their
// passages and applies entity boosts.
type Router struct {
	source   knowledge.Source
	realtime realtime.Provider
	opts     Options
	logger   *zap.Logger
}

// NewRouter creates a router. rt may be nil when no real-time overlay is
// configured.
func NewRouter(src knowledge.Source, rt realtime.Provider, opts Options, logger *zap.Logger) *Router {
	if opts.DefaultSource == "" {
		opts.DefaultSource = MarketData
	}
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.AugmentLimit <= 0 {
		opts.AugmentLimit = 2
	}
	return &Router{source: src, realtime: rt, opts: opts, logger: logger}
}

// Sources lists the knowledge sources currently available.
func (r *Router) Sources(ctx context.Context) ([]string, error) {
	return r.source.Sources(ctx)
}

// Retrieve gathers context for query. topK <= 0 uses the configured default.
// It never returns an error; failures are reported in Envelope.Error.
func (r *Router) Retrieve(ctx context.Context, query string, c intent.Classification, topK int) Envelope {
	if topK <= 0 {
		topK = r.opts.TopK
	}
	rt, ok := routes[c.Category]
	if !ok {
		rt = route{primary: r.opts.DefaultSource}
	}
	text := enrichQuery(query, c)
	env := Envelope{QueryUsed: text, Context: []Document{}, SourcesUsed: []string{}}

	switch rt.primary {
	case realtimeOnly:
		r.retrieveRealtime(ctx, &env)
		env.TotalResults = len(env.Context)
		return env
	case allSources:
		r.retrieveAll(ctx, text, topK, &env)
	default:
		r.retrieveSingle(ctx, rt.primary, text, topK, &env)
	}

	boost(env.Context, c)

	if len(env.Context) > 0 {
		var extras []Document
		for _, name := range rt.extra {
			extras = append(extras, r.augment(ctx, name, text, &env)...)
		}
		if rt.realtime {
			extras = append(extras, r.overlay(ctx, &env)...)
		}
		if len(extras) > 0 {
			env.Context = append(extras, env.Context...)
		}
	}

	env.TotalResults = len(env.Context)
	return env
}

func (r *Router) retrieveSingle(ctx context.Context, name, text string, k int, env *Envelope) {
	available, err := r.source.Sources(ctx)
	if err != nil {
		r.logger.Warn("list sources failed", zap.Error(err))
		env.Error = fmt.Sprintf("list sources: %v", err)
		return
	}
	if !slices.Contains(available, name) {
		r.logger.Warn("source not found, using default",
			zap.String("source", name), zap.String("default", r.opts.DefaultSource))
		name = r.opts.DefaultSource
		if !slices.Contains(available, name) {
			env.Error = fmt.Sprintf("%v: %s", knowledge.ErrSourceNotFound, name)
			return
		}
	}

	docs, err := r.query(ctx, name, text, k)
	if err != nil {
		env.Error = err.Error()
		return
	}
	env.Context = docs
	env.SourcesUsed = append(env.SourcesUsed, name)
}

// retrieveAll queries every source concurrently with an even share of k.
// Results are concatenated in source order; failing sources are skipped.
func (r *Router) retrieveAll(ctx context.Context, text string, k int, env *Envelope) {
	names, err := r.source.Sources(ctx)
	if err != nil {
		r.logger.Warn("list sources failed", zap.Error(err))
		env.Error = fmt.Sprintf("list sources: %v", err)
		return
	}
	if len(names) == 0 {
		env.Error = "no knowledge sources available"
		return
	}
	per := max(k/len(names), 1)

	results := make([][]Document, len(names))
	failed := make([]bool, len(names))
	var g errgroup.Group
	for i, name := range names {
		g.Go(func() error {
			docs, err := r.query(ctx, name, text, per)
			if err != nil {
				r.logger.Warn("source skipped", zap.String("source", name), zap.Error(err))
				failed[i] = true
				return nil
			}
			results[i] = docs
			return nil
		})
	}
	g.Wait()

	for i, name := range names {
		if failed[i] {
			continue
		}
		env.SourcesUsed = append(env.SourcesUsed, name)
		env.Context = append(env.Context, results[i]...)
	}
	if len(env.SourcesUsed) == 0 {
		env.Error = "all knowledge sources failed"
	}
}

func (r *Router) retrieveRealtime(ctx context.Context, env *Envelope) {
	if r.realtime == nil {
		env.Error = "no real-time data available"
		return
	}
	docs, err := r.snapshots(ctx)
	if err != nil {
		r.logger.Warn("real-time fetch failed", zap.Error(err))
	}
	if len(docs) == 0 {
		env.Error = "no real-time data available"
		return
	}
	env.Context = docs
	env.SourcesUsed = append(env.SourcesUsed, realtimeOnly)
}

// augment returns up to AugmentLimit passages from a secondary source.
// A missing or failing secondary is ignored.
func (r *Router) augment(ctx context.Context, name, text string, env *Envelope) []Document {
	docs, err := r.query(ctx, name, text, r.opts.AugmentLimit)
	if err != nil {
		r.logger.Debug("augmentation skipped", zap.String("source", name), zap.Error(err))
		return nil
	}
	if len(docs) > 0 {
		env.SourcesUsed = append(env.SourcesUsed, name)
	}
	return docs
}

func (r *Router) overlay(ctx context.Context, env *Envelope) []Document {
	if r.realtime == nil {
		return nil
	}
	docs, err := r.snapshots(ctx)
	if err != nil {
		r.logger.Debug("real-time overlay skipped", zap.Error(err))
		return nil
	}
	if len(docs) > r.opts.AugmentLimit {
		docs = docs[:r.opts.AugmentLimit]
	}
	if len(docs) > 0 {
		env.SourcesUsed = append(env.SourcesUsed, realtimeOnly)
	}
	return docs
}

func (r *Router) snapshots(ctx context.Context) ([]Document, error) {
	start := time.Now()
	snaps, err := realtime.Snapshots(ctx, r.realtime)
	metrics.ObserveSource(realtimeOnly, start, len(snaps), err)
	out := make([]Document, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, Document{Text: s.Text, Score: 1.0, Metadata: s.Metadata, Source: realtimeOnly})
	}
	return out, err
}

func (r *Router) query(ctx context.Context, name, text string, k int) ([]Document, error) {
	start := time.Now()
	passages, err := r.source.Query(ctx, name, text, k)
	metrics.ObserveSource(name, start, len(passages), err)
	if err != nil {
		return nil, err
	}
	out := make([]Document, 0, len(passages))
	for _, p := range passages {
		meta := p.Metadata
		if meta == nil {
			meta = map[string]string{}
		}
		out = append(out, Document{
			Text:     p.Text,
			Score:    max(0, 1-p.Distance),
			Metadata: meta,
			Source:   name,
		})
	}
	return out, nil
}

// boost raises scores of documents whose metadata matches the extracted
// crop or location, caps them at 1 and re-sorts in place.
func boost(docs []Document, c intent.Classification) {
	if len(docs) == 0 || (c.Crop == "" && c.Location == "") {
		return
	}
	for i := range docs {
		d := &docs[i]
		var add float64
		switch c.Category {
		case intent.MarketPrices:
			if matches(d.Metadata, "state", c.Location) {
				add += 0.2
			}
			if matches(d.Metadata, "commodity", c.Crop) {
				add += 0.2
			}
		case intent.IrrigationPlanning, intent.PestControl:
			if matches(d.Metadata, "crop", c.Crop) {
				add += 0.3
			}
		case intent.CropRecommendations:
			if matches(d.Metadata, "region", c.Location) {
				add += 0.2
			}
		default:
			if matches(d.Metadata, "crop", c.Crop) || matches(d.Metadata, "location", c.Location) {
				add += 0.2
			}
		}
		d.Score = min(d.Score+add, 1.0)
	}
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].Score > docs[j].Score })
}

func matches(meta map[string]string, key, entity string) bool {
	if entity == "" {
		return false
	}
	return strings.Contains(strings.ToLower(meta[key]), strings.ToLower(entity))
}
