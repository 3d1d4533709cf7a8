package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nidhogg/agri-assist/internal/api"
	"github.com/nidhogg/agri-assist/internal/config"
	"github.com/nidhogg/agri-assist/internal/embedding"
	"github.com/nidhogg/agri-assist/internal/events"
	"github.com/nidhogg/agri-assist/internal/generation"
	"github.com/nidhogg/agri-assist/internal/intent"
	"github.com/nidhogg/agri-assist/internal/knowledge"
	"github.com/nidhogg/agri-assist/internal/provider"
	"github.com/nidhogg/agri-assist/internal/realtime"
	"github.com/nidhogg/agri-assist/internal/retrieval"
	"github.com/nidhogg/agri-assist/internal/store"
	"github.com/nidhogg/agri-assist/internal/vectorstore"
	"github.com/nidhogg/agri-assist/internal/workflow"
)

const weatherCachePrefix = "agri:weather:"

// app is the fully wired service shared by every subcommand.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	chain     *provider.Chain
	router    *retrieval.Router
	workflows *workflow.Orchestrator
	eventLog  api.EventLog
	closers   []func()
}

func seconds(n int) time.Duration      { return time.Duration(n) * time.Second }
func milliseconds(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	a.chain = newChain(cfg, logger)
	gen := generation.NewClient(a.chain, generation.Options{
		Temperature: cfg.Generation.Temperature,
		MaxTokens:   cfg.Generation.MaxTokens,
	}, logger)

	resolver := intent.NewResolver(gen, intent.Options{
		Remote:              cfg.Intent.Remote,
		RemoteComplexity:    cfg.Intent.RemoteComplexity,
		ComplexityThreshold: cfg.Intent.ComplexityThreshold,
		AcceptConfidence:    cfg.Intent.AcceptConfidence,
		MinSubtasks:         cfg.Intent.MinSubtasks,
		MaxSubtasks:         cfg.Intent.MaxSubtasks,
		MaxWords:            cfg.Intent.MaxWords,
	}, logger)

	src, err := a.knowledgeSource(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	var rdb *redis.Client
	if cfg.Database.Redis.URL != "" {
		rdb, err = events.Dial(ctx, cfg.Database.Redis.URL)
		if err != nil {
			logger.Warn("Redis unavailable, running without weather cache and event streams", zap.Error(err))
		} else {
			a.closers = append(a.closers, func() { rdb.Close() })
		}
	}

	var rt realtime.Provider
	if cfg.Realtime.Enabled {
		rt = realtime.NewOpenMeteo(cfg.Realtime)
		if rdb != nil {
			rt = realtime.NewCache(rt, rdb, weatherCachePrefix, seconds(cfg.Realtime.CacheTTLSeconds), logger)
		}
		logger.Info("Real-time weather enabled", zap.String("location", cfg.Realtime.Location))
	}

	a.router = retrieval.NewRouter(src, rt, retrieval.Options{
		DefaultSource: cfg.Retrieval.DefaultSource,
		TopK:          cfg.Retrieval.TopK,
		AugmentLimit:  cfg.Retrieval.AugmentLimit,
	}, logger)

	var pub workflow.Publisher
	if rdb != nil {
		bus := events.NewBus(rdb, cfg.Workflow.EventsStream, logger)
		pub = bus
		a.eventLog = bus
	}

	w := cfg.Workflow
	a.workflows = workflow.New(resolver, a.router, gen, workflow.NewMemoryStore(), pub, workflow.Config{
		TopK:             cfg.Retrieval.TopK,
		StepDelay:        milliseconds(w.StepDelayMs),
		CleanupGrace:     seconds(w.CleanupGraceSeconds),
		Retry:            workflow.RetryPolicy{MaxRetries: w.SummaryRetries, Backoff: milliseconds(w.RetryBackoffMs)},
		SummaryMaxTokens: cfg.Generation.SummaryMaxTokens,
		JanitorInterval:  seconds(w.JanitorIntervalSeconds),
		Retention:        time.Duration(w.RetentionMinutes) * time.Minute,
	}, logger)

	return a, nil
}

// newChain registers the configured providers in chain order. Providers
// without an API key are skipped.
func newChain(cfg *config.Config, logger *zap.Logger) *provider.Chain {
	chain := provider.NewChain(provider.ChainOptions{
		Budget:      seconds(cfg.Generation.TimeoutSeconds),
		MaxFailures: cfg.Generation.Breaker.MaxFailures,
		OpenFor:     seconds(cfg.Generation.Breaker.OpenSeconds),
	}, logger)

	byID := make(map[string]config.ProviderConfig, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		byID[pc.ID] = pc
	}
	for _, id := range cfg.Generation.Chain {
		pc, ok := byID[id]
		if !ok {
			logger.Warn("chain references unknown provider", zap.String("id", id))
			continue
		}
		if pc.APIKey == "" {
			logger.Warn("provider has no API key, skipping", zap.String("id", id))
			continue
		}
		p, err := provider.New(provider.ProviderConfig{
			ID:       pc.ID,
			Type:     pc.Type,
			Name:     pc.Name,
			Endpoint: pc.Endpoint,
			APIKey:   pc.APIKey,
			Models:   pc.Models,
			Timeout:  seconds(pc.TimeoutSeconds),
		}, logger)
		if err != nil {
			logger.Warn("unknown provider type", zap.String("id", pc.ID), zap.String("type", pc.Type))
			continue
		}
		chain.Register(p, pc.RequestsPerMinute)
	}
	if !chain.Available() {
		logger.Warn("no generation providers configured, answers will use local fallbacks")
	}
	return chain
}

func (a *app) knowledgeSource(ctx context.Context) (knowledge.Source, error) {
	cfg := a.cfg
	switch cfg.Retrieval.Backend {
	case "postgres":
		db, err := store.New(ctx, cfg.Database.Postgres.DSN, a.logger)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		if err := db.Migrate(ctx, cfg.Database.Postgres.Migrations); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		a.logger.Info("Knowledge backend: postgres full-text")
		return knowledge.NewPostgresSource(db), nil

	case "qdrant":
		emb, err := embedding.New(embedding.Config{
			Provider:  cfg.Embedding.Provider,
			Endpoint:  cfg.Embedding.Endpoint,
			Model:     cfg.Embedding.Model,
			APIKey:    cfg.Embedding.APIKey,
			Dimension: cfg.Embedding.Dimension,
		})
		if err != nil {
			return nil, err
		}
		vs, err := vectorstore.NewClient(vectorstore.QdrantConfig{
			Host: cfg.Database.Qdrant.Host,
			Port: cfg.Database.Qdrant.Port,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { vs.Close() })
		a.logger.Info("Knowledge backend: qdrant",
			zap.String("host", cfg.Database.Qdrant.Host), zap.Int("port", cfg.Database.Qdrant.Port))
		return knowledge.NewQdrantSource(emb, vs, a.logger), nil

	default:
		return nil, fmt.Errorf("unsupported retrieval backend %q", cfg.Retrieval.Backend)
	}
}

// Close releases connections in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
