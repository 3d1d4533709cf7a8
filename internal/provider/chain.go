package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ChainOptions configures a Chain.
type ChainOptions struct {
	// Budget bounds one Chat call across every provider tried.
	Budget time.Duration
	// MaxFailures consecutive failures open a provider's breaker.
	MaxFailures uint32
	// OpenFor is how long an open breaker rejects calls before probing.
	OpenFor time.Duration
}

// Chain tries an ordered list of providers until one answers. Each provider
// sits behind its own circuit breaker and optional rate limiter.
type Chain struct {
	opts    ChainOptions
	entries []*chainEntry
	byID    map[string]*chainEntry
	mu      sync.RWMutex
	logger  *zap.Logger
}

type chainEntry struct {
	provider Provider
	breaker  *gobreaker.CircuitBreaker
	limiter  *rate.Limiter
}

// ProviderStatus is a read-only view of one chain entry.
type ProviderStatus struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	DefaultModel string `json:"default_model"`
	Breaker      string `json:"breaker"`
}

// NewChain creates an empty provider chain.
func NewChain(opts ChainOptions, logger *zap.Logger) *Chain {
	if opts.Budget == 0 {
		opts.Budget = 60 * time.Second
	}
	if opts.MaxFailures == 0 {
		opts.MaxFailures = 3
	}
	if opts.OpenFor == 0 {
		opts.OpenFor = 30 * time.Second
	}
	return &Chain{
		opts:   opts,
		byID:   make(map[string]*chainEntry),
		logger: logger,
	}
}

// Register appends a provider to the end of the chain. requestsPerMinute of
// zero disables rate limiting for it.
func (c *Chain) Register(p Provider, requestsPerMinute int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	maxFailures := c.opts.MaxFailures
	e := &chainEntry{
		provider: p,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    p.ID(),
			Timeout: c.opts.OpenFor,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= maxFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				c.logger.Warn("provider breaker state changed",
					zap.String("provider", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		}),
	}
	if requestsPerMinute > 0 {
		e.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1)
	}
	c.entries = append(c.entries, e)
	c.byID[p.ID()] = e
	c.logger.Info("registered provider", zap.String("id", p.ID()), zap.String("name", p.Name()))
}

// Get returns a provider by ID.
func (c *Chain) Get(id string) (Provider, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.byID[id]
	if !ok {
		return nil, false
	}
	return e.provider, true
}

// Providers returns the registered providers in chain order.
func (c *Chain) Providers() []Provider {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Provider, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.provider
	}
	return out
}

// Status reports every provider with its breaker state.
func (c *Chain) Status() []ProviderStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ProviderStatus, len(c.entries))
	for i, e := range c.entries {
		out[i] = ProviderStatus{
			ID:           e.provider.ID(),
			Name:         e.provider.Name(),
			Type:         e.provider.Type(),
			DefaultModel: e.provider.DefaultModel(),
			Breaker:      e.breaker.State().String(),
		}
	}
	return out
}

// Available reports whether at least one provider can currently take a call.
func (c *Chain) Available() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, e := range c.entries {
		if e.breaker.State() != gobreaker.StateOpen {
			return true
		}
	}
	return false
}

// Chat sends req through the chain. When prefer names a registered provider
// it is tried first; req.Model only applies to the first provider tried,
// fallbacks use their own default model.
func (c *Chain) Chat(ctx context.Context, req *ChatRequest, prefer string) (*ChatResponse, error) {
	order := c.order(prefer)
	if len(order) == 0 {
		return nil, ErrNoProviders
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Budget)
	defer cancel()

	var errs []error
	for i, e := range order {
		attempt := *req
		if i > 0 {
			attempt.Model = ""
		}
		if attempt.Model != "" {
			if err := e.provider.ValidateModel(attempt.Model); err != nil {
				c.logger.Warn("model rejected, using provider default",
					zap.String("provider", e.provider.ID()), zap.String("model", attempt.Model))
				attempt.Model = ""
			}
		}

		resp, err := c.call(ctx, e, &attempt)
		if err == nil {
			return resp, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", e.provider.ID(), err))
		if ctx.Err() != nil {
			break
		}
		if i < len(order)-1 {
			c.logger.Warn("provider failed, trying next",
				zap.String("provider", e.provider.ID()), zap.Error(err))
		}
	}
	return nil, fmt.Errorf("all providers failed: %w", errors.Join(errs...))
}

func (c *Chain) call(ctx context.Context, e *chainEntry, req *ChatRequest) (*ChatResponse, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}
	out, err := e.breaker.Execute(func() (interface{}, error) {
		return e.provider.Chat(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return out.(*ChatResponse), nil
}

func (c *Chain) order(prefer string) []*chainEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*chainEntry, 0, len(c.entries))
	if p, ok := c.byID[prefer]; ok {
		out = append(out, p)
	}
	for _, e := range c.entries {
		if e.provider.ID() != prefer {
			out = append(out, e)
		}
	}
	return out
}

// New builds a provider from its config by type.
func New(cfg ProviderConfig, logger *zap.Logger) (Provider, error) {
	switch strings.ToLower(cfg.Type) {
	case TypeGroq, TypePerplexity, TypeOpenAI:
		return NewOpenAIProvider(cfg, logger), nil
	case TypeAnthropic:
		return NewAnthropicProvider(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unsupported provider type %q", cfg.Type)
	}
}
