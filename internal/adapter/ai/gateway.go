// Package ai selects an LLM backend and drives generation with fallback and
// backoff.
package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/fairyhunter13/ai-calculator/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/ai-calculator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-calculator/internal/config"
	"github.com/fairyhunter13/ai-calculator/internal/domain"
)

// probePrompt is sent once to a candidate that must prove it can generate
// before it is selected.
const probePrompt = "Test"

// Candidate is one primary backend the gateway may select at startup.
// Candidates are tried in order; a nil Open marks the backend as not
// configured.
type Candidate struct {
	Backend domain.Backend
	Open    func(ctx context.Context) (domain.Provider, error)
	Probe   bool
}

// Gateway routes generation requests to the selected primary backend and an
// optional fallback, retrying the whole chain with exponential waits.
type Gateway struct {
	active   domain.Provider
	fallback domain.Provider
	retry    config.RetryConfig
	timer    backoff.Timer
	counter  *tokencount.Counter
	models   map[domain.Backend]string
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithFallback sets the secondary provider tried after the primary fails on
// every attempt.
func WithFallback(p domain.Provider) Option {
	return func(g *Gateway) { g.fallback = p }
}

// WithRetry overrides attempt count and base delay.
func WithRetry(rc config.RetryConfig) Option {
	return func(g *Gateway) { g.retry = rc }
}

// WithTimer replaces the timer used for waits between attempts.
func WithTimer(t backoff.Timer) Option {
	return func(g *Gateway) { g.timer = t }
}

// WithTokenCounter replaces the counter used for usage metrics.
func WithTokenCounter(c *tokencount.Counter) Option {
	return func(g *Gateway) { g.counter = c }
}

// WithModelNames records model ids per backend for token estimates.
func WithModelNames(m map[domain.Backend]string) Option {
	return func(g *Gateway) { g.models = m }
}

// Initialize selects the active backend exactly once. Each configured
// candidate is opened (and probed if required) in order; the first that works
// wins. ErrNoBackend is returned when none does.
func Initialize(ctx context.Context, candidates []Candidate, opts ...Option) (*Gateway, error) {
	g := &Gateway{
		retry:   config.RetryConfig{MaxRetries: 3, BaseDelay: time.Second},
		counter: tokencount.DefaultCounter,
	}
	for _, o := range opts {
		o(g)
	}
	if g.retry.MaxRetries <= 0 {
		g.retry.MaxRetries = 1
	}

	var causes []error
	for _, c := range candidates {
		if c.Open == nil {
			slog.Debug("ai backend not configured", slog.String("backend", string(c.Backend)))
			continue
		}
		p, err := c.Open(ctx)
		if err == nil && c.Probe {
			_, err = p.Generate(ctx, probePrompt, nil)
		}
		if err != nil {
			slog.Info("ai backend not available", slog.String("backend", string(c.Backend)), slog.Any("error", err))
			causes = append(causes, fmt.Errorf("%s: %w", c.Backend, err))
			continue
		}
		g.active = p
		slog.Info("ai backend selected",
			slog.String("backend", string(p.Name())),
			slog.Bool("fallback", g.fallback != nil))
		return g, nil
	}
	if len(causes) == 0 {
		return nil, fmt.Errorf("op=ai.Initialize: %w", domain.ErrNoBackend)
	}
	return nil, fmt.Errorf("op=ai.Initialize: %w: %w", domain.ErrNoBackend, errors.Join(causes...))
}

// Backend names the active primary backend.
func (g *Gateway) Backend() domain.Backend { return g.active.Name() }

// HasFallback reports whether a secondary provider is configured.
func (g *Gateway) HasFallback() bool { return g.fallback != nil }

func (g *Gateway) chain() []domain.Provider {
	if g.fallback == nil {
		return []domain.Provider{g.active}
	}
	return []domain.Provider{g.active, g.fallback}
}

func (g *Gateway) newBackOff(ctx context.Context) backoff.BackOff {
	base := g.retry.BaseDelay
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = base
	expo.RandomizationFactor = 0
	expo.Multiplier = 2
	expo.MaxInterval = maxInterval(base, g.retry.MaxRetries)
	expo.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(expo, uint64(g.retry.MaxRetries-1)), ctx)
}

// maxInterval is base*2^retries, saturating instead of overflowing.
func maxInterval(base time.Duration, retries int) time.Duration {
	if base <= 0 {
		return 0
	}
	if retries < 0 {
		retries = 0
	}
	if retries >= 63 || base > time.Duration(math.MaxInt64>>uint(retries)) {
		return time.Duration(math.MaxInt64)
	}
	return base << uint(retries)
}

// Generate asks the chain for an answer. Each attempt tries the active backend
// and then the fallback; after a fully failed attempt the gateway waits
// base*2^attempt. Once every attempt has failed the last error is returned
// inside a *domain.GenerationError.
func (g *Gateway) Generate(ctx context.Context, prompt string, img *domain.Image) (string, error) {
	lg := observability.LoggerFromContext(ctx)
	chain := g.chain()

	var (
		text     string
		attempts int
	)
	op := func() error {
		attempt := attempts
		attempts++
		var lastErr error
		for i, p := range chain {
			if err := ctx.Err(); err != nil {
				return backoff.Permanent(err)
			}
			out, err := g.call(ctx, p, prompt, img)
			if err == nil {
				text = out
				return nil
			}
			lastErr = err
			if i+1 < len(chain) {
				lg.Warn("ai backend failed, falling back",
					slog.String("backend", string(p.Name())),
					slog.String("fallback", string(chain[i+1].Name())),
					slog.Int("attempt", attempt+1),
					slog.Any("error", err))
			} else {
				lg.Warn("ai request attempt failed",
					slog.String("backend", string(p.Name())),
					slog.Int("attempt", attempt+1),
					slog.Any("error", err))
			}
		}
		return lastErr
	}
	notify := func(err error, wait time.Duration) {
		observability.AIRetriesTotal.Inc()
		lg.Info("retrying ai request", slog.Duration("wait", wait), slog.Int("next_attempt", attempts+1))
	}

	if err := backoff.RetryNotifyWithTimer(op, g.newBackOff(ctx), notify, g.timer); err != nil {
		lg.Error("ai generation exhausted", slog.Int("attempts", attempts), slog.Any("error", err))
		return "", &domain.GenerationError{Attempts: attempts, Err: err}
	}
	return text, nil
}

func (g *Gateway) call(ctx context.Context, p domain.Provider, prompt string, img *domain.Image) (string, error) {
	start := time.Now()
	out, err := p.Generate(ctx, prompt, img)
	backend := string(p.Name())
	observability.ObserveAIRequest(backend, time.Since(start), err)
	if err != nil {
		return "", err
	}
	u := g.counter.Usage(prompt, out, backend, g.models[p.Name()])
	observability.AddTokenUsage(backend, u.PromptTokens, u.CompletionTokens)
	return out, nil
}
