package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"storygate/internal/apperr"
	"storygate/internal/envelope"
	"storygate/internal/metrics"
	"storygate/internal/narrative"
	"storygate/pkg/logging/logging"
)

// MockProvider is always available and never touches the network.
const MockProvider = "mock"

// FallbackPolicy decides what happens when a real backend fails.
type FallbackPolicy string

const (
	// FallbackSurface reports the failure to the caller.
	FallbackSurface FallbackPolicy = "surface"
	// FallbackSynthesize substitutes a deterministic narrative.
	FallbackSynthesize FallbackPolicy = "synthesize"
)

type RouterConfig struct {
	DefaultProvider string
	Policy          FallbackPolicy
	Paragraphs      int
}

// Result is a normalized narrative and where it came from.
type Result struct {
	Narrative   narrative.Narrative
	Raw         string
	UsedRealLLM bool
	Provider    string
}

// Router dispatches narrative requests to the configured backend.
type Router struct {
	cfg      RouterConfig
	backends map[string]Backend
	logger   *zap.Logger
}

func NewRouter(cfg RouterConfig, logger *zap.Logger, backends ...Backend) *Router {
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = MockProvider
	}
	if cfg.Policy == "" {
		cfg.Policy = FallbackSurface
	}
	if cfg.Paragraphs < 1 {
		cfg.Paragraphs = narrative.DefaultParagraphs
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := make(map[string]Backend, len(backends))
	for _, b := range backends {
		m[b.Name()] = b
	}
	return &Router{cfg: cfg, backends: m, logger: logger.Named("llm")}
}

// DefaultProvider returns the provider used when a request names none.
func (r *Router) DefaultProvider() string { return r.cfg.DefaultProvider }

// Policy returns the configured fallback policy.
func (r *Router) Policy() FallbackPolicy { return r.cfg.Policy }

// Providers lists the provider ids that can be routed to.
func (r *Router) Providers() []string {
	out := []string{MockProvider}
	for name := range r.backends {
		out = append(out, name)
	}
	sort.Strings(out[1:])
	return out
}

// RouteNarrative returns the raw model text for env and whether it came from a real model.
func (r *Router) RouteNarrative(ctx context.Context, env any, provider string) (string, bool, error) {
	if provider == "" {
		provider = r.cfg.DefaultProvider
	}
	prompt := envelope.Extract(env)

	if provider == MockProvider {
		return r.synthetic(prompt), false, nil
	}

	backend, ok := r.backends[provider]
	if !ok {
		return "", false, apperr.Validation(fmt.Sprintf("llm provider %q is not configured", provider))
	}

	req := Request{
		System:   envelope.SystemInstruction(env),
		User:     prompt,
		Envelope: env,
	}
	if err := req.Validate(); err != nil {
		return "", false, apperr.Wrap(apperr.KindValidation, "no prompt found in payload", err)
	}

	logger := logging.L(ctx).With(zap.String("llm_provider", provider))
	start := time.Now()
	raw, err := backend.Generate(ctx, req)
	if err == nil {
		logger.Info("llm_generate",
			zap.Int("raw_len", len(raw)),
			zap.Duration("latency", time.Since(start)),
		)
		return raw, true, nil
	}

	// Caller went away: nothing to fall back for
	if ctx.Err() != nil {
		return "", false, ctx.Err()
	}

	if r.cfg.Policy == FallbackSynthesize {
		metrics.ProviderFallbacksTotal.WithLabelValues(provider).Inc()
		logger.Warn("llm provider failed, synthesizing narrative", zap.Error(err))
		return r.synthetic(prompt), false, nil
	}

	logger.Error("llm provider failed", zap.Error(err))
	return "", false, apperr.Wrap(apperr.KindUpstream, "narrative provider failed", err)
}

// Generate routes env and normalizes the result.
func (r *Router) Generate(ctx context.Context, env any, provider string) (Result, error) {
	if provider == "" {
		provider = r.cfg.DefaultProvider
	}
	raw, used, err := r.RouteNarrative(ctx, env, provider)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Narrative:   narrative.Normalize(raw, env),
		Raw:         raw,
		UsedRealLLM: used,
		Provider:    provider,
	}, nil
}

func (r *Router) synthetic(prompt string) string {
	b, err := json.Marshal(narrative.Synthetic(prompt, r.cfg.Paragraphs))
	if err != nil {
		return ""
	}
	return string(b)
}
