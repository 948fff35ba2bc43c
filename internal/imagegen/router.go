package imagegen

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"storygate/internal/apperr"
	"storygate/internal/metrics"
	"storygate/internal/upstream"
	"storygate/pkg/logging/logging"
)

type RouterConfig struct {
	DefaultProvider string
	// Fallback enables the placeholder provider and then FallbackImage
	// when the requested provider fails.
	Fallback      bool
	FallbackImage []byte
}

// Generated is the output of a routed generation.
type Generated struct {
	Images   [][]byte
	Provider string
	// Static is set when the configured fallback image was returned.
	Static bool
}

// Router dispatches image requests to providers by id.
type Router struct {
	cfg       RouterConfig
	providers map[string]Provider
	logger    *zap.Logger
}

// NewRouter registers providers by Name. A provider absent from the router
// (typically for lack of credentials) is reported as not configured.
func NewRouter(cfg RouterConfig, logger *zap.Logger, providers ...Provider) *Router {
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = ProviderFree
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := make(map[string]Provider, len(providers))
	for _, p := range providers {
		m[p.Name()] = p
	}
	return &Router{cfg: cfg, providers: m, logger: logger.Named("imagegen")}
}

func (r *Router) DefaultProvider() string { return r.cfg.DefaultProvider }

// FallbackEnabled reports whether failed providers fall back.
func (r *Router) FallbackEnabled() bool { return r.cfg.Fallback }

// Providers lists registered provider ids.
func (r *Router) Providers() []string {
	out := make([]string, 0, len(r.providers))
	for name := range r.providers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Has reports whether provider is registered.
func (r *Router) Has(provider string) bool {
	_, ok := r.providers[provider]
	return ok
}

// Route generates with provider. With fallback enabled a failure moves on to
// the placeholder provider and finally to the static fallback image.
func (r *Router) Route(ctx context.Context, req Request, provider string) (Generated, error) {
	if provider == "" {
		provider = r.cfg.DefaultProvider
	}
	chain := []string{provider}
	if r.cfg.Fallback {
		chain = append(chain, ProviderFree)
	}
	return r.run(ctx, req, chain, r.cfg.Fallback)
}

// Chain tries each provider in order regardless of the fallback setting.
// The static image still closes the chain when fallback is enabled.
func (r *Router) Chain(ctx context.Context, req Request, providers ...string) (Generated, error) {
	if len(providers) == 0 {
		providers = []string{r.cfg.DefaultProvider}
	}
	return r.run(ctx, req, providers, r.cfg.Fallback)
}

func (r *Router) run(ctx context.Context, req Request, chain []string, static bool) (Generated, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return Generated{}, apperr.Validation("no prompt found in payload")
	}
	logger := logging.L(ctx)

	var firstErr error
	seen := make(map[string]bool, len(chain))
	for i, name := range chain {
		if seen[name] {
			continue
		}
		seen[name] = true

		p, ok := r.providers[name]
		if !ok {
			err := apperr.Validation(fmt.Sprintf("image provider %q is not configured", name))
			if i == 0 {
				return Generated{}, err
			}
			continue
		}

		start := time.Now()
		images, err := p.Generate(ctx, req)
		if err == nil && len(images) == 0 {
			err = ErrNoImages
		}
		if err == nil {
			if i > 0 {
				metrics.ProviderFallbacksTotal.WithLabelValues(chain[0]).Inc()
			}
			logger.Info("image_generate",
				zap.String("image_provider", name),
				zap.Int("images", len(images)),
				zap.Duration("latency", time.Since(start)),
			)
			return Generated{Images: images, Provider: name}, nil
		}

		if ctx.Err() != nil {
			return Generated{}, ctx.Err()
		}

		err = classify(name, err)
		if firstErr == nil {
			firstErr = err
		}
		logger.Warn("image provider failed",
			zap.String("image_provider", name),
			zap.String("kind", string(apperr.KindOf(err))),
			zap.Error(err),
		)
	}

	if static && len(r.cfg.FallbackImage) > 0 {
		metrics.ProviderFallbacksTotal.WithLabelValues(chain[0]).Inc()
		logger.Warn("serving static fallback image", zap.String("image_provider", chain[0]))
		return Generated{Images: [][]byte{r.cfg.FallbackImage}, Provider: providerStatic, Static: true}, nil
	}
	return Generated{}, firstErr
}

// classify maps a provider error to an apperr kind. Billing failures are
// reported as entitlement errors whatever status the provider used.
func classify(provider string, err error) error {
	var aerr *apperr.Error
	if errors.As(err, &aerr) {
		return err
	}
	if RequiresBilling(err) {
		return apperr.Wrap(apperr.KindEntitlement, fmt.Sprintf("image provider %q requires a billed account", provider), err)
	}
	return apperr.Wrap(apperr.KindUpstream, fmt.Sprintf("image provider %q failed", provider), err)
}

// RequiresBilling reports whether err is an upstream refusal for lack of billing.
func RequiresBilling(err error) bool {
	serr, ok := upstream.AsStatusError(err)
	if !ok {
		return false
	}
	if serr.StatusCode == http.StatusPaymentRequired {
		return true
	}
	body := strings.ToLower(string(serr.Body) + " " + serr.Message)
	return strings.Contains(body, "billed") || strings.Contains(body, "billing")
}
