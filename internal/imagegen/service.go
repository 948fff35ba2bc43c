package imagegen

import (
	"context"
	"time"

	"go.uber.org/zap"

	"storygate/internal/apperr"
	"storygate/internal/cache"
	"storygate/internal/envelope"
	"storygate/pkg/logging/logging"
)

// Outcome is the result of one image pipeline run.
type Outcome struct {
	Key      string
	Provider string
	Images   [][]byte
	Files    []string
	URLs     []string
	Cached   bool
}

type ServiceConfig struct {
	TTL time.Duration
	// JobProvider is preferred by background jobs that name no provider.
	JobProvider string
}

// Service runs the image path: extract, fingerprint, cache lookup, route, cache store.
type Service struct {
	cfg    ServiceConfig
	cache  cache.ImageCache
	router *Router
	main   Provider
	logger *zap.Logger
}

// NewService wires the pipeline. main renders the uncached main scene image.
func NewService(cfg ServiceConfig, c cache.ImageCache, router *Router, main Provider, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{cfg: cfg, cache: c, router: router, main: main, logger: logger.Named("image_pipeline")}
}

func (s *Service) Router() *Router { return s.router }

// Generate serves a synchronous image request.
func (s *Service) Generate(ctx context.Context, env any, provider string) (Outcome, error) {
	if provider == "" {
		provider = s.router.DefaultProvider()
	}
	return s.run(ctx, env, provider, false, func(req Request) (Generated, error) {
		return s.router.Route(ctx, req, provider)
	})
}

// GenerateForJob runs the background variant: the preferred provider first,
// then the placeholder whatever the fallback setting. The fingerprint uses the
// same provider a synchronous request would, so a finished job warms the cache for it.
func (s *Service) GenerateForJob(ctx context.Context, env any, provider string) (Outcome, error) {
	keyProvider := provider
	if keyProvider == "" {
		keyProvider = s.router.DefaultProvider()
	}
	preferred := provider
	if preferred == "" && s.cfg.JobProvider != "" && s.router.Has(s.cfg.JobProvider) {
		preferred = s.cfg.JobProvider
	}
	if preferred == "" {
		preferred = keyProvider
	}
	return s.run(ctx, env, keyProvider, true, func(req Request) (Generated, error) {
		return s.router.Chain(ctx, req, preferred, ProviderFree)
	})
}

// run stores the generated images under the fingerprint of provider. Images
// from a fallback provider are only stored when storeFallback is set.
func (s *Service) run(ctx context.Context, env any, provider string, storeFallback bool, route func(Request) (Generated, error)) (Outcome, error) {
	parsed := envelope.Parse(env)
	if parsed.Prompt == "" {
		return Outcome{}, apperr.Validation("no prompt found in payload")
	}
	logger := logging.L(ctx)

	key := cache.Key(parsed.Prompt, provider, parsed.Params)
	hit, ok, err := s.cache.Get(ctx, key, s.cfg.TTL)
	if err != nil {
		logger.Warn("image cache lookup failed, treating as miss", zap.String("key", key), zap.Error(err))
	}
	if ok {
		return Outcome{
			Key:      key,
			Provider: provider,
			Images:   hit.Images,
			Files:    hit.Entry.Files,
			URLs:     s.urls(hit.Entry.Files),
			Cached:   true,
		}, nil
	}

	req := Request{
		Prompt:      parsed.Prompt,
		Envelope:    env,
		SampleCount: envelope.SampleCount(parsed.Params),
		AspectRatio: envelope.AspectRatio(parsed.Params),
	}
	gen, err := route(req)
	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{Key: key, Provider: gen.Provider, Images: gen.Images}
	if gen.Static {
		return out, nil
	}
	if gen.Provider != provider && !storeFallback {
		logger.Debug("fallback images not cached", zap.String("key", key), zap.String("provider", gen.Provider))
		return out, nil
	}

	entry, err := s.cache.Put(ctx, key, gen.Images, parsed.Prompt)
	if err != nil {
		// Serve the images anyway; the next request misses.
		logger.Error("image cache write failed", zap.String("key", key), zap.Error(err))
		return out, nil
	}
	out.Files = entry.Files
	out.URLs = s.urls(entry.Files)
	return out, nil
}

// MainImage renders the larger placeholder scene image. It is never cached.
func (s *Service) MainImage(ctx context.Context, env any) ([][]byte, error) {
	prompt := envelope.Extract(env)
	if prompt == "" {
		return nil, apperr.Validation("no prompt found in payload")
	}
	images, err := s.main.Generate(ctx, Request{Prompt: prompt, SampleCount: 1})
	if err == nil && len(images) > 0 {
		return images, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err == nil {
		err = ErrNoImages
	}
	if s.router.cfg.Fallback && len(s.router.cfg.FallbackImage) > 0 {
		logging.L(ctx).Warn("main image failed, serving static fallback", zap.Error(err))
		return [][]byte{s.router.cfg.FallbackImage}, nil
	}
	return nil, classify(ProviderFree, err)
}

func (s *Service) urls(files []string) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, s.cache.URL(f))
	}
	return out
}
