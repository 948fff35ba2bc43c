// Package app assembles the gateway from its configuration.
package app

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"storygate/internal/cache"
	"storygate/internal/config"
	"storygate/internal/handlers"
	"storygate/internal/httpserver"
	"storygate/internal/identity"
	"storygate/internal/imagegen"
	"storygate/internal/jobs"
	"storygate/internal/llm"
	"storygate/internal/upstream"
)

// App is a fully wired gateway.
type App struct {
	Config   config.Config
	Logger   *zap.Logger
	Disk     *cache.Disk
	Cache    cache.ImageCache
	LLM      *llm.Router
	Images   *imagegen.Router
	Pipeline *imagegen.Service
	Jobs     *jobs.Manager
	Sweeper  *cache.Sweeper
	Handler  http.Handler

	clients []*upstream.Client
}

// Build wires every component. store holds job records; the caller owns its backend.
func Build(cfg config.Config, store jobs.Store, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}

	disk, err := cache.NewDisk(cfg.Cache.Dir, cfg.Cache.PublicPrefix)
	if err != nil {
		return nil, fmt.Errorf("app: image cache: %w", err)
	}
	a.Disk = disk
	a.Cache = cache.NewLoggingCache(disk)
	if cfg.Cache.SweepInterval > 0 {
		a.Sweeper = cache.NewSweeper(disk, cfg.Cache.TTL, cfg.Cache.MaxEntries, cfg.Cache.SweepInterval, logger)
	}

	if a.LLM, err = a.buildLLM(); err != nil {
		a.closeClients()
		return nil, err
	}

	free, main, err := a.buildPlaceholders()
	if err != nil {
		a.closeClients()
		return nil, err
	}
	if a.Images, err = a.buildImages(free); err != nil {
		a.closeClients()
		return nil, err
	}
	a.Pipeline = imagegen.NewService(imagegen.ServiceConfig{
		TTL:         cfg.Cache.TTL,
		JobProvider: cfg.Jobs.Provider,
	}, a.Cache, a.Images, main, logger)

	a.Jobs = jobs.NewManager(jobs.Config{
		Workers:   cfg.Jobs.Workers,
		QueueSize: cfg.Jobs.QueueSize,
		Timeout:   cfg.Image.Upstream.Timeout * 2,
	}, store, a.Pipeline, logger)

	resolver := identity.Resolver{
		Header:         cfg.Identity.Header,
		AllowAnonymous: cfg.Identity.AllowAnonymous,
	}
	if cfg.Identity.JWTSecret != "" {
		resolver.Tokens = &identity.TokenService{Secret: []byte(cfg.Identity.JWTSecret)}
	}

	r := chi.NewRouter()
	httpserver.SetupRouter(r, logger, httpserver.Handlers{
		Narrative: handlers.NewNarrativeHandler(a.LLM),
		Image:     handlers.NewImageHandler(a.Pipeline),
		Jobs:      handlers.NewJobHandler(a.Jobs),
		Cache:     handlers.NewCacheHandler(a.Cache, a.Images.DefaultProvider()),
		Status:    handlers.NewStatusHandler(a.LLM, a.Images),
	}, httpserver.Options{
		Version:        cfg.Server.Version,
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		Identity:       resolver,
		StaticDir:      disk.Dir(),
		StaticPrefix:   cfg.Cache.PublicPrefix,
	})
	a.Handler = r

	return a, nil
}

// Start launches the job workers and, when configured, the cache sweeper.
func (a *App) Start(ctx context.Context) {
	a.Jobs.Start(ctx)
	if a.Sweeper != nil {
		a.Sweeper.Start()
	}
}

// Shutdown drains jobs and releases upstream connections.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if err := a.Jobs.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if a.Sweeper != nil {
		_ = a.Sweeper.Close()
	}
	a.closeClients()
	return errors.Join(errs...)
}

func (a *App) client(name string, u config.UpstreamConfig) (*upstream.Client, error) {
	c, err := upstream.New(upstream.Config{
		Name:        name,
		Timeout:     u.Timeout,
		MaxRetries:  u.MaxRetries,
		BaseBackoff: u.BaseBackoff,
		RateLimit:   u.RateLimit,
	}, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("app: upstream %s: %w", name, err)
	}
	a.clients = append(a.clients, c)
	return c, nil
}

func (a *App) closeClients() {
	for _, c := range a.clients {
		_ = c.Close()
	}
	a.clients = nil
}

func (a *App) buildLLM() (*llm.Router, error) {
	cfg := a.Config.LLM
	var backends []llm.Backend

	add := func(name string, creds config.Credentials, build func(*upstream.Client) llm.Backend) error {
		if creds.APIKey == "" {
			return nil
		}
		c, err := a.client(name, cfg.Upstream)
		if err != nil {
			return err
		}
		backends = append(backends, build(c))
		return nil
	}

	err := errors.Join(
		add("gemini", cfg.Gemini, func(c *upstream.Client) llm.Backend {
			return llm.NewGemini(c, cfg.Gemini.BaseURL, cfg.Gemini.Model, cfg.Gemini.APIKey)
		}),
		add("openai", cfg.OpenAI, func(c *upstream.Client) llm.Backend {
			return llm.NewOpenAI("openai", c, cfg.OpenAI.BaseURL, cfg.OpenAI.Model, cfg.OpenAI.APIKey)
		}),
		add("groq", cfg.Groq, func(c *upstream.Client) llm.Backend {
			return llm.NewOpenAI("groq", c, cfg.Groq.BaseURL, cfg.Groq.Model, cfg.Groq.APIKey)
		}),
		add("anthropic", cfg.Anthropic, func(c *upstream.Client) llm.Backend {
			return llm.NewAnthropic(c, cfg.Anthropic.BaseURL, cfg.Anthropic.Model, cfg.Anthropic.APIKey)
		}),
	)
	if err != nil {
		return nil, err
	}

	return llm.NewRouter(llm.RouterConfig{
		DefaultProvider: cfg.Provider,
		Policy:          llm.FallbackPolicy(cfg.FallbackPolicy),
		Paragraphs:      cfg.Paragraphs,
	}, a.Logger, backends...), nil
}

func (a *App) buildPlaceholders() (free, main *imagegen.Placeholder, err error) {
	p := a.Config.Image.Placeholder
	c, err := a.client(imagegen.ProviderFree, a.Config.Image.Upstream)
	if err != nil {
		return nil, nil, err
	}
	free = imagegen.NewPlaceholder(c, p.BaseURL, p.Width, p.Height)
	main = imagegen.NewPlaceholder(c, p.BaseURL, p.MainWidth, p.MainHeight)
	return free, main, nil
}

func (a *App) buildImages(free imagegen.Provider) (*imagegen.Router, error) {
	cfg := a.Config.Image
	providers := []imagegen.Provider{free}

	if cfg.AlternateURL != "" {
		c, err := a.client(imagegen.ProviderAlternate, cfg.Upstream)
		if err != nil {
			return nil, err
		}
		providers = append(providers, imagegen.NewAlternate(c, cfg.AlternateURL))
	}
	if cfg.Stability.APIKey != "" {
		c, err := a.client(imagegen.ProviderStability, cfg.Upstream)
		if err != nil {
			return nil, err
		}
		providers = append(providers, imagegen.NewStability(c, imagegen.StabilityOptions{
			BaseURL:  cfg.Stability.BaseURL,
			Engine:   cfg.Stability.Engine,
			APIKey:   cfg.Stability.APIKey,
			CFGScale: cfg.Stability.CFGScale,
			Width:    cfg.Stability.Width,
			Height:   cfg.Stability.Height,
		}))
	}
	if cfg.Local.BaseURL != "" {
		c, err := a.client(imagegen.ProviderLocal, cfg.Upstream)
		if err != nil {
			return nil, err
		}
		providers = append(providers, imagegen.NewLocal(c, cfg.Local.BaseURL, cfg.Local.Steps))
	}
	if cfg.Google.APIKey != "" {
		c, err := a.client(imagegen.ProviderGoogle, cfg.Upstream)
		if err != nil {
			return nil, err
		}
		providers = append(providers, imagegen.NewImagen(c, cfg.Google.BaseURL, cfg.Google.Model, cfg.Google.APIKey))
	}

	var fallbackImage []byte
	if cfg.FallbackImageBase64 != "" {
		b, err := base64.StdEncoding.DecodeString(cfg.FallbackImageBase64)
		if err != nil {
			return nil, fmt.Errorf("app: image.fallback_image_base64: %w", err)
		}
		fallbackImage = b
	}

	return imagegen.NewRouter(imagegen.RouterConfig{
		DefaultProvider: cfg.Provider,
		Fallback:        cfg.Fallback,
		FallbackImage:   fallbackImage,
	}, a.Logger, providers...), nil
}
