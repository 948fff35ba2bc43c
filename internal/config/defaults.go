package config

import "time"

// FallbackImageBase64 is a 1x1 PNG served when no provider can produce an image.
const FallbackImageBase64 = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR4nGNgYAAAAAMAAWgmWQ0AAAAASUVORK5CYII="

// DefaultConfig returns the baseline configuration before files and env are applied.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:           "8080",
			Version:        "v1",
			RequestTimeout: 120 * time.Second,
			MaxBodyBytes:   1 << 20,
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   130 * time.Second,
			IdleTimeout:    60 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
			Env:   "production",
		},
		Identity: IdentityConfig{
			Header:         "X-User-ID",
			AllowAnonymous: false,
		},
		LLM: LLMConfig{
			Provider:       "mock",
			FallbackPolicy: "surface",
			Paragraphs:     4,
			Upstream: UpstreamConfig{
				Timeout:     60 * time.Second,
				MaxRetries:  2,
				BaseBackoff: 200 * time.Millisecond,
			},
			Gemini: Credentials{
				BaseURL: "https://generativelanguage.googleapis.com/v1beta",
				Model:   "gemini-2.0-flash",
			},
			OpenAI: Credentials{
				BaseURL: "https://api.openai.com/v1",
				Model:   "gpt-4o-mini",
			},
			Groq: Credentials{
				BaseURL: "https://api.groq.com/openai/v1",
				Model:   "llama-3.1-8b-instant",
			},
			Anthropic: Credentials{
				BaseURL: "https://api.anthropic.com/v1",
				Model:   "claude-3-5-haiku-latest",
			},
		},
		Image: ImageConfig{
			Provider:            "free",
			Fallback:            false,
			FallbackImageBase64: FallbackImageBase64,
			Upstream: UpstreamConfig{
				Timeout:     90 * time.Second,
				MaxRetries:  2,
				BaseBackoff: 250 * time.Millisecond,
			},
			Placeholder: PlaceholderConfig{
				BaseURL:    "https://picsum.photos",
				Width:      800,
				Height:     450,
				MainWidth:  1200,
				MainHeight: 675,
			},
			Stability: StabilityConfig{
				BaseURL:  "https://api.stability.ai",
				Engine:   "stable-diffusion-xl-1024-v1-0",
				CFGScale: 7,
				Width:    1024,
				Height:   1024,
			},
			Local: LocalConfig{
				BaseURL: "http://127.0.0.1:7860",
				Steps:   20,
			},
			Google: Credentials{
				BaseURL: "https://generativelanguage.googleapis.com/v1beta",
				Model:   "imagen-3.0-generate-002",
			},
		},
		Cache: CacheConfig{
			Dir:          "./static/uploads",
			TTL:          24 * time.Hour,
			PublicPrefix: "/static/uploads",
		},
		Jobs: JobsConfig{
			Backend:   "memory",
			Workers:   4,
			QueueSize: 64,
			Provider:  "stability",
			Redis: RedisConfig{
				Addr:   "127.0.0.1:6379",
				Prefix: "storygate",
			},
		},
	}
}

// structToMap converts DefaultConfig into a map for the koanf confmap provider.
func structToMap(cfg Config) map[string]any {
	upstream := func(u UpstreamConfig) map[string]any {
		return map[string]any{
			"timeout":      u.Timeout,
			"max_retries":  u.MaxRetries,
			"base_backoff": u.BaseBackoff,
			"rate_limit":   u.RateLimit,
		}
	}
	creds := func(c Credentials) map[string]any {
		return map[string]any{
			"api_key":  c.APIKey,
			"base_url": c.BaseURL,
			"model":    c.Model,
		}
	}

	return map[string]any{
		"server": map[string]any{
			"port":            cfg.Server.Port,
			"version":         cfg.Server.Version,
			"request_timeout": cfg.Server.RequestTimeout,
			"max_body_bytes":  cfg.Server.MaxBodyBytes,
			"read_timeout":    cfg.Server.ReadTimeout,
			"write_timeout":   cfg.Server.WriteTimeout,
			"idle_timeout":    cfg.Server.IdleTimeout,
		},
		"logging": map[string]any{
			"level": cfg.Logging.Level,
			"env":   cfg.Logging.Env,
		},
		"identity": map[string]any{
			"header":          cfg.Identity.Header,
			"jwt_secret":      cfg.Identity.JWTSecret,
			"allow_anonymous": cfg.Identity.AllowAnonymous,
		},
		"llm": map[string]any{
			"provider":        cfg.LLM.Provider,
			"fallback_policy": cfg.LLM.FallbackPolicy,
			"paragraphs":      cfg.LLM.Paragraphs,
			"upstream":        upstream(cfg.LLM.Upstream),
			"gemini":          creds(cfg.LLM.Gemini),
			"openai":          creds(cfg.LLM.OpenAI),
			"groq":            creds(cfg.LLM.Groq),
			"anthropic":       creds(cfg.LLM.Anthropic),
		},
		"image": map[string]any{
			"provider":              cfg.Image.Provider,
			"fallback":              cfg.Image.Fallback,
			"fallback_image_base64": cfg.Image.FallbackImageBase64,
			"upstream":              upstream(cfg.Image.Upstream),
			"placeholder": map[string]any{
				"base_url":    cfg.Image.Placeholder.BaseURL,
				"width":       cfg.Image.Placeholder.Width,
				"height":      cfg.Image.Placeholder.Height,
				"main_width":  cfg.Image.Placeholder.MainWidth,
				"main_height": cfg.Image.Placeholder.MainHeight,
			},
			"alternate_url": cfg.Image.AlternateURL,
			"stability": map[string]any{
				"api_key":   cfg.Image.Stability.APIKey,
				"base_url":  cfg.Image.Stability.BaseURL,
				"engine":    cfg.Image.Stability.Engine,
				"cfg_scale": cfg.Image.Stability.CFGScale,
				"width":     cfg.Image.Stability.Width,
				"height":    cfg.Image.Stability.Height,
			},
			"local": map[string]any{
				"base_url": cfg.Image.Local.BaseURL,
				"steps":    cfg.Image.Local.Steps,
			},
			"google": creds(cfg.Image.Google),
		},
		"cache": map[string]any{
			"dir":            cfg.Cache.Dir,
			"ttl":            cfg.Cache.TTL,
			"public_prefix":  cfg.Cache.PublicPrefix,
			"max_entries":    cfg.Cache.MaxEntries,
			"sweep_interval": cfg.Cache.SweepInterval,
		},
		"jobs": map[string]any{
			"backend":    cfg.Jobs.Backend,
			"workers":    cfg.Jobs.Workers,
			"queue_size": cfg.Jobs.QueueSize,
			"retention":  cfg.Jobs.Retention,
			"provider":   cfg.Jobs.Provider,
			"redis": map[string]any{
				"addr":     cfg.Jobs.Redis.Addr,
				"password": cfg.Jobs.Redis.Password,
				"db":       cfg.Jobs.Redis.DB,
				"prefix":   cfg.Jobs.Redis.Prefix,
			},
		},
	}
}
