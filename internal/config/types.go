package config

import "time"

// Config is the runtime configuration of the gateway.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Logging  LoggingConfig  `koanf:"logging"`
	Identity IdentityConfig `koanf:"identity"`
	LLM      LLMConfig      `koanf:"llm"`
	Image    ImageConfig    `koanf:"image"`
	Cache    CacheConfig    `koanf:"cache"`
	Jobs     JobsConfig     `koanf:"jobs"`
}

type ServerConfig struct {
	Port           string        `koanf:"port"`
	Version        string        `koanf:"version"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	MaxBodyBytes   int64         `koanf:"max_body_bytes"`
	ReadTimeout    time.Duration `koanf:"read_timeout"`
	WriteTimeout   time.Duration `koanf:"write_timeout"`
	IdleTimeout    time.Duration `koanf:"idle_timeout"`
}

type LoggingConfig struct {
	Level string `koanf:"level"`
	Env   string `koanf:"env"`
}

// IdentityConfig controls how the caller id is resolved.
type IdentityConfig struct {
	Header         string `koanf:"header"`
	JWTSecret      string `koanf:"jwt_secret"`
	AllowAnonymous bool   `koanf:"allow_anonymous"`
}

// Credentials addresses one upstream backend.
type Credentials struct {
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
}

// UpstreamConfig bounds calls to one family of providers.
type UpstreamConfig struct {
	Timeout     time.Duration `koanf:"timeout"`
	MaxRetries  int           `koanf:"max_retries"`
	BaseBackoff time.Duration `koanf:"base_backoff"`
	RateLimit   float64       `koanf:"rate_limit"` // requests per second, 0 = unlimited
}

type LLMConfig struct {
	Provider       string         `koanf:"provider"`
	FallbackPolicy string         `koanf:"fallback_policy"`
	Paragraphs     int            `koanf:"paragraphs"`
	Upstream       UpstreamConfig `koanf:"upstream"`
	Gemini         Credentials    `koanf:"gemini"`
	OpenAI         Credentials    `koanf:"openai"`
	Groq           Credentials    `koanf:"groq"`
	Anthropic      Credentials    `koanf:"anthropic"`
}

type ImageConfig struct {
	Provider            string            `koanf:"provider"`
	Fallback            bool              `koanf:"fallback"`
	FallbackImageBase64 string            `koanf:"fallback_image_base64"`
	Upstream            UpstreamConfig    `koanf:"upstream"`
	Placeholder         PlaceholderConfig `koanf:"placeholder"`
	AlternateURL        string            `koanf:"alternate_url"`
	Stability           StabilityConfig   `koanf:"stability"`
	Local               LocalConfig       `koanf:"local"`
	Google              Credentials       `koanf:"google"`
}

type PlaceholderConfig struct {
	BaseURL    string `koanf:"base_url"`
	Width      int    `koanf:"width"`
	Height     int    `koanf:"height"`
	MainWidth  int    `koanf:"main_width"`
	MainHeight int    `koanf:"main_height"`
}

type StabilityConfig struct {
	APIKey   string  `koanf:"api_key"`
	BaseURL  string  `koanf:"base_url"`
	Engine   string  `koanf:"engine"`
	CFGScale float64 `koanf:"cfg_scale"`
	Width    int     `koanf:"width"`
	Height   int     `koanf:"height"`
}

// LocalConfig addresses a self-hosted AUTOMATIC1111 instance.
type LocalConfig struct {
	BaseURL string `koanf:"base_url"`
	Steps   int    `koanf:"steps"`
}

type CacheConfig struct {
	Dir           string        `koanf:"dir"`
	TTL           time.Duration `koanf:"ttl"`
	PublicPrefix  string        `koanf:"public_prefix"`
	MaxEntries    int           `koanf:"max_entries"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

type JobsConfig struct {
	Backend   string        `koanf:"backend"` // memory | redis
	Workers   int           `koanf:"workers"`
	QueueSize int           `koanf:"queue_size"`
	Retention time.Duration `koanf:"retention"`
	Provider  string        `koanf:"provider"`
	Redis     RedisConfig   `koanf:"redis"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	Prefix   string `koanf:"prefix"`
}
