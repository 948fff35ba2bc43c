package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	LLMProviders   = []string{"mock", "gemini", "openai", "groq", "anthropic"}
	ImageProviders = []string{"free", "alternate", "stability", "local", "google"}
	FallbackModes  = []string{"surface", "synthesize"}
	JobBackends    = []string{"memory", "redis"}
)

// Validate rejects configurations the gateway cannot run with.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Server.Port) == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("server.max_body_bytes must be positive"))
	}
	if !slices.Contains(LLMProviders, c.LLM.Provider) {
		errs = append(errs, fmt.Errorf("llm.provider %q is not one of %v", c.LLM.Provider, LLMProviders))
	}
	if !slices.Contains(FallbackModes, c.LLM.FallbackPolicy) {
		errs = append(errs, fmt.Errorf("llm.fallback_policy %q is not one of %v", c.LLM.FallbackPolicy, FallbackModes))
	}
	if c.LLM.Paragraphs < 1 {
		errs = append(errs, errors.New("llm.paragraphs must be at least 1"))
	}
	if !slices.Contains(ImageProviders, c.Image.Provider) {
		errs = append(errs, fmt.Errorf("image.provider %q is not one of %v", c.Image.Provider, ImageProviders))
	}
	if c.Image.Provider == "alternate" && c.Image.AlternateURL == "" {
		errs = append(errs, errors.New("image.alternate_url is required for the alternate provider"))
	}
	if strings.TrimSpace(c.Image.Placeholder.BaseURL) == "" {
		errs = append(errs, errors.New("image.placeholder.base_url is required"))
	}
	if strings.TrimSpace(c.Cache.Dir) == "" {
		errs = append(errs, errors.New("cache.dir is required"))
	}
	if c.Cache.TTL < 0 {
		errs = append(errs, errors.New("cache.ttl must not be negative"))
	}
	if c.Cache.MaxEntries < 0 {
		errs = append(errs, errors.New("cache.max_entries must not be negative"))
	}
	if !slices.Contains(JobBackends, c.Jobs.Backend) {
		errs = append(errs, fmt.Errorf("jobs.backend %q is not one of %v", c.Jobs.Backend, JobBackends))
	}
	if c.Jobs.Workers < 1 {
		errs = append(errs, errors.New("jobs.workers must be at least 1"))
	}
	if c.Jobs.QueueSize < 1 {
		errs = append(errs, errors.New("jobs.queue_size must be at least 1"))
	}
	if !slices.Contains(ImageProviders, c.Jobs.Provider) {
		errs = append(errs, fmt.Errorf("jobs.provider %q is not one of %v", c.Jobs.Provider, ImageProviders))
	}
	if c.Jobs.Backend == "redis" && c.Jobs.Redis.Addr == "" {
		errs = append(errs, errors.New("jobs.redis.addr is required for the redis backend"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
