package cache

import (
	"context"
	"time"

	"storygate/internal/metrics"
	"storygate/pkg/logging/logging"

	"go.uber.org/zap"
)

// LoggingCache wraps an ImageCache with logging + metrics.
type LoggingCache struct {
	inner ImageCache
}

// NewLoggingCache returns a cache that logs and records metrics.
func NewLoggingCache(inner ImageCache) ImageCache {
	return &LoggingCache{inner: inner}
}

func (c *LoggingCache) Get(ctx context.Context, key string, ttl time.Duration) (Hit, bool, error) {
	start := time.Now()
	hit, ok, err := c.inner.Get(ctx, key, ttl)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

	result := "miss"
	if err != nil {
		result = "error"
	} else if ok {
		result = "hit"
	}
	metrics.CacheLookupsTotal.WithLabelValues(result).Inc()

	fields := []zap.Field{
		zap.String("cache_key", key),
		zap.String("cache_result", result), // hit | miss | error
		zap.Float64("latency_ms", latencyMs),
	}
	if ok {
		fields = append(fields, zap.Int("files", len(hit.Entry.Files)))
	}

	logger := logging.L(ctx)
	if err != nil {
		logger.Error("image_cache_get", append(fields, zap.Error(err))...)
	} else {
		logger.Info("image_cache_get", fields...)
	}

	return hit, ok, err
}

func (c *LoggingCache) Put(ctx context.Context, key string, images [][]byte, prompt string) (Entry, error) {
	start := time.Now()
	entry, err := c.inner.Put(ctx, key, images, prompt)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

	fields := []zap.Field{
		zap.String("cache_key", key),
		zap.Int("images", len(images)),
		zap.Float64("latency_ms", latencyMs),
	}

	logger := logging.L(ctx)
	if err != nil {
		metrics.CacheWritesTotal.WithLabelValues("error").Inc()
		logger.Error("image_cache_put", append(fields, zap.Error(err))...)
	} else {
		metrics.CacheWritesTotal.WithLabelValues("ok").Inc()
		logger.Info("image_cache_put", fields...)
	}

	return entry, err
}

func (c *LoggingCache) Invalidate(ctx context.Context, key string) ([]string, error) {
	removed, err := c.inner.Invalidate(ctx, key)
	logging.L(ctx).Info("image_cache_invalidate",
		zap.String("cache_key", key),
		zap.Int("removed", len(removed)),
		zap.Error(err),
	)
	return removed, err
}

func (c *LoggingCache) InvalidateAll(ctx context.Context) ([]string, error) {
	removed, err := c.inner.InvalidateAll(ctx)
	logging.L(ctx).Warn("image_cache_invalidate_all",
		zap.Int("removed", len(removed)),
		zap.Error(err),
	)
	return removed, err
}

func (c *LoggingCache) List(ctx context.Context) ([]Entry, error) {
	return c.inner.List(ctx)
}

func (c *LoggingCache) URL(file string) string {
	return c.inner.URL(file)
}
