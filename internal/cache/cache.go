package cache

import (
	"context"
	"time"
)

// Entry is the metadata record of one cached generation.
type Entry struct {
	Key       string    `json:"key"`
	Files     []string  `json:"files"`
	Prompt    string    `json:"prompt"`
	CreatedAt time.Time `json:"created_at"`
}

// Hit is a cache entry together with its image bytes, in file order.
type Hit struct {
	Entry  Entry
	Images [][]byte
}

// ImageCache is the interface used by the image pipeline and the admin handlers.
// Implemented by Disk and decorated by LoggingCache.
type ImageCache interface {
	Get(ctx context.Context, key string, ttl time.Duration) (Hit, bool, error)
	Put(ctx context.Context, key string, images [][]byte, prompt string) (Entry, error)
	Invalidate(ctx context.Context, key string) ([]string, error)
	InvalidateAll(ctx context.Context) ([]string, error)
	List(ctx context.Context) ([]Entry, error)
	URL(file string) string
}

// InvalidateFingerprint derives the key of (prompt, provider, params) and invalidates it.
func InvalidateFingerprint(ctx context.Context, c ImageCache, prompt, provider string, params map[string]any) (string, []string, error) {
	key := Key(prompt, provider, params)
	removed, err := c.Invalidate(ctx, key)
	return key, removed, err
}
