package jobs

import (
	"time"

	"github.com/redis/go-redis/v9"
)

type StoreConfig struct {
	Backend   string
	Retention time.Duration
	Prefix    string
}

// NewStore picks the job store for the configured backend.
func NewStore(cfg StoreConfig, redisClient *redis.Client) Store {
	switch cfg.Backend {
	case "redis":
		return NewRedisStore(redisClient, RedisConfig{
			Prefix:    cfg.Prefix,
			Retention: cfg.Retention,
		})
	default:
		return NewMemoryStore(cfg.Retention)
	}
}
