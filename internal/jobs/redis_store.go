package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps jobs as JSON values with a per-owner index set.
type RedisStore struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
}

type RedisConfig struct {
	Prefix string
	// Retention is the key TTL, refreshed on every update. 0 disables expiry.
	Retention time.Duration
}

func NewRedisStore(client *redis.Client, cfg RedisConfig) *RedisStore {
	return &RedisStore{
		client:    client,
		prefix:    cfg.Prefix,
		retention: cfg.Retention,
	}
}

// key builds the final Redis key with prefix.
func (s *RedisStore) key(parts ...string) string {
	k := strings.Join(parts, ":")
	if s.prefix == "" {
		return k
	}
	return s.prefix + ":" + k
}

func (s *RedisStore) jobKey(id string) string      { return s.key("job", id) }
func (s *RedisStore) ownerKey(owner string) string { return s.key("owner", owner) }

func (s *RedisStore) Create(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	b, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("jobs: marshal %s: %w", job.ID, err)
	}

	ok, err := s.client.SetNX(ctx, s.jobKey(job.ID), b, s.retention).Result()
	if err != nil {
		return fmt.Errorf("redis setnx failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("jobs: create %s: already exists", job.ID)
	}

	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SAdd(ctx, s.ownerKey(job.Owner), job.ID)
		if s.retention > 0 {
			p.Expire(ctx, s.ownerKey(job.Owner), s.retention)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis owner index failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (Job, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, fmt.Errorf("context error: %w", err)
	}
	b, err := s.client.Get(ctx, s.jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, fmt.Errorf("redis get failed: %w", err)
	}
	var job Job
	if err := json.Unmarshal(b, &job); err != nil {
		return Job{}, fmt.Errorf("jobs: decode %s: %w", id, err)
	}
	return job, nil
}

func (s *RedisStore) Update(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	b, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("jobs: marshal %s: %w", job.ID, err)
	}
	ok, err := s.client.SetXX(ctx, s.jobKey(job.ID), b, s.retention).Result()
	if err != nil {
		return fmt.Errorf("redis setxx failed: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	job, err := s.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, s.jobKey(id))
		p.SRem(ctx, s.ownerKey(job.Owner), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

// ListByOwner resolves the owner's index and prunes ids whose job expired.
func (s *RedisStore) ListByOwner(ctx context.Context, owner string) ([]Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}
	ids, err := s.client.SMembers(ctx, s.ownerKey(owner)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers failed: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.jobKey(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget failed: %w", err)
	}

	var out []Job
	var stale []any
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var job Job
		if err := json.Unmarshal([]byte(str), &job); err != nil {
			continue
		}
		out = append(out, job)
	}
	if len(stale) > 0 {
		_ = s.client.SRem(ctx, s.ownerKey(owner), stale...).Err()
	}
	sortNewestFirst(out)
	return out, nil
}

// Ping checks if Redis connection is healthy.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	return s.client.Ping(ctx).Err()
}
