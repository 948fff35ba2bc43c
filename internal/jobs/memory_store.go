package jobs

import (
	"context"
	"fmt"
	"sort"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore keeps jobs in process memory. A retention of 0 keeps them forever.
type MemoryStore struct {
	items *gocache.Cache
}

func NewMemoryStore(retention time.Duration) *MemoryStore {
	if retention <= 0 {
		return &MemoryStore{items: gocache.New(gocache.NoExpiration, 0)}
	}
	return &MemoryStore{items: gocache.New(retention, retention)}
}

func (s *MemoryStore) Create(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	if err := s.items.Add(job.ID, job, gocache.DefaultExpiration); err != nil {
		return fmt.Errorf("jobs: create %s: %w", job.ID, err)
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Job, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, fmt.Errorf("context error: %w", err)
	}
	v, ok := s.items.Get(id)
	if !ok {
		return Job{}, ErrNotFound
	}
	return v.(Job), nil
}

func (s *MemoryStore) Update(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	if err := s.items.Replace(job.ID, job, gocache.DefaultExpiration); err != nil {
		return ErrNotFound
	}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.items.Delete(id)
	return nil
}

func (s *MemoryStore) ListByOwner(ctx context.Context, owner string) ([]Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}
	var out []Job
	for _, item := range s.items.Items() {
		if job := item.Object.(Job); job.Owner == owner {
			out = append(out, job)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

// Len returns the number of retained jobs.
func (s *MemoryStore) Len() int { return s.items.ItemCount() }

func sortNewestFirst(jobs []Job) {
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
}
