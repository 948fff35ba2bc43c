package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Status is the lifecycle state of a job: pending -> running -> done | error.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// Job is one background image generation.
type Job struct {
	ID        string          `json:"job_id"`
	Status    Status          `json:"status"`
	Owner     string          `json:"owner"`
	Provider  string          `json:"provider,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Result is the payload of a done job.
type Result struct {
	Key      string   `json:"key"`
	Provider string   `json:"provider"`
	Cached   bool     `json:"cached"`
	Files    []string `json:"files"`
	URLs     []string `json:"urls"`
}

// ErrNotFound is returned by stores for unknown ids.
var ErrNotFound = errors.New("jobs: job not found")

// Store persists jobs. Implementations must be safe for concurrent use.
type Store interface {
	// Create fails if the id already exists.
	Create(ctx context.Context, job Job) error
	Get(ctx context.Context, id string) (Job, error)
	// Update replaces an existing job; ErrNotFound if absent.
	Update(ctx context.Context, job Job) error
	Delete(ctx context.Context, id string) error
	// ListByOwner returns the owner's jobs, newest first.
	ListByOwner(ctx context.Context, owner string) ([]Job, error)
}
