package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"storygate/internal/apperr"
	"storygate/internal/envelope"
	"storygate/internal/imagegen"
	"storygate/internal/metrics"
	"storygate/pkg/logging/logging"
)

// Generator runs the image pipeline for a job.
type Generator interface {
	GenerateForJob(ctx context.Context, env any, provider string) (imagegen.Outcome, error)
}

type Config struct {
	Workers   int
	QueueSize int
	// Timeout bounds a single job; 0 means no bound beyond the provider timeouts.
	Timeout time.Duration
}

type task struct {
	id       string
	env      any
	provider string
}

// Manager runs image jobs on a fixed pool of workers fed by a bounded queue.
type Manager struct {
	cfg    Config
	store  Store
	gen    Generator
	logger *zap.Logger
	now    func() time.Time

	queue chan task

	mu      sync.RWMutex
	closed  bool
	started bool
	cancel  context.CancelFunc
	eg      *errgroup.Group
}

func NewManager(cfg Config, store Store, gen Generator, logger *zap.Logger) *Manager {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		cfg:    cfg,
		store:  store,
		gen:    gen,
		logger: logger.Named("jobs"),
		now:    time.Now,
		queue:  make(chan task, cfg.QueueSize),
	}
}

// Start launches the workers. Work runs on ctx, not on any request context.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started || m.closed {
		return
	}
	m.started = true

	ctx, m.cancel = context.WithCancel(ctx)
	m.eg = &errgroup.Group{}
	for i := 0; i < m.cfg.Workers; i++ {
		m.eg.Go(func() error {
			for t := range m.queue {
				metrics.JobQueueDepth.Set(float64(len(m.queue)))
				m.process(ctx, t)
			}
			return nil
		})
	}
	m.logger.Info("job workers started",
		zap.Int("workers", m.cfg.Workers),
		zap.Int("queue_size", m.cfg.QueueSize),
	)
}

// Enqueue stores a pending job for owner and queues it. It never blocks:
// a full queue is reported as unavailable and the job is discarded.
func (m *Manager) Enqueue(ctx context.Context, env any, owner, provider string) (Job, error) {
	if envelope.Extract(env) == "" {
		return Job{}, apperr.Validation("no prompt found in payload")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return Job{}, apperr.Unavailable("job manager is shutting down")
	}

	now := m.now().UTC()
	job := Job{
		ID:        uuid.NewString(),
		Status:    StatusPending,
		Owner:     owner,
		Provider:  provider,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.Create(ctx, job); err != nil {
		return Job{}, apperr.Wrap(apperr.KindInternal, "could not record job", err)
	}

	select {
	case m.queue <- task{id: job.ID, env: env, provider: provider}:
	default:
		if err := m.store.Delete(context.WithoutCancel(ctx), job.ID); err != nil {
			logging.L(ctx).Warn("rejected job cleanup failed", zap.String("job_id", job.ID), zap.Error(err))
		}
		metrics.JobsTotal.WithLabelValues("rejected").Inc()
		return Job{}, apperr.Unavailable("job queue is full, retry later")
	}

	metrics.JobsTotal.WithLabelValues(string(StatusPending)).Inc()
	metrics.JobQueueDepth.Set(float64(len(m.queue)))
	logging.L(ctx).Info("job_enqueued",
		zap.String("job_id", job.ID),
		zap.String("owner", owner),
		zap.String("image_provider", provider),
	)
	return job, nil
}

// Status returns the job if requester owns it.
func (m *Manager) Status(ctx context.Context, id, requester string) (Job, error) {
	job, err := m.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Job{}, apperr.NotFound("job not found")
	}
	if err != nil {
		return Job{}, apperr.Wrap(apperr.KindInternal, "could not load job", err)
	}
	if job.Owner != requester {
		return Job{}, apperr.Forbidden("job belongs to another caller")
	}
	return job, nil
}

// List returns the jobs of owner, newest first.
func (m *Manager) List(ctx context.Context, owner string) ([]Job, error) {
	jobs, err := m.store.ListByOwner(ctx, owner)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "could not list jobs", err)
	}
	return jobs, nil
}

// QueueDepth is the number of jobs waiting for a worker.
func (m *Manager) QueueDepth() int { return len(m.queue) }

// Shutdown stops accepting jobs and waits for queued and running jobs.
// If ctx expires first the remaining work is cancelled.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.queue)
	started := m.started
	m.mu.Unlock()

	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		_ = m.eg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.cancel()
		m.logger.Info("job workers stopped")
		return nil
	case <-ctx.Done():
		m.cancel()
		<-done
		return fmt.Errorf("jobs: shutdown: %w", ctx.Err())
	}
}

func (m *Manager) process(ctx context.Context, t task) {
	logger := m.logger.With(zap.String("job_id", t.id))
	ctx = logging.WithLogger(ctx, logger)
	if m.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.Timeout)
		defer cancel()
	}
	// Store writes must land even when the work itself was cancelled.
	storeCtx := context.WithoutCancel(ctx)

	if err := m.transition(storeCtx, t.id, func(j *Job) {
		j.Status = StatusRunning
	}); err != nil {
		logger.Error("job vanished before start", zap.Error(err))
		return
	}
	metrics.JobsTotal.WithLabelValues(string(StatusRunning)).Inc()

	start := time.Now()
	out, err := m.gen.GenerateForJob(ctx, t.env, t.provider)
	if err == nil && len(out.Files) == 0 {
		err = errors.New("generated image could not be stored")
	}

	if err != nil {
		logger.Warn("job failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
		metrics.JobsTotal.WithLabelValues(string(StatusError)).Inc()
		if uerr := m.transition(storeCtx, t.id, func(j *Job) {
			j.Status = StatusError
			j.Error = err.Error()
		}); uerr != nil {
			logger.Error("job status update failed", zap.Error(uerr))
		}
		return
	}

	result, err := json.Marshal(Result{
		Key:      out.Key,
		Provider: out.Provider,
		Cached:   out.Cached,
		Files:    out.Files,
		URLs:     out.URLs,
	})
	if err != nil {
		logger.Error("job result encoding failed", zap.Error(err))
		return
	}

	metrics.JobsTotal.WithLabelValues(string(StatusDone)).Inc()
	if err := m.transition(storeCtx, t.id, func(j *Job) {
		j.Status = StatusDone
		j.Result = result
	}); err != nil {
		logger.Error("job status update failed", zap.Error(err))
		return
	}
	logger.Info("job_done",
		zap.String("image_provider", out.Provider),
		zap.Bool("cached", out.Cached),
		zap.Duration("duration", time.Since(start)),
	)
}

func (m *Manager) transition(ctx context.Context, id string, apply func(*Job)) error {
	job, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	apply(&job)
	job.UpdatedAt = m.now().UTC()
	return m.store.Update(ctx, job)
}
