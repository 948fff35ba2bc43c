package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sweeper periodically evicts expired entries and trims the cache to a
// maximum entry count. Without a sweeper, expiry is only applied lazily on Get.
type Sweeper struct {
	disk       *Disk
	ttl        time.Duration
	maxEntries int
	interval   time.Duration
	logger     *zap.Logger

	stop     chan struct{}
	stopOnce sync.Once
}

// NewSweeper returns a sweeper for disk. Call Start to begin sweeping.
// If interval is not positive a default of 5 mins is used.
func NewSweeper(disk *Disk, ttl time.Duration, maxEntries int, interval time.Duration, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		disk:       disk,
		ttl:        ttl,
		maxEntries: maxEntries,
		interval:   interval,
		logger:     logger.Named("cache_sweeper"),
		stop:       make(chan struct{}),
	}
}

// Start runs the background sweep loop.
func (s *Sweeper) Start() {
	go s.run()
}

func (s *Sweeper) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep(context.Background())
		case <-s.stop:
			return
		}
	}
}

// Sweep runs one eviction pass and returns the number of removed files.
func (s *Sweeper) Sweep(ctx context.Context) int {
	removed, err := s.disk.Evict(ctx, s.ttl, s.maxEntries)
	if err != nil {
		s.logger.Warn("cache sweep failed", zap.Error(err), zap.Int("removed", len(removed)))
		return len(removed)
	}
	if len(removed) > 0 {
		s.logger.Info("cache sweep evicted files", zap.Int("removed", len(removed)))
	}
	return len(removed)
}

// Close stops the sweep loop. Call this on shutdown or in tests.
func (s *Sweeper) Close() error {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	return nil
}
