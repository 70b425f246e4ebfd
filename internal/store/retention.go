package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/docreview-api/internal/domain"
)

// RetentionConfig defines how long terminal jobs are kept.
type RetentionConfig struct {
	// MaxAge is how long a job is kept after reaching a terminal state.
	// Zero disables eviction.
	MaxAge time.Duration

	// Interval defines how often the sweeper runs.
	// If zero, defaults to 10 minutes.
	Interval time.Duration
}

// IsEnabled reports whether eviction is configured.
func (c RetentionConfig) IsEnabled() bool {
	return c.MaxAge > 0
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Evicted []*domain.Job
	Cutoff  time.Time
}

// EvictHook is called for every evicted job, for example to remove its upload.
type EvictHook func(ctx context.Context, job *domain.Job)

// RetentionSweeper periodically evicts terminal jobs older than the retention window.
// Pending and Processing jobs are never evicted.
type RetentionSweeper struct {
	store  JobStore
	config RetentionConfig
	hooks  []EvictHook
	now    func() time.Time
	logger *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRetentionSweeper creates a sweeper for the given store.
func NewRetentionSweeper(store JobStore, config RetentionConfig, logger *slog.Logger, hooks ...EvictHook) *RetentionSweeper {
	if config.Interval <= 0 {
		config.Interval = 10 * time.Minute
	}
	return &RetentionSweeper{
		store:  store,
		config: config,
		hooks:  hooks,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.With("component", "retention_sweeper"),
	}
}

// Sweep runs one eviction pass.
func (s *RetentionSweeper) Sweep(ctx context.Context) (*SweepResult, error) {
	result := &SweepResult{}
	if !s.config.IsEnabled() {
		return result, nil
	}

	result.Cutoff = s.now().Add(-s.config.MaxAge)
	evicted, err := s.store.EvictTerminal(ctx, result.Cutoff)
	if err != nil {
		return result, err
	}
	result.Evicted = evicted

	for _, job := range evicted {
		for _, hook := range s.hooks {
			hook(ctx, job)
		}
	}
	return result, nil
}

// Start launches the periodic sweep loop. It is a no-op when retention is disabled.
func (s *RetentionSweeper) Start(ctx context.Context) {
	if !s.config.IsEnabled() {
		s.logger.Info("job retention disabled, records are kept until restart")
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop halts the sweep loop and waits for it to exit.
func (s *RetentionSweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *RetentionSweeper) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			result, err := s.Sweep(ctx)
			if err != nil {
				s.logger.Error("retention sweep failed", "error", err)
				continue
			}
			if len(result.Evicted) > 0 {
				s.logger.Info("retention sweep evicted jobs",
					"count", len(result.Evicted),
					"cutoff", result.Cutoff)
			}
		}
	}
}
