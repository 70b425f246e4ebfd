package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/docreview-api/internal/domain"
)

// jobEntry holds one record behind its own lock. changed is closed and
// replaced on every successful mutation so watchers wake up exactly when the
// record moves.
type jobEntry struct {
	mu      sync.Mutex
	job     *domain.Job
	changed chan struct{}
	removed bool
}

// notify wakes all current watchers. Callers must hold e.mu.
func (e *jobEntry) notify() {
	close(e.changed)
	e.changed = make(chan struct{})
}

// MemoryJobStore is an in-memory JobStore. The map is guarded by an RWMutex
// and every record has its own mutex, so writers of different jobs never
// contend and readers always see whole updates.
type MemoryJobStore struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*jobEntry
	maxJobs int
	now     func() time.Time
	logger  *slog.Logger
}

// MemoryOption configures a MemoryJobStore.
type MemoryOption func(*MemoryJobStore)

// WithMaxJobs caps the number of records held at once. Zero means unlimited.
func WithMaxJobs(n int) MemoryOption {
	return func(s *MemoryJobStore) {
		if n > 0 {
			s.maxJobs = n
		}
	}
}

// WithClock overrides the time source used for record timestamps.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryJobStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemoryJobStore creates an empty MemoryJobStore.
func NewMemoryJobStore(logger *slog.Logger, opts ...MemoryOption) *MemoryJobStore {
	if logger == nil {
		logger = slog.Default()
	}
	s := &MemoryJobStore{
		entries: make(map[uuid.UUID]*jobEntry),
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger.With("component", "memory_job_store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create implements JobStore.
func (s *MemoryJobStore) Create(
	ctx context.Context,
	source domain.SourceDescriptor,
	mode string,
) (*domain.Job, error) {
	job, err := domain.NewJob(source, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	now := s.now()
	job.CreatedAt = now
	job.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxJobs > 0 && len(s.entries) >= s.maxJobs {
		s.logger.Warn("job store is full", "max_jobs", s.maxJobs)
		return nil, ErrStoreFull
	}

	s.entries[job.ID] = &jobEntry{job: job, changed: make(chan struct{})}
	s.logger.Debug("job created", "job_id", job.ID, "mode", mode)

	return job.Clone(), nil
}

// Get implements JobStore.
func (s *MemoryJobStore) Get(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	job, _, err := s.Watch(ctx, id)
	return job, err
}

// Update implements JobStore.
func (s *MemoryJobStore) Update(
	ctx context.Context,
	id uuid.UUID,
	update domain.JobUpdate,
) (*domain.Job, error) {
	entry, err := s.entry(id)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.removed {
		return nil, ErrJobNotFound
	}

	if err := entry.job.Apply(update, s.now()); err != nil {
		return nil, fmt.Errorf("update job %s: %w", id, err)
	}
	entry.notify()

	return entry.job.Clone(), nil
}

// Watch implements JobStore.
func (s *MemoryJobStore) Watch(ctx context.Context, id uuid.UUID) (*domain.Job, <-chan struct{}, error) {
	entry, err := s.entry(id)
	if err != nil {
		return nil, nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.removed {
		return nil, nil, ErrJobNotFound
	}

	return entry.job.Clone(), entry.changed, nil
}

// List implements JobStore.
func (s *MemoryJobStore) List(ctx context.Context) ([]*domain.Job, error) {
	s.mu.RLock()
	entries := make([]*jobEntry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	jobs := make([]*domain.Job, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.removed {
			jobs = append(jobs, e.job.Clone())
		}
		e.mu.Unlock()
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	return jobs, nil
}

// Delete implements JobStore.
func (s *MemoryJobStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	entry, ok := s.entries[id]
	if ok {
		delete(s.entries, id)
	}
	s.mu.Unlock()

	if !ok {
		return ErrJobNotFound
	}

	entry.mu.Lock()
	entry.removed = true
	entry.notify()
	entry.mu.Unlock()

	return nil
}

// EvictTerminal implements JobStore.
func (s *MemoryJobStore) EvictTerminal(ctx context.Context, before time.Time) ([]*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []*domain.Job
	for id, entry := range s.entries {
		entry.mu.Lock()
		job := entry.job
		if job.IsTerminal() && job.FinishedAt != nil && job.FinishedAt.Before(before) {
			evicted = append(evicted, job.Clone())
			entry.removed = true
			entry.notify()
			delete(s.entries, id)
		}
		entry.mu.Unlock()
	}

	if len(evicted) > 0 {
		s.logger.Info("evicted terminal jobs", "count", len(evicted), "cutoff", before)
	}
	return evicted, nil
}

// Len returns the number of records currently held.
func (s *MemoryJobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *MemoryJobStore) entry(id uuid.UUID) (*jobEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return entry, nil
}

// Ensure MemoryJobStore implements JobStore.
var _ JobStore = (*MemoryJobStore)(nil)
