package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/docreview-api/internal/domain"
)

// JobStore is the process-wide registry of job records. It is the only place
// where job status, progress, output and results are mutated.
type JobStore interface {
	// Create registers a new Pending job for the given source and mode.
	// Returns ErrStoreFull when no more records can be held.
	Create(ctx context.Context, source domain.SourceDescriptor, mode string) (*domain.Job, error)

	// Get returns a snapshot of the job.
	// Returns ErrJobNotFound if the job does not exist.
	Get(ctx context.Context, id uuid.UUID) (*domain.Job, error)

	// Update atomically merges the partial update into the job and returns
	// the resulting snapshot. Lifecycle violations leave the job untouched.
	// Returns ErrJobNotFound if the job does not exist.
	Update(ctx context.Context, id uuid.UUID, update domain.JobUpdate) (*domain.Job, error)

	// Watch returns a snapshot of the job together with a channel that is
	// closed on the next change to that job (update or removal).
	// Returns ErrJobNotFound if the job does not exist.
	Watch(ctx context.Context, id uuid.UUID) (*domain.Job, <-chan struct{}, error)

	// List returns snapshots of all jobs ordered by creation time.
	List(ctx context.Context) ([]*domain.Job, error)

	// Delete removes the job.
	// Returns ErrJobNotFound if the job does not exist.
	Delete(ctx context.Context, id uuid.UUID) error

	// EvictTerminal removes terminal jobs that finished before the cutoff
	// and returns the removed snapshots.
	EvictTerminal(ctx context.Context, before time.Time) ([]*domain.Job, error)
}

// ReportStore persists rendered job reports addressed by key.
type ReportStore interface {
	// Put writes the report, overwriting any previous content under the key,
	// and returns a backend-specific location.
	Put(ctx context.Context, key string, data []byte) (string, error)

	// Get reads the report.
	// Returns ErrReportNotFound if nothing was stored under the key.
	Get(ctx context.Context, key string) ([]byte, error)
}
