package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/docreview-api/internal/domain"
	"github.com/phrazzld/docreview-api/internal/generation"
	"github.com/phrazzld/docreview-api/internal/store"
)

// ReviewTaskFactory creates ReviewTask instances for stored jobs. It
// resolves the job's mode in the catalog and the mode's provider in the
// generator registry.
type ReviewTaskFactory struct {
	jobs     store.JobStore
	source   SourceReader
	catalog  *generation.Catalog
	registry *generation.Registry
	prompts  *generation.Prompts
	reports  ReportPersister
	counter  generation.TokenCounter
	logger   *slog.Logger
}

// NewReviewTaskFactory creates a new factory for ReviewTasks
func NewReviewTaskFactory(
	jobs store.JobStore,
	source SourceReader,
	catalog *generation.Catalog,
	registry *generation.Registry,
	prompts *generation.Prompts,
	reports ReportPersister,
	counter generation.TokenCounter,
	logger *slog.Logger,
) *ReviewTaskFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReviewTaskFactory{
		jobs:     jobs,
		source:   source,
		catalog:  catalog,
		registry: registry,
		prompts:  prompts,
		reports:  reports,
		counter:  counter,
		logger:   logger,
	}
}

// CreateTask creates a ReviewTask for the specified job. The job must still
// be Pending.
func (f *ReviewTaskFactory) CreateTask(ctx context.Context, jobID uuid.UUID) (Task, error) {
	job, err := f.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.JobStatusPending {
		return nil, fmt.Errorf("job %s is %s, expected %s", jobID, job.Status, domain.JobStatusPending)
	}

	mode, err := f.catalog.Lookup(job.Mode)
	if err != nil {
		return nil, err
	}
	generator, err := f.registry.Get(mode.Provider)
	if err != nil {
		return nil, fmt.Errorf("mode %s: %w", mode.Key, err)
	}

	return NewReviewTask(job, mode, ReviewTaskDeps{
		Jobs:      f.jobs,
		Source:    f.source,
		Generator: generator,
		Prompts:   f.prompts,
		Reports:   f.reports,
		Counter:   f.counter,
		Logger:    f.logger,
	})
}
