package task

import (
	"context"

	"github.com/google/uuid"
)

// Task type constants
const (
	// TaskTypeDocumentReview runs a generative-model review of an uploaded document.
	TaskTypeDocumentReview = "document_review"
)

// Task represents a unit of background work to be processed.
type Task interface {
	// ID returns the task's unique identifier. It equals the ID of the job
	// the task drives, so at most one task runs per job.
	ID() uuid.UUID

	// Type returns the task type identifier
	Type() string

	// Execute runs the task logic. The returned error is reported to the
	// runner's error handler only.
	Execute(ctx context.Context) error
}
