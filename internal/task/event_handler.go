package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/docreview-api/internal/events"
)

// TaskCreator builds the task for a job.
type TaskCreator interface {
	CreateTask(ctx context.Context, jobID uuid.UUID) (Task, error)
}

// TaskSubmitter starts a task.
type TaskSubmitter interface {
	Submit(ctx context.Context, task Task) (*Handle, error)
}

// TaskFactoryEventHandler implements the events.EventHandler interface
// to handle task creation events and delegate them to the appropriate task factory.
type TaskFactoryEventHandler struct {
	taskType    string
	taskFactory TaskCreator
	taskRunner  TaskSubmitter
	logger      *slog.Logger
}

// NewTaskFactoryEventHandler creates a new event handler that uses the given task factory
// to create tasks of taskType, and submits them to the provided task runner.
func NewTaskFactoryEventHandler(
	taskType string,
	taskFactory TaskCreator,
	taskRunner TaskSubmitter,
	logger *slog.Logger,
) *TaskFactoryEventHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskFactoryEventHandler{
		taskType:    taskType,
		taskFactory: taskFactory,
		taskRunner:  taskRunner,
		logger:      logger.With("component", "task_factory_event_handler", "task_type", taskType),
	}
}

// HandleEvent creates the task for the event's job and submits it. Events of
// other types are ignored.
func (h *TaskFactoryEventHandler) HandleEvent(ctx context.Context, event *events.TaskRequestEvent) error {
	if event.Type != h.taskType {
		h.logger.DebugContext(ctx, "ignoring event with unsupported type",
			"event_type", event.Type,
			"event_id", event.ID)
		return nil
	}

	if event.JobID == uuid.Nil {
		h.logger.ErrorContext(ctx, "event carries no job ID", "event_id", event.ID)
		return fmt.Errorf("event %s: %w", event.ID, ErrEmptyJobID)
	}

	h.logger.DebugContext(ctx, "creating task for job", "job_id", event.JobID, "event_id", event.ID)
	task, err := h.taskFactory.CreateTask(ctx, event.JobID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to create task",
			"error", err,
			"job_id", event.JobID,
			"event_id", event.ID)
		return fmt.Errorf("failed to create task: %w", err)
	}

	if _, err := h.taskRunner.Submit(ctx, task); err != nil {
		h.logger.ErrorContext(ctx, "failed to submit task",
			"error", err,
			"job_id", event.JobID,
			"event_id", event.ID)
		return fmt.Errorf("failed to submit task: %w", err)
	}

	h.logger.InfoContext(ctx, "task created and submitted successfully",
		"job_id", event.JobID,
		"event_id", event.ID)
	return nil
}

var _ events.EventHandler = (*TaskFactoryEventHandler)(nil)
