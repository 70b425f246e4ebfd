package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNoHandlers is returned when an event is emitted before any handler was
// registered. The event would otherwise be lost silently.
var ErrNoHandlers = errors.New("no event handlers registered")

// TaskRequestEvent represents a request to run a background task for a job.
type TaskRequestEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Type indicates the task type that should be created
	Type string `json:"type"`

	// JobID is the job record the task will drive
	JobID uuid.UUID `json:"job_id"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// NewTaskRequestEvent creates an event of the given type for a job.
func NewTaskRequestEvent(eventType string, jobID uuid.UUID) *TaskRequestEvent {
	return &TaskRequestEvent{
		ID:        uuid.New(),
		Type:      eventType,
		JobID:     jobID,
		CreatedAt: time.Now().UTC(),
	}
}

// EventHandler processes events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *TaskRequestEvent) error
}

// EventHandlerFunc adapts a function to EventHandler.
type EventHandlerFunc func(ctx context.Context, event *TaskRequestEvent) error

// HandleEvent calls f(ctx, event).
func (f EventHandlerFunc) HandleEvent(ctx context.Context, event *TaskRequestEvent) error {
	return f(ctx, event)
}

// EventEmitter publishes events without knowing their handlers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	// Returns an error if the event cannot be emitted.
	EmitEvent(ctx context.Context, event *TaskRequestEvent) error
}
