package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrRunnerStopped is returned by Submit after Stop was called.
	ErrRunnerStopped = errors.New("task runner stopped")

	// ErrDuplicateTask is returned when a task with the same ID is still live.
	ErrDuplicateTask = errors.New("task already running for this id")

	// ErrNilTask is returned when Submit receives a nil task.
	ErrNilTask = errors.New("task cannot be nil")
)

// TaskRunnerConfig holds configuration for the task runner
type TaskRunnerConfig struct {
	// MaxConcurrent bounds how many tasks execute at once. Tasks beyond the
	// bound wait for a slot. Zero means unbounded.
	MaxConcurrent int

	// Timeout is the time budget of one task, counted from the moment it
	// acquires a slot. Zero disables the timeout.
	Timeout time.Duration
}

// DefaultTaskRunnerConfig returns a TaskRunnerConfig with reasonable defaults
func DefaultTaskRunnerConfig() TaskRunnerConfig {
	return TaskRunnerConfig{
		MaxConcurrent: 4,
		Timeout:       10 * time.Minute,
	}
}

// Handle tracks one submitted task.
type Handle struct {
	id       uuid.UUID
	taskType string
	cancel   context.CancelFunc
	done     chan struct{}
	err      error
}

// ID returns the task ID.
func (h *Handle) ID() uuid.UUID { return h.id }

// Done is closed when the task has returned.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err returns the task's error. It is only meaningful after Done is closed.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Cancel cancels the task's context. A task still waiting for a slot runs
// with an already cancelled context.
func (h *Handle) Cancel() { h.cancel() }

// TaskRunner runs tasks on their own goroutines.
type TaskRunner struct {
	ctx        context.Context
	cancelFunc context.CancelFunc
	slots      chan struct{}
	wg         sync.WaitGroup
	config     TaskRunnerConfig
	logger     *slog.Logger
	errHandler func(task Task, err error)

	mu      sync.Mutex
	handles map[uuid.UUID]*Handle
	stopped bool
}

// NewTaskRunner creates a new TaskRunner
func NewTaskRunner(config TaskRunnerConfig, logger *slog.Logger) *TaskRunner {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "task_runner")

	ctx, cancel := context.WithCancel(context.Background())

	r := &TaskRunner{
		ctx:        ctx,
		cancelFunc: cancel,
		config:     config,
		logger:     logger,
		handles:    make(map[uuid.UUID]*Handle),
		errHandler: func(task Task, err error) {
			logger.Error("task execution failed",
				"task_id", task.ID(),
				"task_type", task.Type(),
				"error", err)
		},
	}
	if config.MaxConcurrent > 0 {
		r.slots = make(chan struct{}, config.MaxConcurrent)
	}
	return r
}

// SetErrorHandler allows setting a custom error handler function
func (r *TaskRunner) SetErrorHandler(handler func(task Task, err error)) {
	r.errHandler = handler
}

// Submit starts the task on its own goroutine and returns its handle. It
// never blocks: a task that cannot get a slot yet waits on its goroutine.
// The task's context derives from the runner, not from ctx.
func (r *TaskRunner) Submit(ctx context.Context, task Task) (*Handle, error) {
	if task == nil {
		return nil, ErrNilTask
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return nil, ErrRunnerStopped
	}
	if _, exists := r.handles[task.ID()]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateTask, task.ID())
	}

	taskCtx, cancel := context.WithCancel(r.ctx)
	h := &Handle{
		id:       task.ID(),
		taskType: task.Type(),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	r.handles[h.id] = h

	r.wg.Add(1)
	go r.run(taskCtx, task, h)

	r.logger.DebugContext(ctx, "task submitted",
		"task_id", h.id,
		"task_type", h.taskType,
		"active", len(r.handles))
	return h, nil
}

// Handle returns the live handle for id.
func (r *TaskRunner) Handle(id uuid.UUID) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[id]
	return h, ok
}

// Cancel cancels the live task with the given ID. It reports whether such a
// task existed.
func (r *TaskRunner) Cancel(id uuid.UUID) bool {
	h, ok := r.Handle(id)
	if !ok {
		return false
	}
	h.Cancel()
	r.logger.Info("task cancelled", "task_id", id, "task_type", h.taskType)
	return true
}

// Active returns the number of live tasks, queued or executing.
func (r *TaskRunner) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// Stop refuses new tasks, cancels all live ones and waits until they have
// returned or ctx expires.
func (r *TaskRunner) Stop(ctx context.Context) error {
	r.mu.Lock()
	r.stopped = true
	active := len(r.handles)
	r.mu.Unlock()

	r.logger.Info("stopping task runner", "active", active)
	r.cancelFunc()

	drained := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		r.logger.Info("task runner stopped")
		return nil
	case <-ctx.Done():
		r.logger.Warn("task runner stop timed out", "active", r.Active())
		return fmt.Errorf("waiting for tasks to finish: %w", ctx.Err())
	}
}

// run waits for a slot, executes the task under its timeout and reports the
// outcome.
func (r *TaskRunner) run(ctx context.Context, task Task, h *Handle) {
	defer r.wg.Done()
	defer func() {
		h.cancel()
		r.mu.Lock()
		delete(r.handles, h.id)
		r.mu.Unlock()
		close(h.done)
	}()

	logger := r.logger.With("task_id", h.id, "task_type", h.taskType)

	if r.slots != nil {
		select {
		case r.slots <- struct{}{}:
			defer func() { <-r.slots }()
		case <-ctx.Done():
			logger.Debug("task cancelled while waiting for a slot")
		}
	}

	execCtx := ctx
	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	logger.Info("processing task")
	h.err = r.execute(execCtx, task)

	if h.err != nil {
		r.errHandler(task, h.err)
		return
	}
	logger.Info("task completed successfully", "duration_ms", time.Since(start).Milliseconds())
}

// execute calls task.Execute and turns a panic into an error.
func (r *TaskRunner) execute(ctx context.Context, task Task) (err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("task panicked",
				"task_id", task.ID(),
				"panic", p,
				"stack", string(debug.Stack()))
			err = fmt.Errorf("task panicked: %v", p)
		}
	}()
	return task.Execute(ctx)
}
