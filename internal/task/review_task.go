package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/docreview-api/internal/domain"
	"github.com/phrazzld/docreview-api/internal/generation"
	"github.com/phrazzld/docreview-api/internal/redact"
	"github.com/phrazzld/docreview-api/internal/store"
)

// Phase messages and progress marks written by ReviewTask.
const (
	MessageReading    = "reading input"
	MessageCalling    = "calling model"
	MessageGenerating = "generating report"
	MessageDone       = "done"
	MessageTimedOut   = "operation timed out"
	MessageCancelled  = "operation cancelled"

	progressReading    = 0
	progressCalling    = 20
	progressGenerating = 40
	progressStreamCap  = 90
	progressDone       = 100

	// bytesPerPercent is how much streamed output advances progress by one point.
	bytesPerPercent = 50
)

// finalWriteTimeout bounds the terminal update and report write, which run
// even after the task context ended.
const finalWriteTimeout = 30 * time.Second

// Common errors
var (
	ErrNilJobStore    = errors.New("job store cannot be nil")
	ErrNilSource      = errors.New("source reader cannot be nil")
	ErrNilGenerator   = errors.New("generator cannot be nil")
	ErrNilPrompts     = errors.New("prompts cannot be nil")
	ErrNilReports     = errors.New("report persister cannot be nil")
	ErrNilLogger      = errors.New("logger cannot be nil")
	ErrEmptyJobID     = errors.New("job ID cannot be empty")
	ErrEmptyResponse  = errors.New("model returned an empty review")
	errTaskPanicked   = errors.New("review task panicked")
	errUnexpectedNone = errors.New("generator returned no response")
)

// SourceReader reads a stored source artifact.
type SourceReader interface {
	Read(ctx context.Context, path string) ([]byte, error)
}

// ReportPersister writes the rendered report of a terminal job.
type ReportPersister interface {
	Persist(ctx context.Context, job *domain.Job) (string, error)
}

// ReviewTaskDeps are the collaborators of a ReviewTask.
type ReviewTaskDeps struct {
	Jobs      store.JobStore
	Source    SourceReader
	Generator generation.Generator
	Prompts   *generation.Prompts
	Reports   ReportPersister
	Counter   generation.TokenCounter
	Logger    *slog.Logger
}

// ReviewTask is the worker of one job. It is the only writer of its job
// record: it moves the job to Processing, runs the model in the job's mode,
// appends streamed output and finally commits Completed or Failed together
// with the final result.
type ReviewTask struct {
	jobID     uuid.UUID
	source    domain.SourceDescriptor
	mode      generation.Mode
	jobs      store.JobStore
	reader    SourceReader
	generator generation.Generator
	prompts   *generation.Prompts
	reports   ReportPersister
	counter   generation.TokenCounter
	logger    *slog.Logger
	now       func() time.Time

	// last is the most recent snapshot returned by the store.
	last *domain.Job
}

// NewReviewTask creates the worker for job in the given mode.
func NewReviewTask(job *domain.Job, mode generation.Mode, deps ReviewTaskDeps) (*ReviewTask, error) {
	switch {
	case deps.Jobs == nil:
		return nil, ErrNilJobStore
	case deps.Source == nil:
		return nil, ErrNilSource
	case deps.Generator == nil:
		return nil, ErrNilGenerator
	case deps.Prompts == nil:
		return nil, ErrNilPrompts
	case deps.Reports == nil:
		return nil, ErrNilReports
	case deps.Logger == nil:
		return nil, ErrNilLogger
	}
	if job == nil || job.ID == uuid.Nil {
		return nil, ErrEmptyJobID
	}

	counter := deps.Counter
	if counter == nil {
		counter = generation.EstimateTokens
	}

	return &ReviewTask{
		jobID:     job.ID,
		source:    job.Source,
		mode:      mode,
		jobs:      deps.Jobs,
		reader:    deps.Source,
		generator: deps.Generator,
		prompts:   deps.Prompts,
		reports:   deps.Reports,
		counter:   counter,
		logger: deps.Logger.With(
			"task_type", TaskTypeDocumentReview,
			"job_id", job.ID,
			"mode", mode.Key,
			"provider", deps.Generator.Name()),
		now:  time.Now,
		last: job.Clone(),
	}, nil
}

// ID returns the job ID.
func (t *ReviewTask) ID() uuid.UUID {
	return t.jobID
}

// Type returns TaskTypeDocumentReview.
func (t *ReviewTask) Type() string {
	return TaskTypeDocumentReview
}

// Execute drives the job to a terminal state. Every failure, including a
// panic, a timeout or a cancellation, ends in a Failed record; the returned
// error is for the runner's log only.
func (t *ReviewTask) Execute(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			t.logger.Error("review task panicked", "panic", p, "stack", string(debug.Stack()))
			err = fmt.Errorf("%w: %v", errTaskPanicked, p)
			t.fail(ctx, err)
		}
	}()

	if err := ctx.Err(); err != nil {
		t.fail(ctx, err)
		return fmt.Errorf("task cancelled before start: %w", err)
	}

	t.logger.Info("starting document review")
	start := t.now()

	if err := t.run(ctx); err != nil {
		t.fail(ctx, err)
		return err
	}

	t.logger.Info("document review completed", "duration_ms", t.now().Sub(start).Milliseconds())
	return nil
}

// run performs the phases of a review and commits the Completed state.
func (t *ReviewTask) run(ctx context.Context) error {
	processing := domain.JobStatusProcessing
	if err := t.update(ctx, domain.JobUpdate{
		Status:   &processing,
		Progress: intPtr(progressReading),
		Message:  strPtr(MessageReading),
	}); err != nil {
		return fmt.Errorf("failed to mark job processing: %w", err)
	}

	document, err := t.reader.Read(ctx, t.source.Path)
	if err != nil {
		return fmt.Errorf("failed to read source: %w", err)
	}

	req, err := t.buildRequest(document)
	if err != nil {
		return err
	}

	if err := t.setPhase(ctx, progressCalling, MessageCalling); err != nil {
		return err
	}
	if err := t.setPhase(ctx, progressGenerating, MessageGenerating); err != nil {
		return err
	}

	resp, err := t.invoke(ctx, req)
	if err != nil {
		return err
	}

	return t.complete(ctx, req, resp)
}

func (t *ReviewTask) buildRequest(document []byte) (*generation.Request, error) {
	instruction, err := t.prompts.Instruction(generation.InstructionData{
		DocumentName: t.source.Name,
		Format:       string(t.source.Format),
	})
	if err != nil {
		return nil, err
	}

	req := &generation.Request{
		Document:     document,
		DocumentName: t.source.Name,
		Format:       t.source.Format,
		SystemPrompt: t.prompts.System,
		Instruction:  instruction,
		ModelID:      t.mode.ModelID,
		MaxTokens:    t.mode.MaxTokens,
		Temperature:  t.mode.Temperature,
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}

// invoke calls the generator in the mode's style. Streamed chunks are
// appended as they arrive. A one-shot answer, or a stream that returned its
// text without emitting chunks, is appended as a single fragment.
func (t *ReviewTask) invoke(ctx context.Context, req *generation.Request) (*generation.Response, error) {
	var (
		resp *generation.Response
		err  error
	)

	if t.mode.Streaming {
		resp, err = t.generator.Stream(ctx, req, func(chunk string) error {
			return t.appendOutput(ctx, chunk)
		})
	} else {
		resp, err = t.generator.Generate(ctx, req)
	}
	if err != nil {
		return nil, fmt.Errorf("model call failed: %w", err)
	}
	if resp == nil {
		return nil, errUnexpectedNone
	}

	if t.last.OutputLen() == 0 {
		if resp.Text == "" {
			return nil, ErrEmptyResponse
		}
		if err := t.appendOutput(ctx, resp.Text); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

// appendOutput adds a fragment and advances progress toward the streaming cap.
func (t *ReviewTask) appendOutput(ctx context.Context, chunk string) error {
	if chunk == "" {
		return nil
	}

	update := domain.JobUpdate{AppendOutput: []string{chunk}}
	outLen := t.last.OutputLen() + len(chunk)
	if p := min(progressStreamCap, progressGenerating+outLen/bytesPerPercent); p > t.last.Progress {
		update.Progress = intPtr(p)
	}
	return t.update(ctx, update)
}

// complete builds the final result, persists the report and commits the
// Completed state. A failed report write is logged and leaves the job
// Completed.
func (t *ReviewTask) complete(ctx context.Context, req *generation.Request, resp *generation.Response) error {
	model := resp.ModelID
	if model == "" {
		model = t.mode.ModelID
	}

	prompt := req.SystemPrompt + "\n" + req.Instruction
	if text, err := req.DocumentText(); err == nil {
		prompt += "\n" + text
	}
	output := t.last.PartialOutput()
	usage := generation.FillUsage(resp.Usage, t.counter, prompt, output)

	result := t.baseResult(domain.ResultStatusSuccess)
	result.ReviewResult = output
	result.ModelUsed = model
	result.Usage = &usage

	writeCtx, cancel := t.finalContext(ctx)
	defer cancel()

	result.ReportPath = t.persist(writeCtx, domain.JobStatusCompleted, result)

	completed := domain.JobStatusCompleted
	if err := t.update(writeCtx, domain.JobUpdate{
		Status:      &completed,
		Progress:    intPtr(progressDone),
		Message:     strPtr(MessageDone),
		FinalResult: result,
	}); err != nil {
		return fmt.Errorf("failed to mark job completed: %w", err)
	}

	t.logger.Info("review result stored",
		"output_bytes", len(output),
		"input_tokens", usage.InputTokens,
		"output_tokens", usage.OutputTokens)
	return nil
}

// fail commits the Failed state with a redacted description of cause. Output
// appended before the failure stays on the record.
func (t *ReviewTask) fail(ctx context.Context, cause error) {
	message := FailureMessage(cause)

	result := t.baseResult(domain.ResultStatusError)
	result.Error = message
	result.ModelUsed = t.mode.ModelID

	writeCtx, cancel := t.finalContext(ctx)
	defer cancel()

	result.ReportPath = t.persist(writeCtx, domain.JobStatusFailed, result)

	failed := domain.JobStatusFailed
	if err := t.update(writeCtx, domain.JobUpdate{
		Status:      &failed,
		Message:     &message,
		FinalResult: result,
	}); err != nil {
		t.logger.Error("failed to mark job failed", "error", err, "cause", redact.Error(cause))
		return
	}
	t.logger.Warn("document review failed", "error", redact.Error(cause))
}

// persist writes the report for the terminal state about to be committed
// and returns its location, or "" when the write failed.
func (t *ReviewTask) persist(ctx context.Context, status domain.JobStatus, result *domain.Result) string {
	snapshot := t.last.Clone()
	snapshot.Status = status
	snapshot.FinalResult = result

	location, err := t.reports.Persist(ctx, snapshot)
	if err != nil {
		t.logger.Error("failed to persist report", "error", redact.Error(err))
		return ""
	}
	return location
}

func (t *ReviewTask) baseResult(status string) *domain.Result {
	return &domain.Result{
		Status:     status,
		SourceName: t.source.Name,
		SourcePath: t.source.Path,
		SourceSize: t.source.Size,
		Mode:       t.mode.Key,
		Timestamp:  t.now().Format(domain.ResultTimeLayout),
	}
}

func (t *ReviewTask) setPhase(ctx context.Context, progress int, message string) error {
	return t.update(ctx, domain.JobUpdate{Progress: intPtr(progress), Message: strPtr(message)})
}

func (t *ReviewTask) update(ctx context.Context, u domain.JobUpdate) error {
	job, err := t.jobs.Update(ctx, t.jobID, u)
	if err != nil {
		return err
	}
	t.last = job
	return nil
}

// finalContext detaches from the task context so a cancelled or timed-out
// task can still record its outcome.
func (t *ReviewTask) finalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), finalWriteTimeout)
}

// FailureMessage describes err for the job record. Deadlines and
// cancellations get fixed wording; other errors are stripped of secrets.
func FailureMessage(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return MessageTimedOut
	case errors.Is(err, context.Canceled):
		return MessageCancelled
	case errors.Is(err, generation.ErrContentBlocked):
		return "review blocked by the model's content policy"
	default:
		return "review failed: " + redact.Secrets(err.Error())
	}
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }
