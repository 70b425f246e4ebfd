package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/docreview-api/internal/domain"
	"github.com/phrazzld/docreview-api/internal/events"
	"github.com/phrazzld/docreview-api/internal/generation"
	"github.com/phrazzld/docreview-api/internal/redact"
	"github.com/phrazzld/docreview-api/internal/report"
	"github.com/phrazzld/docreview-api/internal/store"
	"github.com/phrazzld/docreview-api/internal/task"
)

// DefaultMaxUploadBytes is the upload ceiling used when none is configured.
const DefaultMaxUploadBytes int64 = 16 << 20

// SubmitRequest is one document submitted for review.
type SubmitRequest struct {
	// FileName is the client-supplied name; its extension selects the format.
	FileName string
	// Data is the file content. Callers read at most MaxUploadBytes+1 bytes
	// so oversized uploads can be told apart from files at the limit.
	Data []byte
	// Mode is the operation mode key; empty selects the catalog default.
	Mode string
}

// Canceller cancels a running task by job ID.
type Canceller interface {
	Cancel(id uuid.UUID) bool
}

// ReportReader reads persisted reports.
type ReportReader interface {
	Retrieve(ctx context.Context, id uuid.UUID) ([]byte, error)
}

// JobService is the submission gateway and query surface of review jobs.
type JobService interface {
	// Submit validates the request, stores the upload, creates a Pending job
	// and dispatches it. It returns as soon as the job exists.
	Submit(ctx context.Context, req SubmitRequest) (*domain.Job, error)

	// GetJob returns a snapshot of the job.
	GetJob(ctx context.Context, id uuid.UUID) (*domain.Job, error)

	// ListJobs returns snapshots of all known jobs, oldest first.
	ListJobs(ctx context.Context) ([]*domain.Job, error)

	// GetResult returns the final result of a terminal job.
	// Returns ErrResultNotReady while the job is still running.
	GetResult(ctx context.Context, id uuid.UUID) (*domain.Result, error)

	// DownloadReport returns the persisted report and its download file name.
	DownloadReport(ctx context.Context, id uuid.UUID) ([]byte, string, error)

	// CancelJob cancels a live job. Returns domain.ErrJobTerminal for jobs
	// that already finished.
	CancelJob(ctx context.Context, id uuid.UUID) (*domain.Job, error)

	// Modes returns the operation modes whose provider is available, and
	// the default mode key.
	Modes() ([]generation.Mode, string)
}

// JobServiceDeps are the collaborators of the job service.
type JobServiceDeps struct {
	Jobs           store.JobStore
	Uploads        store.UploadStore
	Catalog        *generation.Catalog
	Generators     *generation.Registry
	Emitter        events.EventEmitter
	Canceller      Canceller
	Reports        ReportReader
	MaxUploadBytes int64
	Logger         *slog.Logger
}

// jobServiceImpl implements the JobService interface
type jobServiceImpl struct {
	jobs       store.JobStore
	uploads    store.UploadStore
	catalog    *generation.Catalog
	generators *generation.Registry
	emitter    events.EventEmitter
	canceller  Canceller
	reports    ReportReader
	maxUpload  int64
	logger     *slog.Logger

	// dispatchMu guards dispatching, which holds the jobs between creation
	// and hand-off to a worker. The value records a cancel request.
	dispatchMu  sync.Mutex
	dispatching map[uuid.UUID]bool
}

// NewJobService creates a new JobService.
// It returns an error if any of the required dependencies are nil.
func NewJobService(deps JobServiceDeps) (JobService, error) {
	required := map[string]bool{
		"jobs":       deps.Jobs == nil,
		"uploads":    deps.Uploads == nil,
		"catalog":    deps.Catalog == nil,
		"generators": deps.Generators == nil,
		"emitter":    deps.Emitter == nil,
		"canceller":  deps.Canceller == nil,
		"reports":    deps.Reports == nil,
	}
	for name, missing := range required {
		if missing {
			return nil, &JobServiceError{
				Operation: "create_service",
				Message:   name + " cannot be nil",
			}
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxUpload := deps.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadBytes
	}

	return &jobServiceImpl{
		jobs:        deps.Jobs,
		uploads:     deps.Uploads,
		catalog:     deps.Catalog,
		generators:  deps.Generators,
		emitter:     deps.Emitter,
		canceller:   deps.Canceller,
		reports:     deps.Reports,
		maxUpload:   maxUpload,
		logger:      logger.With("component", "job_service"),
		dispatching: make(map[uuid.UUID]bool),
	}, nil
}

// validated is a submission that passed every check.
type validated struct {
	name        string
	format      domain.DocumentFormat
	contentType string
	mode        generation.Mode
}

// validate runs all submission checks before anything is stored.
func (s *jobServiceImpl) validate(req SubmitRequest) (*validated, error) {
	name := strings.TrimSpace(req.FileName)
	if name == "" {
		return nil, missingInput("no file was uploaded")
	}
	if len(req.Data) == 0 {
		return nil, missingInput("the uploaded file is empty")
	}
	if int64(len(req.Data)) > s.maxUpload {
		return nil, tooLarge(s.maxUpload)
	}

	format, contentType, err := DetectFormat(name, req.Data)
	if err != nil {
		return nil, err
	}

	mode, err := s.catalog.Lookup(req.Mode)
	if err != nil {
		return nil, unknownMode("unknown mode %q", req.Mode)
	}
	generator, err := s.generators.Get(mode.Provider)
	if err != nil {
		return nil, unknownMode("mode %q is not available: provider %s is not configured", mode.Key, mode.Provider)
	}
	if !generator.Supports(format) {
		return nil, invalidFormat("mode %q cannot review %s documents", mode.Key, format)
	}

	return &validated{name: name, format: format, contentType: contentType, mode: mode}, nil
}

// Submit implements JobService.
func (s *jobServiceImpl) Submit(ctx context.Context, req SubmitRequest) (*domain.Job, error) {
	v, err := s.validate(req)
	if err != nil {
		s.logger.InfoContext(ctx, "submission rejected", "file_name", req.FileName, "reason", err.Error())
		return nil, err
	}

	path, size, err := s.uploads.Save(ctx, uuid.New(), v.name, bytes.NewReader(req.Data))
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to store upload", "error", redact.Error(err))
		return nil, NewJobServiceError("submit", "failed to store upload", err)
	}

	s.dispatchMu.Lock()
	job, err := s.jobs.Create(ctx, domain.SourceDescriptor{
		Path:        path,
		Name:        v.name,
		Size:        size,
		Format:      v.format,
		ContentType: v.contentType,
	}, v.mode.Key)
	if err == nil {
		s.dispatching[job.ID] = false
	}
	s.dispatchMu.Unlock()
	if err != nil {
		s.removeUpload(ctx, path)
		s.logger.ErrorContext(ctx, "failed to create job", "error", err)
		return nil, NewJobServiceError("submit", "failed to create job", err)
	}

	logger := s.logger.With("job_id", job.ID, "mode", v.mode.Key)
	logger.InfoContext(ctx, "job created with pending status", "file_name", v.name, "size", size)

	err = s.dispatch(ctx, job)
	cancelRequested := s.endDispatch(job.ID)
	if err != nil {
		logger.ErrorContext(ctx, "failed to dispatch job", "error", err)
		s.failUndispatched(ctx, job.ID, err)
		return nil, NewJobServiceError("submit", "failed to dispatch job", fmt.Errorf("%w: %v", ErrDispatchFailed, err))
	}

	logger.DebugContext(ctx, "job dispatched")
	if cancelRequested && s.canceller.Cancel(job.ID) {
		logger.InfoContext(ctx, "cancellation requested during dispatch forwarded to task")
	}
	return job, nil
}

// endDispatch removes id from the dispatching set and reports whether a
// cancel arrived meanwhile.
func (s *jobServiceImpl) endDispatch(id uuid.UUID) bool {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()
	requested := s.dispatching[id]
	delete(s.dispatching, id)
	return requested
}

// deferCancel records a cancel request for a job that is still being
// dispatched. It reports false when the job is not in dispatch.
func (s *jobServiceImpl) deferCancel(id uuid.UUID) bool {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()
	if _, ok := s.dispatching[id]; !ok {
		return false
	}
	s.dispatching[id] = true
	return true
}

func (s *jobServiceImpl) dispatch(ctx context.Context, job *domain.Job) error {
	return s.emitter.EmitEvent(ctx, events.NewTaskRequestEvent(task.TaskTypeDocumentReview, job.ID))
}

// failUndispatched moves a job that never reached a worker to Failed.
func (s *jobServiceImpl) failUndispatched(ctx context.Context, id uuid.UUID, cause error) {
	s.failPending(ctx, id, "dispatch failed: "+redact.Secrets(cause.Error()))
}

func (s *jobServiceImpl) failPending(ctx context.Context, id uuid.UUID, message string) {
	failed := domain.JobStatusFailed
	_, err := s.jobs.Update(ctx, id, domain.JobUpdate{
		Status:  &failed,
		Message: &message,
		FinalResult: &domain.Result{
			Status:    domain.ResultStatusError,
			Error:     message,
			Timestamp: time.Now().Format(domain.ResultTimeLayout),
		},
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to mark job failed", "job_id", id, "error", err)
	}
}

func (s *jobServiceImpl) removeUpload(ctx context.Context, path string) {
	if err := s.uploads.Remove(ctx, path); err != nil {
		s.logger.WarnContext(ctx, "failed to remove upload", "error", redact.Error(err))
	}
}

// GetJob implements JobService.
func (s *jobServiceImpl) GetJob(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		return nil, NewJobServiceError("get_job", "failed to retrieve job", err)
	}
	return job, nil
}

// ListJobs implements JobService.
func (s *jobServiceImpl) ListJobs(ctx context.Context) ([]*domain.Job, error) {
	jobs, err := s.jobs.List(ctx)
	if err != nil {
		return nil, NewJobServiceError("list_jobs", "failed to list jobs", err)
	}
	return jobs, nil
}

// GetResult implements JobService.
func (s *jobServiceImpl) GetResult(ctx context.Context, id uuid.UUID) (*domain.Result, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if !job.IsTerminal() {
		return nil, ErrResultNotReady
	}
	return job.FinalResult, nil
}

// DownloadReport implements JobService.
func (s *jobServiceImpl) DownloadReport(ctx context.Context, id uuid.UUID) ([]byte, string, error) {
	if _, err := s.GetJob(ctx, id); err != nil {
		return nil, "", err
	}

	data, err := s.reports.Retrieve(ctx, id)
	if err != nil {
		if !errors.Is(err, store.ErrReportNotFound) {
			s.logger.ErrorContext(ctx, "failed to read report", "job_id", id, "error", redact.Error(err))
		}
		return nil, "", NewJobServiceError("download_report", "failed to read report", err)
	}
	return data, report.DownloadName(id), nil
}

// CancelJob implements JobService.
func (s *jobServiceImpl) CancelJob(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.IsTerminal() {
		return nil, domain.ErrJobTerminal
	}

	// The worker owns the record once dispatched, so a cancel that races
	// the hand-off is forwarded to the task when Submit finishes.
	if s.deferCancel(id) {
		s.logger.InfoContext(ctx, "cancellation deferred until dispatch completes", "job_id", id)
		return job, nil
	}

	if s.canceller.Cancel(id) {
		s.logger.InfoContext(ctx, "cancellation requested", "job_id", id)
		return s.GetJob(ctx, id)
	}

	// No live task and no dispatch in flight: no worker will pick this job
	// up, so a Pending record is failed here.
	if job.Status == domain.JobStatusPending {
		s.failPending(ctx, id, task.MessageCancelled)
	}
	return s.GetJob(ctx, id)
}

// Modes implements JobService.
func (s *jobServiceImpl) Modes() ([]generation.Mode, string) {
	all := s.catalog.Modes()
	available := make([]generation.Mode, 0, len(all))
	for _, m := range all {
		if _, err := s.generators.Get(m.Provider); err == nil {
			available = append(available, m)
		}
	}
	return available, s.catalog.DefaultKey()
}

// UploadCleanup returns an eviction hook that deletes the upload of every
// evicted job.
func UploadCleanup(uploads store.UploadStore, logger *slog.Logger) store.EvictHook {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, job *domain.Job) {
		if err := uploads.Remove(ctx, job.Source.Path); err != nil {
			logger.WarnContext(ctx, "failed to remove upload of evicted job",
				"job_id", job.ID,
				"error", redact.Error(err))
		}
	}
}
