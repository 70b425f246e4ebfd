package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/docreview-api/internal/api/shared"
	"github.com/phrazzld/docreview-api/internal/domain"
	"github.com/phrazzld/docreview-api/internal/platform/logger"
	"github.com/phrazzld/docreview-api/internal/service"
)

const (
	// FileField is the multipart field carrying the document.
	FileField = "file"
	// ModeField is the optional multipart field naming the operation mode.
	ModeField = "mode"

	// multipartOverhead is the body allowance on top of the file limit for
	// boundaries, headers and the mode field.
	multipartOverhead = 1 << 20
	// multipartMemory is the part of a multipart body held in memory; the
	// rest spills to temporary files.
	multipartMemory = 8 << 20
)

// SubmitForm holds the non-file fields of a submission.
type SubmitForm struct {
	Mode string `validate:"omitempty,max=64,printascii"`
}

// ListQuery filters the job listing.
type ListQuery struct {
	Status string `validate:"omitempty,oneof=pending processing completed failed"`
}

// SourceResponse describes the submitted document.
type SourceResponse struct {
	Name        string                `json:"name"`
	Size        int64                 `json:"size"`
	Format      domain.DocumentFormat `json:"format"`
	ContentType string                `json:"content_type,omitempty"`
}

// JobResponse is the client view of a job record.
type JobResponse struct {
	ID            uuid.UUID      `json:"id"`
	Status        string         `json:"status"`
	Progress      int            `json:"progress"`
	Message       string         `json:"message"`
	Mode          string         `json:"mode"`
	Source        SourceResponse `json:"source"`
	PartialOutput string         `json:"partial_output"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	StartedAt     *time.Time     `json:"started_at,omitempty"`
	FinishedAt    *time.Time     `json:"finished_at,omitempty"`
	FinalResult   *domain.Result `json:"final_result,omitempty"`
}

// JobListResponse wraps a job listing.
type JobListResponse struct {
	Jobs  []JobResponse `json:"jobs"`
	Count int           `json:"count"`
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	jobService     service.JobService
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewJobHandler creates a new JobHandler. maxUploadBytes bounds the file
// part of a submission; zero selects service.DefaultMaxUploadBytes.
func NewJobHandler(jobService service.JobService, maxUploadBytes int64, logger *slog.Logger) *JobHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for JobHandler")
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = service.DefaultMaxUploadBytes
	}
	return &JobHandler{
		jobService:     jobService,
		maxUploadBytes: maxUploadBytes,
		logger:         logger.With(slog.String("component", "job_handler")),
	}
}

// SubmitJob handles POST /api/jobs requests.
// It accepts a multipart upload and answers 202 with the created job while
// the review runs in the background.
func (h *JobHandler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	log := h.requestLogger(r)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			HandleAPIError(w, r, service.NewTooLargeError(h.maxUploadBytes), "")
			return
		}
		log.Debug("invalid multipart request", slog.String("error", err.Error()))
		shared.RespondWithError(w, r, http.StatusBadRequest, service.CodeMissingInput,
			"Request must be multipart/form-data with a file field")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	form := SubmitForm{Mode: r.FormValue(ModeField)}
	if err := shared.ValidateRequest(form); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, service.CodeUnknownMode, "Invalid mode")
		return
	}

	req := service.SubmitRequest{Mode: form.Mode}
	file, header, err := r.FormFile(FileField)
	switch {
	case errors.Is(err, http.ErrMissingFile):
		// The service rejects the empty request with MissingInput.
	case err != nil:
		HandleAPIError(w, r, err, "Failed to read upload")
		return
	default:
		req.FileName = header.Filename
		req.Data, err = h.readFile(file)
		_ = file.Close()
		if err != nil {
			HandleAPIError(w, r, err, "Failed to read upload")
			return
		}
	}

	job, err := h.jobService.Submit(r.Context(), req)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to submit job")
		return
	}

	log.Info("job accepted", slog.String("job_id", job.ID.String()), slog.String("mode", job.Mode))
	w.Header().Set("Location", "/api/jobs/"+job.ID.String())
	shared.RespondWithJSON(w, r, http.StatusAccepted, jobToResponse(job))
}

// readFile reads at most one byte past the limit so the service can tell an
// oversized file from one exactly at the limit.
func (h *JobHandler) readFile(file multipart.File) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	return data, nil
}

// ListJobs handles GET /api/jobs requests.
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := ListQuery{Status: r.URL.Query().Get("status")}
	if err := shared.ValidateRequest(query); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, CodeInvalidRequest, "Invalid status filter")
		return
	}

	jobs, err := h.jobService.ListJobs(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list jobs")
		return
	}

	resp := JobListResponse{Jobs: make([]JobResponse, 0, len(jobs))}
	for _, job := range jobs {
		if query.Status != "" && string(job.Status) != query.Status {
			continue
		}
		resp.Jobs = append(resp.Jobs, jobToResponse(job))
	}
	resp.Count = len(resp.Jobs)

	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// GetJob handles GET /api/jobs/{id} requests.
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathJobID(w, r)
	if !ok {
		return
	}

	job, err := h.jobService.GetJob(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get job")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, jobToResponse(job))
}

// GetResult handles GET /api/jobs/{id}/result requests.
func (h *JobHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	id, ok := pathJobID(w, r)
	if !ok {
		return
	}

	result, err := h.jobService.GetResult(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get result")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, result)
}

// DownloadReport handles GET /api/jobs/{id}/download requests.
func (h *JobHandler) DownloadReport(w http.ResponseWriter, r *http.Request) {
	id, ok := pathJobID(w, r)
	if !ok {
		return
	}

	data, name, err := h.jobService.DownloadReport(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to read report")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.requestLogger(r).Warn("failed to write report", slog.String("error", err.Error()))
	}
}

// CancelJob handles DELETE /api/jobs/{id} requests.
func (h *JobHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathJobID(w, r)
	if !ok {
		return
	}

	job, err := h.jobService.CancelJob(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to cancel job")
		return
	}

	h.requestLogger(r).Info("job cancellation accepted", slog.String("job_id", id.String()))
	shared.RespondWithJSON(w, r, http.StatusAccepted, jobToResponse(job))
}

func (h *JobHandler) requestLogger(r *http.Request) *slog.Logger {
	return logger.FromContextOrDefault(r.Context(), h.logger)
}

// pathJobID parses the {id} URL parameter and writes a 400 response
// when it is not a UUID.
func pathJobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := parseJobID(chi.URLParam(r, "id"))
	if err != nil {
		HandleAPIError(w, r, err, "")
		return uuid.Nil, false
	}
	return id, true
}

func parseJobID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %q", domain.ErrInvalidID, raw)
	}
	return id, nil
}

// jobToResponse converts a domain.Job to a JobResponse
func jobToResponse(job *domain.Job) JobResponse {
	return JobResponse{
		ID:       job.ID,
		Status:   string(job.Status),
		Progress: job.Progress,
		Message:  job.Message,
		Mode:     job.Mode,
		Source: SourceResponse{
			Name:        job.Source.Name,
			Size:        job.Source.Size,
			Format:      job.Source.Format,
			ContentType: job.Source.ContentType,
		},
		PartialOutput: job.PartialOutput(),
		CreatedAt:     job.CreatedAt,
		UpdatedAt:     job.UpdatedAt,
		StartedAt:     job.StartedAt,
		FinishedAt:    job.FinishedAt,
		FinalResult:   job.FinalResult,
	}
}
