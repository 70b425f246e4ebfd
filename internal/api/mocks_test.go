package api

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/docreview-api/internal/domain"
	"github.com/phrazzld/docreview-api/internal/generation"
	"github.com/phrazzld/docreview-api/internal/service"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// MockJobService is a mock implementation of service.JobService for testing
type MockJobService struct {
	SubmitFn         func(ctx context.Context, req service.SubmitRequest) (*domain.Job, error)
	GetJobFn         func(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	ListJobsFn       func(ctx context.Context) ([]*domain.Job, error)
	GetResultFn      func(ctx context.Context, id uuid.UUID) (*domain.Result, error)
	DownloadReportFn func(ctx context.Context, id uuid.UUID) ([]byte, string, error)
	CancelJobFn      func(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	ModesFn          func() ([]generation.Mode, string)
}

var _ service.JobService = (*MockJobService)(nil)

// Submit implements service.JobService
func (m *MockJobService) Submit(ctx context.Context, req service.SubmitRequest) (*domain.Job, error) {
	if m.SubmitFn != nil {
		return m.SubmitFn(ctx, req)
	}
	return nil, nil
}

// GetJob implements service.JobService
func (m *MockJobService) GetJob(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	if m.GetJobFn != nil {
		return m.GetJobFn(ctx, id)
	}
	return nil, nil
}

// ListJobs implements service.JobService
func (m *MockJobService) ListJobs(ctx context.Context) ([]*domain.Job, error) {
	if m.ListJobsFn != nil {
		return m.ListJobsFn(ctx)
	}
	return nil, nil
}

// GetResult implements service.JobService
func (m *MockJobService) GetResult(ctx context.Context, id uuid.UUID) (*domain.Result, error) {
	if m.GetResultFn != nil {
		return m.GetResultFn(ctx, id)
	}
	return nil, nil
}

// DownloadReport implements service.JobService
func (m *MockJobService) DownloadReport(ctx context.Context, id uuid.UUID) ([]byte, string, error) {
	if m.DownloadReportFn != nil {
		return m.DownloadReportFn(ctx, id)
	}
	return nil, "", nil
}

// CancelJob implements service.JobService
func (m *MockJobService) CancelJob(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	if m.CancelJobFn != nil {
		return m.CancelJobFn(ctx, id)
	}
	return nil, nil
}

// Modes implements service.JobService
func (m *MockJobService) Modes() ([]generation.Mode, string) {
	if m.ModesFn != nil {
		return m.ModesFn()
	}
	return nil, ""
}

// testJob returns a job record in the given state.
func testJob(status domain.JobStatus) *domain.Job {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &domain.Job{
		ID:       uuid.New(),
		Status:   status,
		Progress: 40,
		Message:  "generating review",
		Mode:     "claude-4-5-sonnet",
		Source: domain.SourceDescriptor{
			Path:   "uploads/x_design.pdf",
			Name:   "design.pdf",
			Size:   2048,
			Format: domain.FormatPDF,
		},
		Fragments: []string{"Findings: ", "weak hashing."},
		CreatedAt: now,
		UpdatedAt: now,
	}
}
