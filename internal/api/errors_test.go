package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/phrazzld/docreview-api/internal/api/shared"
	"github.com/phrazzld/docreview-api/internal/domain"
	"github.com/phrazzld/docreview-api/internal/service"
	"github.com/phrazzld/docreview-api/internal/store"
	"github.com/stretchr/testify/assert"
)

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantCode    string
		wantMessage string
	}{
		{
			name:        "invalid format",
			err:         &service.ValidationError{Code: service.CodeInvalidFormat, Message: "unsupported file type", Err: domain.ErrInvalidFormat},
			wantStatus:  http.StatusBadRequest,
			wantCode:    service.CodeInvalidFormat,
			wantMessage: "unsupported file type",
		},
		{
			name:        "too large",
			err:         service.NewTooLargeError(16),
			wantStatus:  http.StatusRequestEntityTooLarge,
			wantCode:    service.CodeTooLarge,
			wantMessage: "file exceeds the maximum size of 16 bytes",
		},
		{
			name:        "job not found",
			err:         fmt.Errorf("lookup: %w", store.ErrJobNotFound),
			wantStatus:  http.StatusNotFound,
			wantCode:    CodeNotFound,
			wantMessage: "Job not found",
		},
		{
			name:        "report not found",
			err:         store.ErrReportNotFound,
			wantStatus:  http.StatusNotFound,
			wantCode:    CodeNotFound,
			wantMessage: "Report not found",
		},
		{
			name:        "result not ready",
			err:         service.ErrResultNotReady,
			wantStatus:  http.StatusNotFound,
			wantCode:    CodeResultNotReady,
			wantMessage: "Result not ready: the job is still running",
		},
		{
			name:        "terminal",
			err:         domain.ErrJobTerminal,
			wantStatus:  http.StatusConflict,
			wantCode:    CodeJobTerminal,
			wantMessage: "Job already finished",
		},
		{
			name:        "invalid id",
			err:         fmt.Errorf("%w: %q", domain.ErrInvalidID, "x"),
			wantStatus:  http.StatusBadRequest,
			wantCode:    CodeInvalidRequest,
			wantMessage: "Invalid job ID",
		},
		{
			name:        "dispatch failed",
			err:         &service.JobServiceError{Operation: "submit", Err: fmt.Errorf("%w: no handlers", service.ErrDispatchFailed)},
			wantStatus:  http.StatusServiceUnavailable,
			wantCode:    CodeUnavailable,
			wantMessage: "Job could not be started, try again later",
		},
		{
			name:        "store full",
			err:         store.ErrStoreFull,
			wantStatus:  http.StatusServiceUnavailable,
			wantCode:    CodeUnavailable,
			wantMessage: "Too many jobs in progress, try again later",
		},
		{
			name:        "unknown",
			err:         errors.New("pq: password authentication failed for user admin"),
			wantStatus:  http.StatusInternalServerError,
			wantCode:    CodeInternal,
			wantMessage: "An unexpected error occurred",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantStatus, MapErrorToStatusCode(tt.err))
			assert.Equal(t, tt.wantCode, ErrorCode(tt.err))
			assert.Equal(t, tt.wantMessage, GetSafeErrorMessage(tt.err))
		})
	}

	assert.Equal(t, "An unexpected error occurred", GetSafeErrorMessage(nil))
}

func TestHandleAPIError(t *testing.T) {
	t.Run("default message replaces internal errors", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
		req = req.WithContext(shared.SetTraceID(req.Context()))
		rr := httptest.NewRecorder()

		HandleAPIError(rr, req, errors.New("api_key=sk-secret leaked"), "Failed to list jobs")

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		resp := decodeError(t, rr)
		assert.Equal(t, "Failed to list jobs", resp.Error)
		assert.Equal(t, CodeInternal, resp.Code)
		assert.Equal(t, shared.GetTraceID(req.Context()), resp.TraceID)
		assert.NotContains(t, rr.Body.String(), "sk-secret")
	})

	t.Run("mapped errors keep their safe message", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/jobs/x", nil)
		rr := httptest.NewRecorder()

		HandleAPIError(rr, req, store.ErrJobNotFound, "Failed to get job")

		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Equal(t, "Job not found", decodeError(t, rr).Error)
	})
}
