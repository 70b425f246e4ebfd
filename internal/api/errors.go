package api

import (
	"errors"
	"net/http"

	"github.com/phrazzld/docreview-api/internal/api/shared"
	"github.com/phrazzld/docreview-api/internal/domain"
	"github.com/phrazzld/docreview-api/internal/service"
	"github.com/phrazzld/docreview-api/internal/store"
)

// Machine-readable error codes returned next to the safe message. Submission
// rejections reuse the service validation codes.
const (
	CodeNotFound       = "NotFound"
	CodeResultNotReady = "ResultNotReady"
	CodeJobTerminal    = "JobTerminal"
	CodeInvalidRequest = "InvalidRequest"
	CodeUnavailable    = "Unavailable"
	CodeInternal       = "InternalError"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	var validationErr *service.ValidationError
	switch {
	case errors.As(err, &validationErr):
		if validationErr.Code == service.CodeTooLarge {
			return http.StatusRequestEntityTooLarge
		}
		return http.StatusBadRequest

	// Not found errors, including results that do not exist yet
	case errors.Is(err, service.ErrResultNotReady),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	// Conflict errors
	case errors.Is(err, domain.ErrJobTerminal):
		return http.StatusConflict

	// Bad request errors
	case errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest

	// Capacity errors
	case errors.Is(err, store.ErrStoreFull),
		errors.Is(err, service.ErrDispatchFailed):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// ErrorCode returns the machine-readable code for err.
func ErrorCode(err error) string {
	var validationErr *service.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return validationErr.Code
	case errors.Is(err, service.ErrResultNotReady):
		return CodeResultNotReady
	case errors.Is(err, store.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, domain.ErrJobTerminal):
		return CodeJobTerminal
	case errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrValidation):
		return CodeInvalidRequest
	case errors.Is(err, store.ErrStoreFull),
		errors.Is(err, service.ErrDispatchFailed):
		return CodeUnavailable
	default:
		return CodeInternal
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	var validationErr *service.ValidationError
	switch {
	// Validation messages are written for clients
	case errors.As(err, &validationErr):
		return validationErr.Message

	case errors.Is(err, service.ErrResultNotReady):
		return "Result not ready: the job is still running"

	case errors.Is(err, store.ErrJobNotFound):
		return "Job not found"

	case errors.Is(err, store.ErrReportNotFound):
		return "Report not found"

	case errors.Is(err, domain.ErrJobTerminal):
		return "Job already finished"

	case errors.Is(err, domain.ErrInvalidID):
		return "Invalid job ID"

	case errors.Is(err, store.ErrStoreFull):
		return "Too many jobs in progress, try again later"

	case errors.Is(err, service.ErrDispatchFailed):
		return "Job could not be started, try again later"

	default:
		return "An unexpected error occurred"
	}
}

// HandleAPIError writes the error response for err. defaultMsg replaces the
// safe message for errors without a specific mapping.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, defaultMsg string) {
	status := MapErrorToStatusCode(err)
	message := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && defaultMsg != "" {
		message = defaultMsg
	}
	shared.RespondWithErrorAndLog(w, r, status, ErrorCode(err), message, err)
}
