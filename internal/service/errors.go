package service

import (
	"errors"
	"fmt"

	"github.com/phrazzld/docreview-api/internal/domain"
	"github.com/phrazzld/docreview-api/internal/store"
)

// Common service errors - sentinel errors used across service implementations.
// These errors represent common conditions that callers may want to check for with errors.Is().
//
// Error handling principles:
// 1. Service methods return sentinel errors for expected error conditions
// 2. Unexpected errors are wrapped in JobServiceError
// 3. Callers use errors.Is/errors.As to check for specific error conditions
// 4. The API layer maps service errors to appropriate HTTP status codes
var (
	// ErrResultNotReady indicates the job has not reached a terminal state yet.
	// API layer should map this to HTTP 404 Not Found.
	ErrResultNotReady = errors.New("result not ready")

	// ErrDispatchFailed indicates the job was created but could not be handed
	// to a worker. The job is marked Failed.
	// API layer should map this to HTTP 503 Service Unavailable.
	ErrDispatchFailed = errors.New("job dispatch failed")
)

// Validation codes reported to clients.
const (
	CodeInvalidFormat = "InvalidFormat"
	CodeMissingInput  = "MissingInput"
	CodeTooLarge      = "TooLarge"
	CodeUnknownMode   = "UnknownMode"
)

// ValidationError is a rejected submission. No job record exists for it.
type ValidationError struct {
	// Code is the machine-readable reason (CodeInvalidFormat, ...)
	Code string
	// Message is a client-safe description
	Message string
	// Err is the domain sentinel (domain.ErrInvalidFormat, ...)
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the domain sentinel so errors.Is(err, domain.ErrValidation) holds.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalidFormat(format string, args ...any) *ValidationError {
	return &ValidationError{Code: CodeInvalidFormat, Message: fmt.Sprintf(format, args...), Err: domain.ErrInvalidFormat}
}

func missingInput(message string) *ValidationError {
	return &ValidationError{Code: CodeMissingInput, Message: message, Err: domain.ErrMissingInput}
}

func tooLarge(limit int64) *ValidationError {
	return &ValidationError{
		Code:    CodeTooLarge,
		Message: fmt.Sprintf("file exceeds the maximum size of %d bytes", limit),
		Err:     domain.ErrTooLarge,
	}
}

// NewTooLargeError reports an upload rejected for exceeding limit bytes.
// Transports use it when they cut the request body off before the service
// sees the file.
func NewTooLargeError(limit int64) *ValidationError {
	return tooLarge(limit)
}

func unknownMode(format string, args ...any) *ValidationError {
	return &ValidationError{Code: CodeUnknownMode, Message: fmt.Sprintf(format, args...), Err: domain.ErrUnknownMode}
}

// JobServiceError wraps errors from the job service with context.
type JobServiceError struct {
	// Operation is the operation that failed (e.g., "submit", "cancel")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for JobServiceError.
func (e *JobServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("job service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("job service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *JobServiceError) Unwrap() error {
	return e.Err
}

// NewJobServiceError creates a new JobServiceError.
// It returns known sentinel errors directly without wrapping.
func NewJobServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, store.ErrJobNotFound):
		return store.ErrJobNotFound
	case errors.Is(err, store.ErrReportNotFound):
		return store.ErrReportNotFound
	case errors.Is(err, ErrResultNotReady):
		return ErrResultNotReady
	case errors.Is(err, domain.ErrJobTerminal):
		return domain.ErrJobTerminal
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr
	}

	return &JobServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
