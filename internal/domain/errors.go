// Package domain defines the core business entities and errors.
package domain

import (
	"errors"
	"fmt"
)

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a submission or entity fails validation.
	// Submission-specific errors below wrap it.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidFormat is returned when a source artifact is not an accepted document format.
	ErrInvalidFormat = fmt.Errorf("%w: invalid format", ErrValidation)

	// ErrTooLarge is returned when a source artifact exceeds the configured size ceiling.
	ErrTooLarge = fmt.Errorf("%w: source too large", ErrValidation)

	// ErrMissingInput is returned when no source artifact was supplied.
	ErrMissingInput = fmt.Errorf("%w: missing input", ErrValidation)

	// ErrUnknownMode is returned when the requested operation mode does not exist.
	ErrUnknownMode = fmt.Errorf("%w: unknown mode", ErrValidation)

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = errors.New("invalid ID")

	// ErrInvalidJobStatus is returned when a job status is not one of the known values.
	ErrInvalidJobStatus = errors.New("invalid job status")

	// ErrInvalidTransition is returned when a status change would leave the
	// Pending → Processing → {Completed | Failed} order.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrJobTerminal is returned when an update targets a job that already
	// reached Completed or Failed.
	ErrJobTerminal = errors.New("job already in terminal state")

	// ErrProgressRegression is returned when an update would lower progress.
	ErrProgressRegression = errors.New("progress cannot decrease")

	// ErrInvalidProgress is returned when progress falls outside 0–100.
	ErrInvalidProgress = errors.New("progress must be between 0 and 100")

	// ErrInvalidUpdate is returned when a final result and a terminal status
	// are not written together.
	ErrInvalidUpdate = errors.New("final result must accompany a terminal status")

	// ErrEmptySource is returned when a job is created without a source descriptor.
	ErrEmptySource = errors.New("source descriptor cannot be empty")
)
