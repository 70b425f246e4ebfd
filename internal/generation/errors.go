package generation

import "errors"

// Common errors returned by the generation package and its providers
var (
	// ErrGenerationFailed is returned when a model call fails for any general reason
	ErrGenerationFailed = errors.New("model call failed")

	// ErrInvalidResponse is returned when the model response is empty or malformed
	ErrInvalidResponse = errors.New("invalid response from language model")

	// ErrContentBlocked is returned when the model blocks the content due to safety filters
	ErrContentBlocked = errors.New("content blocked by language model safety filters")

	// ErrTransientFailure is returned for temporary errors that might resolve on retry
	ErrTransientFailure = errors.New("transient error during model call")

	// ErrInvalidConfig is returned when the generator configuration is invalid
	ErrInvalidConfig = errors.New("invalid generator configuration")

	// ErrUnsupportedDocument is returned when a provider cannot accept the document format
	ErrUnsupportedDocument = errors.New("document format not supported by provider")

	// ErrUnknownProvider is returned when a mode names a provider that is not registered
	ErrUnknownProvider = errors.New("unknown model provider")

	// ErrUnknownMode is returned when a mode key is not in the catalog
	ErrUnknownMode = errors.New("unknown operation mode")

	// ErrEmptyDocument is returned when a request carries no document content
	ErrEmptyDocument = errors.New("document content cannot be empty")
)
